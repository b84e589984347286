package chunk

import "encoding/binary"

// Init is the INIT chunk.
type Init struct {
	InitiateTag     uint32
	ARwnd           uint32
	OutboundStreams uint16
	InboundStreams  uint16
	InitialTSN      uint32
	Params          []Param
}

// initFixedLen is the length of the fixed INIT and INIT_ACK fields.
const initFixedLen = 16

func (Init) Type() Type { return TypeInit }
func (Init) Flags() uint8 { return 0 }
func (c Init) ValueLen() int { return initFixedLen + ParamsLen(c.Params) }
func (c Init) PutValue(b []byte) { c.put(b) }

func (c Init) put(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], c.InitiateTag)
	binary.BigEndian.PutUint32(b[4:8], c.ARwnd)
	binary.BigEndian.PutUint16(b[8:10], c.OutboundStreams)
	binary.BigEndian.PutUint16(b[10:12], c.InboundStreams)
	binary.BigEndian.PutUint32(b[12:16], c.InitialTSN)
	PutParams(b[initFixedLen:], c.Params)
}

// ParseInit parses the value of an INIT or INIT_ACK chunk.
// Parameters are left in their encoded form.
func ParseInit(value []byte) (c Init, params []byte, err error) {
	if len(value) < initFixedLen {
		return Init{}, nil, ErrShort
	}
	c = Init{
		InitiateTag:     binary.BigEndian.Uint32(value[0:4]),
		ARwnd:           binary.BigEndian.Uint32(value[4:8]),
		OutboundStreams: binary.BigEndian.Uint16(value[8:10]),
		InboundStreams:  binary.BigEndian.Uint16(value[10:12]),
		InitialTSN:      binary.BigEndian.Uint32(value[12:16]),
	}
	return c, value[initFixedLen:], nil
}

// InitAck is the INIT_ACK chunk. It has the same layout as [Init].
type InitAck Init

func (InitAck) Type() Type { return TypeInitAck }
func (InitAck) Flags() uint8 { return 0 }
func (c InitAck) ValueLen() int { return Init(c).ValueLen() }
func (c InitAck) PutValue(b []byte) { Init(c).put(b) }

// CookieEcho is the COOKIE_ECHO chunk. Cookie is echoed verbatim.
type CookieEcho struct {
	Cookie []byte
}

func (CookieEcho) Type() Type { return TypeCookieEcho }
func (CookieEcho) Flags() uint8 { return 0 }
func (c CookieEcho) ValueLen() int { return len(c.Cookie) }
func (c CookieEcho) PutValue(b []byte) { copy(b, c.Cookie) }

// CookieAck is the COOKIE_ACK chunk.
type CookieAck struct{}

func (CookieAck) Type() Type { return TypeCookieAck }
func (CookieAck) Flags() uint8 { return 0 }
func (CookieAck) ValueLen() int { return 0 }
func (CookieAck) PutValue(b []byte) {}

// Sack is a SACK chunk without gap ack blocks or duplicate TSNs.
type Sack struct {
	CumulativeTSNAck uint32
	ARwnd            uint32
}

func (Sack) Type() Type { return TypeSack }
func (Sack) Flags() uint8 { return 0 }
func (Sack) ValueLen() int { return 12 }

func (c Sack) PutValue(b []byte) {
	_ = b[11]
	binary.BigEndian.PutUint32(b[0:4], c.CumulativeTSNAck)
	binary.BigEndian.PutUint32(b[4:8], c.ARwnd)
	// Number of gap ack blocks and duplicate TSNs.
	clear(b[8:12])
}

// Heartbeat is the HEARTBEAT chunk.
type Heartbeat struct {
	Info HeartbeatInfo
}

func (Heartbeat) Type() Type { return TypeHeartbeat }
func (Heartbeat) Flags() uint8 { return 0 }
func (c Heartbeat) ValueLen() int { return ParamsLen([]Param{c.Info}) }
func (c Heartbeat) PutValue(b []byte) { PutParams(b, []Param{c.Info}) }

// HeartbeatAck is the HEARTBEAT_ACK chunk. Info is copied from the HEARTBEAT being answered.
type HeartbeatAck struct {
	Info HeartbeatInfo
}

func (HeartbeatAck) Type() Type { return TypeHeartbeatAck }
func (HeartbeatAck) Flags() uint8 { return 0 }
func (c HeartbeatAck) ValueLen() int { return ParamsLen([]Param{c.Info}) }
func (c HeartbeatAck) PutValue(b []byte) { PutParams(b, []Param{c.Info}) }

// Shutdown is the SHUTDOWN chunk.
type Shutdown struct {
	CumulativeTSNAck uint32
}

func (Shutdown) Type() Type { return TypeShutdown }
func (Shutdown) Flags() uint8 { return 0 }
func (Shutdown) ValueLen() int { return 4 }
func (c Shutdown) PutValue(b []byte) { binary.BigEndian.PutUint32(b, c.CumulativeTSNAck) }

// ShutdownAck is the SHUTDOWN_ACK chunk.
type ShutdownAck struct{}

func (ShutdownAck) Type() Type { return TypeShutdownAck }
func (ShutdownAck) Flags() uint8 { return 0 }
func (ShutdownAck) ValueLen() int { return 0 }
func (ShutdownAck) PutValue(b []byte) {}

// ShutdownComplete is the SHUTDOWN_COMPLETE chunk.
type ShutdownComplete struct {
	// TagReflected sets the T bit: the verification tag is the one received from the peer.
	TagReflected bool
}

func (ShutdownComplete) Type() Type { return TypeShutdownComplete }
func (ShutdownComplete) ValueLen() int { return 0 }
func (ShutdownComplete) PutValue([]byte) {}

func (c ShutdownComplete) Flags() uint8 {
	if c.TagReflected {
		return 1
	}
	return 0
}
