package chunk

import (
	"encoding/binary"
	"iter"
	"net/netip"
)

// ParamType is the type of a variable-length parameter.
type ParamType uint16

const (
	ParamHeartbeatInfo ParamType = 1
	ParamIPv4Address   ParamType = 5
	ParamIPv6Address   ParamType = 6
	ParamStateCookie   ParamType = 7
)

// ParamHeaderLen is the length of the parameter type and length fields.
const ParamHeaderLen = 4

// Param is a typed parameter value carried by INIT, INIT_ACK and HEARTBEAT chunks.
type Param interface {
	ParamType() ParamType

	// ValueLen returns the length of the parameter value, excluding the header and padding.
	ValueLen() int

	// PutValue writes the parameter value into b, which is exactly ValueLen bytes long.
	PutValue(b []byte)
}

// ParamsLen returns the encoded length of params, each padded to a 4-byte boundary.
func ParamsLen(params []Param) int {
	var n int
	for _, p := range params {
		l := ParamHeaderLen + p.ValueLen()
		n += l + Padding(l)
	}
	return n
}

// PutParams encodes params into b, which must be at least ParamsLen(params) bytes long.
func PutParams(b []byte, params []Param) {
	for _, p := range params {
		l := ParamHeaderLen + p.ValueLen()
		binary.BigEndian.PutUint16(b[0:2], uint16(p.ParamType()))
		binary.BigEndian.PutUint16(b[2:4], uint16(l))
		p.PutValue(b[ParamHeaderLen:l])
		wire := l + Padding(l)
		clear(b[l:wire])
		b = b[wire:]
	}
}

// RawParams returns an iterator over the parameters encoded in b.
// Iteration stops at the first malformed parameter.
func RawParams(b []byte) iter.Seq2[ParamType, []byte] {
	return func(yield func(ParamType, []byte) bool) {
		for len(b) >= ParamHeaderLen {
			typ := ParamType(binary.BigEndian.Uint16(b[0:2]))
			l := int(binary.BigEndian.Uint16(b[2:4]))
			if l < ParamHeaderLen || l > len(b) {
				return
			}
			if !yield(typ, b[ParamHeaderLen:l]) {
				return
			}
			b = b[min(l+Padding(l), len(b)):]
		}
	}
}

// AddressParam returns the IPv4 or IPv6 address parameter for addr.
func AddressParam(addr netip.Addr) Param {
	if addr.Is4() || addr.Is4In6() {
		return IPv4Address(addr.Unmap().As4())
	}
	return IPv6Address(addr.As16())
}

// IPv4Address is the IPv4 address parameter.
type IPv4Address [4]byte

func (IPv4Address) ParamType() ParamType { return ParamIPv4Address }
func (IPv4Address) ValueLen() int { return 4 }
func (a IPv4Address) PutValue(b []byte) { copy(b, a[:]) }

// IPv6Address is the IPv6 address parameter.
type IPv6Address [16]byte

func (IPv6Address) ParamType() ParamType { return ParamIPv6Address }
func (IPv6Address) ValueLen() int { return 16 }
func (a IPv6Address) PutValue(b []byte) { copy(b, a[:]) }

// HeartbeatInfo is the opaque sender-specific heartbeat information parameter.
type HeartbeatInfo []byte

func (HeartbeatInfo) ParamType() ParamType { return ParamHeartbeatInfo }
func (h HeartbeatInfo) ValueLen() int { return len(h) }
func (h HeartbeatInfo) PutValue(b []byte) { copy(b, h) }

// StateCookieLen is the length of an encoded [StateCookie] value.
const StateCookieLen = 24

// StateCookie is the state cookie this endpoint hands out in INIT_ACK.
type StateCookie struct {
	// CreationTime is the Unix time in seconds at which the cookie was made.
	CreationTime uint32

	// Lifespan is the validity period in milliseconds.
	Lifespan uint32

	LocalTag uint32
	PeerTag  uint32

	// MAC authenticates the fields above.
	MAC [8]byte
}

func (StateCookie) ParamType() ParamType { return ParamStateCookie }
func (StateCookie) ValueLen() int { return StateCookieLen }

func (c StateCookie) PutValue(b []byte) {
	_ = b[StateCookieLen-1]
	c.PutAuthenticated(b)
	copy(b[16:24], c.MAC[:])
}

// PutAuthenticated writes the 16 bytes covered by the MAC into b.
func (c StateCookie) PutAuthenticated(b []byte) {
	_ = b[15]
	binary.BigEndian.PutUint32(b[0:4], c.CreationTime)
	binary.BigEndian.PutUint32(b[4:8], c.Lifespan)
	binary.BigEndian.PutUint32(b[8:12], c.LocalTag)
	binary.BigEndian.PutUint32(b[12:16], c.PeerTag)
}

// ParseStateCookie parses a state cookie value.
func ParseStateCookie(b []byte) (StateCookie, error) {
	if len(b) < StateCookieLen {
		return StateCookie{}, ErrShort
	}
	c := StateCookie{
		CreationTime: binary.BigEndian.Uint32(b[0:4]),
		Lifespan:     binary.BigEndian.Uint32(b[4:8]),
		LocalTag:     binary.BigEndian.Uint32(b[8:12]),
		PeerTag:      binary.BigEndian.Uint32(b[12:16]),
	}
	copy(c.MAC[:], b[16:24])
	return c, nil
}
