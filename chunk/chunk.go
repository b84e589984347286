// Package chunk implements the SCTP wire format for the chunks sent by the transmit path.
//
// Chunks are built as typed values and encoded into a byte window with [Put].
// All multi-byte fields are written in network byte order.
package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// CommonHeaderLen is the length of the SCTP common header.
	CommonHeaderLen = 12

	// HeaderLen is the length of the chunk header (type, flags, length).
	HeaderLen = 4
)

var (
	ErrShort     = errors.New("chunk: buffer too short")
	ErrBadLength = errors.New("chunk: bad length field")
)

// Type is the chunk type.
type Type uint8

const (
	TypeData             Type = 0
	TypeInit             Type = 1
	TypeInitAck          Type = 2
	TypeSack             Type = 3
	TypeHeartbeat        Type = 4
	TypeHeartbeatAck     Type = 5
	TypeAbort            Type = 6
	TypeShutdown         Type = 7
	TypeShutdownAck      Type = 8
	TypeError            Type = 9
	TypeCookieEcho       Type = 10
	TypeCookieAck        Type = 11
	TypeShutdownComplete Type = 14
)

var typeNames = [...]string{
	TypeData:             "DATA",
	TypeInit:             "INIT",
	TypeInitAck:          "INIT_ACK",
	TypeSack:             "SACK",
	TypeHeartbeat:        "HEARTBEAT",
	TypeHeartbeatAck:     "HEARTBEAT_ACK",
	TypeAbort:            "ABORT",
	TypeShutdown:         "SHUTDOWN",
	TypeShutdownAck:      "SHUTDOWN_ACK",
	TypeError:            "ERROR",
	TypeCookieEcho:       "COOKIE_ECHO",
	TypeCookieAck:        "COOKIE_ACK",
	TypeShutdownComplete: "SHUTDOWN_COMPLETE",
}

// String implements [fmt.Stringer].
func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Port is an SCTP port number kept in network byte order.
type Port [2]byte

// PortFrom returns p in network byte order.
func PortFrom(p uint16) Port {
	return Port{byte(p >> 8), byte(p)}
}

// Uint16 returns the port number in host order.
func (p Port) Uint16() uint16 {
	return uint16(p[0])<<8 | uint16(p[1])
}

// Padding returns the number of zero bytes that pad n bytes to a 4-byte boundary.
func Padding(n int) int {
	return -n & 3
}

// CommonHeader is the SCTP common header.
type CommonHeader struct {
	SrcPort         Port
	DstPort         Port
	VerificationTag uint32
	Checksum        uint32
}

// Put writes h into the first [CommonHeaderLen] bytes of b.
func (h CommonHeader) Put(b []byte) {
	_ = b[CommonHeaderLen-1]
	copy(b[0:2], h.SrcPort[:])
	copy(b[2:4], h.DstPort[:])
	binary.BigEndian.PutUint32(b[4:8], h.VerificationTag)
	binary.BigEndian.PutUint32(b[8:12], h.Checksum)
}

// ParseCommonHeader parses the SCTP common header at the start of b.
func ParseCommonHeader(b []byte) (CommonHeader, error) {
	if len(b) < CommonHeaderLen {
		return CommonHeader{}, ErrShort
	}
	return CommonHeader{
		SrcPort:         Port(b[0:2]),
		DstPort:         Port(b[2:4]),
		VerificationTag: binary.BigEndian.Uint32(b[4:8]),
		Checksum:        binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

// Header is the chunk header.
type Header struct {
	Type  Type
	Flags uint8

	// Length covers the chunk header and value, excluding padding.
	Length uint16
}

// Put writes h into the first [HeaderLen] bytes of b.
func (h Header) Put(b []byte) {
	_ = b[HeaderLen-1]
	b[0] = byte(h.Type)
	b[1] = h.Flags
	binary.BigEndian.PutUint16(b[2:4], h.Length)
}

// ParseHeader parses the chunk header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShort
	}
	h := Header{
		Type:   Type(b[0]),
		Flags:  b[1],
		Length: binary.BigEndian.Uint16(b[2:4]),
	}
	if h.Length < HeaderLen {
		return h, ErrBadLength
	}
	return h, nil
}

// Chunk is a typed chunk value that can be encoded with [Put].
type Chunk interface {
	// Type returns the chunk type.
	Type() Type

	// Flags returns the chunk flags byte.
	Flags() uint8

	// ValueLen returns the length of the chunk value, excluding the header and padding.
	ValueLen() int

	// PutValue writes the chunk value into b, which is exactly ValueLen bytes long.
	PutValue(b []byte)
}

// Len returns the value of the length field of c: the header plus the value, without padding.
func Len(c Chunk) int {
	return HeaderLen + c.ValueLen()
}

// WireLen returns the number of bytes c occupies on the wire, including padding.
func WireLen(c Chunk) int {
	n := Len(c)
	return n + Padding(n)
}

// Put encodes c at the start of b, zeroes the padding,
// and returns the number of bytes written.
func Put(b []byte, c Chunk) (int, error) {
	n := Len(c)
	if n > 0xffff {
		return 0, ErrBadLength
	}
	wire := n + Padding(n)
	if len(b) < wire {
		return 0, ErrShort
	}
	Header{Type: c.Type(), Flags: c.Flags(), Length: uint16(n)}.Put(b)
	c.PutValue(b[HeaderLen:n])
	clear(b[n:wire])
	return wire, nil
}
