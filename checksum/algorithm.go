package checksum

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/database64128/sctptx-go/pktbuf"
	"golang.org/x/net/ipv4"
)

// Algorithm selects how the SCTP checksum field is computed.
type Algorithm uint8

const (
	// AlgorithmInternet is the 16-bit one's-complement sum over the pseudo-header and the SCTP packet,
	// stored in the low half of the checksum field.
	AlgorithmInternet Algorithm = iota

	// AlgorithmCRC32C is the CRC32c (Castagnoli) checksum over the SCTP packet,
	// stored as RFC 4960 Appendix B requires.
	AlgorithmCRC32C
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// String implements [fmt.Stringer].
func (a Algorithm) String() string {
	switch a {
	case AlgorithmInternet:
		return "internet"
	case AlgorithmCRC32C:
		return "crc32c"
	default:
		return fmt.Sprintf("Algorithm(%d)", a)
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (a *Algorithm) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "internet":
		*a = AlgorithmInternet
	case "crc32c":
		*a = AlgorithmCRC32C
	default:
		return fmt.Errorf("unknown checksum algorithm: %q", text)
	}
	return nil
}

// Compute returns the checksum of the IP packet at the start of b's data window,
// treating the SCTP checksum field as zero.
//
// bogus is true when the chain cannot hold the packet the IP header declares.
// An IPv4 chain that is too short panics under [AlgorithmInternet].
func (a Algorithm) Compute(b *pktbuf.Buffer) (sum uint32, bogus bool) {
	if a == AlgorithmCRC32C {
		return CRC32C(b)
	}
	if isIPv4(b) {
		return IPv4(b), false
	}
	return IPv6(b)
}

// Verify reports whether the IP packet at the start of b's data window
// carries a valid SCTP checksum.
func (a Algorithm) Verify(b *pktbuf.Buffer) bool {
	if a == AlgorithmCRC32C {
		off, _, ok := TransportOffset(b.Bytes())
		if !ok {
			return false
		}
		sum, bogus := CRC32C(b)
		field := b.Bytes()[off+fieldOffset:]
		return !bogus && binary.LittleEndian.Uint32(field) == sum
	}
	if isIPv4(b) {
		return VerifyIPv4(b)
	}
	return VerifyIPv6(b)
}

// Put stores sum in the 4-byte checksum field.
func (a Algorithm) Put(field []byte, sum uint32) {
	if a == AlgorithmCRC32C {
		// The CRC is already in network bit order.
		binary.LittleEndian.PutUint32(field, sum)
		return
	}
	binary.BigEndian.PutUint32(field, sum)
}

// CRC32C computes the CRC32c checksum of the SCTP packet inside the IP packet
// at the start of b's data window, treating the checksum field as zero.
func CRC32C(b *pktbuf.Buffer) (sum uint32, bogus bool) {
	off, length, ok := TransportOffset(b.Bytes())
	if !ok {
		return BogusSentinel, true
	}

	ok = walkPayload(b, off, length, true, func(seg []byte) {
		sum = crc32.Update(sum, castagnoliTable, seg)
	})
	if !ok {
		return BogusSentinel, true
	}
	return sum, false
}

func isIPv4(b *pktbuf.Buffer) bool {
	hdr := b.Bytes()
	return len(hdr) > 0 && hdr[0]>>4 == ipv4.Version
}
