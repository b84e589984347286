package checksum

import (
	"encoding/binary"

	"github.com/database64128/sctptx-go/pktbuf"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// ProtocolSCTP is the IP protocol number of SCTP.
	ProtocolSCTP = 132

	// ProtocolIPv6HopByHop is the IPv6 next header value of the hop-by-hop options header.
	ProtocolIPv6HopByHop = 0

	// BogusSentinel is returned by [IPv6] when the buffer chain
	// does not hold as many bytes as the IPv6 header declares.
	BogusSentinel = 0xfefe

	// fieldOffset is the offset of the checksum field in the SCTP common header.
	fieldOffset = 8
)

// IPv4 computes the SCTP checksum of the IPv4 packet at the start of b's data window,
// treating the SCTP checksum field as zero.
//
// The payload may span chained segments. It panics if the chain holds fewer bytes
// than the IPv4 total length declares, as buffer accounting rules that out.
func IPv4(b *pktbuf.Buffer) uint32 {
	s, ok := sumIPv4(b, true)
	if !ok {
		panic("checksum: IPv4 payload exceeds buffer chain")
	}
	return uint32(s.Finish())
}

// VerifyIPv4 reports whether the IPv4 packet at the start of b's data window
// carries a valid SCTP checksum.
func VerifyIPv4(b *pktbuf.Buffer) bool {
	s, ok := sumIPv4(b, false)
	return ok && s.Finish() == 0
}

// IPv6 computes the SCTP checksum of the IPv6 packet at the start of b's data window,
// treating the SCTP checksum field as zero. A hop-by-hop options header directly after
// the fixed header is skipped.
//
// If the chain holds fewer bytes than the payload length declares,
// or the packet cannot be parsed, IPv6 returns [BogusSentinel] and bogus is true.
func IPv6(b *pktbuf.Buffer) (sum uint32, bogus bool) {
	s, ok := sumIPv6(b, true)
	if !ok {
		return BogusSentinel, true
	}
	return uint32(s.Finish()), false
}

// VerifyIPv6 reports whether the IPv6 packet at the start of b's data window
// carries a valid SCTP checksum.
func VerifyIPv6(b *pktbuf.Buffer) bool {
	s, ok := sumIPv6(b, false)
	return ok && s.Finish() == 0
}

// TransportOffset returns the offset of the SCTP header in the IP packet ip
// and the length of the SCTP packet.
// For IPv6, a hop-by-hop options header is skipped.
func TransportOffset(ip []byte) (off, length int, ok bool) {
	if len(ip) == 0 {
		return 0, 0, false
	}
	switch ip[0] >> 4 {
	case ipv4.Version:
		if len(ip) < ipv4.HeaderLen {
			return 0, 0, false
		}
		off = int(ip[0]&0x0f) << 2
		length = int(binary.BigEndian.Uint16(ip[2:4])) - off
		return off, length, off >= ipv4.HeaderLen && length >= 0

	case ipv6.Version:
		if len(ip) < ipv6.HeaderLen {
			return 0, 0, false
		}
		off = ipv6.HeaderLen
		length = int(binary.BigEndian.Uint16(ip[4:6]))
		if ip[6] == ProtocolIPv6HopByHop {
			if len(ip) < off+8 || ip[off] != ProtocolSCTP {
				return 0, 0, false
			}
			skip := 8 * (1 + int(ip[off+1]))
			off += skip
			length -= skip
		}
		return off, length, length >= 0

	default:
		return 0, 0, false
	}
}

func sumIPv4(b *pktbuf.Buffer, zero bool) (s Sum, ok bool) {
	hdr := b.Bytes()
	off, length, ok := TransportOffset(hdr)
	if !ok || hdr[0]>>4 != ipv4.Version {
		return s, false
	}

	// Pseudo-header: source and destination addresses, zero, protocol, SCTP length.
	s.Add(hdr[12:20])
	s.AddUint32(uint32(hdr[9])<<16 | uint32(length))

	return s, sumPayload(&s, b, off, length, zero)
}

func sumIPv6(b *pktbuf.Buffer, zero bool) (s Sum, ok bool) {
	hdr := b.Bytes()
	off, length, ok := TransportOffset(hdr)
	if !ok || hdr[0]>>4 != ipv6.Version {
		return s, false
	}

	// Pseudo-header: source and destination addresses, upper-layer length, next header.
	s.Add(hdr[8:40])
	s.AddUint32(uint32(length))
	s.AddUint32(ProtocolSCTP)

	return s, sumPayload(&s, b, off, length, zero)
}

var zeroField [4]byte

// walkPayload calls fn on length bytes of the chain, starting off bytes into it.
// If zero is true, the SCTP checksum field is passed as zero bytes,
// even when it straddles two segments.
// It reports false if the chain ends before length bytes were walked.
func walkPayload(b *pktbuf.Buffer, off, length int, zero bool, fn func([]byte)) bool {
	var pos int
	for seg := range b.Segments() {
		if off > 0 {
			k := min(off, len(seg))
			seg = seg[k:]
			off -= k
		}
		seg = seg[:min(len(seg), length-pos)]
		if zero && pos < fieldOffset+4 && pos+len(seg) > fieldOffset {
			lo := max(fieldOffset-pos, 0)
			hi := min(fieldOffset+4-pos, len(seg))
			fn(seg[:lo])
			fn(zeroField[:hi-lo])
			fn(seg[hi:])
		} else {
			fn(seg)
		}
		pos += len(seg)
		if pos == length {
			return true
		}
	}
	return pos == length
}

func sumPayload(s *Sum, b *pktbuf.Buffer, off, length int, zero bool) bool {
	return walkPayload(b, off, length, zero, s.Add)
}
