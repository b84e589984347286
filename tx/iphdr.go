package tx

import (
	"encoding/binary"
	"errors"

	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/checksum"
	"github.com/database64128/sctptx-go/pktbuf"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	defaultTTL = 255

	// ipv4DontFragment is the DF bit in the IPv4 flags and fragment offset field.
	ipv4DontFragment = 0x4000
)

var errPacketTooLarge = errors.New("packet exceeds maximum IP length")

// pushIPHeader prepends the IP header of the path to b.
func pushIPHeader(b *pktbuf.Buffer, sc *assoc.SubConn) error {
	if sc.Is4() {
		return pushIPv4Header(b, sc)
	}
	return pushIPv6Header(b, sc)
}

func pushIPv4Header(b *pktbuf.Buffer, sc *assoc.SubConn) error {
	total := ipv4.HeaderLen + b.TotalLen()
	if total > 0xffff {
		return errPacketTooLarge
	}
	hdr, err := b.Push(ipv4.HeaderLen)
	if err != nil {
		return err
	}

	hdr[0] = ipv4.Version<<4 | ipv4.HeaderLen>>2
	hdr[1] = 0
	binary.BigEndian.PutUint16(hdr[2:4], uint16(total))
	binary.BigEndian.PutUint16(hdr[4:6], 0)
	binary.BigEndian.PutUint16(hdr[6:8], ipv4DontFragment)
	hdr[8] = defaultTTL
	hdr[9] = checksum.ProtocolSCTP
	binary.BigEndian.PutUint16(hdr[10:12], 0)
	src := sc.Local.Unmap().As4()
	dst := sc.Remote.Unmap().As4()
	copy(hdr[12:16], src[:])
	copy(hdr[16:20], dst[:])

	var s checksum.Sum
	s.Add(hdr)
	binary.BigEndian.PutUint16(hdr[10:12], s.Finish())

	b.Meta.L3Offset = b.Offset()
	b.Meta.Flags |= pktbuf.FlagL3HeaderPresent
	return nil
}

func pushIPv6Header(b *pktbuf.Buffer, sc *assoc.SubConn) error {
	payload := b.TotalLen()
	if payload > 0xffff {
		return errPacketTooLarge
	}
	hdr, err := b.Push(ipv6.HeaderLen)
	if err != nil {
		return err
	}

	binary.BigEndian.PutUint32(hdr[0:4], ipv6.Version<<28)
	binary.BigEndian.PutUint16(hdr[4:6], uint16(payload))
	hdr[6] = checksum.ProtocolSCTP
	hdr[7] = defaultTTL
	src := sc.Local.As16()
	dst := sc.Remote.As16()
	copy(hdr[8:24], src[:])
	copy(hdr[24:40], dst[:])

	b.Meta.L3Offset = b.Offset()
	b.Meta.Flags |= pktbuf.FlagL3HeaderPresent
	return nil
}

// finalize pushes the IP header if b does not have one yet,
// then computes and stores the SCTP checksum.
func (e *Engine) finalize(b *pktbuf.Buffer, sc *assoc.SubConn) error {
	if b.Meta.Flags&pktbuf.FlagL3HeaderPresent == 0 {
		if err := pushIPHeader(b, sc); err != nil {
			return err
		}
	}

	sum, bogus := e.cfg.Checksum.Compute(b)
	if bogus {
		return errBogusChecksum
	}
	field := b.Bytes()[b.Meta.L4Offset-b.Offset()+8:]
	e.cfg.Checksum.Put(field, sum)
	return nil
}
