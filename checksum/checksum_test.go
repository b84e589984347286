package checksum

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/database64128/sctptx-go/pktbuf"
)

// refSum is the textbook 16-bit one's-complement sum over b.
func refSum(b []byte) uint16 {
	var acc uint32
	for len(b) >= 2 {
		acc += uint32(binary.BigEndian.Uint16(b))
		b = b[2:]
	}
	if len(b) == 1 {
		acc += uint32(b[0]) << 8
	}
	for acc > 0xffff {
		acc = acc>>16 + acc&0xffff
	}
	return uint16(acc)
}

func TestSumSplits(t *testing.T) {
	data := make([]byte, 301)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	want := refSum(data)

	for _, split := range [][]int{
		{301},
		{1, 300},
		{3, 5, 7, 286},
		{8, 8, 285},
		{150, 1, 1, 149},
	} {
		var s Sum
		rest := data
		for _, n := range split {
			s.Add(rest[:n])
			rest = rest[n:]
		}
		if got := s.Fold(); got != want {
			t.Errorf("split %v: Fold() = %#04x, want %#04x", split, got, want)
		}
	}
}

func TestFoldLargeCarry(t *testing.T) {
	if got := fold(131071); got != 2 {
		t.Errorf("fold(131071) = %d, want 2", got)
	}
	if got := fold(0xffff_ffff_ffff_ffff); got != 0xffff {
		t.Errorf("fold(max) = %#x, want 0xffff", got)
	}
}

// sctpPayload returns an SCTP packet of n bytes with a recognizable pattern.
func sctpPayload(n int) []byte {
	b := make([]byte, n)
	binary.BigEndian.PutUint16(b[0:], 5000)
	binary.BigEndian.PutUint16(b[2:], 6000)
	binary.BigEndian.PutUint32(b[4:], 0xdeadbeef)
	binary.BigEndian.PutUint32(b[8:], 0x12345678) // garbage checksum field
	for i := 12; i < n; i++ {
		b[i] = byte(i)
	}
	return b
}

func ipv4Header(payloadLen int) []byte {
	h := make([]byte, 20)
	h[0] = 0x45
	binary.BigEndian.PutUint16(h[2:], uint16(20+payloadLen))
	h[8] = 255
	h[9] = ProtocolSCTP
	copy(h[12:], []byte{10, 0, 0, 1, 10, 0, 0, 2})
	return h
}

func ipv6Header(payloadLen int, hbh bool) []byte {
	h := make([]byte, 40)
	h[0] = 0x60
	h[6] = ProtocolSCTP
	h[7] = 255
	h[8] = 0xfd
	h[23] = 1
	h[24] = 0xfd
	h[39] = 2
	if hbh {
		h[6] = ProtocolIPv6HopByHop
		ext := make([]byte, 8)
		ext[0] = ProtocolSCTP
		ext[2] = 1 // PadN
		h = append(h, ext...)
		payloadLen += 8
	}
	binary.BigEndian.PutUint16(h[4:], uint16(payloadLen))
	return h
}

// chain splits pkt into segments of the given sizes, with the last segment taking the rest.
func chain(pkt []byte, sizes ...int) *pktbuf.Buffer {
	var head, prev *pktbuf.Buffer
	for i := 0; len(pkt) > 0; i++ {
		n := len(pkt)
		if i < len(sizes) {
			n = min(sizes[i], n)
		}
		b := pktbuf.New(2048, 64)
		tail, _ := b.Put(n)
		copy(tail, pkt[:n])
		pkt = pkt[n:]
		if prev == nil {
			head = b
		} else {
			prev.SetNext(b)
		}
		prev = b
	}
	return head
}

func TestIPv4RoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name  string
		size  int
		split []int
	}{
		{"Single", 52, nil},
		{"OddTail", 53, nil},
		{"Chained", 200, []int{20 + 32}},
		{"OddSplits", 301, []int{20 + 17, 1, 33, 7}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			payload := sctpPayload(tc.size)
			pkt := append(ipv4Header(len(payload)), payload...)
			b := chain(pkt, tc.split...)

			sum := IPv4(b)
			if sum>>16 != 0 {
				t.Fatalf("IPv4() = %#x, upper half not zero", sum)
			}
			binary.BigEndian.PutUint32(b.Bytes()[20+8:], sum)
			if !VerifyIPv4(b) {
				t.Error("VerifyIPv4() = false after storing the computed checksum")
			}

			// The stored field must not influence the computation.
			if again := IPv4(b); again != sum {
				t.Errorf("recomputed IPv4() = %#x, want %#x", again, sum)
			}
		})
	}
}

func TestIPv4ChainExhaustedPanics(t *testing.T) {
	payload := sctpPayload(64)
	pkt := append(ipv4Header(len(payload)+16), payload...)
	b := chain(pkt)

	defer func() {
		if recover() == nil {
			t.Error("IPv4() did not panic on a short chain")
		}
	}()
	IPv4(b)
}

func TestIPv6RoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name  string
		hbh   bool
		split []int
	}{
		{"Plain", false, nil},
		{"HopByHop", true, nil},
		{"HopByHopChained", true, []int{40 + 8 + 13, 2}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			payload := sctpPayload(97)
			hdr := ipv6Header(len(payload), tc.hbh)
			pkt := append(hdr, payload...)
			b := chain(pkt, tc.split...)

			sum, bogus := IPv6(b)
			if bogus {
				t.Fatal("IPv6() reported bogus on a well-formed packet")
			}
			binary.BigEndian.PutUint32(b.Bytes()[len(hdr)+8:], sum)
			if !VerifyIPv6(b) {
				t.Error("VerifyIPv6() = false after storing the computed checksum")
			}
		})
	}
}

func TestIPv6Bogus(t *testing.T) {
	payload := sctpPayload(40)

	short := append(ipv6Header(len(payload)+32, false), payload...)
	if sum, bogus := IPv6(chain(short)); !bogus || sum != BogusSentinel {
		t.Errorf("short chain: IPv6() = %#x, %v, want %#x, true", sum, bogus, BogusSentinel)
	}

	hdr := ipv6Header(len(payload), true)
	hdr[40] = 17 // hop-by-hop not followed by SCTP
	if sum, bogus := IPv6(chain(append(hdr, payload...))); !bogus || sum != BogusSentinel {
		t.Errorf("foreign next header: IPv6() = %#x, %v, want %#x, true", sum, bogus, BogusSentinel)
	}
}

func TestCRC32C(t *testing.T) {
	payload := sctpPayload(77)
	pkt := append(ipv4Header(len(payload)), payload...)

	flat := append([]byte(nil), payload...)
	clear(flat[8:12])
	want := crc32.Checksum(flat, crc32.MakeTable(crc32.Castagnoli))

	b := chain(pkt, 20+9, 4)
	sum, bogus := CRC32C(b)
	if bogus || sum != want {
		t.Fatalf("CRC32C() = %#x, %v, want %#x, false", sum, bogus, want)
	}

	AlgorithmCRC32C.Put(b.Bytes()[20+8:], sum)
	if !AlgorithmCRC32C.Verify(b) {
		t.Error("Verify() = false after storing the computed CRC")
	}
	if got := binary.LittleEndian.Uint32(b.Bytes()[20+8:]); got != want {
		t.Errorf("stored field = %#x, want %#x", got, want)
	}
}

func TestAlgorithmText(t *testing.T) {
	for _, a := range []Algorithm{AlgorithmInternet, AlgorithmCRC32C} {
		text, _ := a.MarshalText()
		var got Algorithm
		if err := got.UnmarshalText(text); err != nil || got != a {
			t.Errorf("UnmarshalText(%q) = %v, %v, want %v", text, got, err, a)
		}
	}
	var a Algorithm
	if err := a.UnmarshalText([]byte("adler32")); err == nil {
		t.Error("UnmarshalText(adler32) succeeded")
	}
}
