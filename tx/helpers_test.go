package tx

import (
	"encoding/binary"
	"net/netip"
	"slices"
	"testing"
	"time"

	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/checksum"
	"github.com/database64128/sctptx-go/chunk"
	"github.com/database64128/sctptx-go/cookie"
	"github.com/database64128/sctptx-go/pktbuf"
	"github.com/database64128/sctptx-go/timer"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testRemoteTag = 0xa1b2c3d4
	testRcvLas    = 777
)

var (
	testLocal4  = netip.MustParseAddr("192.0.2.1")
	testRemote4 = netip.MustParseAddr("192.0.2.2")
	testLocal6  = netip.MustParseAddr("2001:db8::1")
	testRemote6 = netip.MustParseAddr("2001:db8::2")
)

// captureStage records submitted frames.
type captureStage struct {
	frames [][]*pktbuf.Buffer
}

func (s *captureStage) Frame() *Frame {
	return NewFrame()
}

func (s *captureStage) Submit(t *Thread, f *Frame) {
	s.frames = append(s.frames, slices.Clone(f.Buffers))
	f.Release()
}

func (s *captureStage) packets() []*pktbuf.Buffer {
	var all []*pktbuf.Buffer
	for _, f := range s.frames {
		all = append(all, f...)
	}
	return all
}

// seqTags returns its values in order, then repeats the last one.
type seqTags struct {
	vals []uint32
	i    int
}

func (s *seqTags) Uint32() uint32 {
	v := s.vals[min(s.i, len(s.vals)-1)]
	s.i++
	return v
}

type testEnv struct {
	e     *Engine
	t     *Thread
	pool  *pktbuf.Pool
	wheel *timer.Wheel
	v4    *captureStage
	v6    *captureStage
	mac   cookie.MAC
	now   time.Time
}

func newTestEnv(tb testing.TB, cfg Config, poolLimit int, tags ...uint32) *testEnv {
	tb.Helper()
	env := &testEnv{
		pool: pktbuf.NewPool(pktbuf.DefaultBufferSize, poolLimit),
		v4:   &captureStage{},
		v6:   &captureStage{},
		now:  time.Unix(1_700_000_000, 0),
	}
	mac, err := cookie.NewBLAKE2b(make([]byte, cookie.KeySize))
	if err != nil {
		tb.Fatal(err)
	}
	env.mac = mac
	env.wheel = timer.NewWheel(func() time.Time { return env.now })

	deps := Deps{
		MAC:       mac,
		Now:       func() time.Time { return env.now },
		IPLookup4: env.v4,
		IPLookup6: env.v6,
	}
	if len(tags) > 0 {
		deps.Tags = &seqTags{vals: tags}
	}

	env.e, err = cfg.NewEngine(zaptest.NewLogger(tb), deps)
	if err != nil {
		tb.Fatalf("NewEngine failed: %v", err)
	}
	env.t = NewThread(0, env.pool, assoc.NewTable(), env.wheel)
	return env
}

// newAssoc adds an association in the given state to the thread's table.
func (env *testEnv) newAssoc(tb testing.TB, id uint32, is4 bool, state assoc.State) *assoc.Association {
	tb.Helper()
	path := assoc.SubConn{
		Local:      testLocal4,
		Remote:     testRemote4,
		LocalPort:  chunk.PortFrom(5000),
		RemotePort: chunk.PortFrom(6000),
	}
	if !is4 {
		path.Local, path.Remote = testLocal6, testRemote6
	}
	a := env.e.NewAssociation(id, path)
	a.State = state
	a.RemoteTag = testRemoteTag
	a.LocalTag = 0x01010101
	a.RcvLas = testRcvLas
	a.SndNxt, a.SndUna = 1000, 1000
	if err := env.t.Assocs.Add(a); err != nil {
		tb.Fatal(err)
	}
	return a
}

func (env *testEnv) armed(a *assoc.Association, kind timer.Kind) bool {
	_, ok := env.wheel.Deadline(timer.Key{AssocID: a.ID, Path: a.Primary, Kind: kind})
	return ok
}

// sctpBytes returns the SCTP packet inside the finished IP packet b.
func sctpBytes(tb testing.TB, b *pktbuf.Buffer) []byte {
	tb.Helper()
	pkt := b.AppendTo(nil)
	off, length, ok := checksum.TransportOffset(pkt)
	if !ok {
		tb.Fatalf("malformed IP packet: %x", pkt)
	}
	if off+length != len(pkt) {
		tb.Fatalf("IP header declares %d bytes, packet has %d", off+length, len(pkt))
	}
	return pkt[off:]
}

// checkFraming verifies the chunk length and padding arithmetic of a single-chunk packet.
func checkFraming(tb testing.TB, b *pktbuf.Buffer) {
	tb.Helper()
	sctp := sctpBytes(tb, b)
	if len(sctp)%4 != 0 {
		tb.Errorf("SCTP packet length %d is not a multiple of 4", len(sctp))
	}
	length := int(binary.BigEndian.Uint16(sctp[chunk.CommonHeaderLen+2:]))
	alloc := chunk.CommonHeaderLen + length
	if want := len(sctp) - chunk.Padding(alloc); alloc != want {
		tb.Errorf("chunk length field %d, want %d", length, want-chunk.CommonHeaderLen)
	}
	for _, p := range sctp[alloc:] {
		if p != 0 {
			tb.Errorf("nonzero padding %x", sctp[alloc:])
			break
		}
	}
}

// decode parses the finished IP packet b with gopacket.
func decode(tb testing.TB, b *pktbuf.Buffer) gopacket.Packet {
	tb.Helper()
	data := b.AppendTo(nil)
	first := layers.LayerTypeIPv4
	if data[0]>>4 == 6 {
		first = layers.LayerTypeIPv6
	}
	pkt := gopacket.NewPacket(data, first, gopacket.Default)
	require.Nil(tb, pkt.ErrorLayer(), "decode error")
	require.NotNil(tb, pkt.Layer(layers.LayerTypeSCTP), "no SCTP layer")
	return pkt
}

func vtagOf(tb testing.TB, pkt gopacket.Packet) uint32 {
	tb.Helper()
	return pkt.Layer(layers.LayerTypeSCTP).(*layers.SCTP).VerificationTag
}

// rawChunk is a chunk of any type with a zero value of length n.
type rawChunk struct {
	typ chunk.Type
	n   int
}

func (c rawChunk) Type() chunk.Type { return c.typ }
func (rawChunk) Flags() uint8 { return 0 }
func (c rawChunk) ValueLen() int { return c.n }
func (c rawChunk) PutValue(b []byte) { clear(b) }
