package tx

import (
	"encoding/binary"
	"fmt"
	"slices"
	"testing"

	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/checksum"
	"github.com/database64128/sctptx-go/chunk"
	"github.com/database64128/sctptx-go/pktbuf"
	"github.com/database64128/sctptx-go/timer"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStates = []assoc.State{
	assoc.StateClosed,
	assoc.StateCookieWait,
	assoc.StateCookieEchoed,
	assoc.StateEstablished,
	assoc.StateShutdownPending,
	assoc.StateShutdownSent,
	assoc.StateShutdownReceived,
	assoc.StateShutdownAckSent,
}

var allChunkTypes = []chunk.Type{
	chunk.TypeData,
	chunk.TypeInit,
	chunk.TypeInitAck,
	chunk.TypeSack,
	chunk.TypeHeartbeat,
	chunk.TypeHeartbeatAck,
	chunk.TypeAbort,
	chunk.TypeShutdown,
	chunk.TypeShutdownAck,
	chunk.TypeError,
	chunk.TypeCookieEcho,
	chunk.TypeCookieAck,
	chunk.TypeShutdownComplete,
}

type legalStep struct {
	next assoc.State
	arm  timer.Kind
	// armed is false when no timer is armed.
	armed bool
}

// legal lists every chunk type the transmit state machine accepts, per state.
var legal = map[assoc.State]map[chunk.Type]legalStep{
	assoc.StateClosed: {
		chunk.TypeInit:    {next: assoc.StateClosed},
		chunk.TypeInitAck: {next: assoc.StateClosed},
	},
	assoc.StateCookieWait: {
		chunk.TypeCookieEcho: {assoc.StateCookieEchoed, timer.T1Cookie, true},
	},
	assoc.StateCookieEchoed: {
		chunk.TypeCookieEcho: {assoc.StateCookieEchoed, timer.T1Cookie, true},
	},
	assoc.StateEstablished: {
		chunk.TypeData:         {next: assoc.StateEstablished},
		chunk.TypeHeartbeat:    {next: assoc.StateEstablished},
		chunk.TypeHeartbeatAck: {next: assoc.StateEstablished},
		chunk.TypeSack:         {next: assoc.StateEstablished},
		chunk.TypeCookieAck:    {next: assoc.StateEstablished},
		chunk.TypeShutdown:     {assoc.StateShutdownSent, timer.T2Shutdown, true},
	},
	assoc.StateShutdownPending: {
		chunk.TypeData:         {next: assoc.StateShutdownPending},
		chunk.TypeSack:         {next: assoc.StateShutdownPending},
		chunk.TypeHeartbeat:    {next: assoc.StateShutdownPending},
		chunk.TypeHeartbeatAck: {next: assoc.StateShutdownPending},
		chunk.TypeShutdown:     {assoc.StateShutdownSent, timer.T2Shutdown, true},
	},
	assoc.StateShutdownSent: {
		chunk.TypeSack:         {next: assoc.StateShutdownSent},
		chunk.TypeHeartbeatAck: {next: assoc.StateShutdownSent},
		chunk.TypeShutdown:     {assoc.StateShutdownSent, timer.T2Shutdown, true},
		chunk.TypeShutdownAck:  {assoc.StateShutdownAckSent, timer.T2Shutdown, true},
	},
	assoc.StateShutdownReceived: {
		chunk.TypeData:         {next: assoc.StateShutdownReceived},
		chunk.TypeSack:         {next: assoc.StateShutdownReceived},
		chunk.TypeHeartbeatAck: {next: assoc.StateShutdownReceived},
		chunk.TypeShutdownAck:  {assoc.StateShutdownAckSent, timer.T2Shutdown, true},
	},
	assoc.StateShutdownAckSent: {
		chunk.TypeShutdownAck:      {assoc.StateShutdownAckSent, timer.T2Shutdown, true},
		chunk.TypeShutdownComplete: {next: assoc.StateShutdownAckSent},
	},
}

// newChunkPacket frames c for a and returns the buffer, ready for the output stage.
func (env *testEnv) newChunkPacket(tb testing.TB, a *assoc.Association, c chunk.Chunk) *pktbuf.Buffer {
	tb.Helper()
	b, err := env.e.getBuffer(env.t)
	require.NoError(tb, err)
	require.NoError(tb, pushChunk(b, a, a.PathForState(), a.RemoteTag, c))
	return b
}

func TestOutputLegality(t *testing.T) {
	states := append(slices.Clone(allStates), assoc.State(99))
	for _, state := range states {
		for _, ct := range allChunkTypes {
			t.Run(fmt.Sprintf("%s/%s", state, ct), func(t *testing.T) {
				env := newTestEnv(t, Config{}, 8)
				a := env.newAssoc(t, 7, true, state)

				env.e.EnqueueOutput(env.t, env.newChunkPacket(t, a, rawChunk{typ: ct, n: 5}), true)
				env.e.FlushThread(env.t)

				want, ok := legal[state][ct]
				if !ok {
					code := CodeUnknownChunk
					if state == assoc.State(99) {
						code = CodeInvalidState
					}
					assert.Empty(t, env.v4.frames, "rejected chunk left the state machine")
					assert.Equal(t, uint64(1), env.t.Count(code))
					assert.Zero(t, env.t.Count(CodePktsSent))
					assert.Equal(t, state, a.State)
					assert.Zero(t, env.wheel.Len())
					assert.Equal(t, 8, env.pool.Available()+len(env.t.txBuffers), "dropped buffer not released")
					return
				}

				pkts := env.v4.packets()
				require.Len(t, pkts, 1)
				b := pkts[0]
				checkFraming(t, b)
				assert.True(t, checksum.VerifyIPv4(b))
				assert.Equal(t, pktbuf.FlagLocallyOriginated, b.Meta.Flags&pktbuf.FlagLocallyOriginated)
				assert.Equal(t, uint64(1), env.t.Count(CodePktsSent))
				assert.Equal(t, want.next, a.State)
				if want.armed {
					assert.True(t, env.armed(a, want.arm), "%v not armed", want.arm)
					assert.Equal(t, 1, env.wheel.Len())
				} else {
					assert.Zero(t, env.wheel.Len())
				}
			})
		}
	}
}

func TestOutputPorts(t *testing.T) {
	for _, tc := range []struct {
		name     string
		src, dst uint16
		accept   bool
	}{
		{"Forward", 5000, 6000, true},
		{"Reversed", 6000, 5000, true},
		{"WrongSource", 5001, 6000, false},
		{"WrongDestination", 5000, 6001, false},
		{"Unrelated", 1, 2, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Config{}, 8)
			a := env.newAssoc(t, 1, true, assoc.StateEstablished)

			// Frame the chunk with a copy whose ports are overridden.
			framed := *a
			framed.Paths = []assoc.SubConn{a.Paths[0]}
			framed.Paths[0].LocalPort = chunk.PortFrom(tc.src)
			framed.Paths[0].RemotePort = chunk.PortFrom(tc.dst)

			env.e.EnqueueOutput(env.t, env.newChunkPacket(t, &framed, chunk.Sack{CumulativeTSNAck: 1}), true)
			env.e.FlushThread(env.t)

			if tc.accept {
				assert.Len(t, env.v4.packets(), 1)
				assert.Zero(t, env.t.Count(CodeUnknownChunk))
			} else {
				assert.Empty(t, env.v4.frames)
				assert.Equal(t, uint64(1), env.t.Count(CodeUnknownChunk))
			}
		})
	}
}

func TestOutputInvalidConnection(t *testing.T) {
	env := newTestEnv(t, Config{}, 8)
	a := env.newAssoc(t, 1, true, assoc.StateEstablished)
	b := env.newChunkPacket(t, a, chunk.Sack{})
	b.Meta.AssocID = 42

	env.e.EnqueueOutput(env.t, b, true)
	env.e.FlushThread(env.t)

	assert.Empty(t, env.v4.frames)
	assert.Empty(t, env.v6.frames)
	assert.Equal(t, uint64(1), env.t.Count(CodeInvalidConnection))
}

func TestOutputBogusChecksum(t *testing.T) {
	env := newTestEnv(t, Config{}, 8)
	a := env.newAssoc(t, 1, false, assoc.StateEstablished)
	b := env.newChunkPacket(t, a, chunk.Sack{})

	// Declare more payload than the chain holds.
	require.NoError(t, pushIPv6Header(b, a.Path(0)))
	hdr := b.Bytes()
	binary.BigEndian.PutUint16(hdr[4:6], binary.BigEndian.Uint16(hdr[4:6])+100)

	env.e.EnqueueOutput(env.t, b, true)
	env.e.FlushThread(env.t)

	assert.Empty(t, env.v6.frames)
	assert.Equal(t, uint64(1), env.t.Count(CodeBogusChecksum))
	assert.Zero(t, env.t.Count(CodePktsSent))
}

func TestPushHeaderChained(t *testing.T) {
	for _, tc := range []struct {
		name       string
		head, tail int
	}{
		{"Aligned", 8, 12},
		{"Pad1", 10, 9},
		{"Pad3", 10, 7},
		{"EmptyTail", 13, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Config{}, 8)
			a := env.newAssoc(t, 1, true, assoc.StateEstablished)

			head, err := env.e.getBuffer(env.t)
			require.NoError(t, err)
			tail, err := env.e.getBuffer(env.t)
			require.NoError(t, err)

			payload := make([]byte, tc.head+tc.tail)
			for i := range payload {
				payload[i] = byte(i + 1)
			}
			p, err := head.Put(tc.head)
			require.NoError(t, err)
			copy(p, payload)
			p, err = tail.Put(tc.tail)
			require.NoError(t, err)
			copy(p, payload[tc.head:])
			head.SetNext(tail)

			d := chunk.Data{
				Beginning: true,
				Ending:    true,
				TSN:       1000,
				StreamID:  3,
				StreamSeq: 9,
				PPID:      51,
			}
			require.NoError(t, env.e.PushHeader(env.t, a, head, d))
			assert.Zero(t, a.RTTTime, "RTT measurement started before acceptance")

			env.e.EnqueueOutput(env.t, head, true)
			env.e.FlushThread(env.t)
			assert.Equal(t, env.now, a.RTTTime, "RTT measurement not started")
			assert.Equal(t, uint32(1000), a.RTTSeq)

			pkts := env.v4.packets()
			require.Len(t, pkts, 1)
			b := pkts[0]
			checkFraming(t, b)
			assert.True(t, checksum.VerifyIPv4(b))

			pkt := decode(t, b)
			dl, ok := pkt.Layer(layers.LayerTypeSCTPData).(*layers.SCTPData)
			require.True(t, ok, "no DATA layer")
			assert.Equal(t, uint16(chunk.DataHeaderLen+len(payload)), dl.Length)
			assert.Equal(t, uint32(1000), dl.TSN)
			assert.Equal(t, uint16(3), dl.StreamId)
			assert.Equal(t, uint16(9), dl.StreamSequence)
			assert.Equal(t, layers.SCTPPayloadProtocol(51), dl.PayloadProtocol)
			assert.True(t, dl.BeginFragment)
			assert.True(t, dl.EndFragment)
			assert.False(t, dl.Unordered)
			assert.Equal(t, payload, dl.LayerPayload())
		})
	}
}

func TestPushHeaderKeepsRTTSample(t *testing.T) {
	env := newTestEnv(t, Config{}, 8)
	a := env.newAssoc(t, 1, true, assoc.StateEstablished)
	started := env.now.Add(-1)
	a.RTTTime, a.RTTSeq = started, 5

	b, err := env.e.getBuffer(env.t)
	require.NoError(t, err)
	_, err = b.Put(4)
	require.NoError(t, err)
	require.NoError(t, env.e.PushHeader(env.t, a, b, chunk.Data{TSN: 1000}))
	env.e.EnqueueOutput(env.t, b, true)
	env.e.FlushThread(env.t)

	require.Len(t, env.v4.packets(), 1)
	assert.Equal(t, started, a.RTTTime)
	assert.Equal(t, uint32(5), a.RTTSeq)
}

func TestRejectedDataLeavesRTTUnset(t *testing.T) {
	env := newTestEnv(t, Config{}, 8)
	a := env.newAssoc(t, 1, true, assoc.StateCookieWait)

	b, err := env.e.getBuffer(env.t)
	require.NoError(t, err)
	_, err = b.Put(4)
	require.NoError(t, err)
	require.NoError(t, env.e.PushHeader(env.t, a, b, chunk.Data{TSN: 1000}))
	env.e.EnqueueOutput(env.t, b, true)
	env.e.FlushThread(env.t)

	assert.Empty(t, env.v4.frames)
	assert.Zero(t, a.RTTTime)
	assert.Zero(t, a.RTTSeq)
	assert.Equal(t, uint64(1), env.t.Count(CodeUnknownChunk))
}

func TestPushHeaderNoTailroom(t *testing.T) {
	env := newTestEnv(t, Config{}, 8)
	a := env.newAssoc(t, 1, true, assoc.StateEstablished)

	b, err := env.e.getBuffer(env.t)
	require.NoError(t, err)
	_, err = b.Put(b.Tailroom())
	require.NoError(t, err)
	if b.Len()%4 == 0 {
		b.Advance(1)
	}

	// The payload needs padding but the segment is full.
	assert.ErrorIs(t, env.e.PushHeader(env.t, a, b, chunk.Data{}), pktbuf.ErrNoTailroom)
}
