package chunk

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePacket returns an SCTP packet carrying c.
func encodePacket(t *testing.T, vtag uint32, c Chunk) []byte {
	t.Helper()
	b := make([]byte, CommonHeaderLen+WireLen(c))
	CommonHeader{
		SrcPort:         PortFrom(5000),
		DstPort:         PortFrom(6000),
		VerificationTag: vtag,
	}.Put(b)
	_, err := Put(b[CommonHeaderLen:], c)
	require.NoError(t, err)
	return b
}

func decodeSCTP(t *testing.T, b []byte) gopacket.Packet {
	t.Helper()
	pkt := gopacket.NewPacket(b, layers.LayerTypeSCTP, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer(), "decode error")
	sctp, ok := pkt.Layer(layers.LayerTypeSCTP).(*layers.SCTP)
	require.True(t, ok)
	assert.Equal(t, layers.SCTPPort(5000), sctp.SrcPort)
	assert.Equal(t, layers.SCTPPort(6000), sctp.DstPort)
	return pkt
}

func TestInteropInit(t *testing.T) {
	c := Init{
		InitiateTag:     0xcafebabe,
		ARwnd:           1 << 20,
		OutboundStreams: 10,
		InboundStreams:  2048,
		InitialTSN:      0xcafebabe,
		Params:          []Param{IPv4Address{192, 0, 2, 1}},
	}
	pkt := decodeSCTP(t, encodePacket(t, 0, c))

	l, ok := pkt.Layer(layers.LayerTypeSCTPInit).(*layers.SCTPInit)
	require.True(t, ok, "no INIT layer")
	assert.Equal(t, c.InitiateTag, l.InitiateTag)
	assert.Equal(t, c.ARwnd, l.AdvertisedReceiverWindowCredit)
	assert.Equal(t, c.OutboundStreams, l.OutboundStreams)
	assert.Equal(t, c.InboundStreams, l.InboundStreams)
	assert.Equal(t, c.InitialTSN, l.InitialTSN)
	require.Len(t, l.Parameters, 1)
	assert.Equal(t, uint16(ParamIPv4Address), l.Parameters[0].Type)
	assert.Equal(t, []byte{192, 0, 2, 1}, l.Parameters[0].Value)
}

func TestInteropInitAckCookie(t *testing.T) {
	sc := StateCookie{CreationTime: 1, Lifespan: 60000, LocalTag: 2, PeerTag: 3}
	c := InitAck{InitiateTag: 7, InitialTSN: 7, Params: []Param{sc}}
	pkt := decodeSCTP(t, encodePacket(t, 3, c))

	l, ok := pkt.Layer(layers.LayerTypeSCTPInitAck).(*layers.SCTPInit)
	require.True(t, ok, "no INIT_ACK layer")
	require.Len(t, l.Parameters, 1)
	assert.Equal(t, uint16(ParamStateCookie), l.Parameters[0].Type)

	parsed, err := ParseStateCookie(l.Parameters[0].Value)
	require.NoError(t, err)
	assert.Equal(t, sc, parsed)
}

func TestInteropCookieEcho(t *testing.T) {
	cookie := []byte("opaque state cookie")
	pkt := decodeSCTP(t, encodePacket(t, 9, CookieEcho{Cookie: cookie}))

	l, ok := pkt.Layer(layers.LayerTypeSCTPCookieEcho).(*layers.SCTPCookieEcho)
	require.True(t, ok, "no COOKIE_ECHO layer")
	assert.Equal(t, cookie, l.Cookie)
	assert.Equal(t, uint16(HeaderLen+len(cookie)), l.Length)
	assert.Equal(t, 24, l.ActualLength)
}

func TestInteropSackShutdown(t *testing.T) {
	pkt := decodeSCTP(t, encodePacket(t, 9, Sack{CumulativeTSNAck: 100, ARwnd: 4096}))
	sack, ok := pkt.Layer(layers.LayerTypeSCTPSack).(*layers.SCTPSack)
	require.True(t, ok, "no SACK layer")
	assert.Equal(t, uint32(100), sack.CumulativeTSNAck)
	assert.Equal(t, uint32(4096), sack.AdvertisedReceiverWindowCredit)
	assert.Zero(t, sack.NumGapACKs)
	assert.Zero(t, sack.NumDuplicateTSNs)

	pkt = decodeSCTP(t, encodePacket(t, 9, Shutdown{CumulativeTSNAck: 55}))
	sd, ok := pkt.Layer(layers.LayerTypeSCTPShutdown).(*layers.SCTPShutdown)
	require.True(t, ok, "no SHUTDOWN layer")
	assert.Equal(t, uint32(55), sd.CumulativeTSNAck)
}

func TestInteropEmptyChunks(t *testing.T) {
	for _, tc := range []struct {
		chunk Chunk
		layer gopacket.LayerType
	}{
		{CookieAck{}, layers.LayerTypeSCTPCookieAck},
		{ShutdownAck{}, layers.LayerTypeSCTPShutdownAck},
		{ShutdownComplete{}, layers.LayerTypeSCTPShutdownComplete},
	} {
		t.Run(tc.chunk.Type().String(), func(t *testing.T) {
			pkt := decodeSCTP(t, encodePacket(t, 9, tc.chunk))
			l, ok := pkt.Layer(tc.layer).(*layers.SCTPEmptyLayer)
			require.True(t, ok, "no %v layer", tc.layer)
			assert.Equal(t, uint16(HeaderLen), l.Length)
		})
	}
}
