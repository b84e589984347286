package tx

import (
	"time"

	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/chunk"
	"github.com/database64128/sctptx-go/cookie"
	"github.com/database64128/sctptx-go/pktbuf"
)

// pushChunk prepends the common header and c to b.
//
// The allocation is the common header plus the chunk, padded to a multiple of 4.
// The chunk length field covers everything after the common header except the padding.
func pushChunk(b *pktbuf.Buffer, a *assoc.Association, path int, vtag uint32, c chunk.Chunk) error {
	alloc := chunk.CommonHeaderLen + chunk.Len(c)
	hdr, err := b.Push(alloc + chunk.Padding(alloc))
	if err != nil {
		return err
	}

	sc := a.Path(path)
	chunk.CommonHeader{
		SrcPort:         sc.LocalPort,
		DstPort:         sc.RemotePort,
		VerificationTag: vtag,
	}.Put(hdr)
	if _, err = chunk.Put(hdr[chunk.CommonHeaderLen:], c); err != nil {
		return err
	}

	b.Meta.AssocID = a.ID
	b.Meta.L4Offset = b.Offset()
	return nil
}

// prepareInit writes an INIT chunk with a fresh initiate tag.
// The tag also becomes the association's local tag and initial TSN.
func (e *Engine) prepareInit(b *pktbuf.Buffer, a *assoc.Association, path int) error {
	tag := e.newTag()
	c := chunk.Init{
		InitiateTag:     tag,
		ARwnd:           e.cfg.ARwnd,
		OutboundStreams: e.cfg.OutboundStreams,
		InboundStreams:  e.cfg.InboundStreams,
		InitialTSN:      tag,
		Params:          []chunk.Param{chunk.AddressParam(a.Path(path).Local)},
	}
	// The peer's tag is unknown until INIT_ACK arrives.
	if err := pushChunk(b, a, path, 0, c); err != nil {
		return err
	}
	a.LocalTag = tag
	a.SndNxt = tag
	a.SndUna = tag
	return nil
}

// prepareInitAck writes an INIT_ACK chunk answering an INIT whose fields
// have been recorded in a.RemoteTag.
//
// The chunk carries a state cookie sealed with the engine's MAC
// and the local addresses of every path.
// prepareInitAck builds an INIT_ACK answering an INIT with the given initiate tag.
// It returns the new local tag. The association is not modified.
func (e *Engine) prepareInitAck(b *pktbuf.Buffer, a *assoc.Association, path int, peerTag uint32) (uint32, error) {
	tag := e.newTag()
	sc := cookie.New(e.mac, e.now(), time.Duration(e.cfg.CookieLifespan), tag, peerTag)

	params := make([]chunk.Param, 0, 1+len(a.Paths))
	params = append(params, sc)
	params = append(params, chunk.AddressParam(a.Path(path).Local))
	for i := range a.Paths {
		if i != path && a.Paths[i].Local != a.Path(path).Local {
			params = append(params, chunk.AddressParam(a.Paths[i].Local))
		}
	}

	c := chunk.InitAck{
		InitiateTag:     tag,
		ARwnd:           e.cfg.ARwnd,
		OutboundStreams: e.cfg.OutboundStreams,
		InboundStreams:  e.cfg.InboundStreams,
		InitialTSN:      tag,
		Params:          params,
	}
	if err := pushChunk(b, a, path, peerTag, c); err != nil {
		return 0, err
	}
	return tag, nil
}

func (e *Engine) prepareCookieEcho(b *pktbuf.Buffer, a *assoc.Association, path int) error {
	return pushChunk(b, a, path, a.RemoteTag, chunk.CookieEcho{Cookie: a.PeerCookie})
}

func (e *Engine) prepareCookieAck(b *pktbuf.Buffer, a *assoc.Association, path int) error {
	return pushChunk(b, a, path, a.RemoteTag, chunk.CookieAck{})
}

func (e *Engine) prepareSack(b *pktbuf.Buffer, a *assoc.Association, path int) error {
	return pushChunk(b, a, path, a.RemoteTag, chunk.Sack{
		CumulativeTSNAck: a.RcvLas,
		ARwnd:            e.cfg.ARwnd,
	})
}

func (e *Engine) prepareShutdown(b *pktbuf.Buffer, a *assoc.Association, path int) error {
	return pushChunk(b, a, path, a.RemoteTag, chunk.Shutdown{CumulativeTSNAck: a.RcvLas})
}

func (e *Engine) prepareShutdownAck(b *pktbuf.Buffer, a *assoc.Association, path int) error {
	return pushChunk(b, a, path, a.RemoteTag, chunk.ShutdownAck{})
}

func (e *Engine) prepareShutdownComplete(b *pktbuf.Buffer, a *assoc.Association, path int) error {
	return pushChunk(b, a, path, a.RemoteTag, chunk.ShutdownComplete{})
}

// PushHeader frames the payload already in b's chain as a DATA chunk.
//
// The payload length and padding are computed over the whole chain.
// Padding is appended as zero bytes to the last segment.
// TSN, stream and PPID fields come from d; d.PayloadLen is ignored.
// The association is not modified. An RTT measurement starts only
// once the transmit state machine accepts the chunk.
func (e *Engine) PushHeader(t *Thread, a *assoc.Association, b *pktbuf.Buffer, d chunk.Data) error {
	d.PayloadLen = b.TotalLen()
	if d.Len() > 0xffff {
		return chunk.ErrBadLength
	}

	const hdrLen = chunk.CommonHeaderLen + chunk.DataHeaderLen
	pad := chunk.Padding(d.Len())
	last := b.Last()
	if b.Headroom() < hdrLen {
		return pktbuf.ErrNoHeadroom
	}
	if last.Tailroom() < pad {
		return pktbuf.ErrNoTailroom
	}

	tail, _ := last.Put(pad)
	clear(tail)
	hdr, _ := b.Push(hdrLen)

	path := a.PathForChunk(chunk.TypeData)
	sc := a.Path(path)
	chunk.CommonHeader{
		SrcPort:         sc.LocalPort,
		DstPort:         sc.RemotePort,
		VerificationTag: a.RemoteTag,
	}.Put(hdr)
	if err := d.PutHeader(hdr[chunk.CommonHeaderLen:]); err != nil {
		return err
	}

	b.Meta.AssocID = a.ID
	b.Meta.L4Offset = b.Offset()
	return nil
}
