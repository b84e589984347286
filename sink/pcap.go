package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/database64128/sctptx-go/tx"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// pcapSnapLen is the snapshot length written to the capture header.
const pcapSnapLen = 65535

// Pcap is a stage that records every packet in a pcap capture of raw IP packets.
//
// After recording, a frame is handed to the next stage if there is one.
// Otherwise its buffers are released.
type Pcap struct {
	logger  *zap.Logger
	next    tx.Stage
	now     func() time.Time
	mu      sync.Mutex
	bw      *bufio.Writer
	w       *pcapgo.Writer
	closer  io.Closer
	scratch []byte
	written uint64
}

// NewPcap starts a capture on w. next may be nil.
func NewPcap(logger *zap.Logger, w io.Writer, next tx.Stage) (*Pcap, error) {
	bw := bufio.NewWriter(w)
	pw := pcapgo.NewWriter(bw)
	if err := pw.WriteFileHeader(pcapSnapLen, layers.LinkTypeRaw); err != nil {
		return nil, fmt.Errorf("failed to write pcap file header: %w", err)
	}
	return &Pcap{
		logger: logger,
		next:   next,
		now:    time.Now,
		bw:     bw,
		w:      pw,
	}, nil
}

// OpenPcap creates or truncates the file at path and starts a capture in it.
func OpenPcap(logger *zap.Logger, path string, next tx.Stage) (*Pcap, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	p, err := NewPcap(logger, f, next)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.closer = f
	return p, nil
}

// Frame implements [tx.Stage.Frame].
func (p *Pcap) Frame() *tx.Frame {
	return tx.NewFrame()
}

// Submit implements [tx.Stage.Submit].
func (p *Pcap) Submit(t *tx.Thread, f *tx.Frame) {
	p.mu.Lock()
	ts := p.now()
	for _, b := range f.Buffers {
		p.scratch = b.AppendTo(p.scratch[:0])
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(p.scratch),
			Length:        len(p.scratch),
		}
		if err := p.w.WritePacket(ci, p.scratch); err != nil {
			p.logger.Warn("Failed to write packet to capture",
				zap.Int("thread", t.Index),
				zap.Uint32("assocID", b.Meta.AssocID),
				zap.Error(err),
			)
			continue
		}
		p.written++
	}
	p.mu.Unlock()

	if p.next != nil {
		p.next.Submit(t, f)
		return
	}
	release(t, f)
}

// Written returns the number of packets recorded so far.
func (p *Pcap) Written() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Close flushes the capture and closes the file opened by [OpenPcap].
func (p *Pcap) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.bw.Flush()
	if p.closer != nil {
		err = multierr.Append(err, p.closer.Close())
	}
	return err
}
