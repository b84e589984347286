package sink

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"unsafe"

	"github.com/database64128/sctptx-go/conn"
	"github.com/database64128/sctptx-go/pktbuf"
	"github.com/database64128/sctptx-go/tx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// rawWriter sends the frames of one address family.
type rawWriter struct {
	mu     sync.Mutex
	c      *conn.MmsgWConn
	msgvec []conn.Mmsghdr
	iovs   []unix.Iovec
	names4 []unix.RawSockaddrInet4
	names6 []unix.RawSockaddrInet6
}

// Raw is a stage that sends finished IP packets on raw sockets with sendmmsg(2).
// Every segment of a buffer chain becomes one iovec, so chains are sent without copying.
type Raw struct {
	logger  *zap.Logger
	writers [2]rawWriter
}

// NewRaw opens the raw sockets. It requires CAP_NET_RAW.
func (rc RawConfig) NewRaw(ctx context.Context, logger *zap.Logger) (*Raw, error) {
	sendBufferSize := rc.SendBufferSize
	if sendBufferSize == 0 {
		sendBufferSize = conn.DefaultRawSocketBufferSize
	}
	lc := conn.RawSocketOptions{
		SendBufferSize: sendBufferSize,
		Fwmark:         rc.Fwmark,
		HeaderIncluded: true,
	}.ListenConfig()

	r := &Raw{logger: logger}
	for fam, network := range [...]string{tx.FamilyIPv4: "ip4", tx.FamilyIPv6: "ip6"} {
		if (fam == int(tx.FamilyIPv4) && rc.DisableIPv4) || (fam == int(tx.FamilyIPv6) && rc.DisableIPv6) {
			continue
		}
		c, err := lc.ListenRawIP(ctx, network)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to open %s raw socket: %w", network, err), r.Close())
		}
		r.writers[fam].c = c.WConn()
	}
	return r, nil
}

// Frame implements [tx.Stage.Frame].
func (r *Raw) Frame() *tx.Frame {
	return tx.NewFrame()
}

// Submit implements [tx.Stage.Submit].
func (r *Raw) Submit(t *tx.Thread, f *tx.Frame) {
	w := &r.writers[f.Family]
	if w.c == nil {
		if ce := r.logger.Check(zap.DebugLevel, "Dropped frame for disabled address family"); ce != nil {
			ce.Write(
				zap.Int("thread", t.Index),
				zap.Stringer("family", f.Family),
				zap.Int("packets", len(f.Buffers)),
			)
		}
		release(t, f)
		return
	}

	var (
		dropped int
		err     error
	)
	w.mu.Lock()
	if msgvec := w.prepare(f); len(msgvec) > 0 {
		dropped, err = w.c.WriteMsgs(msgvec, 0)
	}
	w.reset()
	w.mu.Unlock()

	if err != nil {
		r.logger.Warn("Failed to send packets",
			zap.Int("thread", t.Index),
			zap.Stringer("family", f.Family),
			zap.Int("packets", len(f.Buffers)),
			zap.Int("dropped", dropped),
			zap.Error(err),
		)
	}
	release(t, f)
}

// prepare fills the msgvec with the frame's packets.
// The returned msgvec points into w's scratch space and f's buffers.
func (w *rawWriter) prepare(f *tx.Frame) []conn.Mmsghdr {
	var nseg int
	for _, b := range f.Buffers {
		for seg := range b.Segments() {
			if len(seg) > 0 {
				nseg++
			}
		}
	}

	// Size every scratch slice up front, so taking element addresses is safe.
	w.iovs = slices.Grow(w.iovs[:0], nseg)
	w.msgvec = slices.Grow(w.msgvec[:0], len(f.Buffers))
	if f.Family == tx.FamilyIPv4 {
		w.names4 = slices.Grow(w.names4[:0], len(f.Buffers))
	} else {
		w.names6 = slices.Grow(w.names6[:0], len(f.Buffers))
	}

	for _, b := range f.Buffers {
		dst, ok := destination(b)
		if !ok || b.TotalLen() == 0 {
			continue
		}

		var msg conn.Mmsghdr
		if f.Family == tx.FamilyIPv4 {
			w.names4 = append(w.names4, conn.AddrToSockaddrInet4(dst))
			msg.Msghdr.Name = (*byte)(unsafe.Pointer(&w.names4[len(w.names4)-1]))
			msg.Msghdr.Namelen = unix.SizeofSockaddrInet4
		} else {
			w.names6 = append(w.names6, conn.AddrToSockaddrInet6(dst))
			msg.Msghdr.Name = (*byte)(unsafe.Pointer(&w.names6[len(w.names6)-1]))
			msg.Msghdr.Namelen = unix.SizeofSockaddrInet6
		}

		start := len(w.iovs)
		for seg := range b.Segments() {
			if len(seg) == 0 {
				continue
			}
			iov := unix.Iovec{Base: unsafe.SliceData(seg)}
			iov.SetLen(len(seg))
			w.iovs = append(w.iovs, iov)
		}
		msg.Msghdr.Iov = &w.iovs[start]
		msg.Msghdr.SetIovlen(len(w.iovs) - start)
		w.msgvec = append(w.msgvec, msg)
	}
	return w.msgvec
}

// reset clears the pointers held by the scratch space.
func (w *rawWriter) reset() {
	clear(w.msgvec)
	clear(w.iovs)
	w.msgvec = w.msgvec[:0]
	w.iovs = w.iovs[:0]
	w.names4 = w.names4[:0]
	w.names6 = w.names6[:0]
}

// destination returns the destination address in the IP header at the start of b.
func destination(b *pktbuf.Buffer) (netip.Addr, bool) {
	hdr := b.Bytes()
	if len(hdr) == 0 {
		return netip.Addr{}, false
	}
	switch hdr[0] >> 4 {
	case ipv4.Version:
		if len(hdr) < ipv4.HeaderLen {
			return netip.Addr{}, false
		}
		return netip.AddrFrom4([4]byte(hdr[16:20])), true
	case ipv6.Version:
		if len(hdr) < ipv6.HeaderLen {
			return netip.Addr{}, false
		}
		return netip.AddrFrom16([16]byte(hdr[24:40])), true
	default:
		return netip.Addr{}, false
	}
}

// Close closes the raw sockets.
func (r *Raw) Close() error {
	var err error
	for i := range r.writers {
		if c := r.writers[i].c; c != nil {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
