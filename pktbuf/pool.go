package pktbuf

import "slices"

// DefaultBufferSize is the default size of a buffer's backing array.
const DefaultBufferSize = 2048

// Pool is a bounded free list of buffers owned by one thread.
//
// Pool is not safe for concurrent use. Each worker thread owns its own pool.
type Pool struct {
	bufSize  int
	headroom int
	limit    int
	created  int
	free     []*Buffer
}

// NewPool returns a pool that hands out at most limit buffers of bufSize bytes each.
func NewPool(bufSize, limit int) *Pool {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Pool{
		bufSize:  bufSize,
		headroom: min(DefaultHeadroom, bufSize),
		limit:    limit,
	}
}

// Available returns the number of buffers that can still be allocated.
func (p *Pool) Available() int {
	return len(p.free) + p.limit - p.created
}

// Alloc appends up to n buffers to dst and returns the extended slice.
// Fewer than n buffers are appended when the pool runs out.
func (p *Pool) Alloc(dst []*Buffer, n int) []*Buffer {
	n = min(n, p.Available())
	if n <= 0 {
		return dst
	}

	dst, tail := extend(dst, n)
	for i := range tail {
		if last := len(p.free) - 1; last >= 0 {
			tail[i] = p.free[last]
			p.free[last] = nil
			p.free = p.free[:last]
			continue
		}
		tail[i] = New(p.bufSize, p.headroom)
		p.created++
	}
	return dst
}

// Release returns b and every segment chained after it to the pool.
func (p *Pool) Release(b *Buffer) {
	for b != nil {
		next := b.Next()
		b.reset(p.headroom)
		p.free = append(p.free, b)
		b = next
	}
}

// Reset prepares b for reuse as the head of a new packet:
// chained segments are released, metadata is cleared,
// and the window is emptied with [DefaultHeadroom] bytes of headroom.
func (p *Pool) Reset(b *Buffer) {
	if next := b.Next(); next != nil {
		p.Release(next)
	}
	b.reset(p.headroom)
}

// extend grows s by n elements and returns the grown slice and its new tail.
func extend(s []*Buffer, n int) (head, tail []*Buffer) {
	head = slices.Grow(s, n)[:len(s)+n]
	return head, head[len(s):]
}
