// Package pktbuf provides the packet buffer used throughout the transmit path.
//
// A [Buffer] owns a fixed backing array and exposes a data window into it.
// Headers are prepended by moving the window start backwards into the headroom,
// and trailing bytes are appended by growing the window into the tailroom.
// Payload that does not fit in one buffer is carried in a chain of segments.
package pktbuf

import (
	"errors"
	"iter"
)

// DefaultHeadroom is the headroom reserved by [Pool.Reset] for protocol headers.
const DefaultHeadroom = 256

var (
	ErrNoHeadroom = errors.New("not enough headroom")
	ErrNoTailroom = errors.New("not enough tailroom")
)

// Flags are per-buffer state bits.
type Flags uint8

const (
	// FlagNextPresent indicates that the next segment pointer is valid.
	FlagNextPresent Flags = 1 << iota

	// FlagLocallyOriginated marks packets generated by this host.
	FlagLocallyOriginated

	// FlagL3HeaderPresent marks packets whose IP header has already been pushed.
	FlagL3HeaderPresent
)

// Meta is the side metadata carried with a packet between pipeline stages.
type Meta struct {
	// AssocID identifies the association that owns the packet,
	// so that later stages can resolve it without parsing the wire header.
	AssocID uint32

	// Flags holds per-packet state bits.
	Flags Flags

	// L3Offset is the offset of the IP header from the start of the backing array.
	L3Offset int

	// L4Offset is the offset of the SCTP common header from the start of the backing array.
	L4Offset int

	// Error is the cause code set by the stage that dropped the packet.
	Error uint8
}

// Buffer is one segment of an outbound packet.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	data  []byte
	start int
	n     int
	next  *Buffer
	Meta  Meta
}

// New returns a buffer with a backing array of size bytes and the given headroom.
func New(size, headroom int) *Buffer {
	b := &Buffer{data: make([]byte, size)}
	b.MakeHeadroom(headroom)
	return b
}

// Bytes returns the current data window.
func (b *Buffer) Bytes() []byte {
	return b.data[b.start : b.start+b.n]
}

// Len returns the length of the current data window.
func (b *Buffer) Len() int {
	return b.n
}

// Offset returns the offset of the data window from the start of the backing array.
func (b *Buffer) Offset() int {
	return b.start
}

// Headroom returns the number of bytes available before the data window.
func (b *Buffer) Headroom() int {
	return b.start
}

// Tailroom returns the number of bytes available after the data window.
func (b *Buffer) Tailroom() int {
	return len(b.data) - b.start - b.n
}

// Cap returns the size of the backing array.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// MakeHeadroom empties the data window and places it headroom bytes into the backing array.
// headroom is clamped to the size of the backing array.
func (b *Buffer) MakeHeadroom(headroom int) {
	b.start = min(max(headroom, 0), len(b.data))
	b.n = 0
}

// Push prepends n uninitialized bytes to the data window and returns them.
func (b *Buffer) Push(n int) ([]byte, error) {
	if n > b.start {
		return nil, ErrNoHeadroom
	}
	b.start -= n
	b.n += n
	return b.data[b.start : b.start+n], nil
}

// Put appends n uninitialized bytes to the data window and returns them.
func (b *Buffer) Put(n int) ([]byte, error) {
	if n > b.Tailroom() {
		return nil, ErrNoTailroom
	}
	end := b.start + b.n
	b.n += n
	return b.data[end : end+n], nil
}

// Advance moves the start of the data window forward by n bytes.
// It panics if n exceeds the window length.
func (b *Buffer) Advance(n int) {
	if n > b.n {
		panic("pktbuf: advance beyond data window")
	}
	b.start += n
	b.n -= n
}

// Next returns the next segment in the chain, or nil.
func (b *Buffer) Next() *Buffer {
	if b.Meta.Flags&FlagNextPresent == 0 {
		return nil
	}
	return b.next
}

// SetNext links next as the following segment. A nil next unlinks the chain.
func (b *Buffer) SetNext(next *Buffer) {
	b.next = next
	if next == nil {
		b.Meta.Flags &^= FlagNextPresent
		return
	}
	b.Meta.Flags |= FlagNextPresent
}

// Last returns the last segment in the chain.
func (b *Buffer) Last() *Buffer {
	for {
		next := b.Next()
		if next == nil {
			return b
		}
		b = next
	}
}

// TotalLen returns the sum of the data window lengths across the chain.
func (b *Buffer) TotalLen() int {
	var n int
	for s := b; s != nil; s = s.Next() {
		n += s.n
	}
	return n
}

// TotalLenNotIncludingFirst returns the data length of the chained segments after b.
func (b *Buffer) TotalLenNotIncludingFirst() int {
	if next := b.Next(); next != nil {
		return next.TotalLen()
	}
	return 0
}

// Segments returns an iterator over the data windows of the chain, starting with b.
// The iterator can be ranged over more than once.
func (b *Buffer) Segments() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for s := b; s != nil; s = s.Next() {
			if !yield(s.Bytes()) {
				return
			}
		}
	}
}

// AppendTo appends the data of the whole chain to dst and returns the extended slice.
func (b *Buffer) AppendTo(dst []byte) []byte {
	for seg := range b.Segments() {
		dst = append(dst, seg...)
	}
	return dst
}

// reset clears the window, the metadata, and the chain link.
func (b *Buffer) reset(headroom int) {
	b.next = nil
	b.Meta = Meta{}
	b.MakeHeadroom(headroom)
}
