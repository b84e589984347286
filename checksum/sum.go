// Package checksum implements the SCTP packet checksum over IPv4 and IPv6,
// walking chained packet buffers segment by segment.
package checksum

import (
	"encoding/binary"
	"math/bits"
)

// Sum is a running one's-complement sum over a byte stream
// that may be fed in pieces of arbitrary length.
//
// The zero value is an empty sum.
type Sum struct {
	acc uint64
	odd bool
}

// Add folds b into the sum.
//
// When the bytes added so far have odd length, b starts in the low byte
// of a 16-bit word, and its partial sum is byte-swapped before folding.
func (s *Sum) Add(b []byte) {
	if len(b) == 0 {
		return
	}
	p := sum64(b)
	if s.odd {
		p = uint64(bits.ReverseBytes16(fold(p)))
	}
	s.add64(p)
	s.odd = s.odd != (len(b)&1 == 1)
}

// AddUint16 folds v as two big-endian bytes.
func (s *Sum) AddUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	s.Add(b[:])
}

// AddUint32 folds v as four big-endian bytes.
func (s *Sum) AddUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.Add(b[:])
}

// Fold returns the 16-bit one's-complement sum.
func (s *Sum) Fold() uint16 {
	return fold(s.acc)
}

// Finish returns the one's complement of the folded sum,
// which is the value stored in a checksum field.
func (s *Sum) Finish() uint16 {
	return ^s.Fold()
}

func (s *Sum) add64(v uint64) {
	var carry uint64
	s.acc, carry = bits.Add64(s.acc, v, 0)
	s.acc += carry
}

// sum64 returns the one's-complement sum of b as big-endian 64-bit words.
// A short tail is padded with zero bytes on the right.
func sum64(b []byte) uint64 {
	var acc, carry uint64
	for len(b) >= 8 {
		acc, carry = bits.Add64(acc, binary.BigEndian.Uint64(b), 0)
		acc += carry
		b = b[8:]
	}
	if len(b) > 0 {
		var tail [8]byte
		copy(tail[:], b)
		acc, carry = bits.Add64(acc, binary.BigEndian.Uint64(tail[:]), 0)
		acc += carry
	}
	return acc
}

func fold(v uint64) uint16 {
	for v > 0xffff {
		v = v>>16 + v&0xffff
	}
	return uint16(v)
}
