// Package cookie authenticates the state cookies handed out in INIT_ACK.
package cookie

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/database64128/sctptx-go/chunk"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrExpired = errors.New("state cookie expired")
	ErrBadMAC  = errors.New("state cookie MAC mismatch")
)

// MAC computes the 8-byte authentication tag of a state cookie.
type MAC interface {
	// Sum returns the tag of msg.
	Sum(msg []byte) [8]byte
}

// KeySize is the size of the key accepted by [NewBLAKE2b].
const KeySize = 32

// BLAKE2b is a keyed BLAKE2b-256 MAC truncated to 8 bytes.
type BLAKE2b struct {
	key [KeySize]byte
}

// NewBLAKE2b returns a MAC keyed with key.
func NewBLAKE2b(key []byte) (*BLAKE2b, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("bad cookie key length %d, want %d", len(key), KeySize)
	}
	m := &BLAKE2b{}
	copy(m.key[:], key)
	return m, nil
}

// Sum implements [MAC.Sum].
func (m *BLAKE2b) Sum(msg []byte) (tag [8]byte) {
	h, err := blake2b.New256(m.key[:])
	if err != nil {
		panic(err)
	}
	h.Write(msg)
	var sum [blake2b.Size256]byte
	copy(tag[:], h.Sum(sum[:0]))
	return tag
}

// Zero is a MAC that always returns the zero tag.
// It must only be used in tests.
type Zero struct{}

// Sum implements [MAC.Sum].
func (Zero) Sum([]byte) (tag [8]byte) {
	return tag
}

// Seal fills in c.MAC.
func Seal(m MAC, c *chunk.StateCookie) {
	var msg [16]byte
	c.PutAuthenticated(msg[:])
	c.MAC = m.Sum(msg[:])
}

// New returns a sealed state cookie created at now.
func New(m MAC, now time.Time, lifespan time.Duration, localTag, peerTag uint32) chunk.StateCookie {
	c := chunk.StateCookie{
		CreationTime: uint32(now.Unix()),
		Lifespan:     uint32(lifespan.Milliseconds()),
		LocalTag:     localTag,
		PeerTag:      peerTag,
	}
	Seal(m, &c)
	return c
}

// Verify parses the echoed cookie value and checks its MAC and lifetime at now.
func Verify(m MAC, value []byte, now time.Time) (chunk.StateCookie, error) {
	c, err := chunk.ParseStateCookie(value)
	if err != nil {
		return c, err
	}

	var msg [16]byte
	c.PutAuthenticated(msg[:])
	want := m.Sum(msg[:])
	if subtle.ConstantTimeCompare(want[:], c.MAC[:]) != 1 {
		return c, ErrBadMAC
	}

	created := time.Unix(int64(c.CreationTime), 0)
	if now.Sub(created) > time.Duration(c.Lifespan)*time.Millisecond {
		return c, ErrExpired
	}
	return c, nil
}
