// Package assoc holds the association records driven by the transmit path.
package assoc

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/database64128/sctptx-go/chunk"
)

// State is the association state.
type State uint8

const (
	StateClosed State = iota
	StateCookieWait
	StateCookieEchoed
	StateEstablished
	StateShutdownPending
	StateShutdownSent
	StateShutdownReceived
	StateShutdownAckSent
)

var stateNames = [...]string{
	StateClosed:           "CLOSED",
	StateCookieWait:       "COOKIE_WAIT",
	StateCookieEchoed:     "COOKIE_ECHOED",
	StateEstablished:      "ESTABLISHED",
	StateShutdownPending:  "SHUTDOWN_PENDING",
	StateShutdownSent:     "SHUTDOWN_SENT",
	StateShutdownReceived: "SHUTDOWN_RECEIVED",
	StateShutdownAckSent:  "SHUTDOWN_ACK_SENT",
}

// String implements [fmt.Stringer].
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// SubConn is one local/remote address pair of an association.
type SubConn struct {
	Local      netip.Addr
	Remote     netip.Addr
	LocalPort  chunk.Port
	RemotePort chunk.Port
}

// Is4 reports whether the path runs over IPv4.
func (s *SubConn) Is4() bool {
	return s.Remote.Is4() || s.Remote.Is4In6()
}

// MatchPorts reports whether src and dst match the path's ports in either orientation.
func (s *SubConn) MatchPorts(src, dst chunk.Port) bool {
	return src == s.LocalPort && dst == s.RemotePort ||
		src == s.RemotePort && dst == s.LocalPort
}

// Association is one SCTP association.
//
// An association is owned by the worker thread whose table holds it
// and must not be touched by any other thread.
type Association struct {
	ID    uint32
	State State

	// LocalTag is the tag the peer must put in packets sent to us.
	LocalTag uint32

	// RemoteTag is the tag we put in packets sent to the peer.
	RemoteTag uint32

	// SndNxt is the next TSN to assign.
	SndNxt uint32

	// SndUna is the oldest unacknowledged TSN.
	SndUna uint32

	// RcvLas is the cumulative TSN ack point of the last chunk received.
	RcvLas uint32

	// RTTTime is when the timed chunk was sent. Zero means no RTT measurement is in flight.
	RTTTime    time.Time
	RTTSeq     uint32
	RTOBackoff int
	RTO        time.Duration

	// PeerCookie is the state cookie received in INIT_ACK.
	PeerCookie []byte

	Paths   []SubConn
	Primary int
}

// PathForChunk returns the index of the path that carries chunks of type t.
func (a *Association) PathForChunk(t chunk.Type) int {
	return a.Primary
}

// PathForState returns the index of the path used in the current state.
func (a *Association) PathForState() int {
	return a.Primary
}

// Path returns the path at index i.
func (a *Association) Path(i int) *SubConn {
	return &a.Paths[i]
}

// HasOutstanding reports whether sent DATA chunks remain unacknowledged.
func (a *Association) HasOutstanding() bool {
	return a.SndUna != a.SndNxt
}
