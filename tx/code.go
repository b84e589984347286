package tx

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBuffer is returned when the thread's buffer pool is exhausted.
	// Nothing was sent and the association is unchanged.
	ErrNoBuffer = errors.New("no free packet buffer")

	// ErrUnackedData is returned by SHUTDOWN and SHUTDOWN_ACK senders
	// while sent DATA chunks remain unacknowledged.
	ErrUnackedData = errors.New("unacknowledged data outstanding")

	// ErrRejected is returned when the transmit state machine dropped a control chunk.
	// The drop cause is counted and the association is unchanged.
	ErrRejected = errors.New("chunk rejected by transmit state machine")

	errBogusChecksum = errors.New("packet length exceeds buffer chain")
)

// Code is a per-thread counter index. Every code except [CodePktsSent] is a drop cause.
type Code uint8

const (
	CodePktsSent Code = iota
	CodeNoBuffer
	CodeInvalidConnection
	CodeUnknownChunk
	CodeInvalidState
	CodeBogusChecksum
	numCodes
)

var codeNames = [numCodes]string{
	CodePktsSent:          "packets sent",
	CodeNoBuffer:          "no free buffer",
	CodeInvalidConnection: "invalid connection",
	CodeUnknownChunk:      "unknown chunk for state",
	CodeInvalidState:      "invalid association state",
	CodeBogusChecksum:     "bogus checksum length",
}

// String implements [fmt.Stringer].
func (c Code) String() string {
	if c < numCodes {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", uint8(c))
}
