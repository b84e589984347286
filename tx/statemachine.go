package tx

import (
	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/chunk"
	"github.com/database64128/sctptx-go/timer"
)

// verdict is the outcome of checking a chunk against the association state.
type verdict uint8

const (
	verdictAccept verdict = iota
	verdictReject
	verdictInvalidState
)

// step is the effect of sending an accepted chunk.
type step struct {
	next  assoc.State
	arm   bool
	timer timer.Kind
}

func stay(s assoc.State) step {
	return step{next: s}
}

func moveAndArm(next assoc.State, kind timer.Kind) step {
	return step{next: next, arm: true, timer: kind}
}

// transition decides whether a chunk of type ct may leave an association in state s.
//
// Every modeled state lists its legal chunk types. A state outside the model is rejected.
func transition(s assoc.State, ct chunk.Type) (step, verdict) {
	switch s {
	case assoc.StateClosed:
		switch ct {
		case chunk.TypeInit, chunk.TypeInitAck:
			return stay(s), verdictAccept
		}

	case assoc.StateCookieWait:
		switch ct {
		case chunk.TypeCookieEcho:
			return moveAndArm(assoc.StateCookieEchoed, timer.T1Cookie), verdictAccept
		}

	case assoc.StateCookieEchoed:
		switch ct {
		case chunk.TypeCookieEcho:
			return moveAndArm(s, timer.T1Cookie), verdictAccept
		}

	case assoc.StateEstablished:
		switch ct {
		case chunk.TypeData, chunk.TypeHeartbeat, chunk.TypeHeartbeatAck, chunk.TypeSack, chunk.TypeCookieAck:
			return stay(s), verdictAccept
		case chunk.TypeShutdown:
			return moveAndArm(assoc.StateShutdownSent, timer.T2Shutdown), verdictAccept
		}

	case assoc.StateShutdownPending:
		switch ct {
		case chunk.TypeData, chunk.TypeSack, chunk.TypeHeartbeat, chunk.TypeHeartbeatAck:
			return stay(s), verdictAccept
		case chunk.TypeShutdown:
			return moveAndArm(assoc.StateShutdownSent, timer.T2Shutdown), verdictAccept
		}

	case assoc.StateShutdownSent:
		switch ct {
		case chunk.TypeSack, chunk.TypeHeartbeatAck:
			return stay(s), verdictAccept
		case chunk.TypeShutdown:
			return moveAndArm(s, timer.T2Shutdown), verdictAccept
		case chunk.TypeShutdownAck:
			return moveAndArm(assoc.StateShutdownAckSent, timer.T2Shutdown), verdictAccept
		}

	case assoc.StateShutdownReceived:
		switch ct {
		case chunk.TypeData, chunk.TypeSack, chunk.TypeHeartbeatAck:
			return stay(s), verdictAccept
		case chunk.TypeShutdownAck:
			return moveAndArm(assoc.StateShutdownAckSent, timer.T2Shutdown), verdictAccept
		}

	case assoc.StateShutdownAckSent:
		switch ct {
		case chunk.TypeShutdownAck:
			return moveAndArm(s, timer.T2Shutdown), verdictAccept
		case chunk.TypeShutdownComplete:
			return stay(s), verdictAccept
		}

	default:
		return step{}, verdictInvalidState
	}

	return step{}, verdictReject
}
