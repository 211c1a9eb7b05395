package task

import "github.com/bornholm/uitester/internal/report"

type State string

const (
	StatePending            State = "pending"
	StateRunning            State = "running"
	StateSuccess            State = "success"
	StateSuccessWithFailure State = "success_with_failure"
	StateFailed             State = "failed"
	StateStopped            State = "stopped"
)

func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateSuccessWithFailure, StateFailed, StateStopped:
		return true
	default:
		return false
	}
}

func stateFromOutcome(outcome report.Outcome) State {
	switch outcome {
	case report.OutcomeSuccess:
		return StateSuccess
	case report.OutcomeSuccessWithFailure:
		return StateSuccessWithFailure
	default:
		return StateFailed
	}
}
