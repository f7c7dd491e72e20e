package session

import "fmt"

// Stage is the per-user quiz session lifecycle state.
type Stage int

const (
	// StageLoading: quiz object and definition are being resolved.
	StageLoading Stage = iota
	// StageEligible: loaded and the eligibility gate passed; not started.
	StageEligible
	// StageAnswering: questions generated, answers being collected.
	StageAnswering
	// StageSuccess: all answers correct, reward settled. Terminal.
	StageSuccess
	// StageFail: at least one answer wrong. Restart leads back to answering.
	StageFail
)

func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "loading"
	case StageEligible:
		return "eligible"
	case StageAnswering:
		return "answering"
	case StageSuccess:
		return "success"
	case StageFail:
		return "fail"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Event drives stage transitions.
type Event int

const (
	// EventLoaded: object + definition fetched and eligibility confirmed.
	EventLoaded Event = iota
	// EventQuestionsReady: a fresh question set was generated.
	EventQuestionsReady
	// EventAnswered: a non-final answer was recorded.
	EventAnswered
	// EventPassed: final answer recorded, all correct, reward settled.
	EventPassed
	// EventFailed: final answer recorded, at least one wrong.
	EventFailed
	// EventRestarted: explicit restart after a fail.
	EventRestarted
)

func (e Event) String() string {
	switch e {
	case EventLoaded:
		return "loaded"
	case EventQuestionsReady:
		return "questions-ready"
	case EventAnswered:
		return "answered"
	case EventPassed:
		return "passed"
	case EventFailed:
		return "failed"
	case EventRestarted:
		return "restarted"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// TransitionError reports an event that is not legal in the current stage.
type TransitionError struct {
	From  Stage
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: event %q is not allowed in stage %q", e.Event, e.From)
}

// Next is the pure transition function of the session state machine. It has
// no side effects and can be exercised exhaustively in isolation.
func Next(s Stage, e Event) (Stage, error) {
	switch {
	case s == StageLoading && e == EventLoaded:
		return StageEligible, nil
	case s == StageEligible && e == EventQuestionsReady:
		return StageAnswering, nil
	case s == StageAnswering && e == EventAnswered:
		return StageAnswering, nil
	case s == StageAnswering && e == EventPassed:
		return StageSuccess, nil
	case s == StageAnswering && e == EventFailed:
		return StageFail, nil
	case s == StageFail && e == EventRestarted:
		return StageAnswering, nil
	default:
		return s, &TransitionError{From: s, Event: e}
	}
}
