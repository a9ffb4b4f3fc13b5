package navigator

import (
	"errors"
	"fmt"
)

// ErrNoElement is returned by Page implementations when no element matches.
var ErrNoElement = errors.New("no matching element")

// Kind classifies a navigation failure.
type Kind int

const (
	FormNotReady Kind = iota + 1
	GroupNotFound
	WeekNotFound
	BadDateFormat
	Timeout
)

func (k Kind) String() string {
	switch k {
	case FormNotReady:
		return "form not ready"
	case GroupNotFound:
		return "group not found"
	case WeekNotFound:
		return "week not found"
	case BadDateFormat:
		return "bad date format"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a navigation failure together with the state in which it happened.
type Error struct {
	Kind  Kind
	State State
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("navigation failed in %s: %s: %v", e.State, e.Kind, e.Err)
	}
	return fmt.Sprintf("navigation failed in %s: %s", e.State, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a navigation Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var nerr *Error
	return errors.As(err, &nerr) && nerr.Kind == kind
}

// Outcome tags the result of one transition.
type Outcome int

const (
	OK Outcome = iota
	// Retryable abandons the current branch; the next category is tried.
	Retryable
	// Fatal aborts the whole navigation.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Step is the outcome of a transition. State is the state reached on OK, or
// the state the transition started from otherwise.
type Step struct {
	Outcome Outcome
	State   State
	Err     error
}

func ok(s State) Step { return Step{Outcome: OK, State: s} }

func retry(s State, err error) Step { return Step{Outcome: Retryable, State: s, Err: err} }

func fatal(s State, err error) Step { return Step{Outcome: Fatal, State: s, Err: err} }
