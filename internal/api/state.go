package api

import (
	"context"
	"fmt"
)

// State is a point in the per-request state machine:
//
//	idle → sending → {success | retrying → sending | failed}
//
// success and failed are terminal.
type State int

const (
	StateIdle State = iota
	StateSending
	StateRetrying
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateRetrying:
		return "retrying"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// CanTransition reports whether s → next is an edge of the state machine.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateIdle, StateRetrying:
		return next == StateSending
	case StateSending:
		return next == StateSuccess || next == StateRetrying || next == StateFailed
	default:
		return false
	}
}

// Lifecycle tracks one logical request across attempts. Only the attempt
// counter is carried from one sending transition to the next.
type Lifecycle struct {
	state    State
	attempts int
}

// State returns the current state.
func (l *Lifecycle) State() State { return l.state }

// Attempts returns how many sending transitions have happened.
func (l *Lifecycle) Attempts() int { return l.attempts }

// Advance moves to next, counting attempts on every transition into sending.
func (l *Lifecycle) Advance(next State) error {
	if !l.state.CanTransition(next) {
		return fmt.Errorf("invalid request transition %s -> %s", l.state, next)
	}
	l.state = next
	if next == StateSending {
		l.attempts++
	}
	return nil
}

type attemptKey struct{}

// WithAttempt records the 1-based attempt number for the executor's telemetry.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFromContext returns the attempt number set by WithAttempt, or 1.
func AttemptFromContext(ctx context.Context) int {
	if n, ok := ctx.Value(attemptKey{}).(int); ok && n > 0 {
		return n
	}
	return 1
}
