package api

import (
	"context"
	"testing"
)

func TestLifecycle_RetryThenSuccess(t *testing.T) {
	var l Lifecycle
	steps := []State{StateSending, StateRetrying, StateSending, StateRetrying, StateSending, StateSuccess}
	for _, s := range steps {
		if err := l.Advance(s); err != nil {
			t.Fatalf("Advance(%s): %v", s, err)
		}
	}
	if l.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", l.Attempts())
	}
	if !l.State().Terminal() {
		t.Error("success should be terminal")
	}
	if err := l.Advance(StateSending); err == nil {
		t.Error("expected error leaving a terminal state")
	}
}

func TestState_Transitions(t *testing.T) {
	invalid := [][2]State{
		{StateIdle, StateSuccess},
		{StateIdle, StateRetrying},
		{StateRetrying, StateFailed},
		{StateFailed, StateSending},
		{StateSending, StateIdle},
	}
	for _, pair := range invalid {
		if pair[0].CanTransition(pair[1]) {
			t.Errorf("%s -> %s should be invalid", pair[0], pair[1])
		}
	}
	if State(42).String() != "State(42)" {
		t.Errorf("unexpected String for unknown state: %s", State(42))
	}
}

func TestAttemptFromContext(t *testing.T) {
	if got := AttemptFromContext(context.Background()); got != 1 {
		t.Errorf("default attempt = %d, want 1", got)
	}
	if got := AttemptFromContext(WithAttempt(context.Background(), 4)); got != 4 {
		t.Errorf("attempt = %d, want 4", got)
	}
}
