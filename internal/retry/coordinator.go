// Package retry decides what a match does after a failed move attempt.
package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/park285/llm-chess-arena/internal/llm"
	"github.com/park285/llm-chess-arena/internal/moveparse"
	"github.com/park285/llm-chess-arena/internal/position"
)

// ErrRetryExhausted marks a ply whose move budget ran out.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// FailureKind groups failures by how they are recovered.
type FailureKind string

const (
	FailureMalformed FailureKind = "malformed"
	FailureIllegal   FailureKind = "illegal"
	FailureTimeout   FailureKind = "timeout"
	FailureRateLimit FailureKind = "rate_limit"
	FailureTransport FailureKind = "transport"
	FailureAuth      FailureKind = "auth"
)

// MoveFailure reports whether kind is charged to the per-ply move budget.
func (k FailureKind) MoveFailure() bool {
	return k == FailureMalformed || k == FailureIllegal
}

// Action is the outcome of a retry decision.
type Action string

const (
	ActionRetryWithFeedback Action = "retry_with_feedback"
	ActionRetryAfterBackoff Action = "retry_after_backoff"
	ActionForfeit           Action = "forfeit"
	ActionAbort             Action = "abort"
)

// Decision tells the orchestrator how to continue.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// Terminal reports whether the decision ends the match.
func (d Decision) Terminal() bool {
	return d.Action == ActionForfeit || d.Action == ActionAbort
}

// Coordinator holds the backoff curve for provider failures. The zero value uses
// 100ms doubling up to 6.4s.
type Coordinator struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// OnFailure decides the next step after the attempt-th failure of kind, where
// budget is the limit for that kind's counter. attempt counts from 1.
func (c Coordinator) OnFailure(kind FailureKind, attempt, budget int) Decision {
	if budget < 1 {
		budget = 1
	}
	switch kind {
	case FailureAuth:
		return Decision{Action: ActionAbort}
	case FailureMalformed, FailureIllegal:
		if attempt >= budget {
			return Decision{Action: ActionForfeit}
		}
		return Decision{Action: ActionRetryWithFeedback}
	case FailureTimeout, FailureRateLimit, FailureTransport:
		if attempt >= budget {
			return Decision{Action: ActionAbort}
		}
		return Decision{Action: ActionRetryAfterBackoff, Delay: c.backoff(attempt)}
	}
	return Decision{Action: ActionAbort}
}

func (c Coordinator) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 7 {
		attempt = 7
	}
	base := c.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := time.Duration(1<<uint(attempt-1)) * base
	limit := c.MaxDelay
	if limit <= 0 {
		limit = 64 * base
	}
	if d > limit {
		d = limit
	}
	return d
}

// Classify maps an error from the model/parse/validate pipeline to its kind.
func Classify(err error) (FailureKind, error) {
	var ime *position.IllegalMoveError
	switch {
	case err == nil:
		return "", fmt.Errorf("classify: nil error")
	case errors.Is(err, llm.ErrProviderAuth):
		return FailureAuth, nil
	case errors.Is(err, llm.ErrProviderRateLimit):
		return FailureRateLimit, nil
	case errors.Is(err, llm.ErrProviderTimeout):
		return FailureTimeout, nil
	case errors.Is(err, llm.ErrProviderTransport):
		return FailureTransport, nil
	case errors.Is(err, moveparse.ErrMalformedResponse):
		return FailureMalformed, nil
	case errors.As(err, &ime):
		return FailureIllegal, nil
	}
	return "", fmt.Errorf("classify: unrecognised failure: %w", err)
}
