// Package matchlog records every move attempt of a match.
package matchlog

import (
	"errors"
	"sync"
	"time"

	"github.com/park285/llm-chess-arena/internal/position"
)

// ErrFrozen is returned when appending to a finished match.
var ErrFrozen = errors.New("match log is frozen")

// Outcome is the validation result of one attempt.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeMalformed Outcome = "malformed"
	OutcomeIllegal   Outcome = "illegal"
	OutcomeResigned  Outcome = "resigned"
)

// Entry is one resolved attempt. Candidate is the move text the parser found;
// Move is set only once the validator resolved it.
type Entry struct {
	Ply       int             `json:"ply"`
	Actor     position.Color  `json:"actor"`
	Model     string          `json:"model,omitempty"`
	Raw       string          `json:"raw"`
	Candidate string          `json:"candidate,omitempty"`
	Move      *position.Move  `json:"move,omitempty"`
	Outcome   Outcome         `json:"outcome"`
	Reason    position.Reason `json:"reason,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Retry     int             `json:"retry"`

	Explanation   string        `json:"explanation,omitempty"`
	Confidence    float64       `json:"confidence,omitempty"`
	HasConfidence bool          `json:"hasConfidence,omitempty"`
	Latency       time.Duration `json:"latency"`
	At            time.Time     `json:"at"`
}

// Accepted reports whether the entry advanced the game.
func (e Entry) Accepted() bool { return e.Outcome == OutcomeAccepted && e.Move != nil }

// Log is an append-only, freezable sequence of entries. Safe for concurrent
// readers while the owning match appends.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	frozen  bool
}

func New() *Log { return &Log{} }

// Append adds e. Entries are copied so callers may reuse the value.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return ErrFrozen
	}
	if e.Move != nil {
		mv := *e.Move
		e.Move = &mv
	}
	l.entries = append(l.entries, e)
	return nil
}

// Freeze makes the log immutable. Calling it twice is harmless.
func (l *Log) Freeze() {
	l.mu.Lock()
	l.frozen = true
	l.mu.Unlock()
}

func (l *Log) Frozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a deep copy of the log.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		if e.Move != nil {
			mv := *e.Move
			e.Move = &mv
		}
		out[i] = e
	}
	return out
}

// Last returns the most recent entry.
func (l *Log) Last() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	e := l.entries[len(l.entries)-1]
	if e.Move != nil {
		mv := *e.Move
		e.Move = &mv
	}
	return e, true
}

// AcceptedMoves returns the moves that were applied, in order.
func (l *Log) AcceptedMoves() []position.Move {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []position.Move
	for _, e := range l.entries {
		if e.Accepted() {
			out = append(out, *e.Move)
		}
	}
	return out
}

// AcceptedUCI returns the applied moves in UCI, ready for position.Replay.
func (l *Log) AcceptedUCI() []string {
	moves := l.AcceptedMoves()
	out := make([]string, len(moves))
	for i, m := range moves {
		out[i] = m.UCI
	}
	return out
}
