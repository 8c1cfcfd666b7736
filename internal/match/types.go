package match

import (
	"errors"
	"time"

	"github.com/park285/llm-chess-arena/internal/llm"
	"github.com/park285/llm-chess-arena/internal/matchlog"
	"github.com/park285/llm-chess-arena/internal/position"
)

var (
	ErrAborted        = errors.New("match aborted")
	ErrAlreadyStarted = errors.New("match already started")
	ErrMatchOver      = errors.New("match is over")
	ErrInvalidPlayer  = errors.New("invalid player")
)

// Status is the match outcome. Every status except InProgress is terminal.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCheckmate  Status = "checkmate"
	StatusStalemate  Status = "stalemate"
	StatusDrawByRule Status = "draw_by_rule"
	StatusForfeit    Status = "forfeit"
	StatusAborted    Status = "aborted"
)

func (s Status) Terminal() bool { return s != StatusInProgress && s != "" }

// Draw reports whether the status ends the game without a winner by rule.
func (s Status) Draw() bool { return s == StatusStalemate || s == StatusDrawByRule }

// Phase is the orchestrator state inside a ply.
type Phase string

const (
	PhaseAwaitingMove        Phase = "awaiting_move"
	PhaseParsing             Phase = "parsing"
	PhaseValidating          Phase = "validating"
	PhaseApplying            Phase = "applying"
	PhaseCheckingTermination Phase = "checking_termination"
	PhaseTerminated          Phase = "terminated"
)

// Termination details recorded on the state.
const (
	DetailMaxPlies    = "max plies reached"
	DetailLostOnTime  = "lost on time"
	DetailResignation = "resignation"
)

// Player is one side's configuration. It is not modified by the match.
type Player struct {
	Name    string
	Client  llm.Client
	Persona string

	// RetryBudget is the number of malformed or illegal attempts allowed per ply.
	RetryBudget int
	// CallTimeout bounds a single model call.
	CallTimeout time.Duration
	// Clock is the total thinking time for the game; zero means untimed.
	Clock time.Duration
}

func (p Player) label() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Client != nil {
		return p.Client.Provider() + "/" + p.Client.Model()
	}
	return "unknown"
}

// State is an immutable snapshot of a match.
type State struct {
	ID       string
	Position *position.Position
	History  []position.Move
	Active   position.Color
	Status   Status
	Phase    Phase
	Terminal position.Terminal
	Winner   *position.Color
	Detail   string

	// Ply is the number of the ply being decided (1-based).
	Ply int
	// Attempts counts malformed or illegal attempts in the current ply.
	Attempts int
	// ProviderAttempts counts provider failures in the current ply.
	ProviderAttempts int

	// Clocks holds remaining time per side; absent for untimed players.
	Clocks map[position.Color]time.Duration

	UpdatedAt time.Time
}

func (s State) clone() State {
	out := s
	out.History = append([]position.Move(nil), s.History...)
	if s.Winner != nil {
		w := *s.Winner
		out.Winner = &w
	}
	if s.Clocks != nil {
		out.Clocks = make(map[position.Color]time.Duration, len(s.Clocks))
		for k, v := range s.Clocks {
			out.Clocks[k] = v
		}
	}
	return out
}

// Result returns the PGN result token for the state.
func (s State) Result() string {
	if !s.Status.Terminal() || s.Status == StatusAborted {
		return "*"
	}
	return matchlog.ResultToken(s.Winner, s.Status.Draw())
}

// Event is published on every state transition.
type Event struct {
	Seq   int
	Phase Phase
	State State
	Entry *matchlog.Entry
	// Appended is set when Entry was added to the log by this transition. The
	// terminal event repeats the last entry with Appended false.
	Appended bool
	At       time.Time
}
