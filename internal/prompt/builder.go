// Package prompt renders a position into the text sent to a model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/park285/llm-chess-arena/internal/position"
)

// FeedbackPolicy controls how much of the legal move set a retry prompt repeats.
type FeedbackPolicy string

const (
	FeedbackNone   FeedbackPolicy = "none"
	FeedbackSample FeedbackPolicy = "sample"
	FeedbackFull   FeedbackPolicy = "full"
)

// ParseFeedbackPolicy accepts none, sample or full (case-insensitive).
func ParseFeedbackPolicy(s string) (FeedbackPolicy, error) {
	switch p := FeedbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FeedbackNone, FeedbackSample, FeedbackFull:
		return p, nil
	case "":
		return FeedbackSample, nil
	default:
		return "", fmt.Errorf("unknown feedback policy %q", s)
	}
}

// Payload is the provider-neutral prompt. System carries only the acting
// player's persona.
type Payload struct {
	System string
	User   string
	Legal  []string
}

// Feedback describes why the previous attempt of this ply was rejected.
type Feedback struct {
	Attempt   int
	Malformed bool
	Move      string
	Reason    position.Reason
	Detail    string
}

// Player is the part of a player the prompt needs.
type Player struct {
	Color   position.Color
	Persona string
}

// Builder renders payloads from a Catalog.
type Builder struct {
	cat        *Catalog
	policy     FeedbackPolicy
	sampleSize int
}

// Option configures a Builder.
type Option func(*Builder)

func WithFeedbackPolicy(p FeedbackPolicy) Option {
	return func(b *Builder) {
		if p != "" {
			b.policy = p
		}
	}
}

func WithSampleSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.sampleSize = n
		}
	}
}

// NewBuilder returns a builder using cat. Defaults: sample policy, 10 moves.
func NewBuilder(cat *Catalog, opts ...Option) *Builder {
	b := &Builder{cat: cat, policy: FeedbackSample, sampleSize: 10}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Policy returns the configured feedback policy.
func (b *Builder) Policy() FeedbackPolicy { return b.policy }

// Build renders the prompt for the side to move in pos. history holds the moves
// played since the start position, oldest first.
func (b *Builder) Build(pos *position.Position, history []position.Move, player Player, fb *Feedback) (Payload, error) {
	if pos == nil {
		return Payload{}, fmt.Errorf("build prompt: nil position")
	}
	legal := pos.LegalSAN()

	system := strings.TrimSpace(player.Persona)
	if system == "" {
		def, err := b.cat.Render(KeyDefaultPersona, nil)
		if err != nil {
			return Payload{}, err
		}
		system = def
	}

	feedback := ""
	if fb != nil {
		text, err := b.feedback(pos.Turn(), legal, *fb)
		if err != nil {
			return Payload{}, err
		}
		feedback = text
	}

	user, err := b.cat.Render(KeyUserBody, map[string]any{
		"Side":     pos.Turn().Title(),
		"FEN":      pos.FEN(),
		"History":  numberedHistory(pos, history),
		"InCheck":  pos.InCheck(),
		"Legal":    strings.Join(legal, ", "),
		"Feedback": feedback,
	})
	if err != nil {
		return Payload{}, err
	}
	return Payload{System: system, User: user, Legal: legal}, nil
}

func (b *Builder) feedback(side position.Color, legal []string, fb Feedback) (string, error) {
	data := map[string]any{
		"Attempt": fb.Attempt,
		"Move":    fb.Move,
		"Side":    side.Title(),
		"Detail":  fb.Detail,
	}
	key := KeyFeedbackIllegal
	if fb.Malformed {
		key = KeyFeedbackMalformed
	}
	text, err := b.cat.Render(key, data)
	if err != nil {
		return "", err
	}

	var moves []string
	listKey := ""
	switch b.policy {
	case FeedbackFull:
		moves, listKey = legal, KeyMovesFull
	case FeedbackSample:
		moves, listKey = legal, KeyMovesSample
		if len(moves) > b.sampleSize {
			moves = moves[:b.sampleSize]
		}
	}
	if listKey == "" || len(moves) == 0 {
		return text, nil
	}
	list, err := b.cat.Render(listKey, map[string]any{"Moves": strings.Join(moves, ", ")})
	if err != nil {
		return "", err
	}
	return text + " " + list, nil
}

// numberedHistory formats history as "1. e4 e5\n2. Nf3", numbering from the
// move the game started at.
func numberedHistory(pos *position.Position, history []position.Move) string {
	n := len(history)
	if n == 0 {
		return ""
	}
	startTurn := pos.Turn()
	if n%2 == 1 {
		startTurn = startTurn.Opponent()
	}
	blackMoves := n / 2
	if n%2 == 1 && startTurn == position.Black {
		blackMoves++
	}
	number := pos.FullmoveNumber() - blackMoves
	if number < 1 {
		number = 1
	}

	var sb strings.Builder
	i := 0
	if startTurn == position.Black {
		fmt.Fprintf(&sb, "%d... %s", number, history[0].SAN)
		number++
		i = 1
	}
	for ; i < n; i += 2 {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d. %s", number, history[i].SAN)
		if i+1 < n {
			sb.WriteString(" " + history[i+1].SAN)
		}
		number++
	}
	return sb.String()
}
