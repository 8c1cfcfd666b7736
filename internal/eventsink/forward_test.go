package eventsink

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/park285/llm-chess-arena/internal/llm"
	"github.com/park285/llm-chess-arena/internal/match"
	"github.com/park285/llm-chess-arena/internal/prompt"
	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

type scriptClient struct {
	name  string
	moves []string

	mu   sync.Mutex
	call int
}

func (c *scriptClient) Provider() string { return "fake" }
func (c *scriptClient) Model() string    { return c.name }

func (c *scriptClient) Call(context.Context, prompt.Payload) (llm.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.call++
	if c.call > len(c.moves) {
		return llm.Raw{Text: "..."}, nil
	}
	return llm.Raw{Text: fmt.Sprintf(`{"move":%q}`, c.moves[c.call-1])}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []arenadto.Event
}

func (r *recorder) Publish(_ context.Context, ev arenadto.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestForwardDeliversEveryEventInOrder(t *testing.T) {
	m, err := match.New(match.Config{ID: "fwd"},
		match.Player{Client: &scriptClient{name: "w", moves: []string{"f3", "g4"}}},
		match.Player{Client: &scriptClient{name: "b", moves: []string{"e5", "Qh4#"}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store, _, _ := newTestRedis(t)
	rec := &recorder{}
	wait := Forward(m, nil, rec, store)

	st, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wait()

	if len(rec.events) == 0 {
		t.Fatalf("no events forwarded")
	}
	for i := 1; i < len(rec.events); i++ {
		if rec.events[i].Seq <= rec.events[i-1].Seq {
			t.Fatalf("events out of order at %d", i)
		}
	}
	last := rec.events[len(rec.events)-1]
	if last.Phase != string(match.PhaseTerminated) || last.State.Status != string(st.Status) {
		t.Fatalf("last event = %+v", last)
	}
	if last.Entry == nil || last.Entry.Move == nil || last.Entry.Move.SAN != "Qh4#" || last.Appended {
		t.Fatalf("terminal entry = %+v appended=%v", last.Entry, last.Appended)
	}

	snap, err := store.LoadState(context.Background(), "fwd")
	if err != nil || snap == nil || snap.Result != "0-1" {
		t.Fatalf("redis snapshot = %+v %v", snap, err)
	}
	entries, _ := store.Entries(context.Background(), "fwd")
	if len(entries) != 4 {
		t.Fatalf("redis entries = %d, want 4", len(entries))
	}
}
