package watch

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/llm-chess-arena/internal/eventsink"
	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

func event(seq int, phase string) arenadto.Event {
	return arenadto.Event{MatchID: "m1", Seq: seq, Phase: phase, State: arenadto.State{MatchID: "m1", Phase: phase}}
}

type collector struct {
	mu   sync.Mutex
	seqs []int
}

func (c *collector) add(ev arenadto.Event) {
	c.mu.Lock()
	c.seqs = append(c.seqs, ev.Seq)
	c.mu.Unlock()
}

func (c *collector) get() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.seqs...)
}

func TestClientFollowsUntilTermination(t *testing.T) {
	hub := eventsink.NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx := context.Background()
	_ = hub.Publish(ctx, event(1, "awaiting_move"))

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), "m1", 2, time.Millisecond)
	got := &collector{}
	c.OnEvent(got.add)
	var states []State
	var stMu sync.Mutex
	c.OnStateChange(func(s State) {
		stMu.Lock()
		states = append(states, s)
		stMu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Observers("m1") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = hub.Publish(ctx, event(2, "parsing"))
	_ = hub.Publish(ctx, event(3, "terminated"))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after termination")
	}
	seqs := got.get()
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Fatalf("seqs = %v", seqs)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state = %s", c.State())
	}
	stMu.Lock()
	defer stMu.Unlock()
	if len(states) < 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Fatalf("states = %v", states)
	}
}

func TestClientGivesUp(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", "m1", 1, time.Millisecond)
	err := c.Run(context.Background())
	if !errors.Is(err, ErrGaveUp) {
		t.Fatalf("expected ErrGaveUp, got %v", err)
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %s", c.State())
	}
}

func TestDeliverSkipsSeenEvents(t *testing.T) {
	c := NewClient("ws://unused", "m1", 0, 0)
	got := &collector{}
	c.OnEvent(got.add)
	c.deliver(event(1, "awaiting_move"))
	c.deliver(event(1, "awaiting_move"))
	if fresh, terminal := c.deliver(event(2, "terminated")); !fresh || !terminal {
		t.Fatalf("fresh=%v terminal=%v", fresh, terminal)
	}
	if seqs := got.get(); len(seqs) != 2 {
		t.Fatalf("seqs = %v", seqs)
	}
}

func TestFollowRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := eventsink.NewRedis(rdb, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := &collector{}
	done := make(chan error, 1)
	go func() { done <- FollowRedis(ctx, rdb, "m1", got.add) }()

	// miniredis drops messages published before the subscriber attaches.
	ch := eventsink.Channel("m1")
	for mr.PubSubNumSub(ch)[ch] == 0 {
		if ctx.Err() != nil {
			t.Fatalf("subscriber never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = store.Publish(ctx, event(1, "parsing"))
	_ = store.Publish(ctx, event(2, "terminated"))

	if err := <-done; err != nil {
		t.Fatalf("FollowRedis: %v", err)
	}
	if seqs := got.get(); len(seqs) != 2 || seqs[1] != 2 {
		t.Fatalf("seqs = %v", seqs)
	}
}
