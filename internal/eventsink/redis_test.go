package eventsink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

func newTestRedis(t *testing.T) (*Redis, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, time.Hour), rdb, mr
}

func sampleEvent(seq int, status, phase string, entry *arenadto.Entry) arenadto.Event {
	return arenadto.Event{
		MatchID: "m1",
		Seq:     seq,
		Phase:   phase,
		State:   arenadto.State{MatchID: "m1", Status: status, Phase: phase, Ply: seq, Result: "*"},
		Entry:    entry,
		Appended: entry != nil,
		At:       time.Unix(int64(seq), 0).UTC(),
	}
}

func TestRedisStoresSnapshotAndEntries(t *testing.T) {
	store, _, mr := newTestRedis(t)
	ctx := context.Background()

	if err := store.Publish(ctx, sampleEvent(1, "in_progress", "awaiting_move", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	entry := &arenadto.Entry{Ply: 1, Actor: "white", Raw: "e4", Outcome: "accepted"}
	if err := store.Publish(ctx, sampleEvent(2, "in_progress", "checking_termination", entry)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	st, err := store.LoadState(ctx, "m1")
	if err != nil || st == nil {
		t.Fatalf("LoadState: %v %v", st, err)
	}
	if st.Phase != "checking_termination" || st.Ply != 2 {
		t.Fatalf("unexpected snapshot: %+v", st)
	}
	entries, err := store.Entries(ctx, "m1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Raw != "e4" {
		t.Fatalf("entries = %+v", entries)
	}
	if ttl := mr.TTL(keyState("m1")); ttl != time.Hour {
		t.Fatalf("snapshot ttl = %v", ttl)
	}
	active, err := store.Active(ctx)
	if err != nil || len(active) != 1 || active[0] != "m1" {
		t.Fatalf("active = %v %v", active, err)
	}

	if err := store.Publish(ctx, sampleEvent(3, "checkmate", "terminated", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	active, _ = store.Active(ctx)
	if len(active) != 0 {
		t.Fatalf("finished match still active: %v", active)
	}
}

func TestRedisSkipsRepeatedEntry(t *testing.T) {
	store, _, _ := newTestRedis(t)
	ctx := context.Background()

	entry := &arenadto.Entry{Ply: 3, Actor: "white", Raw: "Qh5#", Outcome: "accepted"}
	if err := store.Publish(ctx, sampleEvent(1, "in_progress", "checking_termination", entry)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	final := sampleEvent(2, "checkmate", "terminated", entry)
	final.Appended = false
	if err := store.Publish(ctx, final); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	entries, err := store.Entries(ctx, "m1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("repeated entry stored twice: %+v", entries)
	}
}

func TestRedisLoadUnknownMatch(t *testing.T) {
	store, _, _ := newTestRedis(t)
	st, err := store.LoadState(context.Background(), "missing")
	if err != nil || st != nil {
		t.Fatalf("expected nil snapshot, got %v %v", st, err)
	}
}

func TestRedisPublishesOnChannel(t *testing.T) {
	store, rdb, _ := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, Channel("m1"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := store.Publish(ctx, sampleEvent(7, "in_progress", "parsing", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case msg := <-sub.Channel():
		var ev arenadto.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Seq != 7 || ev.Phase != "parsing" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-ctx.Done():
		t.Fatalf("no message published")
	}
}
