package eventsink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

func dialHub(t *testing.T, srv *httptest.Server, matchID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/matches/" + matchID + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) arenadto.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev arenadto.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func waitObservers(t *testing.T, hub *Hub, matchID string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Observers(matchID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("observers = %d, want %d", hub.Observers(matchID), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubReplaysLatestThenStreams(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()
	ctx := context.Background()

	_ = hub.Publish(ctx, sampleEvent(1, "in_progress", "awaiting_move", nil))
	_ = hub.Publish(ctx, sampleEvent(2, "in_progress", "parsing", nil))

	conn := dialHub(t, srv, "m1")
	if ev := readEvent(t, conn); ev.Seq != 2 {
		t.Fatalf("first event seq = %d, want latest 2", ev.Seq)
	}
	waitObservers(t, hub, "m1", 1)

	_ = hub.Publish(ctx, sampleEvent(3, "in_progress", "validating", nil))
	if ev := readEvent(t, conn); ev.Seq != 3 || ev.Phase != "validating" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	_ = hub.Publish(ctx, sampleEvent(4, "checkmate", "terminated", nil))
	if ev := readEvent(t, conn); ev.Phase != "terminated" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(rctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure after termination, got %v", err)
	}
}

func TestHubIsolatesMatches(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()
	ctx := context.Background()

	a := dialHub(t, srv, "a")
	b := dialHub(t, srv, "b")
	waitObservers(t, hub, "a", 1)
	waitObservers(t, hub, "b", 1)

	evA := sampleEvent(1, "in_progress", "parsing", nil)
	evA.MatchID = "a"
	evB := sampleEvent(9, "in_progress", "parsing", nil)
	evB.MatchID = "b"
	_ = hub.Publish(ctx, evA)
	_ = hub.Publish(ctx, evB)

	if ev := readEvent(t, a); ev.MatchID != "a" || ev.Seq != 1 {
		t.Fatalf("observer a got %+v", ev)
	}
	if ev := readEvent(t, b); ev.MatchID != "b" || ev.Seq != 9 {
		t.Fatalf("observer b got %+v", ev)
	}
}

func TestHubForgetsFinishedMatches(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()
	ctx := context.Background()

	_ = hub.Publish(ctx, sampleEvent(1, "in_progress", "awaiting_move", nil))
	_ = hub.Publish(ctx, sampleEvent(2, "stalemate", "terminated", nil))
	if n := hub.tracked(); n != 0 {
		t.Fatalf("unwatched finished match still tracked: %d", n)
	}

	watched := sampleEvent(1, "in_progress", "awaiting_move", nil)
	watched.MatchID = "w"
	_ = hub.Publish(ctx, watched)
	conn := dialHub(t, srv, "w")
	if ev := readEvent(t, conn); ev.Seq != 1 {
		t.Fatalf("replayed seq = %d", ev.Seq)
	}
	waitObservers(t, hub, "w", 1)

	final := sampleEvent(2, "checkmate", "terminated", nil)
	final.MatchID = "w"
	_ = hub.Publish(ctx, final)
	if ev := readEvent(t, conn); ev.Phase != "terminated" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	waitObservers(t, hub, "w", 0)
	if n := hub.tracked(); n != 0 {
		t.Fatalf("finished match kept after last observer left: %d", n)
	}
}

func TestHubRejectsUnknownRoute(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/matches//events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestParseRoute(t *testing.T) {
	cases := map[string]string{
		"/matches/abc/events": "abc",
		"/matches/abc":        "",
		"/matches/a/b/events": "",
		"/other/abc/events":   "",
	}
	for path, want := range cases {
		got, ok := parseRoute(path)
		if got != want || ok != (want != "") {
			t.Fatalf("parseRoute(%q) = %q %v", path, got, ok)
		}
	}
}
