package eventsink

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/llm-chess-arena/internal/match"
	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

const (
	routePrefix  = "/matches/"
	routeSuffix  = "/events"
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	clientBuffer = 64
)

type observer struct {
	id   int
	send chan arenadto.Event
}

// Hub pushes match events to websocket observers connected on
// /matches/{id}/events. A newly connected observer first receives the latest
// event of the match, if any. Observers that fall behind are disconnected.
// The latest event of a finished match is forgotten once its last observer
// leaves.
type Hub struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*observer
	last   map[string]arenadto.Event
	closed bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[int]*observer),
		last:   make(map[string]arenadto.Event),
	}
}

func (h *Hub) Publish(_ context.Context, ev arenadto.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.last[ev.MatchID] = ev
	for id, o := range h.subs[ev.MatchID] {
		select {
		case o.send <- ev:
		default:
			h.logger.Warn("ws_observer_dropped", zap.String("match_id", ev.MatchID), zap.Int("observer", id))
			delete(h.subs[ev.MatchID], id)
			close(o.send)
		}
	}
	h.pruneLocked(ev.MatchID)
	return nil
}

// pruneLocked drops the state kept for a finished match nobody is watching.
func (h *Hub) pruneLocked(matchID string) {
	if len(h.subs[matchID]) > 0 {
		return
	}
	delete(h.subs, matchID)
	if ev, ok := h.last[matchID]; ok && terminal(ev) {
		delete(h.last, matchID)
	}
}

// tracked returns the number of matches the hub keeps a latest event for.
func (h *Hub) tracked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.last)
}

// Observers returns the number of connected observers for a match.
func (h *Hub) Observers(matchID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[matchID])
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	matchID, ok := parseRoute(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Warn("ws_accept_failed", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	o, last, ok := h.attach(matchID)
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.detach(matchID, o)

	// Observers only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	if last != nil {
		if err := h.write(ctx, conn, *last); err != nil {
			return
		}
		if terminal(*last) {
			_ = conn.Close(websocket.StatusNormalClosure, "match over")
			return
		}
	}

	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.send:
			if !ok {
				if h.isClosed() {
					_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				} else {
					_ = conn.Close(websocket.StatusPolicyViolation, "observer too slow")
				}
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				return
			}
			if terminal(ev) {
				_ = conn.Close(websocket.StatusNormalClosure, "match over")
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev arenadto.Event) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, ev)
}

func (h *Hub) attach(matchID string) (*observer, *arenadto.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, false
	}
	h.nextID++
	o := &observer{id: h.nextID, send: make(chan arenadto.Event, clientBuffer)}
	if h.subs[matchID] == nil {
		h.subs[matchID] = make(map[int]*observer)
	}
	h.subs[matchID][o.id] = o
	var last *arenadto.Event
	if ev, ok := h.last[matchID]; ok {
		last = &ev
	}
	return o, last, true
}

func (h *Hub) detach(matchID string, o *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.subs[matchID][o.id]; ok && cur == o {
		delete(h.subs[matchID], o.id)
		close(o.send)
	}
	h.pruneLocked(matchID)
}

// Close disconnects every observer.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for matchID, group := range h.subs {
		for id, o := range group {
			close(o.send)
			delete(group, id)
		}
		delete(h.subs, matchID)
	}
	return nil
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func terminal(ev arenadto.Event) bool { return ev.Phase == string(match.PhaseTerminated) }

func parseRoute(path string) (string, bool) {
	if !strings.HasPrefix(path, routePrefix) || !strings.HasSuffix(path, routeSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, routePrefix), routeSuffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
