// Package watch follows a running match from outside the arena process,
// over the websocket stream or the redis channel.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/llm-chess-arena/internal/eventsink"
	"github.com/park285/llm-chess-arena/internal/match"
	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

type EventCallback func(ev arenadto.Event)

type StateCallback func(state State)

var ErrGaveUp = errors.New("watch: reconnect attempts exhausted")

// Client follows one match over websocket and reconnects with backoff when
// the stream drops before the match terminates.
type Client struct {
	url                  string
	maxReconnectAttempts int
	reconnectDelay       time.Duration

	mu      sync.RWMutex
	state   State
	onEvent EventCallback
	onState StateCallback
	lastSeq int
	over    bool
}

// NewClient targets baseURL (ws:// or wss://) and matchID.
func NewClient(baseURL, matchID string, maxReconnectAttempts int, reconnectDelay time.Duration) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	return &Client{
		url:                  strings.TrimRight(baseURL, "/") + "/matches/" + matchID + "/events",
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		state:                StateDisconnected,
	}
}

func (c *Client) OnEvent(cb EventCallback) {
	c.mu.Lock()
	c.onEvent = cb
	c.mu.Unlock()
}

func (c *Client) OnStateChange(cb StateCallback) {
	c.mu.Lock()
	c.onState = cb
	c.mu.Unlock()
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Run streams events until the match terminates, ctx ends, or reconnecting
// fails. Events already seen before a reconnect are not delivered twice.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		c.setState(StateConnecting)
		progressed, err := c.session(ctx)
		if c.finished() {
			c.setState(StateDisconnected)
			return nil
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		if progressed {
			attempt = 0
		}
		attempt++
		if attempt > c.maxReconnectAttempts {
			c.setState(StateFailed)
			if err == nil {
				return ErrGaveUp
			}
			return fmt.Errorf("%w: %w", ErrGaveUp, err)
		}
		c.setState(StateReconnecting)
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(backoffDuration(c.reconnectDelay, attempt)):
		}
	}
}

// session reads one connection until it drops or the terminal event arrives.
// progressed reports whether any new event was delivered.
func (c *Client) session(ctx context.Context) (progressed bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	cancel()
	if err != nil {
		return false, err
	}
	defer conn.CloseNow()
	c.setState(StateConnected)

	for {
		var ev arenadto.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return progressed, err
		}
		fresh, terminal := c.deliver(ev)
		progressed = progressed || fresh
		if terminal {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return progressed, nil
		}
	}
}

func (c *Client) deliver(ev arenadto.Event) (fresh, terminal bool) {
	c.mu.Lock()
	if ev.Seq <= c.lastSeq {
		c.mu.Unlock()
		return false, false
	}
	c.lastSeq = ev.Seq
	if isTerminal(ev) {
		c.over = true
	}
	cb := c.onEvent
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
	return true, isTerminal(ev)
}

func (c *Client) finished() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.over
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.onState
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func isTerminal(ev arenadto.Event) bool { return ev.Phase == string(match.PhaseTerminated) }

func backoffDuration(base time.Duration, attempt int) time.Duration {
	if attempt > 6 {
		attempt = 6
	}
	return base * time.Duration(1<<(attempt-1))
}

// FollowRedis delivers events published for matchID on redis until the match
// terminates or ctx ends.
func FollowRedis(ctx context.Context, rdb *redis.Client, matchID string, cb EventCallback) error {
	sub := rdb.Subscribe(ctx, eventsink.Channel(matchID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("watch: redis subscription closed")
			}
			var ev arenadto.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				return err
			}
			cb(ev)
			if isTerminal(ev) {
				return nil
			}
		}
	}
}
