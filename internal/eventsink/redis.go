// Package eventsink forwards match events to external observers.
package eventsink

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/llm-chess-arena/internal/match"
	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

const defaultTTL = 24 * time.Hour

// Redis keeps the latest snapshot of each match, appends every new log entry
// to a list and publishes events on a per-match channel.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func keyState(id string) string   { return "arena:match:" + strings.TrimSpace(id) }
func keyEntries(id string) string { return keyState(id) + ":entries" }
func keyChannel(id string) string { return keyState(id) + ":events" }
func keyActive() string           { return "arena:matches:active" }

// Channel returns the pub/sub channel events of a match are published on.
func Channel(matchID string) string { return keyChannel(matchID) }

func (s *Redis) Publish(ctx context.Context, ev arenadto.Event) error {
	state, err := json.Marshal(ev.State)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, keyState(ev.MatchID), state, s.ttl)
	if ev.Entry != nil && ev.Appended {
		entry, err := json.Marshal(ev.Entry)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, keyEntries(ev.MatchID), entry)
		pipe.Expire(ctx, keyEntries(ev.MatchID), s.ttl)
	}
	if ev.State.Status == string(match.StatusInProgress) {
		pipe.SAdd(ctx, keyActive(), ev.MatchID)
	} else {
		pipe.SRem(ctx, keyActive(), ev.MatchID)
	}
	pipe.Publish(ctx, keyChannel(ev.MatchID), raw)
	_, err = pipe.Exec(ctx)
	return err
}

// LoadState returns the last stored snapshot, or nil when the match is unknown
// or expired.
func (s *Redis) LoadState(ctx context.Context, matchID string) (*arenadto.State, error) {
	raw, err := s.rdb.Get(ctx, keyState(matchID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st arenadto.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Redis) Entries(ctx context.Context, matchID string) ([]arenadto.Entry, error) {
	rows, err := s.rdb.LRange(ctx, keyEntries(matchID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]arenadto.Entry, 0, len(rows))
	for _, row := range rows {
		var e arenadto.Entry
		if err := json.Unmarshal([]byte(row), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Active lists matches whose last published status was in progress.
func (s *Redis) Active(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, keyActive()).Result()
}

func (s *Redis) Close() error { return nil }
