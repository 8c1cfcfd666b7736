package eventsink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/match"
	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

// Sink receives every event of a match in order.
type Sink interface {
	Publish(ctx context.Context, ev arenadto.Event) error
}

const publishTimeout = 3 * time.Second

// Forward subscribes to m and hands each event to every sink until the match
// terminates. Sink errors are logged and never stop the match.
//
// Forward must be called before m.Run so no event is missed. It returns a
// function that blocks until the last event has been delivered.
func Forward(m *match.Match, logger *zap.Logger, sinks ...Sink) (wait func()) {
	if logger == nil {
		logger = zap.NewNop()
	}
	events, _ := m.Subscribe(1024)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			dto := m.EventDTO(ev)
			for _, s := range sinks {
				ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
				err := s.Publish(ctx, dto)
				cancel()
				if err != nil {
					logger.Warn("event_sink_publish_failed",
						zap.String("match_id", dto.MatchID),
						zap.Int("seq", dto.Seq),
						zap.Error(err),
					)
				}
			}
		}
	}()
	return func() { <-done }
}
