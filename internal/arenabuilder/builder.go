// Package arenabuilder wires configuration into ready-to-run matches.
package arenabuilder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/config"
	"github.com/park285/llm-chess-arena/internal/eventsink"
	"github.com/park285/llm-chess-arena/internal/llm"
	"github.com/park285/llm-chess-arena/internal/match"
	"github.com/park285/llm-chess-arena/internal/prompt"
)

type Deps struct {
	App    *config.AppConfig
	Match  *config.MatchFile
	Logger *zap.Logger

	Registry *llm.Registry
	Prompts  *prompt.Builder

	// Optional sinks; nil when not configured.
	Redis *eventsink.Redis
	Hub   *eventsink.Hub

	rdb    *redis.Client
	server *http.Server
}

func New(app *config.AppConfig, mf *config.MatchFile, logger *zap.Logger) (*Deps, error) {
	if app == nil || mf == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cat, err := prompt.NewCatalog(app.PromptDir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	policyName := mf.FeedbackPolicy
	if policyName == "" {
		policyName = app.FeedbackPolicy
	}
	policy, err := prompt.ParseFeedbackPolicy(policyName)
	if err != nil {
		return nil, err
	}

	d := &Deps{
		App:      app,
		Match:    mf,
		Logger:   logger,
		Registry: llm.NewRegistry(),
		Prompts:  prompt.NewBuilder(cat, prompt.WithFeedbackPolicy(policy)),
	}

	if strings.TrimSpace(app.RedisURL) != "" {
		opts, err := redis.ParseURL(app.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		d.rdb = redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			_ = d.rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		d.Redis = eventsink.NewRedis(d.rdb, 0)
	}
	if strings.TrimSpace(app.WSAddr) != "" {
		d.Hub = eventsink.NewHub(logger.Named("ws"))
	}
	return d, nil
}

// Serve starts the websocket listener when one is configured. The returned
// address is empty when no listener was started.
func (d *Deps) Serve() (string, error) {
	if d.Hub == nil {
		return "", nil
	}
	ln, err := net.Listen("tcp", d.App.WSAddr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", d.App.WSAddr, err)
	}
	d.server = &http.Server{Handler: d.Hub, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.Logger.Error("ws_server_stopped", zap.Error(err))
		}
	}()
	addr := ln.Addr().String()
	d.Logger.Info("ws_server_listening", zap.String("addr", addr))
	return addr, nil
}

// Sinks returns every configured event sink.
func (d *Deps) Sinks() []eventsink.Sink {
	var out []eventsink.Sink
	if d.Redis != nil {
		out = append(out, d.Redis)
	}
	if d.Hub != nil {
		out = append(out, d.Hub)
	}
	return out
}

// NewMatch builds game number game (0-based) of the match file with fresh
// model clients. With AlternateColors, odd games swap the players.
func (d *Deps) NewMatch(game int) (*match.Match, error) {
	whiteFile, blackFile := d.Match.White, d.Match.Black
	if d.Match.AlternateColors && game%2 == 1 {
		whiteFile, blackFile = blackFile, whiteFile
	}
	white, err := d.player(whiteFile)
	if err != nil {
		return nil, fmt.Errorf("white: %w", err)
	}
	black, err := d.player(blackFile)
	if err != nil {
		return nil, fmt.Errorf("black: %w", err)
	}

	maxPlies := d.Match.MaxPlies
	if maxPlies == 0 {
		maxPlies = d.App.MaxPlies
	}
	id := uuid.NewString()
	return match.New(match.Config{
		ID:             id,
		Event:          d.Match.Event,
		StartFEN:       d.Match.StartFEN,
		MaxPlies:       maxPlies,
		ProviderBudget: d.Match.ProviderBudget,
		ClaimDraws:     d.Match.ClaimDraws,
		Prompts:        d.Prompts,
		Logger:         d.Logger.Named("match"),
	}, white, black)
}

func (d *Deps) player(pf config.PlayerFile) (match.Player, error) {
	client, err := d.Registry.New(pf.ClientConfig(d.App))
	if err != nil {
		return match.Player{}, err
	}
	return match.Player{
		Name:        pf.Name,
		Client:      client,
		Persona:     pf.Persona,
		RetryBudget: pf.RetryBudget,
		CallTimeout: pf.Timeout,
		Clock:       pf.Clock,
	}, nil
}

// Close stops the websocket server and releases the redis client.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.Hub != nil {
		errs = append(errs, d.Hub.Close())
	}
	if d.server != nil {
		errs = append(errs, d.server.Shutdown(ctx))
	}
	if d.rdb != nil {
		errs = append(errs, d.rdb.Close())
	}
	return errors.Join(errs...)
}
