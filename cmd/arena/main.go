package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/llm-chess-arena/internal/arenabuilder"
	appcfg "github.com/park285/llm-chess-arena/internal/config"
	"github.com/park285/llm-chess-arena/internal/eventsink"
	"github.com/park285/llm-chess-arena/internal/obslog"
)

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	matchFile := flag.String("match", "", "match definition (overrides ARENA_MATCH_FILE)")
	pgnDir := flag.String("pgn-dir", "", "write one PGN file per game here instead of stdout")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("dotenv %s: %v", *envFile, err)
	}
	if *matchFile != "" {
		_ = os.Setenv("ARENA_MATCH_FILE", *matchFile)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Printf("logger init error: %v", err)
		return 1
	}
	defer func() { _ = obslog.Sync() }()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Error("config_error", zap.Error(err))
		return 2
	}
	mf, err := appcfg.LoadMatchFile(cfg.MatchFile)
	if err != nil {
		logger.Error("match_file_error", zap.String("path", cfg.MatchFile), zap.Error(err))
		return 2
	}

	deps, err := arenabuilder.New(cfg, mf, logger)
	if err != nil {
		logger.Error("arena_init_error", zap.Error(err))
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = deps.Close(ctx)
	}()
	if _, err := deps.Serve(); err != nil {
		logger.Error("ws_listen_error", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *pgnDir != "" {
		if err := os.MkdirAll(*pgnDir, 0o755); err != nil {
			logger.Error("pgn_dir_error", zap.Error(err))
			return 1
		}
	}

	var failed atomic.Int32
	results := make([]string, mf.Games)
	g := new(errgroup.Group)
	g.SetLimit(cfg.ConcurrentMatches)
	for i := 0; i < mf.Games; i++ {
		game := i
		g.Go(func() error {
			pgn, err := playOne(ctx, deps, game, *pgnDir)
			if err != nil {
				failed.Add(1)
				logger.Error("game_failed", zap.Int("game", game+1), zap.Error(err))
			}
			results[game] = pgn
			return nil
		})
	}
	_ = g.Wait()

	if *pgnDir == "" {
		for _, pgn := range results {
			if pgn != "" {
				fmt.Println(pgn)
			}
		}
	}
	if failed.Load() > 0 {
		return 1
	}
	return 0
}

// playOne runs a single game and returns its PGN. Games that end aborted still
// produce a PGN with result "*".
func playOne(ctx context.Context, deps *arenabuilder.Deps, game int, pgnDir string) (string, error) {
	m, err := deps.NewMatch(game)
	if err != nil {
		return "", err
	}
	wait := eventsink.Forward(m, deps.Logger, deps.Sinks()...)
	st, runErr := m.Run(ctx)
	wait()

	deps.Logger.Info("game_result",
		zap.Int("game", game+1),
		zap.String("match_id", m.ID()),
		zap.String("status", string(st.Status)),
		zap.String("result", st.Result()),
		zap.String("detail", st.Detail),
		zap.Int("plies", len(st.History)))

	pgn, err := m.PGN()
	if err != nil {
		return "", errors.Join(runErr, err)
	}
	if pgnDir != "" {
		path := filepath.Join(pgnDir, m.ID()+".pgn")
		if err := os.WriteFile(path, []byte(pgn), 0o644); err != nil {
			return pgn, errors.Join(runErr, err)
		}
	}
	return pgn, runErr
}
