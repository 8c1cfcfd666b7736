package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/llm-chess-arena/internal/watch"
	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

func main() {
	matchID := flag.String("match", "", "match id to follow")
	wsURL := flag.String("ws", os.Getenv("ARENA_WS_URL"), "arena websocket base URL, e.g. ws://localhost:8090")
	redisURL := flag.String("redis", os.Getenv("REDIS_URL"), "follow the redis channel instead of the websocket")
	flag.Parse()

	if *matchID == "" {
		log.Fatal("-match is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.TrimSpace(*redisURL) != "" {
		opts, err := redis.ParseURL(*redisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := watch.FollowRedis(ctx, rdb, *matchID, printEvent); err != nil {
			log.Printf("redis follow: %v", err)
		}
		return
	}

	if *wsURL == "" {
		log.Fatal("-ws or -redis is required")
	}
	c := watch.NewClient(*wsURL, *matchID, 5, time.Second)
	c.OnStateChange(func(state watch.State) {
		log.Printf("WS state: %s", state)
	})
	c.OnEvent(printEvent)
	if err := c.Run(ctx); err != nil {
		log.Printf("ws follow: %v", err)
	}
}

func printEvent(ev arenadto.Event) {
	st := ev.State
	line := fmt.Sprintf("#%d ply=%d %s %s", ev.Seq, st.Ply, st.Turn, ev.Phase)
	if e := ev.Entry; e != nil && ev.Appended {
		switch {
		case e.Move != nil:
			line += fmt.Sprintf(" %s %s", e.Actor, e.Move.SAN)
		default:
			line += fmt.Sprintf(" %s %s %q (%s)", e.Actor, e.Outcome, e.Candidate, e.Reason)
		}
		if e.Explanation != "" {
			line += " - " + e.Explanation
		}
	}
	if ev.Phase == "terminated" {
		line += fmt.Sprintf(" => %s %s %s", st.Status, st.Result, st.Detail)
	}
	fmt.Println(line)
}
