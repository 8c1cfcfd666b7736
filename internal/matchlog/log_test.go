package matchlog

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/llm-chess-arena/internal/position"
)

func move(uci, san string) *position.Move {
	return &position.Move{From: uci[:2], To: uci[2:4], UCI: uci, SAN: san}
}

func sampleLog(t *testing.T) *Log {
	t.Helper()
	l := New()
	entries := []Entry{
		{Ply: 1, Actor: position.White, Move: move("e2e4", "e4"), Outcome: OutcomeAccepted, Latency: 2 * time.Second,
			Explanation: "take the centre", Confidence: 0.9, HasConfidence: true},
		{Ply: 2, Actor: position.Black, Outcome: OutcomeMalformed, Detail: "no move found", Latency: time.Second},
		{Ply: 2, Actor: position.Black, Move: move("e7e5", "e5"), Outcome: OutcomeAccepted, Retry: 1, Latency: 3 * time.Second},
		{Ply: 3, Actor: position.White, Move: move("g1f3", "Nf3"), Outcome: OutcomeAccepted, Latency: 4 * time.Second,
			Explanation: "develop {quickly}"},
	}
	for _, e := range entries {
		if err := l.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return l
}

func TestAppendAndFreeze(t *testing.T) {
	l := sampleLog(t)
	if l.Len() != 4 {
		t.Fatalf("Len = %d", l.Len())
	}
	l.Freeze()
	if !l.Frozen() {
		t.Fatalf("expected frozen")
	}
	if err := l.Append(Entry{Ply: 4}); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
	if l.Len() != 4 {
		t.Fatalf("frozen log grew")
	}
}

func TestEntriesAreCopies(t *testing.T) {
	l := sampleLog(t)
	got := l.Entries()
	got[0].Move.SAN = "hacked"
	if l.Entries()[0].Move.SAN != "e4" {
		t.Fatalf("Entries leaked internal move pointer")
	}
	last, ok := l.Last()
	if !ok || last.Move.UCI != "g1f3" {
		t.Fatalf("Last = %+v", last)
	}
}

func TestAcceptedSkipsRejected(t *testing.T) {
	l := sampleLog(t)
	if diff := cmp.Diff([]string{"e2e4", "e7e5", "g1f3"}, l.AcceptedUCI()); diff != "" {
		t.Fatalf("accepted moves mismatch (-want +got):\n%s", diff)
	}
	if _, err := position.Replay("", l.AcceptedUCI()); err != nil {
		t.Fatalf("accepted moves do not replay: %v", err)
	}
}

func TestStats(t *testing.T) {
	got := sampleLog(t).Stats()
	want := Stats{
		TotalMoves: 3,
		White:      SideStats{Moves: 2, Attempts: 2, TotalThink: 6 * time.Second, AverageThink: 3 * time.Second, LongestThink: 4 * time.Second},
		Black:      SideStats{Moves: 1, Attempts: 2, Rejected: 1, TotalThink: 4 * time.Second, AverageThink: 2 * time.Second, LongestThink: 3 * time.Second},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
	if got.Side(position.Black).Rejected != 1 {
		t.Fatalf("Side(black) wrong")
	}
}

func TestPGNExport(t *testing.T) {
	l := sampleLog(t)
	white := position.White
	pgn, err := l.PGN(Header{
		White:       "openai/gpt-4o",
		Black:       "anthropic/\"claude\"",
		Date:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Result:      ResultToken(&white, false),
		Termination: "forfeit",
	})
	if err != nil {
		t.Fatalf("PGN: %v", err)
	}
	for _, want := range []string{
		"[Date \"2026.03.01\"]",
		"[Black \"anthropic/'claude'\"]",
		"[Result \"1-0\"]",
		"[Termination \"forfeit\"]",
		"1. e4 {take the centre (confidence: 0.90)} e5 2. Nf3 {develop (quickly)}",
		"Rejected attempts: White 0, Black 1.",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if strings.Contains(pgn, "[FEN") {
		t.Fatalf("standard start should not emit FEN tag")
	}
	if !strings.HasSuffix(strings.TrimSpace(pgn), "1-0") {
		t.Fatalf("pgn should end with result:\n%s", pgn)
	}
}

func TestPGNFromBlackToMove(t *testing.T) {
	l := New()
	_ = l.Append(Entry{Ply: 1, Actor: position.Black, Move: move("e7e5", "e5"), Outcome: OutcomeAccepted})
	_ = l.Append(Entry{Ply: 2, Actor: position.White, Move: move("g1f3", "Nf3"), Outcome: OutcomeAccepted})
	pgn, err := l.PGN(Header{StartFEN: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"})
	if err != nil {
		t.Fatalf("PGN: %v", err)
	}
	if !strings.Contains(pgn, "[SetUp \"1\"]") || !strings.Contains(pgn, "1... e5 2. Nf3") {
		t.Fatalf("unexpected pgn:\n%s", pgn)
	}
	if !strings.HasSuffix(strings.TrimSpace(pgn), "*") {
		t.Fatalf("unfinished game should end with *")
	}
}

func TestResultToken(t *testing.T) {
	black := position.Black
	if ResultToken(&black, false) != "0-1" || ResultToken(nil, true) != "1/2-1/2" || ResultToken(nil, false) != "*" {
		t.Fatalf("ResultToken mapping wrong")
	}
}
