package matchlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/llm-chess-arena/internal/position"
)

// Header holds the PGN tag pairs for an export.
type Header struct {
	Event       string
	Site        string
	Date        time.Time
	White       string
	Black       string
	Result      string // 1-0, 0-1, 1/2-1/2 or *
	Termination string
	StartFEN    string
}

// ResultToken maps a winner to its PGN result. A nil winner with draw set is a
// draw; nil without draw is an unfinished game.
func ResultToken(winner *position.Color, draw bool) string {
	switch {
	case winner != nil && *winner == position.White:
		return "1-0"
	case winner != nil && *winner == position.Black:
		return "0-1"
	case draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// PGN exports the accepted moves with the model's explanation as a comment
// after each move, followed by a statistics comment.
func (l *Log) PGN(h Header) (string, error) {
	var b strings.Builder
	date := h.Date
	if date.IsZero() {
		date = time.Now()
	}
	result := strings.TrimSpace(h.Result)
	if result == "" {
		result = "*"
	}
	event := h.Event
	if strings.TrimSpace(event) == "" {
		event = "LLM Chess Arena"
	}
	site := h.Site
	if strings.TrimSpace(site) == "" {
		site = "local"
	}

	b.WriteString(fmt.Sprintf("[Event \"%s\"]\n", sanitizePGN(event)))
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(site)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(h.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(h.Black)))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", result))

	start, err := position.New(h.StartFEN)
	if err != nil {
		return "", fmt.Errorf("pgn start position: %w", err)
	}
	if start.FEN() != position.StartFEN {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", start.FEN()))
	}
	if strings.TrimSpace(h.Termination) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(h.Termination)))
	}
	b.WriteString("\n")

	number := start.FullmoveNumber()
	turn := start.Turn()
	first := true
	for _, e := range l.Entries() {
		if !e.Accepted() {
			continue
		}
		switch {
		case turn == position.White:
			b.WriteString(fmt.Sprintf("%d. ", number))
		case first:
			b.WriteString(fmt.Sprintf("%d... ", number))
		}
		b.WriteString(e.Move.SAN)
		b.WriteString(" ")
		if c := moveComment(e); c != "" {
			b.WriteString("{" + c + "} ")
		}
		if turn == position.Black {
			number++
		}
		turn = turn.Opponent()
		first = false
	}

	b.WriteString("{" + statsComment(l.Stats(), h.Termination) + "} ")
	b.WriteString(result)
	b.WriteString("\n")
	return b.String(), nil
}

func moveComment(e Entry) string {
	ex := sanitizeComment(e.Explanation)
	if !e.HasConfidence {
		return ex
	}
	conf := fmt.Sprintf("confidence: %.2f", e.Confidence)
	if ex == "" {
		return conf
	}
	return ex + " (" + conf + ")"
}

func statsComment(st Stats, termination string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Total moves: %d. ", st.TotalMoves))
	b.WriteString(fmt.Sprintf("Average think time: White %.2fs, Black %.2fs. ",
		st.White.AverageThink.Seconds(), st.Black.AverageThink.Seconds()))
	b.WriteString(fmt.Sprintf("Longest think time: White %.2fs, Black %.2fs. ",
		st.White.LongestThink.Seconds(), st.Black.LongestThink.Seconds()))
	b.WriteString(fmt.Sprintf("Rejected attempts: White %d, Black %d.", st.White.Rejected, st.Black.Rejected))
	if t := sanitizeComment(termination); t != "" {
		b.WriteString(" Termination: " + t + ".")
	}
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

// sanitizeComment keeps a comment on one line with no closing brace.
func sanitizeComment(s string) string {
	s = strings.NewReplacer("{", "(", "}", ")", "\r", " ", "\n", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
