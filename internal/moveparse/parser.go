// Package moveparse extracts a single candidate move from free-form model output.
//
// Extraction order is fixed: JSON objects carrying a "move" key, then a
// <move>...</move> tag, then a reply that is nothing but one move token.
// Two different moves found by the winning strategy is an ambiguity error,
// never a guess.
package moveparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrMalformedResponse = errors.New("malformed model response")

// Kind is the syntactic family of a candidate.
type Kind string

const (
	KindUCI    Kind = "uci"
	KindSAN    Kind = "san"
	KindCastle Kind = "castle"
	KindResign Kind = "resign"
)

// Candidate is a move as written by the model, not yet checked against a position.
type Candidate struct {
	Raw  string
	Text string
	Kind Kind

	// UCI form
	From string
	To   string

	// SAN form. Piece is 'p' for pawn moves.
	Piece     byte
	FromFile  byte
	FromRank  byte
	Capture   bool
	Promotion string

	// Castle form
	LongCastle bool

	Explanation   string
	Confidence    float64
	HasConfidence bool
}

var (
	moveTagRe    = regexp.MustCompile(`(?is)<move>\s*(.*?)\s*</move>`)
	uciRe        = regexp.MustCompile(`^([a-h][1-8])-?([a-h][1-8])=?([qrbnkQRBNK])?$`)
	sanRe        = regexp.MustCompile(`^([KQRBN])?([a-h])?([1-8])?(x)?([a-h][1-8])(?:=?([QRBNKqrbnk]))?$`)
	castleRe     = regexp.MustCompile(`^O-O(-O)?$`)
	moveNumberRe = regexp.MustCompile(`^\d+\s*\.+\s*`)
)

// Parse extracts exactly one candidate from raw model text.
func Parse(raw string) (Candidate, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Candidate{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	if replies := jsonReplies(text); len(replies) > 0 {
		return pickOne(replies, "json")
	}

	if tags := moveTagRe.FindAllStringSubmatch(text, -1); len(tags) > 0 {
		replies := make([]reply, 0, len(tags))
		for _, m := range tags {
			replies = append(replies, reply{Move: m[1]})
		}
		return pickOne(replies, "tag")
	}

	if c, err := Token(stripFence(text)); err == nil {
		return c, nil
	}
	return Candidate{}, fmt.Errorf("%w: no move found", ErrMalformedResponse)
}

type reply struct {
	Move          string
	Explanation   string
	Confidence    float64
	HasConfidence bool
}

func pickOne(replies []reply, source string) (Candidate, error) {
	var (
		chosen Candidate
		seen   string
	)
	for i, r := range replies {
		c, err := Token(r.Move)
		if err != nil {
			return Candidate{}, fmt.Errorf("%s move %q: %w", source, r.Move, err)
		}
		if i > 0 && c.Text != seen {
			return Candidate{}, fmt.Errorf("%w: ambiguous %s moves %q and %q", ErrMalformedResponse, source, seen, c.Text)
		}
		if i == 0 {
			c.Explanation = strings.TrimSpace(r.Explanation)
			c.Confidence = r.Confidence
			c.HasConfidence = r.HasConfidence
			chosen = c
			seen = c.Text
		}
	}
	return chosen, nil
}

// jsonReplies decodes every top-level JSON object in text that has a "move" key.
func jsonReplies(text string) []reply {
	var out []reply
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			continue
		}
		end := i + int(dec.InputOffset())
		if mv, ok := obj["move"]; ok {
			r := reply{Move: fmt.Sprint(mv)}
			if s, ok := mv.(string); ok {
				r.Move = s
			}
			if ex, ok := obj["explanation"].(string); ok {
				r.Explanation = ex
			}
			r.Confidence, r.HasConfidence = confidence(obj["confidence"])
			out = append(out, r)
		}
		i = end - 1
	}
	return out
}

func confidence(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f, true
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// Token classifies a single move token.
func Token(tok string) (Candidate, error) {
	raw := tok
	t := normalize(tok)
	if t == "" {
		return Candidate{}, fmt.Errorf("%w: empty move", ErrMalformedResponse)
	}
	c := Candidate{Raw: raw}

	lower := strings.ToLower(t)
	if lower == "resign" || lower == "resigns" || lower == "i resign" {
		c.Kind, c.Text = KindResign, "resign"
		return c, nil
	}

	castle := strings.ReplaceAll(strings.ToUpper(t), "0", "O")
	if castleRe.MatchString(castle) {
		c.Kind, c.Text = KindCastle, castle
		c.LongCastle = castle == "O-O-O"
		return c, nil
	}

	if m := uciRe.FindStringSubmatch(t); m != nil {
		c.Kind = KindUCI
		c.From, c.To = m[1], m[2]
		c.Promotion = strings.ToLower(m[3])
		c.Text = c.From + c.To + c.Promotion
		return c, nil
	}

	if m := sanRe.FindStringSubmatch(t); m != nil {
		c.Kind = KindSAN
		c.Piece = 'p'
		if m[1] != "" {
			c.Piece = strings.ToLower(m[1])[0]
		}
		if m[2] != "" {
			c.FromFile = m[2][0]
		}
		if m[3] != "" {
			c.FromRank = m[3][0]
		}
		c.Capture = m[4] != ""
		c.To = m[5]
		c.Promotion = strings.ToLower(m[6])
		c.Text = t
		return c, nil
	}
	return Candidate{}, fmt.Errorf("%w: %q is not a move", ErrMalformedResponse, raw)
}

func normalize(tok string) string {
	t := strings.TrimSpace(tok)
	t = strings.Trim(t, "\"'`*.,;:()[] \t\r\n")
	t = moveNumberRe.ReplaceAllString(t, "")
	t = strings.TrimSuffix(t, "e.p.")
	t = strings.TrimSpace(t)
	t = strings.TrimRight(t, "+#!?")
	return strings.TrimSpace(t)
}
