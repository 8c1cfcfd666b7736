// Package arenadto holds the JSON shapes that leave the process: match events
// published to Redis and pushed to websocket observers.
package arenadto

import "time"

type Move struct {
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Capture   bool   `json:"capture,omitempty"`
}

type Entry struct {
	Ply           int       `json:"ply"`
	Actor         string    `json:"actor"`
	Model         string    `json:"model,omitempty"`
	Raw           string    `json:"raw"`
	Candidate     string    `json:"candidate,omitempty"`
	Move          *Move     `json:"move,omitempty"`
	Outcome       string    `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Retry         int       `json:"retry"`
	Explanation   string    `json:"explanation,omitempty"`
	Confidence    *float64  `json:"confidence,omitempty"`
	LatencyMillis int64     `json:"latencyMs"`
	At            time.Time `json:"at"`
}

type Player struct {
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	ClockMillis  *int64 `json:"clockMs,omitempty"`
	RetryBudget  int    `json:"retryBudget"`
	AttemptsUsed int    `json:"attemptsUsed"`
}

type State struct {
	MatchID  string    `json:"matchId"`
	Status   string    `json:"status"`
	Phase    string    `json:"phase"`
	FEN      string    `json:"fen"`
	Turn     string    `json:"turn"`
	Ply      int       `json:"ply"`
	MovesUCI []string  `json:"movesUci"`
	MovesSAN []string  `json:"movesSan"`
	Winner   string    `json:"winner,omitempty"`
	Result   string    `json:"result"`
	Detail   string    `json:"detail,omitempty"`
	White    Player    `json:"white"`
	Black    Player    `json:"black"`
	Updated  time.Time `json:"updatedAt"`
}

type Event struct {
	MatchID string `json:"matchId"`
	Seq     int    `json:"seq"`
	Phase   string `json:"phase"`
	State   State  `json:"state"`
	Entry   *Entry `json:"entry,omitempty"`
	// Appended marks an entry that is new with this event rather than a repeat.
	Appended bool      `json:"appended,omitempty"`
	At       time.Time `json:"at"`
}
