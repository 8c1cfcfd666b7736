package match

import (
	"github.com/park285/llm-chess-arena/internal/matchlog"
	"github.com/park285/llm-chess-arena/internal/position"
	"github.com/park285/llm-chess-arena/pkg/arenadto"
)

// EventDTO converts an event to its wire form.
func (m *Match) EventDTO(ev Event) arenadto.Event {
	out := arenadto.Event{
		MatchID: m.cfg.ID,
		Seq:     ev.Seq,
		Phase:   string(ev.Phase),
		State:   m.StateDTO(ev.State),
		At:      ev.At,
	}
	if ev.Entry != nil {
		e := entryDTO(*ev.Entry)
		out.Entry = &e
		out.Appended = ev.Appended
	}
	return out
}

// StateDTO converts a snapshot to its wire form.
func (m *Match) StateDTO(st State) arenadto.State {
	out := arenadto.State{
		MatchID:  st.ID,
		Status:   string(st.Status),
		Phase:    string(st.Phase),
		Turn:     string(st.Active),
		Ply:      st.Ply,
		MovesUCI: make([]string, len(st.History)),
		MovesSAN: make([]string, len(st.History)),
		Result:   st.Result(),
		Detail:   st.Detail,
		White:    m.playerDTO(position.White, st),
		Black:    m.playerDTO(position.Black, st),
		Updated:  st.UpdatedAt,
	}
	if st.Position != nil {
		out.FEN = st.Position.FEN()
	}
	for i, mv := range st.History {
		out.MovesUCI[i] = mv.UCI
		out.MovesSAN[i] = mv.SAN
	}
	if st.Winner != nil {
		out.Winner = string(*st.Winner)
	}
	return out
}

func (m *Match) playerDTO(c position.Color, st State) arenadto.Player {
	p := m.Player(c)
	out := arenadto.Player{
		Name:        p.label(),
		Provider:    p.Client.Provider(),
		Model:       p.Client.Model(),
		RetryBudget: p.RetryBudget,
	}
	if c == st.Active {
		out.AttemptsUsed = st.Attempts
	}
	if left, ok := st.Clocks[c]; ok {
		ms := left.Milliseconds()
		out.ClockMillis = &ms
	}
	return out
}

func entryDTO(e matchlog.Entry) arenadto.Entry {
	out := arenadto.Entry{
		Ply:           e.Ply,
		Actor:         string(e.Actor),
		Model:         e.Model,
		Raw:           e.Raw,
		Candidate:     e.Candidate,
		Outcome:       string(e.Outcome),
		Reason:        string(e.Reason),
		Detail:        e.Detail,
		Retry:         e.Retry,
		Explanation:   e.Explanation,
		LatencyMillis: e.Latency.Milliseconds(),
		At:            e.At,
	}
	if e.HasConfidence {
		c := e.Confidence
		out.Confidence = &c
	}
	if e.Move != nil {
		out.Move = &arenadto.Move{
			UCI:       e.Move.UCI,
			SAN:       e.Move.SAN,
			From:      e.Move.From,
			To:        e.Move.To,
			Promotion: e.Move.Promotion,
			Capture:   e.Move.Capture,
		}
	}
	return out
}
