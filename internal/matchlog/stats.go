package matchlog

import (
	"time"

	"github.com/park285/llm-chess-arena/internal/position"
)

// SideStats aggregates one side's attempts.
type SideStats struct {
	Moves        int           `json:"moves"`
	Attempts     int           `json:"attempts"`
	Rejected     int           `json:"rejected"`
	TotalThink   time.Duration `json:"totalThink"`
	AverageThink time.Duration `json:"averageThink"`
	LongestThink time.Duration `json:"longestThink"`
}

// Stats summarises a log. Think time counts every attempt the side made.
type Stats struct {
	TotalMoves int       `json:"totalMoves"`
	White      SideStats `json:"white"`
	Black      SideStats `json:"black"`
}

// Side returns the stats of c.
func (s Stats) Side(c position.Color) SideStats {
	if c == position.White {
		return s.White
	}
	return s.Black
}

func (l *Log) Stats() Stats {
	var st Stats
	for _, e := range l.Entries() {
		side := &st.Black
		if e.Actor == position.White {
			side = &st.White
		}
		side.Attempts++
		side.TotalThink += e.Latency
		if e.Latency > side.LongestThink {
			side.LongestThink = e.Latency
		}
		switch {
		case e.Accepted():
			side.Moves++
			st.TotalMoves++
		case e.Outcome == OutcomeMalformed || e.Outcome == OutcomeIllegal:
			side.Rejected++
		}
	}
	for _, side := range []*SideStats{&st.White, &st.Black} {
		if side.Attempts > 0 {
			side.AverageThink = side.TotalThink / time.Duration(side.Attempts)
		}
	}
	return st
}
