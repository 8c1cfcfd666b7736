package position

// Board geometry used to explain why a move was rejected. Legality itself always
// comes from the rule engine; these helpers only answer "could this piece travel
// there if king safety were ignored".

type offset struct{ df, dr int }

var (
	knightSteps = []offset{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = []offset{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookDirs    = []offset{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs  = []offset{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

func coords(sq string) (int, int) { return int(sq[0] - 'a'), int(sq[1] - '1') }

func square(f, r int) (string, bool) {
	if f < 0 || f > 7 || r < 0 || r > 7 {
		return "", false
	}
	return string([]byte{byte('a' + f), byte('1' + r)}), true
}

// Reachable reports whether the piece on from can move to to by its movement
// pattern, honouring blockers, captures and castling rights but not king safety.
func (p *Position) Reachable(from, to string) bool {
	if !ValidSquare(from) || !ValidSquare(to) || from == to {
		return false
	}
	pc, ok := p.PieceAt(from)
	if !ok {
		return false
	}
	if dst, occupied := p.PieceAt(to); occupied && dst.Color == pc.Color {
		return false
	}
	ff, fr := coords(from)
	tf, tr := coords(to)
	df, dr := tf-ff, tr-fr

	switch pc.Type {
	case 'n':
		return hasStep(knightSteps, df, dr)
	case 'k':
		if hasStep(kingSteps, df, dr) {
			return true
		}
		return p.castleGeometry(pc.Color, from, to)
	case 'r':
		return (df == 0 || dr == 0) && p.clearPath(ff, fr, tf, tr)
	case 'b':
		return abs(df) == abs(dr) && p.clearPath(ff, fr, tf, tr)
	case 'q':
		return (df == 0 || dr == 0 || abs(df) == abs(dr)) && p.clearPath(ff, fr, tf, tr)
	case 'p':
		return p.pawnGeometry(pc.Color, ff, fr, tf, tr, to)
	}
	return false
}

// Attacked reports whether any piece of side by attacks sq.
func (p *Position) Attacked(sq string, by Color) bool {
	tf, tr := coords(sq)
	for _, s := range knightSteps {
		if p.isPiece(tf+s.df, tr+s.dr, by, 'n') {
			return true
		}
	}
	for _, s := range kingSteps {
		if p.isPiece(tf+s.df, tr+s.dr, by, 'k') {
			return true
		}
	}
	pawnRank := -1
	if by == Black {
		pawnRank = 1
	}
	if p.isPiece(tf-1, tr+pawnRank, by, 'p') || p.isPiece(tf+1, tr+pawnRank, by, 'p') {
		return true
	}
	if p.slides(tf, tr, rookDirs, by, 'r') || p.slides(tf, tr, bishopDirs, by, 'b') {
		return true
	}
	return false
}

func (p *Position) slides(f, r int, dirs []offset, by Color, kind byte) bool {
	for _, d := range dirs {
		for i := 1; i < 8; i++ {
			sq, ok := square(f+d.df*i, r+d.dr*i)
			if !ok {
				break
			}
			pc, occupied := p.PieceAt(sq)
			if !occupied {
				continue
			}
			if pc.Color == by && (pc.Type == kind || pc.Type == 'q') {
				return true
			}
			break
		}
	}
	return false
}

func (p *Position) isPiece(f, r int, c Color, kind byte) bool {
	sq, ok := square(f, r)
	if !ok {
		return false
	}
	pc, occupied := p.PieceAt(sq)
	return occupied && pc.Color == c && pc.Type == kind
}

func (p *Position) clearPath(ff, fr, tf, tr int) bool {
	sf, sr := sign(tf-ff), sign(tr-fr)
	f, r := ff+sf, fr+sr
	for f != tf || r != tr {
		sq, _ := square(f, r)
		if _, occupied := p.PieceAt(sq); occupied {
			return false
		}
		f += sf
		r += sr
	}
	return true
}

func (p *Position) pawnGeometry(c Color, ff, fr, tf, tr int, to string) bool {
	dir, home := 1, 1
	if c == Black {
		dir, home = -1, 6
	}
	df, dr := tf-ff, tr-fr
	_, occupied := p.PieceAt(to)
	switch {
	case df == 0 && dr == dir:
		return !occupied
	case df == 0 && dr == 2*dir && fr == home:
		mid, _ := square(ff, fr+dir)
		_, blocked := p.PieceAt(mid)
		return !blocked && !occupied
	case abs(df) == 1 && dr == dir:
		return occupied || p.EnPassant() == to
	}
	return false
}

func (p *Position) castleGeometry(c Color, from, to string) bool {
	rights := p.Castling()
	var right byte
	var between []string
	switch {
	case c == White && from == "e1" && to == "g1":
		right, between = 'K', []string{"f1", "g1"}
	case c == White && from == "e1" && to == "c1":
		right, between = 'Q', []string{"d1", "c1", "b1"}
	case c == Black && from == "e8" && to == "g8":
		right, between = 'k', []string{"f8", "g8"}
	case c == Black && from == "e8" && to == "c8":
		right, between = 'q', []string{"d8", "c8", "b8"}
	default:
		return false
	}
	has := false
	for i := 0; i < len(rights); i++ {
		if rights[i] == right {
			has = true
		}
	}
	if !has {
		return false
	}
	for _, sq := range between {
		if _, occupied := p.PieceAt(sq); occupied {
			return false
		}
	}
	return true
}

func hasStep(steps []offset, df, dr int) bool {
	for _, s := range steps {
		if s.df == df && s.dr == dr {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
