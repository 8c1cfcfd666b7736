package position

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrInvariant marks a rule-engine facade defect (a move we listed as legal was rejected).
var ErrInvariant = errors.New("position invariant violated")

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Title returns "White" or "Black".
func (c Color) Title() string {
	if c == White {
		return "White"
	}
	return "Black"
}

// Terminal is the rule-level outcome of a position.
type Terminal string

const (
	TerminalNone                       Terminal = ""
	TerminalCheckmate                  Terminal = "checkmate"
	TerminalStalemate                  Terminal = "stalemate"
	TerminalDrawByRepetition           Terminal = "draw_repetition"
	TerminalDrawByFiftyMove            Terminal = "draw_fifty_move"
	TerminalDrawByInsufficientMaterial Terminal = "draw_insufficient_material"
)

// Move is a fully resolved move in a specific position.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Capture   bool   `json:"capture,omitempty"`
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
}

func (m Move) String() string {
	if m.SAN != "" {
		return m.SAN
	}
	return m.UCI
}

// Piece is the occupant of a square.
type Piece struct {
	Color Color
	Type  byte // one of 'p','n','b','r','q','k'
}

// Option configures a Position.
type Option func(*Position)

// WithClaimDraws makes threefold repetition and the fifty-move rule terminal.
// Without it only the automatic fivefold and seventy-five move variants end the game.
func WithClaimDraws(claim bool) Option {
	return func(p *Position) { p.claimDraws = claim }
}

// Position is an immutable snapshot of a game. Apply never mutates the receiver.
type Position struct {
	game       *nchess.Game
	claimDraws bool

	legal      []Move
	legalByUCI map[string]Move
}

// New builds a position from FEN. Empty or "startpos" yields the standard start.
func New(fen string, opts ...Option) (*Position, error) {
	fen = strings.TrimSpace(fen)
	var game *nchess.Game
	if fen == "" || fen == "startpos" {
		game = nchess.NewGame()
	} else {
		opt, err := nchess.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("parse fen %q: %w", fen, err)
		}
		game = nchess.NewGame(opt)
	}
	p := &Position{game: game}
	for _, opt := range opts {
		opt(p)
	}
	p.index()
	return p, nil
}

// Replay applies UCI moves from startFEN and returns the resulting position.
func Replay(startFEN string, movesUCI []string, opts ...Option) (*Position, error) {
	pos, err := New(startFEN, opts...)
	if err != nil {
		return nil, err
	}
	for i, raw := range movesUCI {
		mv, ok := pos.legalByUCI[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return nil, fmt.Errorf("replay ply %d: %w", i+1, &IllegalMoveError{Move: raw, Side: pos.Turn(), Reason: ReasonNotLegal})
		}
		if pos, err = pos.Apply(mv); err != nil {
			return nil, fmt.Errorf("replay ply %d: %w", i+1, err)
		}
	}
	return pos, nil
}

func (p *Position) index() {
	cur := p.game.Position()
	valid := p.game.ValidMoves()
	uci := nchess.UCINotation{}
	san := nchess.AlgebraicNotation{}
	p.legal = make([]Move, 0, len(valid))
	p.legalByUCI = make(map[string]Move, len(valid))
	for i := range valid {
		mv := &valid[i]
		m := Move{
			From:      mv.S1().String(),
			To:        mv.S2().String(),
			Promotion: promoLetter(mv.Promo()),
			Capture:   mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant),
			UCI:       strings.ToLower(uci.Encode(cur, mv)),
			SAN:       san.Encode(cur, mv),
		}
		p.legal = append(p.legal, m)
		p.legalByUCI[m.UCI] = m
	}
	sort.Slice(p.legal, func(i, j int) bool { return p.legal[i].UCI < p.legal[j].UCI })
}

// LegalMoves returns a copy of the legal move set ordered by UCI text.
func (p *Position) LegalMoves() []Move {
	return append([]Move(nil), p.legal...)
}

// LegalSAN returns the legal moves in SAN, ordered by UCI text.
func (p *Position) LegalSAN() []string {
	out := make([]string, len(p.legal))
	for i, m := range p.legal {
		out[i] = m.SAN
	}
	return out
}

// Lookup resolves a UCI string against the legal set.
func (p *Position) Lookup(uci string) (Move, bool) {
	m, ok := p.legalByUCI[strings.ToLower(strings.TrimSpace(uci))]
	return m, ok
}

// Apply plays m and returns the successor position.
func (p *Position) Apply(m Move) (*Position, error) {
	legal, ok := p.legalByUCI[strings.ToLower(m.UCI)]
	if !ok {
		return nil, &IllegalMoveError{Move: m.String(), Side: p.Turn(), Reason: ReasonNotLegal}
	}
	next := p.game.Clone()
	mv, err := nchess.UCINotation{}.Decode(next.Position(), legal.UCI)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvariant, legal.UCI, err)
	}
	if err := next.Move(mv, nil); err != nil {
		return nil, fmt.Errorf("%w: apply %s: %v", ErrInvariant, legal.UCI, err)
	}
	np := &Position{game: next, claimDraws: p.claimDraws}
	np.index()
	return np, nil
}

// TerminalStatus reports whether the game is over by rule.
func (p *Position) TerminalStatus() Terminal {
	switch p.game.Method() {
	case nchess.Checkmate:
		return TerminalCheckmate
	case nchess.Stalemate:
		return TerminalStalemate
	case nchess.FivefoldRepetition, nchess.ThreefoldRepetition:
		return TerminalDrawByRepetition
	case nchess.SeventyFiveMoveRule, nchess.FiftyMoveRule:
		return TerminalDrawByFiftyMove
	case nchess.InsufficientMaterial:
		return TerminalDrawByInsufficientMaterial
	}
	if len(p.legal) == 0 {
		if p.InCheck() {
			return TerminalCheckmate
		}
		return TerminalStalemate
	}
	if p.claimDraws {
		for _, m := range p.game.EligibleDraws() {
			switch m {
			case nchess.ThreefoldRepetition:
				return TerminalDrawByRepetition
			case nchess.FiftyMoveRule:
				return TerminalDrawByFiftyMove
			}
		}
	}
	return TerminalNone
}

// InCheck reports whether the side to move is in check. Positions loaded from
// FEN without moves fall back to a geometric attack scan.
func (p *Position) InCheck() bool {
	moves := p.game.Moves()
	if n := len(moves); n > 0 {
		return moves[n-1].HasTag(nchess.Check)
	}
	king, ok := p.kingSquare(p.Turn())
	if !ok {
		return false
	}
	return p.Attacked(king, p.Turn().Opponent())
}

// FEN encodes the position.
func (p *Position) FEN() string { return p.game.Position().String() }

// Turn returns the side to move.
func (p *Position) Turn() Color {
	if p.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// Castling returns the FEN castling field ("KQkq", "-", ...).
func (p *Position) Castling() string { return p.fenField(2, "-") }

// EnPassant returns the en-passant target square or "-".
func (p *Position) EnPassant() string { return p.fenField(3, "-") }

// HalfmoveClock returns plies since the last capture or pawn move.
func (p *Position) HalfmoveClock() int {
	n, _ := strconv.Atoi(p.fenField(4, "0"))
	return n
}

// FullmoveNumber returns the FEN fullmove counter.
func (p *Position) FullmoveNumber() int {
	n, err := strconv.Atoi(p.fenField(5, "1"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Placement returns the FEN piece placement field.
func (p *Position) Placement() string { return p.fenField(0, "") }

func (p *Position) fenField(i int, def string) string {
	parts := strings.Fields(p.FEN())
	if i >= len(parts) {
		return def
	}
	return parts[i]
}

// PieceAt returns the piece on square (e.g. "e4").
func (p *Position) PieceAt(square string) (Piece, bool) {
	sq, ok := parseSquare(square)
	if !ok {
		return Piece{}, false
	}
	piece := p.game.Position().Board().Piece(sq)
	if piece == nchess.NoPiece {
		return Piece{}, false
	}
	c := Black
	if piece.Color() == nchess.White {
		c = White
	}
	return Piece{Color: c, Type: typeLetter(piece.Type())}, true
}

func (p *Position) kingSquare(c Color) (string, bool) {
	for file := byte('a'); file <= 'h'; file++ {
		for rank := byte('1'); rank <= '8'; rank++ {
			sq := string([]byte{file, rank})
			if pc, ok := p.PieceAt(sq); ok && pc.Type == 'k' && pc.Color == c {
				return sq, true
			}
		}
	}
	return "", false
}

func parseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

// ValidSquare reports whether s names a board square.
func ValidSquare(s string) bool {
	_, ok := parseSquare(s)
	return ok
}

func typeLetter(t nchess.PieceType) byte {
	switch t {
	case nchess.King:
		return 'k'
	case nchess.Queen:
		return 'q'
	case nchess.Rook:
		return 'r'
	case nchess.Bishop:
		return 'b'
	case nchess.Knight:
		return 'n'
	case nchess.Pawn:
		return 'p'
	default:
		return 0
	}
}

func promoLetter(t nchess.PieceType) string {
	if t == nchess.NoPieceType {
		return ""
	}
	if l := typeLetter(t); l != 0 {
		return string(l)
	}
	return ""
}
