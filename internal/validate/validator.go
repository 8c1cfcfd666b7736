// Package validate resolves parser candidates against a position and explains
// rejections precisely enough to drive corrective feedback.
package validate

import (
	"fmt"
	"strings"

	"github.com/park285/llm-chess-arena/internal/moveparse"
	"github.com/park285/llm-chess-arena/internal/position"
)

var pieceNames = map[byte]string{
	'p': "pawn",
	'n': "knight",
	'b': "bishop",
	'r': "rook",
	'q': "queen",
	'k': "king",
}

// Validate returns the legal move the candidate denotes, or an *position.IllegalMoveError.
func Validate(c moveparse.Candidate, pos *position.Position) (position.Move, error) {
	if pos == nil {
		return position.Move{}, fmt.Errorf("validate: nil position")
	}
	switch c.Kind {
	case moveparse.KindUCI:
		return validateUCI(c, pos)
	case moveparse.KindSAN:
		return validateSAN(c, pos)
	case moveparse.KindCastle:
		return validateCastle(c, pos)
	case moveparse.KindResign:
		return position.Move{}, reject(c, pos, position.ReasonUnparseable, "resignation is not a move")
	default:
		return position.Move{}, reject(c, pos, position.ReasonUnparseable, "unrecognised move notation")
	}
}

func reject(c moveparse.Candidate, pos *position.Position, reason position.Reason, detail string) error {
	mv := c.Text
	if mv == "" {
		mv = strings.TrimSpace(c.Raw)
	}
	return &position.IllegalMoveError{Move: mv, Side: pos.Turn(), Reason: reason, Detail: detail}
}

func validateUCI(c moveparse.Candidate, pos *position.Position) (position.Move, error) {
	if mv, ok := pos.Lookup(c.From + c.To + c.Promotion); ok {
		return mv, nil
	}
	turn := pos.Turn()
	pc, ok := pos.PieceAt(c.From)
	if !ok {
		return position.Move{}, reject(c, pos, position.ReasonEmptySquare, fmt.Sprintf("there is no piece on %s", c.From))
	}
	if pc.Color != turn {
		return position.Move{}, reject(c, pos, position.ReasonNotOwnPiece,
			fmt.Sprintf("the %s on %s belongs to %s", pieceNames[pc.Type], c.From, turn.Opponent().Title()))
	}
	if reason, detail := promotionProblem(pc, c.To, c.Promotion, turn); reason != "" {
		return position.Move{}, reject(c, pos, reason, detail)
	}
	if pos.Reachable(c.From, c.To) {
		return position.Move{}, reject(c, pos, position.ReasonIntoCheck, kingSafetyDetail(pc, c.From, c.To))
	}
	return position.Move{}, reject(c, pos, position.ReasonGeometry,
		fmt.Sprintf("a %s cannot move from %s to %s", pieceNames[pc.Type], c.From, c.To))
}

func validateSAN(c moveparse.Candidate, pos *position.Position) (position.Move, error) {
	turn := pos.Turn()
	var matches []position.Move
	for _, m := range pos.LegalMoves() {
		pc, ok := pos.PieceAt(m.From)
		if !ok || pc.Type != c.Piece || m.To != c.To {
			continue
		}
		if c.FromFile != 0 && m.From[0] != c.FromFile {
			continue
		}
		if c.FromRank != 0 && m.From[1] != c.FromRank {
			continue
		}
		matches = append(matches, m)
	}

	var exact []position.Move
	for _, m := range matches {
		if m.Promotion == c.Promotion {
			exact = append(exact, m)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		froms := make([]string, len(exact))
		for i, m := range exact {
			froms[i] = m.From
		}
		return position.Move{}, reject(c, pos, position.ReasonAmbiguous,
			fmt.Sprintf("%s could mean a %s from %s", c.Text, pieceNames[c.Piece], strings.Join(froms, " or ")))
	case len(matches) > 0:
		if c.Promotion == "" {
			return position.Move{}, reject(c, pos, position.ReasonMalformedPromotion,
				fmt.Sprintf("a pawn reaching %s must name its promotion piece", c.To))
		}
		return position.Move{}, reject(c, pos, position.ReasonMalformedPromotion, promotionTargetDetail(c.Promotion))
	}

	own := candidateSources(pos, turn, c)
	for _, from := range own {
		if !pos.Reachable(from, c.To) {
			continue
		}
		pc, _ := pos.PieceAt(from)
		if reason, detail := promotionProblem(pc, c.To, c.Promotion, turn); reason != "" {
			return position.Move{}, reject(c, pos, reason, detail)
		}
		return position.Move{}, reject(c, pos, position.ReasonIntoCheck, kingSafetyDetail(pc, from, c.To))
	}
	// An own piece that could have been meant makes this a geometry error.
	for _, from := range candidateSources(pos, turn.Opponent(), c) {
		if len(own) == 0 && pos.Reachable(from, c.To) {
			return position.Move{}, reject(c, pos, position.ReasonNotOwnPiece,
				fmt.Sprintf("the %s on %s belongs to %s", pieceNames[c.Piece], from, turn.Opponent().Title()))
		}
	}
	if c.Promotion != "" && c.Piece != 'p' {
		return position.Move{}, reject(c, pos, position.ReasonMalformedPromotion,
			fmt.Sprintf("only pawns promote, not a %s", pieceNames[c.Piece]))
	}
	if c.FromFile != 0 && c.FromRank != 0 {
		if _, ok := pos.PieceAt(string([]byte{c.FromFile, c.FromRank})); !ok {
			return position.Move{}, reject(c, pos, position.ReasonEmptySquare,
				fmt.Sprintf("there is no piece on %c%c", c.FromFile, c.FromRank))
		}
	}
	if !ownsAny(pos, turn, c.Piece) {
		return position.Move{}, reject(c, pos, position.ReasonEmptySquare,
			fmt.Sprintf("%s has no %s left", turn.Title(), pieceNames[c.Piece]))
	}
	return position.Move{}, reject(c, pos, position.ReasonGeometry,
		fmt.Sprintf("no %s %s can reach %s", turn.Title(), pieceNames[c.Piece], c.To))
}

func validateCastle(c moveparse.Candidate, pos *position.Position) (position.Move, error) {
	turn := pos.Turn()
	rank := "1"
	if turn == position.Black {
		rank = "8"
	}
	from, to := "e"+rank, "g"+rank
	if c.LongCastle {
		to = "c" + rank
	}
	for _, m := range pos.LegalMoves() {
		if m.From != from || m.To != to {
			continue
		}
		if pc, ok := pos.PieceAt(from); ok && pc.Type == 'k' {
			return m, nil
		}
	}
	if pc, ok := pos.PieceAt(from); !ok || pc.Type != 'k' || pc.Color != turn {
		return position.Move{}, reject(c, pos, position.ReasonGeometry, "the king has left its starting square")
	}
	if pos.Reachable(from, to) {
		return position.Move{}, reject(c, pos, position.ReasonIntoCheck, "the king may not castle out of or through check")
	}
	return position.Move{}, reject(c, pos, position.ReasonGeometry, "castling rights are gone or the path is blocked")
}

// candidateSources lists squares holding a piece of side that fits the SAN
// candidate's piece type and disambiguation.
func candidateSources(pos *position.Position, side position.Color, c moveparse.Candidate) []string {
	var out []string
	for file := byte('a'); file <= 'h'; file++ {
		if c.FromFile != 0 && file != c.FromFile {
			continue
		}
		if c.Piece == 'p' && c.FromFile == 0 && file != c.To[0] {
			continue
		}
		for rank := byte('1'); rank <= '8'; rank++ {
			if c.FromRank != 0 && rank != c.FromRank {
				continue
			}
			sq := string([]byte{file, rank})
			if pc, ok := pos.PieceAt(sq); ok && pc.Color == side && pc.Type == c.Piece {
				out = append(out, sq)
			}
		}
	}
	return out
}

func ownsAny(pos *position.Position, side position.Color, kind byte) bool {
	for file := byte('a'); file <= 'h'; file++ {
		for rank := byte('1'); rank <= '8'; rank++ {
			if pc, ok := pos.PieceAt(string([]byte{file, rank})); ok && pc.Color == side && pc.Type == kind {
				return true
			}
		}
	}
	return false
}

func promotionProblem(pc position.Piece, to, promo string, turn position.Color) (position.Reason, string) {
	last := byte('8')
	if turn == position.Black {
		last = '1'
	}
	onLast := len(to) == 2 && to[1] == last
	switch {
	case pc.Type == 'p' && onLast && promo == "":
		return position.ReasonMalformedPromotion, fmt.Sprintf("a pawn reaching %s must name its promotion piece", to)
	case promo != "" && pc.Type != 'p':
		return position.ReasonMalformedPromotion, fmt.Sprintf("only pawns promote, not a %s", pieceNames[pc.Type])
	case promo != "" && !onLast:
		return position.ReasonMalformedPromotion, fmt.Sprintf("a pawn on %s does not promote", to)
	case promo != "" && !strings.Contains("qrbn", promo):
		return position.ReasonMalformedPromotion, promotionTargetDetail(promo)
	}
	return "", ""
}

func promotionTargetDetail(promo string) string {
	if name, ok := pieceNames[promo[0]]; ok {
		return fmt.Sprintf("a pawn cannot promote to a %s, only to a queen, rook, bishop or knight", name)
	}
	return fmt.Sprintf("cannot promote to %q", promo)
}

func kingSafetyDetail(pc position.Piece, from, to string) string {
	if pc.Type == 'k' {
		return fmt.Sprintf("the king on %s cannot step to %s because it is attacked", from, to)
	}
	return fmt.Sprintf("moving the %s from %s to %s leaves the king in check", pieceNames[pc.Type], from, to)
}
