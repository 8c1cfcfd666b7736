package position

import "fmt"

// Reason classifies why a move was rejected.
type Reason string

const (
	ReasonNotLegal           Reason = "not_legal"
	ReasonGeometry           Reason = "geometry"
	ReasonIntoCheck          Reason = "into_check"
	ReasonNotOwnPiece        Reason = "not_own_piece"
	ReasonEmptySquare        Reason = "empty_square"
	ReasonMalformedPromotion Reason = "malformed_promotion"
	ReasonAmbiguous          Reason = "ambiguous"
	ReasonUnparseable        Reason = "unparseable"
)

// IllegalMoveError is returned when a move cannot be played in a position.
type IllegalMoveError struct {
	Move   string
	Side   Color
	Reason Reason
	Detail string
}

func (e *IllegalMoveError) Error() string {
	msg := fmt.Sprintf("illegal move %q for %s (%s)", e.Move, e.Side, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
