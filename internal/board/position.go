package board

// Position is a mailbox view of a chess position: enough to derive the
// network's input features and king buckets, nothing about move legality.
type Position struct {
	Board      [64]Piece
	SideToMove Color
	KingSquare [2]Square
}

// NewPosition returns the standard starting position.
func NewPosition() *Position {
	pos, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

// PieceAt returns the piece on sq, or NoPiece.
func (p *Position) PieceAt(sq Square) Piece {
	if !sq.IsValid() {
		return NoPiece
	}
	return p.Board[sq]
}

// Count returns the number of pieces on the board, kings included.
func (p *Position) Count() int {
	n := 0
	for _, pc := range p.Board {
		if pc != NoPiece {
			n++
		}
	}
	return n
}
