package nnue

import "github.com/hailam/aethersprout/internal/board"

// FeatureCount is the number of input features per perspective:
// 2 sides (own, enemy) x 6 piece types x 64 squares.
const FeatureCount = 2 * 6 * 64

// FeatureIndex computes the input feature of a piece seen from a perspective.
// Squares are relative to the perspective (mirrored for Black), own pieces
// occupy [0, 384) and enemy pieces [384, 768). Kings are included.
func FeatureIndex(perspective board.Color, pc board.Piece, sq board.Square) int {
	if pc == board.NoPiece || !sq.IsValid() {
		return -1
	}
	idx := 64*int(pc.Type()) + int(sq.Relative(perspective))
	if pc.Color() != perspective {
		idx += 384
	}
	return idx
}

// ActiveFeatures returns the active feature indices of a position from one
// perspective, in square order.
func ActiveFeatures(pos *board.Position, perspective board.Color) []int {
	active := make([]int, 0, 32) // Typical piece count
	for sq := board.Square(0); sq < board.NoSquare; sq++ {
		if idx := FeatureIndex(perspective, pos.PieceAt(sq), sq); idx >= 0 {
			active = append(active, idx)
		}
	}
	return active
}
