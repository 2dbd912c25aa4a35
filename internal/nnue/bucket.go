package nnue

import "github.com/hailam/aethersprout/internal/board"

// King bucketing. BucketLayout is the square -> bucket table the trainer's
// input bucketing mirrors; KingBucket reads it at inference and the exporter
// writes BucketCount buckets in ascending order of its values.
const (
	BucketCount      = 8
	SquaresPerBucket = 64 / BucketCount
)

// BucketOf maps a square (0-63) to its bucket: one bucket per rank.
func BucketOf(sq board.Square) int {
	return int(sq) / SquaresPerBucket
}

// KingBucket returns the bucket selected for a perspective: the rank of its
// king square as seen from its own side of the board.
func KingBucket(pos *board.Position, perspective board.Color) int {
	sq := pos.KingSquare[perspective]
	if !sq.IsValid() {
		return BucketCount // rejected by Accumulate
	}
	return bucketLayout[sq.Relative(perspective)]
}

var bucketLayout = BucketLayout()

// BucketLayout returns the square -> bucket table.
func BucketLayout() [64]int {
	var layout [64]int
	for sq := range layout {
		layout[sq] = BucketOf(board.Square(sq))
	}
	return layout
}
