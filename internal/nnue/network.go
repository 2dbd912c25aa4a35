package nnue

import (
	"math"

	"github.com/hailam/aethersprout/internal/board"
)

// Output is the result of a forward pass.
type Output struct {
	Bucket int
	ScoreA int32   // head A output, before the final division
	ScoreB int32   // head B output, before the final division
	Gate   float64 // blend weight of head A, in [0, 1]
	Score  int     // gate*ScoreA + (1-gate)*ScoreB, divided by OutputScale
}

// ClampedReLU clamps a value to [0, QA].
func ClampedReLU(x int32) int16 {
	if x < 0 {
		return 0
	}
	if x > QA {
		return QA
	}
	return int16(x)
}

// Forward runs the heads and the gate on an accumulator.
func (n *Network) Forward(acc *Accumulator) Output {
	bw := &n.Buckets[acc.Bucket]
	d := n.Topology.Dims

	trunk := make([]int16, d.Trunk)
	for i, v := range acc.Values {
		trunk[i] = ClampedReLU(int32(v))
	}

	scoreA := head(&bw.HeadA, trunk, d.Head)
	scoreB := head(&bw.HeadB, trunk, d.Head)
	gateRaw := head(&bw.Gate, trunk, d.Gate)

	gate := 1.0 / (1.0 + math.Exp(-float64(gateRaw)/GateScale))
	blended := gate*float64(scoreA) + (1.0-gate)*float64(scoreB)

	return Output{
		Bucket: acc.Bucket,
		ScoreA: scoreA,
		ScoreB: scoreB,
		Gate:   gate,
		Score:  int(blended / OutputScale),
	}
}

// Evaluate returns the blended score of a position from the side to move's
// perspective.
func (n *Network) Evaluate(pos *board.Position) (Output, error) {
	acc, err := n.AccumulatePosition(pos, pos.SideToMove)
	if err != nil {
		return Output{}, err
	}
	return n.Forward(acc), nil
}

// head computes trunk -> hidden (>> HiddenShift, CReLU) -> scalar.
func head(h *HeadWeights, trunk []int16, hidden int) int32 {
	act := make([]int16, hidden)
	for j := 0; j < hidden; j++ {
		sum := linear(trunk, h.Weights[j*len(trunk):(j+1)*len(trunk)], h.Bias[j])
		act[j] = ClampedReLU(sum >> HiddenShift)
	}
	return linear(act, h.OutWeights, h.OutBias)
}

// linear returns bias + sum(input[i] * row[i]).
func linear(input []int16, row []int8, bias int32) int32 {
	sum := bias
	for i, x := range input {
		sum += int32(x) * int32(row[i])
	}
	return sum
}
