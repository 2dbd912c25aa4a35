package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/hailam/aethersprout/internal/board"
	"github.com/hailam/aethersprout/internal/nnue"
)

func runBucket(args []string) error {
	fs := flag.NewFlagSet("bucket", flag.ExitOnError)
	fen := fs.String("fen", board.StartFEN, "position")
	fs.Parse(args)

	pos, err := board.ParseFEN(*fen)
	if err != nil {
		return err
	}
	for _, c := range []board.Color{board.White, board.Black} {
		ksq := pos.KingSquare[c]
		fmt.Printf("%s: king %s (relative %s) -> bucket %d\n",
			c, ksq, ksq.Relative(c), nnue.KingBucket(pos, c))
	}
	fmt.Printf("side to move %s uses bucket %d\n", pos.SideToMove, nnue.KingBucket(pos, pos.SideToMove))
	return nil
}

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	netPath := fs.String("net", "", "network file")
	fen := fs.String("fen", board.StartFEN, "position")
	fs.Parse(args)
	if *netPath == "" {
		return errors.New("missing -net")
	}

	net, err := nnue.LoadFile(*netPath)
	if err != nil {
		return err
	}
	pos, err := board.ParseFEN(*fen)
	if err != nil {
		return err
	}
	out, err := net.Evaluate(pos)
	if err != nil {
		return err
	}
	fmt.Printf("bucket %d: head A %d, head B %d, gate %.4f\n", out.Bucket, out.ScoreA, out.ScoreB, out.Gate)
	fmt.Printf("score %d (side to move %s)\n", out.Score, pos.SideToMove)
	return nil
}
