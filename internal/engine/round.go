package engine

import "github.com/hazyhaar/debatehub/internal/db"

// MaxRounds is the number of rounds in every debate.
const MaxRounds = 3

// ComputeCurrentRound derives the open round from the arguments already
// appended: fewer than two means round 1, fewer than four round 2, and
// round 3 from then on. It never returns more than MaxRounds.
func ComputeCurrentRound(arguments []*db.Argument) int {
	return roundForCount(len(arguments))
}

func roundForCount(n int) int {
	switch {
	case n < 2:
		return 1
	case n < 4:
		return 2
	default:
		return MaxRounds
	}
}
