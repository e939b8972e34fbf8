// Package scoring turns per-stage results into exercise and course scores.
package scoring

import (
	"math"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// StageResult is the graded outcome of one stage submission
type StageResult struct {
	Stage  domain.StageID
	Points int // automatic points, 0..100
	Weight int
	// HintMaluses holds the malus of every hint shown before the submission
	HintMaluses []int
	// Manual overrides Points and ignores hint maluses
	Manual  *int
	Skipped bool
}

// Effective returns the points that enter the aggregate
func (r StageResult) Effective(t domain.HintMalusType) int {
	if r.Manual != nil {
		return clamp(*r.Manual)
	}
	return ApplyHintMalus(r.Points, r.HintMaluses, t)
}

// ApplyHintMalus reduces points by the cumulated maluses of the shown hints.
// CUT_MAXIMUM caps the points at 100 minus the maluses, CUT_ACTUAL scales
// them by the remaining percentage. An empty malus type leaves points as is.
func ApplyHintMalus(points int, maluses []int, t domain.HintMalusType) int {
	points = clamp(points)
	total := 0
	for _, m := range maluses {
		total += m
	}
	if total == 0 {
		return points
	}

	switch t {
	case domain.MalusCutMaximum:
		return min(points, clamp(100-total))
	case domain.MalusCutActual:
		return clamp(roundHalfUp(float64(points) * float64(100-total) / 100))
	default:
		return points
	}
}

// TotalScore combines results into the exercise score: the weighted mean of
// effective points, rounded half up. Zero when nothing was counted.
func TotalScore(results []StageResult, t domain.HintMalusType) int {
	acc, weights := accumulate(results, t)
	if weights == 0 {
		return 0
	}
	return roundHalfUp(acc / weights)
}

// MaxRemainingScore is the best score still reachable from current: the
// points accumulated so far plus full points along the heaviest suffix path
// of current. A current stage that already has a result is not counted
// twice. Stages without a suffix path contribute nothing.
func MaxRemainingScore(results []StageResult, t domain.HintMalusType, suffixWeights map[domain.StageID]int, current domain.StageID) int {
	acc, weights := accumulate(results, t)
	remaining := float64(remainingWeight(results, suffixWeights, current))
	acc += 100 * remaining
	weights += remaining
	if weights == 0 {
		return 0
	}
	return roundHalfUp(acc / weights)
}

// RunningScore is the provisional score of an unfinished submission that is
// currently at stage current: accumulated points over the counted weights
// plus the weight still ahead. Nothing ahead and nothing counted yields 100.
func RunningScore(results []StageResult, t domain.HintMalusType, suffixWeights map[domain.StageID]int, current domain.StageID) int {
	acc, weights := accumulate(results, t)
	weights += float64(remainingWeight(results, suffixWeights, current))
	if weights == 0 {
		return 100
	}
	return roundHalfUp(acc / weights)
}

func accumulate(results []StageResult, t domain.HintMalusType) (acc, weights float64) {
	for _, r := range results {
		acc += float64(r.Effective(t) * r.Weight)
		weights += float64(r.Weight)
	}
	return acc, weights
}

func remainingWeight(results []StageResult, suffixWeights map[domain.StageID]int, current domain.StageID) int {
	w, ok := suffixWeights[current]
	if !ok {
		return 0
	}
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Stage == current {
			w -= results[i].Weight
			break
		}
	}
	return max(w, 0)
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

func clamp(p int) int {
	return max(0, min(100, p))
}
