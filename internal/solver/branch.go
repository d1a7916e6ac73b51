package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
)

const (
	// integralityTol is how far a relaxed binary may sit from 0 or 1 and
	// still count as integral.
	integralityTol = 1e-6

	// pruneTol guards incumbent comparisons against simplex round-off.
	pruneTol = 1e-12
)

// branchAndBound solves a spec with binary columns by depth-first search over
// LP relaxations. Each node fixes one fractional binary to 0 and to 1 through
// tightened bound vectors; subtrees whose relaxation cannot beat the incumbent
// are pruned. The search is exact: with B binaries it visits at most 2^(B+1)
// nodes and terminates because every level removes one fractional column.
func (s *Simplex) branchAndBound(ctx context.Context, spec *ModelSpec) (*RawSolution, error) {
	nVar := spec.NumVars()

	// Pruning compares objectives in minimization space regardless of the
	// spec's sense.
	sign := 1.0
	if spec.Sense == Maximize {
		sign = -1.0
	}

	var (
		best       *RawSolution
		bestScaled = math.Inf(1)
		nodes      int
	)

	var walk func(lower, upper []float64) error
	walk = func(lower, upper []float64) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		nodes++

		relaxed, err := s.solveRelaxation(spec, lower, upper)
		if err != nil {
			// An infeasible node only prunes its own subtree.
			if errors.Is(err, ErrInfeasible) {
				return nil
			}
			return err
		}

		scaled := sign * relaxed.Objective
		if scaled >= bestScaled-pruneTol {
			return nil
		}

		j := mostFractionalBinary(spec.Kinds, relaxed.Values)
		if j < 0 {
			best = relaxed
			bestScaled = scaled
			return nil
		}

		// Descend into the nearer integer first so an incumbent shows up
		// early and tightens the bound for the other side.
		order := [2]float64{0, 1}
		if relaxed.Values[j] > 0.5 {
			order = [2]float64{1, 0}
		}
		for _, fixed := range order {
			childLower := append([]float64(nil), lower...)
			childUpper := append([]float64(nil), upper...)
			childLower[j] = fixed
			childUpper[j] = fixed
			if err := walk(childLower, childUpper); err != nil {
				return err
			}
		}
		return nil
	}

	rootLower := append([]float64(nil), spec.Lower...)
	rootUpper := append([]float64(nil), spec.Upper...)
	if err := walk(rootLower, rootUpper); err != nil {
		return nil, err
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no integer-feasible assignment", ErrInfeasible)
	}

	s.log.Debug().
		Int("nodes", nodes).
		Int("vars", nVar).
		Float64("objective", best.Objective).
		Msg("Branch and bound finished")
	return best, nil
}

// mostFractionalBinary returns the binary column farthest from an integer
// value, or -1 when every binary is integral within tolerance.
func mostFractionalBinary(kinds []VarKind, values []float64) int {
	idx := -1
	worst := integralityTol
	for j, kind := range kinds {
		if kind != Binary {
			continue
		}
		frac := math.Abs(values[j] - math.Round(values[j]))
		if frac > worst {
			idx = j
			worst = frac
		}
	}
	return idx
}
