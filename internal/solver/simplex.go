package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	// simplexTol is the reduced-cost tolerance handed to the simplex routine.
	simplexTol = 1e-10

	// coeffZeroTol classifies a constraint coefficient as zero during presolve.
	coeffZeroTol = 1e-12
)

// Simplex solves ModelSpecs with gonum's dense simplex method. Specs with
// binary columns go through branch-and-bound on the LP relaxation; everything
// else is a single relaxation solve. The zero value is not usable, construct
// with NewSimplex.
type Simplex struct {
	log zerolog.Logger
}

// NewSimplex creates a simplex-backed Solver.
func NewSimplex(log zerolog.Logger) *Simplex {
	return &Simplex{
		log: log.With().Str("component", "solver").Logger(),
	}
}

// Solve blocks until the model is solved, the context is cancelled, or the
// context deadline passes. Cancellation and deadline both surface as
// ErrTimeout. The solution values are in the spec's column order and the
// objective is reported in the spec's own sense.
func (s *Simplex) Solve(ctx context.Context, spec *ModelSpec) (*RawSolution, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	type outcome struct {
		sol *RawSolution
		err error
	}

	// The simplex routine is not interruptible, so it runs on its own
	// goroutine and the result channel is buffered to let it finish after
	// the context fires.
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		var out outcome
		if spec.HasBinaries() {
			out.sol, out.err = s.branchAndBound(ctx, spec)
		} else {
			out.sol, out.err = s.solveRelaxation(spec, spec.Lower, spec.Upper)
		}
		done <- out
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		s.log.Debug().
			Int("vars", spec.NumVars()).
			Int("rows", spec.NumRows()).
			Float64("objective", out.sol.Objective).
			Dur("duration", time.Since(start)).
			Msg("Model solved")
		return out.sol, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

// solveRelaxation solves the continuous model using the given bound vectors
// in place of the spec's own. Branch-and-bound passes tightened copies here;
// plain LP solves pass the spec's bounds unchanged.
func (s *Simplex) solveRelaxation(spec *ModelSpec, lower, upper []float64) (*RawSolution, error) {
	nVar := spec.NumVars()

	// The backend minimizes; flip the objective for maximization models.
	c := make([]float64, nVar)
	copy(c, spec.Objective)
	if spec.Sense == Maximize {
		floats.Scale(-1, c)
	}

	// Rebuild the model in general form (G·x <= h, A·x = b, x free):
	// GE rows are negated into G, finite bounds become box rows, and rows
	// without coefficients are resolved here. A coefficient-free row that
	// still demands a nonzero relation can never be satisfied, so it makes
	// the model infeasible before the backend runs; a vacuous one is dropped.
	var (
		gData, aData []float64
		h, b         []float64
	)
	row := make([]float64, nVar)
	for i := 0; i < spec.NumRows(); i++ {
		mat.Row(row, i, spec.Constraints)
		rhs := spec.RHS[i]

		if rowAllZero(row) {
			if zeroRowConflicts(spec.Relations[i], rhs) {
				return nil, fmt.Errorf("%w: row %d has no coefficients but requires 0 %s %v",
					ErrInfeasible, i, spec.Relations[i], rhs)
			}
			continue
		}

		switch spec.Relations[i] {
		case EQ:
			aData = append(aData, row...)
			b = append(b, rhs)
		case LE:
			gData = append(gData, row...)
			h = append(h, rhs)
		case GE:
			for _, v := range row {
				gData = append(gData, -v)
			}
			h = append(h, -rhs)
		}
	}
	for j := 0; j < nVar; j++ {
		if !math.IsInf(upper[j], 1) {
			gData = append(gData, unitRow(nVar, j, 1)...)
			h = append(h, upper[j])
		}
		if !math.IsInf(lower[j], -1) {
			gData = append(gData, unitRow(nVar, j, -1)...)
			h = append(h, -lower[j])
		}
	}

	var g, a mat.Matrix
	if len(h) > 0 {
		g = mat.NewDense(len(h), nVar, gData)
	}
	if len(b) > 0 {
		a = mat.NewDense(len(b), nVar, aData)
	}

	cStd, aStd, bStd := lp.Convert(c, g, h, a, b)
	objective, xStd, err := lp.Simplex(cStd, aStd, bStd, simplexTol, nil)
	if err != nil {
		return nil, mapSimplexError(err)
	}

	// Recover the free variables from the split x = xp - xn.
	values := make([]float64, nVar)
	for j := range values {
		values[j] = xStd[j] - xStd[nVar+j]
	}
	if spec.Sense == Maximize {
		objective = -objective
	}
	return &RawSolution{Values: values, Objective: objective}, nil
}

// mapSimplexError translates gonum's failures into the package sentinels.
// Numerical breakdowns (singular bases, rank problems) stay distinct from
// infeasibility so callers can report them as solver faults.
func mapSimplexError(err error) error {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return fmt.Errorf("%w: %v", ErrInfeasible, err)
	case errors.Is(err, lp.ErrUnbounded):
		return fmt.Errorf("%w: %v", ErrUnbounded, err)
	default:
		return fmt.Errorf("simplex failed: %w", err)
	}
}

func rowAllZero(row []float64) bool {
	for _, v := range row {
		if math.Abs(v) > coeffZeroTol {
			return false
		}
	}
	return true
}

// zeroRowConflicts reports whether a row with no coefficients contradicts
// its own right-hand side.
func zeroRowConflicts(rel Relation, rhs float64) bool {
	switch rel {
	case EQ:
		return math.Abs(rhs) > coeffZeroTol
	case GE:
		return rhs > coeffZeroTol
	case LE:
		return rhs < -coeffZeroTol
	default:
		return false
	}
}

func unitRow(n, j int, sign float64) []float64 {
	row := make([]float64, n)
	row[j] = sign
	return row
}
