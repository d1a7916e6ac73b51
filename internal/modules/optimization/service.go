package optimization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/madfolio/internal/solver"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service runs the build → solve → extract pipeline behind one API and
// translates backend sentinels into the package's typed errors. A Service
// is safe for concurrent use; independent solves share nothing but the
// backend.
type Service struct {
	backend solver.Solver
	timeout time.Duration
	log     zerolog.Logger
}

// NewService creates an optimization service. timeout caps each individual
// solve; zero leaves solves uncapped.
func NewService(backend solver.Solver, timeout time.Duration, log zerolog.Logger) *Service {
	return &Service{
		backend: backend,
		timeout: timeout,
		log:     log.With().Str("component", "optimization").Logger(),
	}
}

// OptimizeMinMAD solves the plain minimum-MAD allocation.
func (s *Service) OptimizeMinMAD(ctx context.Context, rm *ReturnsMatrix, params MinMADParams) (*PortfolioResult, error) {
	if rm == nil {
		return nil, inputErrorf("returns matrix is required")
	}
	return s.minMAD(ctx, rm, rm.Means(), params)
}

// OptimizeCardinality solves the minimum-MAD allocation under a position
// budget.
func (s *Service) OptimizeCardinality(ctx context.Context, rm *ReturnsMatrix, params CardinalityParams) (*PortfolioResult, error) {
	if rm == nil {
		return nil, inputErrorf("returns matrix is required")
	}
	return s.cardinality(ctx, rm, rm.Means(), params)
}

// OptimizeRatio solves the return-over-MAD maximization.
func (s *Service) OptimizeRatio(ctx context.Context, rm *ReturnsMatrix, params RatioParams) (*PortfolioResult, error) {
	if rm == nil {
		return nil, inputErrorf("returns matrix is required")
	}
	return s.ratio(ctx, rm, rm.Means(), params)
}

// OptimizeAll solves the three variants concurrently against one dataset.
// The goroutines share only the immutable returns matrix and one
// precomputed mean vector. Each variant succeeds or fails on its own;
// per-variant errors land in the returned outcomes, so the only error
// this method itself reports is a missing matrix.
func (s *Service) OptimizeAll(ctx context.Context, rm *ReturnsMatrix, params AllParams) (*CombinedResult, error) {
	if rm == nil {
		return nil, inputErrorf("returns matrix is required")
	}
	means := rm.Means()
	combined := &CombinedResult{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		combined.MinMAD.Result, combined.MinMAD.Err = s.minMAD(gctx, rm, means, params.MinMAD)
		return nil
	})
	g.Go(func() error {
		combined.Cardinality.Result, combined.Cardinality.Err = s.cardinality(gctx, rm, means, params.Cardinality)
		return nil
	})
	g.Go(func() error {
		combined.Ratio.Result, combined.Ratio.Err = s.ratio(gctx, rm, means, params.Ratio)
		return nil
	})

	_ = g.Wait() // goroutines record their outcomes instead of failing the group

	return combined, nil
}

func (s *Service) minMAD(ctx context.Context, rm *ReturnsMatrix, means []float64, params MinMADParams) (*PortfolioResult, error) {
	spec, err := BuildMinMAD(rm, means, params)
	if err != nil {
		return nil, err
	}

	detail := describeRun(rm, params.Leverage, params.LowerBound, params.UpperBound)
	sol, err := s.solve(ctx, VariantMinMAD, spec, detail)
	if err != nil {
		return nil, err
	}

	result, err := ExtractWeights(rm, sol)
	if err != nil {
		return nil, &SolverError{Variant: VariantMinMAD, Detail: detail, Err: err}
	}
	s.logResult(VariantMinMAD, result)
	return result, nil
}

func (s *Service) cardinality(ctx context.Context, rm *ReturnsMatrix, means []float64, params CardinalityParams) (*PortfolioResult, error) {
	spec, err := BuildMinMADCardinality(rm, means, params)
	if err != nil {
		return nil, err
	}

	detail := describeRun(rm, params.Leverage, params.LowerBound, params.UpperBound) +
		fmt.Sprintf(" max_positions=%d tolerance=%g", params.MaxPositions, params.Tolerance)
	sol, err := s.solve(ctx, VariantCardinality, spec, detail)
	if err != nil {
		return nil, err
	}

	result, err := ExtractWeights(rm, sol)
	if err != nil {
		return nil, &SolverError{Variant: VariantCardinality, Detail: detail, Err: err}
	}
	s.logResult(VariantCardinality, result)
	return result, nil
}

func (s *Service) ratio(ctx context.Context, rm *ReturnsMatrix, means []float64, params RatioParams) (*PortfolioResult, error) {
	spec, err := BuildMaxRatio(rm, means, params)
	if err != nil {
		return nil, err
	}

	detail := describeRun(rm, params.Leverage, params.LowerBound, params.UpperBound)
	sol, err := s.solve(ctx, VariantRatio, spec, detail)
	if err != nil {
		return nil, err
	}

	result, err := ExtractRatio(rm, sol)
	if err != nil {
		var degenerate *DegenerateRescaleError
		if errors.As(err, &degenerate) {
			return nil, err
		}
		return nil, &SolverError{Variant: VariantRatio, Detail: detail, Err: err}
	}
	s.logResult(VariantRatio, result)
	return result, nil
}

// solve applies the per-solve timeout and maps backend sentinels onto the
// typed error set.
func (s *Service) solve(ctx context.Context, variant Variant, spec *solver.ModelSpec, detail string) (*solver.RawSolution, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sol, err := s.backend.Solve(ctx, spec)
	if err != nil {
		switch {
		case errors.Is(err, solver.ErrInfeasible):
			return nil, &ModelInfeasibleError{Variant: variant, Detail: detail}
		case errors.Is(err, solver.ErrUnbounded):
			return nil, &ModelUnboundedError{Variant: variant, Detail: detail}
		case errors.Is(err, solver.ErrTimeout):
			return nil, &SolverError{Variant: variant, Detail: detail, Timeout: true, Err: err}
		default:
			return nil, &SolverError{Variant: variant, Detail: detail, Err: err}
		}
	}
	return sol, nil
}

func (s *Service) logResult(variant Variant, result *PortfolioResult) {
	s.log.Info().
		Str("variant", string(variant)).
		Float64("risk", result.Risk).
		Int("active_positions", result.ActivePositions()).
		Msg("Optimization complete")
}

func describeRun(rm *ReturnsMatrix, leverage, lower, upper float64) string {
	return fmt.Sprintf("leverage=%g bounds=[%g, %g] assets=%d scenarios=%d",
		leverage, lower, upper, rm.Assets(), rm.Scenarios())
}
