package optimization

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aristath/madfolio/internal/solver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizeMinMADRecoversKnownAllocation(t *testing.T) {
	svc := newTestService()
	rm := threeAssetMatrix(t)

	result, err := svc.OptimizeMinMAD(context.Background(), rm, MinMADParams{
		Leverage:   1,
		LowerBound: -1,
		UpperBound: 1,
	})
	require.NoError(t, err)

	// This dataset has a unique optimum, derived by hand: the deviation
	// kinks of scenarios 1 and 2 close exactly at w = (0.2, 0.3, 0.5) and
	// the remaining two scenarios contribute 0.005 each.
	assert.InDelta(t, 0.2, result.Weights["AAA"], 1e-6)
	assert.InDelta(t, 0.3, result.Weights["BBB"], 1e-6)
	assert.InDelta(t, 0.5, result.Weights["CCC"], 1e-6)
	assert.InDelta(t, 0.01, result.Risk, 1e-6)
	assert.Nil(t, result.Shrinkage)

	// Structural checks: weights obey the leverage target and the reported
	// risk is exactly the deviation sum implied by the weights.
	assert.InDelta(t, 1.0, sumWeights(result.Weights), 1e-9)
	assert.InDelta(t, result.Risk, portfolioMAD(rm, result.Weights), 1e-9)
}

func TestOptimizeMinMADSingleScenario(t *testing.T) {
	svc := newTestService()
	rm, err := NewReturnsMatrix(
		[]string{"AAA", "BBB"},
		[][]float64{{0.01, 0.02}},
	)
	require.NoError(t, err)

	// With one scenario every centered return is zero, so any feasible
	// allocation is riskless.
	result, err := svc.OptimizeMinMAD(context.Background(), rm, MinMADParams{
		Leverage:   1,
		LowerBound: -1,
		UpperBound: 1,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, result.Risk, 1e-9)
	assert.InDelta(t, 1.0, sumWeights(result.Weights), 1e-9)
	for label, w := range result.Weights {
		assert.GreaterOrEqual(t, w, -1.0-1e-9, "weight of %s", label)
		assert.LessOrEqual(t, w, 1.0+1e-9, "weight of %s", label)
	}
}

func TestOptimizeMinMADInfeasibleLeverage(t *testing.T) {
	svc := newTestService()
	rm := threeAssetMatrix(t)

	// Three weights capped at 1 cannot sum to 5.
	_, err := svc.OptimizeMinMAD(context.Background(), rm, MinMADParams{
		Leverage:   5,
		LowerBound: -1,
		UpperBound: 1,
	})
	require.Error(t, err)

	var infeasible *ModelInfeasibleError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, VariantMinMAD, infeasible.Variant)
}

func TestOptimizeMinMADInputValidation(t *testing.T) {
	svc := newTestService()
	rm := threeAssetMatrix(t)

	_, err := svc.OptimizeMinMAD(context.Background(), nil, MinMADParams{
		Leverage: 1, LowerBound: -1, UpperBound: 1,
	})
	assertInputError(t, err)

	_, err = svc.OptimizeMinMAD(context.Background(), rm, MinMADParams{
		Leverage: 1, LowerBound: 1, UpperBound: -1,
	})
	assertInputError(t, err)
}

func TestOptimizeCardinalityGenerousBudgetMatchesUnrestricted(t *testing.T) {
	svc := newTestService()
	rm := threeAssetMatrix(t)

	// A budget covering every asset leaves the gates open, so the solution
	// must coincide with the plain variant.
	for _, budget := range []int{3, 5} {
		result, err := svc.OptimizeCardinality(context.Background(), rm, CardinalityParams{
			Leverage:     1,
			LowerBound:   -1,
			UpperBound:   1,
			MaxPositions: budget,
			Tolerance:    0.005,
		})
		require.NoError(t, err, "budget %d", budget)

		assert.InDelta(t, 0.2, result.Weights["AAA"], 1e-6)
		assert.InDelta(t, 0.3, result.Weights["BBB"], 1e-6)
		assert.InDelta(t, 0.5, result.Weights["CCC"], 1e-6)
		assert.InDelta(t, 0.01, result.Risk, 1e-6)
	}
}

func TestOptimizeCardinalitySingleAssetBudget(t *testing.T) {
	svc := newTestService()
	rm := threeAssetMatrix(t)
	tolerance := 0.005

	result, err := svc.OptimizeCardinality(context.Background(), rm, CardinalityParams{
		Leverage:     1,
		LowerBound:   -1,
		UpperBound:   1,
		MaxPositions: 1,
		Tolerance:    tolerance,
	})
	require.NoError(t, err)

	// At most one weight may leave the tolerance band. Gated weights may
	// legally sit on the band edge, so the count allows for round-off.
	assert.LessOrEqual(t, countWeightsAbove(result.Weights, tolerance+1e-9), 1)
	assert.InDelta(t, 1.0, sumWeights(result.Weights), 1e-9)

	// CCC has the smallest standalone deviation sum of the three assets,
	// so the budget lands on it.
	assert.Greater(t, result.Weights["CCC"], 0.98)

	// Restricting positions can only cost risk relative to the
	// unrestricted optimum, and holding CCC outright is always available.
	assert.GreaterOrEqual(t, result.Risk, 0.01-1e-9)
	assert.LessOrEqual(t, result.Risk, 0.072+1e-9)
}

func TestOptimizeRatioBeatsGridBaseline(t *testing.T) {
	svc := newTestService()
	rm := twoAssetRatioMatrix(t)

	result, err := svc.OptimizeRatio(context.Background(), rm, RatioParams{
		Leverage:   1,
		LowerBound: -1,
		UpperBound: 1,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Shrinkage)

	// Recompute the achieved ratio from the returned weights and compare
	// against a dense sweep of two-asset splits. The optimizer may never
	// lose to any grid point.
	achievedMAD := portfolioMAD(rm, result.Weights)
	achievedReturn := rm.ExpectedReturn(result.Weights)
	require.Greater(t, achievedMAD, 0.0)
	achievedRatio := achievedReturn / achievedMAD

	bestGrid := math.Inf(-1)
	for step := 0; step <= 1000; step++ {
		w1 := float64(step) / 1000.0
		weights := map[string]float64{"AAA": w1, "BBB": 1 - w1}
		mad := portfolioMAD(rm, weights)
		if mad <= 0 {
			continue
		}
		if ratio := rm.ExpectedReturn(weights) / mad; ratio > bestGrid {
			bestGrid = ratio
		}
	}
	assert.GreaterOrEqual(t, achievedRatio, bestGrid-1e-9)

	// For this dataset the optimum is known in closed form: the first
	// deviation pair cancels at w = (0.6, 0.4), where the ratio peaks at
	// exactly 0.5.
	assert.InDelta(t, 0.6, result.Weights["AAA"], 1e-6)
	assert.InDelta(t, 0.4, result.Weights["BBB"], 1e-6)
	assert.InDelta(t, 0.5, achievedRatio, 1e-9)
	assert.InDelta(t, 0.032, result.Risk, 1e-6)

	// The shrinkage factor is the reciprocal of the optimal mean return.
	assert.InDelta(t, 62.5, *result.Shrinkage, 1e-6)

	// The reported risk matches the weights it came with.
	assert.InDelta(t, achievedMAD, result.Risk, 1e-9)
	assert.InDelta(t, 1.0, sumWeights(result.Weights), 1e-6)
}

func TestOptimizeRatioOnThreeAssets(t *testing.T) {
	svc := newTestService()
	rm := threeAssetMatrix(t)

	result, err := svc.OptimizeRatio(context.Background(), rm, RatioParams{
		Leverage:   1,
		LowerBound: -1,
		UpperBound: 1,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Shrinkage)
	assert.Greater(t, math.Abs(*result.Shrinkage), ShrinkageEpsilon)

	// Rescaled weights satisfy the original leverage and box constraints.
	assert.InDelta(t, 1.0, sumWeights(result.Weights), 1e-6)
	for label, w := range result.Weights {
		assert.GreaterOrEqual(t, w, -1.0-1e-6, "weight of %s", label)
		assert.LessOrEqual(t, w, 1.0+1e-6, "weight of %s", label)
	}
	require.Greater(t, result.Risk, 0.0)

	// The optimal ratio dominates the ratio of any feasible portfolio,
	// including the min-MAD allocation.
	minMAD, err := svc.OptimizeMinMAD(context.Background(), rm, MinMADParams{
		Leverage: 1, LowerBound: -1, UpperBound: 1,
	})
	require.NoError(t, err)
	ratioAtOptimum := rm.ExpectedReturn(result.Weights) / portfolioMAD(rm, result.Weights)
	ratioAtMinMAD := rm.ExpectedReturn(minMAD.Weights) / portfolioMAD(rm, minMAD.Weights)
	assert.GreaterOrEqual(t, ratioAtOptimum, ratioAtMinMAD-1e-9)
}

func TestOptimizeRatioZeroMeansIsInfeasible(t *testing.T) {
	svc := newTestService()
	rm := zeroMeanMatrix(t)

	_, err := svc.OptimizeRatio(context.Background(), rm, RatioParams{
		Leverage:   1,
		LowerBound: -1,
		UpperBound: 1,
	})
	require.Error(t, err)

	// With every mean at zero the unit-return normalization cannot hold;
	// the failure is typed, never weights full of NaN or Inf.
	var infeasible *ModelInfeasibleError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, VariantRatio, infeasible.Variant)

	var solverErr *SolverError
	assert.False(t, errors.As(err, &solverErr))
}

func TestOptimizeAllSolvesEveryVariant(t *testing.T) {
	svc := newTestService()
	rm := threeAssetMatrix(t)

	combined, err := svc.OptimizeAll(context.Background(), rm, AllParams{
		MinMAD: MinMADParams{Leverage: 1, LowerBound: -1, UpperBound: 1},
		Cardinality: CardinalityParams{
			Leverage: 1, LowerBound: -1, UpperBound: 1,
			MaxPositions: 2, Tolerance: 0.005,
		},
		Ratio: RatioParams{Leverage: 1, LowerBound: -1, UpperBound: 1},
	})
	require.NoError(t, err)
	require.NoError(t, combined.MinMAD.Err)
	require.NoError(t, combined.Cardinality.Err)
	require.NoError(t, combined.Ratio.Err)
	require.NotNil(t, combined.MinMAD.Result)
	require.NotNil(t, combined.Cardinality.Result)
	require.NotNil(t, combined.Ratio.Result)

	assert.InDelta(t, 0.01, combined.MinMAD.Result.Risk, 1e-6)

	// A position budget can only cost risk.
	assert.GreaterOrEqual(t, combined.Cardinality.Result.Risk, combined.MinMAD.Result.Risk-1e-9)
	assert.LessOrEqual(t, countWeightsAbove(combined.Cardinality.Result.Weights, 0.005+1e-9), 2)

	require.NotNil(t, combined.Ratio.Result.Shrinkage)
	assert.InDelta(t, 1.0, sumWeights(combined.Ratio.Result.Weights), 1e-6)
}

func TestOptimizeAllIsolatesVariantFailure(t *testing.T) {
	svc := newTestService()
	rm := zeroMeanMatrix(t)

	combined, err := svc.OptimizeAll(context.Background(), rm, AllParams{
		MinMAD: MinMADParams{Leverage: 1, LowerBound: -1, UpperBound: 1},
		Cardinality: CardinalityParams{
			Leverage: 1, LowerBound: -1, UpperBound: 1,
			MaxPositions: 2, Tolerance: 0.005,
		},
		Ratio: RatioParams{Leverage: 1, LowerBound: -1, UpperBound: 1},
	})
	require.NoError(t, err)

	// The ratio variant cannot normalize zero means; the other two variants
	// still deliver results.
	require.Error(t, combined.Ratio.Err)
	var infeasible *ModelInfeasibleError
	assert.ErrorAs(t, combined.Ratio.Err, &infeasible)
	assert.Nil(t, combined.Ratio.Result)

	require.NoError(t, combined.MinMAD.Err)
	require.NotNil(t, combined.MinMAD.Result)
	require.NoError(t, combined.Cardinality.Err)
	require.NotNil(t, combined.Cardinality.Result)
}

func TestServiceTimeoutSurfacesAsSolverError(t *testing.T) {
	svc := NewService(solver.NewSimplex(zerolog.Nop()), time.Nanosecond, zerolog.Nop())
	rm := threeAssetMatrix(t)

	_, err := svc.OptimizeMinMAD(context.Background(), rm, MinMADParams{
		Leverage: 1, LowerBound: -1, UpperBound: 1,
	})
	require.Error(t, err)

	var solverErr *SolverError
	require.ErrorAs(t, err, &solverErr)
	assert.True(t, solverErr.Timeout)
	assert.Equal(t, VariantMinMAD, solverErr.Variant)
}

// Test fixtures and helpers.

func newTestService() *Service {
	return NewService(solver.NewSimplex(zerolog.Nop()), 30*time.Second, zerolog.Nop())
}

// threeAssetMatrix returns four scenarios over three assets with means
// (0.01, 0.02, 0.015). The minimum-MAD allocation at leverage 1 within
// [-1, 1] is uniquely w = (0.2, 0.3, 0.5) with a deviation sum of 0.01.
func threeAssetMatrix(t *testing.T) *ReturnsMatrix {
	t.Helper()
	rm, err := NewReturnsMatrix(
		[]string{"AAA", "BBB", "CCC"},
		[][]float64{
			{0.058, 0.008, 0.003},
			{-0.014, 0.076, -0.009},
			{-0.007, -0.007, 0.028},
			{0.003, 0.003, 0.038},
		},
	)
	require.NoError(t, err)
	return rm
}

// twoAssetRatioMatrix returns a dataset whose return-over-MAD ratio peaks
// uniquely at w = (0.6, 0.4) with ratio 0.5.
func twoAssetRatioMatrix(t *testing.T) *ReturnsMatrix {
	t.Helper()
	rm, err := NewReturnsMatrix(
		[]string{"AAA", "BBB"},
		[][]float64{
			{0.03, -0.005},
			{0.01, 0.025},
			{0.04, 0.02},
			{0.00, 0.00},
		},
	)
	require.NoError(t, err)
	return rm
}

// zeroMeanMatrix returns a dataset whose per-asset means are exactly zero.
func zeroMeanMatrix(t *testing.T) *ReturnsMatrix {
	t.Helper()
	rm, err := NewReturnsMatrix(
		[]string{"AAA", "BBB"},
		[][]float64{
			{0.01, -0.02},
			{-0.01, 0.02},
		},
	)
	require.NoError(t, err)
	return rm
}

func sumWeights(weights map[string]float64) float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	return total
}

// portfolioMAD recomputes the deviation sum a weight map implies: for every
// scenario, the absolute centered portfolio return, summed over scenarios.
func portfolioMAD(rm *ReturnsMatrix, weights map[string]float64) float64 {
	means := rm.Means()
	labels := rm.Labels()
	total := 0.0
	for s := 0; s < rm.Scenarios(); s++ {
		dev := 0.0
		for i, label := range labels {
			dev += (rm.At(s, i) - means[i]) * weights[label]
		}
		total += math.Abs(dev)
	}
	return total
}

func countWeightsAbove(weights map[string]float64, threshold float64) int {
	count := 0
	for _, w := range weights {
		if math.Abs(w) > threshold {
			count++
		}
	}
	return count
}
