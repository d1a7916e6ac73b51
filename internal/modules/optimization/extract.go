package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/madfolio/internal/solver"
)

// ExtractWeights maps a raw min-MAD or cardinality solution back to labeled
// weights. Weights occupy the first N solution columns in label order and
// the risk is the solver's objective, the unscaled deviation sum.
func ExtractWeights(rm *ReturnsMatrix, sol *solver.RawSolution) (*PortfolioResult, error) {
	nAssets := rm.Assets()
	if len(sol.Values) < nAssets {
		return nil, fmt.Errorf("solution carries %d values for %d assets", len(sol.Values), nAssets)
	}

	weights := make(map[string]float64, nAssets)
	for i, label := range rm.labels {
		weights[label] = sol.Values[i]
	}
	return &PortfolioResult{Weights: weights, Risk: sol.Objective}, nil
}

// ExtractRatio undoes the ratio variant's change of variables. The scaled
// solution is divided by the shrinkage factor kappa to recover real weights,
// and the objective divides the same way to recover the portfolio MAD.
//
// A kappa within ShrinkageEpsilon of zero means the linear program parked
// the substitution at a point that maps to no real portfolio; that comes
// back as a DegenerateRescaleError rather than weights full of Inf.
func ExtractRatio(rm *ReturnsMatrix, sol *solver.RawSolution) (*PortfolioResult, error) {
	nAssets := rm.Assets()
	kappaCol := nAssets + rm.Scenarios()
	if len(sol.Values) != kappaCol+1 {
		return nil, fmt.Errorf("solution carries %d values, expected %d", len(sol.Values), kappaCol+1)
	}

	kappa := sol.Values[kappaCol]
	if math.Abs(kappa) <= ShrinkageEpsilon {
		return nil, &DegenerateRescaleError{Shrinkage: kappa}
	}

	weights := make(map[string]float64, nAssets)
	for i, label := range rm.labels {
		weights[label] = sol.Values[i] / kappa
	}
	shrinkage := kappa
	return &PortfolioResult{
		Weights:   weights,
		Risk:      sol.Objective / kappa,
		Shrinkage: &shrinkage,
	}, nil
}
