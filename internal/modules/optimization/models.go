// Package optimization implements mean-absolute-deviation (MAD) portfolio
// construction as linear programs: a minimum-MAD allocation, a
// cardinality-limited variant, and a return-over-MAD ratio maximization.
// All three share the same pipeline: a validated returns matrix feeds a pure
// model builder, the resulting spec goes to a solver backend, and the raw
// solution is mapped back to labeled weights.
package optimization

import "math"

// Variant identifies one optimization model family.
type Variant string

const (
	VariantMinMAD      Variant = "min_mad"
	VariantCardinality Variant = "cardinality"
	VariantRatio       Variant = "ratio"
)

// Default parameters applied when a request leaves them unset.
const (
	DefaultLeverage   = 1.0   // fully invested
	DefaultLowerBound = -1.0  // shorts allowed down to -100% per asset
	DefaultUpperBound = 1.0   // single-asset cap at 100%
	DefaultTolerance  = 0.005 // cardinality gate width around zero
)

const (
	// ShrinkageEpsilon is the magnitude below which the ratio variant's
	// shrinkage factor cannot be inverted.
	ShrinkageEpsilon = 1e-9

	// ActivePositionEpsilon is the weight magnitude above which an asset
	// counts as a held position.
	ActivePositionEpsilon = 1e-6
)

// MinMADParams configures the minimum-MAD variant.
type MinMADParams struct {
	Leverage   float64 `json:"leverage"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// CardinalityParams configures the cardinality-limited variant.
// MaxPositions is the position budget; Tolerance is the band around zero
// inside which a gated-off weight may still sit.
type CardinalityParams struct {
	Leverage     float64 `json:"leverage"`
	LowerBound   float64 `json:"lower_bound"`
	UpperBound   float64 `json:"upper_bound"`
	MaxPositions int     `json:"max_positions"`
	Tolerance    float64 `json:"tolerance"`
}

// RatioParams configures the return-over-MAD maximization.
type RatioParams struct {
	Leverage   float64 `json:"leverage"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// AllParams bundles per-variant parameters for a combined run.
type AllParams struct {
	MinMAD      MinMADParams      `json:"min_mad"`
	Cardinality CardinalityParams `json:"cardinality"`
	Ratio       RatioParams       `json:"ratio"`
}

// PortfolioResult is the outcome of one variant: weights keyed by asset
// label, the portfolio MAD as the sum of absolute centered returns across
// scenarios, and (ratio variant only) the shrinkage factor of the
// fractional-to-linear substitution.
type PortfolioResult struct {
	Weights   map[string]float64 `json:"weights"`
	Risk      float64            `json:"risk"`
	Shrinkage *float64           `json:"shrinkage,omitempty"`
}

// ActivePositions counts weights whose magnitude exceeds
// ActivePositionEpsilon.
func (r *PortfolioResult) ActivePositions() int {
	count := 0
	for _, w := range r.Weights {
		if math.Abs(w) > ActivePositionEpsilon {
			count++
		}
	}
	return count
}

// VariantOutcome is one variant's result or failure within a combined run.
// Exactly one of Result and Err is set.
type VariantOutcome struct {
	Result *PortfolioResult
	Err    error
}

// CombinedResult carries the outcome of all three variants solved against
// the same returns matrix. Variants fail independently: one infeasible
// model does not discard the other two results.
type CombinedResult struct {
	MinMAD      VariantOutcome
	Cardinality VariantOutcome
	Ratio       VariantOutcome
}
