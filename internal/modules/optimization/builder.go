package optimization

import (
	"math"

	"github.com/aristath/madfolio/internal/solver"
	"gonum.org/v1/gonum/mat"
)

// The builders below are pure: they read the returns matrix, the supplied
// mean vector and the parameters, and emit a fully materialized spec.
// Identical inputs produce identical specs, so solves can be replayed.
//
// Column layout per variant (weights always come first so extractors can
// slice them off uniformly):
//
//	min-MAD:     [w_0..w_{N-1}, d_0..d_{S-1}]
//	cardinality: [w_0..w_{N-1}, d_0..d_{S-1}, z_0..z_{N-1}]
//	ratio:       [y_0..y_{N-1}, e_0..e_{S-1}, kappa]

// BuildMinMAD constructs the minimum mean-absolute-deviation model.
//
// Mathematical formulation:
//
//	minimize   Σ_s d_s
//	subject to Σ_i w_i = leverage
//	           d_s - Σ_i (r_si - mean_i)·w_i >= 0    for every scenario s
//	           d_s + Σ_i (r_si - mean_i)·w_i >= 0    for every scenario s
//	           lowerBound <= w_i <= upperBound, d_s >= 0
//
// The paired one-sided rows pin each d_s to the absolute centered portfolio
// return at the optimum, so the objective is the raw deviation sum across
// scenarios, not its mean. Callers that want the average divide by the
// scenario count themselves.
func BuildMinMAD(rm *ReturnsMatrix, means []float64, params MinMADParams) (*solver.ModelSpec, error) {
	if err := validateBuildInputs(rm, means, params.Leverage, params.LowerBound, params.UpperBound); err != nil {
		return nil, err
	}

	nAssets := rm.Assets()
	nScen := rm.Scenarios()
	dev := rm.Deviations(means)

	spec := newSpec(1+2*nScen, nAssets+nScen)

	for s := 0; s < nScen; s++ {
		spec.Objective[nAssets+s] = 1
	}

	for i := 0; i < nAssets; i++ {
		spec.Lower[i] = params.LowerBound
		spec.Upper[i] = params.UpperBound
	}
	for s := 0; s < nScen; s++ {
		spec.Lower[nAssets+s] = 0
		spec.Upper[nAssets+s] = math.Inf(1)
	}

	setLeverageRow(spec, 0, nAssets, params.Leverage)
	setDeviationRows(spec, 1, dev, 0, nAssets)

	return spec, nil
}

// BuildMinMADCardinality constructs the minimum-MAD model with a soft
// position budget.
//
// Mathematical formulation (on top of BuildMinMAD):
//
//	Σ_i z_i <= maxPositions                        z_i binary
//	w_i - lowerBound·z_i >= -tolerance             for every asset i
//	-w_i + upperBound·z_i >= -tolerance            for every asset i
//
// With z_i = 0 the gating rows squeeze w_i into [-tolerance, tolerance];
// with z_i = 1 they relax to the ordinary box. The budget therefore limits
// how many weights may leave the tolerance band, while weights inside the
// band stay feasible without consuming a position.
func BuildMinMADCardinality(rm *ReturnsMatrix, means []float64, params CardinalityParams) (*solver.ModelSpec, error) {
	if err := validateBuildInputs(rm, means, params.Leverage, params.LowerBound, params.UpperBound); err != nil {
		return nil, err
	}
	if params.MaxPositions < 0 {
		return nil, inputErrorf("max positions %d is negative", params.MaxPositions)
	}
	if math.IsNaN(params.Tolerance) || params.Tolerance < 0 {
		return nil, inputErrorf("tolerance %v must be non-negative", params.Tolerance)
	}

	nAssets := rm.Assets()
	nScen := rm.Scenarios()
	dev := rm.Deviations(means)

	zOffset := nAssets + nScen
	spec := newSpec(2+2*nScen+2*nAssets, zOffset+nAssets)

	for s := 0; s < nScen; s++ {
		spec.Objective[nAssets+s] = 1
	}

	for i := 0; i < nAssets; i++ {
		spec.Lower[i] = params.LowerBound
		spec.Upper[i] = params.UpperBound
	}
	for s := 0; s < nScen; s++ {
		spec.Lower[nAssets+s] = 0
		spec.Upper[nAssets+s] = math.Inf(1)
	}
	for i := 0; i < nAssets; i++ {
		spec.Lower[zOffset+i] = 0
		spec.Upper[zOffset+i] = 1
		spec.Kinds[zOffset+i] = solver.Binary
	}

	setLeverageRow(spec, 0, nAssets, params.Leverage)
	setDeviationRows(spec, 1, dev, 0, nAssets)

	budgetRow := 1 + 2*nScen
	for i := 0; i < nAssets; i++ {
		spec.Constraints.Set(budgetRow, zOffset+i, 1)
	}
	spec.Relations[budgetRow] = solver.LE
	spec.RHS[budgetRow] = float64(params.MaxPositions)

	for i := 0; i < nAssets; i++ {
		low := budgetRow + 1 + 2*i
		high := low + 1

		spec.Constraints.Set(low, i, 1)
		spec.Constraints.Set(low, zOffset+i, -params.LowerBound)
		spec.Relations[low] = solver.GE
		spec.RHS[low] = -params.Tolerance

		spec.Constraints.Set(high, i, -1)
		spec.Constraints.Set(high, zOffset+i, params.UpperBound)
		spec.Relations[high] = solver.GE
		spec.RHS[high] = -params.Tolerance
	}

	return spec, nil
}

// BuildMaxRatio constructs the return-over-MAD maximization in its linearized
// form. The fractional objective mean/MAD is removed with the classic
// change of variables y = kappa·w, where kappa scales the portfolio so that
// its mean return is exactly 1.
//
// Mathematical formulation:
//
//	minimize   Σ_s e_s
//	subject to Σ_i y_i - leverage·kappa = 0
//	           Σ_i mean_i·y_i = 1
//	           e_s - Σ_i (r_si - mean_i)·y_i >= 0   for every scenario s
//	           e_s + Σ_i (r_si - mean_i)·y_i >= 0   for every scenario s
//	           -y_i + upperBound·kappa >= 0         for every asset i
//	           y_i - lowerBound·kappa >= 0          for every asset i
//	           e_s >= 0; y_i and kappa unrestricted
//
// kappa is deliberately left unrestricted: forcing it positive would hide
// the degenerate geometry that ExtractRatio reports explicitly. Minimizing
// the scaled deviation sum at unit mean return maximizes mean/MAD.
func BuildMaxRatio(rm *ReturnsMatrix, means []float64, params RatioParams) (*solver.ModelSpec, error) {
	if err := validateBuildInputs(rm, means, params.Leverage, params.LowerBound, params.UpperBound); err != nil {
		return nil, err
	}

	nAssets := rm.Assets()
	nScen := rm.Scenarios()
	dev := rm.Deviations(means)

	kappaCol := nAssets + nScen
	spec := newSpec(2+2*nScen+2*nAssets, kappaCol+1)

	for s := 0; s < nScen; s++ {
		spec.Objective[nAssets+s] = 1
	}

	// y and kappa stay at the (-Inf, +Inf) defaults.
	for s := 0; s < nScen; s++ {
		spec.Lower[nAssets+s] = 0
		spec.Upper[nAssets+s] = math.Inf(1)
	}

	// Row 0: scaled exposure, Σ y_i = leverage·kappa.
	for i := 0; i < nAssets; i++ {
		spec.Constraints.Set(0, i, 1)
	}
	spec.Constraints.Set(0, kappaCol, -params.Leverage)
	spec.Relations[0] = solver.EQ
	spec.RHS[0] = 0

	// Row 1: normalization, the scaled portfolio earns unit mean return.
	for i := 0; i < nAssets; i++ {
		spec.Constraints.Set(1, i, means[i])
	}
	spec.Relations[1] = solver.EQ
	spec.RHS[1] = 1

	setDeviationRows(spec, 2, dev, 0, nAssets)

	// Scaled box rows replace plain bounds on y.
	for i := 0; i < nAssets; i++ {
		upperRow := 2 + 2*nScen + 2*i
		lowerRow := upperRow + 1

		spec.Constraints.Set(upperRow, i, -1)
		spec.Constraints.Set(upperRow, kappaCol, params.UpperBound)
		spec.Relations[upperRow] = solver.GE
		spec.RHS[upperRow] = 0

		spec.Constraints.Set(lowerRow, i, 1)
		spec.Constraints.Set(lowerRow, kappaCol, -params.LowerBound)
		spec.Relations[lowerRow] = solver.GE
		spec.RHS[lowerRow] = 0
	}

	return spec, nil
}

// newSpec allocates a zeroed minimization spec. Bounds default to
// (-Inf, +Inf), kinds to continuous, relations to equality; builders
// overwrite every row they add.
func newSpec(rows, cols int) *solver.ModelSpec {
	spec := &solver.ModelSpec{
		Objective:   make([]float64, cols),
		Constraints: mat.NewDense(rows, cols, nil),
		Relations:   make([]solver.Relation, rows),
		RHS:         make([]float64, rows),
		Lower:       make([]float64, cols),
		Upper:       make([]float64, cols),
		Kinds:       make([]solver.VarKind, cols),
		Sense:       solver.Minimize,
	}
	for j := range spec.Lower {
		spec.Lower[j] = math.Inf(-1)
		spec.Upper[j] = math.Inf(1)
	}
	return spec
}

// setLeverageRow writes the net-exposure equality Σ w_i = leverage.
func setLeverageRow(spec *solver.ModelSpec, row, nAssets int, leverage float64) {
	for i := 0; i < nAssets; i++ {
		spec.Constraints.Set(row, i, 1)
	}
	spec.Relations[row] = solver.EQ
	spec.RHS[row] = leverage
}

// setDeviationRows writes the paired absolute-value rows for every scenario,
// starting at startRow. Deviation columns are assumed to directly follow the
// weight block, so scenario s uses column weightOffset+nAssets+s.
func setDeviationRows(spec *solver.ModelSpec, startRow int, dev *mat.Dense, weightOffset, nAssets int) {
	nScen, _ := dev.Dims()
	for s := 0; s < nScen; s++ {
		up := startRow + 2*s
		down := up + 1
		devCol := weightOffset + nAssets + s

		for i := 0; i < nAssets; i++ {
			d := dev.At(s, i)
			spec.Constraints.Set(up, weightOffset+i, -d)
			spec.Constraints.Set(down, weightOffset+i, d)
		}
		spec.Constraints.Set(up, devCol, 1)
		spec.Constraints.Set(down, devCol, 1)
		spec.Relations[up] = solver.GE
		spec.Relations[down] = solver.GE
		spec.RHS[up] = 0
		spec.RHS[down] = 0
	}
}

// validateBuildInputs applies the checks shared by every variant.
func validateBuildInputs(rm *ReturnsMatrix, means []float64, leverage, lower, upper float64) error {
	if rm == nil {
		return inputErrorf("returns matrix is required")
	}
	if len(means) != rm.Assets() {
		return inputErrorf("mean vector has %d entries for %d assets", len(means), rm.Assets())
	}
	for i, mu := range means {
		if math.IsNaN(mu) || math.IsInf(mu, 0) {
			return inputErrorf("mean of asset %q is not finite: %v", rm.labels[i], mu)
		}
	}
	if math.IsNaN(leverage) || math.IsInf(leverage, 0) {
		return inputErrorf("leverage %v is not finite", leverage)
	}
	if math.IsNaN(lower) || math.IsInf(lower, 0) || math.IsNaN(upper) || math.IsInf(upper, 0) {
		return inputErrorf("weight bounds [%v, %v] must be finite", lower, upper)
	}
	if lower > upper {
		return inputErrorf("lower weight bound %v exceeds upper bound %v", lower, upper)
	}
	return nil
}
