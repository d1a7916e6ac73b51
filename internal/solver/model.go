package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Relation is the comparison direction of a constraint row.
type Relation int

const (
	EQ Relation = iota // row · x == rhs
	GE                 // row · x >= rhs
	LE                 // row · x <= rhs
)

// String returns the comparison operator for log and error messages.
func (rel Relation) String() string {
	switch rel {
	case EQ:
		return "=="
	case GE:
		return ">="
	case LE:
		return "<="
	default:
		return fmt.Sprintf("Relation(%d)", int(rel))
	}
}

// VarKind is the domain of a decision variable.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
)

// Sense is the optimization direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// ModelSpec is a fully materialized linear program, optionally with binary
// columns. It is plain data: builders produce it, backends consume it, and
// nothing in between mutates it. Building the same model twice from the same
// inputs yields identical specs, which keeps solves reproducible.
//
// Conventions:
//   - Objective, Lower, Upper and Kinds are indexed by column.
//   - Constraints is a dense rows×cols matrix; Relations and RHS are indexed
//     by row.
//   - Unbounded variables carry ±Inf in Lower/Upper.
type ModelSpec struct {
	Objective   []float64
	Constraints *mat.Dense
	Relations   []Relation
	RHS         []float64
	Lower       []float64
	Upper       []float64
	Kinds       []VarKind
	Sense       Sense
}

// NumVars returns the number of decision variables (columns).
func (m *ModelSpec) NumVars() int {
	return len(m.Objective)
}

// NumRows returns the number of constraint rows.
func (m *ModelSpec) NumRows() int {
	return len(m.RHS)
}

// HasBinaries reports whether any column is integer-constrained.
func (m *ModelSpec) HasBinaries() bool {
	for _, kind := range m.Kinds {
		if kind == Binary {
			return true
		}
	}
	return false
}

// Validate checks internal consistency before a solve. It catches shape
// mismatches and non-finite data, not modeling mistakes.
func (m *ModelSpec) Validate() error {
	cols := m.NumVars()
	rows := m.NumRows()

	if cols == 0 {
		return fmt.Errorf("model has no decision variables")
	}
	if m.Constraints == nil {
		return fmt.Errorf("model has no constraint matrix")
	}
	cr, cc := m.Constraints.Dims()
	if cr != rows {
		return fmt.Errorf("constraint matrix has %d rows but %d relations/rhs entries", cr, rows)
	}
	if cc != cols {
		return fmt.Errorf("constraint matrix has %d columns but %d objective entries", cc, cols)
	}
	if len(m.Relations) != rows {
		return fmt.Errorf("model has %d relations for %d rows", len(m.Relations), rows)
	}
	if len(m.Lower) != cols || len(m.Upper) != cols {
		return fmt.Errorf("bound vectors have lengths %d/%d, expected %d", len(m.Lower), len(m.Upper), cols)
	}
	if len(m.Kinds) != cols {
		return fmt.Errorf("model has %d variable kinds for %d columns", len(m.Kinds), cols)
	}

	for j := 0; j < cols; j++ {
		if math.IsNaN(m.Objective[j]) {
			return fmt.Errorf("objective coefficient %d is NaN", j)
		}
		if math.IsNaN(m.Lower[j]) || math.IsNaN(m.Upper[j]) {
			return fmt.Errorf("bounds of variable %d are NaN", j)
		}
		if m.Lower[j] > m.Upper[j] {
			return fmt.Errorf("variable %d has lower bound %v above upper bound %v", j, m.Lower[j], m.Upper[j])
		}
		if m.Kinds[j] == Binary && (m.Lower[j] < 0 || m.Upper[j] > 1) {
			return fmt.Errorf("binary variable %d has bounds [%v, %v] outside [0, 1]", j, m.Lower[j], m.Upper[j])
		}
	}
	for i := 0; i < rows; i++ {
		if math.IsNaN(m.RHS[i]) || math.IsInf(m.RHS[i], 0) {
			return fmt.Errorf("right-hand side of row %d is %v", i, m.RHS[i])
		}
		if rel := m.Relations[i]; rel != EQ && rel != GE && rel != LE {
			return fmt.Errorf("row %d has unknown relation %d", i, int(rel))
		}
	}
	return nil
}

// RawSolution is the untyped result of a solve: one value per column in the
// spec's column order, plus the objective in the spec's own sense.
type RawSolution struct {
	Values    []float64
	Objective float64
}
