package optimization

import (
	"errors"
	"fmt"
)

// InputError reports returns data or parameters that cannot produce a model:
// empty or ragged matrices, non-finite values, duplicate labels, crossed
// bounds. Handlers map it to a client error.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

func inputErrorf(format string, args ...interface{}) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// ModelInfeasibleError reports that no portfolio satisfies the variant's
// constraint system, for example a leverage target outside the reachable
// range of the box bounds.
type ModelInfeasibleError struct {
	Variant Variant
	Detail  string
}

func (e *ModelInfeasibleError) Error() string {
	return fmt.Sprintf("%s model is infeasible (%s)", e.Variant, e.Detail)
}

// ModelUnboundedError reports that the variant's objective can improve
// without limit, which means the model itself is missing a restraint.
type ModelUnboundedError struct {
	Variant Variant
	Detail  string
}

func (e *ModelUnboundedError) Error() string {
	return fmt.Sprintf("%s model is unbounded (%s)", e.Variant, e.Detail)
}

// DegenerateRescaleError reports a ratio solve whose shrinkage factor came
// back numerically zero: the linear program solved, but dividing by the
// factor would blow up, so no portfolio can be recovered.
type DegenerateRescaleError struct {
	Shrinkage float64
}

func (e *DegenerateRescaleError) Error() string {
	return fmt.Sprintf("ratio rescale is degenerate: shrinkage factor %g is numerically zero", e.Shrinkage)
}

// SolverError reports a backend fault: a timeout, a singular basis, or any
// other numerical failure that is neither infeasibility nor unboundedness.
type SolverError struct {
	Variant Variant
	Detail  string
	Timeout bool
	Err     error
}

func (e *SolverError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s solve timed out (%s): %v", e.Variant, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s solve failed (%s): %v", e.Variant, e.Detail, e.Err)
}

func (e *SolverError) Unwrap() error {
	return e.Err
}

// Error kinds used in run records, logs, and HTTP error mapping
const (
	ErrorKindInput      = "input"
	ErrorKindInfeasible = "infeasible"
	ErrorKindUnbounded  = "unbounded"
	ErrorKindDegenerate = "degenerate_rescale"
	ErrorKindTimeout    = "timeout"
	ErrorKindSolver     = "solver"
)

// KindOf classifies an optimization error into one of the error kinds.
// Returns an empty string for nil and ErrorKindSolver for anything it
// does not recognize.
func KindOf(err error) string {
	if err == nil {
		return ""
	}

	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return ErrorKindInput
	}

	var infeasibleErr *ModelInfeasibleError
	if errors.As(err, &infeasibleErr) {
		return ErrorKindInfeasible
	}

	var unboundedErr *ModelUnboundedError
	if errors.As(err, &unboundedErr) {
		return ErrorKindUnbounded
	}

	var degenerateErr *DegenerateRescaleError
	if errors.As(err, &degenerateErr) {
		return ErrorKindDegenerate
	}

	var solverErr *SolverError
	if errors.As(err, &solverErr) {
		if solverErr.Timeout {
			return ErrorKindTimeout
		}
		return ErrorKindSolver
	}

	return ErrorKindSolver
}
