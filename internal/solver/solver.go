// Package solver defines the linear-programming boundary of the application:
// a backend-neutral model description, a small Solver interface, and a dense
// simplex implementation with branch-and-bound for binary variables.
//
// Failure modes that callers are expected to branch on are exposed as
// sentinel errors; backends wrap them with detail, so match with errors.Is.
package solver

import (
	"context"
	"errors"
)

// Sentinel failures shared by all backends.
var (
	// ErrInfeasible means no assignment satisfies every constraint.
	ErrInfeasible = errors.New("model is infeasible")

	// ErrUnbounded means the objective can improve without limit.
	ErrUnbounded = errors.New("model is unbounded")

	// ErrTimeout means the context expired before the solve finished.
	ErrTimeout = errors.New("solve timed out")
)

// Solver runs a model to optimality or reports why it cannot.
// Implementations must be safe for concurrent use: independent solves may
// run on separate goroutines against the same Solver value.
type Solver interface {
	Solve(ctx context.Context, spec *ModelSpec) (*RawSolution, error)
}
