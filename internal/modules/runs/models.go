// Package runs records every optimization invocation so results can be
// audited and compared after the fact. Records are immutable.
package runs

import "time"

// Run status values
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run is one recorded optimization invocation.
// Result fields are nil for failed runs; error fields are empty for
// successful ones.
type Run struct {
	ID           string                 `json:"id"`
	SetID        *string                `json:"set_id,omitempty"` // nil for inline matrices
	Variant      string                 `json:"variant"`
	Parameters   map[string]interface{} `json:"parameters"`
	Weights      map[string]float64     `json:"weights,omitempty"`
	Risk         *float64               `json:"risk,omitempty"`
	Shrinkage    *float64               `json:"shrinkage,omitempty"`
	Ratio        *float64               `json:"ratio,omitempty"` // expected return / risk at record time
	Status       string                 `json:"status"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	DurationMS   int64                  `json:"duration_ms"`
	CreatedAt    time.Time              `json:"created_at"`
}
