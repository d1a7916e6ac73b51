// Package returns provides persistent storage for named scenario-return datasets.
// A stored set can be replayed through the optimizer at any time, which is what
// the scheduled re-optimization job does.
package returns

import "time"

// SetSummary describes a stored returns set without its values
type SetSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Assets    int       `json:"assets"`
	Scenarios int       `json:"scenarios"`
	CreatedAt time.Time `json:"created_at"`
}
