package domain

import "time"

// ActionLogEntry is an append-only audit record keyed by the instance's
// local id. Entries are never mutated and outlive their instance row, so
// the trail stays readable after teardown.
type ActionLogEntry struct {
	LocalID     string            `json:"local_id"`
	Seq         uint64            `json:"seq"`
	Action      string            `json:"action"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
