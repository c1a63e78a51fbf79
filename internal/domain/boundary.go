package domain

import "time"

type BoundaryState string

const (
	BoundaryActive   BoundaryState = "ACTIVE"
	BoundaryDeleting BoundaryState = "DELETING"
	BoundaryDeleted  BoundaryState = "DELETED"
)

// TenantBoundary is the provider-side isolation compartment, one per user.
// At most one row per user may be ACTIVE at a time.
type TenantBoundary struct {
	UserID        string        `json:"user_id"`
	CompartmentID string        `json:"compartment_id"`
	Name          string        `json:"name"`
	State         BoundaryState `json:"state"`
	Region        string        `json:"region"`
	CreatedAt     time.Time     `json:"created_at"`
}
