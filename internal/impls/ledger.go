package impls

import (
	"context"
	"errors"

	"github.com/qudata/control/internal/domain"
)

// ErrNotFound is returned by lookups with no matching row.
var ErrNotFound = errors.New("not found")

// Ledger is the persisted record of everything the orchestrator has
// provisioned. Single-row writes commit immediately; the only multi-row
// transaction is TeardownCommit.
type Ledger interface {
	Boundary(ctx context.Context, userID string) (*domain.TenantBoundary, error)
	BoundaryByName(ctx context.Context, name string) (*domain.TenantBoundary, error)
	PutBoundary(ctx context.Context, b *domain.TenantBoundary) error
	DeleteBoundary(ctx context.Context, userID string) error

	Network(ctx context.Context, userID string) (*domain.NetworkResource, error)
	PutNetwork(ctx context.Context, n *domain.NetworkResource) error
	DeleteNetwork(ctx context.Context, userID string) error

	Instance(ctx context.Context, localID string) (*domain.Instance, error)
	PutInstance(ctx context.Context, inst *domain.Instance) error
	DeleteInstance(ctx context.Context, localID string) error
	InstancesByUser(ctx context.Context, userID string) ([]domain.Instance, error)

	AppendActionLog(ctx context.Context, entry *domain.ActionLogEntry) error
	ActionLog(ctx context.Context, localID string) ([]domain.ActionLogEntry, error)

	// TeardownCommit removes all local rows owned by userID and writes one
	// audit entry per terminated instance, atomically.
	TeardownCommit(ctx context.Context, userID string, audit []domain.ActionLogEntry) error
}
