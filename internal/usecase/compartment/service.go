// Package compartment ensures exactly one active tenant-isolation
// boundary exists per user and heals the ledger after provider-side
// deletion.
package compartment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/impls"
	"github.com/qudata/control/internal/retry"
)

const providerActive = "ACTIVE"

type Service struct {
	provider impls.CloudProvider
	ledger   impls.Ledger
	logger   *slog.Logger
	region   string

	readyAttempts int
	readyInitial  time.Duration
	settle        time.Duration
	sleep         retry.SleepFunc
}

type Option func(*Service)

// WithReadyWait overrides the creation wait bounds, used by tests to run
// without real time passing.
func WithReadyWait(attempts int, initial, settle time.Duration, sleep retry.SleepFunc) Option {
	return func(s *Service) {
		s.readyAttempts = attempts
		s.readyInitial = initial
		s.settle = settle
		s.sleep = sleep
	}
}

func NewService(provider impls.CloudProvider, ledger impls.Ledger, region string, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		provider:      provider,
		ledger:        ledger,
		logger:        logger,
		region:        region,
		readyAttempts: 6,
		readyInitial:  2 * time.Second,
		settle:        10 * time.Second,
		sleep:         retry.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure returns an ACTIVE tenant boundary for userID, verified against
// the provider. A stale local row is healed by deletion and re-creation.
func (s *Service) Ensure(ctx context.Context, userID string) (*domain.TenantBoundary, error) {
	existing, err := s.ledger.Boundary(ctx, userID)
	switch {
	case err == nil:
		if existing.State == domain.BoundaryActive {
			verified, err := s.verify(ctx, existing)
			if err != nil {
				return nil, err
			}
			if verified {
				return existing, nil
			}
		}
		s.logger.Warn("stale tenant boundary, recreating",
			"user_id", userID, "compartment_id", existing.CompartmentID)
		if err := s.ledger.DeleteBoundary(ctx, userID); err != nil {
			return nil, domainerrors.InternalError{Step: "delete stale boundary", Err: err}
		}
	case errors.Is(err, impls.ErrNotFound):
	default:
		return nil, domainerrors.InternalError{Step: "load boundary", Err: err}
	}

	return s.create(ctx, userID)
}

// verify asks the provider for the boundary's current state. Returns
// false when the local row must be discarded.
func (s *Service) verify(ctx context.Context, b *domain.TenantBoundary) (bool, error) {
	comp, err := s.provider.GetCompartment(ctx, b.CompartmentID)
	if err != nil {
		if domainerrors.IsProviderNotFound(err) {
			return false, nil
		}
		return false, domainerrors.InternalError{Step: "verify boundary", Err: err}
	}
	return comp.State == providerActive, nil
}

func (s *Service) create(ctx context.Context, userID string) (*domain.TenantBoundary, error) {
	name := BoundaryName(userID)
	comp, err := s.provider.CreateCompartment(ctx, name, "tenant boundary for user "+userID)
	if err != nil {
		return nil, domainerrors.InternalError{Step: "create boundary", Err: err}
	}

	boundary := &domain.TenantBoundary{
		UserID:        userID,
		CompartmentID: comp.ID,
		Name:          name,
		State:         domain.BoundaryActive,
		Region:        s.region,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.ledger.PutBoundary(ctx, boundary); err != nil {
		return nil, domainerrors.InternalError{Step: "persist boundary", Err: err}
	}

	// Compartments propagate asynchronously inside the provider. Block
	// until it reports ACTIVE, then absorb remaining propagation lag with
	// one fixed delay.
	waiter := retry.Waiter{
		MaxAttempts: s.readyAttempts,
		Delay:       retry.Exponential(s.readyInitial, time.Minute),
		SleepFn:     s.sleep,
	}
	err = waiter.Until(ctx, func(ctx context.Context) (bool, error) {
		got, err := s.provider.GetCompartment(ctx, comp.ID)
		if err != nil {
			if domainerrors.IsProviderNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return got.State == providerActive, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nil, domainerrors.NotReadyError{Resource: "tenant boundary " + name}
		}
		return nil, domainerrors.InternalError{Step: "await boundary active", Err: err}
	}

	if err := s.sleep(ctx, s.settle); err != nil {
		return nil, err
	}

	s.logger.Info("tenant boundary ready", "user_id", userID, "compartment_id", comp.ID)
	return boundary, nil
}

// BoundaryName derives a deterministic, collision-resistant compartment
// name from the user's identity.
func BoundaryName(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return fmt.Sprintf("qc-%s-%s", sanitize(userID), hex.EncodeToString(sum[:])[:10])
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
		if b.Len() == 12 {
			break
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}
