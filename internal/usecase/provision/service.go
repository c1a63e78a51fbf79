// Package provision is the orchestrator facade the control-plane
// surface calls. A provisioning request flows boundary -> network ->
// launch strictly in order, then returns while the post-launch
// reconciler continues detached.
package provision

import (
	"context"
	"errors"
	"log/slog"

	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/impls"
	"github.com/qudata/control/internal/usecase/action"
	"github.com/qudata/control/internal/usecase/compartment"
	"github.com/qudata/control/internal/usecase/launch"
	"github.com/qudata/control/internal/usecase/network"
	"github.com/qudata/control/internal/usecase/reconcile"
	"github.com/qudata/control/internal/usecase/teardown"
)

type Service struct {
	boundaries *compartment.Service
	networks   *network.Service
	launcher   *launch.Service
	reconciler *reconcile.Worker
	actions    *action.Service
	teardowns  *teardown.Service
	provider   impls.CloudProvider
	ledger     impls.Ledger
	logger     *slog.Logger
	locks      *keyedMutex
}

func NewService(
	boundaries *compartment.Service,
	networks *network.Service,
	launcher *launch.Service,
	reconciler *reconcile.Worker,
	actions *action.Service,
	teardowns *teardown.Service,
	provider impls.CloudProvider,
	ledger impls.Ledger,
	logger *slog.Logger,
) *Service {
	return &Service{
		boundaries: boundaries,
		networks:   networks,
		launcher:   launcher,
		reconciler: reconciler,
		actions:    actions,
		teardowns:  teardowns,
		provider:   provider,
		ledger:     ledger,
		logger:     logger,
		locks:      newKeyedMutex(),
	}
}

// Provision turns a purchase into a running instance. The per-user lock
// guarantees at most one ACTIVE boundary and one AVAILABLE network row
// per user even under concurrent requests.
func (s *Service) Provision(ctx context.Context, userID string, spec domain.LaunchSpec) (*domain.Instance, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	boundary, err := s.boundaries.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}

	net, err := s.networks.Ensure(ctx, boundary)
	if err != nil {
		return nil, err
	}

	inst, err := s.launcher.Launch(ctx, boundary, net, spec)
	if err != nil {
		return nil, err
	}

	// The request returns now; state polling, address resolution, OS
	// detection and credential retrieval continue in the background.
	s.reconciler.Start(inst.LocalID)
	return inst, nil
}

func (s *Service) ListInstances(ctx context.Context, userID string) ([]domain.Instance, error) {
	return s.ledger.InstancesByUser(ctx, userID)
}

// GetInstance loads one instance and refreshes its lifecycle state from
// the provider before trusting the ledger.
func (s *Service) GetInstance(ctx context.Context, userID, localID string) (*domain.Instance, error) {
	inst, err := s.owned(ctx, userID, localID)
	if err != nil {
		return nil, err
	}

	if inst.InstanceID == domain.PendingInstanceID || inst.State.Terminal() {
		return inst, nil
	}

	current, err := s.provider.GetInstance(ctx, inst.InstanceID)
	if err != nil {
		if domainerrors.IsProviderNotFound(err) {
			inst.State = domain.StateTerminated
			if putErr := s.ledger.PutInstance(ctx, inst); putErr != nil {
				s.logger.Error("failed to persist drift correction", "local_id", localID, "err", putErr)
			}
			return inst, nil
		}
		s.logger.Warn("state refresh failed, serving ledger state", "local_id", localID, "err", err)
		return inst, nil
	}

	inst.State = current.State
	if err := s.ledger.PutInstance(ctx, inst); err != nil {
		return nil, domainerrors.InternalError{Step: "persist refreshed state", Err: err}
	}
	return inst, nil
}

func (s *Service) PerformAction(ctx context.Context, userID, localID string, act domain.InstanceAction) (*domain.Instance, error) {
	inst, err := s.owned(ctx, userID, localID)
	if err != nil {
		return nil, err
	}
	if inst.InstanceID == domain.PendingInstanceID {
		return nil, domainerrors.NotReadyError{Resource: "instance " + localID, State: string(domain.StateProvisioning)}
	}
	return s.actions.Perform(ctx, inst, act)
}

func (s *Service) ActionLog(ctx context.Context, userID, localID string) ([]domain.ActionLogEntry, error) {
	if _, err := s.owned(ctx, userID, localID); err != nil {
		return nil, err
	}
	return s.ledger.ActionLog(ctx, localID)
}

func (s *Service) Teardown(ctx context.Context, boundaryName string) (*domain.TeardownSummary, error) {
	return s.teardowns.Teardown(ctx, boundaryName)
}

// owned loads the instance and rejects cross-user access.
func (s *Service) owned(ctx context.Context, userID, localID string) (*domain.Instance, error) {
	inst, err := s.ledger.Instance(ctx, localID)
	if err != nil {
		if errors.Is(err, impls.ErrNotFound) {
			return nil, domainerrors.ClientError{Reason: "unknown instance " + localID}
		}
		return nil, domainerrors.InternalError{Step: "load instance", Err: err}
	}
	if inst.UserID != userID {
		return nil, domainerrors.ClientError{Reason: "unknown instance " + localID}
	}
	return inst, nil
}
