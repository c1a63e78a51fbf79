// Package action executes start/stop/restart/terminate against an
// existing instance. Provider-side existence and state are re-validated
// immediately before the mutating call, and the provider's authoritative
// result is persisted after every action.
package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/impls"
	"github.com/qudata/control/internal/metrics"
)

type Service struct {
	provider impls.CloudProvider
	ledger   impls.Ledger
	logger   *slog.Logger
}

func NewService(provider impls.CloudProvider, ledger impls.Ledger, logger *slog.Logger) *Service {
	return &Service{provider: provider, ledger: ledger, logger: logger}
}

// Perform runs one lifecycle action. The returned instance reflects the
// provider's authoritative state after the action.
func (s *Service) Perform(ctx context.Context, inst *domain.Instance, act domain.InstanceAction) (*domain.Instance, error) {
	outcome := "ok"
	defer func() {
		metrics.ActionTotal.WithLabelValues(string(act), outcome).Inc()
		_ = s.ledger.AppendActionLog(ctx, &domain.ActionLogEntry{
			LocalID:     inst.LocalID,
			Action:      string(act),
			Description: "action " + string(act) + " -> " + outcome,
			Metadata:    map[string]string{"state": string(inst.State)},
		})
	}()

	current, err := s.provider.GetInstance(ctx, inst.InstanceID)
	if err != nil {
		if domainerrors.IsProviderNotFound(err) {
			outcome = "drift"
			return nil, s.markDrift(ctx, inst)
		}
		outcome = "error"
		return nil, domainerrors.InternalError{Step: "validate instance", Err: err}
	}
	if current.State.Terminal() {
		outcome = "invalid_state"
		return nil, domainerrors.ClientError{
			Reason: "action " + string(act) + " is not valid for an instance in state " + string(current.State),
		}
	}

	inst.State = current.State
	if err := s.ledger.PutInstance(ctx, inst); err != nil {
		outcome = "error"
		return nil, domainerrors.InternalError{Step: "persist observed state", Err: err}
	}

	result, err := s.mutate(ctx, inst, act)
	if err != nil {
		// The instance can vanish between the check and the call; the
		// provider does not prevent that race.
		if domainerrors.IsProviderNotFound(err) {
			outcome = "drift"
			return nil, s.markDrift(ctx, inst)
		}
		outcome = "error"
		return nil, domainerrors.InternalError{Step: "perform " + string(act), Err: err}
	}

	inst.State = result
	s.stampStartedAt(inst, act)
	if err := s.ledger.PutInstance(ctx, inst); err != nil {
		outcome = "error"
		return nil, domainerrors.InternalError{Step: "persist action result", Err: err}
	}

	s.logger.Info("instance action performed",
		"local_id", inst.LocalID, "action", act, "state", inst.State)
	return inst, nil
}

func (s *Service) mutate(ctx context.Context, inst *domain.Instance, act domain.InstanceAction) (domain.InstanceState, error) {
	switch act {
	case domain.ActionStart:
		result, err := s.provider.InstanceAction(ctx, inst.InstanceID, domain.ProviderActionStart)
		if err != nil {
			return "", err
		}
		return result.State, nil
	case domain.ActionStop:
		result, err := s.provider.InstanceAction(ctx, inst.InstanceID, domain.ProviderActionStop)
		if err != nil {
			return "", err
		}
		return result.State, nil
	case domain.ActionRestart:
		result, err := s.provider.InstanceAction(ctx, inst.InstanceID, domain.ProviderActionSoftReset)
		if err != nil {
			return "", err
		}
		return result.State, nil
	case domain.ActionTerminate:
		if err := s.provider.TerminateInstance(ctx, inst.InstanceID); err != nil {
			return "", err
		}
		return domain.StateTerminating, nil
	default:
		return "", domainerrors.ClientError{Reason: "unknown action " + string(act)}
	}
}

// stampStartedAt records when the instance entered RUNNING: once for
// START, unconditionally for RESTART.
func (s *Service) stampStartedAt(inst *domain.Instance, act domain.InstanceAction) {
	if inst.State != domain.StateRunning {
		return
	}
	now := time.Now().UTC()
	switch act {
	case domain.ActionStart:
		if inst.StartedAt == nil {
			inst.StartedAt = &now
		}
	case domain.ActionRestart:
		inst.StartedAt = &now
	}
}

// markDrift corrects the ledger after the provider reported the instance
// gone, and tells the caller explicitly that the resource was lost
// outside the platform.
func (s *Service) markDrift(ctx context.Context, inst *domain.Instance) error {
	metrics.DriftDetectedTotal.Inc()
	inst.State = domain.StateTerminated
	if err := s.ledger.PutInstance(ctx, inst); err != nil {
		s.logger.Error("failed to persist drift correction", "local_id", inst.LocalID, "err", err)
	}
	s.logger.Warn("instance deleted outside the platform",
		"local_id", inst.LocalID, "instance_id", inst.InstanceID)
	return domainerrors.DriftError{Resource: "instance", ID: inst.InstanceID}
}
