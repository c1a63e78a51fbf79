// Package teardown deletes everything a tenant boundary owns, in
// dependency order, then removes the matching ledger rows in one local
// transaction. A failed provider step aborts before the ledger is
// touched, so retrying the whole operation is safe; already-deleted
// provider resources are treated as success.
package teardown

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/impls"
	"github.com/qudata/control/internal/metrics"
	"github.com/qudata/control/internal/retry"
)

type Service struct {
	provider impls.CloudProvider
	ledger   impls.Ledger
	logger   *slog.Logger

	terminateAttempts int
	terminateInterval time.Duration
	settle            time.Duration
	sleep             retry.SleepFunc
}

type Option func(*Service)

// WithTiming overrides the waits, used by tests.
func WithTiming(terminateAttempts int, terminateInterval, settle time.Duration, sleep retry.SleepFunc) Option {
	return func(s *Service) {
		s.terminateAttempts = terminateAttempts
		s.terminateInterval = terminateInterval
		s.settle = settle
		s.sleep = sleep
	}
}

func NewService(provider impls.CloudProvider, ledger impls.Ledger, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		provider:          provider,
		ledger:            ledger,
		logger:            logger,
		terminateAttempts: 30,
		terminateInterval: 10 * time.Second,
		settle:            5 * time.Second,
		sleep:             retry.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Teardown removes every provider resource inside the named boundary and
// then the boundary itself, followed by the ledger cleanup.
func (s *Service) Teardown(ctx context.Context, boundaryName string) (*domain.TeardownSummary, error) {
	boundary, err := s.ledger.BoundaryByName(ctx, boundaryName)
	if err != nil {
		if errors.Is(err, impls.ErrNotFound) {
			return nil, domainerrors.ClientError{Reason: "unknown tenant boundary " + boundaryName}
		}
		return nil, domainerrors.InternalError{Step: "resolve boundary", Err: err}
	}

	providerGone := false
	comp, err := s.provider.GetCompartment(ctx, boundary.CompartmentID)
	switch {
	case err == nil:
		if comp.State != "ACTIVE" {
			// A boundary already mid-deletion cannot be deleted safely.
			metrics.TeardownTotal.WithLabelValues("not_ready").Inc()
			return nil, domainerrors.NotReadyError{Resource: "tenant boundary " + boundaryName, State: comp.State}
		}
	case domainerrors.IsProviderNotFound(err):
		// Everything provider-side is already gone; only the ledger
		// cleanup remains.
		providerGone = true
	default:
		metrics.TeardownTotal.WithLabelValues("failed").Inc()
		return nil, domainerrors.InternalError{Step: "verify boundary", Err: err}
	}

	summary := &domain.TeardownSummary{BoundaryName: boundaryName}

	if !providerGone {
		terminated, err := s.terminateInstances(ctx, boundary.CompartmentID)
		if err != nil {
			metrics.TeardownTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		summary.InstancesTerminated = terminated

		deleted, err := s.deleteNetworks(ctx, boundary.CompartmentID)
		if err != nil {
			metrics.TeardownTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		summary.NetworksDeleted = deleted

		if err := s.provider.DeleteCompartment(ctx, boundary.CompartmentID); err != nil && !domainerrors.IsProviderNotFound(err) {
			metrics.TeardownTotal.WithLabelValues("failed").Inc()
			return nil, domainerrors.InternalError{Step: "delete boundary", Err: err}
		}
	}

	if err := s.commitLedger(ctx, boundary); err != nil {
		metrics.TeardownTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.TeardownTotal.WithLabelValues("completed").Inc()
	s.logger.Info("boundary torn down",
		"boundary", boundaryName,
		"instances", summary.InstancesTerminated,
		"networks", summary.NetworksDeleted,
	)
	return summary, nil
}

// terminateInstances issues terminate for every non-terminal instance in
// the compartment, then waits (bounded) for all of them to reach
// TERMINATED.
func (s *Service) terminateInstances(ctx context.Context, compartmentID string) (int, error) {
	instances, err := s.provider.ListInstances(ctx, compartmentID)
	if err != nil {
		return 0, domainerrors.InternalError{Step: "list instances", Err: err}
	}

	terminated := 0
	for _, inst := range instances {
		if inst.State == domain.StateTerminated {
			continue
		}
		if inst.State != domain.StateTerminating {
			if err := s.provider.TerminateInstance(ctx, inst.ID); err != nil && !domainerrors.IsProviderNotFound(err) {
				return 0, domainerrors.InternalError{Step: "terminate instance " + inst.ID, Err: err}
			}
		}
		terminated++
	}
	if terminated == 0 {
		return 0, nil
	}

	waiter := retry.Waiter{
		MaxAttempts: s.terminateAttempts,
		Delay:       retry.Fixed(s.terminateInterval),
		SleepFn:     s.sleep,
	}
	err = waiter.Until(ctx, func(ctx context.Context) (bool, error) {
		remaining, err := s.provider.ListInstances(ctx, compartmentID)
		if err != nil {
			return false, err
		}
		for _, inst := range remaining {
			if inst.State != domain.StateTerminated {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return 0, domainerrors.NotReadyError{Resource: "instances in " + compartmentID, State: "TERMINATING"}
		}
		return 0, domainerrors.InternalError{Step: "await instance termination", Err: err}
	}
	return terminated, nil
}

// deleteNetworks removes every VCN in the compartment: subnets first,
// then routes (a route referencing a gateway blocks that gateway's
// deletion), then gateways, then the VCN itself. Each step gets time to
// settle before the next.
func (s *Service) deleteNetworks(ctx context.Context, compartmentID string) (int, error) {
	vcns, err := s.provider.ListVcns(ctx, compartmentID)
	if err != nil {
		return 0, domainerrors.InternalError{Step: "list vcns", Err: err}
	}

	for _, vcn := range vcns {
		subnets, err := s.provider.ListSubnets(ctx, compartmentID, vcn.ID)
		if err != nil {
			return 0, domainerrors.InternalError{Step: "list subnets", Err: err}
		}
		for _, subnet := range subnets {
			if err := s.provider.DeleteSubnet(ctx, subnet.ID); err != nil && !domainerrors.IsProviderNotFound(err) {
				return 0, domainerrors.InternalError{Step: "delete subnet " + subnet.ID, Err: err}
			}
		}
		if err := s.sleep(ctx, s.settle); err != nil {
			return 0, err
		}

		tables, err := s.provider.ListRouteTables(ctx, compartmentID, vcn.ID)
		if err != nil {
			return 0, domainerrors.InternalError{Step: "list route tables", Err: err}
		}
		for _, table := range tables {
			if len(table.Rules) == 0 {
				continue
			}
			if err := s.provider.UpdateRouteTable(ctx, table.ID, nil); err != nil && !domainerrors.IsProviderNotFound(err) {
				return 0, domainerrors.InternalError{Step: "clear route table " + table.ID, Err: err}
			}
		}
		if err := s.sleep(ctx, s.settle); err != nil {
			return 0, err
		}

		gateways, err := s.provider.ListInternetGateways(ctx, compartmentID, vcn.ID)
		if err != nil {
			return 0, domainerrors.InternalError{Step: "list gateways", Err: err}
		}
		for _, gw := range gateways {
			if err := s.provider.DeleteInternetGateway(ctx, gw.ID); err != nil && !domainerrors.IsProviderNotFound(err) {
				return 0, domainerrors.InternalError{Step: "delete gateway " + gw.ID, Err: err}
			}
		}
		if err := s.sleep(ctx, s.settle); err != nil {
			return 0, err
		}

		if err := s.provider.DeleteVcn(ctx, vcn.ID); err != nil && !domainerrors.IsProviderNotFound(err) {
			return 0, domainerrors.InternalError{Step: "delete vcn " + vcn.ID, Err: err}
		}
	}
	return len(vcns), nil
}

// commitLedger writes one audit entry per owned instance and removes all
// local rows atomically.
func (s *Service) commitLedger(ctx context.Context, boundary *domain.TenantBoundary) error {
	instances, err := s.ledger.InstancesByUser(ctx, boundary.UserID)
	if err != nil {
		return domainerrors.InternalError{Step: "list ledger instances", Err: err}
	}

	audit := make([]domain.ActionLogEntry, 0, len(instances))
	for _, inst := range instances {
		audit = append(audit, domain.ActionLogEntry{
			LocalID:     inst.LocalID,
			Action:      "TEARDOWN",
			Description: "instance removed during boundary teardown",
			Metadata:    map[string]string{"instance_id": inst.InstanceID},
		})
	}

	if err := s.ledger.TeardownCommit(ctx, boundary.UserID, audit); err != nil {
		return domainerrors.InternalError{Step: "commit teardown", Err: err}
	}
	return nil
}
