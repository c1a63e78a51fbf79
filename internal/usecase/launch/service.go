// Package launch allocates an instance inside a tenant network, trying a
// priority-ordered list of shapes and classifying provider failures into
// retryable-with-fallback versus terminal.
package launch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/impls"
	"github.com/qudata/control/internal/metrics"
)

// maxConsecutiveIncompatible aborts the fallback search once this many
// fallback shapes in a row are rejected for the image: the remaining
// candidates are evidently the wrong architecture family and further
// attempts waste time and provider quota.
const maxConsecutiveIncompatible = 3

type Service struct {
	provider       impls.CloudProvider
	ledger         impls.Ledger
	sealer         impls.Sealer
	logger         *slog.Logger
	fallbackShapes []string
}

func NewService(provider impls.CloudProvider, ledger impls.Ledger, sealer impls.Sealer, fallbackShapes []string, logger *slog.Logger) *Service {
	return &Service{
		provider:       provider,
		ledger:         ledger,
		sealer:         sealer,
		logger:         logger,
		fallbackShapes: fallbackShapes,
	}
}

// Launch provisions one instance. A placeholder ledger row is created
// first to obtain the stable local id the display name is derived from;
// if no shape launches, the placeholder is removed so no orphaned local
// record survives.
func (s *Service) Launch(ctx context.Context, boundary *domain.TenantBoundary, network *domain.NetworkResource, spec domain.LaunchSpec) (*domain.Instance, error) {
	localID := uuid.New().String()
	now := time.Now().UTC()
	placeholder := &domain.Instance{
		LocalID:        localID,
		UserID:         boundary.UserID,
		SubscriptionID: spec.SubscriptionID,
		BoundaryID:     boundary.CompartmentID,
		NetworkID:      network.VcnID,
		InstanceID:     domain.PendingInstanceID,
		DisplayName:    displayName(boundary.UserID, localID),
		Shape:          spec.Shape,
		ImageID:        spec.ImageID,
		State:          domain.StateProvisioning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.ledger.PutInstance(ctx, placeholder); err != nil {
		return nil, domainerrors.InternalError{Step: "create placeholder", Err: err}
	}

	ads, err := s.provider.ListAvailabilityDomains(ctx, boundary.CompartmentID)
	if err != nil || len(ads) == 0 {
		_ = s.ledger.DeleteInstance(ctx, localID)
		if err == nil {
			err = fmt.Errorf("no availability domain")
		}
		return nil, domainerrors.InternalError{Step: "list availability domains", Err: err}
	}

	bootGB := spec.BootVolumeGB
	if bootGB <= 0 {
		bootGB = defaultBootGB
	}
	base := domain.LaunchRequest{
		CompartmentID:      boundary.CompartmentID,
		SubnetID:           network.SubnetID,
		AvailabilityDomain: ads[0],
		DisplayName:        placeholder.DisplayName,
		ImageID:            spec.ImageID,
		BootVolumeGB:       bootGB,
		SSHAuthorizedKeys:  spec.SSHAuthorizedKeys,
	}

	launched, err := searchShapes(ctx, s.provider, base, trialOrder(spec.Shape, s.fallbackShapes), spec.OCPUs, spec.MemoryGB, s.logger)
	if err != nil {
		if delErr := s.ledger.DeleteInstance(ctx, localID); delErr != nil {
			s.logger.Error("failed to remove placeholder after launch failure",
				"local_id", localID, "err", delErr)
		}
		metrics.ProvisionTotal.WithLabelValues("launch_failed").Inc()
		return nil, err
	}

	if launched.Shape != spec.Shape {
		metrics.ShapeFallbackTotal.WithLabelValues("launched").Inc()
	}

	placeholder.InstanceID = launched.ID
	placeholder.Shape = launched.Shape
	placeholder.State = launched.State
	if spec.SSHPrivateKey != "" {
		sealed, err := s.sealer.Seal(spec.SSHPrivateKey)
		if err != nil {
			return nil, domainerrors.InternalError{Step: "seal ssh key", Err: err}
		}
		placeholder.SealedSSHKey = sealed
	}
	if err := s.ledger.PutInstance(ctx, placeholder); err != nil {
		return nil, domainerrors.InternalError{Step: "persist instance", Err: err}
	}

	_ = s.ledger.AppendActionLog(ctx, &domain.ActionLogEntry{
		LocalID:     localID,
		Action:      "LAUNCH",
		Description: "instance launched",
		Metadata: map[string]string{
			"requested_shape": spec.Shape,
			"launched_shape":  launched.Shape,
			"instance_id":     launched.ID,
		},
	})

	s.logger.Info("instance launched",
		"local_id", localID,
		"instance_id", launched.ID,
		"requested_shape", spec.Shape,
		"launched_shape", launched.Shape,
	)
	metrics.ProvisionTotal.WithLabelValues("launched").Inc()
	return placeholder, nil
}

// searchShapes walks the trial order until one shape launches or a
// terminal classification ends the search. All search state is local to
// the fold.
func searchShapes(ctx context.Context, provider impls.CloudProvider, base domain.LaunchRequest, order []string, reqOCPUs, reqMemoryGB int, logger *slog.Logger) (*domain.ProviderInstance, error) {
	consecutiveIncompatible := 0
	fallbackHadCapacity := false

	for i, shape := range order {
		req := base
		req.Shape = shape
		req.OCPUs, req.MemoryGB = sizingFor(shape, reqOCPUs, reqMemoryGB)

		inst, err := provider.LaunchInstance(ctx, req)
		if err == nil {
			return inst, nil
		}
		last := i == len(order)-1

		switch {
		case domainerrors.IsProviderIncompatible(err):
			if i == 0 {
				// The user picked this shape; fallbacks cannot fix an
				// image incompatibility the user has to resolve.
				return nil, domainerrors.IncompatibleShapeError{Shape: shape, ImageID: base.ImageID}
			}
			consecutiveIncompatible++
			metrics.ShapeFallbackTotal.WithLabelValues("incompatible").Inc()
			logger.Warn("fallback shape incompatible with image", "shape", shape, "image_id", base.ImageID)
			if consecutiveIncompatible >= maxConsecutiveIncompatible {
				return nil, domainerrors.ClientError{
					Reason: "fallback shapes are not compatible with the selected image; choose a different image",
				}
			}
			if last {
				return nil, domainerrors.CapacityError{Shapes: order, CompatibleFallback: fallbackHadCapacity}
			}

		case domainerrors.IsProviderCapacity(err):
			consecutiveIncompatible = 0
			if i > 0 {
				fallbackHadCapacity = true
			}
			metrics.ShapeFallbackTotal.WithLabelValues("capacity").Inc()
			logger.Warn("shape out of capacity", "shape", shape)
			if last {
				return nil, domainerrors.CapacityError{Shapes: order, CompatibleFallback: fallbackHadCapacity}
			}

		default:
			if last {
				return nil, err
			}
			consecutiveIncompatible = 0
			logger.Warn("launch failed, trying next shape", "shape", shape, "err", err)
		}
	}
	return nil, domainerrors.CapacityError{Shapes: order, CompatibleFallback: fallbackHadCapacity}
}

// displayName derives the provider-visible name from the owning user and
// the local id, which guarantees global uniqueness without a separate
// naming authority.
func displayName(userID, localID string) string {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("vm-%s-%s", short, localID)
}
