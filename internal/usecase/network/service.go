// Package network ensures exactly one provider network exists per user:
// VCN, gateway, routing, firewall rules and subnet, shared by all of the
// user's instances.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/impls"
)

const (
	vcnCIDR      = "10.0.0.0/16"
	subnetCIDR   = "10.0.0.0/24"
	anywhereCIDR = "0.0.0.0/0"
	tcpProtocol  = "6"
)

// servicePorts are the administrative and service ports the platform
// requires open on every tenant network: SSH, HTTP, HTTPS, RDP.
var servicePorts = []int{22, 80, 443, 3389}

type Service struct {
	provider impls.CloudProvider
	ledger   impls.Ledger
	logger   *slog.Logger
}

func NewService(provider impls.CloudProvider, ledger impls.Ledger, logger *slog.Logger) *Service {
	return &Service{provider: provider, ledger: ledger, logger: logger}
}

// Ensure returns an AVAILABLE network for the boundary's owning user,
// creating the full provider-side chain when none survives verification.
func (s *Service) Ensure(ctx context.Context, boundary *domain.TenantBoundary) (*domain.NetworkResource, error) {
	// The provider rejects resource creation in a compartment that is not
	// ACTIVE yet, so fail fast with a retryable error instead.
	comp, err := s.provider.GetCompartment(ctx, boundary.CompartmentID)
	if err != nil {
		if domainerrors.IsProviderNotFound(err) {
			return nil, domainerrors.NotReadyError{Resource: "tenant boundary " + boundary.Name}
		}
		return nil, domainerrors.InternalError{Step: "verify boundary", Err: err}
	}
	if comp.State != "ACTIVE" {
		return nil, domainerrors.NotReadyError{Resource: "tenant boundary " + boundary.Name, State: comp.State}
	}

	existing, err := s.ledger.Network(ctx, boundary.UserID)
	switch {
	case err == nil:
		if existing.State == domain.NetworkAvailable {
			if _, err := s.provider.GetVcn(ctx, existing.VcnID); err == nil {
				return existing, nil
			} else if !domainerrors.IsProviderNotFound(err) {
				return nil, domainerrors.InternalError{Step: "verify network", Err: err}
			}
		}
		s.logger.Warn("stale network record, recreating",
			"user_id", boundary.UserID, "vcn_id", existing.VcnID)
		if err := s.ledger.DeleteNetwork(ctx, boundary.UserID); err != nil {
			return nil, domainerrors.InternalError{Step: "delete stale network", Err: err}
		}
	case errors.Is(err, impls.ErrNotFound):
	default:
		return nil, domainerrors.InternalError{Step: "load network", Err: err}
	}

	return s.create(ctx, boundary)
}

// create provisions the network chain in strict order. The composite
// record is persisted only after every step succeeds; a failure leaves
// no local record so the next Ensure retries from scratch. Provider-side
// orphans from a partial run are not rolled back automatically.
func (s *Service) create(ctx context.Context, boundary *domain.TenantBoundary) (*domain.NetworkResource, error) {
	compartmentID := boundary.CompartmentID

	vcn, err := s.provider.CreateVcn(ctx, compartmentID, "net-"+boundary.Name, vcnCIDR)
	if err != nil {
		return nil, domainerrors.InternalError{Step: "create vcn", Err: err}
	}

	gw, err := s.provider.CreateInternetGateway(ctx, compartmentID, vcn.ID, "igw-"+boundary.Name)
	if err != nil {
		return nil, domainerrors.InternalError{Step: "create gateway", Err: err}
	}

	// The default route table and security list ids are only known after
	// the VCN exists; read it back to discover them.
	vcn, err = s.provider.GetVcn(ctx, vcn.ID)
	if err != nil {
		return nil, domainerrors.InternalError{Step: "read back vcn", Err: err}
	}

	routes := []domain.RouteRule{{Destination: anywhereCIDR, NetworkEntityID: gw.ID}}
	if err := s.provider.UpdateRouteTable(ctx, vcn.DefaultRouteTableID, routes); err != nil {
		return nil, domainerrors.InternalError{Step: "update route table", Err: err}
	}

	if err := s.provider.UpdateSecurityList(ctx, vcn.DefaultSecurityListID, ingressRules()); err != nil {
		return nil, domainerrors.InternalError{Step: "update security list", Err: err}
	}

	ads, err := s.provider.ListAvailabilityDomains(ctx, compartmentID)
	if err != nil {
		return nil, domainerrors.InternalError{Step: "list availability domains", Err: err}
	}
	if len(ads) == 0 {
		return nil, domainerrors.InternalError{
			Step: "list availability domains",
			Err:  fmt.Errorf("no availability domain in region %s", boundary.Region),
		}
	}

	subnet, err := s.provider.CreateSubnet(ctx, compartmentID, vcn.ID, "subnet-"+boundary.Name, subnetCIDR, ads[0])
	if err != nil {
		return nil, domainerrors.InternalError{Step: "create subnet", Err: err}
	}

	network := &domain.NetworkResource{
		UserID:         boundary.UserID,
		BoundaryID:     boundary.CompartmentID,
		VcnID:          vcn.ID,
		SubnetID:       subnet.ID,
		GatewayID:      gw.ID,
		RouteTableID:   vcn.DefaultRouteTableID,
		SecurityListID: vcn.DefaultSecurityListID,
		CIDR:           vcnCIDR,
		SubnetCIDR:     subnetCIDR,
		State:          domain.NetworkAvailable,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.ledger.PutNetwork(ctx, network); err != nil {
		return nil, domainerrors.InternalError{Step: "persist network", Err: err}
	}

	s.logger.Info("network ready",
		"user_id", boundary.UserID, "vcn_id", vcn.ID, "subnet_id", subnet.ID)
	return network, nil
}

func ingressRules() []domain.IngressRule {
	rules := make([]domain.IngressRule, 0, len(servicePorts))
	for _, port := range servicePorts {
		rules = append(rules, domain.IngressRule{
			Protocol: tcpProtocol,
			Source:   anywhereCIDR,
			PortMin:  port,
			PortMax:  port,
		})
	}
	return rules
}
