package impls

import (
	"context"

	"github.com/qudata/control/internal/domain"
)

// CloudProvider abstracts the cloud vendor operations the orchestrator
// consumes. Implementations must surface classifiable errors; see
// infra/oci/classify.go for the taxonomy contract.
type CloudProvider interface {
	CreateCompartment(ctx context.Context, name, description string) (*domain.Compartment, error)
	GetCompartment(ctx context.Context, id string) (*domain.Compartment, error)
	DeleteCompartment(ctx context.Context, id string) error

	CreateVcn(ctx context.Context, compartmentID, name, cidr string) (*domain.Vcn, error)
	GetVcn(ctx context.Context, id string) (*domain.Vcn, error)
	DeleteVcn(ctx context.Context, id string) error
	ListVcns(ctx context.Context, compartmentID string) ([]domain.Vcn, error)

	CreateInternetGateway(ctx context.Context, compartmentID, vcnID, name string) (*domain.Gateway, error)
	ListInternetGateways(ctx context.Context, compartmentID, vcnID string) ([]domain.Gateway, error)
	DeleteInternetGateway(ctx context.Context, id string) error

	ListRouteTables(ctx context.Context, compartmentID, vcnID string) ([]domain.RouteTable, error)
	UpdateRouteTable(ctx context.Context, id string, rules []domain.RouteRule) error
	UpdateSecurityList(ctx context.Context, id string, ingress []domain.IngressRule) error

	ListAvailabilityDomains(ctx context.Context, compartmentID string) ([]string, error)
	CreateSubnet(ctx context.Context, compartmentID, vcnID, name, cidr, availabilityDomain string) (*domain.Subnet, error)
	ListSubnets(ctx context.Context, compartmentID, vcnID string) ([]domain.Subnet, error)
	DeleteSubnet(ctx context.Context, id string) error

	LaunchInstance(ctx context.Context, req domain.LaunchRequest) (*domain.ProviderInstance, error)
	GetInstance(ctx context.Context, id string) (*domain.ProviderInstance, error)
	ListInstances(ctx context.Context, compartmentID string) ([]domain.ProviderInstance, error)
	InstanceAction(ctx context.Context, id string, action domain.ProviderAction) (*domain.ProviderInstance, error)
	TerminateInstance(ctx context.Context, id string) error

	GetInstanceAddresses(ctx context.Context, compartmentID, instanceID string) (publicIP, privateIP string, err error)
	GetImage(ctx context.Context, id string) (*domain.Image, error)
	GetInstanceCredentials(ctx context.Context, instanceID string) (*domain.InstanceCredentials, error)
}
