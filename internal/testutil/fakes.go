// Package testutil holds the scripted fakes the orchestrator tests run
// against: an in-memory ledger and a cloud provider whose behavior is
// overridden per test via function fields. Every provider call is
// recorded so tests can assert which operations ran.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/qudata/control/internal/domain"
	"github.com/qudata/control/internal/impls"
)

// NoSleep satisfies retry.SleepFunc without real time passing.
func NoSleep(_ context.Context, _ time.Duration) error { return nil }

// FakeProvider implements impls.CloudProvider. Unset function fields
// fall back to permissive happy-path defaults.
type FakeProvider struct {
	mu    sync.Mutex
	calls []string

	CreateCompartmentFn       func(ctx context.Context, name, description string) (*domain.Compartment, error)
	GetCompartmentFn          func(ctx context.Context, id string) (*domain.Compartment, error)
	DeleteCompartmentFn       func(ctx context.Context, id string) error
	CreateVcnFn               func(ctx context.Context, compartmentID, name, cidr string) (*domain.Vcn, error)
	GetVcnFn                  func(ctx context.Context, id string) (*domain.Vcn, error)
	DeleteVcnFn               func(ctx context.Context, id string) error
	ListVcnsFn                func(ctx context.Context, compartmentID string) ([]domain.Vcn, error)
	CreateInternetGatewayFn   func(ctx context.Context, compartmentID, vcnID, name string) (*domain.Gateway, error)
	ListInternetGatewaysFn    func(ctx context.Context, compartmentID, vcnID string) ([]domain.Gateway, error)
	DeleteInternetGatewayFn   func(ctx context.Context, id string) error
	ListRouteTablesFn         func(ctx context.Context, compartmentID, vcnID string) ([]domain.RouteTable, error)
	UpdateRouteTableFn        func(ctx context.Context, id string, rules []domain.RouteRule) error
	UpdateSecurityListFn      func(ctx context.Context, id string, ingress []domain.IngressRule) error
	ListAvailabilityDomainsFn func(ctx context.Context, compartmentID string) ([]string, error)
	CreateSubnetFn            func(ctx context.Context, compartmentID, vcnID, name, cidr, ad string) (*domain.Subnet, error)
	ListSubnetsFn             func(ctx context.Context, compartmentID, vcnID string) ([]domain.Subnet, error)
	DeleteSubnetFn            func(ctx context.Context, id string) error
	LaunchInstanceFn          func(ctx context.Context, req domain.LaunchRequest) (*domain.ProviderInstance, error)
	GetInstanceFn             func(ctx context.Context, id string) (*domain.ProviderInstance, error)
	ListInstancesFn           func(ctx context.Context, compartmentID string) ([]domain.ProviderInstance, error)
	InstanceActionFn          func(ctx context.Context, id string, action domain.ProviderAction) (*domain.ProviderInstance, error)
	TerminateInstanceFn       func(ctx context.Context, id string) error
	GetInstanceAddressesFn    func(ctx context.Context, compartmentID, instanceID string) (string, string, error)
	GetImageFn                func(ctx context.Context, id string) (*domain.Image, error)
	GetInstanceCredentialsFn  func(ctx context.Context, instanceID string) (*domain.InstanceCredentials, error)
}

func (p *FakeProvider) record(name string) {
	p.mu.Lock()
	p.calls = append(p.calls, name)
	p.mu.Unlock()
}

// Calls returns the recorded call names in order.
func (p *FakeProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallCount returns how many times the named operation ran.
func (p *FakeProvider) CallCount(name string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

// MutationCalls returns recorded calls that mutate provider state.
func (p *FakeProvider) MutationCalls() []string {
	var out []string
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, "Create") || strings.HasPrefix(c, "Update") ||
			strings.HasPrefix(c, "Delete") || strings.HasPrefix(c, "Launch") ||
			strings.HasPrefix(c, "Terminate") || c == "InstanceAction" {
			out = append(out, c)
		}
	}
	return out
}

func (p *FakeProvider) CreateCompartment(ctx context.Context, name, description string) (*domain.Compartment, error) {
	p.record("CreateCompartment")
	if p.CreateCompartmentFn != nil {
		return p.CreateCompartmentFn(ctx, name, description)
	}
	return &domain.Compartment{ID: "ocid1.compartment." + name, Name: name, State: "ACTIVE"}, nil
}

func (p *FakeProvider) GetCompartment(ctx context.Context, id string) (*domain.Compartment, error) {
	p.record("GetCompartment")
	if p.GetCompartmentFn != nil {
		return p.GetCompartmentFn(ctx, id)
	}
	return &domain.Compartment{ID: id, State: "ACTIVE"}, nil
}

func (p *FakeProvider) DeleteCompartment(ctx context.Context, id string) error {
	p.record("DeleteCompartment")
	if p.DeleteCompartmentFn != nil {
		return p.DeleteCompartmentFn(ctx, id)
	}
	return nil
}

func (p *FakeProvider) CreateVcn(ctx context.Context, compartmentID, name, cidr string) (*domain.Vcn, error) {
	p.record("CreateVcn")
	if p.CreateVcnFn != nil {
		return p.CreateVcnFn(ctx, compartmentID, name, cidr)
	}
	return &domain.Vcn{ID: "vcn-1", CIDR: cidr, DefaultRouteTableID: "rt-1", DefaultSecurityListID: "sl-1"}, nil
}

func (p *FakeProvider) GetVcn(ctx context.Context, id string) (*domain.Vcn, error) {
	p.record("GetVcn")
	if p.GetVcnFn != nil {
		return p.GetVcnFn(ctx, id)
	}
	return &domain.Vcn{ID: id, DefaultRouteTableID: "rt-1", DefaultSecurityListID: "sl-1"}, nil
}

func (p *FakeProvider) DeleteVcn(ctx context.Context, id string) error {
	p.record("DeleteVcn")
	if p.DeleteVcnFn != nil {
		return p.DeleteVcnFn(ctx, id)
	}
	return nil
}

func (p *FakeProvider) ListVcns(ctx context.Context, compartmentID string) ([]domain.Vcn, error) {
	p.record("ListVcns")
	if p.ListVcnsFn != nil {
		return p.ListVcnsFn(ctx, compartmentID)
	}
	return nil, nil
}

func (p *FakeProvider) CreateInternetGateway(ctx context.Context, compartmentID, vcnID, name string) (*domain.Gateway, error) {
	p.record("CreateInternetGateway")
	if p.CreateInternetGatewayFn != nil {
		return p.CreateInternetGatewayFn(ctx, compartmentID, vcnID, name)
	}
	return &domain.Gateway{ID: "igw-1", VcnID: vcnID, Enabled: true}, nil
}

func (p *FakeProvider) ListInternetGateways(ctx context.Context, compartmentID, vcnID string) ([]domain.Gateway, error) {
	p.record("ListInternetGateways")
	if p.ListInternetGatewaysFn != nil {
		return p.ListInternetGatewaysFn(ctx, compartmentID, vcnID)
	}
	return nil, nil
}

func (p *FakeProvider) DeleteInternetGateway(ctx context.Context, id string) error {
	p.record("DeleteInternetGateway")
	if p.DeleteInternetGatewayFn != nil {
		return p.DeleteInternetGatewayFn(ctx, id)
	}
	return nil
}

func (p *FakeProvider) ListRouteTables(ctx context.Context, compartmentID, vcnID string) ([]domain.RouteTable, error) {
	p.record("ListRouteTables")
	if p.ListRouteTablesFn != nil {
		return p.ListRouteTablesFn(ctx, compartmentID, vcnID)
	}
	return nil, nil
}

func (p *FakeProvider) UpdateRouteTable(ctx context.Context, id string, rules []domain.RouteRule) error {
	p.record("UpdateRouteTable")
	if p.UpdateRouteTableFn != nil {
		return p.UpdateRouteTableFn(ctx, id, rules)
	}
	return nil
}

func (p *FakeProvider) UpdateSecurityList(ctx context.Context, id string, ingress []domain.IngressRule) error {
	p.record("UpdateSecurityList")
	if p.UpdateSecurityListFn != nil {
		return p.UpdateSecurityListFn(ctx, id, ingress)
	}
	return nil
}

func (p *FakeProvider) ListAvailabilityDomains(ctx context.Context, compartmentID string) ([]string, error) {
	p.record("ListAvailabilityDomains")
	if p.ListAvailabilityDomainsFn != nil {
		return p.ListAvailabilityDomainsFn(ctx, compartmentID)
	}
	return []string{"AD-1"}, nil
}

func (p *FakeProvider) CreateSubnet(ctx context.Context, compartmentID, vcnID, name, cidr, ad string) (*domain.Subnet, error) {
	p.record("CreateSubnet")
	if p.CreateSubnetFn != nil {
		return p.CreateSubnetFn(ctx, compartmentID, vcnID, name, cidr, ad)
	}
	return &domain.Subnet{ID: "subnet-1", VcnID: vcnID, CIDR: cidr, AvailabilityDomain: ad}, nil
}

func (p *FakeProvider) ListSubnets(ctx context.Context, compartmentID, vcnID string) ([]domain.Subnet, error) {
	p.record("ListSubnets")
	if p.ListSubnetsFn != nil {
		return p.ListSubnetsFn(ctx, compartmentID, vcnID)
	}
	return nil, nil
}

func (p *FakeProvider) DeleteSubnet(ctx context.Context, id string) error {
	p.record("DeleteSubnet")
	if p.DeleteSubnetFn != nil {
		return p.DeleteSubnetFn(ctx, id)
	}
	return nil
}

func (p *FakeProvider) LaunchInstance(ctx context.Context, req domain.LaunchRequest) (*domain.ProviderInstance, error) {
	p.record("LaunchInstance")
	if p.LaunchInstanceFn != nil {
		return p.LaunchInstanceFn(ctx, req)
	}
	return &domain.ProviderInstance{
		ID:          "inst-1",
		DisplayName: req.DisplayName,
		Shape:       req.Shape,
		ImageID:     req.ImageID,
		State:       domain.StateProvisioning,
	}, nil
}

func (p *FakeProvider) GetInstance(ctx context.Context, id string) (*domain.ProviderInstance, error) {
	p.record("GetInstance")
	if p.GetInstanceFn != nil {
		return p.GetInstanceFn(ctx, id)
	}
	return &domain.ProviderInstance{ID: id, State: domain.StateRunning}, nil
}

func (p *FakeProvider) ListInstances(ctx context.Context, compartmentID string) ([]domain.ProviderInstance, error) {
	p.record("ListInstances")
	if p.ListInstancesFn != nil {
		return p.ListInstancesFn(ctx, compartmentID)
	}
	return nil, nil
}

func (p *FakeProvider) InstanceAction(ctx context.Context, id string, action domain.ProviderAction) (*domain.ProviderInstance, error) {
	p.record("InstanceAction")
	if p.InstanceActionFn != nil {
		return p.InstanceActionFn(ctx, id, action)
	}
	state := domain.StateRunning
	if action == domain.ProviderActionStop {
		state = domain.StateStopped
	}
	return &domain.ProviderInstance{ID: id, State: state}, nil
}

func (p *FakeProvider) TerminateInstance(ctx context.Context, id string) error {
	p.record("TerminateInstance")
	if p.TerminateInstanceFn != nil {
		return p.TerminateInstanceFn(ctx, id)
	}
	return nil
}

func (p *FakeProvider) GetInstanceAddresses(ctx context.Context, compartmentID, instanceID string) (string, string, error) {
	p.record("GetInstanceAddresses")
	if p.GetInstanceAddressesFn != nil {
		return p.GetInstanceAddressesFn(ctx, compartmentID, instanceID)
	}
	return "203.0.113.10", "10.0.0.10", nil
}

func (p *FakeProvider) GetImage(ctx context.Context, id string) (*domain.Image, error) {
	p.record("GetImage")
	if p.GetImageFn != nil {
		return p.GetImageFn(ctx, id)
	}
	return &domain.Image{ID: id, OS: "Canonical Ubuntu", OSVersion: "22.04"}, nil
}

func (p *FakeProvider) GetInstanceCredentials(ctx context.Context, instanceID string) (*domain.InstanceCredentials, error) {
	p.record("GetInstanceCredentials")
	if p.GetInstanceCredentialsFn != nil {
		return p.GetInstanceCredentialsFn(ctx, instanceID)
	}
	return &domain.InstanceCredentials{Username: "opc", Password: "generated-password"}, nil
}

// MemoryLedger implements impls.Ledger in memory.
type MemoryLedger struct {
	mu         sync.Mutex
	boundaries map[string]domain.TenantBoundary
	networks   map[string]domain.NetworkResource
	instances  map[string]domain.Instance
	logs       map[string][]domain.ActionLogEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		boundaries: make(map[string]domain.TenantBoundary),
		networks:   make(map[string]domain.NetworkResource),
		instances:  make(map[string]domain.Instance),
		logs:       make(map[string][]domain.ActionLogEntry),
	}
}

func (l *MemoryLedger) Boundary(_ context.Context, userID string) (*domain.TenantBoundary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.boundaries[userID]
	if !ok {
		return nil, impls.ErrNotFound
	}
	return &b, nil
}

func (l *MemoryLedger) BoundaryByName(_ context.Context, name string) (*domain.TenantBoundary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.boundaries {
		if b.Name == name {
			out := b
			return &out, nil
		}
	}
	return nil, impls.ErrNotFound
}

func (l *MemoryLedger) PutBoundary(_ context.Context, b *domain.TenantBoundary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.boundaries[b.UserID] = *b
	return nil
}

func (l *MemoryLedger) DeleteBoundary(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.boundaries, userID)
	return nil
}

func (l *MemoryLedger) Network(_ context.Context, userID string) (*domain.NetworkResource, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.networks[userID]
	if !ok {
		return nil, impls.ErrNotFound
	}
	return &n, nil
}

func (l *MemoryLedger) PutNetwork(_ context.Context, n *domain.NetworkResource) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.networks[n.UserID] = *n
	return nil
}

func (l *MemoryLedger) DeleteNetwork(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.networks, userID)
	return nil
}

func (l *MemoryLedger) Instance(_ context.Context, localID string) (*domain.Instance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, ok := l.instances[localID]
	if !ok {
		return nil, impls.ErrNotFound
	}
	return &inst, nil
}

func (l *MemoryLedger) PutInstance(_ context.Context, inst *domain.Instance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.instances[inst.LocalID] = *inst
	return nil
}

func (l *MemoryLedger) DeleteInstance(_ context.Context, localID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.instances, localID)
	return nil
}

func (l *MemoryLedger) InstancesByUser(_ context.Context, userID string) ([]domain.Instance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Instance
	for _, inst := range l.instances {
		if inst.UserID == userID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (l *MemoryLedger) AppendActionLog(_ context.Context, entry *domain.ActionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.Seq = uint64(len(l.logs[entry.LocalID]) + 1)
	l.logs[entry.LocalID] = append(l.logs[entry.LocalID], *entry)
	return nil
}

func (l *MemoryLedger) ActionLog(_ context.Context, localID string) ([]domain.ActionLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ActionLogEntry(nil), l.logs[localID]...), nil
}

func (l *MemoryLedger) TeardownCommit(_ context.Context, userID string, audit []domain.ActionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range audit {
		entry.Seq = uint64(len(l.logs[entry.LocalID]) + 1)
		l.logs[entry.LocalID] = append(l.logs[entry.LocalID], entry)
	}
	for id, inst := range l.instances {
		if inst.UserID == userID {
			delete(l.instances, id)
		}
	}
	delete(l.networks, userID)
	delete(l.boundaries, userID)
	return nil
}

// FakeSealer round-trips plaintext with a visible prefix.
type FakeSealer struct{}

func (FakeSealer) Seal(plaintext string) ([]byte, error) {
	return []byte("sealed:" + plaintext), nil
}

func (FakeSealer) Open(sealed []byte) (string, error) {
	s := string(sealed)
	if !strings.HasPrefix(s, "sealed:") {
		return "", errors.New("not sealed")
	}
	return strings.TrimPrefix(s, "sealed:"), nil
}

// FakeNotifier records published events.
type FakeNotifier struct {
	mu     sync.Mutex
	Events []impls.CredentialsReadyEvent
}

func (n *FakeNotifier) CredentialsReady(_ context.Context, ev impls.CredentialsReadyEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, ev)
	return nil
}
