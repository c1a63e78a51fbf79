package domain

import "time"

// Provider-side views. These carry only the fields the orchestrator
// inspects; the raw provider payloads are wider.

type Compartment struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"lifecycleState"`
}

type Vcn struct {
	ID                    string `json:"id"`
	CIDR                  string `json:"cidrBlock"`
	DefaultRouteTableID   string `json:"defaultRouteTableId"`
	DefaultSecurityListID string `json:"defaultSecurityListId"`
}

type Gateway struct {
	ID      string `json:"id"`
	VcnID   string `json:"vcnId"`
	Enabled bool   `json:"isEnabled"`
}

type RouteRule struct {
	Destination     string `json:"destination"`
	NetworkEntityID string `json:"networkEntityId"`
}

type RouteTable struct {
	ID    string      `json:"id"`
	VcnID string      `json:"vcnId"`
	Rules []RouteRule `json:"routeRules"`
}

type IngressRule struct {
	Protocol string `json:"protocol"`
	Source   string `json:"source"`
	PortMin  int    `json:"portMin"`
	PortMax  int    `json:"portMax"`
}

type Subnet struct {
	ID                 string `json:"id"`
	VcnID              string `json:"vcnId"`
	CIDR               string `json:"cidrBlock"`
	AvailabilityDomain string `json:"availabilityDomain"`
}

type ProviderInstance struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"displayName"`
	Shape       string        `json:"shape"`
	ImageID     string        `json:"imageId"`
	State       InstanceState `json:"lifecycleState"`
	TimeCreated time.Time     `json:"timeCreated"`
}

type Image struct {
	ID          string `json:"id"`
	OS          string `json:"operatingSystem"`
	OSVersion   string `json:"operatingSystemVersion"`
	DisplayName string `json:"displayName"`
}

// InstanceCredentials is the post-boot administrator login the provider
// generates for the one OS family that cannot return it at launch time.
type InstanceCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LaunchRequest is the provider launch call payload.
type LaunchRequest struct {
	CompartmentID      string
	SubnetID           string
	AvailabilityDomain string
	DisplayName        string
	Shape              string
	ImageID            string
	OCPUs              int
	MemoryGB           int
	BootVolumeGB       int
	SSHAuthorizedKeys  []string
}

// TeardownSummary reports what a completed teardown removed.
type TeardownSummary struct {
	BoundaryName        string `json:"boundary_name"`
	InstancesTerminated int    `json:"instances_terminated"`
	NetworksDeleted     int    `json:"networks_deleted"`
}

// ProviderAction is the provider's action verb vocabulary.
type ProviderAction string

const (
	ProviderActionStart     ProviderAction = "START"
	ProviderActionStop      ProviderAction = "STOP"
	ProviderActionSoftReset ProviderAction = "SOFTRESET"
)
