package domain

import "time"

// InstanceState mirrors the provider's lifecycle vocabulary. It must only
// be trusted after a reconciliation read, except immediately after a
// local mutation.
type InstanceState string

const (
	StateProvisioning InstanceState = "PROVISIONING"
	StateRunning      InstanceState = "RUNNING"
	StateStopped      InstanceState = "STOPPED"
	StateStarting     InstanceState = "STARTING"
	StateStopping     InstanceState = "STOPPING"
	StateTerminating  InstanceState = "TERMINATING"
	StateTerminated   InstanceState = "TERMINATED"
)

// PendingInstanceID is the sentinel provider id a placeholder row carries
// before the launch call succeeds.
const PendingInstanceID = "PENDING"

func (s InstanceState) Terminal() bool {
	return s == StateTerminated || s == StateTerminating
}

type InstanceAction string

const (
	ActionStart     InstanceAction = "START"
	ActionStop      InstanceAction = "STOP"
	ActionRestart   InstanceAction = "RESTART"
	ActionTerminate InstanceAction = "TERMINATE"
)

// Instance is the ledger record for one provisioned VM.
type Instance struct {
	LocalID        string        `json:"local_id"`
	UserID         string        `json:"user_id"`
	SubscriptionID string        `json:"subscription_id"`
	BoundaryID     string        `json:"boundary_id"`
	NetworkID      string        `json:"network_id"`
	InstanceID     string        `json:"instance_id"`
	DisplayName    string        `json:"display_name"`
	Shape          string        `json:"shape"`
	ImageID        string        `json:"image_id"`
	OSLabel        string        `json:"os_label"`
	State          InstanceState `json:"state"`
	PublicIP       string        `json:"public_ip"`
	PrivateIP      string        `json:"private_ip"`

	// Sealed credential material, see infra/crypto. Never stored plaintext.
	SealedSSHKey        []byte `json:"sealed_ssh_key,omitempty"`
	SealedAdminPassword []byte `json:"sealed_admin_password,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LaunchSpec carries the user's provisioning request.
type LaunchSpec struct {
	SubscriptionID    string
	Shape             string
	ImageID           string
	OCPUs             int
	MemoryGB          int
	BootVolumeGB      int
	SSHAuthorizedKeys []string

	// Optional owner-supplied private key, sealed before it touches the
	// ledger.
	SSHPrivateKey string
}
