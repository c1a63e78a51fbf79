package domain

import "time"

type NetworkState string

const (
	NetworkAvailable NetworkState = "AVAILABLE"
	NetworkDeleted   NetworkState = "DELETED"
)

// NetworkResource bundles the VCN with its subnet, gateway, routing and
// firewall objects. One per user, shared by all of that user's instances.
type NetworkResource struct {
	UserID         string       `json:"user_id"`
	BoundaryID     string       `json:"boundary_id"`
	VcnID          string       `json:"vcn_id"`
	SubnetID       string       `json:"subnet_id"`
	GatewayID      string       `json:"gateway_id"`
	RouteTableID   string       `json:"route_table_id"`
	SecurityListID string       `json:"security_list_id"`
	CIDR           string       `json:"cidr"`
	SubnetCIDR     string       `json:"subnet_cidr"`
	State          NetworkState `json:"state"`
	CreatedAt      time.Time    `json:"created_at"`
}
