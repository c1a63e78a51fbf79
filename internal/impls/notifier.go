package impls

import "context"

// CredentialsReadyEvent is published once per instance when the initial
// administrator login becomes available. The platform mailer consumes it
// and sends the connection instructions to the subscription owner.
type CredentialsReadyEvent struct {
	SubscriptionID string `json:"subscription_id"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	PublicIP       string `json:"public_ip"`
	OSLabel        string `json:"os_label"`
	Username       string `json:"username"`
	Password       string `json:"password"`
}

type Notifier interface {
	CredentialsReady(ctx context.Context, ev CredentialsReadyEvent) error
}
