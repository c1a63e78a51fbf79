// Package notify publishes orchestrator events for the platform mailer.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/qudata/control/internal/impls"
)

const credentialsReadySubject = "qudata.control.credentials.ready"

type NATSNotifier struct {
	nc *nats.Conn
}

func NewNATSNotifier(url string) (*NATSNotifier, error) {
	opts := []nats.Option{
		nats.Name("qudata-control"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats at %s: %w", url, err)
	}
	return &NATSNotifier{nc: nc}, nil
}

func (n *NATSNotifier) CredentialsReady(_ context.Context, ev impls.CredentialsReadyEvent) error {
	if n.nc == nil || n.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.nc.Publish(credentialsReadySubject, payload)
}

func (n *NATSNotifier) Close() {
	if n.nc != nil {
		n.nc.Drain()
		n.nc.Close()
	}
}
