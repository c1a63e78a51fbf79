package oci

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(Config{
		Endpoint:  srv.URL,
		APIKey:    "test-key",
		TenancyID: "ocid1.tenancy.test",
		Region:    "us-test-1",
	})
	return c, srv
}

func TestClientSendsAuthHeaders(t *testing.T) {
	var gotKey, gotTenancy string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotTenancy = r.Header.Get("X-Tenancy-Id")
		json.NewEncoder(w).Encode(domain.Compartment{ID: "comp-1", State: "ACTIVE"})
	}))
	defer srv.Close()

	if _, err := c.GetCompartment(context.Background(), "comp-1"); err != nil {
		t.Fatalf("GetCompartment: %v", err)
	}
	if gotKey != "test-key" || gotTenancy != "ocid1.tenancy.test" {
		t.Fatalf("headers = %q / %q", gotKey, gotTenancy)
	}
}

func TestClientClassifiesNotFound(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(APIError{Code: "InstanceNotFound", Message: "no such instance"})
	}))
	defer srv.Close()

	_, err := c.GetInstance(context.Background(), "inst-1")
	if !domainerrors.IsProviderNotFound(err) {
		t.Fatalf("err = %v, want provider not-found", err)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(APIError{Code: "InvalidParameter", Message: "shape is invalid"})
	}))
	defer srv.Close()

	_, err := c.LaunchInstance(context.Background(), domain.LaunchRequest{Shape: "bad"})
	if !domainerrors.IsProviderIncompatible(err) {
		t.Fatalf("err = %v, want provider incompatible", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("4xx retried: %d requests", n)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(domain.ProviderInstance{ID: "inst-1", State: domain.StateRunning})
	}))
	defer srv.Close()

	inst, err := c.GetInstance(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if inst.State != domain.StateRunning {
		t.Fatalf("state = %q", inst.State)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("hits = %d, want a single retry", n)
	}
}

func TestClientNonJSONErrorBody(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("plain text not found"))
	}))
	defer srv.Close()

	_, err := c.GetVcn(context.Background(), "vcn-1")
	if !domainerrors.IsProviderNotFound(err) {
		t.Fatalf("err = %v, want provider not-found", err)
	}
}

func TestLaunchInstancePayload(t *testing.T) {
	var body map[string]any
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode launch body: %v", err)
		}
		json.NewEncoder(w).Encode(domain.ProviderInstance{ID: "inst-1", State: domain.StateProvisioning})
	}))
	defer srv.Close()

	_, err := c.LaunchInstance(context.Background(), domain.LaunchRequest{
		CompartmentID:     "comp-1",
		Shape:             "VM.Standard.E4.Flex",
		ImageID:           "img-1",
		SubnetID:          "subnet-1",
		OCPUs:             2,
		MemoryGB:          16,
		BootVolumeGB:      50,
		SSHAuthorizedKeys: []string{"ssh-ed25519 AAA", "ssh-ed25519 BBB"},
	})
	if err != nil {
		t.Fatalf("LaunchInstance: %v", err)
	}
	if body["shape"] != "VM.Standard.E4.Flex" || body["subnetId"] != "subnet-1" {
		t.Fatalf("payload = %+v", body)
	}
	meta, _ := body["metadata"].(map[string]any)
	if meta["ssh_authorized_keys"] != "ssh-ed25519 AAA\nssh-ed25519 BBB" {
		t.Fatalf("metadata = %+v", meta)
	}
}

func TestInstanceActionQuery(t *testing.T) {
	var gotAction string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.URL.Query().Get("action")
		json.NewEncoder(w).Encode(domain.ProviderInstance{ID: "inst-1", State: domain.StateStopping})
	}))
	defer srv.Close()

	if _, err := c.InstanceAction(context.Background(), "inst-1", domain.ProviderActionStop); err != nil {
		t.Fatalf("InstanceAction: %v", err)
	}
	if gotAction != string(domain.ProviderActionStop) {
		t.Fatalf("action query = %q", gotAction)
	}
}
