package compartment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastService(provider *testutil.FakeProvider, ledger *testutil.MemoryLedger) *Service {
	return NewService(provider, ledger, "us-test-1", testLogger(),
		WithReadyWait(6, time.Millisecond, 0, testutil.NoSleep))
}

func TestEnsureCreatesOnce(t *testing.T) {
	provider := &testutil.FakeProvider{}
	ledger := testutil.NewMemoryLedger()
	svc := fastService(provider, ledger)

	first, err := svc.Ensure(context.Background(), "alice")
	if err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	if first.State != domain.BoundaryActive {
		t.Fatalf("state = %q, want %q", first.State, domain.BoundaryActive)
	}

	second, err := svc.Ensure(context.Background(), "alice")
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if second.CompartmentID != first.CompartmentID {
		t.Fatalf("second Ensure created a new compartment: %q vs %q",
			second.CompartmentID, first.CompartmentID)
	}
	if n := provider.CallCount("CreateCompartment"); n != 1 {
		t.Fatalf("CreateCompartment called %d times, want 1", n)
	}
}

func TestEnsureHealsDeletedCompartment(t *testing.T) {
	provider := &testutil.FakeProvider{}
	ledger := testutil.NewMemoryLedger()
	svc := fastService(provider, ledger)

	if _, err := svc.Ensure(context.Background(), "bob"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	// Provider lost the compartment: the first verify must fail and force
	// re-creation.
	gone := true
	provider.GetCompartmentFn = func(_ context.Context, id string) (*domain.Compartment, error) {
		if gone {
			gone = false
			return nil, domainerrors.ProviderNotFoundError{Err: errors.New("NotAuthorizedOrNotFound")}
		}
		return &domain.Compartment{ID: id, State: "ACTIVE"}, nil
	}

	b, err := svc.Ensure(context.Background(), "bob")
	if err != nil {
		t.Fatalf("healing Ensure: %v", err)
	}
	if b.State != domain.BoundaryActive {
		t.Fatalf("state = %q, want %q", b.State, domain.BoundaryActive)
	}
	if n := provider.CallCount("CreateCompartment"); n != 2 {
		t.Fatalf("CreateCompartment called %d times, want 2", n)
	}
}

func TestEnsureNotReadyWhenNeverActive(t *testing.T) {
	provider := &testutil.FakeProvider{}
	provider.GetCompartmentFn = func(_ context.Context, id string) (*domain.Compartment, error) {
		return &domain.Compartment{ID: id, State: "CREATING"}, nil
	}
	ledger := testutil.NewMemoryLedger()
	svc := fastService(provider, ledger)

	_, err := svc.Ensure(context.Background(), "carol")
	var notReady domainerrors.NotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("err = %v, want NotReadyError", err)
	}
}

func TestBoundaryName(t *testing.T) {
	a := BoundaryName("alice@example.com")
	b := BoundaryName("alice@example.net")
	if a == b {
		t.Fatalf("distinct users mapped to the same boundary name %q", a)
	}
	if a != BoundaryName("alice@example.com") {
		t.Fatal("boundary name is not deterministic")
	}
	for _, r := range a {
		ok := r == 'q' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !ok {
			t.Fatalf("boundary name %q contains %q", a, r)
		}
	}
}
