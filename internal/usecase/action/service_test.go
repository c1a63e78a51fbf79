package action

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func storedInstance(t *testing.T, ledger *testutil.MemoryLedger, state domain.InstanceState) *domain.Instance {
	t.Helper()
	inst := &domain.Instance{
		LocalID:    "local-1",
		UserID:     "alice",
		InstanceID: "inst-1",
		State:      state,
	}
	if err := ledger.PutInstance(context.Background(), inst); err != nil {
		t.Fatalf("seed instance: %v", err)
	}
	return inst
}

func TestPerformStopPersistsProviderState(t *testing.T) {
	provider := &testutil.FakeProvider{}
	ledger := testutil.NewMemoryLedger()
	inst := storedInstance(t, ledger, domain.StateRunning)
	svc := NewService(provider, ledger, testLogger())

	out, err := svc.Perform(context.Background(), inst, domain.ActionStop)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if out.State != domain.StateStopped {
		t.Fatalf("state = %q, want %q", out.State, domain.StateStopped)
	}
	stored, _ := ledger.Instance(context.Background(), "local-1")
	if stored.State != domain.StateStopped {
		t.Fatalf("ledger state = %q, want %q", stored.State, domain.StateStopped)
	}
	log, _ := ledger.ActionLog(context.Background(), "local-1")
	if len(log) != 1 || log[0].Action != string(domain.ActionStop) {
		t.Fatalf("action log = %+v", log)
	}
}

func TestPerformOnDeletedInstanceMarksDrift(t *testing.T) {
	provider := &testutil.FakeProvider{}
	provider.GetInstanceFn = func(context.Context, string) (*domain.ProviderInstance, error) {
		return nil, domainerrors.ProviderNotFoundError{Err: errors.New("404")}
	}
	ledger := testutil.NewMemoryLedger()
	inst := storedInstance(t, ledger, domain.StateRunning)
	svc := NewService(provider, ledger, testLogger())

	_, err := svc.Perform(context.Background(), inst, domain.ActionTerminate)
	var drift domainerrors.DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("err = %v, want DriftError", err)
	}
	stored, _ := ledger.Instance(context.Background(), "local-1")
	if stored.State != domain.StateTerminated {
		t.Fatalf("ledger state = %q, want %q after drift", stored.State, domain.StateTerminated)
	}
	if n := provider.CallCount("TerminateInstance"); n != 0 {
		t.Fatalf("TerminateInstance was called %d times on a vanished instance", n)
	}
}

func TestPerformDriftRaceDuringMutation(t *testing.T) {
	provider := &testutil.FakeProvider{}
	provider.InstanceActionFn = func(context.Context, string, domain.ProviderAction) (*domain.ProviderInstance, error) {
		return nil, domainerrors.ProviderNotFoundError{Err: errors.New("404")}
	}
	ledger := testutil.NewMemoryLedger()
	inst := storedInstance(t, ledger, domain.StateStopped)
	svc := NewService(provider, ledger, testLogger())

	_, err := svc.Perform(context.Background(), inst, domain.ActionStart)
	var drift domainerrors.DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("err = %v, want DriftError", err)
	}
	stored, _ := ledger.Instance(context.Background(), "local-1")
	if stored.State != domain.StateTerminated {
		t.Fatalf("ledger state = %q, want %q", stored.State, domain.StateTerminated)
	}
}

func TestPerformRejectsTerminalState(t *testing.T) {
	provider := &testutil.FakeProvider{}
	provider.GetInstanceFn = func(_ context.Context, id string) (*domain.ProviderInstance, error) {
		return &domain.ProviderInstance{ID: id, State: domain.StateTerminated}, nil
	}
	ledger := testutil.NewMemoryLedger()
	inst := storedInstance(t, ledger, domain.StateRunning)
	svc := NewService(provider, ledger, testLogger())

	_, err := svc.Perform(context.Background(), inst, domain.ActionStart)
	var client domainerrors.ClientError
	if !errors.As(err, &client) {
		t.Fatalf("err = %v, want ClientError", err)
	}
}

func TestPerformTerminateReturnsTerminating(t *testing.T) {
	provider := &testutil.FakeProvider{}
	ledger := testutil.NewMemoryLedger()
	inst := storedInstance(t, ledger, domain.StateRunning)
	svc := NewService(provider, ledger, testLogger())

	out, err := svc.Perform(context.Background(), inst, domain.ActionTerminate)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if out.State != domain.StateTerminating {
		t.Fatalf("state = %q, want %q", out.State, domain.StateTerminating)
	}
	if n := provider.CallCount("TerminateInstance"); n != 1 {
		t.Fatalf("TerminateInstance called %d times, want 1", n)
	}
}

func TestStartedAtStamping(t *testing.T) {
	provider := &testutil.FakeProvider{}
	ledger := testutil.NewMemoryLedger()
	svc := NewService(provider, ledger, testLogger())

	inst := storedInstance(t, ledger, domain.StateStopped)
	out, err := svc.Perform(context.Background(), inst, domain.ActionStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if out.StartedAt == nil {
		t.Fatal("START into RUNNING did not stamp StartedAt")
	}
	first := *out.StartedAt

	out, err = svc.Perform(context.Background(), out, domain.ActionStart)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !out.StartedAt.Equal(first) {
		t.Fatal("second START moved StartedAt")
	}

	out, err = svc.Perform(context.Background(), out, domain.ActionRestart)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if out.StartedAt.Before(first) {
		t.Fatal("RESTART did not refresh StartedAt")
	}
}
