package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/testutil"
	"github.com/qudata/control/internal/usecase/action"
	"github.com/qudata/control/internal/usecase/compartment"
	"github.com/qudata/control/internal/usecase/launch"
	"github.com/qudata/control/internal/usecase/network"
	"github.com/qudata/control/internal/usecase/provision"
	"github.com/qudata/control/internal/usecase/reconcile"
	"github.com/qudata/control/internal/usecase/teardown"
)

type fixture struct {
	router   *gin.Engine
	provider *testutil.FakeProvider
	ledger   *testutil.MemoryLedger
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := &testutil.FakeProvider{}
	ledger := testutil.NewMemoryLedger()
	sealer := testutil.FakeSealer{}

	boundaries := compartment.NewService(provider, ledger, "us-test-1", logger,
		compartment.WithReadyWait(3, time.Millisecond, 0, testutil.NoSleep))
	networks := network.NewService(provider, ledger, logger)
	launcher := launch.NewService(provider, ledger, sealer, nil, logger)
	reconciler := reconcile.NewWorker(provider, ledger, sealer, &testutil.FakeNotifier{}, logger,
		reconcile.WithTiming(time.Millisecond, 5*time.Millisecond, time.Millisecond, 0, testutil.NoSleep))
	actions := action.NewService(provider, ledger, logger)
	teardowns := teardown.NewService(provider, ledger, logger,
		teardown.WithTiming(3, time.Millisecond, 0, testutil.NoSleep))
	orchestrator := provision.NewService(boundaries, networks, launcher, reconciler,
		actions, teardowns, provider, ledger, logger)

	router := gin.New()
	router.Use(authMiddleware(secret))
	NewAPI(orchestrator, logger).RegisterRoutes(router)
	t.Cleanup(reconciler.Wait)
	return &fixture{router: router, provider: provider, ledger: ledger}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func asUser(user string) map[string]string {
	return map[string]string{"X-User-Id": user, "Content-Type": "application/json"}
}

func TestPing(t *testing.T) {
	f := newFixture(t, "")
	rec, resp := f.do(t, http.MethodGet, "/ping", "", nil)
	if rec.Code != http.StatusOK || !resp.Ok {
		t.Fatalf("ping: %d %+v", rec.Code, resp)
	}
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t, "hunter2")

	rec, _ := f.do(t, http.MethodGet, "/ping", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: %d, want 401", rec.Code)
	}
	rec, _ = f.do(t, http.MethodGet, "/ping", "", map[string]string{"X-Service-Secret": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: %d, want 401", rec.Code)
	}
	rec, _ = f.do(t, http.MethodGet, "/ping", "", map[string]string{"X-Service-Secret": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("correct secret: %d, want 200", rec.Code)
	}
}

func TestProvisionValidation(t *testing.T) {
	f := newFixture(t, "")

	rec, _ := f.do(t, http.MethodPost, "/instances", `{"shape":"A","image_id":"img"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no user id: %d, want 400", rec.Code)
	}

	rec, _ = f.do(t, http.MethodPost, "/instances", `{"image_id":"img"}`, asUser("alice"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing shape: %d, want 400", rec.Code)
	}
}

func TestProvisionHappyPath(t *testing.T) {
	f := newFixture(t, "")
	rec, resp := f.do(t, http.MethodPost, "/instances",
		`{"shape":"VM.Standard.E4.Flex","image_id":"img-ubuntu"}`, asUser("alice"))
	if rec.Code != http.StatusOK || !resp.Ok {
		t.Fatalf("provision: %d %+v", rec.Code, resp)
	}

	rec, resp = f.do(t, http.MethodGet, "/instances", "", asUser("alice"))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	rows, ok := resp.Data.([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("list data = %+v", resp.Data)
	}
}

func TestProvisionCapacityMapsToConflict(t *testing.T) {
	f := newFixture(t, "")
	f.provider.LaunchInstanceFn = func(_ context.Context, _ domain.LaunchRequest) (*domain.ProviderInstance, error) {
		return nil, domainerrors.ProviderCapacityError{Err: errors.New("OutOfHostCapacity")}
	}

	rec, _ := f.do(t, http.MethodPost, "/instances",
		`{"shape":"VM.Standard.E4.Flex","image_id":"img-ubuntu"}`, asUser("alice"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("capacity exhaustion: %d, want 409", rec.Code)
	}
}

func TestProvisionIncompatibleShapeMapsToBadRequest(t *testing.T) {
	f := newFixture(t, "")
	f.provider.LaunchInstanceFn = func(_ context.Context, _ domain.LaunchRequest) (*domain.ProviderInstance, error) {
		return nil, domainerrors.ProviderIncompatibleError{Err: errors.New("not valid for the image")}
	}

	rec, _ := f.do(t, http.MethodPost, "/instances",
		`{"shape":"VM.Standard.E4.Flex","image_id":"img-arm"}`, asUser("alice"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incompatible shape: %d, want 400", rec.Code)
	}
}

func TestActionOnPendingInstanceMapsToUnavailable(t *testing.T) {
	f := newFixture(t, "")
	if err := f.ledger.PutInstance(context.Background(), &domain.Instance{
		LocalID: "local-1", UserID: "alice",
		InstanceID: domain.PendingInstanceID, State: domain.StateProvisioning,
	}); err != nil {
		t.Fatal(err)
	}

	rec, _ := f.do(t, http.MethodPost, "/instances/local-1/actions",
		`{"action":"START"}`, asUser("alice"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("pending action: %d, want 503", rec.Code)
	}
}

func TestActionOnVanishedInstanceMapsToGone(t *testing.T) {
	f := newFixture(t, "")
	if err := f.ledger.PutInstance(context.Background(), &domain.Instance{
		LocalID: "local-1", UserID: "alice", InstanceID: "inst-1", State: domain.StateRunning,
	}); err != nil {
		t.Fatal(err)
	}
	f.provider.GetInstanceFn = func(_ context.Context, _ string) (*domain.ProviderInstance, error) {
		return nil, domainerrors.ProviderNotFoundError{Err: errors.New("404")}
	}

	rec, _ := f.do(t, http.MethodPost, "/instances/local-1/actions",
		`{"action":"STOP"}`, asUser("alice"))
	if rec.Code != http.StatusGone {
		t.Fatalf("drift: %d, want 410", rec.Code)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	f := newFixture(t, "")
	rec, _ := f.do(t, http.MethodPost, "/instances/local-1/actions",
		`{"action":"EXPLODE"}`, asUser("alice"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: %d, want 400", rec.Code)
	}
}

func TestUnknownInstanceRejected(t *testing.T) {
	f := newFixture(t, "")
	rec, _ := f.do(t, http.MethodGet, "/instances/nope", "", asUser("alice"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown instance: %d, want 400", rec.Code)
	}
}

func TestTeardownUnknownBoundary(t *testing.T) {
	f := newFixture(t, "")
	rec, _ := f.do(t, http.MethodDelete, "/boundaries/qc-nobody-000", "", asUser("alice"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown boundary: %d, want 400", rec.Code)
	}
}
