// Package reconcile runs the post-launch workflow: wait for RUNNING,
// resolve the public address, classify the operating system and, for
// Windows instances, retrieve the generated administrator credentials.
// It is detached from the request that triggered the launch; failures
// are terminal for the workflow only and observable through logs, audit
// entries and the instance row.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/impls"
	"github.com/qudata/control/internal/metrics"
	"github.com/qudata/control/internal/retry"
)

// osFragments maps image-identifier fragments to OS labels, in priority
// order, for when the provider's image metadata call fails.
var osFragments = []struct {
	fragment string
	label    string
}{
	{"windows", "Windows"},
	{"ubuntu", "Ubuntu"},
	{"debian", "Debian"},
	{"centos", "CentOS"},
	{"oracle", "Oracle Linux"},
	{"almalinux", "AlmaLinux"},
	{"rocky", "Rocky Linux"},
}

const unknownOSLabel = "Linux"

type Worker struct {
	provider impls.CloudProvider
	ledger   impls.Ledger
	sealer   impls.Sealer
	notifier impls.Notifier
	logger   *slog.Logger

	pollInterval   time.Duration
	pollCeiling    time.Duration
	addressRetries int
	addressDelay   time.Duration
	windowsSettle  time.Duration
	sleep          retry.SleepFunc

	wg sync.WaitGroup
}

type Option func(*Worker)

// WithTiming overrides the workflow delays, used by tests.
func WithTiming(pollInterval, pollCeiling, addressDelay, windowsSettle time.Duration, sleep retry.SleepFunc) Option {
	return func(w *Worker) {
		w.pollInterval = pollInterval
		w.pollCeiling = pollCeiling
		w.addressDelay = addressDelay
		w.windowsSettle = windowsSettle
		w.sleep = sleep
	}
}

func NewWorker(provider impls.CloudProvider, ledger impls.Ledger, sealer impls.Sealer, notifier impls.Notifier, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		provider:       provider,
		ledger:         ledger,
		sealer:         sealer,
		notifier:       notifier,
		logger:         logger,
		pollInterval:   10 * time.Second,
		pollCeiling:    5 * time.Minute,
		addressRetries: 5,
		addressDelay:   6 * time.Second,
		windowsSettle:  2 * time.Minute,
		sleep:          retry.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start spawns the workflow detached from the caller's context; the
// triggering request has already returned by the time it runs. The
// workflow carries its own timeout.
func (w *Worker) Start(localID string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.pollCeiling+w.windowsSettle+2*time.Minute)
		defer cancel()
		if err := w.Run(ctx, localID); err != nil {
			metrics.ReconcileTotal.WithLabelValues("failed").Inc()
			w.logger.Error("reconcile workflow failed", "local_id", localID, "err", err)
			return
		}
		metrics.ReconcileTotal.WithLabelValues("completed").Inc()
	}()
}

// Wait blocks until all spawned workflows finish; used on shutdown.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Run executes the workflow synchronously. Exported for tests and for
// the explicit credential-refresh path.
func (w *Worker) Run(ctx context.Context, localID string) error {
	inst, err := w.ledger.Instance(ctx, localID)
	if err != nil {
		return err
	}

	running, err := w.awaitRunning(ctx, inst)
	if err != nil {
		return err
	}
	if !running {
		// Terminal provider state; nothing more to reconcile.
		return nil
	}

	if err := w.resolveAddresses(ctx, inst); err != nil {
		w.logger.Warn("address resolution incomplete", "local_id", localID, "err", err)
	}

	inst.OSLabel = w.detectOS(ctx, inst.ImageID)
	if err := w.ledger.PutInstance(ctx, inst); err != nil {
		return err
	}

	if strings.Contains(strings.ToLower(inst.OSLabel), "windows") {
		w.retrieveWindowsCredentials(ctx, inst)
	}
	return nil
}

// awaitRunning polls until the instance reaches RUNNING. Returns false
// when the instance hit a terminal state instead.
func (w *Worker) awaitRunning(ctx context.Context, inst *domain.Instance) (bool, error) {
	attempts := int(w.pollCeiling/w.pollInterval) + 1
	terminal := false
	waiter := retry.Waiter{
		MaxAttempts: attempts,
		Delay:       retry.Fixed(w.pollInterval),
		SleepFn:     w.sleep,
	}
	err := waiter.Until(ctx, func(ctx context.Context) (bool, error) {
		got, err := w.provider.GetInstance(ctx, inst.InstanceID)
		if err != nil {
			if domainerrors.IsProviderNotFound(err) {
				terminal = true
				inst.State = domain.StateTerminated
				return true, w.ledger.PutInstance(ctx, inst)
			}
			return false, err
		}
		inst.State = got.State
		if err := w.ledger.PutInstance(ctx, inst); err != nil {
			return false, err
		}
		if got.State.Terminal() {
			terminal = true
			return true, nil
		}
		return got.State == domain.StateRunning, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return false, domainerrors.NotReadyError{Resource: "instance " + inst.InstanceID, State: string(inst.State)}
		}
		return false, err
	}
	return !terminal, nil
}

// resolveAddresses re-fetches the instance addresses; public address
// assignment lags instance readiness, so retry a few times.
func (w *Worker) resolveAddresses(ctx context.Context, inst *domain.Instance) error {
	waiter := retry.Waiter{
		MaxAttempts: w.addressRetries,
		Delay:       retry.Fixed(w.addressDelay),
		SleepFn:     w.sleep,
	}
	err := waiter.Until(ctx, func(ctx context.Context) (bool, error) {
		pub, priv, err := w.provider.GetInstanceAddresses(ctx, inst.BoundaryID, inst.InstanceID)
		if err != nil {
			return false, err
		}
		if pub == "" {
			return false, nil
		}
		inst.PublicIP = pub
		inst.PrivateIP = priv
		return true, w.ledger.PutInstance(ctx, inst)
	})
	if errors.Is(err, retry.ErrExhausted) {
		return domainerrors.NotReadyError{Resource: "public address for " + inst.InstanceID}
	}
	return err
}

// detectOS classifies the instance's OS family from image metadata,
// falling back to pattern-matching the image identifier. The workflow
// never fails on classification: an unknown image is labeled as generic
// Linux.
func (w *Worker) detectOS(ctx context.Context, imageID string) string {
	image, err := w.provider.GetImage(ctx, imageID)
	if err == nil && image.OS != "" {
		label := image.OS
		if image.OSVersion != "" {
			label += " " + image.OSVersion
		}
		return label
	}
	if err != nil {
		w.logger.Warn("image metadata fetch failed, matching image id", "image_id", imageID, "err", err)
	}
	return classifyImageID(imageID)
}

func classifyImageID(imageID string) string {
	lower := strings.ToLower(imageID)
	for _, f := range osFragments {
		if strings.Contains(lower, f.fragment) {
			return f.label
		}
	}
	return unknownOSLabel
}

// retrieveWindowsCredentials waits for the post-boot password generation
// to settle, then tries exactly once. On failure the credential remains
// retrievable later via the explicit synchronous path; the workflow does
// not retry indefinitely.
func (w *Worker) retrieveWindowsCredentials(ctx context.Context, inst *domain.Instance) {
	if err := w.sleep(ctx, w.windowsSettle); err != nil {
		return
	}

	creds, err := w.provider.GetInstanceCredentials(ctx, inst.InstanceID)
	if err != nil {
		w.logger.Warn("initial credentials not retrieved",
			"local_id", inst.LocalID, "instance_id", inst.InstanceID, "err", err)
		return
	}

	sealed, err := w.sealer.Seal(creds.Password)
	if err != nil {
		w.logger.Error("failed to seal admin password", "local_id", inst.LocalID, "err", err)
		return
	}
	inst.SealedAdminPassword = sealed
	if err := w.ledger.PutInstance(ctx, inst); err != nil {
		w.logger.Error("failed to persist admin password", "local_id", inst.LocalID, "err", err)
		return
	}

	_ = w.ledger.AppendActionLog(ctx, &domain.ActionLogEntry{
		LocalID:     inst.LocalID,
		Action:      "CREDENTIALS_READY",
		Description: "initial administrator credentials retrieved",
	})

	ev := impls.CredentialsReadyEvent{
		SubscriptionID: inst.SubscriptionID,
		UserID:         inst.UserID,
		DisplayName:    inst.DisplayName,
		PublicIP:       inst.PublicIP,
		OSLabel:        inst.OSLabel,
		Username:       creds.Username,
		Password:       creds.Password,
	}
	if err := w.notifier.CredentialsReady(ctx, ev); err != nil {
		w.logger.Error("credentials-ready notification failed", "local_id", inst.LocalID, "err", err)
	}
}
