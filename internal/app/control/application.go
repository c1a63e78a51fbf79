package controlapp

import (
	"context"
	"log/slog"

	"github.com/qudata/control/internal/adapter/httpserver"
	appversion "github.com/qudata/control/internal/app/version"
	"github.com/qudata/control/internal/config"
	"github.com/qudata/control/internal/infra/crypto"
	"github.com/qudata/control/internal/infra/notify"
	"github.com/qudata/control/internal/infra/oci"
	"github.com/qudata/control/internal/infra/storage"
	"github.com/qudata/control/internal/usecase/action"
	"github.com/qudata/control/internal/usecase/compartment"
	"github.com/qudata/control/internal/usecase/launch"
	"github.com/qudata/control/internal/usecase/network"
	"github.com/qudata/control/internal/usecase/provision"
	"github.com/qudata/control/internal/usecase/reconcile"
	"github.com/qudata/control/internal/usecase/teardown"
)

type Application struct {
	cfg          *config.Config
	logger       *slog.Logger
	ledger       *storage.BadgerLedger
	notifier     *notify.NATSNotifier
	reconciler   *reconcile.Worker
	orchestrator *provision.Service
}

func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	ledger, err := storage.NewBadgerLedger(cfg.LedgerDir)
	if err != nil {
		return nil, err
	}

	sealer, err := crypto.NewSealer(cfg.SealingKey)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	notifier, err := notify.NewNATSNotifier(cfg.NATSURL)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	provider := oci.NewClient(oci.Config{
		Endpoint:  cfg.ProviderEndpoint,
		APIKey:    cfg.ProviderAPIKey,
		TenancyID: cfg.TenancyID,
		Region:    cfg.Region,
	})

	boundaries := compartment.NewService(provider, ledger, cfg.Region, logger)
	networks := network.NewService(provider, ledger, logger)
	launcher := launch.NewService(provider, ledger, sealer, cfg.FallbackShapes, logger)
	reconciler := reconcile.NewWorker(provider, ledger, sealer, notifier, logger)
	actions := action.NewService(provider, ledger, logger)
	teardowns := teardown.NewService(provider, ledger, logger)

	orchestrator := provision.NewService(
		boundaries, networks, launcher, reconciler, actions, teardowns,
		provider, ledger, logger,
	)

	return &Application{
		cfg:          cfg,
		logger:       logger,
		ledger:       ledger,
		notifier:     notifier,
		reconciler:   reconciler,
		orchestrator: orchestrator,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	api := httpserver.NewAPI(a.orchestrator, a.logger)
	server := httpserver.NewServer(a.cfg.Port, api, a.cfg.ServiceSecret, a.logger)
	a.logger.Info("control plane starting",
		"version", appversion.ControlVersion,
		"port", a.cfg.Port,
		"region", a.cfg.Region,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case err := <-errCh:
		a.shutdown()
		return err
	case <-ctx.Done():
		a.shutdown()
		return nil
	}
}

func (a *Application) shutdown() {
	a.logger.Info("waiting for background reconcile workflows")
	a.reconciler.Wait()
	a.notifier.Close()
	if err := a.ledger.Close(); err != nil {
		a.logger.Error("ledger close failed", "err", err)
	}
}
