package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vibestream/fanventures/internal/app/alert"
	"github.com/vibestream/fanventures/internal/app/services/catalog"
	"github.com/vibestream/fanventures/internal/app/services/funding"
	"github.com/vibestream/fanventures/internal/app/services/ledger"
	"github.com/vibestream/fanventures/internal/app/services/paymentbridge"
	"github.com/vibestream/fanventures/internal/app/services/settlement"
	"github.com/vibestream/fanventures/internal/app/storage"
	"github.com/vibestream/fanventures/internal/app/storage/memory"
	"github.com/vibestream/fanventures/internal/app/system"
	"github.com/vibestream/fanventures/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation.
type Stores struct {
	Ventures    storage.VentureStore
	Investments storage.InvestmentStore
}

// Options configures the optional collaborators of the engine.
type Options struct {
	// Gateway submits payment requests. Nil disables dispatching; created
	// investments then stay pending until swept.
	Gateway paymentbridge.Gateway

	// Source delivers payment outcomes. Nil disables settlement.
	Source settlement.OutcomeSource

	// Alerts receives fatal inconsistencies. Nil routes them to the log.
	Alerts alert.Sink

	// SweepSchedule is the cron expression for the pending sweeper.
	SweepSchedule string

	// PendingTimeout is how long an investment may stay pending before the
	// sweeper cancels it.
	PendingTimeout time.Duration

	// Currency for outgoing payment requests. Defaults to USD.
	Currency string
}

// Application ties the engine's services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Catalog  *catalog.Service
	Ledger   *ledger.Service
	Bridge   *paymentbridge.Bridge
	Funding  *funding.Aggregator
	Listener *settlement.Listener
	Sweeper  *settlement.Sweeper
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Ventures == nil {
		stores.Ventures = mem
	}
	if stores.Investments == nil {
		stores.Investments = mem
	}

	alerts := opts.Alerts
	if alerts == nil {
		alerts = alert.NewLogSink(log)
	}

	manager := system.NewManager()

	catalogService := catalog.New(stores.Ventures, log)
	ledgerService := ledger.New(stores.Ventures, stores.Investments, log)
	aggregator := funding.New(stores.Ventures, alerts, log)

	var bridge *paymentbridge.Bridge
	if opts.Gateway != nil {
		bridge = paymentbridge.New(opts.Gateway, stores.Investments, opts.Currency, log)
	} else {
		log.Warn("payment gateway not configured; investment dispatch disabled")
	}

	var listener *settlement.Listener
	if opts.Source != nil {
		listener = settlement.NewListener(stores.Investments, aggregator, opts.Source, alerts, log)
		if err := manager.Register(listener); err != nil {
			return nil, fmt.Errorf("register settlement listener: %w", err)
		}
	} else {
		log.Warn("payment outcome source not configured; settlement disabled")
	}

	sweeper := settlement.NewSweeper(stores.Investments, opts.SweepSchedule, opts.PendingTimeout, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register pending sweeper: %w", err)
	}

	for _, name := range []string{"catalog", "ledger"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Catalog:  catalogService,
		Ledger:   ledgerService,
		Bridge:   bridge,
		Funding:  aggregator,
		Listener: listener,
		Sweeper:  sweeper,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
