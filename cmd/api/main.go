package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"addressor_backend/internal/addressor"
	"addressor_backend/internal/events"
	"addressor_backend/internal/geocoding"
	apphttp "addressor_backend/internal/http"
	"addressor_backend/internal/http/router"
	"addressor_backend/internal/maps"
	"addressor_backend/internal/observability"
	"addressor_backend/internal/sessions"
	"addressor_backend/platform/config"
	"addressor_backend/platform/logger"
	"addressor_backend/platform/validator"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "geocoder", cfg.GeocoderProvider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	// Shared validator instance for dependency injection
	val := validator.New()

	resolverOpts, err := addressor.OptionsFromConfig(cfg, val)
	if err != nil {
		return fmt.Errorf("load resolver options: %w", err)
	}

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	setupCtx, cancelSetup := context.WithTimeout(ctx, 5*time.Second)
	stack, err := geocoding.NewFromConfig(setupCtx, cfg, metrics, log)
	cancelSetup()
	if err != nil {
		return fmt.Errorf("build geocoder: %w", err)
	}
	defer func() {
		_ = stack.Close()
	}()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	subscribeAuditLog(eventBus, log)

	// ========================================================================
	// Domain Modules
	// ========================================================================

	sessionsModule := sessions.NewModule(resolverOpts, stack.Geocoder, eventBus, metrics, cfg, val, log)
	mapsModule := maps.NewModule(stack.Searcher, log)

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		EventBus: eventBus,
		Metrics:  metrics.Handler(),
		Modules: []apphttp.Module{
			sessionsModule,
			mapsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sessionsModule.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	eventBus.Wait()
	return err
}

// subscribeAuditLog records every address outcome in the structured log.
func subscribeAuditLog(bus *events.InMemoryBus, log *logger.Logger) {
	bus.Subscribe(events.AddressResolved{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.AddressResolved)
		if !ok {
			return nil
		}
		log.WithSessionID(e.SessionID.String()).Info("address resolved",
			"trigger", e.Trigger, "address", e.FormattedAddress, "lat", e.Lat, "lng", e.Lng)
		return nil
	}))
	bus.Subscribe(events.AddressResolutionFailed{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.AddressResolutionFailed)
		if !ok {
			return nil
		}
		log.WithSessionID(e.SessionID.String()).Info("address resolution failed",
			"trigger", e.Trigger, "lat", e.Lat, "lng", e.Lng, "reason", e.Reason)
		return nil
	}))
	bus.Subscribe(events.AddressFormCleared{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.AddressFormCleared); ok {
			log.WithSessionID(e.SessionID.String()).Debug("address form cleared")
		}
		return nil
	}))
}
