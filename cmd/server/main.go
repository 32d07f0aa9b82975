package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/cartcore/internal"
	"github.com/dukerupert/cartcore/internal/address"
	"github.com/dukerupert/cartcore/internal/auth"
	"github.com/dukerupert/cartcore/internal/billing"
	"github.com/dukerupert/cartcore/internal/cartsync"
	"github.com/dukerupert/cartcore/internal/checkout"
	"github.com/dukerupert/cartcore/internal/events"
	"github.com/dukerupert/cartcore/internal/handler/api"
	"github.com/dukerupert/cartcore/internal/localcart"
	"github.com/dukerupert/cartcore/internal/middleware"
	"github.com/dukerupert/cartcore/internal/pricing"
	"github.com/dukerupert/cartcore/internal/remote"
	"github.com/dukerupert/cartcore/internal/router"
	"github.com/dukerupert/cartcore/internal/shipping"
	"github.com/dukerupert/cartcore/internal/tax"
	"github.com/dukerupert/cartcore/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Error tracking and metrics
	reporter, flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Enabled:     cfg.Sentry.Enabled,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
		Debug:       cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return err
	}
	defer flushSentry()

	metrics := telemetry.NewMetrics(cfg.MetricsNamespace)
	httpMetrics := middleware.NewMetrics(cfg.MetricsNamespace, metrics.Registry())

	// Pricing
	taxPolicy, err := tax.NewPercentage(cfg.Pricing.TaxRate)
	if err != nil {
		return fmt.Errorf("failed to initialize tax policy: %w", err)
	}
	shippingPolicy, err := shipping.NewFlatRate(cfg.Pricing.FlatShippingFee, cfg.Pricing.FreeShippingThreshold)
	if err != nil {
		return fmt.Errorf("failed to initialize shipping policy: %w", err)
	}
	engine := pricing.NewEngine(taxPolicy, shippingPolicy,
		pricing.WithLogger(logger),
		pricing.WithReporter(reporter),
	)

	// Local cart
	backend, closeBackend, err := newLocalBackend(cfg.LocalCart)
	if err != nil {
		return err
	}
	defer closeBackend()
	local := localcart.New(backend, localcart.WithLogger(logger))
	logger.Info("Local cart store initialized", "backend", cfg.LocalCart.Backend)

	// Session and commerce backend
	session := auth.NewSession()

	clientOpts := []remote.ClientOption{remote.WithLogger(logger)}
	if cfg.API.BreakerEnabled {
		clientOpts = append(clientOpts, remote.WithBreaker(remote.DefaultBreakerSettings("commerce", 30*time.Second, logger)))
	}
	apiClient, err := remote.NewClient("commerce", cfg.API.BaseURL, &http.Client{Timeout: cfg.API.Timeout}, session, clientOpts...)
	if err != nil {
		return err
	}
	cartClient := remote.NewCartClient(apiClient, cfg.API.CartPath)
	orderClient := remote.NewOrderClient(apiClient, cfg.API.OrdersPath)

	// Cart synchronizer
	synchronizer := cartsync.New(local, cartClient, engine, cfg.StoreID,
		cartsync.WithLogger(logger),
		cartsync.WithRecorder(metrics),
		cartsync.WithReporter(reporter),
		cartsync.WithSessionExpired(session.SignOut),
	)

	// Payment sheet
	wallet := billing.NewPendingWallet()
	var sheet checkout.PaymentSheet
	if cfg.Stripe.SecretKey != "" {
		stripeConfig := billing.StripeConfig{
			APIKey:         cfg.Stripe.SecretKey,
			APIURL:         cfg.Stripe.APIURL,
			Currency:       cfg.Currency,
			TimeoutSeconds: 30,
		}
		stripeSheet, err := billing.NewStripeSheet(stripeConfig, wallet, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Stripe sheet: %w", err)
		}
		sheet = stripeSheet
		logger.Info("Stripe payment sheet initialized", "test_mode", stripeConfig.IsTestMode())
	} else {
		sheet = billing.NewMockSheet()
		logger.Warn("STRIPE_SECRET_KEY not set, using mock payment sheet")
	}

	// Checkout
	orchestrator := checkout.New(synchronizer, engine, orderClient, sheet, address.NewBasicValidator(),
		checkout.WithLogger(logger),
		checkout.WithRecorder(metrics),
		checkout.WithCurrency(cfg.Currency),
	)

	// HTTP bridge
	r := router.New(
		router.Recovery(logger),
		reporter.Middleware,
		middleware.RequestID,
		httpMetrics.Middleware,
		middleware.MaxBodySize(),
		middleware.WithRequestLogger(logger),
	)
	r.Handle(http.MethodGet, "/metrics", metrics.Handler())
	api.NewHandler(synchronizer, engine, session, orchestrator, wallet, logger).Register(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.CORS(cfg.CORSOrigins)(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Subscribe before the loops start so no event is missed.
	authSignal := session.Subscribe()
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()

		publisher := events.NewPublisher(nc, cfg.NATS.SubjectPrefix, logger)
		cartEvents := synchronizer.Subscribe()
		checkoutEvents := orchestrator.Subscribe()
		g.Go(func() error {
			publisher.Forward(ctx, cartEvents, checkoutEvents)
			return nil
		})
		logger.Info("Forwarding events to NATS", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	g.Go(func() error {
		err := synchronizer.Run(middleware.WithRequestID(ctx, "auth-loop"), authSignal)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info("Starting bridge server", "address", srv.Addr, "store_id", cfg.StoreID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down bridge server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newLocalBackend opens the configured local cart backend. The returned
// func releases it.
func newLocalBackend(cfg internal.LocalCartConfig) (localcart.Backend, func(), error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return localcart.NewRedisBackend(client, cfg.DeviceID), func() { _ = client.Close() }, nil
	case "memory":
		return localcart.NewMemoryBackend(), func() {}, nil
	case "file":
		return localcart.NewFileBackend(cfg.Path), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown local cart backend %q", cfg.Backend)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
