package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/config"
	"github.com/drjliddy-max/sales-tax-platform-sub001/endpoints"
	"github.com/drjliddy-max/sales-tax-platform-sub001/integration"
	"github.com/drjliddy-max/sales-tax-platform-sub001/internal/http/chi"
	"github.com/drjliddy-max/sales-tax-platform-sub001/metrics"
	"github.com/drjliddy-max/sales-tax-platform-sub001/resilience"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/memory"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/redis"
	"github.com/go-chi/httplog"
	"github.com/rs/zerolog"
)

const TIMEOUT = 30 * time.Second

/*
 * Imports only flow downwards: the application (api, cli) wires the business
 * packages, which in turn depend on the storage packages
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	logger := httplog.NewLogger("webhook-api", httplog.Options{
		JSON: true,
	})
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	repo, opts, err := newRepository(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer repo.Close(context.Background())

	schedule, err := webhook.ParseSchedule(cfg.WebhookRetrySchedule)
	if err != nil {
		fmt.Println(err)
		return
	}
	manager := webhook.NewManager(repo, webhook.NewHTTPSender(cfg.GetWebhookTimeout()), webhook.Config{
		ProductName:    cfg.ProductName,
		ProductVersion: cfg.ProductVersion,
		DefaultSecret:  cfg.WebhookSecret,
		Policy: webhook.RetryPolicy{
			Schedule:    schedule,
			MaxAttempts: cfg.GetWebhookMaxAttempts(),
		},
		FailureThreshold: cfg.GetEndpointFailureThreshold(),
		ClaimTTL:         cfg.GetWebhookTimeout() + 30*time.Second,
	}, logger, opts...)
	defer manager.Close()

	if cfg.EndpointsFile != "" {
		loader := endpoints.NewLoader()
		if err := loader.Load(cfg.EndpointsFile); err != nil {
			fmt.Println(err)
			return
		}
		added, err := endpoints.Bootstrap(ctx, loader, manager)
		if err != nil {
			fmt.Println(err)
			return
		}
		logger.Info().Int("added", added).Str("file", cfg.EndpointsFile).Msg("endpoints bootstrapped")
	}

	sweeper := webhook.NewSweeper(repo, manager, webhook.SweeperConfig{
		Interval: cfg.GetSweepInterval(),
		Rate:     cfg.GetSweepRate(),
	}, logger)
	go sweeper.Run(ctx)

	settings := integration.DefaultSettings()
	settings.Breaker = resilience.BreakerConfig{
		FailureThreshold: cfg.GetBreakerFailureThreshold(),
		RecoveryTimeout:  cfg.GetBreakerRecovery(),
	}
	settings.Timeout = cfg.GetOperationTimeout()
	settings.CacheSize = cfg.GetCacheSize()
	integrations := integration.NewRegistry(settings, logger)

	exporter, err := metrics.NewOTelExporter(
		metrics.NewStoreCollector(repo),
		metrics.WithIntegrations(metrics.IntegrationSourceFunc(func() []metrics.IntegrationStatus {
			statuses := integrations.Statuses()
			out := make([]metrics.IntegrationStatus, 0, len(statuses))
			for _, s := range statuses {
				out = append(out, metrics.IntegrationStatus{
					ID:           s.ID,
					HealthScore:  s.HealthScore,
					BreakerState: string(s.BreakerState),
				})
			}
			return out
		})),
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer exporter.Shutdown(context.Background())

	r := chi.Handlers(ctx, manager, integrations, exporter.ServeHTTP(), logger)
	http.Handle("/", r)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      http.DefaultServeMux,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

// newRepository picks the delivery store. With Redis the endpoint rate
// budgets are shared by every instance.
func newRepository(cfg *config.Config) (webhook.Repository, []webhook.Option, error) {
	if !cfg.UsesRedis() {
		return memory.NewRepository(
			memory.WithDeliveredTTL(cfg.GetDeliveredTTL()),
			memory.WithFailedTTL(cfg.GetFailedTTL()),
		), nil, nil
	}
	repo, err := redis.NewRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		redis.WithDeliveredTTL(cfg.GetDeliveredTTL()),
		redis.WithFailedTTL(cfg.GetFailedTTL()),
	)
	if err != nil {
		return nil, nil, err
	}
	return repo, []webhook.Option{webhook.WithSharedLimits(repo.SharedLimiter)}, nil
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}
