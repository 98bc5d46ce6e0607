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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/example/issue-tracker/internal/auth"
	"github.com/example/issue-tracker/internal/broker"
	"github.com/example/issue-tracker/internal/config"
	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/integration"
	"github.com/example/issue-tracker/internal/kafka/producer"
	"github.com/example/issue-tracker/internal/logger"
	"github.com/example/issue-tracker/internal/metrics"
	"github.com/example/issue-tracker/internal/service"
	"github.com/example/issue-tracker/internal/storage/memory"
	"github.com/example/issue-tracker/internal/upstream"
	"github.com/example/issue-tracker/internal/validate"
)

// services bundles the write use-cases handed to the inbound transport,
// which lives outside this core.
type services struct {
	Users    *service.UserService
	Projects *service.ProjectService
	Issues   *service.IssueService
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel, "tracker-orchestrator")
	if err != nil {
		fail("logger init", err)
	}
	log := *baseLogger

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	brokerOpts := []broker.Option{broker.WithMetrics(m)}
	if cfg.Broker.Capacity > 0 {
		brokerOpts = append(brokerOpts, broker.WithCapacity(cfg.Broker.Capacity))
	}
	events := broker.New(log.With().Str("component", "broker").Logger(), brokerOpts...)

	prod, err := producer.New(cfg.Kafka.Brokers, log.With().Str("component", "kafka").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	publisher, err := integration.New(integration.Config{
		Topic:       cfg.Kafka.EventsTopic,
		MaxAttempts: cfg.Publisher.MaxAttempts,
		BaseBackoff: cfg.Publisher.BaseBackoff,
		MaxBackoff:  cfg.Publisher.MaxBackoff,
	}, integration.Dependencies{
		Broker:   events,
		Producer: prod,
		Metrics:  m,
		Logger:   log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise integration publisher")
	}

	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("integration publisher stopped")
		}
	}()

	svcs, err := buildServices(cfg, log, events)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire services")
	}
	log.Info().
		Bool("users", svcs.Users != nil).
		Bool("projects", svcs.Projects != nil).
		Bool("issues", svcs.Issues != nil).
		Msg("write services wired")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !prod.IsReady() {
			http.Error(w, "kafka producer not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("observability server stopped")
		}
	}()

	log.Info().Str("topic", cfg.Kafka.EventsTopic).Msg("orchestrator started")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("observability server shutdown failed")
	}

	events.Close()
	<-publisherDone
}

func buildServices(cfg *config.Config, log zerolog.Logger, events *broker.Broker) (*services, error) {
	verifier, err := auth.NewStaticVerifier(cfg.Auth.Tokens)
	if err != nil {
		return nil, err
	}

	userClient, err := upstream.NewUserClient(cfg.Upstreams.User, log)
	if err != nil {
		return nil, err
	}
	projectClient, err := upstream.NewProjectClient(cfg.Upstreams.Project, log)
	if err != nil {
		return nil, err
	}

	pipeline := validate.New(log)

	deps := service.Dependencies{
		Pipeline:         pipeline,
		Verifier:         verifier,
		Events:           events,
		WriteConcurrency: cfg.Service.WriteConcurrency,
		Logger:           log,
	}

	userRepo, err := memory.New(
		func(u domain.User) string { return u.ID },
		memory.WithUniqueKey(func(u domain.User) string { return u.Email }),
	)
	if err != nil {
		return nil, err
	}
	projectRepo, err := memory.New(func(p domain.Project) string { return p.ID })
	if err != nil {
		return nil, err
	}
	issueRepo, err := memory.New(func(i domain.Issue) string { return i.ID })
	if err != nil {
		return nil, err
	}

	users, err := service.NewUserService(userRepo, deps)
	if err != nil {
		return nil, err
	}
	projects, err := service.NewProjectService(projectRepo, userClient, deps)
	if err != nil {
		return nil, err
	}
	issues, err := service.NewIssueService(issueRepo, userClient, projectClient, deps)
	if err != nil {
		return nil, err
	}

	return &services{Users: users, Projects: projects, Issues: issues}, nil
}

func fail(stage string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", stage, err)
	os.Exit(1)
}
