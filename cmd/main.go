package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/imagesof/relay/internal/audit"
	"github.com/imagesof/relay/internal/blacklist"
	"github.com/imagesof/relay/internal/config"
	"github.com/imagesof/relay/internal/destination"
	"github.com/imagesof/relay/internal/dispatcher"
	"github.com/imagesof/relay/internal/docstore"
	"github.com/imagesof/relay/internal/domain"
	"github.com/imagesof/relay/internal/filter"
	"github.com/imagesof/relay/internal/healthz"
	"github.com/imagesof/relay/internal/metrics"
	"github.com/imagesof/relay/internal/platform"
	"github.com/imagesof/relay/internal/recency"
	"github.com/imagesof/relay/internal/reddit"
	"github.com/imagesof/relay/internal/rules"
	"github.com/imagesof/relay/internal/telemetry"
)

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func validateRecencyForProduction(deploymentMode, storeType string) error {
	if deploymentMode == "production" && storeType == "noop" {
		return fmt.Errorf(
			"recency store %q is unsafe for DEPLOYMENT_MODE=production; "+
				"duplicate suppression is completely inactive; use memory or redis",
			storeType,
		)
	}
	return nil
}

func validateDocStoreForProduction(deploymentMode, storeType string) error {
	if deploymentMode == "production" && storeType == "memory" {
		return fmt.Errorf(
			"docstore %q is unsafe for DEPLOYMENT_MODE=production; "+
				"every blacklist would load empty; use wiki or s3",
			storeType,
		)
	}
	return nil
}

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(envOrDefault("LOG_LEVEL", "info")); err == nil {
		log = log.Level(lvl)
	}

	configPath := envOrDefault("CONFIG_PATH", "relay.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Configuration error")
	}
	if token := os.Getenv("REDDIT_TOKEN"); token != "" {
		cfg.Token = token
	}

	deploymentMode := os.Getenv("DEPLOYMENT_MODE")
	if err := validateRecencyForProduction(deploymentMode, cfg.Recency.Store); err != nil {
		log.Fatal().Err(err).Msg("Production safety check failed")
	}
	if err := validateDocStoreForProduction(deploymentMode, cfg.DocStore.Type); err != nil {
		log.Fatal().Err(err).Msg("Production safety check failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tp, err := telemetry.Init()
		if err != nil {
			log.Fatal().Err(err).Msg("Telemetry init failed")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	m := metrics.New()

	client, err := reddit.NewClient(reddit.Config{
		UserAgent:    cfg.UserAgent,
		Token:        cfg.Token,
		Listing:      cfg.Listing,
		PollInterval: cfg.PollInterval.Std(),
	}, log.With().Str("component", "reddit").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("Platform client init failed")
	}

	store, err := docstore.FromConfig(cfg.DocStore.Type, cfg.DocStore.Bucket, cfg.DocStore.Region, reddit.NewWiki(client))
	if err != nil {
		log.Fatal().Err(err).Msg("Document store init failed")
	}

	log.Info().Str("page", cfg.UserBlacklistPage).Msg("Loading global user blacklist")
	users, err := blacklist.Load(ctx, store, cfg.MasterSubreddit, cfg.UserBlacklistPage)
	if err != nil {
		log.Fatal().Err(err).Msg("Global user blacklist unavailable")
	}
	log.Info().Str("page", cfg.SubBlacklistPage).Msg("Loading global subreddit blacklist")
	subs, err := blacklist.Load(ctx, store, cfg.MasterSubreddit, cfg.SubBlacklistPage)
	if err != nil {
		log.Fatal().Err(err).Msg("Global subreddit blacklist unavailable")
	}

	matcher, err := rules.NewMatcher(cfg.Domains, cfg.Extensions)
	if err != nil {
		log.Fatal().Err(err).Msg("Rule compilation failed")
	}
	global := filter.NewGlobal(cfg.NSFWOK, users, subs, matcher)

	registry, err := destination.NewRegistry(ctx, cfg.Destinations, store,
		log.With().Str("component", "registry").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("Destination registry init failed")
	}

	recent, err := recency.NewStore(cfg.Recency.Store, cfg.Recency.RedisURL,
		cfg.Recency.Capacity, cfg.Recency.TTL.Std())
	if err != nil {
		log.Fatal().Err(err).Msg("Recency store init failed")
	}

	var source platform.StreamSource = client
	if cfg.Stream.Backend == "kafka" {
		source = NewKafkaStreamSource(cfg.Stream.Brokers, cfg.Stream.Topic, cfg.Stream.Group,
			log.With().Str("component", "kafka").Logger())
	}

	auditCh := make(chan domain.ForwardFailure, cfg.Audit.Buffer)
	var sink audit.Sink
	if cfg.Audit.Path != "" {
		fileSink, err := audit.NewFileSink(cfg.Audit.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("Audit file sink init failed")
		}
		sink = fileSink
		log.Info().Str("path", cfg.Audit.Path).Msg("Audit sink: file")
	} else {
		sink = &audit.LogSink{Log: log.With().Str("component", "audit").Logger()}
	}
	auditHandler := audit.NewHandler(auditCh, sink,
		log.With().Str("component", "audit").Logger(), audit.WithObserver(m))

	disp := dispatcher.New(
		dispatcher.Config{Backoff: cfg.Backoff.Std(), DryRun: cfg.DryRun},
		source, client, global, registry, recent,
		log.With().Str("component", "dispatcher").Logger(),
		dispatcher.WithObserver(m),
		dispatcher.WithAuditChannel(auditCh),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", healthz.NewChecker(disp, healthz.WithThreshold(cfg.Backoff.Std()+2*time.Minute)))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	log.Info().
		Str("backend", cfg.Stream.Backend).
		Int("destinations", registry.Len()).
		Bool("dry_run", cfg.DryRun).
		Msg("Relay starting")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		auditHandler.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := disp.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Dispatcher stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	cancel()
	_ = metricsSrv.Close()
	wg.Wait()
	log.Info().Msg("Shutdown complete")
}
