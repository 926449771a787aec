package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/fluxbase-eu/restcore/internal/api"
	"github.com/fluxbase-eu/restcore/internal/cache"
	"github.com/fluxbase-eu/restcore/internal/config"
	"github.com/fluxbase-eu/restcore/internal/database"
	"github.com/fluxbase-eu/restcore/internal/engine"
	"github.com/fluxbase-eu/restcore/internal/example"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/observability"
	"github.com/fluxbase-eu/restcore/internal/repository"
	"github.com/fluxbase-eu/restcore/internal/schema"
	"github.com/fluxbase-eu/restcore/internal/service"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
)

// resources holds everything that must be released on shutdown.
type resources struct {
	db     *database.Connection
	store  cache.Store
	tracer *observability.Tracer
}

// Close releases every resource and reports all failures together.
func (r *resources) Close(ctx context.Context) error {
	var err error
	if r.tracer != nil {
		err = multierr.Append(err, r.tracer.Shutdown(ctx))
	}
	if r.store != nil {
		err = multierr.Append(err, r.store.Close())
	}
	if r.db != nil {
		r.db.Close()
	}
	return err
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("restcore %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Console output in debug, JSON otherwise
	if cfg.Debug {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting restcore")

	ctx := context.Background()
	res := &resources{}

	tracer, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, tracing will be disabled")
	} else {
		res.tracer = tracer
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(nil)
	}

	db, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	res.db = db
	if metrics != nil {
		db.SetMetrics(metrics)
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	store, err := cache.NewStore(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize response cache, caching will be disabled")
	} else {
		res.store = store
	}

	resolver := schema.NewReflectResolver(cfg.Query.PathCacheSize)
	eng := database.NewEngine(db, resolver)
	opts := service.Options{
		Cache:    res.store,
		CacheTTL: cfg.Cache.TTL,
		Metrics:  metrics,
		Limits:   filter.Limits{Default: cfg.Query.DefaultLimit, Max: cfg.Query.MaxLimit},
	}

	server := api.NewServer(cfg, metrics, res.tracer, db)
	if err := mount[example.User](server, "/users", eng, resolver, opts); err != nil {
		log.Fatal().Err(err).Msg("Failed to mount users")
	}
	if err := mount[example.Country](server, "/countries", eng, resolver, opts); err != nil {
		log.Fatal().Err(err).Msg("Failed to mount countries")
	}
	if err := mount[example.Address](server, "/addresses", eng, resolver, opts); err != nil {
		log.Fatal().Err(err).Msg("Failed to mount addresses")
	}
	if err := mount[example.Order](server, "/orders", eng, resolver, opts); err != nil {
		log.Fatal().Err(err).Msg("Failed to mount orders")
	}

	stopStats := make(chan struct{})
	if metrics != nil {
		go reportPoolStats(db, stopStats)
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting restcore server")
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	close(stopStats)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = multierr.Append(server.Shutdown(shutdownCtx), res.Close(shutdownCtx))
	if err != nil {
		log.Error().Err(err).Msg("Shutdown completed with errors")
		os.Exit(1)
	}

	log.Info().Msg("Server exited")
}

// mount serves entity type E under prefix.
func mount[E any](server *api.Server, prefix string, eng engine.Engine, resolver schema.FieldPathResolver, opts service.Options) error {
	repo, err := repository.New[E](eng, resolver)
	if err != nil {
		return err
	}
	server.Mount(prefix, api.NewHandler(service.New(repo, opts)))
	return nil
}

func reportPoolStats(db *database.Connection, stop <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			db.ReportStats()
		case <-stop:
			return
		}
	}
}
