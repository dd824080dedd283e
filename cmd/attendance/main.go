package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/inscribcordoba/attendance/internal/application"
	"github.com/inscribcordoba/attendance/internal/config"
	httptransport "github.com/inscribcordoba/attendance/internal/http"
	"github.com/inscribcordoba/attendance/internal/identity"
	"github.com/inscribcordoba/attendance/internal/logging"
	"github.com/inscribcordoba/attendance/internal/metrics"
	"github.com/inscribcordoba/attendance/internal/persistence"
	"github.com/inscribcordoba/attendance/internal/persistence/file"
	"github.com/inscribcordoba/attendance/internal/persistence/redis"
	"github.com/inscribcordoba/attendance/internal/persistence/sqlite"
	"github.com/inscribcordoba/attendance/internal/roster"
)

const proposalCacheSize = 256

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("attendance service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	backend, closer, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	handler, err := newHandler(cfg, backend, identityLookup(cfg, logger), logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Identity lookups may take up to the configured timeout.
		WriteTimeout: cfg.Identity.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("attendance API listening", "addr", server.Addr, "store_backend", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openBackend selects the storage backend named by the configuration.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Backend, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		backend, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return backend, backend, nil
	case config.BackendRedis:
		backend, err := redis.Dial(ctx, cfg.RedisURL, "attendance:")
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return backend, backend, nil
	case config.BackendFile, "":
		backend, err := file.New(cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return backend, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func identityLookup(cfg config.Config, logger *slog.Logger) *identity.Client {
	return identity.NewClient(identity.Config{
		Endpoint:      cfg.Identity.Endpoint,
		ApplicationID: cfg.Identity.ApplicationID,
		Password:      cfg.Identity.Password,
		AppKey:        cfg.Identity.AppKey,
		OperatorCUIL:  cfg.Identity.OperatorCUIL,
		OperatorHash:  cfg.Identity.OperatorHash,
		Timeout:       cfg.Identity.Timeout,
		Location:      cfg.Location,
	}, &http.Client{Timeout: cfg.Identity.Timeout}, time.Now, logger)
}

// newHandler wires services, handlers and middleware over backend.
func newHandler(cfg config.Config, backend persistence.Backend, lookup identity.Lookuper, logger *slog.Logger) (http.Handler, error) {
	rooms := roster.DefaultRoomCatalog()
	if cfg.RoomsFile != "" {
		loaded, err := roster.LoadRoomCatalog(cfg.RoomsFile)
		if err != nil {
			return nil, fmt.Errorf("load room catalog: %w", err)
		}
		rooms = loaded
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	store := persistence.NewStore(backend, cfg.StoreKey, logger)
	attendance := application.NewAttendanceService(application.AttendanceDeps{
		Lookup:      lookup,
		Proposals:   application.NewProposalCache(cfg.ProposalTTL, proposalCacheSize, time.Now),
		IDGenerator: uuid.NewString,
		Now:         time.Now,
		Location:    location,
		Recorder:    recorder,
		Logger:      logger,
	})
	courses := application.NewCourseService(application.CourseDeps{
		Rooms:         rooms,
		PublicBaseURL: cfg.PublicBaseURL,
		Now:           time.Now,
		Location:      location,
		Recorder:      recorder,
		Logger:        logger,
	})

	if cfg.OperatorPasswordHash == "" {
		logger.Warn("operator password hash not set; dashboard routes are unprotected")
	}

	return httptransport.NewRouter(httptransport.RouterConfig{
		Courses:             httptransport.NewCourseHandler(courses, store, logger),
		DashboardAttendance: httptransport.NewAttendanceHandler(attendance, store, persistence.DashboardFields, logger),
		KioskAttendance:     httptransport.NewAttendanceHandler(attendance, store, persistence.KioskFields, logger),
		Kiosk:               httptransport.NewKioskHandler(courses, store, logger),
		Operator:            httptransport.RequireOperator(cfg.OperatorUser, cfg.OperatorPasswordHash, logger),
		Metrics:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Middleware:          []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	}), nil
}
