package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/receiptdeck/qbo-backend/internal/database"
	"github.com/receiptdeck/qbo-backend/internal/intuit"
	"github.com/receiptdeck/qbo-backend/internal/server"
	"github.com/receiptdeck/qbo-backend/internal/tokenstore"
)

// keyringService identifies the token record in OS-native credential storage.
const keyringService = "qbo-backend-token"

// App orchestrates the lifecycle of the HTTP server and related services.
type App struct {
	cfg    *Config
	server *server.Server
	db     *sql.DB // nil unless postgres storage is configured
}

// New creates a new App instance. Connects to Postgres and applies schema
// migrations when postgres storage is configured; otherwise storage I/O is
// deferred to the first token operation.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var (
		store tokenstore.Store
		db    *sql.DB
		err   error
	)
	switch cfg.Storage.Type {
	case TokenStorageTypePostgres:
		db, err = database.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store = tokenstore.NewPostgresStore(db)
		slog.InfoContext(ctx, "connected to database and ensured tables exist")
	case TokenStorageTypeFile:
		store, err = tokenstore.NewFileStore(cfg.Storage.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create file token store: %w", err)
		}
		slog.WarnContext(ctx, "no database configured, using file fallback for tokens", "file", cfg.Storage.File)
	case TokenStorageTypeKeyring:
		store, err = tokenstore.NewKeyringStore(keyringService, cfg.Storage.KeyringUser)
		if err != nil {
			return nil, fmt.Errorf("failed to create keyring token store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	lifecycle := intuit.NewLifecycle(intuit.Credentials{
		ClientID:       cfg.Intuit.ClientID,
		ClientSecret:   cfg.Intuit.ClientSecret,
		RedirectURI:    cfg.Intuit.RedirectURI,
		DefaultRealmID: cfg.Intuit.RealmID,
	}, store)

	receipts := intuit.NewClient(lifecycle, cfg.Intuit.BaseURL, cfg.Intuit.RealmID)

	httpServer, err := server.New(lifecycle, receipts, cfg.Frontend.URL, cfg.API.Key)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &App{
		cfg:    cfg,
		server: httpServer,
		db:     db,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	if a.db != nil {
		shutdownFuncs = append(shutdownFuncs, func(context.Context) error {
			return a.db.Close()
		})
	}

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting http server", "address", address)
	serverErrCh, err := a.server.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.server.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "server runtime error", "error", err)
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
