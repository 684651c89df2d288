package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"polarlab/api/db/migrations"
	"polarlab/api/internal/app"
	"polarlab/api/internal/compute"
	"polarlab/api/internal/config"
	"polarlab/api/internal/export"
	"polarlab/api/internal/logging"
	"polarlab/api/internal/persist"
	"polarlab/api/internal/store"
)

var (
	cfg    config.Config
	logger *zap.Logger

	exportOut     string
	exportPublish bool

	rollbackSteps int
)

var rootCmd = &cobra.Command{
	Use:           "polarlab",
	Short:         "Polarization measures workspace API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		var err error
		logger, err = logging.New(cfg.LogLevel, cfg.LogJSON)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the persisted workspace as an xlsx workbook",
	Long: `Loads the persisted workspace and writes every table that has
distributions to one sheet of an xlsx workbook.

Example:
  polarlab export --out measures.xlsx
  polarlab export --publish`,
	RunE: runExport,
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the Postgres schema",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", export.Filename, "output file")
	exportCmd.Flags().BoolVar(&exportPublish, "publish", false, "upload to object storage instead of writing a file")

	migrateCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "migrations to roll back with down (0 for all)")

	rootCmd.AddCommand(serveCmd, exportCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// workspace is the persisted store together with its backend.
type workspace struct {
	store     *store.Store
	persister *persist.Persister
	closeFn   func() error
}

func (w *workspace) Close() error {
	return w.closeFn()
}

func openWorkspace(ctx context.Context) (*workspace, error) {
	blobs, err := openBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	persister := persist.NewPersister(blobs, cfg.StateKey, logger)
	initial, err := persister.Load(ctx)
	if err != nil {
		_ = blobs.Close()
		return nil, err
	}
	st := store.New(initial, logger)
	persister.Attach(st)
	closeFn := func() error {
		persister.Close()
		return blobs.Close()
	}
	return &workspace{store: st, persister: persister, closeFn: closeFn}, nil
}

func openBlobStore(ctx context.Context) (persist.BlobStore, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := persist.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := persist.ApplyMigrations(ctx, db, migrationFS(), logger); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		logger.Info("using PostgreSQL for workspace storage")
		return persist.NewPostgresStore(db), nil
	case config.StorageRedis:
		redisStore, err := persist.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info("using Redis for workspace storage")
		return redisStore, nil
	case config.StorageMemory:
		logger.Warn("using in-memory workspace storage; state is lost on restart")
		return persist.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func migrationFS() fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func openObjectStore(ctx context.Context) (export.ObjectStore, error) {
	if cfg.MinioEndpoint == "" {
		return nil, nil
	}
	objects, err := export.NewMinioStore(ctx, export.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	return objects, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	objects, err := openObjectStore(ctx)
	if err != nil {
		return err
	}
	if objects == nil {
		logger.Info("object storage not configured; export publishing disabled")
	}

	computer := compute.NewClient(cfg.ComputeURL, cfg.ComputeTimeout, logger)
	service := app.New(cfg, ws.store, ws.persister, computer, objects, logger)
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("polarlab API listening", zap.String("addr", cfg.Addr), zap.String("compute", cfg.ComputeURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	var objects export.ObjectStore
	if exportPublish {
		if objects, err = openObjectStore(ctx); err != nil {
			return err
		}
	}
	exporter := export.NewService(ws.store, objects, logger)

	if exportPublish {
		key, err := exporter.Publish(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	}

	result, err := exporter.Export(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(exportOut, result.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	logger.Info("workbook written", zap.String("path", exportOut), zap.Int("bytes", len(result.Data)))
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := persist.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	switch args[0] {
	case "up":
		return persist.ApplyMigrations(ctx, db, migrationFS(), logger)
	case "down":
		n, err := persist.RollbackMigrations(ctx, db, migrationFS(), rollbackSteps, logger)
		if err != nil {
			return err
		}
		logger.Info("rollback finished", zap.Int("reverted", n))
		return nil
	default:
		return fmt.Errorf("unknown direction %q, want up or down", args[0])
	}
}
