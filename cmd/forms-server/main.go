// Package main provides the forms server entry point. It hosts the form
// engine API together with the audit trail and background exports.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/glog"

	"github.com/fieldworks/backoffice/internal/db"
	"github.com/fieldworks/backoffice/pkg/audit"
	"github.com/fieldworks/backoffice/pkg/authz"
	"github.com/fieldworks/backoffice/pkg/blob"
	"github.com/fieldworks/backoffice/pkg/cache"
	"github.com/fieldworks/backoffice/pkg/forms"
	"github.com/fieldworks/backoffice/pkg/ha"
	"github.com/fieldworks/backoffice/pkg/jobs"
	"github.com/fieldworks/backoffice/pkg/server"
	"github.com/fieldworks/backoffice/pkg/tenancy"
)

func main() {
	var (
		listenAddr   string
		databaseType string
		databaseDSN  string
		logLevel     string
	)

	flag.StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	flag.StringVar(&databaseType, "db-type", "", "Database type (postgres, mysql or sqlite)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		glog.Fatalf("Invalid log level %q: %v", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	dbCfg := db.ConfigFromEnv(db.Config{Type: databaseType, DSN: databaseDSN})
	if dbCfg.DSN == "" {
		glog.Fatalf("Database DSN is required (use -db-dsn flag or DATABASE_DSN environment variable)")
	}
	gormDB, err := db.Open(dbCfg)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	tenancyMode := tenancy.ParseMode(os.Getenv("FORMS_TENANCY_MODE"))
	authzCfg := authz.AuthzConfigFromEnv()
	auditCfg := audit.AuditConfigFromEnv()

	serverOpts := []server.ServerOption{
		server.WithTenancyMode(tenancyMode),
		server.WithFormsConfig(forms.FormsConfigFromEnv()),
		server.WithAuthzConfig(authzCfg),
		server.WithAuditConfig(auditCfg),
		server.WithCacheConfig(cache.CacheConfigFromEnv()),
		server.WithJobConfig(jobs.JobConfigFromEnv()),
		server.WithMigrationLocker(ha.NewMigrationLocker(gormDB, ha.HAConfigFromEnv())),
	}

	blobCfg := blob.BlobConfigFromEnv()
	if blobCfg.Enabled() {
		client, err := blob.LoadClient(ctx, blobCfg)
		if err != nil {
			glog.Fatalf("Failed to create blob client: %v", err)
		}
		presign := s3.NewPresignClient(client)
		serverOpts = append(serverOpts,
			server.WithSignaturePresigner(blob.NewS3Presigner(presign, blobCfg, logger)),
			server.WithExportObjectStore(blob.NewS3ObjectStore(client, presign, blobCfg)),
		)
		logger.Info("using blob store", "bucket", blobCfg.Bucket, "region", blobCfg.Region, "endpoint", blobCfg.Endpoint)
	} else {
		logger.Info("blob store not configured, signature uploads and background exports disabled")
	}

	logger.Info("starting forms server",
		"listen", listenAddr,
		"database", dbCfg.Type,
		"tenancy", tenancyMode,
		"authz", authzCfg.Mode,
		"auth", authzCfg.AuthMode,
		"audit", auditCfg.Enabled,
	)

	srv := server.NewServer(gormDB, logger, serverOpts...)
	if err := srv.Init(ctx); err != nil {
		glog.Fatalf("Failed to initialize server: %v", err)
	}

	router := srv.MountRoutes()

	if err := srv.Start(ctx); err != nil {
		glog.Fatalf("Failed to start background workers: %v", err)
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("forms server ready", "listen", listenAddr)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("background worker shutdown error", "error", err)
	}

	logger.Info("forms server stopped")
}
