// Package server assembles the forms API, audit trail, export jobs and
// their supporting middleware into one HTTP server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/fieldworks/backoffice/pkg/audit"
	"github.com/fieldworks/backoffice/pkg/authz"
	"github.com/fieldworks/backoffice/pkg/cache"
	"github.com/fieldworks/backoffice/pkg/forms"
	"github.com/fieldworks/backoffice/pkg/ha"
	"github.com/fieldworks/backoffice/pkg/jobs"
	"github.com/fieldworks/backoffice/pkg/tenancy"
)

// API mount points.
const (
	FormsBasePath = cache.DefaultFormsBasePath
	AuditBasePath = "/api/audit/v1"
	JobsBasePath  = "/api/jobs/v1"
)

// ExportObjectStore stores export files and presigns their downloads.
type ExportObjectStore interface {
	jobs.ObjectWriter
	jobs.DownloadPresigner
}

// Server manages the lifecycle of the forms server components.
type Server struct {
	router chi.Router
	db     *gorm.DB
	logger *slog.Logger

	tenancyMode tenancy.TenancyMode
	formsConfig *forms.FormsConfig
	authzConfig *authz.AuthzConfig
	auditConfig *audit.AuditConfig
	cacheConfig *cache.CacheConfig
	jobConfig   *jobs.JobConfig

	formStore  *forms.FormStore
	auditStore *audit.Store
	jobStore   *jobs.JobStore
	service    *forms.Service

	authorizer   authz.Authorizer
	policy       *authz.PolicyAuthorizer
	identity     func(http.Handler) http.Handler
	cacheManager *cache.CacheManager
	presigner    forms.SignatureUploadPresigner
	exports      ExportObjectStore

	migrationLocker ha.MigrationLocker

	wg              sync.WaitGroup
	startedAt       time.Time
	initialLoadDone bool
	mu              sync.RWMutex
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTenancyMode sets the tenancy mode. Defaults to ModeSingle.
func WithTenancyMode(mode tenancy.TenancyMode) ServerOption {
	return func(s *Server) { s.tenancyMode = mode }
}

// WithFormsConfig sets the form engine configuration.
func WithFormsConfig(cfg *forms.FormsConfig) ServerOption {
	return func(s *Server) { s.formsConfig = cfg }
}

// WithAuthzConfig selects identity extraction and authorization.
// Defaults to header identity with no authorization.
func WithAuthzConfig(cfg *authz.AuthzConfig) ServerOption {
	return func(s *Server) { s.authzConfig = cfg }
}

// WithAuthorizer sets the Authorizer directly, bypassing the policy file.
func WithAuthorizer(a authz.Authorizer) ServerOption {
	return func(s *Server) { s.authorizer = a }
}

// WithAuditConfig enables the audit trail.
func WithAuditConfig(cfg *audit.AuditConfig) ServerOption {
	return func(s *Server) { s.auditConfig = cfg }
}

// WithCacheConfig enables caching of analytics responses. If the config is
// nil or disabled, no caching is applied.
func WithCacheConfig(cfg *cache.CacheConfig) ServerOption {
	return func(s *Server) { s.cacheConfig = cfg }
}

// WithJobConfig configures the background export queue.
func WithJobConfig(cfg *jobs.JobConfig) ServerOption {
	return func(s *Server) { s.jobConfig = cfg }
}

// WithMigrationLocker sets the MigrationLocker used to serialize database
// migrations across replicas. If not set, migrations run without a lock.
func WithMigrationLocker(locker ha.MigrationLocker) ServerOption {
	return func(s *Server) { s.migrationLocker = locker }
}

// WithSignaturePresigner enables signature image upload URLs.
func WithSignaturePresigner(p forms.SignatureUploadPresigner) ServerOption {
	return func(s *Server) { s.presigner = p }
}

// WithExportObjectStore enables background exports, which are written to
// and downloaded from store.
func WithExportObjectStore(store ExportObjectStore) ServerOption {
	return func(s *Server) { s.exports = store }
}

// NewServer creates a Server over db.
func NewServer(db *gorm.DB, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		db:          db,
		logger:      logger,
		tenancyMode: tenancy.ModeSingle,
		formsConfig: forms.DefaultFormsConfig(),
		authzConfig: authz.DefaultAuthzConfig(),
		startedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init migrates the database and builds the services. All migrations run
// under the migration lock when one is configured.
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.formStore = forms.NewFormStore(s.db)
	steps := []func() error{s.formStore.AutoMigrate}
	if s.auditConfig != nil && s.auditConfig.Enabled {
		s.auditStore = audit.NewStore(s.db)
		steps = append(steps, s.auditStore.AutoMigrate)
	}
	if s.exportsEnabled() {
		s.jobStore = jobs.NewJobStore(s.db)
		steps = append(steps, s.jobStore.AutoMigrate)
	}

	locker := s.migrationLocker
	if locker == nil {
		locker = ha.NewMigrationLocker(nil, nil)
	}
	s.logger.Info("running migrations", "steps", len(steps))
	if err := ha.Migrate(ctx, locker, steps...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if err := s.initAuth(); err != nil {
		return err
	}

	s.cacheManager = cache.NewCacheManager(s.cacheConfig, s.logger)

	var sinks []forms.EventSink
	if s.auditStore != nil && s.auditConfig.DomainEvents {
		sinks = append(sinks, audit.NewEventSink(s.auditStore, s.logger))
	}
	if s.cacheManager != nil {
		sinks = append(sinks, s.cacheManager)
	}
	s.service = forms.NewService(s.formStore,
		forms.WithConfig(s.formsConfig),
		forms.WithLogger(s.logger.With("component", "forms")),
		forms.WithEventSink(forms.EventSinks(sinks...)),
	)

	s.initialLoadDone = true
	return nil
}

func (s *Server) exportsEnabled() bool {
	return s.exports != nil && s.jobConfig != nil && s.jobConfig.Enabled
}

// initAuth builds the identity middleware and, in policy mode, a cached
// policy authorizer whose decisions are dropped for the tenants a reload
// changes.
func (s *Server) initAuth() error {
	cfg := s.authzConfig

	s.identity = authz.IdentityMiddleware()
	if cfg.AuthMode == authz.AuthModeJWT {
		extractor, err := authz.NewJWTIdentityExtractor(cfg.JWT, s.logger)
		if err != nil {
			return fmt.Errorf("jwt identity: %w", err)
		}
		s.identity = extractor.Middleware()
	}

	if s.authorizer != nil || cfg.Mode != authz.AuthzModePolicy {
		return nil
	}

	policy, err := authz.NewPolicyAuthorizer(cfg.PolicyFile, s.logger)
	if err != nil {
		return fmt.Errorf("load authorization policy: %w", err)
	}
	s.policy = policy
	if cfg.CacheTTL > 0 {
		cached := authz.NewCachedAuthorizer(policy, cfg.CacheTTL)
		policy.OnReload(cached.Invalidate)
		s.authorizer = cached
	} else {
		s.authorizer = policy
	}
	return nil
}

// MountRoutes creates the HTTP router.
func (s *Server) MountRoutes() chi.Router {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", tenancy.TenantHeader, "X-Correlation-ID"},
		ExposedHeaders:   []string{"Link", "X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	r.Group(func(api chi.Router) {
		api.Use(tenancy.NewMiddleware(s.tenancyMode))
		api.Use(s.identity)
		if s.auditStore != nil {
			api.Use(audit.AuditMiddleware(s.auditStore, s.auditConfig, s.logger))
			s.logger.Info("audit middleware enabled",
				"logDenied", s.auditConfig.LogDenied,
				"domainEvents", s.auditConfig.DomainEvents,
				"retentionDays", s.auditConfig.RetentionDays)
		}

		formOpts := []forms.RouterOption{forms.WithAnalyticsMiddleware(s.cacheManager.AnalyticsMiddleware())}
		if s.presigner != nil {
			formOpts = append(formOpts, forms.WithSignaturePresigner(s.presigner))
		}
		api.Mount(FormsBasePath, forms.Router(s.service, s.authorizer, formOpts...))
		s.logger.Info("mounted forms routes", "basePath", FormsBasePath,
			"authz", s.authorizer != nil, "cache", s.cacheManager != nil, "presign", s.presigner != nil)

		if s.auditStore != nil {
			api.Mount(AuditBasePath, audit.Router(s.auditStore, s.authorizer))
			s.logger.Info("mounted audit API routes", "basePath", AuditBasePath)
		}

		if s.jobStore != nil {
			api.Mount(JobsBasePath, jobs.Router(s.jobStore, s.service, s.exports, s.authorizer))
			s.logger.Info("mounted export job routes", "basePath", JobsBasePath)
		}
	})

	s.router = r
	return r
}

// Start launches the background workers: policy file watching, audit
// retention and the export worker pool. They stop when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.policy != nil {
		if err := s.policy.Watch(ctx); err != nil {
			return fmt.Errorf("watch authorization policy: %w", err)
		}
	}

	if s.auditStore != nil {
		worker := audit.NewRetentionWorker(s.auditStore, s.auditConfig.RetentionDays, s.logger).
			WithInterval(s.auditConfig.RetentionInterval)
		s.goBackground(func() { worker.Run(ctx) })
	}

	if s.jobStore != nil {
		exporter := jobs.NewFormExporter(s.service, s.exports)
		pool := jobs.NewWorkerPool(s.jobStore, exporter, s.jobConfig, s.logger.With("component", "exports"))
		s.goBackground(func() { pool.Run(ctx) })
	}

	return nil
}

func (s *Server) goBackground(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Stop waits for the background workers started by Start to exit. The
// caller cancels their context first.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background workers did not stop: %w", ctx.Err())
	}
}

// Router returns the router built by MountRoutes.
func (s *Server) Router() chi.Router {
	return s.router
}

// Service returns the form engine.
func (s *Server) Service() *forms.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.service
}

// healthHandler returns the liveness status of the server.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler checks database connectivity and initialization.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	initialLoadDone := s.initialLoadDone
	s.mu.RUnlock()

	allReady := true

	dbStatus := map[string]string{"status": "up"}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			dbStatus["status"] = "down"
			dbStatus["error"] = err.Error()
			allReady = false
		}
	} else {
		dbStatus["status"] = "not_configured"
		allReady = false
	}

	initStatus := map[string]string{"status": "complete"}
	if !initialLoadDone {
		initStatus["status"] = "pending"
		allReady = false
	}

	components := map[string]any{
		"database":     dbStatus,
		"initial_load": initStatus,
		"authz":        map[string]string{"status": enabledStatus(s.authorizer != nil)},
		"audit":        map[string]string{"status": enabledStatus(s.auditStore != nil)},
		"cache":        map[string]string{"status": enabledStatus(s.cacheManager != nil)},
		"exports":      map[string]string{"status": enabledStatus(s.jobStore != nil)},
	}

	status := "ready"
	code := http.StatusOK
	if !allReady {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"components": components,
	})
}

func enabledStatus(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
