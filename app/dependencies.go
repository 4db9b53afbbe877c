package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/governance-engine/config"
	"github.com/upb/governance-engine/handlers"
	"github.com/upb/governance-engine/identity"
	"github.com/upb/governance-engine/internal/observability"
	"github.com/upb/governance-engine/internal/policy"
	"github.com/upb/governance-engine/middleware"
	"github.com/upb/governance-engine/repositories"
	"github.com/upb/governance-engine/repositories/postgres"
	"github.com/upb/governance-engine/services/audit"
	"github.com/upb/governance-engine/services/compliance"
	"github.com/upb/governance-engine/services/effects"
	"github.com/upb/governance-engine/services/tenant"
	"github.com/upb/governance-engine/services/validation"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repositories *repositories.Repositories
	TxManager    repositories.TransactionManager

	// Services
	AuditWriter *audit.Writer
	Effects     *effects.Writer
	Evaluator   *policy.Evaluator
	Resolver    *tenant.Resolver
	Compliance  *compliance.Service
	Validation  *validation.Service

	// HTTP
	AuthMiddleware    *middleware.AuthMiddleware
	HealthHandler     *handlers.HealthHandler
	ComplianceHandler *handlers.ComplianceHandler
	ValidationHandler *handlers.ValidationHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := factory.Migrate(); err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	deps, err := NewDependenciesWithFactory(cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires everything above an existing repository
// factory. Tests pass one built over sqlmock.
func NewDependenciesWithFactory(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		return nil, err
	}

	deps.initHTTP()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Repositories = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() error {
	cfg := d.Config

	catalog, err := policy.LoadCatalog(cfg.Compliance.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to load evaluator catalog: %w", err)
	}
	d.Evaluator = policy.NewEvaluator(catalog)

	d.AuditWriter = audit.NewWriter(d.Repositories.Audit, d.Logger, audit.DefaultConfig())
	if err := d.AuditWriter.Start(); err != nil {
		return fmt.Errorf("failed to start security audit writer: %w", err)
	}

	d.Effects = effects.NewWriter(d.Repositories, d.TxManager, d.Logger)

	d.Resolver = tenant.NewResolver(
		d.tokenValidator(),
		d.Repositories.Tenants,
		d.AuditWriter,
		d.Metrics,
		d.Logger,
		tenant.Config{
			ServiceRoleKey: cfg.Auth.ServiceRoleKey,
			RequireMFA:     cfg.Auth.RequireMFA,
		},
	)

	d.Compliance = compliance.NewService(d.Repositories, d.Evaluator, d.Effects, d.Metrics, d.Logger, compliance.Config{
		BatchConcurrency: cfg.Compliance.BatchConcurrency,
		MaxBatchSize:     cfg.Compliance.MaxBatchSize,
	})

	d.Validation = validation.NewService(d.Repositories, d.Effects, d.Metrics, d.Logger, validation.Config{
		EPSFallbackEnabled: cfg.Compliance.EPSFallbackEnabled,
		DefaultDeny:        cfg.Compliance.DefaultDenyWithoutPolicy,
	})

	d.Logger.Info("services initialized",
		zap.Bool("eps_fallback", cfg.Compliance.EPSFallbackEnabled),
		zap.Bool("default_deny", cfg.Compliance.DefaultDenyWithoutPolicy),
		zap.Bool("require_mfa", cfg.Auth.RequireMFA))
	return nil
}

func (d *Dependencies) tokenValidator() tenant.TokenValidator {
	if d.Config.Auth.JWKSURL == "" {
		d.Logger.Warn("AUTH_JWKS_URL not set, only the service credential will be accepted")
		return rejectAllValidator{}
	}
	return identity.NewValidator(identity.Config{
		JWKSURL:     d.Config.Auth.JWKSURL,
		Issuer:      d.Config.Auth.Issuer,
		Audience:    d.Config.Auth.Audience,
		CacheTTL:    d.Config.Auth.JWKSCacheTTL,
		HTTPTimeout: d.Config.Auth.HTTPTimeout,
	})
}

func (d *Dependencies) initHTTP() {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Resolver, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB, d.Logger)
	d.ComplianceHandler = handlers.NewComplianceHandler(d.Compliance, d.Logger)
	d.ValidationHandler = handlers.NewValidationHandler(d.Validation, d.Resolver, d.Logger)
}

// rejectAllValidator rejects all tokens (used when no identity provider is configured)
type rejectAllValidator struct{}

func (rejectAllValidator) ValidateToken(context.Context, string) (*identity.Claims, error) {
	return nil, fmt.Errorf("%w: authentication not configured", identity.ErrInvalidToken)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain queued security denials before the pool goes away
	if d.AuditWriter != nil {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.AuditWriter.Stop(timeout); err != nil && !errors.Is(err, audit.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop security audit writer: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
