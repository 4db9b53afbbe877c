package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-engine/config"
	"github.com/upb/governance-engine/identity"
	"github.com/upb/governance-engine/repositories/postgres"
	"github.com/upb/governance-engine/services"
	"github.com/upb/governance-engine/services/tenant"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization with all components", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		// Skip if database not available
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Repositories)
		assert.NotNil(t, deps.TxManager)

		err = deps.Close(ctx)
		assert.NoError(t, err)
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database.Host = "invalid-host-that-does-not-exist"
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestNewDependenciesWithFactory(t *testing.T) {
	t.Run("wires every component", func(t *testing.T) {
		deps, mock := newMockDependencies(t, testConfig(t))

		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Logger)
		assert.NotNil(t, deps.Metrics)

		repos := deps.Repositories
		require.NotNil(t, repos)
		assert.NotNil(t, repos.Activities)
		assert.NotNil(t, repos.Policies)
		assert.NotNil(t, repos.Bindings)
		assert.NotNil(t, repos.Snapshots)
		assert.NotNil(t, repos.Compliance)
		assert.NotNil(t, repos.Alerts)
		assert.NotNil(t, repos.Audit)
		assert.NotNil(t, repos.ValidationEvents)
		assert.NotNil(t, repos.Tenants)
		assert.NotNil(t, deps.TxManager)

		assert.NotNil(t, deps.AuditWriter)
		assert.True(t, deps.AuditWriter.GetStats().Started)
		assert.NotNil(t, deps.Effects)
		assert.NotNil(t, deps.Evaluator)
		assert.NotNil(t, deps.Resolver)
		assert.NotNil(t, deps.Compliance)
		assert.NotNil(t, deps.Validation)

		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.ComplianceHandler)
		assert.NotNil(t, deps.ValidationHandler)

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
		assert.False(t, deps.AuditWriter.GetStats().Started)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("metrics disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Observability.MetricsEnabled = false

		deps, mock := newMockDependencies(t, cfg)
		assert.Nil(t, deps.Metrics)

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("catalog file is loaded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte("verified_vendors: [Acme]\n"), 0o600))

		cfg := testConfig(t)
		cfg.Compliance.CatalogFile = path

		deps, mock := newMockDependencies(t, cfg)
		assert.NotNil(t, deps.Evaluator)

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("missing catalog file fails", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Compliance.CatalogFile = filepath.Join(t.TempDir(), "missing.yaml")

		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		logger := zaptest.NewLogger(t)
		factory := postgres.NewRepositoryFactoryFromDB(postgres.Wrap(db, logger), nil, logger)

		deps, err := NewDependenciesWithFactory(cfg, factory, logger)
		assert.Nil(t, deps)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load evaluator catalog")
	})
}

func TestResolverWiring(t *testing.T) {
	t.Run("service credential accepted without identity provider", func(t *testing.T) {
		deps, mock := newMockDependencies(t, testConfig(t))

		auth, err := deps.Resolver.Resolve(context.Background(), tenant.Credentials{BearerToken: "svc-secret"}, tenant.DefaultOptions())
		require.NoError(t, err)
		assert.True(t, auth.IsServiceRole)

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("user tokens rejected without identity provider", func(t *testing.T) {
		deps, mock := newMockDependencies(t, testConfig(t))

		_, err := deps.Resolver.Resolve(context.Background(), tenant.Credentials{BearerToken: "eyJ.user.token"}, tenant.DefaultOptions())
		require.Error(t, err)
		assert.True(t, services.IsUnauthorizedError(err))

		mock.ExpectClose()
		_ = deps.Close(context.Background())
	})
}

func TestTokenValidator(t *testing.T) {
	logger := zap.NewNop()

	t.Run("no jwks url", func(t *testing.T) {
		d := &Dependencies{Config: testConfig(t), Logger: logger}
		_, ok := d.tokenValidator().(rejectAllValidator)
		assert.True(t, ok)

		_, err := rejectAllValidator{}.ValidateToken(context.Background(), "token")
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("jwks url configured", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWKSURL = "https://auth.example.test/.well-known/jwks.json"
		d := &Dependencies{Config: cfg, Logger: logger}

		_, ok := d.tokenValidator().(*identity.Validator)
		assert.True(t, ok)
	})
}

func TestDependenciesClose(t *testing.T) {
	t.Run("second close does not panic", func(t *testing.T) {
		deps, mock := newMockDependencies(t, testConfig(t))

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))

		assert.NotPanics(t, func() {
			_ = deps.Close(context.Background())
		})
	})
}

// Test helpers

func newMockDependencies(t *testing.T, cfg *config.Config) (*Dependencies, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	factory := postgres.NewRepositoryFactoryFromDB(postgres.Wrap(db, logger), nil, logger)

	deps, err := NewDependenciesWithFactory(cfg, factory, logger)
	require.NoError(t, err)
	return deps, mock
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            5432,
			User:            getEnvOrDefault("DB_USER", "governance"),
			Password:        getEnvOrDefault("DB_PASSWORD", "governance"),
			Database:        getEnvOrDefault("DB_NAME", "governance_test"),
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: config.AuthConfig{
			Audience:       "authenticated",
			ServiceRoleKey: "svc-secret",
			JWKSCacheTTL:   time.Hour,
			HTTPTimeout:    10 * time.Second,
		},
		Compliance: config.ComplianceConfig{
			EPSFallbackEnabled: true,
			BatchConcurrency:   2,
			MaxBatchSize:       10,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	// In tests, just return default
	return defaultValue
}

func isDatabaseAvailable(t *testing.T, cfg *config.Config) bool {
	logger := zap.NewNop()
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return false
	}
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return factory.GetDB().PingContext(ctx) == nil
}
