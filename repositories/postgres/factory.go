package postgres

import (
	"github.com/upb/governance-engine/config"
	"github.com/upb/governance-engine/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db      *DB
	auditDB *DB // Optional: separate DB for audit trails
	logger  *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	f := &RepositoryFactory{db: db, logger: logger}

	if cfg.AuditDatabase != nil {
		auditDB, err := NewDB(*cfg.AuditDatabase, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		f.auditDB = auditDB
	}

	return f, nil
}

// NewRepositoryFactoryFromDB builds a factory over existing pools. auditDB may be nil.
func NewRepositoryFactoryFromDB(db, auditDB *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, auditDB: auditDB, logger: logger}
}

// Migrate applies schema migrations to the main database and, when configured,
// the separate audit database.
func (f *RepositoryFactory) Migrate() error {
	if err := f.db.Migrate(); err != nil {
		return err
	}
	if f.auditDB != nil {
		return f.auditDB.Migrate()
	}
	return nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	auditDB := f.db
	if f.auditDB != nil {
		auditDB = f.auditDB
	}
	return &repositories.Repositories{
		Activities:       NewActivityRepository(f.db, f.logger),
		Policies:         NewPolicyRepository(f.db, f.logger),
		Bindings:         NewBindingRepository(f.db, f.logger),
		Snapshots:        NewSnapshotRepository(f.db, f.logger),
		Compliance:       NewComplianceRepository(f.db, f.logger),
		Alerts:           NewAlertRepository(f.db, f.logger),
		Audit:            NewAuditRepository(auditDB, f.logger),
		ValidationEvents: NewValidationEventRepository(f.db, f.logger),
		Tenants:          NewTenantRepository(f.db, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection(s)
func (f *RepositoryFactory) Close() error {
	if f.auditDB != nil {
		_ = f.auditDB.Close()
	}
	return f.db.Close()
}
