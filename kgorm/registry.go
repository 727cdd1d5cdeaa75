package kgorm

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// DialectorOpener is an alias for a function that returns a gorm.Dialector for a given DSN.
type DialectorOpener = func(string) gorm.Dialector

// Factory opens a database for dialects that need more than a Dialector.
type Factory = func(dsn string, config *gorm.Config) (*gorm.DB, error)

var (
	registryMu sync.RWMutex
	providers  = make(map[string]any)
)

// Register adds a new database provider to the registry.
// Provider can be a DialectorOpener or a Factory.
func Register(name string, provider any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = provider
}

// Open connects to the database registered under name and, unless
// skipMigrate is set, migrates the identity tables and any extra models.
func Open(name, dsn string, config *gorm.Config, skipMigrate bool, models ...any) (*Repository, error) {
	registryMu.RLock()
	provider, ok := providers[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("gorm: unknown storage provider %q", name)
	}
	if config == nil {
		config = &gorm.Config{}
	}

	var (
		db  *gorm.DB
		err error
	)
	switch p := provider.(type) {
	case DialectorOpener:
		db, err = gorm.Open(p(dsn), config)
	case Factory:
		db, err = p(dsn, config)
	default:
		return nil, fmt.Errorf("gorm: provider %q registered with incompatible type (expected DialectorOpener or Factory)", name)
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: open %s: %w", name, err)
	}

	repo := NewRepository(db)
	if skipMigrate {
		return repo, nil
	}
	if err := repo.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("gorm: migrate: %w", err)
	}
	return repo, nil
}
