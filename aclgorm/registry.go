package aclgorm

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// DialectorOpener returns a gorm.Dialector for a given DSN.
type DialectorOpener = func(string) gorm.Dialector

var (
	registryMu sync.RWMutex
	openers    = make(map[string]DialectorOpener)
)

// Register adds a database driver to the registry. The sqlite,
// postgres, and mysql drivers are registered by default.
func Register(name string, opener DialectorOpener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	openers[name] = opener
}

// Open connects to the named database, runs migrations, and returns a
// ready Repository.
func Open(driver, dsn string, cfg *gorm.Config) (*Repository, error) {
	return open(driver, dsn, cfg, true)
}

// OpenNoMigrate connects without touching the schema, for deployments
// that manage migrations externally.
func OpenNoMigrate(driver, dsn string, cfg *gorm.Config) (*Repository, error) {
	return open(driver, dsn, cfg, false)
}

func open(driver, dsn string, cfg *gorm.Config, migrate bool) (*Repository, error) {
	registryMu.RLock()
	opener, ok := openers[driver]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("aclgorm: unknown database driver %q", driver)
	}
	if cfg == nil {
		cfg = &gorm.Config{}
	}

	db, err := gorm.Open(opener(dsn), cfg)
	if err != nil {
		return nil, err
	}

	repo := NewRepository(db)
	if migrate {
		if err := repo.AutoMigrate(); err != nil {
			return nil, err
		}
	}
	return repo, nil
}
