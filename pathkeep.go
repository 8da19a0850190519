package pathkeep

import (
	"gorm.io/gorm"

	"github.com/pathkeep/pathkeep/aclgorm"
	"github.com/pathkeep/pathkeep/core/acl"
)

// Convenient aliases for the core types.
type (
	Engine   = acl.Engine
	Operator = acl.Operator
	Subject  = acl.Subject
)

// NewMemoryEngine creates an engine on an in-memory store, for tests
// and single-process embedding.
func NewMemoryEngine(opts ...acl.Option) *acl.Engine {
	return acl.New(acl.NewMemoryStore(), opts...)
}

// NewEngine creates an engine on an already-open GORM database.
func NewEngine(db *gorm.DB, opts ...acl.Option) (*acl.Engine, error) {
	repo := aclgorm.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		return nil, err
	}
	return acl.New(repo, opts...), nil
}

// OpenEngine connects to the named database and returns an engine over
// it. Supported drivers are sqlite, postgres, and mysql.
func OpenEngine(driver, dsn string, opts ...acl.Option) (*acl.Engine, error) {
	repo, err := aclgorm.Open(driver, dsn, nil)
	if err != nil {
		return nil, err
	}
	return acl.New(repo, opts...), nil
}
