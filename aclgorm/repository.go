// Package aclgorm provides a GORM-backed implementation of acl.Store.
//
// The five logical indices live in five tables; Update maps to a GORM
// transaction, which gives each engine call its all-or-nothing
// guarantee. Drivers for sqlite, postgres, and mysql are registered at
// init time; see Open.
package aclgorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pathkeep/pathkeep/core/acl"
)

func init() {
	Register("sqlite", sqlite.Open)
	Register("postgres", postgres.Open)
	Register("mysql", mysql.Open)
}

// Repository implements acl.Store on a gorm.DB.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps an open database handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// AutoMigrate creates the ACL tables.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&gormDirectGrant{},
		&gormPrincipalRole{},
		&gormRolePath{},
		&gormPathRef{},
		&gormRoleInfo{},
		&gormMetadata{},
	)
}

// Update runs fn inside a database transaction. The engine serializes
// mutating calls, so read-modify-write sequences inside fn are safe.
func (r *Repository) Update(ctx context.Context, fn func(tx acl.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) SaveDirectGrant(ctx context.Context, principal, path string, g acl.Grant) (bool, error) {
	db := r.db.WithContext(ctx)
	var existing gormDirectGrant
	err := db.Where("principal = ? AND path = ?", principal, path).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := gormDirectGrant{Principal: principal, Path: path, ExpiresAt: g.ExpiresAt}
		return true, db.Create(&row).Error
	case err != nil:
		return false, err
	default:
		return false, db.Model(&gormDirectGrant{}).
			Where("principal = ? AND path = ?", principal, path).
			Update("expires_at", g.ExpiresAt).Error
	}
}

func (r *Repository) GetDirectGrant(ctx context.Context, principal, path string) (*acl.Grant, error) {
	var row gormDirectGrant
	err := r.db.WithContext(ctx).Where("principal = ? AND path = ?", principal, path).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acl.Grant{ExpiresAt: row.ExpiresAt}, nil
}

func (r *Repository) DeleteDirectGrant(ctx context.Context, principal, path string) (bool, error) {
	res := r.db.WithContext(ctx).Where("principal = ? AND path = ?", principal, path).Delete(&gormDirectGrant{})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) DirectGrantsByPrincipal(ctx context.Context, principal string, rng acl.Range) ([]acl.PathGrant, error) {
	q := r.db.WithContext(ctx).Where("principal = ?", principal)
	q = applyRange(q, "path", rng)

	var rows []gormDirectGrant
	if err := q.Order("path ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	grants := make([]acl.PathGrant, len(rows))
	for i, row := range rows {
		grants[i] = acl.PathGrant{Path: row.Path, ExpiresAt: row.ExpiresAt}
	}
	return grants, nil
}

func (r *Repository) SavePrincipalRole(ctx context.Context, principal, role string, g acl.Grant) (bool, error) {
	db := r.db.WithContext(ctx)
	var existing gormPrincipalRole
	err := db.Where("principal = ? AND role = ?", principal, role).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := gormPrincipalRole{Principal: principal, Role: role, ExpiresAt: g.ExpiresAt}
		return true, db.Create(&row).Error
	case err != nil:
		return false, err
	default:
		return false, db.Model(&gormPrincipalRole{}).
			Where("principal = ? AND role = ?", principal, role).
			Update("expires_at", g.ExpiresAt).Error
	}
}

func (r *Repository) GetPrincipalRole(ctx context.Context, principal, role string) (*acl.Grant, error) {
	var row gormPrincipalRole
	err := r.db.WithContext(ctx).Where("principal = ? AND role = ?", principal, role).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acl.Grant{ExpiresAt: row.ExpiresAt}, nil
}

func (r *Repository) DeletePrincipalRole(ctx context.Context, principal, role string) (bool, error) {
	res := r.db.WithContext(ctx).Where("principal = ? AND role = ?", principal, role).Delete(&gormPrincipalRole{})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) RolesByPrincipal(ctx context.Context, principal string) ([]acl.RoleGrant, error) {
	var rows []gormPrincipalRole
	err := r.db.WithContext(ctx).Where("principal = ?", principal).Order("role ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	grants := make([]acl.RoleGrant, len(rows))
	for i, row := range rows {
		grants[i] = acl.RoleGrant{Role: row.Role, ExpiresAt: row.ExpiresAt}
	}
	return grants, nil
}

func (r *Repository) SaveRolePath(ctx context.Context, role, path string) (bool, error) {
	db := r.db.WithContext(ctx)
	var existing gormRolePath
	err := db.Where("role = ? AND path = ?", role, path).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return true, db.Create(&gormRolePath{Role: role, Path: path}).Error
	case err != nil:
		return false, err
	default:
		return false, nil
	}
}

func (r *Repository) HasRolePath(ctx context.Context, role, path string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&gormRolePath{}).
		Where("role = ? AND path = ?", role, path).Count(&count).Error
	return count > 0, err
}

func (r *Repository) DeleteRolePath(ctx context.Context, role, path string) (bool, error) {
	res := r.db.WithContext(ctx).Where("role = ? AND path = ?", role, path).Delete(&gormRolePath{})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) PathsByRole(ctx context.Context, role string, rng acl.Range) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&gormRolePath{}).Where("role = ?", role)
	q = applyRange(q, "path", rng)

	var paths []string
	if err := q.Order("path ASC").Pluck("path", &paths).Error; err != nil {
		return nil, err
	}
	return paths, nil
}

func (r *Repository) RolesByPath(ctx context.Context, path string) ([]string, error) {
	var roles []string
	err := r.db.WithContext(ctx).Model(&gormRolePath{}).
		Where("path = ?", path).Order("role ASC").Pluck("role", &roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *Repository) SaveRoleInfo(ctx context.Context, info acl.RoleInfo) error {
	return r.db.WithContext(ctx).Save(fromCoreRoleInfo(info)).Error
}

func (r *Repository) GetRoleInfo(ctx context.Context, name string) (*acl.RoleInfo, error) {
	var row gormRoleInfo
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info := toCoreRoleInfo(&row)
	return &info, nil
}

func (r *Repository) RoleInfos(ctx context.Context) ([]acl.RoleInfo, error) {
	var rows []gormRoleInfo
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	infos := make([]acl.RoleInfo, len(rows))
	for i := range rows {
		infos[i] = toCoreRoleInfo(&rows[i])
	}
	return infos, nil
}

func (r *Repository) IncrementPathRef(ctx context.Context, path string) error {
	db := r.db.WithContext(ctx)
	var row gormPathRef
	err := db.Where("path = ?", path).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&gormPathRef{Path: path, Count: 1}).Error
	}
	if err != nil {
		return err
	}
	return db.Model(&gormPathRef{}).Where("path = ?", path).Update("count", row.Count+1).Error
}

func (r *Repository) DecrementPathRef(ctx context.Context, path string) error {
	db := r.db.WithContext(ctx)
	var row gormPathRef
	err := db.Where("path = ?", path).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && row.Count == 0) {
		return fmt.Errorf("%w: reference count underflow for path %s", acl.ErrCorrupt, path)
	}
	if err != nil {
		return err
	}
	if row.Count == 1 {
		return db.Where("path = ?", path).Delete(&gormPathRef{}).Error
	}
	return db.Model(&gormPathRef{}).Where("path = ?", path).Update("count", row.Count-1).Error
}

func (r *Repository) ReferencedPaths(ctx context.Context, rng acl.Range) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&gormPathRef{})
	q = applyRange(q, "path", rng)

	var paths []string
	if err := q.Order("path ASC").Pluck("path", &paths).Error; err != nil {
		return nil, err
	}
	return paths, nil
}

func (r *Repository) SaveMetadata(ctx context.Context, m acl.Metadata) error {
	return r.db.WithContext(ctx).Save(fromCoreMetadata(m)).Error
}

func (r *Repository) GetMetadata(ctx context.Context) (*acl.Metadata, error) {
	var row gormMetadata
	err := r.db.WithContext(ctx).Where("id = ?", metadataRowID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := toCoreMetadata(&row)
	return &m, nil
}

// applyRange adds lexicographic bound clauses and the page limit for an
// ordered key column.
func applyRange(q *gorm.DB, column string, rng acl.Range) *gorm.DB {
	if rng.After != "" {
		q = q.Where(column+" > ?", rng.After)
	} else if rng.Start != "" {
		q = q.Where(column+" >= ?", rng.Start)
	}
	if rng.Stop != "" {
		q = q.Where(column+" <= ?", rng.Stop)
	}
	if rng.Limit > 0 {
		q = q.Limit(rng.Limit)
	}
	return q
}

// Compile-time interface check
var _ acl.Store = (*Repository)(nil)
