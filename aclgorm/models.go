package aclgorm

import (
	"time"

	"github.com/pathkeep/pathkeep/core/acl"
)

// gormDirectGrant stores direct principal-to-path grants.
type gormDirectGrant struct {
	Principal string `gorm:"primaryKey;size:255"`
	Path      string `gorm:"primaryKey;size:512"`
	ExpiresAt *time.Time
}

func (gormDirectGrant) TableName() string { return "acl_direct_grants" }

// gormPrincipalRole stores role assignments held by principals.
type gormPrincipalRole struct {
	Principal string `gorm:"primaryKey;size:255"`
	Role      string `gorm:"primaryKey;size:100"`
	ExpiresAt *time.Time
}

func (gormPrincipalRole) TableName() string { return "acl_principal_roles" }

// gormRolePath stores role-path pairs. The composite primary key serves
// the forward lookup (role -> paths); the secondary index serves the
// reverse lookup (path -> roles), so the two views share one row and
// cannot diverge.
type gormRolePath struct {
	Role string `gorm:"primaryKey;size:100;index:idx_path_role,priority:2"`
	Path string `gorm:"primaryKey;size:512;index:idx_path_role,priority:1"`
}

func (gormRolePath) TableName() string { return "acl_role_paths" }

// gormPathRef stores the per-path reference count.
type gormPathRef struct {
	Path  string `gorm:"primaryKey;size:512"`
	Count uint32
}

func (gormPathRef) TableName() string { return "acl_path_refs" }

// gormRoleInfo stores role metadata.
type gormRoleInfo struct {
	Name          string `gorm:"primaryKey;size:100"`
	Description   string `gorm:"size:1000"`
	CreatedAt     time.Time
	CreatedBy     string `gorm:"size:255"`
	NumPrincipals uint32
}

func (gormRoleInfo) TableName() string { return "acl_roles" }

func toCoreRoleInfo(g *gormRoleInfo) acl.RoleInfo {
	return acl.RoleInfo{
		Name:          g.Name,
		Description:   g.Description,
		CreatedAt:     g.CreatedAt,
		CreatedBy:     g.CreatedBy,
		NumPrincipals: g.NumPrincipals,
	}
}

func fromCoreRoleInfo(info acl.RoleInfo) *gormRoleInfo {
	return &gormRoleInfo{
		Name:          info.Name,
		Description:   info.Description,
		CreatedAt:     info.CreatedAt,
		CreatedBy:     info.CreatedBy,
		NumPrincipals: info.NumPrincipals,
	}
}

// gormMetadata stores the single ACL instance record.
type gormMetadata struct {
	ID            uint `gorm:"primaryKey"`
	Name          string
	Description   string `gorm:"size:1000"`
	CreatedBy     string `gorm:"size:255"`
	CreatedAt     time.Time
	OperatorKind  string `gorm:"size:16"`
	OperatorValue string `gorm:"size:255"`
}

func (gormMetadata) TableName() string { return "acl_metadata" }

// The metadata table holds exactly one row.
const metadataRowID = 1

func toCoreMetadata(g *gormMetadata) acl.Metadata {
	return acl.Metadata{
		Name:        g.Name,
		Description: g.Description,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
		Operator: acl.Operator{
			Kind:  acl.OperatorKind(g.OperatorKind),
			Value: g.OperatorValue,
		},
	}
}

func fromCoreMetadata(m acl.Metadata) *gormMetadata {
	return &gormMetadata{
		ID:            metadataRowID,
		Name:          m.Name,
		Description:   m.Description,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
		OperatorKind:  string(m.Operator.Kind),
		OperatorValue: m.Operator.Value,
	}
}
