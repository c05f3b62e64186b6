package resolver

import (
	"context"
	"errors"

	"github.com/MrEthical07/multiauth/identity"
)

// ErrUnavailable is returned by Directory implementations when the backing
// store cannot be reached. The resolver classifies it as a transient network
// failure.
var ErrUnavailable = errors.New("directory unavailable")

// ProfileStatus is the lifecycle state of a canonical profile.
type ProfileStatus string

const (
	ProfileActive   ProfileStatus = "active"
	ProfileDisabled ProfileStatus = "disabled"
)

// TenantStatus is the lifecycle state of an institution.
type TenantStatus string

const (
	TenantActive   TenantStatus = "active"
	TenantInactive TenantStatus = "inactive"
	TenantDeleted  TenantStatus = "deleted"
)

// Profile is the canonical profile record keyed by identity id.
type Profile struct {
	ID                  string
	Email               string
	FullName            string
	Role                identity.Role
	TenantID            string
	Status              ProfileStatus
	AvatarURL           string
	ForcePasswordChange bool
}

// Source is one of the role-specific tables consulted when the profile does
// not carry a role.
type Source uint8

const (
	SourceInstitutionAdmin Source = iota
	SourceStudent
	SourceParent
	SourceStaff
	SourceAccountant
)

// Priority is the fixed lookup order; earlier sources win.
var Priority = []Source{
	SourceInstitutionAdmin,
	SourceStudent,
	SourceParent,
	SourceStaff,
	SourceAccountant,
}

// Role is the role granted by a match in s.
func (s Source) Role() identity.Role {
	switch s {
	case SourceInstitutionAdmin:
		return identity.RoleInstitutionAdmin
	case SourceStudent:
		return identity.RoleStudent
	case SourceParent:
		return identity.RoleParent
	case SourceStaff:
		return identity.RoleFaculty
	case SourceAccountant:
		return identity.RoleAccountant
	default:
		return ""
	}
}

func (s Source) String() string {
	return string(s.Role())
}

// Membership is a match in a role-specific table.
type Membership struct {
	Source   Source
	RecordID string
	TenantID string
	Name     string
}

// Tenant is an institution.
type Tenant struct {
	ID     string
	Name   string
	Code   string
	Status TenantStatus
}

// ParentRecord is the canonical parent row, keyed by identity id.
type ParentRecord struct {
	ID       string
	TenantID string
	Email    string
	FullName string
}

// Directory is the fragmented tenant data store. Lookups that find nothing
// return (nil, nil).
type Directory interface {
	Profile(ctx context.Context, id string) (*Profile, error)
	FindMembership(ctx context.Context, source Source, id, email string) (*Membership, error)
	Tenant(ctx context.Context, tenantID string) (*Tenant, error)
	UpdateProfileRole(ctx context.Context, id string, role identity.Role, tenantID string) error
	UpsertParent(ctx context.Context, parent ParentRecord) error
	// LinkStudentsByParentEmail links students in tenantID whose stored parent
	// email matches email and that carry no explicit parent link. It returns
	// the number of linked students.
	LinkStudentsByParentEmail(ctx context.Context, parentID, tenantID, email string) (int, error)
	Attributes(ctx context.Context, role identity.Role, id, email string) (*identity.Attributes, error)
}
