// Package postgres implements resolver.Directory on PostgreSQL using pgx.
//
// Schema (columns read or written by this package):
//
//	profiles(id, email, full_name, role, tenant_id, status, avatar_url, force_password_change)
//	tenants(id, name, code, status)
//	institution_admins(id, user_id, email, tenant_id, full_name)
//	students(id, user_id, email, tenant_id, full_name, roll_number, class_name, section, academic_year, parent_email, parent_id)
//	parents(id, tenant_id, email, full_name)
//	staff(id, user_id, email, tenant_id, full_name, employee_id)
//	accountants(id, user_id, email, tenant_id, full_name)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/resolver"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// Directory reads and heals the tenant directory.
type Directory struct {
	db  DB
	log logrus.FieldLogger
}

// New creates a PostgreSQL-backed directory.
func New(db DB, log logrus.FieldLogger) *Directory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Directory{db: db, log: log.WithField("component", "postgres_directory")}
}

// Close releases the underlying pool.
func (d *Directory) Close() {
	d.db.Close()
}

const profileQuery = `
	SELECT id, COALESCE(email, ''), COALESCE(full_name, ''), COALESCE(role, ''),
	       COALESCE(tenant_id::text, ''), COALESCE(status, 'active'),
	       COALESCE(avatar_url, ''), COALESCE(force_password_change, false)
	FROM profiles
	WHERE id = $1`

// Profile describes the profile operation and its observable behavior.
func (d *Directory) Profile(ctx context.Context, id string) (*resolver.Profile, error) {
	var (
		p      resolver.Profile
		role   string
		status string
	)
	err := d.db.QueryRow(ctx, profileQuery, id).Scan(
		&p.ID, &p.Email, &p.FullName, &role, &p.TenantID, &status, &p.AvatarURL, &p.ForcePasswordChange,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, d.wrap("profile", err)
	}
	p.Role = identity.Role(role)
	p.Status = resolver.ProfileStatus(status)
	return &p, nil
}

var membershipQueries = map[resolver.Source]string{
	resolver.SourceInstitutionAdmin: `
	SELECT id, COALESCE(tenant_id::text, ''), COALESCE(full_name, '')
	FROM institution_admins
	WHERE user_id = $1 OR ($2 <> '' AND lower(email) = $2)
	LIMIT 1`,
	resolver.SourceStudent: `
	SELECT id, COALESCE(tenant_id::text, ''), COALESCE(full_name, '')
	FROM students
	WHERE user_id = $1 OR ($2 <> '' AND lower(email) = $2)
	LIMIT 1`,
	resolver.SourceParent: `
	SELECT id, COALESCE(tenant_id::text, ''), COALESCE(full_name, '')
	FROM parents
	WHERE id = $1 OR ($2 <> '' AND lower(email) = $2)
	LIMIT 1`,
	resolver.SourceStaff: `
	SELECT id, COALESCE(tenant_id::text, ''), COALESCE(full_name, '')
	FROM staff
	WHERE user_id = $1 OR ($2 <> '' AND lower(email) = $2)
	LIMIT 1`,
	resolver.SourceAccountant: `
	SELECT id, COALESCE(tenant_id::text, ''), COALESCE(full_name, '')
	FROM accountants
	WHERE user_id = $1 OR ($2 <> '' AND lower(email) = $2)
	LIMIT 1`,
}

// FindMembership describes the find membership operation and its observable behavior.
func (d *Directory) FindMembership(ctx context.Context, source resolver.Source, id, email string) (*resolver.Membership, error) {
	query, ok := membershipQueries[source]
	if !ok {
		return nil, fmt.Errorf("postgres directory: unknown source %d", source)
	}

	m := resolver.Membership{Source: source}
	err := d.db.QueryRow(ctx, query, id, identity.NormalizeEmail(email)).Scan(&m.RecordID, &m.TenantID, &m.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, d.wrap("membership:"+source.String(), err)
	}
	return &m, nil
}

const tenantQuery = `
	SELECT id, COALESCE(name, ''), COALESCE(code, ''), COALESCE(status, 'active')
	FROM tenants
	WHERE id = $1`

// Tenant describes the tenant operation and its observable behavior.
func (d *Directory) Tenant(ctx context.Context, tenantID string) (*resolver.Tenant, error) {
	var (
		t      resolver.Tenant
		status string
	)
	err := d.db.QueryRow(ctx, tenantQuery, tenantID).Scan(&t.ID, &t.Name, &t.Code, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, d.wrap("tenant", err)
	}
	t.Status = resolver.TenantStatus(status)
	return &t, nil
}

const updateProfileRoleQuery = `
	INSERT INTO profiles (id, role, tenant_id, status)
	VALUES ($1, $2, NULLIF($3, '')::uuid, 'active')
	ON CONFLICT (id) DO UPDATE
	SET role = COALESCE(NULLIF(profiles.role, ''), EXCLUDED.role),
	    tenant_id = COALESCE(profiles.tenant_id, EXCLUDED.tenant_id)`

// UpdateProfileRole fills a missing role or tenant on the canonical profile.
// Existing values are never overwritten.
func (d *Directory) UpdateProfileRole(ctx context.Context, id string, role identity.Role, tenantID string) error {
	if _, err := d.db.Exec(ctx, updateProfileRoleQuery, id, string(role), tenantID); err != nil {
		return d.wrap("update_profile_role", err)
	}
	return nil
}

const upsertParentQuery = `
	INSERT INTO parents (id, tenant_id, email, full_name)
	VALUES ($1, NULLIF($2, '')::uuid, $3, $4)
	ON CONFLICT (id) DO UPDATE
	SET tenant_id = COALESCE(EXCLUDED.tenant_id, parents.tenant_id),
	    email = EXCLUDED.email,
	    full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), parents.full_name)`

// UpsertParent describes the upsert parent operation and its observable behavior.
func (d *Directory) UpsertParent(ctx context.Context, parent resolver.ParentRecord) error {
	_, err := d.db.Exec(ctx, upsertParentQuery,
		parent.ID, parent.TenantID, identity.NormalizeEmail(parent.Email), parent.FullName)
	if err != nil {
		return d.wrap("upsert_parent", err)
	}
	return nil
}

const linkStudentsQuery = `
	UPDATE students
	SET parent_id = $1
	WHERE parent_id IS NULL
	  AND lower(parent_email) = $3
	  AND ($2 = '' OR tenant_id = NULLIF($2, '')::uuid)`

// LinkStudentsByParentEmail describes the link students by parent email operation and its observable behavior.
func (d *Directory) LinkStudentsByParentEmail(ctx context.Context, parentID, tenantID, email string) (int, error) {
	tag, err := d.db.Exec(ctx, linkStudentsQuery, parentID, tenantID, identity.NormalizeEmail(email))
	if err != nil {
		return 0, d.wrap("link_students", err)
	}
	return int(tag.RowsAffected()), nil
}

const studentAttributesQuery = `
	SELECT COALESCE(full_name, ''), COALESCE(roll_number, ''), COALESCE(class_name, ''),
	       COALESCE(section, ''), COALESCE(academic_year, '')
	FROM students
	WHERE user_id = $1 OR ($2 <> '' AND lower(email) = $2)
	LIMIT 1`

const staffAttributesQuery = `
	SELECT COALESCE(full_name, ''), COALESCE(employee_id, '')
	FROM staff
	WHERE user_id = $1 OR ($2 <> '' AND lower(email) = $2)
	LIMIT 1`

// Attributes returns role-specific display data. Roles without a detail
// table return (nil, nil).
func (d *Directory) Attributes(ctx context.Context, role identity.Role, id, email string) (*identity.Attributes, error) {
	email = identity.NormalizeEmail(email)

	var (
		a   identity.Attributes
		err error
	)
	switch role {
	case identity.RoleStudent:
		err = d.db.QueryRow(ctx, studentAttributesQuery, id, email).Scan(
			&a.DisplayName, &a.StudentID, &a.ClassName, &a.Section, &a.AcademicYear)
	case identity.RoleFaculty:
		err = d.db.QueryRow(ctx, staffAttributesQuery, id, email).Scan(&a.DisplayName, &a.StaffID)
	default:
		return nil, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, d.wrap("attributes", err)
	}
	return &a, nil
}

// wrap marks connection-level failures as resolver.ErrUnavailable so the
// resolver treats them as transient. Query errors keep their own type.
func (d *Directory) wrap(op string, err error) error {
	d.log.WithError(err).WithField("op", op).Debug("directory query failed")

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %s: %v", resolver.ErrUnavailable, op, err)
	}
	return fmt.Errorf("postgres directory %s: %w", op, err)
}

var _ resolver.Directory = (*Directory)(nil)
