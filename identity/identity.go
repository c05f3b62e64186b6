// Package identity defines the cached account record shared by the account
// store, the profile resolver and the orchestrator.
//
// This package performs no I/O.
package identity

import "strings"

// Role is the resolved role of an identity within its tenant.
type Role string

const (
	// RoleStudent is assigned to learners and is the fallback when only a tenant is known.
	RoleStudent Role = "student"
	// RoleFaculty covers teaching and non-teaching staff.
	RoleFaculty Role = "faculty"
	// RoleParent is a guardian linked to one or more students.
	RoleParent Role = "parent"
	// RoleInstitutionAdmin administers a single tenant.
	RoleInstitutionAdmin Role = "institution_admin"
	// RolePlatformAdmin administers every tenant and short-circuits resolution.
	RolePlatformAdmin Role = "platform_admin"
	// RoleAccountant manages fees for a tenant.
	RoleAccountant Role = "accountant"
	// RoleCanteenManager runs a tenant's canteen.
	RoleCanteenManager Role = "canteen_manager"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleParent, RoleInstitutionAdmin,
		RolePlatformAdmin, RoleAccountant, RoleCanteenManager:
		return true
	}
	return false
}

// Identity is one cached account on a device.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        Role   `json:"role"`

	TenantID   string `json:"tenant_id,omitempty"`
	TenantName string `json:"tenant_name,omitempty"`
	TenantCode string `json:"tenant_code,omitempty"`

	StudentID    string `json:"student_id,omitempty"`
	StaffID      string `json:"staff_id,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	Section      string `json:"section,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	AcademicYear string `json:"academic_year,omitempty"`

	ForcePasswordChange bool `json:"force_password_change,omitempty"`
}

// Attributes are the role-specific display fields fetched after role and
// tenant are known. Empty fields are simply absent data.
type Attributes struct {
	DisplayName  string
	AvatarURL    string
	StudentID    string
	StaffID      string
	ClassName    string
	Section      string
	AcademicYear string
}

// Apply copies non-empty attribute fields onto id.
func (a Attributes) Apply(id *Identity) {
	if id == nil {
		return
	}
	setIfEmpty := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIfEmpty(&id.DisplayName, a.DisplayName)
	setIfEmpty(&id.AvatarURL, a.AvatarURL)
	setIfEmpty(&id.StudentID, a.StudentID)
	setIfEmpty(&id.StaffID, a.StaffID)
	setIfEmpty(&id.ClassName, a.ClassName)
	setIfEmpty(&id.Section, a.Section)
	setIfEmpty(&id.AcademicYear, a.AcademicYear)
}

// Merge overlays the non-empty fields of update onto base. ID is never
// changed. ForcePasswordChange always follows update, since a cleared flag is
// meaningful.
func Merge(base, update Identity) Identity {
	out := base
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.Email, update.Email)
	pick(&out.DisplayName, update.DisplayName)
	if update.Role != "" {
		out.Role = update.Role
	}
	pick(&out.TenantID, update.TenantID)
	pick(&out.TenantName, update.TenantName)
	pick(&out.TenantCode, update.TenantCode)
	pick(&out.StudentID, update.StudentID)
	pick(&out.StaffID, update.StaffID)
	pick(&out.ClassName, update.ClassName)
	pick(&out.Section, update.Section)
	pick(&out.AvatarURL, update.AvatarURL)
	pick(&out.AcademicYear, update.AcademicYear)
	out.ForcePasswordChange = update.ForcePasswordChange
	return out
}

// NormalizeEmail is the canonical form used for credential cache keys and
// email lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
