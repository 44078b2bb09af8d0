// Package models holds the persisted entities and the request/response
// shapes shared by the store, workflow and handlers packages.
package models

import "time"

// UserRole is the single role a user account carries.
type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleDepartment UserRole = "department" // submits visitor requests for a department
	RoleSecurity   UserRole = "security"   // reviews pending requests
	RoleGate       UserRole = "gate"       // checks visitors in and out
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleDepartment, RoleSecurity, RoleGate:
		return true
	}
	return false
}

// DepartmentType classifies the organisational unit a request (or a
// department user) belongs to. Wing requests need a gate and access type.
type DepartmentType string

const (
	DeptWing     DepartmentType = "wing"
	DeptDivision DepartmentType = "division"
	DeptDirector DepartmentType = "director"
)

// Valid reports whether t is a known department type.
func (t DepartmentType) Valid() bool {
	switch t {
	case DeptWing, DeptDivision, DeptDirector:
		return true
	}
	return false
}

// User is an account of any role.
//
// The Delegation* fields are a projection of the user's currently active
// received delegation. They are written in the same transaction that
// activates, completes or cancels the delegation.
type User struct {
	ID                string         `json:"id"`
	Username          string         `json:"username"`
	Email             string         `json:"email"`
	PasswordHash      string         `json:"-"`
	FullName          string         `json:"full_name"`
	EmployeeID        string         `json:"employee_id,omitempty"`
	Role              UserRole       `json:"role"`
	Department        string         `json:"department,omitempty"`
	DepartmentType    DepartmentType `json:"department_type,omitempty"`
	Active            bool           `json:"active"`
	BulkUploadEnabled bool           `json:"bulk_upload_enabled"`
	LastLogin         *time.Time     `json:"last_login,omitempty"`
	CreatedBy         string         `json:"created_by,omitempty"`

	IsDelegated          bool                   `json:"is_delegated"`
	DelegatedBy          string                 `json:"delegated_by,omitempty"`
	DelegationStart      *time.Time             `json:"delegation_start,omitempty"`
	DelegationEnd        *time.Time             `json:"delegation_end,omitempty"`
	DelegatedPermissions *DelegationPermissions `json:"delegated_permissions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
