package models

import (
	"time"
)

// Role is a member's role within an organization.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Elevated reports whether the role may mutate resources it did not create.
func (r Role) Elevated() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Organization is the tenant boundary. Every project, run, view and trigger
// belongs to exactly one organization.
type Organization struct {
	ID        string // opaque id, e.g. "org_01j..."
	Name      string
	Slug      string // unique, used in /o/<slug> routes
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member links a user to an organization with a role.
type Member struct {
	OrgID     string
	UserID    string
	Role      Role
	CreatedAt time.Time
}

// Membership is an organization as seen by one of its members.
type Membership struct {
	Organization Organization
	Role         Role
}
