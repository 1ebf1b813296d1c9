package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxProfiles is the number of viewer profiles an account may hold
const MaxProfiles = 5

// Provider represents the OAuth provider type
type Provider string

const (
	ProviderGitHub Provider = "GITHUB"
	ProviderGoogle Provider = "GOOGLE"
)

// String returns the string representation of Provider
func (p Provider) String() string {
	return string(p)
}

// IsValid checks if the provider is valid
func (p Provider) IsValid() bool {
	return p == ProviderGitHub || p == ProviderGoogle
}

// Role is an authorization role carried by a user
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is known
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account in the system
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash *string   `db:"passwordHash" json:"-"`
	Provider     *Provider `db:"provider" json:"provider,omitempty"`
	ProviderID   *string   `db:"providerId" json:"-"`
	Roles        []Role    `db:"roles" json:"roles"`
	Profiles     []Profile `db:"-" json:"profiles,omitempty"`
	CreatedAt    time.Time `db:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `db:"updatedAt" json:"updatedAt"`
}

// HasRole reports whether the user carries the role
func (u *User) HasRole(role Role) bool {
	return HasRole(u.Roles, role)
}

// HasRole reports whether role is in roles
func HasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Profile is a named viewer identity owned by a user
type Profile struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UserID     uuid.UUID `db:"userId" json:"userId"`
	Name       string    `db:"name" json:"name"`
	AvatarPath *string   `db:"avatarPath" json:"avatarPath"`
	CreatedAt  time.Time `db:"createdAt" json:"createdAt"`
}

// RegisterInput represents the input for a password sign-up
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginInput represents the input for a password login
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateSelfInput lists the account fields a user may change on their own
type UpdateSelfInput struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// SetRolesInput is the admin-only role assignment payload
type SetRolesInput struct {
	Roles []Role `json:"roles"`
}

// ProfileInput represents the input for creating or renaming a profile
type ProfileInput struct {
	Name *string `json:"name,omitempty"`
}
