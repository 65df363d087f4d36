package models

import (
	"slices"
	"time"
)

// Roles granted to back-office users.
const (
	RoleAdmin    = "Administrador"
	RoleDebt     = "Morosidad"
	RoleProperty = "Propiedades"
	RoleMassive  = "Masivo"
)

// User represents a back-office user.
type User struct {
	Base         `bson:",inline"`
	Name         string    `bson:"name" json:"name"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password" json:"-"`
	Roles        []string  `bson:"roles" json:"roles"`
	Active       bool      `bson:"active" json:"active"`
	SessionID    string    `bson:"session_id,omitempty" json:"-"`
	Deleted      bool      `bson:"deleted" json:"-"` // Soft delete flag
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// HasRole reports whether the user holds role. Administrators hold every role.
func (u *User) HasRole(role string) bool {
	return HasRole(u.Roles, role)
}

// HasRole reports whether roles grant role.
func HasRole(roles []string, role string) bool {
	return slices.Contains(roles, RoleAdmin) || slices.Contains(roles, role)
}
