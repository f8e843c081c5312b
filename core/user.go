package core

import (
	"strings"
	"time"
)

// User roles
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleViewer  = "viewer"
)

// User is a console user record.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Description  string    `json:"description"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	PasswordHash string    `json:"-"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=50,username"`
	Description string `json:"description" validate:"max=255"`
	Role        string `json:"role" validate:"oneof=admin analyst viewer"`
	Password    string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
}

// Normalize trims fields and applies the default role.
func (r *CreateUserRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Description = strings.TrimSpace(r.Description)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	if r.Role == "" {
		r.Role = RoleAnalyst
	}
}
