package domain

import "time"

// InternalRole es el rol grueso usado por la app (no es el titulo del puesto).
type InternalRole string

const (
	RoleUser    InternalRole = "user"
	RoleManager InternalRole = "manager"
	RoleAdmin   InternalRole = "admin"
)

// Valid indica si el rol pertenece a la enumeración conocida.
func (r InternalRole) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Profile es la vista de la aplicación sobre un usuario. ID == subject del proveedor de identidad.
type Profile struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Email             string       `json:"email"`
	Role              string       `json:"role,omitempty"` // titulo del puesto, texto libre
	InternalRole      InternalRole `json:"internal_role"`
	AvatarURL         string       `json:"avatar_url,omitempty"`
	NMLSNumber        *string      `json:"nmls_number,omitempty"`
	ClientFacingTitle *string      `json:"client_facing_title,omitempty"`
	RecruiterID       *string      `json:"recruiter_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// IsAdmin reporta si el perfil tiene el flag de administrador.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.InternalRole == RoleAdmin
}
