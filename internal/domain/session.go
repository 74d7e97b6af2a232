package domain

import "time"

// IdentitySession es la prueba de autenticación emitida por el proveedor de identidad.
type IdentitySession struct {
	SubjectID    string    `json:"subject_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reporta si el access token ya no es válido en now.
func (s *IdentitySession) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// IdentityAccount son las credenciales que valida el proveedor de identidad.
type IdentityAccount struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type AuthEventType string

const (
	AuthEventSignedIn  AuthEventType = "signed_in"
	AuthEventSignedOut AuthEventType = "signed_out"
)

// AuthEvent es un evento fuera de banda del proveedor (ej. logout forzado en otro lado).
type AuthEvent struct {
	Type      AuthEventType `json:"type"`
	SubjectID string        `json:"subject_id"`
	At        time.Time     `json:"at"`
}
