package domain

// SessionStatus es el estado derivado de la máquina de sesión.
type SessionStatus string

const (
	StatusUninitialized   SessionStatus = "uninitialized"
	StatusInitializing    SessionStatus = "initializing"
	StatusActive          SessionStatus = "active"
	StatusWarning         SessionStatus = "warning"
	StatusUnauthenticated SessionStatus = "unauthenticated"
)

// AuthState es el contrato observable que consume el resto de la aplicación.
type AuthState struct {
	User               *Profile      `json:"user"`
	IsLoading          bool          `json:"is_loading"`
	ShowSessionWarning bool          `json:"show_session_warning"`
	Status             SessionStatus `json:"status"`
}

// RequiresLogin indica que las vistas protegidas deben redirigir al login.
func (s AuthState) RequiresLogin() bool {
	return s.User == nil && !s.IsLoading
}
