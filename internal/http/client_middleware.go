package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"loan-dash/internal/session"
)

const (
	clientIDHeader  = "X-Client-ID"
	clientIDCookie  = "client_id"
	machineKey      = "session_machine"
	clientIDKey     = "client_id"
	loginRedirectTo = "/login"
)

// ClientMachineMiddleware resuelve la máquina de sesión del cliente (header o cookie) y la guarda en el contexto.
func ClientMachineMiddleware(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := strings.TrimSpace(c.GetHeader(clientIDHeader))
		if clientID == "" {
			if cookie, err := c.Cookie(clientIDCookie); err == nil {
				clientID = strings.TrimSpace(cookie)
			}
		}
		if clientID == "" {
			clientID = session.NewClientID()
			c.SetCookie(clientIDCookie, clientID, 0, "/", "", false, true)
		}
		c.Header(clientIDHeader, clientID)

		machine, ok := registry.Get(c.Request.Context(), clientID)
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
			c.Abort()
			return
		}
		c.Set(clientIDKey, clientID)
		c.Set(machineKey, machine)
		c.Next()
	}
}

// GetMachine obtiene la máquina de sesión desde el contexto.
func GetMachine(c *gin.Context) (*session.Machine, bool) {
	val, ok := c.Get(machineKey)
	if !ok {
		return nil, false
	}
	m, ok := val.(*session.Machine)
	return m, ok
}

// RequireAuthenticated corta con 401 + redirect cuando no hay usuario y nada en curso.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := GetMachine(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session not resolved"})
			c.Abort()
			return
		}
		state := m.State()
		if state.IsLoading {
			c.JSON(http.StatusAccepted, gin.H{"state": state})
			c.Abort()
			return
		}
		if state.RequiresLogin() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "login required", "redirect": loginRedirectTo})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin usa el flag de rol interno; no hay política más fina.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := GetMachine(c)
		if !ok || !m.State().User.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
