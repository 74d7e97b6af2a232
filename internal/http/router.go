package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loan-dash/internal/identity"
	"loan-dash/internal/session"
)

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	registry *session.Registry,
	tokens *identity.TokenIssuer,
	gatherer prometheus.Gatherer,
	sessionH *SessionHandler,
	profileH *ProfileHandler,
	adminH *AdminHandler,
	accountH *AccountHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares básicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/accounts", accountH.Register)
	tokenAuth := r.Group("/auth")
	tokenAuth.POST("/token", accountH.Token)
	tokenAuth.POST("/refresh", accountH.Refresh)
	tokenAuth.POST("/revoke", accountH.Revoke)

	client := r.Group("/", ClientMachineMiddleware(registry))

	auth := client.Group("/auth")
	auth.POST("/login", sessionH.Login)
	auth.POST("/logout", sessionH.Logout)

	sess := client.Group("/session")
	sess.GET("", sessionH.GetState)
	sess.DELETE("", sessionH.Teardown)
	sess.GET("/events", sessionH.Events)
	sess.POST("/extend", sessionH.Extend)
	sess.POST("/reset", sessionH.ResetInactivity)
	sess.POST("/activity", sessionH.Activity)
	sess.POST("/visibility", sessionH.Visibility)

	protected := client.Group("/", RequireAuthenticated())
	protected.GET("/me", sessionH.Me)

	admin := protected.Group("/admin", RequireAdmin())
	admin.GET("/sessions", adminH.ListSessions)
	admin.POST("/users/:id/signout", adminH.ForceSignOut)

	api := r.Group("/api", JWTAuthMiddleware(tokens))
	api.GET("/profile", profileH.GetProfile)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
