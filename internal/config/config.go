package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"10080"`

	LoginRateLimitMax           int `env:"LOGIN_RATE_LIMIT_MAX" envDefault:"10"`
	LoginRateLimitWindowMinutes int `env:"LOGIN_RATE_LIMIT_WINDOW_MINUTES" envDefault:"15"`

	// Timeout de auto-logout si app_settings no responde.
	DefaultAutoLogoutMinutes  int    `env:"DEFAULT_AUTO_LOGOUT_MINUTES" envDefault:"30"`
	SessionRegistryTTLMinutes int    `env:"SESSION_REGISTRY_TTL_MINUTES" envDefault:"60"`
	StarterBadgeID            string `env:"STARTER_BADGE_ID" envDefault:"welcome-aboard"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
