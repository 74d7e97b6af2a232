package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"loan-dash/internal/repository"
)

const (
	DefaultAutoLogoutMinutes = 30
	settingsCacheTTL         = 5 * time.Minute
	settingsCachePrefix      = "settings:"
)

type settingsCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// SettingsService lee la configuración global de la app con cache opcional en Redis.
type SettingsService struct {
	logger         *zap.Logger
	repo           repository.SettingsRepository
	cache          settingsCache
	defaultMinutes int
	group          singleflight.Group
}

func NewSettingsService(logger *zap.Logger, repo repository.SettingsRepository, cache *redis.Client, defaultMinutes int) *SettingsService {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultAutoLogoutMinutes
	}
	s := &SettingsService{
		logger:         logger,
		repo:           repo,
		defaultMinutes: defaultMinutes,
	}
	if cache != nil {
		s.cache = cache
	}
	return s
}

// AutoLogoutTimeoutMinutes nunca falla: ante cualquier error devuelve el default.
func (s *SettingsService) AutoLogoutTimeoutMinutes(ctx context.Context) int {
	key := repository.SettingAutoLogoutTimeout
	v, _, _ := s.group.Do(key, func() (interface{}, error) {
		return s.loadMinutes(ctx, key), nil
	})
	return v.(int)
}

func (s *SettingsService) loadMinutes(ctx context.Context, key string) int {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, settingsCachePrefix+key).Result()
		if err == nil {
			if minutes, ok := parseMinutes(raw); ok {
				return minutes
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("settings cache read failed", zap.Error(err))
		}
	}

	if s.repo == nil {
		return s.defaultMinutes
	}
	raw, err := s.repo.Get(ctx, key)
	if err != nil {
		s.logger.Warn("auto logout timeout unavailable, using default",
			zap.Error(err),
			zap.Int("default_minutes", s.defaultMinutes),
		)
		return s.defaultMinutes
	}
	minutes, ok := parseMinutes(raw)
	if !ok {
		s.logger.Warn("invalid auto logout timeout, using default", zap.String("value", raw))
		return s.defaultMinutes
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, settingsCachePrefix+key, strconv.Itoa(minutes), settingsCacheTTL).Err(); err != nil {
			s.logger.Warn("settings cache write failed", zap.Error(err))
		}
	}
	return minutes
}

func parseMinutes(raw string) (int, bool) {
	minutes, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || minutes <= 0 {
		return 0, false
	}
	return minutes, true
}
