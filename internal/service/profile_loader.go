package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"loan-dash/internal/domain"
	"loan-dash/internal/repository"
)

const defaultJobTitle = "Loan Officer"

// ProfileLoadError envuelve cualquier fallo de I/O al leer o crear el perfil.
type ProfileLoadError struct {
	Op         string
	IdentityID string
	Err        error
}

func (e *ProfileLoadError) Error() string {
	return fmt.Sprintf("profile load %s (%s): %v", e.Op, e.IdentityID, e.Err)
}

func (e *ProfileLoadError) Unwrap() error {
	return e.Err
}

// ProfileLoader resuelve el perfil de la app para una identidad y siembra los datos del primer login.
type ProfileLoader struct {
	logger         *zap.Logger
	profiles       repository.ProfileRepository
	performance    repository.PerformanceRepository
	badges         repository.BadgeRepository
	tasks          repository.TaskRepository
	starterBadgeID string
	now            func() time.Time
}

func NewProfileLoader(
	logger *zap.Logger,
	profiles repository.ProfileRepository,
	performance repository.PerformanceRepository,
	badges repository.BadgeRepository,
	tasks repository.TaskRepository,
	starterBadgeID string,
) *ProfileLoader {
	if starterBadgeID == "" {
		starterBadgeID = "welcome-aboard"
	}
	return &ProfileLoader{
		logger:         logger,
		profiles:       profiles,
		performance:    performance,
		badges:         badges,
		tasks:          tasks,
		starterBadgeID: starterBadgeID,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (l *ProfileLoader) LoadProfile(ctx context.Context, identityID, email string) (domain.Profile, error) {
	identityID = strings.TrimSpace(identityID)
	email = normalizeEmail(email)
	if identityID == "" || email == "" {
		return domain.Profile{}, &ProfileLoadError{Op: "validate", IdentityID: identityID, Err: errors.New("identity id and email are required")}
	}

	profile, err := l.profiles.GetByID(ctx, identityID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, &ProfileLoadError{Op: "fetch", IdentityID: identityID, Err: err}
		}
		// Primer login: no existe perfil todavía.
		profile, err = l.profiles.Upsert(ctx, defaultProfile(identityID, email, l.now()))
		if err != nil {
			return domain.Profile{}, &ProfileLoadError{Op: "create", IdentityID: identityID, Err: err}
		}
		l.logger.Info("profile created on first login",
			zap.String("user_id", identityID),
			zap.String("internal_role", string(profile.InternalRole)),
		)
	}

	l.seedBootstrapRecords(ctx, identityID)
	return profile, nil
}

// seedBootstrapRecords es best-effort: los errores se loguean y el próximo login completa lo faltante.
func (l *ProfileLoader) seedBootstrapRecords(ctx context.Context, userID string) {
	now := l.now()
	if err := l.ensurePerformanceRecord(ctx, userID, now); err != nil {
		l.logger.Warn("seed performance record failed", zap.Error(err), zap.String("user_id", userID))
	}
	if err := l.ensureStarterBadge(ctx, userID, now); err != nil {
		l.logger.Warn("seed starter badge failed", zap.Error(err), zap.String("user_id", userID))
	}
	if err := l.ensureDefaultTasks(ctx, userID, now); err != nil {
		l.logger.Warn("seed default tasks failed", zap.Error(err), zap.String("user_id", userID))
	}
}

func (l *ProfileLoader) ensurePerformanceRecord(ctx context.Context, userID string, now time.Time) error {
	month, year := int(now.Month()), now.Year()
	exists, err := l.performance.Exists(ctx, userID, month, year)
	if err != nil {
		return fmt.Errorf("check performance record: %w", err)
	}
	if exists {
		return nil
	}
	return l.performance.Create(ctx, domain.PerformanceRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Month:     month,
		Year:      year,
		CreatedAt: now,
	})
}

func (l *ProfileLoader) ensureStarterBadge(ctx context.Context, userID string, now time.Time) error {
	has, err := l.badges.HasBadge(ctx, userID, l.starterBadgeID)
	if err != nil {
		return fmt.Errorf("check starter badge: %w", err)
	}
	if has {
		return nil
	}
	return l.badges.Assign(ctx, domain.BadgeAssignment{
		ID:       uuid.NewString(),
		UserID:   userID,
		BadgeID:  l.starterBadgeID,
		EarnedAt: now,
	})
}

func (l *ProfileLoader) ensureDefaultTasks(ctx context.Context, userID string, now time.Time) error {
	n, err := l.tasks.CountByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("count tasks: %w", err)
	}
	if n > 0 {
		return nil
	}
	return l.tasks.CreateMany(ctx, defaultTasks(userID, now))
}

func defaultProfile(identityID, email string, now time.Time) domain.Profile {
	role := domain.RoleUser
	if strings.Contains(email, "admin") {
		role = domain.RoleAdmin
	}
	return domain.Profile{
		ID:           identityID,
		Name:         displayNameFromEmail(email),
		Email:        email,
		Role:         defaultJobTitle,
		InternalRole: role,
		CreatedAt:    now,
	}
}

// displayNameFromEmail capitaliza la parte local: "jane@co.com" -> "Jane".
func displayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "User"
	}
	r, size := utf8.DecodeRuneInString(local)
	return string(unicode.ToUpper(r)) + local[size:]
}

func defaultTasks(userID string, now time.Time) []domain.Task {
	specs := []struct {
		title    string
		priority string
		dueIn    time.Duration
	}{
		{"Complete your profile", "high", 24 * time.Hour},
		{"Review this month's pipeline", "medium", 3 * 24 * time.Hour},
		{"Set up your email signature", "low", 7 * 24 * time.Hour},
	}
	tasks := make([]domain.Task, 0, len(specs))
	for _, s := range specs {
		tasks = append(tasks, domain.Task{
			ID:        uuid.NewString(),
			UserID:    userID,
			Title:     s.title,
			Status:    "pending",
			Priority:  s.priority,
			DueDate:   now.Add(s.dueIn),
			CreatedAt: now,
		})
	}
	return tasks
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
