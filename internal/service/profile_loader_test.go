package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"loan-dash/internal/domain"
)

type mockProfileRepo struct {
	profiles  map[string]domain.Profile
	getErr    error
	upsertErr error
	upserts   int
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[string]domain.Profile)}
}

func (m *mockProfileRepo) GetByID(_ context.Context, id string) (domain.Profile, error) {
	if m.getErr != nil {
		return domain.Profile{}, m.getErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return domain.Profile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockProfileRepo) Upsert(_ context.Context, profile domain.Profile) (domain.Profile, error) {
	m.upserts++
	if m.upsertErr != nil {
		return domain.Profile{}, m.upsertErr
	}
	if existing, ok := m.profiles[profile.ID]; ok {
		return existing, nil
	}
	m.profiles[profile.ID] = profile
	return profile, nil
}

type mockPerformanceRepo struct {
	records map[string]domain.PerformanceRecord
	err     error
}

func (m *mockPerformanceRepo) key(userID string, month, year int) string {
	return fmt.Sprintf("%s|%d|%d", userID, month, year)
}

func (m *mockPerformanceRepo) Exists(_ context.Context, userID string, month, year int) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.records[m.key(userID, month, year)]
	return ok, nil
}

func (m *mockPerformanceRepo) Create(_ context.Context, record domain.PerformanceRecord) error {
	m.records[m.key(record.UserID, record.Month, record.Year)] = record
	return nil
}

type mockBadgeRepo struct {
	assigned []domain.BadgeAssignment
	err      error
}

func (m *mockBadgeRepo) HasBadge(_ context.Context, userID, badgeID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, a := range m.assigned {
		if a.UserID == userID && a.BadgeID == badgeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBadgeRepo) Assign(_ context.Context, assignment domain.BadgeAssignment) error {
	m.assigned = append(m.assigned, assignment)
	return nil
}

type mockTaskRepo struct {
	tasks []domain.Task
	err   error
}

func (m *mockTaskRepo) CountByUser(_ context.Context, userID string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, t := range m.tasks {
		if t.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *mockTaskRepo) CreateMany(_ context.Context, tasks []domain.Task) error {
	m.tasks = append(m.tasks, tasks...)
	return nil
}

type loaderFixture struct {
	loader      *ProfileLoader
	profiles    *mockProfileRepo
	performance *mockPerformanceRepo
	badges      *mockBadgeRepo
	tasks       *mockTaskRepo
	now         time.Time
}

func newLoaderFixture() *loaderFixture {
	f := &loaderFixture{
		profiles:    newMockProfileRepo(),
		performance: &mockPerformanceRepo{records: make(map[string]domain.PerformanceRecord)},
		badges:      &mockBadgeRepo{},
		tasks:       &mockTaskRepo{},
		now:         time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC),
	}
	f.loader = NewProfileLoader(zap.NewNop(), f.profiles, f.performance, f.badges, f.tasks, "welcome-aboard")
	f.loader.now = func() time.Time { return f.now }
	return f
}

func TestProfileLoader_FirstLoginCreatesProfileAndSeeds(t *testing.T) {
	f := newLoaderFixture()

	profile, err := f.loader.LoadProfile(context.Background(), "id-1", "jane@co.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Name != "Jane" || profile.Email != "jane@co.com" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.InternalRole != domain.RoleUser || profile.Role != "Loan Officer" {
		t.Fatalf("unexpected roles: %s / %s", profile.InternalRole, profile.Role)
	}
	if _, ok := f.performance.records["id-1|5|2024"]; !ok {
		t.Fatalf("expected performance record for current month")
	}
	if len(f.badges.assigned) != 1 || f.badges.assigned[0].BadgeID != "welcome-aboard" {
		t.Fatalf("expected one starter badge, got %+v", f.badges.assigned)
	}
	if len(f.tasks.tasks) != 3 {
		t.Fatalf("expected 3 default tasks, got %d", len(f.tasks.tasks))
	}
	if !f.tasks.tasks[0].DueDate.Equal(f.now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected due date for first task: %v", f.tasks.tasks[0].DueDate)
	}
}

func TestProfileLoader_AdminEmailGetsAdminRole(t *testing.T) {
	f := newLoaderFixture()

	profile, err := f.loader.LoadProfile(context.Background(), "id-2", "Sam.Admin@Co.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.InternalRole != domain.RoleAdmin {
		t.Fatalf("expected admin, got %s", profile.InternalRole)
	}
	if !profile.IsAdmin() {
		t.Fatalf("expected IsAdmin")
	}
	if profile.Email != "sam.admin@co.com" {
		t.Fatalf("expected normalized email, got %q", profile.Email)
	}
}

func TestProfileLoader_RerunIsIdempotent(t *testing.T) {
	f := newLoaderFixture()
	ctx := context.Background()

	first, err := f.loader.LoadProfile(ctx, "id-1", "jane@co.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.loader.LoadProfile(ctx, "id-1", "jane@co.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same profile on rerun")
	}
	if f.profiles.upserts != 1 {
		t.Fatalf("expected one profile insert, got %d", f.profiles.upserts)
	}
	if len(f.performance.records) != 1 || len(f.badges.assigned) != 1 || len(f.tasks.tasks) != 3 {
		t.Fatalf("seed data duplicated: perf=%d badges=%d tasks=%d",
			len(f.performance.records), len(f.badges.assigned), len(f.tasks.tasks))
	}
}

func TestProfileLoader_NewMonthAddsPerformanceRecord(t *testing.T) {
	f := newLoaderFixture()
	ctx := context.Background()

	if _, err := f.loader.LoadProfile(ctx, "id-1", "jane@co.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.now = f.now.AddDate(0, 1, 0)
	if _, err := f.loader.LoadProfile(ctx, "id-1", "jane@co.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.performance.records) != 2 {
		t.Fatalf("expected a record per month, got %d", len(f.performance.records))
	}
	if len(f.badges.assigned) != 1 {
		t.Fatalf("starter badge must not be re-awarded")
	}
}

func TestProfileLoader_SeedErrorsDoNotFailLoad(t *testing.T) {
	f := newLoaderFixture()
	f.performance.err = errors.New("perf down")
	f.badges.err = errors.New("badges down")
	f.tasks.err = errors.New("tasks down")

	profile, err := f.loader.LoadProfile(context.Background(), "id-1", "jane@co.com")
	if err != nil {
		t.Fatalf("seed errors must be swallowed, got %v", err)
	}
	if profile.ID != "id-1" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestProfileLoader_FetchErrorIsWrapped(t *testing.T) {
	f := newLoaderFixture()
	dbErr := errors.New("connection refused")
	f.profiles.getErr = dbErr

	_, err := f.loader.LoadProfile(context.Background(), "id-1", "jane@co.com")
	var loadErr *ProfileLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ProfileLoadError, got %v", err)
	}
	if loadErr.Op != "fetch" || !errors.Is(err, dbErr) {
		t.Fatalf("unexpected error: %+v", loadErr)
	}
	if f.profiles.upserts != 0 {
		t.Fatalf("must not create a profile when fetch fails")
	}
}

func TestProfileLoader_CreateErrorIsWrapped(t *testing.T) {
	f := newLoaderFixture()
	f.profiles.upsertErr = errors.New("insert failed")

	_, err := f.loader.LoadProfile(context.Background(), "id-1", "jane@co.com")
	var loadErr *ProfileLoadError
	if !errors.As(err, &loadErr) || loadErr.Op != "create" {
		t.Fatalf("expected create ProfileLoadError, got %v", err)
	}
	if len(f.badges.assigned) != 0 {
		t.Fatalf("must not seed when profile creation fails")
	}
}

func TestProfileLoader_RejectsEmptyIdentity(t *testing.T) {
	f := newLoaderFixture()

	_, err := f.loader.LoadProfile(context.Background(), " ", "jane@co.com")
	var loadErr *ProfileLoadError
	if !errors.As(err, &loadErr) || loadErr.Op != "validate" {
		t.Fatalf("expected validate error, got %v", err)
	}
}

func TestDisplayNameFromEmail(t *testing.T) {
	cases := map[string]string{
		"jane@co.com":   "Jane",
		"jean.luc@x.fr": "Jean.luc",
		"@co.com":       "User",
	}
	for email, want := range cases {
		if got := displayNameFromEmail(email); got != want {
			t.Fatalf("displayNameFromEmail(%q): expected %q, got %q", email, want, got)
		}
	}
}
