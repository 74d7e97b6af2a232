package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"loan-dash/internal/domain"
)

type PerformanceRepository interface {
	Exists(ctx context.Context, userID string, month, year int) (bool, error)
	Create(ctx context.Context, record domain.PerformanceRecord) error
}

type BadgeRepository interface {
	HasBadge(ctx context.Context, userID, badgeID string) (bool, error)
	Assign(ctx context.Context, assignment domain.BadgeAssignment) error
}

type TaskRepository interface {
	CountByUser(ctx context.Context, userID string) (int, error)
	CreateMany(ctx context.Context, tasks []domain.Task) error
}

type PgPerformanceRepository struct {
	pool *pgxpool.Pool
}

func NewPgPerformanceRepository(pool *pgxpool.Pool) *PgPerformanceRepository {
	return &PgPerformanceRepository{pool: pool}
}

func (r *PgPerformanceRepository) Exists(ctx context.Context, userID string, month, year int) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM performance_records
			WHERE user_id = $1 AND month = $2 AND year = $3
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, userID, month, year).Scan(&exists)
	return exists, err
}

func (r *PgPerformanceRepository) Create(ctx context.Context, record domain.PerformanceRecord) error {
	const query = `
		INSERT INTO performance_records (id, user_id, month, year, loans_closed, volume_closed, applications, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, month, year) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Month,
		record.Year,
		record.LoansClosed,
		record.VolumeClosed,
		record.Applications,
		record.CreatedAt,
	)
	return err
}

type PgBadgeRepository struct {
	pool *pgxpool.Pool
}

func NewPgBadgeRepository(pool *pgxpool.Pool) *PgBadgeRepository {
	return &PgBadgeRepository{pool: pool}
}

func (r *PgBadgeRepository) HasBadge(ctx context.Context, userID, badgeID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM user_badges WHERE user_id = $1 AND badge_id = $2
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, userID, badgeID).Scan(&exists)
	return exists, err
}

func (r *PgBadgeRepository) Assign(ctx context.Context, assignment domain.BadgeAssignment) error {
	const query = `
		INSERT INTO user_badges (id, user_id, badge_id, earned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		assignment.ID,
		assignment.UserID,
		assignment.BadgeID,
		assignment.EarnedAt,
	)
	return err
}

const insertTaskQuery = `
	INSERT INTO tasks (id, user_id, title, status, priority, due_date, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (user_id, title) DO NOTHING
`

type PgTaskRepository struct {
	pool *pgxpool.Pool
}

func NewPgTaskRepository(pool *pgxpool.Pool) *PgTaskRepository {
	return &PgTaskRepository{pool: pool}
}

func (r *PgTaskRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tasks WHERE user_id = $1`
	var n int
	err := r.pool.QueryRow(ctx, query, userID).Scan(&n)
	return n, err
}

// CreateMany inserta todas las tareas en una sola transacción.
// Si un login concurrente ya sembró alguna, esa fila se conserva.
func (r *PgTaskRepository) CreateMany(ctx context.Context, tasks []domain.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, task := range tasks {
		if _, err := tx.Exec(ctx, insertTaskQuery,
			task.ID,
			task.UserID,
			task.Title,
			task.Status,
			task.Priority,
			task.DueDate,
			task.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
