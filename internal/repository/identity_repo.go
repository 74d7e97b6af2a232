package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loan-dash/internal/domain"
)

// IdentityAccountRepository guarda las credenciales del proveedor de identidad.
type IdentityAccountRepository interface {
	Create(ctx context.Context, account domain.IdentityAccount) error
	GetByEmail(ctx context.Context, email string) (domain.IdentityAccount, error)
}

type PgIdentityAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgIdentityAccountRepository(pool *pgxpool.Pool) *PgIdentityAccountRepository {
	return &PgIdentityAccountRepository{pool: pool}
}

func (r *PgIdentityAccountRepository) Create(ctx context.Context, account domain.IdentityAccount) error {
	const query = `
		INSERT INTO identity_accounts (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.CreatedAt,
	)
	return err
}

func (r *PgIdentityAccountRepository) GetByEmail(ctx context.Context, email string) (domain.IdentityAccount, error) {
	const query = `
		SELECT id, email, password_hash, created_at
		FROM identity_accounts
		WHERE email = $1
	`
	var a domain.IdentityAccount
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IdentityAccount{}, err
	}
	return a, err
}
