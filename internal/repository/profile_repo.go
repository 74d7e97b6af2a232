package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loan-dash/internal/domain"
)

// ProfileRepository define el contrato de persistencia para perfiles de la app.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (domain.Profile, error)
	// Upsert inserta el perfil si no existe y devuelve la fila almacenada.
	Upsert(ctx context.Context, profile domain.Profile) (domain.Profile, error)
}

type PgProfileRepository struct {
	pool *pgxpool.Pool
}

func NewPgProfileRepository(pool *pgxpool.Pool) *PgProfileRepository {
	return &PgProfileRepository{pool: pool}
}

func (r *PgProfileRepository) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	const query = `
		SELECT id, name, email, role, internal_role, avatar_url,
		       nmls_number, client_facing_title, recruiter_id, created_at
		FROM profiles
		WHERE id = $1
	`
	var p domain.Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Role,
		&p.InternalRole,
		&p.AvatarURL,
		&p.NMLSNumber,
		&p.ClientFacingTitle,
		&p.RecruiterID,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, pgx.ErrNoRows
		}
		return domain.Profile{}, err
	}
	// Rol desconocido: sin privilegios.
	if !p.InternalRole.Valid() {
		p.InternalRole = domain.RoleUser
	}
	return p, nil
}

func (r *PgProfileRepository) Upsert(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	// ON CONFLICT DO NOTHING: si otro login concurrente ya lo creó, gana la fila existente.
	const query = `
		INSERT INTO profiles (id, name, email, role, internal_role, avatar_url,
		                      nmls_number, client_facing_title, recruiter_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		profile.ID,
		profile.Name,
		profile.Email,
		profile.Role,
		profile.InternalRole,
		profile.AvatarURL,
		profile.NMLSNumber,
		profile.ClientFacingTitle,
		profile.RecruiterID,
		profile.CreatedAt,
	)
	if err != nil {
		return domain.Profile{}, err
	}
	return r.GetByID(ctx, profile.ID)
}
