package invitation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/emradmin/internal/platform/db"
)

type invitationRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &invitationRepoPG{pool: pool}
}

const invitationColumns = `id, account_id, email, first_name, last_name, linked_user_id,
	tags, secret, created_at, updated_at`

func (r *invitationRepoPG) Create(ctx context.Context, inv *Invitation) error {
	inv.ID = uuid.New()
	if inv.Tags == nil {
		inv.Tags = []string{}
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO invitation (id, account_id, email, first_name, last_name, linked_user_id, tags, secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		inv.ID, inv.AccountID, inv.Email, inv.FirstName, inv.LastName, inv.LinkedUserID, inv.Tags, inv.Secret,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
}

func (r *invitationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	inv, err := scanInvitation(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitation WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inv, err
}

func (r *invitationRepoPG) Update(ctx context.Context, inv *Invitation) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE invitation SET
			email = $2, first_name = $3, last_name = $4, linked_user_id = $5,
			tags = $6, secret = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		inv.ID, inv.Email, inv.FirstName, inv.LastName, inv.LinkedUserID, inv.Tags, inv.Secret,
	).Scan(&inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *invitationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM invitation WHERE id = $1`, id)
	return err
}

func (r *invitationRepoPG) SearchByAccount(ctx context.Context, accountID uuid.UUID) ([]*Invitation, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+invitationColumns+` FROM invitation
		WHERE account_id = $1
		ORDER BY created_at DESC NULLS LAST, id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID, &inv.AccountID, &inv.Email, &inv.FirstName, &inv.LastName, &inv.LinkedUserID,
		&inv.Tags, &inv.Secret, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
