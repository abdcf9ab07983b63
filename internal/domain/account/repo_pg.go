package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/emradmin/internal/platform/auth"
	"github.com/ehr/emradmin/internal/platform/db"
)

// -- Account Repository --

type accountRepoPG struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) Repository {
	return &accountRepoPG{pool: pool}
}

const accountColumns = `u.id, u.username, u.first_name, u.last_name, u.display_name,
	u.email, u.phone, u.active, u.created_at, u.updated_at,
	COALESCE((SELECT array_agg(ra.role_name ORDER BY ra.role_name)
		FROM user_role_assignment ra
		WHERE ra.user_id = u.id AND ra.active), '{}') AS roles`

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO "system_user" (id, username, first_name, last_name, display_name, email, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.Username, a.FirstName, a.LastName, a.DisplayName, a.Email, a.Phone, a.Active,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if a.Roles == nil {
		a.Roles = []string{}
	}
	return err
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM "system_user" u WHERE u.id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *accountRepoPG) Update(ctx context.Context, a *Account) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE "system_user" SET
			username = $2, first_name = $3, last_name = $4, display_name = $5,
			email = $6, phone = $7, active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Username, a.FirstName, a.LastName, a.DisplayName, a.Email, a.Phone, a.Active,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *accountRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Account, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Query != "" {
		where += fmt.Sprintf(` AND (u.username ILIKE $%d OR u.email ILIKE $%d OR u.display_name ILIKE $%d
			OR u.first_name ILIKE $%d OR u.last_name ILIKE $%d)`, idx, idx, idx, idx, idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}
	if f.Active != nil {
		where += fmt.Sprintf(` AND u.active = $%d`, idx)
		args = append(args, *f.Active)
		idx++
	}
	if f.Role != "" {
		where += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM user_role_assignment ra
			WHERE ra.user_id = u.id AND ra.active AND ra.role_name = $%d)`, idx)
		args = append(args, f.Role)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM "system_user" u`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + accountColumns + ` FROM "system_user" u` + where +
		fmt.Sprintf(` ORDER BY u.username LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
	}
	return accounts, total, rows.Err()
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Username, &a.FirstName, &a.LastName, &a.DisplayName,
		&a.Email, &a.Phone, &a.Active, &a.CreatedAt, &a.UpdatedAt,
		&a.Roles,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// -- Role Assignment Repository --

type roleRepoPG struct {
	pool *pgxpool.Pool
}

func NewRoleAssigner(pool *pgxpool.Pool) RoleAssigner {
	return &roleRepoPG{pool: pool}
}

const assignmentColumns = `id, user_id, role_name, active, granted_by, start_date, end_date, created_at`

// Assign grants roleCode to the account. An existing active assignment of
// the same role is returned unchanged.
func (r *roleRepoPG) Assign(ctx context.Context, accountID uuid.UUID, roleCode string) (*RoleAssignment, error) {
	conn := db.Conn(ctx, r.pool)

	existing, err := scanAssignment(conn.QueryRow(ctx, `
		SELECT `+assignmentColumns+` FROM user_role_assignment
		WHERE user_id = $1 AND role_name = $2 AND active`, accountID, roleCode))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var grantedBy *string
	if id := auth.UserIDFromContext(ctx); id != "" {
		grantedBy = &id
	}

	a, err := scanAssignment(conn.QueryRow(ctx, `
		INSERT INTO user_role_assignment (id, user_id, role_name, active, granted_by)
		SELECT $1, u.id, $3, TRUE, $4 FROM "system_user" u WHERE u.id = $2
		RETURNING `+assignmentColumns,
		uuid.New(), accountID, roleCode, grantedBy))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *roleRepoPG) Unassign(ctx context.Context, assignmentID uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE user_role_assignment SET active = FALSE, end_date = NOW()
		WHERE id = $1 AND active`, assignmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *roleRepoPG) ListAssignments(ctx context.Context, accountID uuid.UUID) ([]*RoleAssignment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+assignmentColumns+` FROM user_role_assignment
		WHERE user_id = $1 AND active ORDER BY role_name`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (*RoleAssignment, error) {
	var a RoleAssignment
	err := row.Scan(&a.ID, &a.UserID, &a.RoleName, &a.Active, &a.GrantedBy, &a.StartDate, &a.EndDate, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
