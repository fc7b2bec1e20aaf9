package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/schoolcbt/internal/model"
)

// UserRepository handles portal account data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, unique_id, name, COALESCE(email, ''), password_hash, role, school_id,
	class_level, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.UniqueID, &u.Name, &u.Email, &u.PasswordHash, &u.Role,
		&u.SchoolID, &u.ClassLevel, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

// GetByID retrieves a user by row id.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail retrieves a staff account by its (case-insensitive) email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

// GetByUniqueID retrieves a user by the human-facing unique id.
func (r *UserRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE unique_id = UPPER($1)`, uniqueID))
}

// UniqueIDExists reports whether uniqueID is taken.
func (r *UserRepository) UniqueIDExists(ctx context.Context, uniqueID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE unique_id = $1)`, uniqueID,
	).Scan(&exists)
	return exists, err
}

// Create inserts a user. A taken email or unique id yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	var email *string
	if u.Email != "" {
		email = &u.Email
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (unique_id, name, email, password_hash, role, school_id, class_level)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		u.UniqueID, u.Name, email, u.PasswordHash, u.Role, u.SchoolID, u.ClassLevel,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return mapErr(err)
}

// CountByRole returns the number of accounts per role. An empty schoolID counts
// every school.
func (r *UserRepository) CountByRole(ctx context.Context, schoolID string) (map[model.Role]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role, COUNT(*) FROM users
		 WHERE ($1 = '' OR school_id = $1)
		 GROUP BY role`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.Role]int{}
	for rows.Next() {
		var role model.Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[role] = n
	}
	return counts, rows.Err()
}
