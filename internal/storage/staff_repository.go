package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/serenovaspa/serenova/libs/db"
)

// StaffRepository stores portal staff credentials (bcrypt hashes, never raw
// passwords).
type StaffRepository struct {
	pool *db.Pool
}

func NewStaffRepository(pool *db.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

type StaffUser struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

func (r *StaffRepository) Create(ctx context.Context, email, name, passwordHash string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff_users (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
	`, id, email, name, passwordHash)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *StaffRepository) GetByEmail(ctx context.Context, email string) (StaffUser, error) {
	var u StaffUser
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM staff_users
		WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	return u, err
}
