package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"directchat/internal/db"

	"github.com/google/uuid"
)

const selectUser = "SELECT id, public_id, username, email, password_hash, created_at FROM users"

type Repository struct {
	db *db.Database
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database}
}

// Create inserts a user with a fresh public id. A UNIQUE violation maps to ErrConflict.
func (r *Repository) Create(ctx context.Context, username, email, passwordHash string) (*User, error) {
	u := &User{
		PublicID:     uuid.NewString(),
		Username:     username,
		Email:        email,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		passwordHash: passwordHash,
	}

	query := r.db.Rebind("INSERT INTO users (public_id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
	err := r.db.Conn.QueryRowContext(ctx, query, u.PublicID, u.Username, u.Email, u.passwordHash, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.findOne(ctx, selectUser+" WHERE id = ?", id)
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, selectUser+" WHERE username = ?", username)
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, selectUser+" WHERE email = ?", email)
}

func (r *Repository) FindByPublicID(ctx context.Context, publicID string) (*User, error) {
	return r.findOne(ctx, selectUser+" WHERE public_id = ?", publicID)
}

func (r *Repository) findOne(ctx context.Context, query string, arg interface{}) (*User, error) {
	u := &User{}
	err := r.db.Conn.QueryRowContext(ctx, r.db.Rebind(query), arg).
		Scan(&u.ID, &u.PublicID, &u.Username, &u.Email, &u.passwordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	return u, nil
}
