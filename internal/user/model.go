package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrValidation   = errors.New("missing required fields")
	ErrConflict     = errors.New("user already exists")
	ErrNotFound     = errors.New("user not found")
	ErrUnauthorized = errors.New("invalid credentials")

	ErrFieldTooLong  = fmt.Errorf("username or email too long: %w", ErrValidation)
	ErrUsernameTaken = fmt.Errorf("username already exists: %w", ErrConflict)
	ErrEmailTaken    = fmt.Errorf("email already exists: %w", ErrConflict)
)

// Column widths of users.username and users.email, counted in characters.
const (
	MaxUsernameLength = 50
	MaxEmailLength    = 120
)

// User is a registered account. The password hash is unexported and has no getter;
// VerifyPassword is the only way to use it.
type User struct {
	ID        int64
	PublicID  string
	Username  string
	Email     string
	CreatedAt time.Time

	passwordHash string
}

// VerifyPassword reports whether password matches the stored hash.
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) == nil
}

// Public is the externally safe view of a user.
func (u *User) Public() PublicUser {
	return PublicUser{
		PublicID: u.PublicID,
		Username: u.Username,
		Email:    u.Email,
	}
}

type PublicUser struct {
	PublicID string `json:"public_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SigninRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignupResponse struct {
	Message string     `json:"message"`
	User    PublicUser `json:"user"`
}

type SigninResponse struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}

type ProfileResponse struct {
	User PublicUser `json:"user"`
}

// Store is the credential store contract.
type Store interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByPublicID(ctx context.Context, publicID string) (*User, error)
	Create(ctx context.Context, username, email, passwordHash string) (*User, error)
}

type contextKey string

const userKey contextKey = "user"

// NewContext returns a copy of ctx carrying u.
func NewContext(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// FromContext returns the user stored by NewContext.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok
}
