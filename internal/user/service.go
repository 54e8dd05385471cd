package user

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"directchat/internal/token"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	store      Store
	tokens     *token.Service
	bcryptCost int
	logger     *zap.SugaredLogger
}

type ServiceOption func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) { s.bcryptCost = cost }
}

func NewService(store Store, tokens *token.Service, logger *zap.SugaredLogger, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers a user. Username and email are checked up front so the caller gets
// a precise conflict message; the storage constraint still guards concurrent signups.
func (s *Service) Signup(ctx context.Context, req *SignupRequest) (*User, error) {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, ErrValidation
	}
	if utf8.RuneCountInString(req.Username) > MaxUsernameLength || utf8.RuneCountInString(req.Email) > MaxEmailLength {
		return nil, ErrFieldTooLong
	}

	if err := ensureAbsent(s.store.FindByUsername(ctx, req.Username)); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	if err := ensureAbsent(s.store.FindByEmail(ctx, req.Email)); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.Create(ctx, req.Username, req.Email, string(hashedPwd))
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Registered user %s (%s)", u.Username, u.PublicID)
	return u, nil
}

func ensureAbsent(_ *User, err error) error {
	switch {
	case err == nil:
		return ErrConflict
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}

// Signin checks the password and issues a bearer token.
func (s *Service) Signin(ctx context.Context, req *SigninRequest) (string, *User, error) {
	if req.Username == "" || req.Password == "" {
		return "", nil, ErrValidation
	}

	u, err := s.store.FindByUsername(ctx, req.Username)
	if err != nil {
		return "", nil, err
	}

	if !u.VerifyPassword(req.Password) {
		return "", nil, ErrUnauthorized
	}

	tok, err := s.tokens.Issue(u.PublicID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	return tok, u, nil
}

// Authenticate resolves the user a bearer token was issued for. An invalid token and a
// token for a vanished user are both ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*User, error) {
	publicID, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, ErrUnauthorized
	}

	u, err := s.store.FindByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	return u, nil
}
