package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(clock *fakeClock) *Service {
	return NewService("test-secret", WithClock(clock.Now))
}

func TestIssueVerify(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestService(clock)

	tok, err := s.Issue("pub-123")
	require.NoError(t, err)

	publicID, err := s.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "pub-123", publicID)

	clock.t = clock.t.Add(23 * time.Hour)
	publicID, err = s.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "pub-123", publicID)
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestService(clock)

	tok, err := s.Issue("pub-123")
	require.NoError(t, err)

	clock.t = clock.t.Add(DefaultTTL + time.Second)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyCustomTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewService("test-secret", WithClock(clock.Now), WithTTL(time.Minute))

	tok, err := s.Issue("pub-123")
	require.NoError(t, err)

	clock.t = clock.t.Add(2 * time.Minute)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyTamperedSignature(t *testing.T) {
	s := NewService("test-secret")

	tok, err := s.Issue("pub-123")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	// the first signature character carries only significant bits
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = s.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsAlteredPaddingBits(t *testing.T) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	s := NewService("test-secret")

	tok, err := s.Issue("pub-123")
	require.NoError(t, err)

	// the last character of a 32-byte signature holds two unused low bits
	last := strings.IndexByte(alphabet, tok[len(tok)-1])
	require.GreaterOrEqual(t, last, 0)
	tampered := tok[:len(tok)-1] + string(alphabet[last^1])
	require.NotEqual(t, tok, tampered)

	_, err = s.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejects(t *testing.T) {
	now := time.Now()
	s := NewService("test-secret")

	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.jwt"},
		{
			name: "other secret",
			token: sign(jwt.SigningMethodHS256, []byte("other-secret"), Claims{
				PublicID:         "pub-123",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
			}),
		},
		{
			name: "other algorithm",
			token: sign(jwt.SigningMethodHS512, []byte("test-secret"), Claims{
				PublicID:         "pub-123",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
			}),
		},
		{
			name: "none algorithm",
			token: sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, Claims{
				PublicID:         "pub-123",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
			}),
		},
		{
			name: "missing public id",
			token: sign(jwt.SigningMethodHS256, []byte("test-secret"), Claims{
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
			}),
		},
		{
			name:  "missing expiry",
			token: sign(jwt.SigningMethodHS256, []byte("test-secret"), Claims{PublicID: "pub-123"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Verify(tt.token)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}
