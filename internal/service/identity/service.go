// Package identity resolves requests to an authenticated user or a
// guest cart key, and issues the tokens that carry that identity.
package identity

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"cocart-replica/internal/domain"
	userrepo "cocart-replica/internal/repository/user"
)

var errInvalidToken = errors.New("invalid token")

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Service struct {
	users     userrepo.Repository
	secretKey []byte
	tokenTTL  time.Duration
}

func New(users userrepo.Repository, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		users:     users,
		secretKey: []byte(secret),
		tokenTTL:  tokenTTL,
	}
}

// Authenticate verifies credentials and issues a signed token. Wrong
// email and wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", domain.ErrUnauthorized
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", domain.ErrUnauthorized
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

// ResolveToken validates a bearer token and returns the user id it
// identifies.
func (s *Service) ResolveToken(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid {
		return 0, domain.ErrUnauthorized
	}
	c, ok := token.Claims.(*claims)
	if !ok {
		return 0, domain.ErrUnauthorized
	}
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, domain.ErrUnauthorized
	}
	return userID, nil
}

// HashPassword is used by seeding and account creation.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
