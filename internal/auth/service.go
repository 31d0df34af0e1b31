package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-promo/atlas-promo/internal/shared"
)

const sessionKeyPrefix = "auth:session:"

// RepositoryPort defines data access methods for auth.
type RepositoryPort interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// Service verifies credentials and manages bearer token sessions in Redis.
type Service struct {
	repo  RepositoryPort
	redis *redis.Client
	ttl   time.Duration
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, client *redis.Client, ttl time.Duration) *Service {
	return &Service{repo: repo, redis: client, ttl: ttl}
}

type sessionPayload struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// Login verifies the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", shared.ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", shared.ErrInvalidCredentials
	}

	token := uuid.NewString()
	payload, err := json.Marshal(sessionPayload{UserID: user.ID, Email: user.Email})
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, sessionKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store session: %w", err)
	}
	return token, nil
}

// Resolve maps a bearer token to the caller identity.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Identity, error) {
	if token == "" {
		return shared.Identity{}, shared.ErrUnauthenticated
	}
	raw, err := s.redis.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return shared.Identity{}, shared.ErrUnauthenticated
	}
	if err != nil {
		return shared.Identity{}, err
	}
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return shared.Identity{}, shared.ErrUnauthenticated
	}
	return shared.Identity{UserID: payload.UserID, Email: payload.Email}, nil
}

// Logout revokes a bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.redis.Del(ctx, sessionKeyPrefix+token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
