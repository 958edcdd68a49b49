package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stratus-cloud/stratus/internal/authz"
)

// ErrNotFound marks an unknown or expired session token.
var ErrNotFound = errors.New("session: not found")

// Store keeps bearer-token sessions in Redis. Tokens are opaque UUIDs;
// the stored payload is the resolved principal.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

type sessionPayload struct {
	UserID int64    `json:"user_id"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) redisKey(token string) string {
	return "session:" + token
}

// Issue stores the principal under a fresh token and returns it.
func (s *Store) Issue(ctx context.Context, p authz.Principal) (string, error) {
	payload := sessionPayload{UserID: p.ID, Name: p.Name}
	for _, role := range p.Roles {
		payload.Roles = append(payload.Roles, role.String())
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("session: encode payload: %w", err)
	}
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.redisKey(token), raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("session: store token: %w", err)
	}
	return token, nil
}

// Resolve returns the principal for a live token and slides its expiry.
func (s *Store) Resolve(ctx context.Context, token string) (authz.Principal, error) {
	raw, err := s.client.Get(ctx, s.redisKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return authz.Principal{}, ErrNotFound
	}
	if err != nil {
		return authz.Principal{}, fmt.Errorf("session: load token: %w", err)
	}

	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return authz.Principal{}, fmt.Errorf("session: decode payload: %w", err)
	}
	p := authz.Principal{ID: payload.UserID, Name: payload.Name}
	for _, name := range payload.Roles {
		role, err := authz.ParseRole(name)
		if err != nil {
			return authz.Principal{}, fmt.Errorf("session: decode payload: %w", err)
		}
		p.Roles = append(p.Roles, role)
	}

	if err := s.client.Expire(ctx, s.redisKey(token), s.ttl).Err(); err != nil {
		return authz.Principal{}, fmt.Errorf("session: refresh token: %w", err)
	}
	return p, nil
}

// Revoke deletes the token. Revoking an unknown token is a no-op.
func (s *Store) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.redisKey(token)).Err(); err != nil {
		return fmt.Errorf("session: revoke token: %w", err)
	}
	return nil
}
