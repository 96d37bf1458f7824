package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// CookieName is the cookie that carries the session token.
	CookieName = "od_session"

	sessionKeyPrefix = "od:session:"
)

var (
	ErrInvalidSession  = errors.New("invalid session token")
	ErrSessionNotFound = errors.New("session not found")
)

// Principal is the authenticated user attached to a request.
type Principal struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Username  string
}

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Sessions issues signed session tokens and keeps the server-side record in
// Redis so logout can revoke a token before it expires.
type Sessions struct {
	store  sessionStore
	secret string
	ttl    time.Duration
}

// NewSessions constructs a session manager backed by Redis.
func NewSessions(client *redis.Client, secret string, ttl time.Duration) (*Sessions, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return newSessions(redisStore{client: client}, secret, ttl)
}

func newSessions(store sessionStore, secret string, ttl time.Duration) (*Sessions, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Sessions{store: store, secret: secret, ttl: ttl}, nil
}

// TTL is how long a session (and its cookie) stays valid.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Create starts a session for the user and returns the token to hand to the client.
func (s *Sessions) Create(ctx context.Context, userID uuid.UUID, username string) (string, *Principal, error) {
	p := &Principal{SessionID: uuid.New(), UserID: userID, Username: username}

	token, err := GenerateToken(s.secret, p.SessionID, p.UserID, p.Username, s.ttl)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}
	if err := s.store.Set(ctx, sessionKey(p.SessionID), encodeSession(p), s.ttl); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}
	return token, p, nil
}

// Resolve returns the principal for a token. It fails with ErrInvalidSession
// for tokens that do not verify and ErrSessionNotFound for revoked or expired
// sessions.
func (s *Sessions) Resolve(ctx context.Context, token string) (*Principal, error) {
	claims, err := ValidateToken(s.secret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	stored, err := s.store.Get(ctx, sessionKey(claims.SessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	userID, username, ok := decodeSession(stored)
	if !ok || userID != claims.UserID {
		return nil, ErrSessionNotFound
	}

	return &Principal{SessionID: claims.SessionID, UserID: userID, Username: username}, nil
}

// Revoke deletes the server-side record for token. Unverifiable tokens have
// nothing to revoke and are ignored.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	claims, err := ValidateToken(s.secret, token)
	if err != nil {
		return nil
	}
	if err := s.store.Del(ctx, sessionKey(claims.SessionID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func encodeSession(p *Principal) string {
	return p.UserID.String() + "|" + p.Username
}

func decodeSession(v string) (uuid.UUID, string, bool) {
	idStr, username, found := strings.Cut(v, "|")
	if !found {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, username, true
}

// redisStore adapts *redis.Client to sessionStore.
type redisStore struct {
	client *redis.Client
}

func (r redisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r redisStore) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r redisStore) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}
