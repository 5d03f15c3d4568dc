package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smallbiznis/botgate/internal/crypto"
	"github.com/smallbiznis/botgate/internal/domain"
	"github.com/smallbiznis/botgate/internal/repository"
)

const sessionPrefix = "bot:session:"

// DefaultSessionTTL bounds how long a credential record lives in the store,
// independent of the OAuth token's own expiry.
const DefaultSessionTTL = 30 * time.Minute

// RedisSessionStore implements SessionStore with encrypted envelopes in Redis.
// Redis enforces the TTL; the store never reads expired records.
type RedisSessionStore struct {
	client redis.UniversalClient
	cipher *crypto.Cipher
	ttl    time.Duration
	logger *zap.Logger
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client redis.UniversalClient, cipher *crypto.Cipher, ttl time.Duration, logger *zap.Logger) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.L()
	}
	return &RedisSessionStore{client: client, cipher: cipher, ttl: ttl, logger: logger}
}

// SessionKey derives the deterministic storage key for an identity pair. A
// second create for the same pair lands on the same key and replaces it.
func SessionKey(userID, workspaceID string) string {
	return sessionPrefix + workspaceID + ":" + userID
}

type storedSession struct {
	Envelope  string    `json:"envelope"`
	CreatedAt time.Time `json:"created_at"`
}

// Create encrypts the token set and writes it with a fresh TTL.
func (s *RedisSessionStore) Create(ctx context.Context, userID, workspaceID string, tokens domain.TokenSet) (string, error) {
	key := SessionKey(userID, workspaceID)
	payload, err := s.seal(tokens)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return "", storeErr("persist session", err)
	}
	return key, nil
}

// Get loads and decrypts the record for the identity pair.
func (s *RedisSessionStore) Get(ctx context.Context, userID, workspaceID string) (*domain.CredentialRecord, error) {
	key := SessionKey(userID, workspaceID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("load session", err)
	}

	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Error("stored session is not valid JSON, treating as not found",
			zap.String("key", key), zap.Error(err))
		return nil, domain.ErrNotFound
	}

	plaintext, err := s.cipher.Decrypt(stored.Envelope)
	if err != nil {
		// Key rotation or data corruption. Reads as not-found so business
		// logic sends the user back through OAuth, but the operator needs to
		// see it.
		s.logger.Error("session envelope decryption failed, treating as not found",
			zap.String("key", key), zap.Error(err))
		return nil, domain.ErrNotFound
	}

	var tokens domain.TokenSet
	if err := json.Unmarshal([]byte(plaintext), &tokens); err != nil {
		s.logger.Error("decrypted session payload is not valid JSON, treating as not found",
			zap.String("key", key), zap.Error(err))
		return nil, domain.ErrNotFound
	}

	return &domain.CredentialRecord{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Tokens:      tokens,
		CreatedAt:   stored.CreatedAt,
	}, nil
}

// Extend resets the TTL without touching the stored envelope.
func (s *RedisSessionStore) Extend(ctx context.Context, userID, workspaceID string) (bool, error) {
	ok, err := s.client.Expire(ctx, SessionKey(userID, workspaceID), s.ttl).Result()
	if err != nil {
		return false, storeErr("extend session", err)
	}
	return ok, nil
}

// UpdateTokens overwrites the envelope in place with a fresh TTL. SET XX
// guarantees an update cannot create a record.
func (s *RedisSessionStore) UpdateTokens(ctx context.Context, userID, workspaceID string, tokens domain.TokenSet) (bool, error) {
	key := SessionKey(userID, workspaceID)
	payload, err := s.seal(tokens)
	if err != nil {
		return false, err
	}
	res, err := s.client.SetXX(ctx, key, payload, s.ttl).Result()
	if err != nil {
		return false, storeErr("update session", err)
	}
	return res, nil
}

// Delete removes the record.
func (s *RedisSessionStore) Delete(ctx context.Context, userID, workspaceID string) (bool, error) {
	n, err := s.client.Del(ctx, SessionKey(userID, workspaceID)).Result()
	if err != nil {
		return false, storeErr("delete session", err)
	}
	return n > 0, nil
}

// Exists checks for a record without decrypting it.
func (s *RedisSessionStore) Exists(ctx context.Context, userID, workspaceID string) (bool, error) {
	n, err := s.client.Exists(ctx, SessionKey(userID, workspaceID)).Result()
	if err != nil {
		return false, storeErr("check session", err)
	}
	return n > 0, nil
}

func (s *RedisSessionStore) seal(tokens domain.TokenSet) ([]byte, error) {
	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return nil, fmt.Errorf("marshal tokens: %w", err)
	}
	envelope, err := s.cipher.Encrypt(string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("encrypt tokens: %w", err)
	}
	payload, err := json.Marshal(storedSession{Envelope: envelope, CreatedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return payload, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
