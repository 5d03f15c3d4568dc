package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/botgate/internal/crypto"
	"github.com/smallbiznis/botgate/internal/domain"
)

func newStoreHarness(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cipher, err := crypto.NewCipher(key)
	require.NoError(t, err)

	return NewRedisSessionStore(client, cipher, 30*time.Minute, zap.NewNop()), mr
}

func sampleTokens(expiresAt *time.Time) domain.TokenSet {
	return domain.TokenSet{
		AccessToken:  "a1",
		RefreshToken: "r1",
		ExpiresAt:    expiresAt,
		Scope:        "chat:write",
	}
}

func TestRedisSessionStore_CreateAndGet(t *testing.T) {
	store, _ := newStoreHarness(t)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	key, err := store.Create(ctx, "U1", "W1", sampleTokens(&expiry))
	require.NoError(t, err)
	require.Equal(t, "bot:session:W1:U1", key)

	rec, err := store.Get(ctx, "U1", "W1")
	require.NoError(t, err)
	require.Equal(t, "a1", rec.Tokens.AccessToken)
	require.Equal(t, "r1", rec.Tokens.RefreshToken)
	require.Equal(t, "chat:write", rec.Tokens.Scope)
	require.NotNil(t, rec.Tokens.ExpiresAt)
	require.True(t, expiry.Equal(*rec.Tokens.ExpiresAt))
	require.Equal(t, "U1", rec.UserID)
	require.Equal(t, "W1", rec.WorkspaceID)
}

func TestRedisSessionStore_SecretsNotStoredInPlaintext(t *testing.T) {
	store, mr := newStoreHarness(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "U1", "W1", sampleTokens(nil))
	require.NoError(t, err)

	raw, err := mr.Get("bot:session:W1:U1")
	require.NoError(t, err)
	require.NotContains(t, raw, "a1")
	require.NotContains(t, raw, "r1")

	var stored storedSession
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.NotEmpty(t, stored.Envelope)
}

func TestRedisSessionStore_TTLSemantics(t *testing.T) {
	store, mr := newStoreHarness(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "U1", "W1", sampleTokens(nil))
	require.NoError(t, err)

	mr.FastForward(29 * time.Minute)
	_, err = store.Get(ctx, "U1", "W1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "U1", "W1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisSessionStore_Extend(t *testing.T) {
	store, mr := newStoreHarness(t)
	ctx := context.Background()

	ok, err := store.Extend(ctx, "U1", "W1")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Create(ctx, "U1", "W1", sampleTokens(nil))
	require.NoError(t, err)

	mr.FastForward(20 * time.Minute)
	ok, err = store.Extend(ctx, "U1", "W1")
	require.NoError(t, err)
	require.True(t, ok)

	// 25 minutes past the extend; without it the record would be gone.
	mr.FastForward(25 * time.Minute)
	_, err = store.Get(ctx, "U1", "W1")
	require.NoError(t, err)
}

func TestRedisSessionStore_UpdateCannotCreate(t *testing.T) {
	store, _ := newStoreHarness(t)
	ctx := context.Background()

	ok, err := store.UpdateTokens(ctx, "U1", "W1", sampleTokens(nil))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Get(ctx, "U1", "W1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisSessionStore_UpdateOverwritesAndRefreshesTTL(t *testing.T) {
	store, mr := newStoreHarness(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "U1", "W1", sampleTokens(nil))
	require.NoError(t, err)

	mr.FastForward(20 * time.Minute)
	updated := sampleTokens(nil)
	updated.AccessToken = "a2"
	ok, err := store.UpdateTokens(ctx, "U1", "W1", updated)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(20 * time.Minute)
	rec, err := store.Get(ctx, "U1", "W1")
	require.NoError(t, err)
	require.Equal(t, "a2", rec.Tokens.AccessToken)
}

func TestRedisSessionStore_CreateReplacesPriorRecord(t *testing.T) {
	store, _ := newStoreHarness(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "U1", "W1", sampleTokens(nil))
	require.NoError(t, err)

	replacement := sampleTokens(nil)
	replacement.AccessToken = "a2"
	replacement.RefreshToken = ""
	_, err = store.Create(ctx, "U1", "W1", replacement)
	require.NoError(t, err)

	rec, err := store.Get(ctx, "U1", "W1")
	require.NoError(t, err)
	require.Equal(t, "a2", rec.Tokens.AccessToken)
	require.Empty(t, rec.Tokens.RefreshToken)
}

func TestRedisSessionStore_DeleteAndExists(t *testing.T) {
	store, _ := newStoreHarness(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "U1", "W1")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Create(ctx, "U1", "W1", sampleTokens(nil))
	require.NoError(t, err)

	ok, err = store.Exists(ctx, "U1", "W1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Delete(ctx, "U1", "W1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Delete(ctx, "U1", "W1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisSessionStore_DecryptFailureReadsAsNotFound(t *testing.T) {
	store, mr := newStoreHarness(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "U1", "W1", sampleTokens(nil))
	require.NoError(t, err)

	// Simulate a key rotation: rewrite the stored envelope under another key.
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherCipher, err := crypto.NewCipher(otherKey)
	require.NoError(t, err)
	envelope, err := otherCipher.Encrypt(`{"access_token":"a1"}`)
	require.NoError(t, err)
	payload, err := json.Marshal(storedSession{Envelope: envelope, CreatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, mr.Set("bot:session:W1:U1", string(payload)))

	_, err = store.Get(ctx, "U1", "W1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisSessionStore_StoreUnavailable(t *testing.T) {
	store, mr := newStoreHarness(t)
	ctx := context.Background()
	mr.Close()

	_, err := store.Create(ctx, "U1", "W1", sampleTokens(nil))
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = store.Get(ctx, "U1", "W1")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = store.Exists(ctx, "U1", "W1")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
