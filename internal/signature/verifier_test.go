package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestVerifier_AcceptsValidSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewVerifier("shhh", WithClock(fixedClock(now)))

	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"type":"event_callback","event":{"type":"app_mention"}}`)

	require.True(t, v.Verify(ts, body, Sign("shhh", ts, body)))
}

func TestVerifier_KnownVector(t *testing.T) {
	// Signature over body {"x":1} at timestamp T with secret "s" must equal
	// "v0=" + hex(HMAC_SHA256("s", "v0:T:{\"x\":1}")).
	const secret = "s"
	const ts = "1700000000"
	body := []byte(`{"x":1}`)

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	require.Equal(t, expected, Sign(secret, ts, body))

	v := NewVerifier(secret, WithClock(fixedClock(time.Unix(1_700_000_000, 0))))
	require.True(t, v.Verify(ts, body, expected))
	require.False(t, v.Verify(ts, []byte(`{"x":2}`), expected))
}

func TestVerifier_ReplayWindow(t *testing.T) {
	signedAt := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(signedAt.Unix(), 10)
	body := []byte("payload")
	sig := Sign("shhh", ts, body)

	inside := NewVerifier("shhh", WithClock(fixedClock(signedAt.Add(299*time.Second))))
	require.True(t, inside.Verify(ts, body, sig))

	outside := NewVerifier("shhh", WithClock(fixedClock(signedAt.Add(301*time.Second))))
	require.False(t, outside.Verify(ts, body, sig))

	// Timestamps from the future are bounded the same way.
	future := NewVerifier("shhh", WithClock(fixedClock(signedAt.Add(-301*time.Second))))
	require.False(t, future.Verify(ts, body, sig))
}

func TestVerifier_RejectsBadInput(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewVerifier("shhh", WithClock(fixedClock(now)))
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte("payload")
	sig := Sign("shhh", ts, body)

	require.False(t, v.Verify("not-a-number", body, sig))
	require.False(t, v.Verify(ts, body, ""))
	require.False(t, v.Verify(ts, body, sig[:len(sig)-2]))
	require.False(t, v.Verify(ts, body, Sign("wrong", ts, body)))
	require.False(t, v.Verify(ts, append(body, 'x'), sig))
}

func TestVerifier_CustomWindow(t *testing.T) {
	signedAt := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(signedAt.Unix(), 10)
	sig := Sign("shhh", ts, nil)

	v := NewVerifier("shhh",
		WithReplayWindow(time.Minute),
		WithClock(fixedClock(signedAt.Add(90*time.Second))),
	)
	require.False(t, v.Verify(ts, nil, sig))
}
