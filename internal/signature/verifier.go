package signature

import (
	"strconv"
	"time"

	"github.com/smallbiznis/botgate/internal/crypto"
)

// Version is the signature scheme prefix expected on inbound webhooks.
const Version = "v0"

// DefaultReplayWindow bounds how far a request timestamp may drift from the
// verifier's clock in either direction.
const DefaultReplayWindow = 5 * time.Minute

// Verifier decides whether an inbound webhook is authentic and fresh. It is a
// pure predicate; HTTP status mapping and logging belong to the caller.
type Verifier struct {
	secret string
	window time.Duration
	now    func() time.Time
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithReplayWindow overrides the replay window.
func WithReplayWindow(window time.Duration) Option {
	return func(v *Verifier) {
		if window > 0 {
			v.window = window
		}
	}
}

// WithClock injects the time source. Production uses the wall clock; tests
// pin it.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier constructs a verifier over the shared signing secret.
func NewVerifier(signingSecret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret: signingSecret,
		window: DefaultReplayWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify reports whether signature is a valid HMAC over timestamp and the
// literal raw request body. body must be the exact bytes read off the wire;
// verifying a re-serialized copy produces false rejections.
func (v *Verifier) Verify(timestamp string, body []byte, signature string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	drift := v.now().Unix() - ts
	if drift < 0 {
		drift = -drift
	}
	if float64(drift) > v.window.Seconds() {
		return false
	}

	expected := Sign(v.secret, timestamp, body)
	return crypto.ConstantTimeEqual(expected, signature)
}

// Sign computes the signature a trusted sender would attach for the given
// timestamp and body. Used by tests and by outbound callback verification.
func Sign(signingSecret, timestamp string, body []byte) string {
	base := Version + ":" + timestamp + ":" + string(body)
	return Version + "=" + crypto.SignHMAC(base, signingSecret)
}
