package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/smallbiznis/botgate/internal/domain"
)

// TicketTTL bounds the lifetime of a dispatch ticket. Tickets are minted
// fresh per dispatch, so the window only needs to cover queue delivery.
const TicketTTL = 5 * time.Minute

// Minter issues audience-scoped identity tokens proving that a queue callback
// originated from this service.
type Minter interface {
	Mint(ctx context.Context, audience string) (*domain.DispatchTicket, error)
}

// JoseMinter signs dispatch tickets with a symmetric service key shared with
// the execution tier.
type JoseMinter struct {
	serviceAccount string
	signingKey     []byte
	now            func() time.Time
}

var _ Minter = (*JoseMinter)(nil)

// NewJoseMinter constructs a minter issuing tokens as serviceAccount.
func NewJoseMinter(serviceAccount string, signingKey []byte, now func() time.Time) (*JoseMinter, error) {
	if strings.TrimSpace(serviceAccount) == "" {
		return nil, fmt.Errorf("service account missing")
	}
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("signing key missing")
	}
	if now == nil {
		now = time.Now
	}
	return &JoseMinter{serviceAccount: serviceAccount, signingKey: signingKey, now: now}, nil
}

// Mint issues a fresh ticket scoped to the given audience URL.
func (m *JoseMinter) Mint(_ context.Context, audience string) (*domain.DispatchTicket, error) {
	if strings.TrimSpace(audience) == "" {
		return nil, fmt.Errorf("%w: audience missing", domain.ErrTicketMinting)
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: m.signingKey},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: new signer: %w", domain.ErrTicketMinting, err)
	}

	issuedAt := m.now().UTC()
	claims := gojwt.Claims{
		ID:        uuid.NewString(),
		Issuer:    m.serviceAccount,
		Subject:   m.serviceAccount,
		Audience:  gojwt.Audience{audience},
		IssuedAt:  gojwt.NewNumericDate(issuedAt),
		NotBefore: gojwt.NewNumericDate(issuedAt),
		Expiry:    gojwt.NewNumericDate(issuedAt.Add(TicketTTL)),
	}

	token, err := gojwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return nil, fmt.Errorf("%w: serialize: %w", domain.ErrTicketMinting, err)
	}

	return &domain.DispatchTicket{
		IdentityToken: token,
		Audience:      audience,
		IssuedAt:      issuedAt,
	}, nil
}

// VerifyTicket validates a ticket's signature, issuer, and audience. The
// execution tier runs this on every callback.
func VerifyTicket(token, serviceAccount, audience string, signingKey []byte, at time.Time) error {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return fmt.Errorf("parse ticket: %w", err)
	}

	var claims gojwt.Claims
	if err := parsed.Claims(signingKey, &claims); err != nil {
		return fmt.Errorf("verify ticket: %w", err)
	}

	if err := claims.ValidateWithLeeway(gojwt.Expected{
		Issuer:      serviceAccount,
		AnyAudience: gojwt.Audience{audience},
		Time:        at,
	}, 0); err != nil {
		return fmt.Errorf("validate ticket claims: %w", err)
	}
	return nil
}
