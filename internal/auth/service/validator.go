package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/walletgate/walletgate/internal/auth/domain"
	"github.com/walletgate/walletgate/pkg/siwe"
	"github.com/walletgate/walletgate/pkg/slogx"
)

// DefaultMessageTTL caps the age of a message that carries no Expiration Time.
const DefaultMessageTTL = 10 * time.Minute

var (
	ErrMalformedMessage  = errors.New("auth: malformed sign-in message")
	ErrDomainMismatch    = errors.New("auth: message domain mismatch")
	ErrNonceInvalid      = errors.New("auth: nonce invalid or already used")
	ErrTimeWindow        = errors.New("auth: message outside its validity window")
	ErrSignatureMismatch = errors.New("auth: signature does not match address")
)

// NonceConsumer redeems a previously issued login nonce.
type NonceConsumer interface {
	Consume(ctx context.Context, value string) bool
}

// MessageValidator checks a signed sign-in message end to end: grammar,
// audience, nonce, time window, and signature. Checks run strictly in that
// order, and the nonce is consumed before the signature is examined so a
// failed attempt still burns its nonce.
type MessageValidator struct {
	Nonces     NonceConsumer
	MessageTTL time.Duration

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewMessageValidator(nonces NonceConsumer, messageTTL time.Duration) *MessageValidator {
	if messageTTL <= 0 {
		messageTTL = DefaultMessageTTL
	}
	return &MessageValidator{Nonces: nonces, MessageTTL: messageTTL}
}

// Validate runs the full check sequence and returns the proven address plus
// any ENS name the message claims. The claim is unverified at this point.
func (v *MessageValidator) Validate(ctx context.Context, rawMessage, signature, claimedAddress, expectedDomain string) (domain.VerificationResult, error) {
	logger := slogx.FromContext(ctx)

	msg, err := siwe.Parse(rawMessage)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	// Audience check is case-sensitive on purpose: the message is bound to
	// the exact host the client was served from.
	if msg.Domain != expectedDomain {
		logger.Warn("sign-in domain mismatch",
			"got", msg.Domain, "want", expectedDomain)
		return domain.VerificationResult{}, ErrDomainMismatch
	}

	if !v.Nonces.Consume(ctx, msg.Nonce) {
		return domain.VerificationResult{}, ErrNonceInvalid
	}

	if err := v.checkTimeWindow(msg); err != nil {
		return domain.VerificationResult{}, err
	}

	sig, err := siwe.ParseSignature(signature)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}
	recovered, err := siwe.RecoverAddress(rawMessage, sig)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}

	// Three-way match: recovered signer, address supplied alongside the
	// request, and address embedded in the message must all agree.
	recoveredHex := strings.ToLower(recovered.Hex())
	if recoveredHex != strings.ToLower(claimedAddress) ||
		recoveredHex != strings.ToLower(msg.Address) {
		return domain.VerificationResult{}, ErrSignatureMismatch
	}

	return domain.VerificationResult{
		Address:    recoveredHex,
		ENSName:    msg.ClaimedENSName(),
		RawMessage: rawMessage,
		Signature:  signature,
	}, nil
}

func (v *MessageValidator) checkTimeWindow(msg *siwe.Message) error {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	issuedAt, err := msg.IssuedAtTime()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if now.Before(issuedAt) {
		return ErrTimeWindow
	}

	if exp, ok, err := msg.ExpirationTimeTime(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	} else if ok {
		if now.After(exp) {
			return ErrTimeWindow
		}
	} else if now.Sub(issuedAt) > v.MessageTTL {
		// No explicit expiry; cap message age ourselves.
		return ErrTimeWindow
	}

	if nbf, ok, err := msg.NotBeforeTime(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	} else if ok && now.Before(nbf) {
		return ErrTimeWindow
	}

	return nil
}
