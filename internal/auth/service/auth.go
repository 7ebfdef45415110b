package service

import (
	"context"
	"fmt"
	"time"

	"github.com/walletgate/walletgate/internal/auth/domain"
)

// SignInResult is the outcome of a complete verification attempt. Token is
// set for StatusLogin and StatusCreated; PendingToken for StatusPendingEmail.
type SignInResult struct {
	Status       Status
	Identity     domain.Identity
	Token        string
	ExpiresAt    time.Time
	PendingToken string
}

// AuthService ties the sign-in pipeline together: challenge issuance, message
// validation, account reconciliation, and session minting.
type AuthService struct {
	Nonces     *NonceService
	Validator  *MessageValidator
	Reconciler *ReconcileService
	Sessions   *SessionService

	// ExpectedDomain pins the audience check to a fixed host. When empty the
	// host the request arrived on is used.
	ExpectedDomain string
}

func NewAuthService(nonces *NonceService, validator *MessageValidator, reconciler *ReconcileService, sessions *SessionService, expectedDomain string) *AuthService {
	return &AuthService{
		Nonces:         nonces,
		Validator:      validator,
		Reconciler:     reconciler,
		Sessions:       sessions,
		ExpectedDomain: expectedDomain,
	}
}

// Nonce issues a fresh single-use challenge.
func (s *AuthService) Nonce(ctx context.Context) (domain.Nonce, error) {
	return s.Nonces.Issue(ctx)
}

// Verify runs the full sign-in pipeline for a signed message.
func (s *AuthService) Verify(ctx context.Context, rawMessage, signature, address, requestHost string) (SignInResult, error) {
	expectedDomain := s.ExpectedDomain
	if expectedDomain == "" {
		expectedDomain = requestHost
	}

	result, err := s.Validator.Validate(ctx, rawMessage, signature, address, expectedDomain)
	if err != nil {
		return SignInResult{}, err
	}

	outcome, err := s.Reconciler.Reconcile(ctx, result)
	if err != nil {
		return SignInResult{}, err
	}

	if outcome.Status == StatusPendingEmail {
		return SignInResult{Status: StatusPendingEmail, PendingToken: outcome.PendingToken}, nil
	}

	token, expiresAt, err := s.Sessions.Mint(outcome.Identity)
	if err != nil {
		return SignInResult{}, fmt.Errorf("mint session: %w", err)
	}

	return SignInResult{
		Status:    outcome.Status,
		Identity:  outcome.Identity,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Session mints a session token outside the signature path, used when a flow
// completes through a verification link or the username step.
func (s *AuthService) Session(identity domain.Identity) (string, time.Time, error) {
	return s.Sessions.Mint(identity)
}
