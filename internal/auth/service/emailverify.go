package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/walletgate/walletgate/internal/auth/domain"
	"github.com/walletgate/walletgate/internal/auth/mail"
	"github.com/walletgate/walletgate/internal/auth/store"
	"github.com/walletgate/walletgate/pkg/cryptox"
	"github.com/walletgate/walletgate/pkg/slogx"
)

const (
	// DefaultPendingTTL bounds how long a parked sign-in attempt waits for the
	// user to act before it is discarded.
	DefaultPendingTTL = time.Hour

	// DefaultLinkTTL is the redemption window for confirmation links. Links
	// for accounts that have never logged in are exempt so a slow first
	// registration is not bricked.
	DefaultLinkTTL = 24 * time.Hour

	pendingTokenBytes = 32
)

var (
	ErrPendingNotFound = errors.New("auth: pending sign-in not found or expired")
	ErrDuplicateEmail  = errors.New("auth: email already in use")
	ErrLinkInvalid     = errors.New("auth: verification link invalid or already used")
	ErrLinkExpired     = errors.New("auth: verification link expired")
	ErrUsernameTaken   = errors.New("auth: username already taken")
)

// IdentityProvisioner creates the account once email verification completes.
type IdentityProvisioner interface {
	ProvisionIdentity(ctx context.Context, address, ensName, email string) (domain.Identity, error)
}

// linkClaim couples an outstanding registration link with the pending
// attempt it completes.
type linkClaim struct {
	Link    domain.VerificationLink
	Pending domain.PendingRegistration
}

// EmailVerificationService runs the email detour of the sign-in flow: it
// parks verified wallet attempts, collects an email address, mails a
// single-use confirmation link, and finishes registration when the link is
// redeemed. Link integrity hashes are keyed by the server secret plus a
// per-registration secret minted when the link is created, so a link can
// never be forged or replayed across registrations.
type EmailVerificationService struct {
	Store       store.Store
	Provisioner IdentityProvisioner
	Mailer      mail.Mailer
	BaseURL     string

	// RequireUsername forces a username choice after confirmation when the
	// account would otherwise keep its synthesized name.
	RequireUsername bool

	secret     string
	pendingTTL time.Duration
	linkTTL    time.Duration

	pending        *ttlcache.Cache[string, domain.PendingRegistration]
	links          *ttlcache.Cache[string, linkClaim]
	usernameTokens *ttlcache.Cache[string, int64]

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewEmailVerificationService(st store.Store, provisioner IdentityProvisioner, mailer mail.Mailer, secret, baseURL string, pendingTTL, linkTTL time.Duration) *EmailVerificationService {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	if linkTTL <= 0 {
		linkTTL = DefaultLinkTTL
	}
	return &EmailVerificationService{
		Store:       st,
		Provisioner: provisioner,
		Mailer:      mailer,
		BaseURL:     baseURL,
		secret:      secret,
		pendingTTL:  pendingTTL,
		linkTTL:     linkTTL,

		pending:        ttlcache.New(ttlcache.WithTTL[string, domain.PendingRegistration](pendingTTL)),
		links:          ttlcache.New(ttlcache.WithTTL[string, linkClaim](linkTTL)),
		usernameTokens: ttlcache.New(ttlcache.WithTTL[string, int64](pendingTTL)),
	}
}

// Start launches the cache janitors. Stop with Stop.
func (s *EmailVerificationService) Start() {
	go s.pending.Start()
	go s.links.Start()
	go s.usernameTokens.Start()
}

func (s *EmailVerificationService) Stop() {
	s.pending.Stop()
	s.links.Stop()
	s.usernameTokens.Stop()
}

// StashPending parks a verified sign-in attempt and returns the opaque token
// the client uses to continue the flow. Only the token's fingerprint is
// logged; the raw value is a bearer credential.
func (s *EmailVerificationService) StashPending(ctx context.Context, pending domain.PendingRegistration) (string, error) {
	token, err := cryptox.GenerateToken(pendingTokenBytes)
	if err != nil {
		return "", fmt.Errorf("mint pending token: %w", err)
	}
	pending.Token = token
	s.pending.Set(token, pending, s.pendingTTL)

	slogx.FromContext(ctx).Info("sign-in attempt parked for email verification",
		"address", pending.Address, "token_fp", cryptox.FingerprintToken(token))
	return token, nil
}

// SubmitEmail attaches an email address to a parked attempt and mails the
// confirmation link. The attempt stays redeemable only through that link
// afterwards.
func (s *EmailVerificationService) SubmitEmail(ctx context.Context, token, email string) error {
	item := s.pending.Get(token)
	if item == nil || item.IsExpired() {
		return ErrPendingNotFound
	}
	pending := item.Value()

	_, err := s.Store.Identities().GetByEmail(ctx, email)
	if err == nil {
		return ErrDuplicateEmail
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check email: %w", err)
	}

	linkSecret, err := cryptox.GenerateToken(linkSecretBytes)
	if err != nil {
		return fmt.Errorf("mint link secret: %w", err)
	}
	pending.Email = email
	pending.LinkSecret = linkSecret

	link := domain.VerificationLink{IssuedAt: s.now()}
	link.Hash = s.linkHash(link, email, pending.Address, linkSecret)

	s.links.Set(link.Hash, linkClaim{Link: link, Pending: pending}, s.linkTTL)

	if err := s.sendConfirmation(ctx, email, link); err != nil {
		s.links.Delete(link.Hash)
		return err
	}

	// The token is spent; the flow continues through the mailed link.
	s.pending.Delete(token)

	slogx.FromContext(ctx).Info("verification link issued", "address", pending.Address)
	return nil
}

// ConfirmOutcome is the result of redeeming a confirmation link. When
// AwaitingUsername is set the flow is not signed in yet; the client must
// finish with SubmitUsername using UsernameToken.
type ConfirmOutcome struct {
	Identity         domain.Identity
	AwaitingUsername bool
	UsernameToken    string
}

// Confirm redeems a confirmation link. uid zero completes a pending
// registration; a positive uid re-confirms an existing account. A link is
// consumed only when every check passes, so a failed attempt does not burn
// it, and concurrent redeems complete at most once.
func (s *EmailVerificationService) Confirm(ctx context.Context, uid, timestamp int64, hash string) (ConfirmOutcome, error) {
	if uid > 0 {
		return s.confirmExisting(ctx, uid, timestamp, hash)
	}

	item := s.links.Get(hash)
	if item == nil || item.IsExpired() {
		return ConfirmOutcome{}, ErrLinkInvalid
	}
	claim := item.Value()

	if claim.Link.IssuedAt.Unix() != timestamp {
		return ConfirmOutcome{}, ErrLinkInvalid
	}
	expected := s.linkHash(claim.Link, claim.Pending.Email, claim.Pending.Address, claim.Pending.LinkSecret)
	if !cryptox.HMACEqual(hash, expected) {
		return ConfirmOutcome{}, ErrLinkInvalid
	}
	if s.now().Sub(claim.Link.IssuedAt) > s.linkTTL {
		return ConfirmOutcome{}, ErrLinkExpired
	}

	// Consume last. The loser of a concurrent redeem sees a miss here.
	if _, ok := s.links.GetAndDelete(hash); !ok {
		return ConfirmOutcome{}, ErrLinkInvalid
	}

	identity, err := s.Provisioner.ProvisionIdentity(ctx,
		claim.Pending.Address, claim.Pending.ENSName, claim.Pending.Email)
	if err != nil {
		return ConfirmOutcome{}, err
	}

	if s.RequireUsername && identity.ENSName == "" &&
		IsGeneratedUsername(identity.Username, identity.Address) && identity.NeverLoggedIn() {
		token, err := cryptox.GenerateToken(pendingTokenBytes)
		if err != nil {
			return ConfirmOutcome{}, fmt.Errorf("mint username token: %w", err)
		}
		s.usernameTokens.Set(token, identity.ID, s.pendingTTL)
		return ConfirmOutcome{Identity: identity, AwaitingUsername: true, UsernameToken: token}, nil
	}

	if err := s.Store.Identities().SetLastLogin(ctx, identity.ID, s.now()); err != nil {
		return ConfirmOutcome{}, fmt.Errorf("record login: %w", err)
	}

	slogx.FromContext(ctx).Info("email verified, registration complete",
		"identity_id", identity.ID)
	return ConfirmOutcome{Identity: identity}, nil
}

// confirmExisting validates a link bound to an already provisioned account,
/// used for one-time sign-in. These links are stateless: integrity comes from
// the hash keyed by the account's immutable link secret.
func (s *EmailVerificationService) confirmExisting(ctx context.Context, uid, timestamp int64, hash string) (ConfirmOutcome, error) {
	identity, err := s.Store.Identities().GetByID(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return ConfirmOutcome{}, ErrLinkInvalid
	}
	if err != nil {
		return ConfirmOutcome{}, fmt.Errorf("lookup identity: %w", err)
	}
	if identity.Blocked {
		return ConfirmOutcome{}, ErrAccountBlocked
	}

	link := domain.VerificationLink{UserID: uid, IssuedAt: time.Unix(timestamp, 0)}
	expected := s.linkHash(link, identity.Email, "", identity.LinkSecret)
	if !cryptox.HMACEqual(hash, expected) {
		return ConfirmOutcome{}, ErrLinkInvalid
	}

	// First-ever login links never time out; everything else does.
	if !identity.NeverLoggedIn() && s.now().Sub(link.IssuedAt) > s.linkTTL {
		return ConfirmOutcome{}, ErrLinkExpired
	}

	// Redeeming records a login, so a link issued at or before the last login
	// is spent. This is what makes the stateless links single use.
	if !identity.NeverLoggedIn() && !link.IssuedAt.After(*identity.LastLoginAt) {
		return ConfirmOutcome{}, ErrLinkInvalid
	}

	if err := s.Store.Identities().SetLastLogin(ctx, identity.ID, s.now()); err != nil {
		return ConfirmOutcome{}, fmt.Errorf("record login: %w", err)
	}
	return ConfirmOutcome{Identity: identity}, nil
}

// AccountLink mints a confirmation link for an existing account, valid
// against confirmExisting. Exposed for admin-triggered one-time sign-in.
func (s *EmailVerificationService) AccountLink(identity domain.Identity, at time.Time) domain.VerificationLink {
	link := domain.VerificationLink{UserID: identity.ID, IssuedAt: at}
	link.Hash = s.linkHash(link, identity.Email, "", identity.LinkSecret)
	return link
}

// SubmitUsername finishes a registration parked on the username step.
func (s *EmailVerificationService) SubmitUsername(ctx context.Context, token, username string) (domain.Identity, error) {
	if username == "" {
		return domain.Identity{}, ErrUsernameTaken
	}

	item := s.usernameTokens.Get(token)
	if item == nil || item.IsExpired() {
		return domain.Identity{}, ErrPendingNotFound
	}
	id := item.Value()

	err := s.Store.Identities().UpdateUsername(ctx, id, username)
	if errors.Is(err, store.ErrAlreadyExists) {
		// Keep the token alive so the user can pick another name.
		return domain.Identity{}, ErrUsernameTaken
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("update username: %w", err)
	}
	s.usernameTokens.Delete(token)

	if err := s.Store.Identities().SetLastLogin(ctx, id, s.now()); err != nil {
		return domain.Identity{}, fmt.Errorf("record login: %w", err)
	}

	identity, err := s.Store.Identities().GetByID(ctx, id)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("read identity: %w", err)
	}
	return identity, nil
}

func (s *EmailVerificationService) sendConfirmation(ctx context.Context, email string, link domain.VerificationLink) error {
	body := fmt.Sprintf(
		"Thanks for signing in with your Ethereum wallet.\n\n"+
			"Confirm your email address by following this link:\n\n"+
			"%s%s\n\n"+
			"The link can be used once and expires in %d hours. If you did not "+
			"request this, you can ignore this message.",
		s.BaseURL, link.Path(), int(s.linkTTL.Hours()))

	if err := s.Mailer.Send(ctx, email, "Confirm your email address", body); err != nil {
		return fmt.Errorf("send confirmation mail: %w", err)
	}
	return nil
}

func (s *EmailVerificationService) linkHash(link domain.VerificationLink, email, address, linkSecret string) string {
	return cryptox.HMACBase64(link.HashPayload(email, address), s.secret+":"+linkSecret)
}

func (s *EmailVerificationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
