package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/walletgate/walletgate/internal/auth/domain"
	"github.com/walletgate/walletgate/internal/auth/store"
	"github.com/walletgate/walletgate/pkg/cryptox"
	"github.com/walletgate/walletgate/pkg/slogx"
)

// PlaceholderEmailDomain hosts synthetic addresses for accounts created
// without a verified email. Nothing is ever delivered there.
const PlaceholderEmailDomain = "ethereum.local"

const linkSecretBytes = 32

var (
	ErrAccountBlocked       = errors.New("auth: account is blocked")
	ErrRegistrationDisabled = errors.New("auth: registration is disabled")
)

// Policy carries the operator-facing switches for the sign-in flow.
type Policy struct {
	AllowRegistration        bool
	RequireEmailVerification bool
	RequireENSOrUsername     bool
	EnableENSValidation      bool
}

// NameResolver forward-resolves an ENS name to its on-chain address. A false
// return means the name could not be resolved; resolution problems are never
// fatal to sign-in.
type NameResolver interface {
	Resolve(ctx context.Context, name string) (common.Address, bool)
}

// PendingStasher parks verification results that cannot complete sign-in yet
// and returns an opaque continuation token.
type PendingStasher interface {
	StashPending(ctx context.Context, pending domain.PendingRegistration) (string, error)
}

// Status describes how a verified wallet was reconciled with an account.
type Status int

const (
	// StatusLogin means an existing account was signed in.
	StatusLogin Status = iota
	// StatusCreated means a new account was provisioned and signed in.
	StatusCreated
	// StatusPendingEmail means sign-in is parked until the user submits and
	// confirms an email address.
	StatusPendingEmail
)

// Outcome is the result of reconciling a proven address with the account
// store. PendingToken is set only for StatusPendingEmail.
type Outcome struct {
	Status       Status
	Identity     domain.Identity
	PendingToken string
}

// ReconcileService maps a cryptographically proven wallet address onto a
// local account: finding it, creating it, or parking the attempt behind
// email verification, per the configured policy.
type ReconcileService struct {
	Store    store.Store
	Resolver NameResolver
	Pending  PendingStasher
	Policy   Policy
}

func NewReconcileService(st store.Store, resolver NameResolver, pending PendingStasher, policy Policy) *ReconcileService {
	return &ReconcileService{Store: st, Resolver: resolver, Pending: pending, Policy: policy}
}

// Reconcile turns a verification result into a signed-in (or pending)
// account. The ENS name claimed in the message is only kept when forward
// resolution maps it back to the proven address; any other case silently
// drops the claim.
func (s *ReconcileService) Reconcile(ctx context.Context, result domain.VerificationResult) (Outcome, error) {
	logger := slogx.FromContext(ctx)

	address := NormalizeAddress(result.Address)
	ensName := s.verifiedENSName(ctx, result.ENSName, address)

	identity, err := s.Store.Identities().GetByAddress(ctx, address)
	switch {
	case err == nil:
		if identity.Blocked {
			return Outcome{}, ErrAccountBlocked
		}
		identity, err = s.refreshENSName(ctx, identity, ensName)
		if err != nil {
			return Outcome{}, err
		}
		if err := s.Store.Identities().SetLastLogin(ctx, identity.ID, time.Now()); err != nil {
			return Outcome{}, fmt.Errorf("record login: %w", err)
		}
		return Outcome{Status: StatusLogin, Identity: identity}, nil

	case errors.Is(err, store.ErrNotFound):
		// fall through to registration

	default:
		return Outcome{}, fmt.Errorf("lookup identity: %w", err)
	}

	if !s.Policy.AllowRegistration {
		return Outcome{}, ErrRegistrationDisabled
	}

	if s.Policy.RequireEmailVerification {
		token, err := s.Pending.StashPending(ctx, domain.PendingRegistration{
			Address:    address,
			ENSName:    ensName,
			RawMessage: result.RawMessage,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("stash pending registration: %w", err)
		}
		return Outcome{Status: StatusPendingEmail, PendingToken: token}, nil
	}

	identity, err = s.ProvisionIdentity(ctx, address, ensName, "")
	if err != nil {
		return Outcome{}, err
	}
	if err := s.Store.Identities().SetLastLogin(ctx, identity.ID, time.Now()); err != nil {
		return Outcome{}, fmt.Errorf("record login: %w", err)
	}

	logger.Info("account created from wallet sign-in",
		"identity_id", identity.ID, "username", identity.Username)

	return Outcome{Status: StatusCreated, Identity: identity}, nil
}

// refreshENSName writes a freshly verified ENS name back to an existing
// identity and renames it when it still carries a synthesized or outdated
// name. A display-name collision keeps the old username; the verified name is
// recorded either way.
func (s *ReconcileService) refreshENSName(ctx context.Context, identity domain.Identity, ensName string) (domain.Identity, error) {
	if ensName == "" || identity.ENSName == ensName {
		return identity, nil
	}

	if err := s.Store.Identities().UpdateENSName(ctx, identity.ID, ensName); err != nil {
		return domain.Identity{}, fmt.Errorf("update ens name: %w", err)
	}
	previous := identity.ENSName
	identity.ENSName = ensName

	if identity.Username == ensName {
		return identity, nil
	}
	if !IsGeneratedUsername(identity.Username, identity.Address) && identity.Username != previous {
		// The user picked this name themselves; leave it alone.
		return identity, nil
	}

	err := s.Store.Identities().UpdateUsername(ctx, identity.ID, ensName)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		slogx.FromContext(ctx).Warn("verified name already taken as username",
			"identity_id", identity.ID, "name", ensName)
	case err != nil:
		return domain.Identity{}, fmt.Errorf("update username: %w", err)
	default:
		identity.Username = ensName
	}
	return identity, nil
}

// verifiedENSName returns the claimed name only when resolution is enabled
// and the name forward-resolves to the proven address.
func (s *ReconcileService) verifiedENSName(ctx context.Context, claimed, address string) string {
	if claimed == "" || !s.Policy.EnableENSValidation || s.Resolver == nil {
		return ""
	}

	resolved, ok := s.Resolver.Resolve(ctx, claimed)
	if !ok {
		return ""
	}
	if NormalizeAddress(resolved.Hex()) != address {
		slogx.FromContext(ctx).Warn("claimed name resolves to a different address",
			"name", claimed, "address", address)
		return ""
	}
	return claimed
}

// ProvisionIdentity provisions an account for a fresh wallet, with a
// placeholder email unless a verified one is supplied. A concurrent creation
// for the same address is benign: the loser re-reads the winner's row.
func (s *ReconcileService) ProvisionIdentity(ctx context.Context, address, ensName, email string) (domain.Identity, error) {
	username, err := s.GenerateUsername(ctx, address, ensName)
	if err != nil {
		return domain.Identity{}, err
	}
	if email == "" {
		email = PlaceholderEmail(address)
	}
	linkSecret, err := cryptox.GenerateToken(linkSecretBytes)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("mint link secret: %w", err)
	}

	id, err := s.Store.Identities().Create(ctx, domain.Identity{
		Username:   username,
		Email:      email,
		Address:    address,
		ENSName:    ensName,
		LinkSecret: linkSecret,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, readErr := s.Store.Identities().GetByAddress(ctx, address)
		if readErr != nil {
			return domain.Identity{}, fmt.Errorf("re-read after create race: %w", readErr)
		}
		if existing.Blocked {
			return domain.Identity{}, ErrAccountBlocked
		}
		return existing, nil
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("create identity: %w", err)
	}

	identity, err := s.Store.Identities().GetByID(ctx, id)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("read created identity: %w", err)
	}
	return identity, nil
}

// GenerateUsername synthesizes a unique display name. A verified ENS name is
// preferred; otherwise the first eight hex digits of the address, prefixed
// with eth_, with a numeric suffix on collision.
func (s *ReconcileService) GenerateUsername(ctx context.Context, address, ensName string) (string, error) {
	base := ensName
	if base == "" {
		base = "eth_" + strings.TrimPrefix(address, "0x")[:8]
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		_, err := s.Store.Identities().GetByUsername(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("check username %q: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}

// NormalizeAddress trims and lower-cases a hex address for storage and
// comparison.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// PlaceholderEmail derives the synthetic address used until the user verifies
// a real one.
func PlaceholderEmail(address string) string {
	return strings.TrimPrefix(NormalizeAddress(address), "0x")[:12] + "@" + PlaceholderEmailDomain
}

// IsGeneratedUsername reports whether username is still the synthesized
// eth_ name (with or without a collision suffix) for the given address.
func IsGeneratedUsername(username, address string) bool {
	base := "eth_" + strings.TrimPrefix(NormalizeAddress(address), "0x")[:8]
	if username == base {
		return true
	}
	rest, ok := strings.CutPrefix(username, base+"_")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
