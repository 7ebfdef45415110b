package store

import (
	"context"
	"errors"
	"time"

	"github.com/walletgate/walletgate/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the identity-provider contract the auth core depends on. Any
// durable backend satisfies it; the sqlite driver under drivers/ is the
// default. The core deliberately owns no entity schema beyond this interface.
type Store interface {
	Identities() Identities

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is still reachable.
	Ping(ctx context.Context) error
}

// Identities is the account repository. Concurrent find-or-create races are
// resolved by the backend's uniqueness constraint on the normalized address:
// the losing Create returns ErrAlreadyExists and callers re-read.
type Identities interface {
	// GetByID returns an identity by numeric id.
	GetByID(ctx context.Context, id int64) (domain.Identity, error)

	// GetByAddress looks up by normalized (lower-case) Ethereum address.
	GetByAddress(ctx context.Context, address string) (domain.Identity, error)

	// GetByUsername is used for collision checks during username synthesis.
	GetByUsername(ctx context.Context, username string) (domain.Identity, error)

	// GetByEmail is used to reject duplicate emails before any state change.
	GetByEmail(ctx context.Context, email string) (domain.Identity, error)

	// Create inserts a new identity and returns its assigned id.
	Create(ctx context.Context, identity domain.Identity) (int64, error)

	// UpdateUsername changes the display name and bumps updated_at.
	UpdateUsername(ctx context.Context, id int64, username string) error

	// UpdateEmail changes the email and bumps updated_at.
	UpdateEmail(ctx context.Context, id int64, email string) error

	// UpdateENSName records the most recently verified ENS name.
	UpdateENSName(ctx context.Context, id int64, ensName string) error

	// SetLastLogin records a completed login.
	SetLastLogin(ctx context.Context, id int64, at time.Time) error

	// SetBlocked flips the account's blocked flag.
	SetBlocked(ctx context.Context, id int64, blocked bool) error

	// DeleteNeverActivated removes accounts created before cutoff that have
	// never logged in and still carry a placeholder email. Housekeeping only.
	DeleteNeverActivated(ctx context.Context, cutoff time.Time, placeholderDomain string) (int64, error)
}
