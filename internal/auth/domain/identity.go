package domain

import "time"

// Identity is a local account keyed by a normalized (lower-cased) Ethereum
// address. Exactly one identity exists per normalized address; the store
// enforces this with a uniqueness constraint.
type Identity struct {
	ID       int64
	Username string
	Email    string
	Address  string // normalized: lower-case, trimmed, 0x-prefixed
	ENSName  string // last verified ENS name, may be empty
	Blocked  bool

	// LinkSecret is an immutable per-account secret minted at creation. It
	// keys verification-link HMACs so a link cannot be forged and stops
	// validating if the account is replaced.
	LinkSecret string

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NeverLoggedIn reports whether the account has completed a login. First-ever
// verification links for such accounts do not expire.
func (i Identity) NeverLoggedIn() bool {
	return i.LastLoginAt == nil || i.LastLoginAt.IsZero()
}
