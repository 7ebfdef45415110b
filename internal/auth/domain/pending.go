package domain

import "time"

// PendingRegistration is the transient state of a sign-in attempt routed
// through the email-verification detour. It is keyed by an opaque token,
// completed at most once, and superseded by any fresh attempt for the same
// address.
type PendingRegistration struct {
	Token      string
	Address    string
	Email      string // set once collected
	ENSName    string // claimed ENS name carried from the SIWE message
	RawMessage string

	// LinkSecret is minted when the verification link is created and keys the
	// link's integrity hash together with the server secret. It never changes
	// for the lifetime of the registration, so the hash stays verifiable even
	// if account credentials are later regenerated.
	LinkSecret string

	CreatedAt time.Time
}
