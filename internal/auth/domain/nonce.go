package domain

import "time"

// Nonce is a single-use random challenge value. It is created on request,
// consumed exactly once on successful verification, and expires otherwise.
type Nonce struct {
	Value    string // hex-encoded, 16 bytes of entropy
	IssuedAt time.Time
	ExpireAt time.Time
}
