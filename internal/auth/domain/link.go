package domain

import (
	"fmt"
	"strconv"
	"time"
)

// VerificationLink identifies a single-use email confirmation URL. UserID is
// zero while no account exists yet; the integrity hash then binds the link to
// the pending registration instead.
type VerificationLink struct {
	UserID   int64
	IssuedAt time.Time
	Hash     string
}

// HashPayload builds the string the link's HMAC is computed over:
// `issuedAt:userId:email[:address]`.
func (l VerificationLink) HashPayload(email, address string) string {
	payload := strconv.FormatInt(l.IssuedAt.Unix(), 10) + ":" + strconv.FormatInt(l.UserID, 10) + ":" + email
	if address != "" {
		payload += ":" + address
	}
	return payload
}

// Path returns the confirmation URL path segments.
func (l VerificationLink) Path() string {
	return fmt.Sprintf("/siwe/email/confirm/%d/%d/%s", l.UserID, l.IssuedAt.Unix(), l.Hash)
}
