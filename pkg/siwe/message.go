// Package siwe implements the Sign-In with Ethereum (EIP-4361) message
// format: parsing the plaintext challenge into structured fields, canonical
// serialization back to the signed form, and recovery of the signing address
// from an EIP-191 personal-sign signature.
package siwe

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// headerSuffix terminates the greeting line of every SIWE message.
	headerSuffix = " wants you to sign in with your Ethereum account:"

	// ensResourcePrefix marks a resource entry carrying a claimed ENS name.
	ensResourcePrefix = "ens:"
)

// Message is the structured form of a SIWE plaintext challenge. Timestamp
// fields keep their literal string form so that String() reproduces the
// signed payload byte-for-byte; use the *Time accessors for comparisons.
type Message struct {
	Domain    string
	Address   string
	Statement string
	URI       string
	Version   string
	ChainID   int
	Nonce     string

	IssuedAt       string
	ExpirationTime string // optional
	NotBefore      string // optional
	RequestID      string // optional

	Resources []string
}

// String renders the canonical EIP-4361 text form. Parsing the result yields
// an identical Message.
func (m *Message) String() string {
	lines := []string{
		m.Domain + headerSuffix,
		m.Address,
		"",
	}

	if m.Statement != "" {
		lines = append(lines, m.Statement)
	}
	lines = append(lines, "")

	lines = append(lines,
		"URI: "+m.URI,
		"Version: "+m.Version,
		"Chain ID: "+strconv.Itoa(m.ChainID),
		"Nonce: "+m.Nonce,
		"Issued At: "+m.IssuedAt,
	)

	if m.ExpirationTime != "" {
		lines = append(lines, "Expiration Time: "+m.ExpirationTime)
	}
	if m.NotBefore != "" {
		lines = append(lines, "Not Before: "+m.NotBefore)
	}
	if m.RequestID != "" {
		lines = append(lines, "Request ID: "+m.RequestID)
	}
	if len(m.Resources) > 0 {
		lines = append(lines, "Resources:")
		for _, res := range m.Resources {
			lines = append(lines, "- "+res)
		}
	}

	return strings.Join(lines, "\n")
}

// ClaimedENSName returns the ENS name carried in the resources list via the
// `ens:<name>` pseudo-URI convention, or "" if none is present. The name is a
// claim only; callers must forward-resolve it before trusting it.
func (m *Message) ClaimedENSName() string {
	for _, res := range m.Resources {
		if name, ok := strings.CutPrefix(res, ensResourcePrefix); ok && name != "" {
			return name
		}
	}
	return ""
}

// IssuedAtTime parses the Issued At field.
func (m *Message) IssuedAtTime() (time.Time, error) {
	return parseTimestamp(m.IssuedAt)
}

// ExpirationTimeTime parses the optional Expiration Time field. The bool is
// false when the field is absent.
func (m *Message) ExpirationTimeTime() (time.Time, bool, error) {
	if m.ExpirationTime == "" {
		return time.Time{}, false, nil
	}
	t, err := parseTimestamp(m.ExpirationTime)
	return t, err == nil, err
}

// NotBeforeTime parses the optional Not Before field. The bool is false when
// the field is absent.
func (m *Message) NotBeforeTime() (time.Time, bool, error) {
	if m.NotBefore == "" {
		return time.Time{}, false, nil
	}
	t, err := parseTimestamp(m.NotBefore)
	return t, err == nil, err
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("siwe: invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
