package siwe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseError reports a structural problem in a SIWE message. The reason is
// logged server-side; clients only ever see a generic failure.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "siwe: malformed message: " + e.Reason
}

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// Parse splits a SIWE plaintext message into structured fields following the
// EIP-4361 grammar: a greeting line carrying the domain, the address line, a
// blank line, an optional statement line followed by a blank line, and then
// `Key: value` fields. Unknown fields are tolerated; missing required fields
// are not.
func Parse(text string) (*Message, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 5 {
		return nil, parseErrorf("message has %d lines, expected at least 5", len(lines))
	}

	msg := &Message{}

	domain, ok := strings.CutSuffix(lines[0], headerSuffix)
	if !ok || domain == "" {
		return nil, parseErrorf("greeting line %q does not match %q", lines[0], "<domain>"+headerSuffix)
	}
	msg.Domain = domain

	if !common.IsHexAddress(lines[1]) {
		return nil, parseErrorf("invalid address line %q", lines[1])
	}
	msg.Address = lines[1]

	if lines[2] != "" {
		return nil, parseErrorf("expected blank line after address, got %q", lines[2])
	}

	// Optional statement: a single non-blank line, then a mandatory blank
	// separator before the fields.
	i := 3
	if lines[i] != "" {
		msg.Statement = lines[i]
		i++
		if i >= len(lines) || lines[i] != "" {
			return nil, parseErrorf("expected blank line after statement")
		}
	}
	i++

	seen := map[string]bool{}
	for ; i < len(lines); i++ {
		line := lines[i]

		if line == "Resources:" {
			msg.Resources = parseResources(lines[i+1:])
			break
		}

		key, value, found := strings.Cut(line, ": ")
		if !found {
			return nil, parseErrorf("expected field line, got %q", line)
		}
		if seen[key] {
			return nil, parseErrorf("duplicate field %q", key)
		}
		seen[key] = true

		switch key {
		case "URI":
			msg.URI = value
		case "Version":
			msg.Version = value
		case "Chain ID":
			chainID, err := strconv.Atoi(value)
			if err != nil {
				return nil, parseErrorf("invalid chain id %q", value)
			}
			msg.ChainID = chainID
		case "Nonce":
			msg.Nonce = value
		case "Issued At":
			msg.IssuedAt = value
		case "Expiration Time":
			msg.ExpirationTime = value
		case "Not Before":
			msg.NotBefore = value
		case "Request ID":
			msg.RequestID = value
		default:
			// Unknown optional fields are tolerated.
		}
	}

	for _, required := range [...]struct{ name, value string }{
		{"URI", msg.URI},
		{"Version", msg.Version},
		{"Nonce", msg.Nonce},
		{"Issued At", msg.IssuedAt},
	} {
		if required.value == "" {
			return nil, parseErrorf("missing required field %q", required.name)
		}
	}
	if msg.ChainID == 0 {
		return nil, parseErrorf("missing required field %q", "Chain ID")
	}
	if _, err := msg.IssuedAtTime(); err != nil {
		return nil, parseErrorf("invalid Issued At %q", msg.IssuedAt)
	}
	if _, _, err := msg.ExpirationTimeTime(); err != nil {
		return nil, parseErrorf("invalid Expiration Time %q", msg.ExpirationTime)
	}
	if _, _, err := msg.NotBeforeTime(); err != nil {
		return nil, parseErrorf("invalid Not Before %q", msg.NotBefore)
	}

	return msg, nil
}

// parseResources collects `- <uri>` entries. Malformed entries are skipped
// rather than failing the whole message.
func parseResources(lines []string) []string {
	var resources []string
	for _, line := range lines {
		entry, ok := strings.CutPrefix(line, "- ")
		if !ok || entry == "" {
			continue
		}
		resources = append(resources, entry)
	}
	return resources
}
