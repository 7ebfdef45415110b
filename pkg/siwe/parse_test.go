package siwe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testAddress = "0x9D85ca56217D2c4269D6bE22C6B7e0f18E432802"

func sampleMessage() *Message {
	return &Message{
		Domain:    "example.com",
		Address:   testAddress,
		Statement: "Sign in with Ethereum to the app.",
		URI:       "https://example.com",
		Version:   "1",
		ChainID:   1,
		Nonce:     "32891756fa12d0c3a9b7e61f",
		IssuedAt:  "2025-03-14T09:26:53Z",
		Resources: []string{"ens:alice.eth", "https://example.com/terms"},
	}
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	t.Run("full message", func(t *testing.T) {
		msg := sampleMessage()
		msg.ExpirationTime = "2025-03-14T10:26:53Z"
		msg.NotBefore = "2025-03-14T09:00:00Z"
		msg.RequestID = "req-123"

		parsed, err := Parse(msg.String())
		require.NoError(t, err)
		require.Equal(t, msg, parsed)
	})

	t.Run("no statement", func(t *testing.T) {
		msg := sampleMessage()
		msg.Statement = ""

		parsed, err := Parse(msg.String())
		require.NoError(t, err)
		require.Equal(t, msg, parsed)
	})

	t.Run("no resources", func(t *testing.T) {
		msg := sampleMessage()
		msg.Resources = nil

		parsed, err := Parse(msg.String())
		require.NoError(t, err)
		require.Equal(t, msg, parsed)
	})

	t.Run("fractional-second timestamps survive", func(t *testing.T) {
		msg := sampleMessage()
		msg.IssuedAt = "2025-03-14T09:26:53.000Z"

		parsed, err := Parse(msg.String())
		require.NoError(t, err)
		require.Equal(t, "2025-03-14T09:26:53.000Z", parsed.IssuedAt)
		require.Equal(t, msg.String(), parsed.String())
	})
}

func TestParseToleratesUnknownFields(t *testing.T) {
	t.Parallel()

	text := sampleMessage().String()
	text = strings.Replace(text, "Issued At:", "X-Custom: something\nIssued At:", 1)

	parsed, err := Parse(text)
	require.NoError(t, err)
	require.Equal(t, "32891756fa12d0c3a9b7e61f", parsed.Nonce)
}

func TestParseSkipsMalformedResources(t *testing.T) {
	t.Parallel()

	msg := sampleMessage()
	text := msg.String() + "\nnot-a-resource-entry\n- https://example.com/more"

	parsed, err := Parse(text)
	require.NoError(t, err)
	require.Equal(t,
		[]string{"ens:alice.eth", "https://example.com/terms", "https://example.com/more"},
		parsed.Resources,
	)
}

func TestParseRejectsMalformedMessages(t *testing.T) {
	t.Parallel()

	base := sampleMessage()

	cases := map[string]string{
		"empty message":          "",
		"bad greeting":           strings.Replace(base.String(), "wants you to sign in", "asks you to sign in", 1),
		"bad address":            strings.Replace(base.String(), testAddress, "0xnothex", 1),
		"missing nonce":          strings.Replace(base.String(), "Nonce: 32891756fa12d0c3a9b7e61f\n", "", 1),
		"bad chain id":           strings.Replace(base.String(), "Chain ID: 1", "Chain ID: mainnet", 1),
		"bad issued at":          strings.Replace(base.String(), "2025-03-14T09:26:53Z", "last tuesday", 1),
		"duplicate field":        strings.Replace(base.String(), "Version: 1", "Version: 1\nVersion: 2", 1),
		"no blank after address": strings.Replace(base.String(), ":\n"+testAddress+"\n\n", ":\n"+testAddress+"\n", 1),
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(text)
			require.Error(t, err)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			require.NotEmpty(t, parseErr.Reason)
		})
	}
}

func TestClaimedENSName(t *testing.T) {
	t.Parallel()

	msg := sampleMessage()
	require.Equal(t, "alice.eth", msg.ClaimedENSName())

	msg.Resources = []string{"https://example.com/terms"}
	require.Empty(t, msg.ClaimedENSName())

	msg.Resources = nil
	require.Empty(t, msg.ClaimedENSName())
}
