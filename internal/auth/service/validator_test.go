package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jellydator/ttlcache/v3"
	"github.com/stretchr/testify/require"
	"github.com/walletgate/walletgate/pkg/siwe"
)

const testDomain = "app.example.org"

type signedMessage struct {
	text      string
	signature string
	address   string
}

func newSigner(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func signMessage(t *testing.T, key *ecdsa.PrivateKey, msg *siwe.Message) signedMessage {
	t.Helper()

	address := crypto.PubkeyToAddress(key.PublicKey)
	msg.Address = address.Hex()

	text := msg.String()
	sig, err := crypto.Sign(siwe.PersonalHash(text), key)
	require.NoError(t, err)

	// Wallets report v as 27/28.
	sig[64] += 27

	return signedMessage{
		text:      text,
		signature: "0x" + hex.EncodeToString(sig),
		address:   address.Hex(),
	}
}

func validMessage(nonce string) *siwe.Message {
	return &siwe.Message{
		Domain:   testDomain,
		URI:      "https://" + testDomain + "/login",
		Version:  "1",
		ChainID:  1,
		Nonce:    nonce,
		IssuedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func newValidator(t *testing.T) (*MessageValidator, *NonceService) {
	t.Helper()
	nonces := NewNonceService(ttlcache.New[string, time.Time](), time.Minute)
	return NewMessageValidator(nonces, DefaultMessageTTL), nonces
}

func issueNonce(t *testing.T, nonces *NonceService) string {
	t.Helper()
	nonce, err := nonces.Issue(context.Background())
	require.NoError(t, err)
	return nonce.Value
}

func TestValidateHappyPath(t *testing.T) {
	t.Parallel()

	validator, nonces := newValidator(t)
	key := newSigner(t)
	signed := signMessage(t, key, validMessage(issueNonce(t, nonces)))

	result, err := validator.Validate(context.Background(),
		signed.text, signed.signature, signed.address, testDomain)
	require.NoError(t, err)
	require.Equal(t, strings.ToLower(signed.address), result.Address)
	require.Empty(t, result.ENSName)
	require.Equal(t, signed.text, result.RawMessage)
}

func TestValidateCarriesENSClaim(t *testing.T) {
	t.Parallel()

	validator, nonces := newValidator(t)
	key := newSigner(t)

	msg := validMessage(issueNonce(t, nonces))
	msg.Resources = []string{"ens:alice.eth"}
	signed := signMessage(t, key, msg)

	result, err := validator.Validate(context.Background(),
		signed.text, signed.signature, signed.address, testDomain)
	require.NoError(t, err)
	require.Equal(t, "alice.eth", result.ENSName)
}

func TestValidateRejectsMalformedMessage(t *testing.T) {
	t.Parallel()

	validator, _ := newValidator(t)
	_, err := validator.Validate(context.Background(),
		"not a sign-in message", "0x00", "0x00", testDomain)
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestValidateRejectsDomainMismatch(t *testing.T) {
	t.Parallel()

	validator, nonces := newValidator(t)
	key := newSigner(t)
	nonce := issueNonce(t, nonces)

	msg := validMessage(nonce)
	msg.Domain = "evil.example.org"
	signed := signMessage(t, key, msg)

	_, err := validator.Validate(context.Background(),
		signed.text, signed.signature, signed.address, testDomain)
	require.ErrorIs(t, err, ErrDomainMismatch)

	// The nonce must survive a domain failure; it is only consumed after
	// the audience check passes.
	require.True(t, nonces.Consume(context.Background(), nonce))
}

func TestValidateRejectsUnknownNonce(t *testing.T) {
	t.Parallel()

	validator, _ := newValidator(t)
	key := newSigner(t)
	signed := signMessage(t, key, validMessage("deadbeefdeadbeefdeadbeefdeadbeef"))

	_, err := validator.Validate(context.Background(),
		signed.text, signed.signature, signed.address, testDomain)
	require.ErrorIs(t, err, ErrNonceInvalid)
}

func TestValidateRejectsNonceReplay(t *testing.T) {
	t.Parallel()

	validator, nonces := newValidator(t)
	key := newSigner(t)
	signed := signMessage(t, key, validMessage(issueNonce(t, nonces)))

	ctx := context.Background()
	_, err := validator.Validate(ctx, signed.text, signed.signature, signed.address, testDomain)
	require.NoError(t, err)

	_, err = validator.Validate(ctx, signed.text, signed.signature, signed.address, testDomain)
	require.ErrorIs(t, err, ErrNonceInvalid)
}

func TestValidateTimeWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("expired message", func(t *testing.T) {
		validator, nonces := newValidator(t)
		key := newSigner(t)

		msg := validMessage(issueNonce(t, nonces))
		msg.IssuedAt = time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)
		msg.ExpirationTime = time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
		signed := signMessage(t, key, msg)

		_, err := validator.Validate(ctx, signed.text, signed.signature, signed.address, testDomain)
		require.ErrorIs(t, err, ErrTimeWindow)
	})

	t.Run("not yet valid", func(t *testing.T) {
		validator, nonces := newValidator(t)
		key := newSigner(t)

		msg := validMessage(issueNonce(t, nonces))
		msg.NotBefore = time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
		signed := signMessage(t, key, msg)

		_, err := validator.Validate(ctx, signed.text, signed.signature, signed.address, testDomain)
		require.ErrorIs(t, err, ErrTimeWindow)
	})

	t.Run("issued in the future", func(t *testing.T) {
		validator, nonces := newValidator(t)
		key := newSigner(t)

		msg := validMessage(issueNonce(t, nonces))
		msg.IssuedAt = time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
		signed := signMessage(t, key, msg)

		_, err := validator.Validate(ctx, signed.text, signed.signature, signed.address, testDomain)
		require.ErrorIs(t, err, ErrTimeWindow)
	})

	t.Run("stale message without explicit expiry", func(t *testing.T) {
		validator, nonces := newValidator(t)
		key := newSigner(t)

		msg := validMessage(issueNonce(t, nonces))
		msg.IssuedAt = time.Now().UTC().Add(-DefaultMessageTTL - time.Minute).Format(time.RFC3339)
		signed := signMessage(t, key, msg)

		_, err := validator.Validate(ctx, signed.text, signed.signature, signed.address, testDomain)
		require.ErrorIs(t, err, ErrTimeWindow)
	})
}

func TestValidateSignatureChecks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("signature from a different key", func(t *testing.T) {
		validator, nonces := newValidator(t)
		signed := signMessage(t, newSigner(t), validMessage(issueNonce(t, nonces)))
		other := signMessage(t, newSigner(t), validMessage("unused"))

		_, err := validator.Validate(ctx, signed.text, other.signature, signed.address, testDomain)
		require.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("claimed address differs from signer", func(t *testing.T) {
		validator, nonces := newValidator(t)
		signed := signMessage(t, newSigner(t), validMessage(issueNonce(t, nonces)))

		_, err := validator.Validate(ctx, signed.text, signed.signature,
			"0x0000000000000000000000000000000000000001", testDomain)
		require.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("tampered message body", func(t *testing.T) {
		validator, nonces := newValidator(t)
		key := newSigner(t)
		nonce := issueNonce(t, nonces)
		signed := signMessage(t, key, validMessage(nonce))

		// Re-sign a different message but replay the original signature
		// against tampered text carrying the same nonce.
		tampered := validMessage(nonce)
		tampered.Address = signed.address
		tampered.Statement = "I agree to transfer everything"

		_, err := validator.Validate(ctx, tampered.String(), signed.signature, signed.address, testDomain)
		require.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("garbage signature encoding", func(t *testing.T) {
		validator, nonces := newValidator(t)
		signed := signMessage(t, newSigner(t), validMessage(issueNonce(t, nonces)))

		_, err := validator.Validate(ctx, signed.text, "0xzznotsig", signed.address, testDomain)
		require.ErrorIs(t, err, ErrSignatureMismatch)
	})
}

func TestValidateAddressComparisonIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	validator, nonces := newValidator(t)
	key := newSigner(t)
	signed := signMessage(t, key, validMessage(issueNonce(t, nonces)))

	result, err := validator.Validate(context.Background(),
		signed.text, signed.signature, strings.ToUpper(signed.address), testDomain)
	require.NoError(t, err)
	require.Equal(t, strings.ToLower(signed.address), result.Address)
}
