package siwe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// personalMessagePrefix is the EIP-191 prefix applied by wallets when signing
// arbitrary text via personal_sign.
const personalMessagePrefix = "\x19Ethereum Signed Message:\n"

// SignatureLength is the expected raw signature size: r (32) + s (32) + v (1).
const SignatureLength = 65

var ErrInvalidSignature = errors.New("siwe: invalid signature encoding")

// PersonalHash returns the EIP-191 digest of a personal-sign payload: the
// prefix, the UTF-8 byte length of the message, and the literal message text,
// hashed with Keccak-256.
func PersonalHash(message string) []byte {
	payload := fmt.Sprintf("%s%d%s", personalMessagePrefix, len(message), message)
	return crypto.Keccak256([]byte(payload))
}

// ParseSignature decodes a hex signature (with or without 0x prefix) and
// normalizes the recovery byte: wallets emit v as 27/28, secp256k1 recovery
// expects 0/1.
func ParseSignature(sigHex string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if len(raw) != SignatureLength {
		return nil, ErrInvalidSignature
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	if raw[64] > 1 {
		return nil, ErrInvalidSignature
	}
	return raw, nil
}

// RecoverAddress recovers the address that produced sig over the literal
// message text using the personal-sign scheme. sig must be normalized (see
// ParseSignature).
func RecoverAddress(message string, sig []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(PersonalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("siwe: signature recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
