package domain

// VerificationResult is produced once a SIWE message passes validation and is
// consumed by the identity reconciler. It is never persisted.
type VerificationResult struct {
	Address    string // normalized signer address
	ENSName    string // claimed via resources, not yet ENS-authenticated
	RawMessage string
	Signature  string
}
