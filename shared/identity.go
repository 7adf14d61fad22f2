package shared

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Identity represents a signing identity derived deterministically from a
// configured secret. The address identifies the party on the ledger.
type Identity struct {
	address string
	priv    ed25519.PrivateKey
}

// NormalizeSecret validates and normalizes a hex-encoded signing secret,
// accepting an optional 0x prefix.
func NormalizeSecret(secret string) (string, error) {
	trimmed := strings.TrimSpace(secret)
	trimmed = strings.TrimPrefix(trimmed, "0x")

	if len(trimmed) != ed25519.SeedSize*2 {
		return "", fmt.Errorf("signing secret must be %d hex characters, got %d",
			ed25519.SeedSize*2, len(trimmed))
	}

	_, err := hex.DecodeString(trimmed)
	if err != nil {
		return "", fmt.Errorf("malformed signing secret: %w", err)
	}

	return trimmed, nil
}

// NewIdentity derives a signing identity from the provided hex-encoded
// secret. The same secret always derives the same address.
func NewIdentity(secret string) (*Identity, error) {
	normalized, err := NormalizeSecret(secret)
	if err != nil {
		return nil, err
	}

	seed, _ := hex.DecodeString(normalized)
	priv := ed25519.NewKeyFromSeed(seed)

	pubHash := sha256.Sum256(priv.Public().(ed25519.PublicKey))
	address := "0x" + hex.EncodeToString(pubHash[len(pubHash)-20:])

	return &Identity{
		address: address,
		priv:    priv,
	}, nil
}

// Address returns the identity's ledger address.
func (i *Identity) Address() string {
	return i.address
}

// Sign signs the provided digest, returning a 0x-prefixed hex signature.
func (i *Identity) Sign(digest []byte) string {
	return "0x" + hex.EncodeToString(ed25519.Sign(i.priv, digest))
}

// WellFormedSignature reports whether the provided signature string is a
// 0x-prefixed hex string. Signature verification itself belongs to the
// ledger contract.
func WellFormedSignature(sig string) bool {
	if !strings.HasPrefix(sig, "0x") || len(sig) <= 2 {
		return false
	}

	_, err := hex.DecodeString(sig[2:])
	return err == nil
}
