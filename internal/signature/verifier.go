// Package signature verifies that a wallet produced a signature over a vote
// message. Wallet addresses and signatures travel as base-58 strings.
package signature

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var (
	ErrInvalidWallet    = errors.New("wallet address is not a valid ed25519 public key")
	ErrInvalidSignature = errors.New("signature is not a valid base-58 ed25519 signature")
)

// Verifier checks a detached signature for a wallet.
type Verifier interface {
	Verify(walletAddress, message, signature string) (bool, error)
}

// Ed25519 verifies Solana-style wallet signatures.
type Ed25519 struct{}

// DecodeWallet decodes a base-58 wallet address into its public key.
func DecodeWallet(walletAddress string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(walletAddress)
	if err != nil || walletAddress == "" {
		return nil, ErrInvalidWallet
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidWallet, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// DecodeSignature decodes a base-58 signature and checks its length.
func DecodeSignature(signature string) ([]byte, error) {
	raw, err := base58.Decode(signature)
	if err != nil || signature == "" {
		return nil, ErrInvalidSignature
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSignature, len(raw))
	}
	return raw, nil
}

// Verify reports whether signature is a valid signature of message by the
// key behind walletAddress. Decode failures are returned as errors; a
// well-formed signature that does not match yields false and no error.
func (Ed25519) Verify(walletAddress, message, signature string) (bool, error) {
	pub, err := DecodeWallet(walletAddress)
	if err != nil {
		return false, err
	}
	sig, err := DecodeSignature(signature)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, []byte(message), sig), nil
}

// EncodeWallet renders a public key as a base-58 wallet address.
func EncodeWallet(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// Sign signs message and returns the base-58 signature. Used by the CLI
// and tests; the service never holds private keys.
func Sign(priv ed25519.PrivateKey, message string) string {
	return base58.Encode(ed25519.Sign(priv, []byte(message)))
}
