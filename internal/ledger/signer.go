package ledger

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer holds the submitting account's keypair. The address is derived from
// the public key the way the target network derives account addresses.
type Signer struct {
	priv ed25519.PrivateKey
	addr string
}

// NewSigner builds a signer from a hex-encoded 32-byte seed.
func NewSigner(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode signer seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ledger: signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	sum := sha256.Sum256(priv.Public().(ed25519.PublicKey))
	return &Signer{
		priv: priv,
		addr: "0x" + hex.EncodeToString(sum[:]),
	}, nil
}

// Address is the account address of this signer.
func (s *Signer) Address() string { return s.addr }

// Sign signs the encoded transaction bytes.
func (s *Signer) Sign(txBytes []byte) []byte {
	return ed25519.Sign(s.priv, txBytes)
}

// PublicKey returns the raw public key submitted alongside signatures.
func (s *Signer) PublicKey() []byte {
	return []byte(s.priv.Public().(ed25519.PublicKey))
}
