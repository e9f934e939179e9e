package kms

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// Keypair is an ed25519 signing identity.
type Keypair struct {
	private ed25519.PrivateKey
	public  interfaces.Pubkey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	return NewKeypairFromSeed(seed)
}

// NewKeypairFromSeed expands a 32-byte seed into a keypair.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}

	private := ed25519.NewKeyFromSeed(seed)
	public, err := interfaces.NewPubkeyFromBytes(private.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Keypair{private: private, public: public}, nil
}

// MustKeypair is NewKeypair for tests and tools.
func MustKeypair() *Keypair {
	kp, err := NewKeypair()
	if err != nil {
		panic(err)
	}
	return kp
}

func (k *Keypair) PublicKey() interfaces.Pubkey {
	return k.public
}

func (k *Keypair) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(k.private, msg), nil
}
