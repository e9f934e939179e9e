package kms

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/minio/sha256-simd"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"golang.org/x/crypto/hkdf"
)

const (
	purposePayer      = "payer"
	purposeTree       = "tree"
	purposeCollection = "collection"

	derivationSalt = "compressed-tree-registry/kms/v1"
)

// SimpleKMS derives keys deterministically from a master key.
// Suitable for development and single-operator deployments.
type SimpleKMS struct {
	masterKey []byte
	mu        sync.RWMutex
	cache     map[string]*Keypair
}

var _ interfaces.KMS = (*SimpleKMS)(nil)

// NewSimpleKMS creates a new instance with the provided master key.
// The master key must be at least 32 bytes long.
func NewSimpleKMS(masterKey []byte) (*SimpleKMS, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	key := make([]byte, len(masterKey))
	copy(key, masterKey)
	return &SimpleKMS{masterKey: key, cache: make(map[string]*Keypair)}, nil
}

// WithSeed creates a new SimpleKMS with the provided seed.
// Useful for testing with deterministic keys.
func (k *SimpleKMS) WithSeed(seed []byte) *SimpleKMS {
	newkms := &SimpleKMS{
		masterKey: make([]byte, len(seed)),
		cache:     make(map[string]*Keypair),
	}
	copy(newkms.masterKey, seed)
	return newkms
}

// PayerKey returns the fee payer identity.
func (k *SimpleKMS) PayerKey() (interfaces.Signer, error) {
	return k.derive(purposePayer, "")
}

// TreeKey returns the keypair of the tree labelled label.
func (k *SimpleKMS) TreeKey(label string) (interfaces.Signer, error) {
	if label == "" {
		return nil, errors.New("tree label must not be empty")
	}
	return k.derive(purposeTree, label)
}

// CollectionMintKey returns the keypair of the collection mint labelled label.
func (k *SimpleKMS) CollectionMintKey(label string) (interfaces.Signer, error) {
	if label == "" {
		return nil, errors.New("collection label must not be empty")
	}
	return k.derive(purposeCollection, label)
}

// derive expands the master key with HKDF-SHA256, using purpose and label as info.
func (k *SimpleKMS) derive(purpose, label string) (*Keypair, error) {
	info := purpose + "/" + label

	k.mu.RLock()
	cached, ok := k.cache[info]
	k.mu.RUnlock()
	if ok {
		return cached, nil
	}

	seed := make([]byte, 32)
	reader := hkdf.New(sha256.New, k.masterKey, []byte(derivationSalt), []byte(info))
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", purpose, err)
	}

	kp, err := NewKeypairFromSeed(seed)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.cache[info] = kp
	k.mu.Unlock()
	return kp, nil
}
