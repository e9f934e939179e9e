package kms

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

var (
	// ErrLocked is returned by a ShamirKMS that has not received enough shares yet.
	ErrLocked = errors.New("KMS is locked - need more shares to unlock")

	// ErrShareMismatch is returned when the reconstructed seed does not derive the expected payer.
	ErrShareMismatch = errors.New("reconstructed seed does not match the expected payer")
)

// ShamirKMS enhances SimpleKMS with Shamir Secret Sharing of the master seed. The seed
// is split into shares held by separate operators, and the service only derives keys
// once a threshold number of shares has been submitted.
//
// The reconstructed seed is kept in memory only.
type ShamirKMS struct {
	mu             sync.RWMutex
	kms            *SimpleKMS      // Set once unlocked
	threshold      int             // Minimum number of shares required to reconstruct the seed
	receivedShares map[byte][]byte // Shares keyed by their x coordinate until reconstruction

	// expectedPayer, when set, is checked against the payer of the reconstructed seed
	expectedPayer *interfaces.Pubkey
}

var _ interfaces.KMS = (*ShamirKMS)(nil)

// ShamirConfig contains configuration parameters for recovering a ShamirKMS.
type ShamirConfig struct {
	// Threshold is the minimum number of shares required to reconstruct the seed
	Threshold int
	// ExpectedPayer is the payer identity the seed must derive. Optional.
	ExpectedPayer *interfaces.Pubkey
}

// NewShamirKMS splits seed into parts shares, any threshold of which reconstruct it.
// The returned KMS is unlocked. The shares must be handed to the operators and the
// original seed erased by the caller.
func NewShamirKMS(seed []byte, threshold, parts int) (*ShamirKMS, [][]byte, error) {
	if len(seed) < 32 {
		return nil, nil, errors.New("master key must be at least 32 bytes")
	}
	if threshold < 2 {
		return nil, nil, errors.New("threshold must be at least 2")
	}
	if parts < threshold {
		return nil, nil, errors.New("total shares must be at least equal to threshold")
	}

	shares, err := shamir.Split(seed, parts, threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split master key: %w", err)
	}

	simple, err := NewSimpleKMS(seed)
	if err != nil {
		return nil, nil, err
	}
	return &ShamirKMS{
		kms:            simple,
		threshold:      threshold,
		receivedShares: make(map[byte][]byte),
	}, shares, nil
}

// NewShamirKMSRecovery returns a locked KMS waiting for shares.
func NewShamirKMSRecovery(config ShamirConfig) (*ShamirKMS, error) {
	if config.Threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	return &ShamirKMS{
		threshold:      config.Threshold,
		receivedShares: make(map[byte][]byte),
		expectedPayer:  config.ExpectedPayer,
	}, nil
}

// SubmitShare records a share. Once threshold distinct shares are held the seed is
// reconstructed and the KMS unlocks. Resubmitting a share is a no-op.
func (k *ShamirKMS) SubmitShare(share []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.kms != nil {
		return errors.New("KMS is already unlocked")
	}
	if len(share) < 33 {
		return fmt.Errorf("invalid share: %d bytes", len(share))
	}

	// The last byte of a share is its x coordinate.
	x := share[len(share)-1]
	if existing, ok := k.receivedShares[x]; ok {
		if string(existing) != string(share) {
			return fmt.Errorf("conflicting shares for index %d", x)
		}
		return nil
	}
	k.receivedShares[x] = append([]byte(nil), share...)

	return k.tryReconstruct()
}

// tryReconstruct combines the received shares once there are enough of them.
// Shares are wiped whether or not reconstruction succeeds.
func (k *ShamirKMS) tryReconstruct() error {
	if len(k.receivedShares) < k.threshold {
		return nil
	}

	shares := make([][]byte, 0, len(k.receivedShares))
	for _, share := range k.receivedShares {
		shares = append(shares, share)
	}
	defer func() {
		for i := range k.receivedShares {
			wipeBytes(k.receivedShares[i])
		}
		k.receivedShares = make(map[byte][]byte)
	}()

	seed, err := shamir.Combine(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct master key: %w", err)
	}
	defer wipeBytes(seed)

	simple, err := NewSimpleKMS(seed)
	if err != nil {
		return err
	}
	if k.expectedPayer != nil {
		payer, err := simple.PayerKey()
		if err != nil {
			return err
		}
		if payer.PublicKey() != *k.expectedPayer {
			return fmt.Errorf("%w: got %s", ErrShareMismatch, payer.PublicKey())
		}
	}

	k.kms = simple
	return nil
}

// IsUnlocked returns whether the seed has been reconstructed.
func (k *ShamirKMS) IsUnlocked() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.kms != nil
}

func (k *ShamirKMS) unlocked() (*SimpleKMS, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.kms == nil {
		return nil, ErrLocked
	}
	return k.kms, nil
}

func (k *ShamirKMS) PayerKey() (interfaces.Signer, error) {
	simple, err := k.unlocked()
	if err != nil {
		return nil, err
	}
	return simple.PayerKey()
}

func (k *ShamirKMS) TreeKey(label string) (interfaces.Signer, error) {
	simple, err := k.unlocked()
	if err != nil {
		return nil, err
	}
	return simple.TreeKey(label)
}

func (k *ShamirKMS) CollectionMintKey(label string) (interfaces.Signer, error) {
	simple, err := k.unlocked()
	if err != nil {
		return nil, err
	}
	return simple.CollectionMintKey(label)
}

// Securely wipe data from memory
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
