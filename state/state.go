// Package state defines the account layout of the registry singleton.
//
//	discriminator [8]  sha256("account:RegistryState")[:8]
//	creator       [32]
//	tree_count    u32
//	trees         capacity x TreeInfo, zero padded
//
//	TreeInfo = address [32] | max_depth u32 | max_buffer_size u32 | canopy_depth u32
//
// The capacity is not stored: it is fixed when the account is allocated and
// recovered from the account length.
package state

import (
	"bytes"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

const (
	// AccountName names the account type in its discriminator.
	AccountName = "RegistryState"

	// HeaderLength covers discriminator, creator and tree_count.
	HeaderLength = codec.DiscriminatorLength + interfaces.PubkeyLength + 4

	// TreeInfoLength is the encoded size of one TreeInfo.
	TreeInfoLength = interfaces.PubkeyLength + 3*4

	// DefaultCapacity is the number of trees a registry holds unless configured otherwise.
	DefaultCapacity = 2

	// MaxCapacity bounds the capacity so the account stays within ledger limits.
	MaxCapacity = 1 << 16
)

// Discriminator tags registry state accounts.
var Discriminator = codec.AccountDiscriminator(AccountName)

// AccountSize returns the data length of a registry holding capacity trees.
func AccountSize(capacity uint32) int {
	return HeaderLength + int(capacity)*TreeInfoLength
}

// CapacityFromSize recovers the capacity of a registry account from its data length.
func CapacityFromSize(size int) (uint32, error) {
	body := size - HeaderLength
	if body < 0 || body%TreeInfoLength != 0 {
		return 0, fmt.Errorf("%w: registry account of %d bytes", interfaces.ErrCorruptState, size)
	}
	capacity := body / TreeInfoLength
	if capacity > MaxCapacity {
		return 0, fmt.Errorf("%w: capacity %d", interfaces.ErrCorruptState, capacity)
	}
	return uint32(capacity), nil
}

// New returns an empty registry owned by creator.
func New(creator interfaces.Pubkey, capacity uint32) *interfaces.RegistryState {
	return &interfaces.RegistryState{
		Creator:  creator,
		Capacity: capacity,
		Trees:    []interfaces.TreeInfo{},
	}
}

// Append records a tree, failing with ErrRegistryFull once the capacity is reached.
func Append(s *interfaces.RegistryState, info interfaces.TreeInfo) error {
	if s.TreeCount >= s.Capacity {
		return fmt.Errorf("%w: %d of %d trees registered", interfaces.ErrRegistryFull, s.TreeCount, s.Capacity)
	}
	s.Trees = append(s.Trees, info)
	s.TreeCount++
	return nil
}

// Encode serializes s into an account of AccountSize(s.Capacity) bytes.
func Encode(s *interfaces.RegistryState) ([]byte, error) {
	if s.Capacity > MaxCapacity {
		return nil, fmt.Errorf("capacity %d exceeds %d", s.Capacity, MaxCapacity)
	}
	if s.TreeCount > s.Capacity || int(s.TreeCount) != len(s.Trees) {
		return nil, fmt.Errorf("inconsistent registry: tree_count %d, capacity %d, %d entries", s.TreeCount, s.Capacity, len(s.Trees))
	}

	size := AccountSize(s.Capacity)
	enc := codec.NewEncoder(size)
	enc.Raw(Discriminator[:])
	enc.Pubkey(s.Creator)
	enc.U32(s.TreeCount)
	for _, tree := range s.Trees {
		enc.Pubkey(tree.Address)
		enc.U32(tree.MaxDepth)
		enc.U32(tree.MaxBufferSize)
		enc.U32(tree.CanopyDepth)
	}
	enc.Zeros(size - enc.Len())
	return enc.Bytes(), nil
}

// Decode parses a registry account. Entries past tree_count are never read.
func Decode(data []byte) (*interfaces.RegistryState, error) {
	capacity, err := CapacityFromSize(len(data))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(data[:codec.DiscriminatorLength], Discriminator[:]) {
		return nil, fmt.Errorf("%w: not a registry state account", interfaces.ErrCorruptState)
	}

	dec := codec.NewDecoder(data[codec.DiscriminatorLength:])
	s := &interfaces.RegistryState{
		Creator:   dec.Pubkey(),
		TreeCount: dec.U32(),
		Capacity:  capacity,
	}
	if s.TreeCount > capacity {
		return nil, fmt.Errorf("%w: tree_count %d exceeds capacity %d", interfaces.ErrCorruptState, s.TreeCount, capacity)
	}

	s.Trees = make([]interfaces.TreeInfo, 0, s.TreeCount)
	for i := uint32(0); i < s.TreeCount; i++ {
		s.Trees = append(s.Trees, interfaces.TreeInfo{
			Address:       dec.Pubkey(),
			MaxDepth:      dec.U32(),
			MaxBufferSize: dec.U32(),
			CanopyDepth:   dec.U32(),
		})
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCorruptState, err)
	}
	return s, nil
}
