package pda

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/minio/sha256-simd"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

const (
	// MaxSeedLength is the maximum length of a single seed.
	MaxSeedLength = 32

	// MaxSeeds is the maximum number of seeds, bump included.
	MaxSeeds = 16

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrMaxSeedLengthExceeded is returned for seeds longer than MaxSeedLength or more than MaxSeeds seeds.
	ErrMaxSeedLengthExceeded = errors.New("pda: max seed length exceeded")

	// ErrInvalidSeeds is returned when the derived address lies on the ed25519 curve.
	ErrInvalidSeeds = errors.New("pda: provided seeds do not result in a valid address")

	// ErrNoViableBump is returned when no bump in [0, 255] yields an off-curve address.
	ErrNoViableBump = errors.New("pda: unable to find a viable program address bump seed")
)

// CreateProgramAddress hashes seeds and programID into an address that no ed25519 key controls.
func CreateProgramAddress(seeds [][]byte, programID interfaces.Pubkey) (interfaces.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return interfaces.Pubkey{}, ErrMaxSeedLengthExceeded
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return interfaces.Pubkey{}, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var address interfaces.Pubkey
	copy(address[:], h.Sum(nil))

	if IsOnCurve(address[:]) {
		return interfaces.Pubkey{}, ErrInvalidSeeds
	}
	return address, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first off-curve address.
func FindProgramAddress(seeds [][]byte, programID interfaces.Pubkey) (interfaces.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return interfaces.Pubkey{}, 0, ErrMaxSeedLengthExceeded
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		address, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return address, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return interfaces.Pubkey{}, 0, err
		}
	}
	return interfaces.Pubkey{}, 0, ErrNoViableBump
}

// MustFind is FindProgramAddress for seeds known to be within limits.
func MustFind(seeds [][]byte, programID interfaces.Pubkey) (interfaces.Pubkey, uint8) {
	address, bump, err := FindProgramAddress(seeds, programID)
	if err != nil {
		panic(fmt.Sprintf("derive address: %v", err))
	}
	return address, bump
}

// IsOnCurve reports whether key decodes to a point of the ed25519 curve.
func IsOnCurve(key []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}

// WithBump returns seeds followed by the single bump byte, ready for signing.
func WithBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}

// SignerSeeds derives the address of seeds under programID and returns it together with
// the bumped seeds the program signs for it with.
func SignerSeeds(seeds [][]byte, programID interfaces.Pubkey) (interfaces.Pubkey, [][]byte) {
	address, bump := MustFind(seeds, programID)
	return address, WithBump(seeds, bump)
}
