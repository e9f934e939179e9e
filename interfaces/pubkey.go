package interfaces

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeyLength is the size of a ledger identity in bytes.
const PubkeyLength = 32

// Pubkey is a 32-byte ledger identity: an ed25519 public key or a program-derived address.
type Pubkey [PubkeyLength]byte

// SystemProgramID is the all-zero identity owning unallocated accounts.
var SystemProgramID = Pubkey{}

// NewPubkeyFromBytes copies a 32-byte slice into a Pubkey.
func NewPubkeyFromBytes(source []byte) (Pubkey, error) {
	if len(source) != PubkeyLength {
		return Pubkey{}, fmt.Errorf("invalid pubkey length %d", len(source))
	}

	var key Pubkey
	copy(key[:], source)
	return key, nil
}

// NewPubkeyFromBase58 parses the canonical base58 rendering of a Pubkey.
func NewPubkeyFromBase58(source string) (Pubkey, error) {
	if source == "" {
		return Pubkey{}, errors.New("empty pubkey")
	}

	raw, err := base58.Decode(source)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid base58 pubkey: %w", err)
	}
	return NewPubkeyFromBytes(raw)
}

// MustPubkeyFromBase58 is NewPubkeyFromBase58 for compile-time constants.
func MustPubkeyFromBase58(source string) Pubkey {
	key, err := NewPubkeyFromBase58(source)
	if err != nil {
		panic(err)
	}
	return key
}

// String returns the base58 rendering.
func (k Pubkey) String() string {
	return base58.Encode(k[:])
}

// Bytes returns the raw 32 bytes.
func (k Pubkey) Bytes() []byte {
	return k[:]
}

// IsZero reports whether k is the all-zero key.
func (k Pubkey) IsZero() bool {
	return k == Pubkey{}
}

// Compare orders keys bytewise.
func (k Pubkey) Compare(other Pubkey) int {
	return bytes.Compare(k[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (k Pubkey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := NewPubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Signer can authorize transactions on behalf of an identity.
type Signer interface {
	// PublicKey returns the identity the signatures verify against.
	PublicKey() Pubkey

	// Sign produces an ed25519 signature over msg.
	Sign(msg []byte) ([]byte, error)
}

// VerifySignature checks an ed25519 signature attributed to key.
func VerifySignature(key Pubkey, msg, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key[:]), msg, signature)
}
