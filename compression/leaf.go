package compression

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

const (
	MaxNameLength           = 32
	MaxSymbolLength         = 10
	MaxURILength            = 200
	MaxSellerFeeBasisPoints = 10000
	MaxCreators             = 5

	// LeafSchemaVersion prefixes every leaf hash preimage.
	LeafSchemaVersion uint8 = 1

	leafSchemaEventType uint8 = 1
)

var (
	ErrMetadataNameTooLong   = errors.New("name too long")
	ErrMetadataSymbolTooLong = errors.New("symbol too long")
	ErrMetadataURITooLong    = errors.New("uri too long")
	ErrSellerFeeTooHigh      = errors.New("seller fee basis points exceed 10000")
	ErrCreatorsTooLong       = errors.New("too many creators")
	ErrCreatorShareTotal     = errors.New("creator shares must add up to 100")
	ErrDuplicateCreator      = errors.New("duplicate creator address")
	ErrCreatorDidNotSign     = errors.New("verified creator did not sign")
	ErrInvalidTokenStandard  = errors.New("invalid token standard")
	ErrCollectionVerified    = errors.New("collection cannot be verified by this instruction")
)

// ValidateMetadata checks the limits every leaf payload must respect.
func ValidateMetadata(m *interfaces.MetadataArgs) error {
	if len(m.Name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes", ErrMetadataNameTooLong, len(m.Name))
	}
	if len(m.Symbol) > MaxSymbolLength {
		return fmt.Errorf("%w: %d bytes", ErrMetadataSymbolTooLong, len(m.Symbol))
	}
	if len(m.URI) > MaxURILength {
		return fmt.Errorf("%w: %d bytes", ErrMetadataURITooLong, len(m.URI))
	}
	if m.SellerFeeBasisPoints > MaxSellerFeeBasisPoints {
		return fmt.Errorf("%w: %d", ErrSellerFeeTooHigh, m.SellerFeeBasisPoints)
	}
	if m.TokenStandard != nil && *m.TokenStandard != interfaces.NonFungible {
		return fmt.Errorf("%w: %d", ErrInvalidTokenStandard, *m.TokenStandard)
	}
	if len(m.Creators) > MaxCreators {
		return fmt.Errorf("%w: %d", ErrCreatorsTooLong, len(m.Creators))
	}
	if len(m.Creators) == 0 {
		return nil
	}

	seen := make(map[interfaces.Pubkey]struct{}, len(m.Creators))
	total := 0
	for _, c := range m.Creators {
		if _, ok := seen[c.Address]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCreator, c.Address)
		}
		seen[c.Address] = struct{}{}
		total += int(c.Share)
	}
	if total != 100 {
		return fmt.Errorf("%w: got %d", ErrCreatorShareTotal, total)
	}
	return nil
}

// EncodeMetadata serializes m in the layout its data hash covers.
func EncodeMetadata(m *interfaces.MetadataArgs) []byte {
	enc := codec.NewEncoder(64 + len(m.Name) + len(m.Symbol) + len(m.URI) + len(m.Creators)*34)
	enc.MetadataArgs(m)
	return enc.Bytes()
}

// DataHash commits to the metadata and, separately, to the seller fee.
func DataHash(m *interfaces.MetadataArgs) interfaces.Hash {
	argsHash := crypto.Keccak256(EncodeMetadata(m))
	var fee [2]byte
	fee[0] = byte(m.SellerFeeBasisPoints)
	fee[1] = byte(m.SellerFeeBasisPoints >> 8)
	return interfaces.Hash(crypto.Keccak256Hash(argsHash, fee[:]))
}

// CreatorHash commits to the creator list.
func CreatorHash(creators []interfaces.Creator) interfaces.Hash {
	buf := make([]byte, 0, len(creators)*34)
	for _, c := range creators {
		buf = append(buf, c.Address[:]...)
		if c.Verified {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = append(buf, c.Share)
	}
	return interfaces.Hash(crypto.Keccak256Hash(buf))
}

// LeafSchema is the record a leaf hash commits to.
type LeafSchema struct {
	ID          interfaces.Pubkey
	Owner       interfaces.Pubkey
	Delegate    interfaces.Pubkey
	Nonce       uint64
	DataHash    interfaces.Hash
	CreatorHash interfaces.Hash
}

// Hash returns the leaf node value.
func (s *LeafSchema) Hash() interfaces.Hash {
	var nonce [8]byte
	for i := range nonce {
		nonce[i] = byte(s.Nonce >> (8 * i))
	}
	return interfaces.Hash(crypto.Keccak256Hash(
		[]byte{LeafSchemaVersion},
		s.ID[:],
		s.Owner[:],
		s.Delegate[:],
		nonce[:],
		s.DataHash[:],
		s.CreatorHash[:],
	))
}

// EncodeEvent serializes the leaf schema event logged alongside the append.
func (s *LeafSchema) EncodeEvent() []byte {
	enc := codec.NewEncoder(3 + 3*32 + 8 + 3*32)
	enc.U8(leafSchemaEventType)
	enc.U8(0)
	enc.U8(0)
	enc.Pubkey(s.ID)
	enc.Pubkey(s.Owner)
	enc.Pubkey(s.Delegate)
	enc.U64(s.Nonce)
	enc.Hash(s.DataHash)
	enc.Hash(s.CreatorHash)
	enc.Hash(s.Hash())
	return enc.Bytes()
}

// DecodeLeafSchemaEvent parses a leaf schema event and checks its leaf hash.
func DecodeLeafSchemaEvent(data []byte) (*LeafSchema, error) {
	dec := codec.NewDecoder(data)
	eventType, version, schemaVersion := dec.U8(), dec.U8(), dec.U8()
	if dec.Err() == nil && (eventType != leafSchemaEventType || version != 0 || schemaVersion != 0) {
		return nil, errors.New("not a leaf schema event")
	}
	s := &LeafSchema{
		ID:          dec.Pubkey(),
		Owner:       dec.Pubkey(),
		Delegate:    dec.Pubkey(),
		Nonce:       dec.U64(),
		DataHash:    dec.Hash(),
		CreatorHash: dec.Hash(),
	}
	leaf := dec.Hash()
	if err := dec.Finish(); err != nil {
		return nil, fmt.Errorf("decode leaf schema: %w", err)
	}
	if leaf != s.Hash() {
		return nil, errors.New("leaf schema hash mismatch")
	}
	return s, nil
}
