package metadata

import (
	"bytes"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

const (
	MaxNameLength   = 32
	MaxSymbolLength = 10
	MaxURILength    = 200

	// MetadataAccountSize fits the longest name, symbol and uri plus the size option.
	MetadataAccountSize = codec.DiscriminatorLength + 2*interfaces.PubkeyLength +
		4 + MaxNameLength + 4 + MaxSymbolLength + 4 + MaxURILength + 1 + 8

	// MintAccountSize is discriminator | mint authority | supply u64 | decimals u8.
	MintAccountSize = codec.DiscriminatorLength + interfaces.PubkeyLength + 8 + 1

	// EditionAccountSize is discriminator | supply u64 | max supply option u64.
	EditionAccountSize = codec.DiscriminatorLength + 8 + 1 + 8
)

var (
	metadataDiscriminator = codec.AccountDiscriminator("Metadata")
	mintDiscriminator     = codec.AccountDiscriminator("Mint")
	editionDiscriminator  = codec.AccountDiscriminator("MasterEditionV2")
)

// Collection is the decoded metadata account of a collection mint.
type Collection struct {
	UpdateAuthority interfaces.Pubkey
	Mint            interfaces.Pubkey
	Name            string
	Symbol          string
	URI             string
	// Size is nil for unsized collections.
	Size *uint64
}

func encodeCollection(c *Collection) []byte {
	enc := codec.NewEncoder(MetadataAccountSize)
	enc.Raw(metadataDiscriminator[:])
	enc.Pubkey(c.UpdateAuthority)
	enc.Pubkey(c.Mint)
	enc.String(c.Name)
	enc.String(c.Symbol)
	enc.String(c.URI)
	if enc.OptionTag(c.Size != nil) {
		enc.U64(*c.Size)
	}
	enc.Zeros(MetadataAccountSize - enc.Len())
	return enc.Bytes()
}

// DecodeCollection parses a collection metadata account.
func DecodeCollection(data []byte) (*Collection, error) {
	if len(data) != MetadataAccountSize || !bytes.Equal(data[:codec.DiscriminatorLength], metadataDiscriminator[:]) {
		return nil, fmt.Errorf("%w: not a metadata account", interfaces.ErrCorruptState)
	}
	dec := codec.NewDecoder(data[codec.DiscriminatorLength:])
	c := &Collection{
		UpdateAuthority: dec.Pubkey(),
		Mint:            dec.Pubkey(),
		Name:            dec.String(MaxNameLength),
		Symbol:          dec.String(MaxSymbolLength),
		URI:             dec.String(MaxURILength),
	}
	if dec.OptionTag() {
		size := dec.U64()
		c.Size = &size
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCorruptState, err)
	}
	return c, nil
}

func encodeMint(authority interfaces.Pubkey, supply uint64) []byte {
	enc := codec.NewEncoder(MintAccountSize)
	enc.Raw(mintDiscriminator[:])
	enc.Pubkey(authority)
	enc.U64(supply)
	enc.U8(0)
	return enc.Bytes()
}

func isMint(data []byte) bool {
	return len(data) == MintAccountSize && bytes.Equal(data[:codec.DiscriminatorLength], mintDiscriminator[:])
}

func encodeEdition(supply uint64, maxSupply uint64) []byte {
	enc := codec.NewEncoder(EditionAccountSize)
	enc.Raw(editionDiscriminator[:])
	enc.U64(supply)
	enc.OptionTag(true)
	enc.U64(maxSupply)
	return enc.Bytes()
}

func isEdition(data []byte) bool {
	return len(data) == EditionAccountSize && bytes.Equal(data[:codec.DiscriminatorLength], editionDiscriminator[:])
}

// Info renders the collection as the shared API type.
func (c *Collection) Info(metadata, edition interfaces.Pubkey) *interfaces.CollectionInfo {
	return &interfaces.CollectionInfo{
		Mint:            c.Mint,
		Metadata:        metadata,
		MasterEdition:   edition,
		UpdateAuthority: c.UpdateAuthority,
		Name:            c.Name,
		Symbol:          c.Symbol,
		URI:             c.URI,
		Size:            c.Size,
	}
}
