package compression

import (
	"bytes"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// TreeConfigSize is the data length of a tree configuration account.
const TreeConfigSize = 96

var treeConfigDiscriminator = codec.AccountDiscriminator("TreeConfig")

// TreeConfig is the per-tree record of who may mint and how many leaves were minted.
type TreeConfig struct {
	Creator           interfaces.Pubkey
	Delegate          interfaces.Pubkey
	TotalMintCapacity uint64
	NumMinted         uint64
	IsPublic          bool
	IsDecompressible  uint8
}

// CanMint reports whether authority may mint into the tree.
func (c *TreeConfig) CanMint(authority interfaces.Pubkey) bool {
	return c.IsPublic || authority == c.Creator || authority == c.Delegate
}

// Encode serializes c into TreeConfigSize bytes.
func (c *TreeConfig) Encode() []byte {
	enc := codec.NewEncoder(TreeConfigSize)
	enc.Raw(treeConfigDiscriminator[:])
	enc.Pubkey(c.Creator)
	enc.Pubkey(c.Delegate)
	enc.U64(c.TotalMintCapacity)
	enc.U64(c.NumMinted)
	enc.Bool(c.IsPublic)
	enc.U8(c.IsDecompressible)
	enc.Zeros(TreeConfigSize - enc.Len())
	return enc.Bytes()
}

// DecodeTreeConfig parses a tree configuration account.
func DecodeTreeConfig(data []byte) (*TreeConfig, error) {
	if len(data) != TreeConfigSize || !bytes.Equal(data[:codec.DiscriminatorLength], treeConfigDiscriminator[:]) {
		return nil, fmt.Errorf("%w: not a tree config account", interfaces.ErrCorruptState)
	}
	dec := codec.NewDecoder(data[codec.DiscriminatorLength:])
	c := &TreeConfig{
		Creator:           dec.Pubkey(),
		Delegate:          dec.Pubkey(),
		TotalMintCapacity: dec.U64(),
		NumMinted:         dec.U64(),
		IsPublic:          dec.Bool(),
		IsDecompressible:  dec.U8(),
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCorruptState, err)
	}
	return c, nil
}
