package compression

import (
	"strings"
	"testing"

	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() *interfaces.MetadataArgs {
	return &interfaces.MetadataArgs{
		Name:                 "Leaf #0",
		Symbol:               "CTR",
		URI:                  "https://example.com/leaf/0.json",
		SellerFeeBasisPoints: 250,
		Creators: []interfaces.Creator{
			{Address: interfaces.Pubkey{1}, Share: 70},
			{Address: interfaces.Pubkey{2}, Share: 30},
		},
	}
}

func TestValidateMetadata(t *testing.T) {
	edition := interfaces.NonFungibleEdition
	tests := []struct {
		name   string
		mutate func(m *interfaces.MetadataArgs)
		err    error
	}{
		{"valid", func(m *interfaces.MetadataArgs) {}, nil},
		{"no creators", func(m *interfaces.MetadataArgs) { m.Creators = nil }, nil},
		{"name", func(m *interfaces.MetadataArgs) { m.Name = strings.Repeat("n", MaxNameLength+1) }, ErrMetadataNameTooLong},
		{"symbol", func(m *interfaces.MetadataArgs) { m.Symbol = strings.Repeat("s", MaxSymbolLength+1) }, ErrMetadataSymbolTooLong},
		{"uri", func(m *interfaces.MetadataArgs) { m.URI = strings.Repeat("u", MaxURILength+1) }, ErrMetadataURITooLong},
		{"seller fee", func(m *interfaces.MetadataArgs) { m.SellerFeeBasisPoints = 10001 }, ErrSellerFeeTooHigh},
		{"token standard", func(m *interfaces.MetadataArgs) { m.TokenStandard = &edition }, ErrInvalidTokenStandard},
		{"share total", func(m *interfaces.MetadataArgs) { m.Creators[1].Share = 20 }, ErrCreatorShareTotal},
		{"duplicate creator", func(m *interfaces.MetadataArgs) { m.Creators[1].Address = m.Creators[0].Address }, ErrDuplicateCreator},
		{"too many creators", func(m *interfaces.MetadataArgs) {
			m.Creators = make([]interfaces.Creator, MaxCreators+1)
			for i := range m.Creators {
				m.Creators[i] = interfaces.Creator{Address: interfaces.Pubkey{byte(i + 1)}, Share: 1}
			}
		}, ErrCreatorsTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMetadata()
			tt.mutate(m)
			err := ValidateMetadata(m)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestDataHash(t *testing.T) {
	m := validMetadata()
	base := DataHash(m)
	assert.Equal(t, base, DataHash(validMetadata()))

	m.SellerFeeBasisPoints = 300
	assert.NotEqual(t, base, DataHash(m))

	m = validMetadata()
	m.URI += "?v=2"
	assert.NotEqual(t, base, DataHash(m))

	creators := validMetadata().Creators
	h := CreatorHash(creators)
	creators[0].Verified = true
	assert.NotEqual(t, h, CreatorHash(creators))
	assert.NotEqual(t, CreatorHash(nil), h)
}

func TestLeafSchemaEvent(t *testing.T) {
	m := validMetadata()
	schema := &LeafSchema{
		ID:          interfaces.Pubkey{7},
		Owner:       interfaces.Pubkey{8},
		Delegate:    interfaces.Pubkey{9},
		Nonce:       3,
		DataHash:    DataHash(m),
		CreatorHash: CreatorHash(m.Creators),
	}

	decoded, err := DecodeLeafSchemaEvent(schema.EncodeEvent())
	require.NoError(t, err)
	assert.Equal(t, schema, decoded)
	assert.Equal(t, schema.Hash(), decoded.Hash())

	other := *schema
	other.Nonce = 4
	assert.NotEqual(t, schema.Hash(), other.Hash())

	tampered := schema.EncodeEvent()
	tampered[len(tampered)-1] ^= 0xff
	_, err = DecodeLeafSchemaEvent(tampered)
	assert.Error(t, err)

	_, err = DecodeLeafSchemaEvent([]byte{2, 0, 0})
	assert.Error(t, err)
}

func TestTreeConfig(t *testing.T) {
	creator := interfaces.Pubkey{1}
	config := &TreeConfig{
		Creator:           creator,
		Delegate:          creator,
		TotalMintCapacity: Capacity(14),
		NumMinted:         12,
	}

	data := config.Encode()
	require.Len(t, data, TreeConfigSize)
	decoded, err := DecodeTreeConfig(data)
	require.NoError(t, err)
	assert.Equal(t, config, decoded)

	assert.True(t, config.CanMint(creator))
	assert.False(t, config.CanMint(interfaces.Pubkey{2}))
	config.IsPublic = true
	assert.True(t, config.CanMint(interfaces.Pubkey{2}))

	data[0] ^= 0xff
	_, err = DecodeTreeConfig(data)
	assert.ErrorIs(t, err, interfaces.ErrCorruptState)
}
