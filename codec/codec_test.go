package codec

import (
	"encoding/hex"
	"testing"

	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionDiscriminator(t *testing.T) {
	d := InstructionDiscriminator("initialize")
	assert.Equal(t, "afaf6d1f0d989bed", hex.EncodeToString(d[:]))
	assert.NotEqual(t, AccountDiscriminator("initialize"), d)

	enc := InstructionEncoder("initialize", 4)
	enc.U32(7)
	disc, args, ok := SplitDiscriminator(enc.Bytes())
	require.True(t, ok)
	assert.Equal(t, d, disc)
	assert.Equal(t, []byte{7, 0, 0, 0}, args)

	_, _, ok = SplitDiscriminator([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestEncoderDecoder(t *testing.T) {
	key := interfaces.Pubkey{1, 2, 3}
	hash := interfaces.Hash{9, 8, 7}

	enc := NewEncoder(0)
	enc.U8(0xfe)
	enc.Bool(true)
	enc.U16(0x0102)
	enc.U32(0x01020304)
	enc.U64(1 << 40)
	enc.Pubkey(key)
	enc.Hash(hash)
	enc.String("leaf")
	enc.VecBytes([]byte{0xaa, 0xbb})
	enc.OptionTag(false)
	enc.Zeros(3)

	assert.Equal(t, []byte{0x02, 0x01}, enc.Bytes()[2:4], "little endian")

	dec := NewDecoder(enc.Bytes())
	assert.Equal(t, uint8(0xfe), dec.U8())
	assert.True(t, dec.Bool())
	assert.Equal(t, uint16(0x0102), dec.U16())
	assert.Equal(t, uint32(0x01020304), dec.U32())
	assert.Equal(t, uint64(1<<40), dec.U64())
	assert.Equal(t, key, dec.Pubkey())
	assert.Equal(t, hash, dec.Hash())
	assert.Equal(t, "leaf", dec.String(16))
	assert.Equal(t, []byte{0xaa, 0xbb}, dec.Raw(dec.VecLen(16)))
	assert.False(t, dec.OptionTag())
	assert.Equal(t, 3, dec.Remaining())
	dec.Skip(3)
	require.NoError(t, dec.Finish())
}

func TestDecoder_Errors(t *testing.T) {
	dec := NewDecoder([]byte{1, 2})
	dec.U32()
	assert.ErrorIs(t, dec.Finish(), ErrShortBuffer)
	// The first error sticks.
	dec.U8()
	assert.ErrorIs(t, dec.Err(), ErrShortBuffer)

	dec = NewDecoder([]byte{2})
	dec.Bool()
	assert.Error(t, dec.Err())

	dec = NewDecoder([]byte{1, 2})
	dec.U8()
	assert.Error(t, dec.Finish(), "trailing bytes")

	enc := NewEncoder(0)
	enc.String("too long")
	dec = NewDecoder(enc.Bytes())
	assert.Equal(t, "", dec.String(4))
	assert.Error(t, dec.Err())
}

func TestMetadataArgs(t *testing.T) {
	nonce := uint8(3)
	standard := interfaces.NonFungible
	m := &interfaces.MetadataArgs{
		Name:                 "Leaf #1",
		Symbol:               "CTR",
		URI:                  "https://example.com/leaf/1.json",
		SellerFeeBasisPoints: 500,
		IsMutable:            true,
		EditionNonce:         &nonce,
		TokenStandard:        &standard,
		Collection:           &interfaces.LeafCollection{Key: interfaces.Pubkey{4}},
		TokenProgramVersion:  interfaces.TokenProgramOriginal,
		Creators: []interfaces.Creator{
			{Address: interfaces.Pubkey{5}, Share: 60},
			{Address: interfaces.Pubkey{6}, Verified: true, Share: 40},
		},
	}

	enc := NewEncoder(0)
	enc.MetadataArgs(m)
	dec := NewDecoder(enc.Bytes())
	decoded := dec.MetadataArgs()
	require.NoError(t, dec.Finish())
	assert.Equal(t, m, decoded)

	bare := &interfaces.MetadataArgs{Name: "bare", Creators: []interfaces.Creator{}}
	enc = NewEncoder(0)
	enc.MetadataArgs(bare)
	dec = NewDecoder(enc.Bytes())
	decoded = dec.MetadataArgs()
	require.NoError(t, dec.Finish())
	assert.Equal(t, bare, decoded)
}

func TestMetadataArgs_RejectsUses(t *testing.T) {
	enc := NewEncoder(0)
	enc.String("n")
	enc.String("")
	enc.String("")
	enc.U16(0)
	enc.Bool(false)
	enc.Bool(false)
	enc.OptionTag(false)
	enc.OptionTag(false)
	enc.OptionTag(false)
	enc.OptionTag(true)

	dec := NewDecoder(enc.Bytes())
	dec.MetadataArgs()
	assert.Error(t, dec.Err())
}

func TestEncoder_BorshLayout(t *testing.T) {
	enc := NewEncoder(0)
	enc.String("leaf")
	enc.VecBytes(nil)
	enc.OptionTag(true)
	enc.U16(0x0102)
	require.NoError(t, enc.Err())
	assert.Equal(t, []byte{
		4, 0, 0, 0, 'l', 'e', 'a', 'f',
		0, 0, 0, 0,
		1,
		0x02, 0x01,
	}, enc.Bytes())
	assert.Equal(t, 15, enc.Len())

	// A truncated length-prefixed string fails without reading past the input.
	dec := NewDecoder(enc.Bytes()[:6])
	assert.Equal(t, "", dec.String(16))
	assert.ErrorIs(t, dec.Err(), ErrShortBuffer)
	assert.Equal(t, 4, dec.Offset())
}
