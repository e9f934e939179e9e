package state

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureCreator() interfaces.Pubkey {
	var creator interfaces.Pubkey
	for i := range creator {
		creator[i] = byte(i + 1)
	}
	return creator
}

func fixtureTree() interfaces.TreeInfo {
	var address interfaces.Pubkey
	for i := range address {
		address[i] = 0xaa
	}
	return interfaces.TreeInfo{Address: address, MaxDepth: 14, MaxBufferSize: 64}
}

// dumpLayout renders an encoded account one field per line.
func dumpLayout(data []byte) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "discriminator %s\n", hex.EncodeToString(data[:8]))
	fmt.Fprintf(&b, "creator %s\n", hex.EncodeToString(data[8:40]))
	fmt.Fprintf(&b, "tree_count %s\n", hex.EncodeToString(data[40:44]))
	for i, off := 0, HeaderLength; off < len(data); i, off = i+1, off+TreeInfoLength {
		fmt.Fprintf(&b, "tree[%d] %s\n", i, hex.EncodeToString(data[off:off+TreeInfoLength]))
	}
	return []byte(b.String())
}

func TestEncode_Layout(t *testing.T) {
	s := New(fixtureCreator(), DefaultCapacity)
	require.NoError(t, Append(s, fixtureTree()))

	data, err := Encode(s)
	require.NoError(t, err)
	assert.Len(t, data, AccountSize(DefaultCapacity))
	assert.Equal(t, 132, len(data))

	g := goldie.New(t)
	g.Assert(t, "registry_state_layout", dumpLayout(data))
}

func TestDecode_RoundTrip(t *testing.T) {
	s := New(fixtureCreator(), 3)
	require.NoError(t, Append(s, fixtureTree()))
	second := fixtureTree()
	second.Address[0] = 0xbb
	second.CanopyDepth = 5
	require.NoError(t, Append(s, second))

	data, err := Encode(s)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)

	info, ok := decoded.Tree(second.Address)
	require.True(t, ok)
	assert.Equal(t, uint32(5), info.CanopyDepth)
}

func TestAppend_CapacityBound(t *testing.T) {
	s := New(fixtureCreator(), 2)
	for i := 0; i < 2; i++ {
		tree := fixtureTree()
		tree.Address[0] = byte(i)
		require.NoError(t, Append(s, tree))
	}

	before := append([]interfaces.TreeInfo(nil), s.Trees...)
	err := Append(s, fixtureTree())
	assert.ErrorIs(t, err, interfaces.ErrRegistryFull)
	assert.Equal(t, uint32(2), s.TreeCount)
	assert.Equal(t, before, s.Trees)
}

func TestDecode_IgnoresEntriesPastCount(t *testing.T) {
	s := New(fixtureCreator(), 2)
	data, err := Encode(s)
	require.NoError(t, err)

	// Garbage in an unused slot must never surface as a tree.
	copy(data[HeaderLength:], []byte{1, 2, 3, 4})
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, decoded.Trees)
	assert.Equal(t, uint32(2), decoded.Capacity)
}

func TestDecode_Corrupt(t *testing.T) {
	s := New(fixtureCreator(), 2)
	data, err := Encode(s)
	require.NoError(t, err)

	_, err = Decode(data[:len(data)-1])
	assert.ErrorIs(t, err, interfaces.ErrCorruptState)

	wrongTag := append([]byte(nil), data...)
	wrongTag[0] ^= 0xff
	_, err = Decode(wrongTag)
	assert.ErrorIs(t, err, interfaces.ErrCorruptState)

	overCount := append([]byte(nil), data...)
	overCount[40] = 3
	_, err = Decode(overCount)
	assert.ErrorIs(t, err, interfaces.ErrCorruptState)
}

func TestEncode_Inconsistent(t *testing.T) {
	s := New(fixtureCreator(), 1)
	s.TreeCount = 1
	_, err := Encode(s)
	assert.Error(t, err)
}
