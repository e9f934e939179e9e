package compression

import (
	"errors"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// Tree account layout:
//
//	header     account_type u8 | version u8 | max_buffer_size u32 | max_depth u32 |
//	           authority [32] | creation_slot u64 | is_batch_initialized u8 | padding [5]
//	body       seq u64 | active_index u64 | buffer_size u64 |
//	           max_buffer_size x (root [32] | path max_depth x [32] | index u32 | padding u32)
//	rightmost  filled subtrees max_depth x [32] | leaf [32] | next index u32 | padding u32
//	canopy     (2^(canopy_depth+1) - 2) x [32]
//
// Canopy nodes are stored breadth first starting below the root. A zero canopy node stands
// for an empty subtree.
const (
	HeaderLength = 56

	AccountTypeUninitialized        uint8 = 0
	AccountTypeConcurrentMerkleTree uint8 = 1

	HeaderVersionV1 uint8 = 0

	bodyPrefixLength = 24
)

var (
	ErrTreeFull               = errors.New("tree is full")
	ErrTreeNotInitialized     = errors.New("tree is not initialized")
	ErrTreeAlreadyInitialized = errors.New("tree is already initialized")
	ErrTreeAccountSize        = errors.New("tree account size does not match its parameters")
)

// Header is the fixed prefix of a tree account.
type Header struct {
	MaxBufferSize uint32
	MaxDepth      uint32
	Authority     interfaces.Pubkey
	CreationSlot  uint64
}

// ChangeLog records one root transition: the new root and the nodes on the path of the
// changed leaf, leaf first.
type ChangeLog struct {
	Root  interfaces.Hash
	Path  []interfaces.Hash
	Index uint32
}

// Tree is a decoded append-only merkle tree account.
type Tree struct {
	Header
	CanopyDepth uint32

	Seq         uint64
	ActiveIndex uint64
	BufferSize  uint64
	ChangeLogs  []ChangeLog

	// Filled holds, per level, the last completed left subtree.
	Filled        []interfaces.Hash
	RightmostLeaf interfaces.Hash
	NextIndex     uint32

	Canopy []interfaces.Hash
}

func changeLogLength(depth uint32) int {
	return 32 + int(depth)*32 + 8
}

func canopyNodes(canopyDepth uint32) int {
	return (1 << (canopyDepth + 1)) - 2
}

func treeLengthWithoutCanopy(depth, bufferSize uint32) int {
	return HeaderLength + bodyPrefixLength + int(bufferSize)*changeLogLength(depth) + int(depth)*32 + 32 + 8
}

// AccountSize returns the data length of a tree account with the given parameters.
func AccountSize(params interfaces.TreeParams) int {
	return treeLengthWithoutCanopy(params.MaxDepth, params.MaxBufferSize) + canopyNodes(params.CanopyDepth)*32
}

// NewTree returns an empty tree. Its single changelog holds the empty root.
func NewTree(header Header, canopyDepth uint32) *Tree {
	depth := header.MaxDepth
	t := &Tree{
		Header:      header,
		CanopyDepth: canopyDepth,
		BufferSize:  1,
		ChangeLogs:  make([]ChangeLog, header.MaxBufferSize),
		Filled:      make([]interfaces.Hash, depth),
		Canopy:      make([]interfaces.Hash, canopyNodes(canopyDepth)),
	}
	for i := range t.ChangeLogs {
		t.ChangeLogs[i].Path = make([]interfaces.Hash, depth)
	}
	initial := &t.ChangeLogs[0]
	initial.Root = EmptyRoot(depth)
	for level := range initial.Path {
		initial.Path[level] = EmptyNode(uint32(level))
	}
	return t
}

// Params returns the allocation parameters of t.
func (t *Tree) Params() interfaces.TreeParams {
	return interfaces.TreeParams{
		MaxDepth:      t.MaxDepth,
		MaxBufferSize: t.MaxBufferSize,
		CanopyDepth:   t.CanopyDepth,
	}
}

// Root returns the current root.
func (t *Tree) Root() interfaces.Hash {
	return t.ChangeLogs[t.ActiveIndex].Root
}

// Append adds leaf at the next free position and returns the recorded changelog.
func (t *Tree) Append(leaf interfaces.Hash) (ChangeLog, error) {
	if uint64(t.NextIndex) >= Capacity(t.MaxDepth) {
		return ChangeLog{}, fmt.Errorf("%w: %d leaves", ErrTreeFull, t.NextIndex)
	}

	index := t.NextIndex
	path := make([]interfaces.Hash, t.MaxDepth)
	node := leaf
	for level := uint32(0); level < t.MaxDepth; level++ {
		path[level] = node
		if (index>>level)&1 == 0 {
			t.Filled[level] = node
			node = hashPair(node, EmptyNode(level))
		} else {
			node = hashPair(t.Filled[level], node)
		}
	}

	for level := t.MaxDepth - t.CanopyDepth; level < t.MaxDepth; level++ {
		fromTop := t.MaxDepth - level
		t.Canopy[(1<<fromTop)-2+(index>>level)] = path[level]
	}

	t.ActiveIndex = (t.ActiveIndex + 1) % uint64(t.MaxBufferSize)
	if t.BufferSize < uint64(t.MaxBufferSize) {
		t.BufferSize++
	}
	t.Seq++
	cl := ChangeLog{Root: node, Path: path, Index: index}
	t.ChangeLogs[t.ActiveIndex] = cl

	t.RightmostLeaf = leaf
	t.NextIndex++
	return cl, nil
}

// Event renders the active changelog as the event logged for it.
func (t *Tree) Event(id interfaces.Pubkey) interfaces.LeafAppendEvent {
	cl := t.ChangeLogs[t.ActiveIndex]
	nodes := make([]interfaces.PathNode, 0, t.MaxDepth+1)
	position := uint32(1)<<t.MaxDepth + cl.Index
	for level, node := range cl.Path {
		nodes = append(nodes, interfaces.PathNode{Node: node, Index: position >> level})
	}
	nodes = append(nodes, interfaces.PathNode{Node: cl.Root, Index: 1})
	return interfaces.LeafAppendEvent{
		TreeID: id,
		Seq:    t.Seq,
		Index:  cl.Index,
		Root:   cl.Root,
		Path:   nodes,
	}
}

// Encode serializes t into an account of AccountSize(t.Params()) bytes.
func (t *Tree) Encode() []byte {
	size := AccountSize(t.Params())
	enc := codec.NewEncoder(size)
	enc.U8(AccountTypeConcurrentMerkleTree)
	enc.U8(HeaderVersionV1)
	enc.U32(t.MaxBufferSize)
	enc.U32(t.MaxDepth)
	enc.Pubkey(t.Authority)
	enc.U64(t.CreationSlot)
	enc.Bool(false)
	enc.Zeros(5)

	enc.U64(t.Seq)
	enc.U64(t.ActiveIndex)
	enc.U64(t.BufferSize)
	for _, cl := range t.ChangeLogs {
		enc.Hash(cl.Root)
		for _, node := range cl.Path {
			enc.Hash(node)
		}
		enc.U32(cl.Index)
		enc.U32(0)
	}

	for _, node := range t.Filled {
		enc.Hash(node)
	}
	enc.Hash(t.RightmostLeaf)
	enc.U32(t.NextIndex)
	enc.U32(0)

	for _, node := range t.Canopy {
		enc.Hash(node)
	}
	return enc.Bytes()
}

// DecodeHeader parses the header of a tree account.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderLength {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrTreeAccountSize, len(data))
	}
	dec := codec.NewDecoder(data[:HeaderLength])
	accountType := dec.U8()
	version := dec.U8()
	if accountType == AccountTypeUninitialized {
		return Header{}, ErrTreeNotInitialized
	}
	if accountType != AccountTypeConcurrentMerkleTree || version != HeaderVersionV1 {
		return Header{}, fmt.Errorf("%w: account type %d version %d", interfaces.ErrCorruptState, accountType, version)
	}
	h := Header{
		MaxBufferSize: dec.U32(),
		MaxDepth:      dec.U32(),
		Authority:     dec.Pubkey(),
		CreationSlot:  dec.U64(),
	}
	return h, dec.Err()
}

// canopyDepthFromSize recovers the canopy depth from the account length.
func canopyDepthFromSize(h Header, size int) (uint32, error) {
	rest := size - treeLengthWithoutCanopy(h.MaxDepth, h.MaxBufferSize)
	if rest < 0 || rest%32 != 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrTreeAccountSize, size)
	}
	for depth := uint32(0); depth <= MaxCanopyDepth; depth++ {
		if canopyNodes(depth) == rest/32 {
			return depth, nil
		}
	}
	return 0, fmt.Errorf("%w: canopy of %d nodes", ErrTreeAccountSize, rest/32)
}

// DecodeTree parses a tree account.
func DecodeTree(data []byte) (*Tree, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateParams(interfaces.TreeParams{MaxDepth: h.MaxDepth, MaxBufferSize: h.MaxBufferSize}); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCorruptState, err)
	}
	canopy, err := canopyDepthFromSize(h, len(data))
	if err != nil {
		return nil, err
	}

	t := &Tree{Header: h, CanopyDepth: canopy}
	dec := codec.NewDecoder(data[HeaderLength:])
	t.Seq = dec.U64()
	t.ActiveIndex = dec.U64()
	t.BufferSize = dec.U64()
	if t.ActiveIndex >= uint64(h.MaxBufferSize) || t.BufferSize > uint64(h.MaxBufferSize) {
		return nil, fmt.Errorf("%w: changelog buffer position", interfaces.ErrCorruptState)
	}

	t.ChangeLogs = make([]ChangeLog, h.MaxBufferSize)
	for i := range t.ChangeLogs {
		cl := &t.ChangeLogs[i]
		cl.Root = dec.Hash()
		cl.Path = make([]interfaces.Hash, h.MaxDepth)
		for level := range cl.Path {
			cl.Path[level] = dec.Hash()
		}
		cl.Index = dec.U32()
		dec.Skip(4)
	}

	t.Filled = make([]interfaces.Hash, h.MaxDepth)
	for level := range t.Filled {
		t.Filled[level] = dec.Hash()
	}
	t.RightmostLeaf = dec.Hash()
	t.NextIndex = dec.U32()
	dec.Skip(4)

	t.Canopy = make([]interfaces.Hash, canopyNodes(canopy))
	for i := range t.Canopy {
		t.Canopy[i] = dec.Hash()
	}
	if err := dec.Finish(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCorruptState, err)
	}
	return t, nil
}

// IsZeroed reports whether data has never been initialized.
func IsZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
