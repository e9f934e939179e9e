// Package changelog encodes and decodes the events a compressed tree emits through the
// log wrapper program, and recovers the leaf appended by a mint from a transaction's
// inner instructions.
//
// Events are a tagged union:
//
//	0 ChangeLog        version u8 (0) | id [32] | path vec<PathNode> | seq u64 | index u32
//	1 ApplicationData  version u8 (0) | data vec<u8>
//
//	PathNode = node [32] | index u32
//
// A changelog path lists max_depth+1 nodes from the leaf to the root. Node indices are
// heap positions: the root is 1 and the leaf at position i of a tree of depth d is 2^d+i.
package changelog

import (
	"errors"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/pda"
)

const (
	TagChangeLog       uint8 = 0
	TagApplicationData uint8 = 1

	VersionV1 uint8 = 0

	// MaxPathLength bounds the path of a decoded event. It is the deepest supported tree plus the root.
	MaxPathLength = 31

	// MaxApplicationData bounds the payload of an application data event.
	MaxApplicationData = 10 * 1024
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrUnknownVersion = errors.New("unknown event version")
)

// EncodeChangeLog serializes a changelog event.
func EncodeChangeLog(e interfaces.LeafAppendEvent) []byte {
	enc := codec.NewEncoder(2 + 32 + 4 + len(e.Path)*36 + 12)
	enc.U8(TagChangeLog)
	enc.U8(VersionV1)
	enc.Pubkey(e.TreeID)
	enc.U32(uint32(len(e.Path)))
	for _, node := range e.Path {
		enc.Hash(node.Node)
		enc.U32(node.Index)
	}
	enc.U64(e.Seq)
	enc.U32(e.Index)
	return enc.Bytes()
}

// EncodeApplicationData serializes an application data event.
func EncodeApplicationData(data []byte) []byte {
	enc := codec.NewEncoder(2 + 4 + len(data))
	enc.U8(TagApplicationData)
	enc.U8(VersionV1)
	enc.VecBytes(data)
	return enc.Bytes()
}

// DecodeChangeLog parses a changelog event. The root is taken from the last path node.
func DecodeChangeLog(data []byte) (interfaces.LeafAppendEvent, error) {
	dec := codec.NewDecoder(data)
	if tag := dec.U8(); dec.Err() == nil && tag != TagChangeLog {
		return interfaces.LeafAppendEvent{}, fmt.Errorf("%w: tag %d", ErrUnknownEvent, tag)
	}
	if version := dec.U8(); dec.Err() == nil && version != VersionV1 {
		return interfaces.LeafAppendEvent{}, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}

	e := interfaces.LeafAppendEvent{TreeID: dec.Pubkey()}
	n := dec.VecLen(MaxPathLength)
	e.Path = make([]interfaces.PathNode, 0, n)
	for i := 0; i < n; i++ {
		e.Path = append(e.Path, interfaces.PathNode{Node: dec.Hash(), Index: dec.U32()})
	}
	e.Seq = dec.U64()
	e.Index = dec.U32()
	if err := dec.Finish(); err != nil {
		return interfaces.LeafAppendEvent{}, fmt.Errorf("decode changelog: %w", err)
	}
	if len(e.Path) == 0 {
		return interfaces.LeafAppendEvent{}, errors.New("decode changelog: empty path")
	}
	e.Root = e.Path[len(e.Path)-1].Node
	return e, nil
}

// DecodeApplicationData parses an application data event and returns its payload.
func DecodeApplicationData(data []byte) ([]byte, error) {
	dec := codec.NewDecoder(data)
	if tag := dec.U8(); dec.Err() == nil && tag != TagApplicationData {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownEvent, tag)
	}
	if version := dec.U8(); dec.Err() == nil && version != VersionV1 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	n := dec.VecLen(MaxApplicationData)
	payload := append([]byte(nil), dec.Raw(n)...)
	if err := dec.Finish(); err != nil {
		return nil, fmt.Errorf("decode application data: %w", err)
	}
	return payload, nil
}

// RecoverLeafAppendEvent returns the first changelog event for tree logged through the
// log wrapper program. Entries from other programs, entries that do not decode as a
// changelog and changelogs of other trees are skipped.
func RecoverLeafAppendEvent(inner []interfaces.InnerInstruction, tree interfaces.Pubkey) (interfaces.LeafAppendEvent, error) {
	for _, ix := range inner {
		if ix.ProgramID != pda.NoopProgramID {
			continue
		}
		event, err := DecodeChangeLog(ix.Data)
		if err != nil {
			continue
		}
		if event.TreeID != tree {
			continue
		}
		return event, nil
	}
	return interfaces.LeafAppendEvent{}, fmt.Errorf("%w: tree %s", interfaces.ErrEventNotFound, tree)
}

// AssetID returns the identifier of the leaf minted with the given nonce. The nonce of a
// leaf is its index in the tree.
func AssetID(tree interfaces.Pubkey, nonce uint64) interfaces.Pubkey {
	id, _ := pda.Asset(tree, nonce)
	return id
}
