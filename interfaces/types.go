package interfaces

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// TreeInfo is the write-once record the registry keeps for every provisioned tree.
type TreeInfo struct {
	Address       Pubkey `json:"address"`
	MaxDepth      uint32 `json:"max_depth"`
	MaxBufferSize uint32 `json:"max_buffer_size"`
	CanopyDepth   uint32 `json:"canopy_depth"`
}

// TreeParams are the allocation parameters of a new tree.
type TreeParams struct {
	MaxDepth      uint32 `json:"max_depth"`
	MaxBufferSize uint32 `json:"max_buffer_size"`
	CanopyDepth   uint32 `json:"canopy_depth"`
}

// AllocateTreeArgs asks the compression protocol for a new tree. Tree must sign and
// Authority becomes the tree's initial minting authority.
type AllocateTreeArgs struct {
	Tree      Pubkey     `json:"tree"`
	Payer     Pubkey     `json:"payer"`
	Authority Pubkey     `json:"authority"`
	Params    TreeParams `json:"params"`
	Public    bool       `json:"public"`
}

// AppendLeafArgs asks the compression protocol to mint a leaf. Authority must sign.
// A non-nil CollectionMint verifies the leaf as a member of that collection.
type AppendLeafArgs struct {
	Tree           Pubkey       `json:"tree"`
	Authority      Pubkey       `json:"authority"`
	Owner          Pubkey       `json:"owner"`
	Delegate       Pubkey       `json:"delegate"`
	Payer          Pubkey       `json:"payer"`
	Metadata       MetadataArgs `json:"metadata"`
	CollectionMint *Pubkey      `json:"collection_mint,omitempty"`
}

// TreeAccount is the observable state of an allocated tree.
type TreeAccount struct {
	Address       Pubkey `json:"address"`
	MaxDepth      uint32 `json:"max_depth"`
	MaxBufferSize uint32 `json:"max_buffer_size"`
	CanopyDepth   uint32 `json:"canopy_depth"`
	CreationSlot  uint64 `json:"creation_slot"`
	Root          Hash   `json:"root"`
	Seq           uint64 `json:"seq"`
	NumLeaves     uint64 `json:"num_leaves"`
	// Authority is the identity allowed to mint into the tree.
	Authority Pubkey `json:"authority"`
	// Delegate may mint on the authority's behalf.
	Delegate Pubkey `json:"delegate"`
}

// RegistryState is the decoded registry singleton.
// Trees holds exactly TreeCount valid entries.
type RegistryState struct {
	Creator   Pubkey     `json:"creator"`
	TreeCount uint32     `json:"tree_count"`
	Capacity  uint32     `json:"capacity"`
	Trees     []TreeInfo `json:"trees"`
}

// Tree returns the registered entry for address.
func (s *RegistryState) Tree(address Pubkey) (TreeInfo, bool) {
	for _, tree := range s.Trees {
		if tree.Address == address {
			return tree, true
		}
	}
	return TreeInfo{}, false
}

// TokenStandard mirrors the metadata protocol's token standard enum.
type TokenStandard uint8

const (
	NonFungible TokenStandard = iota
	FungibleAsset
	Fungible
	NonFungibleEdition
)

// TokenProgramVersion mirrors the compression protocol's token program enum.
type TokenProgramVersion uint8

const (
	TokenProgramOriginal TokenProgramVersion = iota
	TokenProgram2022
)

// Creator is a royalty recipient of a leaf.
type Creator struct {
	Address  Pubkey `json:"address"`
	Verified bool   `json:"verified"`
	Share    uint8  `json:"share"`
}

// LeafCollection links a leaf to a collection mint.
type LeafCollection struct {
	Verified bool   `json:"verified"`
	Key      Pubkey `json:"key"`
}

// MetadataArgs is the canonical leaf payload passed to the compression protocol.
type MetadataArgs struct {
	Name                 string              `json:"name"`
	Symbol               string              `json:"symbol"`
	URI                  string              `json:"uri"`
	SellerFeeBasisPoints uint16              `json:"seller_fee_basis_points"`
	PrimarySaleHappened  bool                `json:"primary_sale_happened"`
	IsMutable            bool                `json:"is_mutable"`
	EditionNonce         *uint8              `json:"edition_nonce,omitempty"`
	TokenStandard        *TokenStandard      `json:"token_standard,omitempty"`
	Collection           *LeafCollection     `json:"collection,omitempty"`
	TokenProgramVersion  TokenProgramVersion `json:"token_program_version"`
	Creators             []Creator           `json:"creators"`
}

// PathNode is one node of a changelog path, leaf first.
type PathNode struct {
	Node  Hash   `json:"node"`
	Index uint32 `json:"index"`
}

// LeafAppendEvent is the decoded changelog event emitted for a leaf append.
type LeafAppendEvent struct {
	TreeID Pubkey     `json:"tree_id"`
	Seq    uint64     `json:"seq"`
	Index  uint32     `json:"index"`
	Root   Hash       `json:"root"`
	Path   []PathNode `json:"path"`
}

// InnerInstruction is one entry of a transaction's inner call log.
type InnerInstruction struct {
	ProgramID   Pubkey   `json:"program_id"`
	StackHeight int      `json:"stack_height"`
	Data        HexBytes `json:"data"`
}

// Receipt is the recorded outcome of a ledger transaction.
type Receipt struct {
	Signature         string             `json:"signature"`
	Slot              uint64             `json:"slot"`
	Program           Pubkey             `json:"program"`
	Instruction       string             `json:"instruction"`
	Signers           []Pubkey           `json:"signers"`
	InnerInstructions []InnerInstruction `json:"inner_instructions"`
	LogMessages       []string           `json:"log_messages"`
	Err               string             `json:"err,omitempty"`
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool {
	return r.Err == ""
}

// MintRequest describes a leaf to append to a registered tree.
type MintRequest struct {
	Tree          Pubkey       `json:"tree"`
	TreeAuthority *Pubkey      `json:"tree_authority,omitempty"`
	LeafOwner     Pubkey       `json:"leaf_owner"`
	LeafDelegate  *Pubkey      `json:"leaf_delegate,omitempty"`
	Metadata      MetadataArgs `json:"metadata"`
}

// MintResult is a committed mint together with its recovered append event.
type MintResult struct {
	Receipt *Receipt        `json:"receipt"`
	Event   LeafAppendEvent `json:"event"`
	AssetID Pubkey          `json:"asset_id"`
}

// CollectionArgs describes a collection created in the metadata protocol.
type CollectionArgs struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	URI             string `json:"uri"`
	UpdateAuthority Pubkey `json:"update_authority"`
	Sized           bool   `json:"sized"`
}

// CollectionInfo is the decoded collection metadata and master edition.
type CollectionInfo struct {
	Mint            Pubkey  `json:"mint"`
	Metadata        Pubkey  `json:"metadata"`
	MasterEdition   Pubkey  `json:"master_edition"`
	UpdateAuthority Pubkey  `json:"update_authority"`
	Name            string  `json:"name"`
	Symbol          string  `json:"symbol"`
	URI             string  `json:"uri"`
	Size            *uint64 `json:"size,omitempty"`
}

// Hash is a 32-byte tree node digest.
type Hash [32]byte

// String returns the hex rendering.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil || len(raw) != len(h) {
		return fmt.Errorf("invalid hash %q", text)
	}
	copy(h[:], raw)
	return nil
}

// HexBytes renders raw bytes as hex in JSON.
type HexBytes []byte

func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex bytes: %w", err)
	}
	*b = raw
	return nil
}
