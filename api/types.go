package api

import (
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// CreateTreeRequest is the body of POST /api/trees. An empty label lets the server pick one.
type CreateTreeRequest struct {
	Label         string `json:"label,omitempty"`
	MaxDepth      uint32 `json:"max_depth"`
	MaxBufferSize uint32 `json:"max_buffer_size"`
	CanopyDepth   uint32 `json:"canopy_depth"`
}

// Params returns the allocation parameters of the request.
func (r *CreateTreeRequest) Params() interfaces.TreeParams {
	return interfaces.TreeParams{
		MaxDepth:      r.MaxDepth,
		MaxBufferSize: r.MaxBufferSize,
		CanopyDepth:   r.CanopyDepth,
	}
}

type CreateTreeResponse struct {
	Tree          interfaces.TreeInfo `json:"tree"`
	TreeAuthority interfaces.Pubkey   `json:"tree_authority"`
	Receipt       *interfaces.Receipt `json:"receipt"`
}

// MintRequest is the body of POST /api/trees/{tree}/mint and
// POST /api/trees/{tree}/mint_to_collection. CollectionMint is only read by the latter.
type MintRequest struct {
	LeafOwner      interfaces.Pubkey       `json:"leaf_owner"`
	LeafDelegate   *interfaces.Pubkey      `json:"leaf_delegate,omitempty"`
	Metadata       interfaces.MetadataArgs `json:"metadata"`
	CollectionMint *interfaces.Pubkey      `json:"collection_mint,omitempty"`
}

// CloseRequest is the body of DELETE /api/registry. A missing receiver refunds the payer.
type CloseRequest struct {
	Receiver *interfaces.Pubkey `json:"receiver,omitempty"`
}

// CreateCollectionRequest is the body of POST /api/collections. The collection's update
// authority is the tree authority of Tree, so leaves of that tree can be minted into it.
type CreateCollectionRequest struct {
	Label  string            `json:"label,omitempty"`
	Tree   interfaces.Pubkey `json:"tree"`
	Name   string            `json:"name"`
	Symbol string            `json:"symbol"`
	URI    string            `json:"uri"`
	Sized  bool              `json:"sized"`
}

type CollectionResponse struct {
	Collection *interfaces.CollectionInfo `json:"collection"`
	Receipt    *interfaces.Receipt        `json:"receipt,omitempty"`
}

// ReceiptResponse wraps the receipt of initialize and close_state_account.
type ReceiptResponse struct {
	Receipt *interfaces.Receipt `json:"receipt"`
}

// MetadataResponse is returned by POST /api/metadata.
type MetadataResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// StatusResponse is the body of /readyz.
type StatusResponse struct {
	Status      string            `json:"status"`
	ProgramID   interfaces.Pubkey `json:"program_id"`
	Payer       interfaces.Pubkey `json:"payer"`
	Initialized bool              `json:"initialized"`
	TreeCount   uint32            `json:"tree_count"`
	Capacity    uint32            `json:"capacity"`
	Metadata    bool              `json:"metadata"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
