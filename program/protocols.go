package program

import (
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
)

// CompressionProtocol is the external program that owns tree storage. Every method runs
// as a cross-program call from within the registry's executing instruction.
type CompressionProtocol interface {
	// ProgramID returns the program the registry calls into.
	ProgramID() interfaces.Pubkey

	// SupportsTree fails with ErrInvalidTreeParameters for parameters the protocol cannot allocate.
	SupportsTree(params interfaces.TreeParams) error

	// AllocateTree creates an empty tree at args.Tree with args.Authority as authority.
	AllocateTree(ctx *ledger.Context, args interfaces.AllocateTreeArgs) error

	// SetTreeAuthority hands the tree from current, which must sign, to next.
	SetTreeAuthority(ctx *ledger.Context, tree, current, next interfaces.Pubkey) error

	// AppendLeaf mints a leaf. signerSeeds let the registry sign as args.Authority.
	AppendLeaf(ctx *ledger.Context, args interfaces.AppendLeafArgs, signerSeeds [][][]byte) (interfaces.LeafAppendEvent, error)

	// TreeAccount reads a tree declared by the executing instruction.
	TreeAccount(ctx *ledger.Context, tree interfaces.Pubkey) (*interfaces.TreeAccount, error)

	// CreateTreeAccounts lists the accounts AllocateTree and SetTreeAuthority touch.
	CreateTreeAccounts(tree, payer interfaces.Pubkey) []ledger.AccountMeta

	// MintAccounts lists the accounts AppendLeaf touches.
	MintAccounts(args interfaces.AppendLeafArgs) []ledger.AccountMeta
}

// CollectionProtocol is the external program holding collection metadata.
type CollectionProtocol interface {
	ProgramID() interfaces.Pubkey

	// Collection reads the collection of mint. Its metadata and master edition accounts
	// must be declared by the executing instruction.
	Collection(ctx *ledger.Context, mint interfaces.Pubkey) (*interfaces.CollectionInfo, error)
}
