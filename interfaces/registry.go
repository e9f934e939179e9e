package interfaces

import "context"

// Registry is the client side of the registry program: every method that changes state
// builds, signs and submits one ledger transaction with the payer identity.
type Registry interface {
	// ProgramID returns the registry program the client talks to.
	ProgramID() Pubkey

	// Payer returns the identity funding and signing transactions.
	Payer() Pubkey

	// TreeAuthority returns the derived identity that controls tree.
	TreeAuthority(tree Pubkey) Pubkey

	// Initialize creates the registry state with the payer as creator.
	Initialize(ctx context.Context) (*Receipt, error)

	// CloseStateAccount deletes the registry state and moves its lamports to receiver.
	CloseStateAccount(ctx context.Context, receiver Pubkey) (*Receipt, error)

	// State reads the committed registry state.
	State(ctx context.Context) (*RegistryState, error)

	// CreateTree provisions a tree at the address the KMS derives for label and registers it.
	CreateTree(ctx context.Context, label string, params TreeParams) (*TreeInfo, *Receipt, error)

	// Tree reads the committed state of a tree.
	Tree(ctx context.Context, tree Pubkey) (*TreeAccount, error)

	// Mint appends a leaf to a registered tree and recovers its position.
	Mint(ctx context.Context, req *MintRequest) (*MintResult, error)

	// MintToCollection is Mint with the leaf verified as a member of collectionMint.
	MintToCollection(ctx context.Context, req *MintRequest, collectionMint Pubkey) (*MintResult, error)

	// CreateCollection creates a collection at the mint address the KMS derives for label.
	CreateCollection(ctx context.Context, label string, args CollectionArgs) (*CollectionInfo, *Receipt, error)

	// Collection reads the committed state of a collection.
	Collection(ctx context.Context, mint Pubkey) (*CollectionInfo, error)

	// Receipt returns the recorded outcome of a transaction.
	Receipt(ctx context.Context, signature string) (*Receipt, error)

	// RecoverLeaf decodes the leaf a committed mint appended to tree.
	RecoverLeaf(ctx context.Context, signature string, tree Pubkey) (*MintResult, error)

	// Airdrop funds an account on development ledgers.
	Airdrop(ctx context.Context, to Pubkey, lamports uint64) error
}
