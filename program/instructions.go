package program

import (
	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/pda"
)

const (
	InitializeIx        = "initialize"
	CloseStateAccountIx = "close_state_account"
	CreateTreeIx        = "create_tree"
	MintIx              = "mint"
	MintToCollectionIx  = "mint_to_collection"
)

var (
	initializeDisc        = codec.InstructionDiscriminator(InitializeIx)
	closeStateAccountDisc = codec.InstructionDiscriminator(CloseStateAccountIx)
	createTreeDisc        = codec.InstructionDiscriminator(CreateTreeIx)
	mintDisc              = codec.InstructionDiscriminator(MintIx)
	mintToCollectionDisc  = codec.InstructionDiscriminator(MintToCollectionIx)
)

// InitializeInstruction creates the registry state of programID, funded and owned by payer.
//
// Accounts: registry state (writable), payer (writable, signer).
func InitializeInstruction(programID, payer interfaces.Pubkey) ledger.Instruction {
	registryState, _ := pda.RegistryState(programID)
	return ledger.Instruction{
		ProgramID: programID,
		Name:      InitializeIx,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(registryState, false),
			ledger.Writable(payer, true),
		},
		Data: append([]byte(nil), initializeDisc[:]...),
	}
}

// CloseStateAccountInstruction deletes the registry state and moves its lamports to receiver.
//
// Accounts: registry state (writable), authority (signer), receiver (writable).
func CloseStateAccountInstruction(programID, authority, receiver interfaces.Pubkey) ledger.Instruction {
	registryState, _ := pda.RegistryState(programID)
	return ledger.Instruction{
		ProgramID: programID,
		Name:      CloseStateAccountIx,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(registryState, false),
			ledger.ReadOnly(authority, true),
			ledger.Writable(receiver, false),
		},
		Data: append([]byte(nil), closeStateAccountDisc[:]...),
	}
}

// CreateTreeInstruction provisions a tree at the tree keypair's address and registers it.
//
// Accounts: registry state (writable), payer (writable, signer), tree (writable, signer),
// tree authority, followed by the accounts the compression protocol touches.
func CreateTreeInstruction(programID, payer, tree interfaces.Pubkey, params interfaces.TreeParams, protocol []ledger.AccountMeta) ledger.Instruction {
	registryState, _ := pda.RegistryState(programID)
	treeAuthority, _ := pda.TreeAuthority(tree, programID)

	enc := codec.InstructionEncoder(CreateTreeIx, 12)
	enc.U32(params.MaxDepth)
	enc.U32(params.MaxBufferSize)
	enc.U32(params.CanopyDepth)

	accounts := []ledger.AccountMeta{
		ledger.Writable(registryState, false),
		ledger.Writable(payer, true),
		ledger.Writable(tree, true),
		ledger.ReadOnly(treeAuthority, false),
	}
	return ledger.Instruction{
		ProgramID: programID,
		Name:      CreateTreeIx,
		Accounts:  append(accounts, protocol...),
		Data:      enc.Bytes(),
	}
}

// MintInstruction appends a leaf to a registered tree. A nil req.TreeAuthority means the
// derived one; a nil req.LeafDelegate means the owner. With a collection mint the leaf is
// verified as a member of that collection.
//
// Accounts: registry state, tree authority, tree (writable), leaf owner, leaf delegate,
// payer (writable, signer), then for collections the collection mint, metadata (writable)
// and master edition, followed by the accounts the compression protocol touches.
func MintInstruction(programID, payer interfaces.Pubkey, req *interfaces.MintRequest, collectionMint *interfaces.Pubkey, protocol []ledger.AccountMeta) ledger.Instruction {
	registryState, _ := pda.RegistryState(programID)
	treeAuthority := TreeAuthorityFor(programID, req)
	delegate := req.LeafOwner
	if req.LeafDelegate != nil {
		delegate = *req.LeafDelegate
	}

	accounts := []ledger.AccountMeta{
		ledger.ReadOnly(registryState, false),
		ledger.ReadOnly(treeAuthority, false),
		ledger.Writable(req.Tree, false),
		ledger.ReadOnly(req.LeafOwner, false),
		ledger.ReadOnly(delegate, false),
		ledger.Writable(payer, true),
	}

	name, disc := MintIx, mintDisc
	if collectionMint != nil {
		name, disc = MintToCollectionIx, mintToCollectionDisc
		metadataKey, _ := pda.CollectionMetadata(*collectionMint)
		edition, _ := pda.MasterEdition(*collectionMint)
		accounts = append(accounts,
			ledger.ReadOnly(*collectionMint, false),
			ledger.Writable(metadataKey, false),
			ledger.ReadOnly(edition, false),
		)
	}

	enc := codec.NewEncoder(codec.DiscriminatorLength + 512)
	enc.Raw(disc[:])
	enc.MetadataArgs(&req.Metadata)

	return ledger.Instruction{
		ProgramID: programID,
		Name:      name,
		Accounts:  append(accounts, protocol...),
		Data:      enc.Bytes(),
	}
}

// TreeAuthorityFor returns the authority a mint request names, defaulting to the derived one.
func TreeAuthorityFor(programID interfaces.Pubkey, req *interfaces.MintRequest) interfaces.Pubkey {
	if req.TreeAuthority != nil {
		return *req.TreeAuthority
	}
	authority, _ := pda.TreeAuthority(req.Tree, programID)
	return authority
}
