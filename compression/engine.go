package compression

import (
	"context"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/metadata"
	"github.com/ruteri/compressed-tree-registry/pda"
)

// AccountReader reads committed accounts.
type AccountReader interface {
	Account(ctx context.Context, key interfaces.Pubkey) (*ledger.Account, error)
}

// Engine is the calling side of the compression protocol. Programs use it to allocate
// trees and mint leaves through cross-program calls, and clients use it to list the
// accounts those calls touch and to read tree state.
type Engine struct {
	collections *metadata.Program
	bubblegum   *Bubblegum
	compression *AccountCompression
}

func NewEngine(collections *metadata.Program) *Engine {
	return &Engine{
		collections: collections,
		bubblegum:   NewBubblegum(collections),
		compression: &AccountCompression{},
	}
}

// Deploy installs the minting and tree programs, and the collection program they verify against.
func (e *Engine) Deploy(ctx context.Context, l *ledger.Ledger) error {
	if err := l.Deploy(ctx, pda.CompressionProgramID, e.compression); err != nil {
		return fmt.Errorf("deploy account compression: %w", err)
	}
	if err := l.Deploy(ctx, pda.BubblegumProgramID, e.bubblegum); err != nil {
		return fmt.Errorf("deploy bubblegum: %w", err)
	}
	if err := l.Deploy(ctx, pda.MetadataProgramID, e.collections); err != nil {
		return fmt.Errorf("deploy collection metadata: %w", err)
	}
	return nil
}

// ProgramID returns the entry point programs call into.
func (e *Engine) ProgramID() interfaces.Pubkey {
	return pda.BubblegumProgramID
}

// SupportsTree checks the allocation parameters.
func (e *Engine) SupportsTree(params interfaces.TreeParams) error {
	return ValidateParams(params)
}

// CreateTreeAccounts lists the accounts AllocateTree and SetTreeAuthority touch.
func (e *Engine) CreateTreeAccounts(tree, payer interfaces.Pubkey) []ledger.AccountMeta {
	config, _ := pda.TreeConfig(tree)
	return []ledger.AccountMeta{
		ledger.Writable(config, false),
		ledger.Writable(tree, true),
		ledger.Writable(payer, true),
		ledger.ReadOnly(pda.BubblegumProgramID, false),
		ledger.ReadOnly(pda.CompressionProgramID, false),
		ledger.ReadOnly(pda.NoopProgramID, false),
	}
}

// MintAccounts lists the accounts AppendLeaf touches. Only the payer signs the
// transaction; the authority is signed for by the calling program.
func (e *Engine) MintAccounts(args interfaces.AppendLeafArgs) []ledger.AccountMeta {
	accounts := mintAccounts(args)
	for i := range accounts {
		accounts[i].IsSigner = accounts[i].Pubkey == args.Payer
	}
	return append(accounts, ledger.ReadOnly(pda.BubblegumProgramID, false))
}

// AllocateTree creates the tree account, its configuration and an empty tree with
// args.Authority as minting authority.
func (e *Engine) AllocateTree(ctx *ledger.Context, args interfaces.AllocateTreeArgs) error {
	if err := ValidateParams(args.Params); err != nil {
		return err
	}
	return ctx.Invoke(createTreeConfigInstruction(args), nil)
}

// SetTreeAuthority hands the minting authority of tree from current to next. current must sign.
func (e *Engine) SetTreeAuthority(ctx *ledger.Context, tree, current, next interfaces.Pubkey) error {
	return ctx.Invoke(setTreeCreatorInstruction(tree, current, next), nil)
}

// AppendLeaf mints a leaf. signerSeeds let the calling program sign as args.Authority.
// The returned event is the changelog recorded for the append.
func (e *Engine) AppendLeaf(ctx *ledger.Context, args interfaces.AppendLeafArgs, signerSeeds [][][]byte) (interfaces.LeafAppendEvent, error) {
	if err := ctx.InvokeSigned(mintInstruction(args), signerSeeds, nil); err != nil {
		return interfaces.LeafAppendEvent{}, err
	}

	a, err := ctx.Account(args.Tree)
	if err != nil {
		return interfaces.LeafAppendEvent{}, err
	}
	tree, err := DecodeTree(a.Data)
	if err != nil {
		return interfaces.LeafAppendEvent{}, err
	}
	return tree.Event(args.Tree), nil
}

// TreeAccount reads a tree declared by the executing instruction.
func (e *Engine) TreeAccount(ctx *ledger.Context, tree interfaces.Pubkey) (*interfaces.TreeAccount, error) {
	a, err := ctx.Account(tree)
	if err != nil {
		return nil, err
	}
	config, _ := pda.TreeConfig(tree)
	c, err := ctx.Account(config)
	if err != nil {
		return nil, err
	}
	return treeAccount(tree, a, c)
}

// FetchTree reads the committed state of tree.
func (e *Engine) FetchTree(ctx context.Context, reader AccountReader, tree interfaces.Pubkey) (*interfaces.TreeAccount, error) {
	a, err := reader.Account(ctx, tree)
	if err != nil {
		return nil, fmt.Errorf("tree %s: %w", tree, err)
	}
	config, _ := pda.TreeConfig(tree)
	c, err := reader.Account(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("tree config %s: %w", config, err)
	}
	return treeAccount(tree, a, c)
}

func treeAccount(address interfaces.Pubkey, treeAccount, configAccount *ledger.Account) (*interfaces.TreeAccount, error) {
	if treeAccount.Owner != pda.CompressionProgramID || configAccount.Owner != pda.BubblegumProgramID {
		return nil, fmt.Errorf("%w: %s is not a compressed tree", interfaces.ErrCorruptState, address)
	}
	tree, err := DecodeTree(treeAccount.Data)
	if err != nil {
		return nil, err
	}
	config, err := DecodeTreeConfig(configAccount.Data)
	if err != nil {
		return nil, err
	}
	return &interfaces.TreeAccount{
		Address:       address,
		MaxDepth:      tree.MaxDepth,
		MaxBufferSize: tree.MaxBufferSize,
		CanopyDepth:   tree.CanopyDepth,
		CreationSlot:  tree.CreationSlot,
		Root:          tree.Root(),
		Seq:           tree.Seq,
		NumLeaves:     uint64(tree.NextIndex),
		Authority:     config.Creator,
		Delegate:      config.Delegate,
	}, nil
}
