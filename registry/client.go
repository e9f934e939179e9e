package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ruteri/compressed-tree-registry/changelog"
	"github.com/ruteri/compressed-tree-registry/compression"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/metadata"
	"github.com/ruteri/compressed-tree-registry/pda"
	"github.com/ruteri/compressed-tree-registry/program"
	"github.com/ruteri/compressed-tree-registry/state"
)

// ErrTransactionFailed is returned when asked to recover a leaf from a transaction that did not commit.
var ErrTransactionFailed = errors.New("transaction failed")

// Backend is the ledger the client submits to and reads from.
type Backend interface {
	Execute(ctx context.Context, tx *ledger.Transaction) (*interfaces.Receipt, error)
	Account(ctx context.Context, key interfaces.Pubkey) (*ledger.Account, error)
	Receipt(ctx context.Context, signature string) (*interfaces.Receipt, error)
	Airdrop(ctx context.Context, to interfaces.Pubkey, lamports uint64) error
}

type Options struct {
	// ProgramID is the registry program. Defaults to pda.DefaultRegistryProgramID.
	ProgramID interfaces.Pubkey

	Log *slog.Logger
}

// Client implements interfaces.Registry on top of a ledger backend.
type Client struct {
	backend     Backend
	kms         interfaces.KMS
	payer       interfaces.Signer
	programID   interfaces.Pubkey
	engine      *compression.Engine
	collections *metadata.Program
	log         *slog.Logger
}

var _ interfaces.Registry = (*Client)(nil)

// NewClient creates a client signing with the payer key of kms.
func NewClient(backend Backend, kms interfaces.KMS, opts Options) (*Client, error) {
	payer, err := kms.PayerKey()
	if err != nil {
		return nil, fmt.Errorf("could not derive payer key: %w", err)
	}

	programID := opts.ProgramID
	if programID.IsZero() {
		programID = pda.DefaultRegistryProgramID
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	collections := metadata.New()
	return &Client{
		backend:     backend,
		kms:         kms,
		payer:       payer,
		programID:   programID,
		engine:      compression.NewEngine(collections),
		collections: collections,
		log:         log,
	}, nil
}

func (c *Client) ProgramID() interfaces.Pubkey {
	return c.programID
}

func (c *Client) Payer() interfaces.Pubkey {
	return c.payer.PublicKey()
}

func (c *Client) TreeAuthority(tree interfaces.Pubkey) interfaces.Pubkey {
	authority, _ := pda.TreeAuthority(tree, c.programID)
	return authority
}

// submit signs ix with the payer and the extra signers and executes it.
func (c *Client) submit(ctx context.Context, ix ledger.Instruction, signers ...interfaces.Signer) (*interfaces.Receipt, error) {
	tx := ledger.NewTransaction(c.payer.PublicKey(), ix)
	if err := tx.Sign(append([]interfaces.Signer{c.payer}, signers...)...); err != nil {
		return nil, err
	}

	receipt, err := c.backend.Execute(ctx, tx)
	if err != nil {
		c.log.Warn("Transaction failed", "instruction", ix.Name, "signature", tx.Signature(), "err", err)
		return receipt, err
	}
	c.log.Info("Transaction committed", "instruction", ix.Name, "signature", receipt.Signature, "slot", receipt.Slot)
	return receipt, nil
}

func (c *Client) Initialize(ctx context.Context) (*interfaces.Receipt, error) {
	return c.submit(ctx, program.InitializeInstruction(c.programID, c.payer.PublicKey()))
}

func (c *Client) CloseStateAccount(ctx context.Context, receiver interfaces.Pubkey) (*interfaces.Receipt, error) {
	return c.submit(ctx, program.CloseStateAccountInstruction(c.programID, c.payer.PublicKey(), receiver))
}

func (c *Client) State(ctx context.Context) (*interfaces.RegistryState, error) {
	address, _ := pda.RegistryState(c.programID)
	a, err := c.backend.Account(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("registry state: %w", err)
	}
	if a.Owner != c.programID {
		return nil, fmt.Errorf("%w: registry state is owned by %s", interfaces.ErrCorruptState, a.Owner)
	}
	return state.Decode(a.Data)
}

// CreateTree provisions a tree. An empty label picks a fresh one.
func (c *Client) CreateTree(ctx context.Context, label string, params interfaces.TreeParams) (*interfaces.TreeInfo, *interfaces.Receipt, error) {
	if label == "" {
		label = uuid.NewString()
	}
	tree, err := c.kms.TreeKey(label)
	if err != nil {
		return nil, nil, err
	}

	protocol := c.engine.CreateTreeAccounts(tree.PublicKey(), c.payer.PublicKey())
	ix := program.CreateTreeInstruction(c.programID, c.payer.PublicKey(), tree.PublicKey(), params, protocol)
	receipt, err := c.submit(ctx, ix, tree)
	if err != nil {
		return nil, receipt, err
	}

	c.log.Info("Tree created", "label", label, "tree", tree.PublicKey(), "depth", params.MaxDepth, "buffer", params.MaxBufferSize)
	return &interfaces.TreeInfo{
		Address:       tree.PublicKey(),
		MaxDepth:      params.MaxDepth,
		MaxBufferSize: params.MaxBufferSize,
		CanopyDepth:   params.CanopyDepth,
	}, receipt, nil
}

func (c *Client) Tree(ctx context.Context, tree interfaces.Pubkey) (*interfaces.TreeAccount, error) {
	return c.engine.FetchTree(ctx, c.backend, tree)
}

func (c *Client) Mint(ctx context.Context, req *interfaces.MintRequest) (*interfaces.MintResult, error) {
	return c.mint(ctx, req, nil)
}

func (c *Client) MintToCollection(ctx context.Context, req *interfaces.MintRequest, collectionMint interfaces.Pubkey) (*interfaces.MintResult, error) {
	return c.mint(ctx, req, &collectionMint)
}

func (c *Client) mint(ctx context.Context, req *interfaces.MintRequest, collectionMint *interfaces.Pubkey) (*interfaces.MintResult, error) {
	delegate := req.LeafOwner
	if req.LeafDelegate != nil {
		delegate = *req.LeafDelegate
	}
	protocol := c.engine.MintAccounts(interfaces.AppendLeafArgs{
		Tree:           req.Tree,
		Authority:      program.TreeAuthorityFor(c.programID, req),
		Owner:          req.LeafOwner,
		Delegate:       delegate,
		Payer:          c.payer.PublicKey(),
		Metadata:       req.Metadata,
		CollectionMint: collectionMint,
	})

	ix := program.MintInstruction(c.programID, c.payer.PublicKey(), req, collectionMint, protocol)
	receipt, err := c.submit(ctx, ix)
	if err != nil {
		return nil, err
	}
	return c.leafFromReceipt(receipt, req.Tree)
}

func (c *Client) leafFromReceipt(receipt *interfaces.Receipt, tree interfaces.Pubkey) (*interfaces.MintResult, error) {
	if !receipt.Succeeded() {
		return nil, fmt.Errorf("%w: %s", ErrTransactionFailed, receipt.Err)
	}
	event, err := changelog.RecoverLeafAppendEvent(receipt.InnerInstructions, tree)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", receipt.Signature, err)
	}
	return &interfaces.MintResult{
		Receipt: receipt,
		Event:   event,
		AssetID: changelog.AssetID(tree, uint64(event.Index)),
	}, nil
}

// CreateCollection creates a collection. An empty label picks a fresh one; a label whose
// mint already holds a collection returns that collection without a receipt.
func (c *Client) CreateCollection(ctx context.Context, label string, args interfaces.CollectionArgs) (*interfaces.CollectionInfo, *interfaces.Receipt, error) {
	if label == "" {
		label = uuid.NewString()
	}
	mint, err := c.kms.CollectionMintKey(label)
	if err != nil {
		return nil, nil, err
	}

	if a, err := c.backend.Account(ctx, mint.PublicKey()); err == nil && metadata.IsMint(a) {
		info, err := c.Collection(ctx, mint.PublicKey())
		return info, nil, err
	}

	ix := metadata.CreateCollectionInstruction(c.payer.PublicKey(), mint.PublicKey(), args)
	receipt, err := c.submit(ctx, ix, mint)
	if err != nil {
		return nil, receipt, err
	}

	info, err := c.Collection(ctx, mint.PublicKey())
	if err != nil {
		return nil, receipt, err
	}
	c.log.Info("Collection created", "label", label, "mint", info.Mint, "update_authority", info.UpdateAuthority)
	return info, receipt, nil
}

func (c *Client) Collection(ctx context.Context, mint interfaces.Pubkey) (*interfaces.CollectionInfo, error) {
	return c.collections.FetchCollection(ctx, c.backend, mint)
}

func (c *Client) Receipt(ctx context.Context, signature string) (*interfaces.Receipt, error) {
	return c.backend.Receipt(ctx, signature)
}

func (c *Client) RecoverLeaf(ctx context.Context, signature string, tree interfaces.Pubkey) (*interfaces.MintResult, error) {
	receipt, err := c.backend.Receipt(ctx, signature)
	if err != nil {
		return nil, err
	}
	return c.leafFromReceipt(receipt, tree)
}

func (c *Client) Airdrop(ctx context.Context, to interfaces.Pubkey, lamports uint64) error {
	return c.backend.Airdrop(ctx, to, lamports)
}
