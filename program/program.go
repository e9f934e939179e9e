package program

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/metrics"
	"github.com/ruteri/compressed-tree-registry/pda"
	"github.com/ruteri/compressed-tree-registry/state"
)

// DefaultCapacity is the number of trees a registry holds unless configured otherwise.
const DefaultCapacity = state.DefaultCapacity

// ErrStateAddress is returned when the account passed as registry state is not the derived singleton.
var ErrStateAddress = errors.New("account is not the registry state address")

type Options struct {
	// Capacity is fixed into the registry state when it is initialized.
	Capacity uint32

	Log     *slog.Logger
	Metrics *metrics.Collectors
}

// Program is the registry. It keeps the list of trees it provisioned in a single
// derived state account and mints into those trees by signing, as each tree's derived
// authority, calls into the compression protocol.
type Program struct {
	capacity    uint32
	compression CompressionProtocol
	collections CollectionProtocol
	log         *slog.Logger
	metrics     *metrics.Collectors
}

func New(opts Options, compression CompressionProtocol, collections CollectionProtocol) (*Program, error) {
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity > state.MaxCapacity {
		return nil, fmt.Errorf("capacity %d exceeds %d", capacity, state.MaxCapacity)
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Program{
		capacity:    capacity,
		compression: compression,
		collections: collections,
		log:         log,
		metrics:     opts.Metrics,
	}, nil
}

// Capacity returns the capacity new registry states are created with.
func (p *Program) Capacity() uint32 {
	return p.capacity
}

// Process implements ledger.Processor.
func (p *Program) Process(ctx *ledger.Context, data []byte) error {
	disc, args, ok := codec.SplitDiscriminator(data)
	if !ok {
		return ledger.ErrInvalidInstruction
	}
	switch disc {
	case initializeDisc:
		return p.initialize(ctx)
	case closeStateAccountDisc:
		return p.closeStateAccount(ctx)
	case createTreeDisc:
		return p.createTree(ctx, args)
	case mintDisc:
		return p.mint(ctx, args, false)
	case mintToCollectionDisc:
		return p.mint(ctx, args, true)
	default:
		return fmt.Errorf("%w: unknown discriminator %x", ledger.ErrInvalidInstruction, disc)
	}
}

func (p *Program) initialize(ctx *ledger.Context) error {
	keys, err := ctx.Keys(2)
	if err != nil {
		return err
	}
	stateKey, payer := keys[0], keys[1]

	expected, seeds := pda.SignerSeeds(pda.RegistryStateSeeds(), ctx.ProgramID())
	if stateKey != expected {
		return fmt.Errorf("%w: %s", ErrStateAddress, stateKey)
	}

	existing, err := ctx.Account(stateKey)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
	case err != nil:
		return err
	case existing.Owner == ctx.ProgramID() || !existing.IsUninitialized():
		return fmt.Errorf("%w: %s", interfaces.ErrAlreadyInitialized, stateKey)
	}

	if err := ctx.CreateAccount(payer, stateKey, state.AccountSize(p.capacity), ctx.ProgramID(), seeds); err != nil {
		if errors.Is(err, ledger.ErrAccountInUse) {
			return fmt.Errorf("%w: %v", interfaces.ErrAlreadyInitialized, err)
		}
		return err
	}

	data, err := state.Encode(state.New(payer, p.capacity))
	if err != nil {
		return err
	}
	if err := ctx.SetData(stateKey, data); err != nil {
		return err
	}
	ctx.Log("Registry initialized by %s with capacity %d", payer, p.capacity)
	return nil
}

func (p *Program) closeStateAccount(ctx *ledger.Context) error {
	keys, err := ctx.Keys(3)
	if err != nil {
		return err
	}
	stateKey, authority, receiver := keys[0], keys[1], keys[2]

	s, err := p.loadState(ctx, stateKey)
	if err != nil {
		return err
	}
	if authority != s.Creator || !ctx.IsSigner(authority) {
		return fmt.Errorf("%w: only the creator %s may close the registry", interfaces.ErrUnauthorizedAuthority, s.Creator)
	}
	if err := ctx.CloseAccount(stateKey, receiver); err != nil {
		return err
	}
	ctx.Log("Registry closed, lamports sent to %s", receiver)
	return nil
}

func (p *Program) createTree(ctx *ledger.Context, args []byte) error {
	keys, err := ctx.Keys(4)
	if err != nil {
		return err
	}
	stateKey, payer, tree, treeAuthority := keys[0], keys[1], keys[2], keys[3]

	dec := codec.NewDecoder(args)
	params := interfaces.TreeParams{
		MaxDepth:      dec.U32(),
		MaxBufferSize: dec.U32(),
		CanopyDepth:   dec.U32(),
	}
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInstruction, err)
	}

	s, err := p.loadState(ctx, stateKey)
	if err != nil {
		return err
	}
	if s.TreeCount >= s.Capacity {
		return fmt.Errorf("%w: %d of %d trees registered", interfaces.ErrRegistryFull, s.TreeCount, s.Capacity)
	}
	if err := p.compression.SupportsTree(params); err != nil {
		return err
	}
	if expected, _ := pda.TreeAuthority(tree, ctx.ProgramID()); treeAuthority != expected {
		return fmt.Errorf("%w: tree authority of %s is %s", interfaces.ErrUnauthorizedAuthority, tree, expected)
	}

	protocol := p.compression.ProgramID()
	err = p.compression.AllocateTree(ctx, interfaces.AllocateTreeArgs{
		Tree:      tree,
		Payer:     payer,
		Authority: payer,
		Params:    params,
	})
	if err != nil {
		return interfaces.NewDelegatedProtocolError(protocol, err)
	}
	if err := p.compression.SetTreeAuthority(ctx, tree, payer, treeAuthority); err != nil {
		return interfaces.NewDelegatedProtocolError(protocol, err)
	}

	info := interfaces.TreeInfo{
		Address:       tree,
		MaxDepth:      params.MaxDepth,
		MaxBufferSize: params.MaxBufferSize,
		CanopyDepth:   params.CanopyDepth,
	}
	if err := state.Append(s, info); err != nil {
		return err
	}
	data, err := state.Encode(s)
	if err != nil {
		return err
	}
	if err := ctx.SetData(stateKey, data); err != nil {
		return err
	}

	ctx.OnCommit(p.metrics.TreeCreated)
	p.log.Debug("tree registered", "tree", tree, "count", s.TreeCount, "capacity", s.Capacity)
	ctx.Log("Tree %s registered (%d/%d), depth %d, buffer %d, canopy %d", tree, s.TreeCount, s.Capacity, params.MaxDepth, params.MaxBufferSize, params.CanopyDepth)
	return nil
}

func (p *Program) mint(ctx *ledger.Context, args []byte, toCollection bool) error {
	n := 6
	if toCollection {
		n = 9
	}
	keys, err := ctx.Keys(n)
	if err != nil {
		return err
	}
	stateKey, treeAuthority, tree, owner, delegate, payer := keys[0], keys[1], keys[2], keys[3], keys[4], keys[5]

	dec := codec.NewDecoder(args)
	metadata := dec.MetadataArgs()
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInstruction, err)
	}

	s, err := p.loadState(ctx, stateKey)
	if err != nil {
		return err
	}
	if _, ok := s.Tree(tree); !ok {
		return fmt.Errorf("%w: %s is not registered", interfaces.ErrTreeNotFound, tree)
	}
	expected, signer := pda.SignerSeeds(pda.TreeAuthoritySeeds(tree), ctx.ProgramID())
	if treeAuthority != expected {
		return fmt.Errorf("%w: tree authority of %s is %s", interfaces.ErrUnauthorizedAuthority, tree, expected)
	}

	leaf := interfaces.AppendLeafArgs{
		Tree:      tree,
		Authority: treeAuthority,
		Owner:     owner,
		Delegate:  delegate,
		Payer:     payer,
		Metadata:  *metadata,
	}

	kind := MintIx
	if toCollection {
		kind = MintToCollectionIx
		mint := keys[6]
		collection, err := p.collections.Collection(ctx, mint)
		if err != nil {
			return err
		}
		if collection.UpdateAuthority != treeAuthority {
			return fmt.Errorf("%w: collection %s is governed by %s, not %s", interfaces.ErrCollectionAuthorityMismatch, mint, collection.UpdateAuthority, treeAuthority)
		}
		if leaf.Metadata.Collection == nil {
			leaf.Metadata.Collection = &interfaces.LeafCollection{Key: mint}
		}
		leaf.CollectionMint = &mint
	}

	event, err := p.compression.AppendLeaf(ctx, leaf, [][][]byte{signer})
	if err != nil {
		return interfaces.NewDelegatedProtocolError(p.compression.ProgramID(), err)
	}

	ctx.OnCommit(func() { p.metrics.LeafMinted(kind) })
	p.log.Debug("leaf minted", "tree", tree, "index", event.Index, "seq", event.Seq, "kind", kind)
	ctx.Log("Leaf %d appended to %s, seq %d", event.Index, tree, event.Seq)
	return nil
}

func (p *Program) loadState(ctx *ledger.Context, stateKey interfaces.Pubkey) (*interfaces.RegistryState, error) {
	if expected, _ := pda.RegistryState(ctx.ProgramID()); stateKey != expected {
		return nil, fmt.Errorf("%w: %s", ErrStateAddress, stateKey)
	}
	a, err := ctx.Account(stateKey)
	if err != nil {
		return nil, fmt.Errorf("registry state: %w", err)
	}
	if a.Owner != ctx.ProgramID() {
		return nil, fmt.Errorf("registry state %w", interfaces.ErrNotFound)
	}
	return state.Decode(a.Data)
}
