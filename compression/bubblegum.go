package compression

import (
	"errors"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/changelog"
	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/metadata"
	"github.com/ruteri/compressed-tree-registry/pda"
)

const (
	CreateTreeConfigIx   = "create_tree_config"
	SetTreeCreatorIx     = "set_tree_creator"
	MintV1Ix             = "mint_v1"
	MintToCollectionV1Ix = "mint_to_collection_v1"
)

var (
	ErrTreeConfigMismatch      = errors.New("tree config does not belong to tree")
	ErrMintCapacityExceeded    = errors.New("tree mint capacity exceeded")
	ErrTreeAuthorityRejected   = errors.New("tree creator or delegate did not sign")
	ErrCollectionMismatch      = errors.New("leaf collection does not match collection mint")
	ErrCollectionAuthorityFail = errors.New("collection authority is not the collection update authority")
)

var (
	createTreeConfigDisc   = codec.InstructionDiscriminator(CreateTreeConfigIx)
	setTreeCreatorDisc     = codec.InstructionDiscriminator(SetTreeCreatorIx)
	mintV1Disc             = codec.InstructionDiscriminator(MintV1Ix)
	mintToCollectionV1Disc = codec.InstructionDiscriminator(MintToCollectionV1Ix)
)

// Bubblegum mints compressed leaves. It keeps a configuration account per tree recording
// who may mint, holds the tree's compression authority through that account, hashes leaf
// payloads and verifies collection membership.
type Bubblegum struct {
	collections *metadata.Program
}

// NewBubblegum returns the minting program. Collection membership is checked against collections.
func NewBubblegum(collections *metadata.Program) *Bubblegum {
	return &Bubblegum{collections: collections}
}

// Process implements ledger.Processor.
func (p *Bubblegum) Process(ctx *ledger.Context, data []byte) error {
	disc, args, ok := codec.SplitDiscriminator(data)
	if !ok {
		return ledger.ErrInvalidInstruction
	}
	switch disc {
	case createTreeConfigDisc:
		return p.createTreeConfig(ctx, args)
	case setTreeCreatorDisc:
		return p.setTreeCreator(ctx, args)
	case mintV1Disc:
		return p.mint(ctx, args, false)
	case mintToCollectionV1Disc:
		return p.mint(ctx, args, true)
	default:
		return fmt.Errorf("%w: unknown discriminator %x", ledger.ErrInvalidInstruction, disc)
	}
}

func (p *Bubblegum) createTreeConfig(ctx *ledger.Context, args []byte) error {
	keys, err := ctx.Keys(6)
	if err != nil {
		return err
	}
	configKey, treeKey, payer, creator := keys[0], keys[1], keys[2], keys[3]

	dec := codec.NewDecoder(args)
	params := interfaces.TreeParams{
		MaxDepth:      dec.U32(),
		MaxBufferSize: dec.U32(),
		CanopyDepth:   dec.U32(),
	}
	public := false
	if dec.OptionTag() {
		public = dec.Bool()
	}
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInstruction, err)
	}
	if err := ValidateParams(params); err != nil {
		return err
	}
	if !ctx.IsSigner(creator) {
		return fmt.Errorf("%w: tree creator %s", ledger.ErrMissingRequiredSig, creator)
	}

	expected, bump := pda.TreeConfig(treeKey)
	if configKey != expected {
		return fmt.Errorf("%w: %s", ErrTreeConfigMismatch, configKey)
	}
	configSeeds := pda.WithBump(pda.TreeConfigSeeds(treeKey), bump)

	if err := ctx.CreateAccount(payer, treeKey, AccountSize(params), pda.CompressionProgramID, nil); err != nil {
		return fmt.Errorf("allocate tree: %w", err)
	}
	if err := ctx.CreateAccount(payer, configKey, TreeConfigSize, pda.BubblegumProgramID, configSeeds); err != nil {
		return fmt.Errorf("allocate tree config: %w", err)
	}
	config := &TreeConfig{
		Creator:           creator,
		Delegate:          creator,
		TotalMintCapacity: Capacity(params.MaxDepth),
		IsPublic:          public,
	}
	if err := ctx.SetData(configKey, config.Encode()); err != nil {
		return err
	}

	ix := initEmptyMerkleTreeInstruction(treeKey, configKey, params)
	return ctx.InvokeSigned(ix, [][][]byte{configSeeds}, nil)
}

func (p *Bubblegum) setTreeCreator(ctx *ledger.Context, args []byte) error {
	keys, err := ctx.Keys(3)
	if err != nil {
		return err
	}
	configKey, treeKey, creator := keys[0], keys[1], keys[2]

	dec := codec.NewDecoder(args)
	next := dec.Pubkey()
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInstruction, err)
	}

	config, err := p.loadConfig(ctx, configKey, treeKey)
	if err != nil {
		return err
	}
	if config.Creator != creator || !ctx.IsSigner(creator) {
		return fmt.Errorf("%w: %s is not the tree creator", ErrTreeAuthorityRejected, creator)
	}
	if config.Delegate == config.Creator {
		config.Delegate = next
	}
	config.Creator = next
	if err := ctx.SetData(configKey, config.Encode()); err != nil {
		return err
	}
	ctx.Log("Tree %s creator set to %s", treeKey, next)
	return nil
}

func (p *Bubblegum) mint(ctx *ledger.Context, args []byte, toCollection bool) error {
	n := 8
	if toCollection {
		n = 14
	}
	keys, err := ctx.Keys(n)
	if err != nil {
		return err
	}
	configKey, owner, delegate, treeKey, authority := keys[0], keys[1], keys[2], keys[3], keys[5]

	dec := codec.NewDecoder(args)
	m := dec.MetadataArgs()
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInstruction, err)
	}
	if err := ValidateMetadata(m); err != nil {
		return err
	}
	for _, c := range m.Creators {
		if c.Verified && !ctx.IsSigner(c.Address) {
			return fmt.Errorf("%w: %s", ErrCreatorDidNotSign, c.Address)
		}
	}

	config, err := p.loadConfig(ctx, configKey, treeKey)
	if err != nil {
		return err
	}
	if !config.CanMint(authority) || (!config.IsPublic && !ctx.IsSigner(authority)) {
		return fmt.Errorf("%w: %s", ErrTreeAuthorityRejected, authority)
	}
	if config.NumMinted >= config.TotalMintCapacity {
		return fmt.Errorf("%w: %d minted", ErrMintCapacityExceeded, config.NumMinted)
	}

	if toCollection {
		if err := p.verifyCollection(ctx, m, keys[8], keys[9]); err != nil {
			return err
		}
	} else if m.Collection != nil && m.Collection.Verified {
		return ErrCollectionVerified
	}

	nonce := config.NumMinted
	schema := &LeafSchema{
		ID:          changelog.AssetID(treeKey, nonce),
		Owner:       owner,
		Delegate:    delegate,
		Nonce:       nonce,
		DataHash:    DataHash(m),
		CreatorHash: CreatorHash(m.Creators),
	}
	if err := logEvent(ctx, changelog.EncodeApplicationData(schema.EncodeEvent())); err != nil {
		return err
	}

	config.NumMinted++
	if err := ctx.SetData(configKey, config.Encode()); err != nil {
		return err
	}

	_, bump := pda.TreeConfig(treeKey)
	ix := appendInstruction(treeKey, configKey, schema.Hash())
	return ctx.InvokeSigned(ix, [][][]byte{pda.WithBump(pda.TreeConfigSeeds(treeKey), bump)}, nil)
}

// verifyCollection stamps m as a verified member of the collection and bumps the collection size.
func (p *Bubblegum) verifyCollection(ctx *ledger.Context, m *interfaces.MetadataArgs, authority, mint interfaces.Pubkey) error {
	if m.Collection == nil || m.Collection.Key != mint {
		return fmt.Errorf("%w: %s", ErrCollectionMismatch, mint)
	}
	collection, err := p.collections.Collection(ctx, mint)
	if err != nil {
		return err
	}
	if collection.UpdateAuthority != authority || !ctx.IsSigner(authority) {
		return fmt.Errorf("%w: %s", ErrCollectionAuthorityFail, authority)
	}
	m.Collection.Verified = true

	if collection.Size == nil {
		return nil
	}
	_, bump := pda.CollectionCPISigner()
	seeds := [][][]byte{pda.WithBump(pda.CollectionCPISeeds(), bump)}
	return p.collections.IncrementCollectionSize(ctx, mint, authority, seeds)
}

func (p *Bubblegum) loadConfig(ctx *ledger.Context, configKey, treeKey interfaces.Pubkey) (*TreeConfig, error) {
	if expected, _ := pda.TreeConfig(treeKey); configKey != expected {
		return nil, fmt.Errorf("%w: %s", ErrTreeConfigMismatch, configKey)
	}
	a, err := ctx.Account(configKey)
	if err != nil {
		return nil, err
	}
	if a.Owner != pda.BubblegumProgramID {
		return nil, fmt.Errorf("%w: %s is owned by %s", ledger.ErrIllegalOwner, configKey, a.Owner)
	}
	return DecodeTreeConfig(a.Data)
}

func createTreeConfigInstruction(args interfaces.AllocateTreeArgs) ledger.Instruction {
	config, _ := pda.TreeConfig(args.Tree)
	enc := codec.InstructionEncoder(CreateTreeConfigIx, 14)
	enc.U32(args.Params.MaxDepth)
	enc.U32(args.Params.MaxBufferSize)
	enc.U32(args.Params.CanopyDepth)
	if enc.OptionTag(true) {
		enc.Bool(args.Public)
	}
	return ledger.Instruction{
		ProgramID: pda.BubblegumProgramID,
		Name:      CreateTreeConfigIx,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(config, false),
			ledger.Writable(args.Tree, true),
			ledger.Writable(args.Payer, true),
			ledger.ReadOnly(args.Authority, true),
			ledger.ReadOnly(pda.NoopProgramID, false),
			ledger.ReadOnly(pda.CompressionProgramID, false),
		},
		Data: enc.Bytes(),
	}
}

func setTreeCreatorInstruction(tree, current, next interfaces.Pubkey) ledger.Instruction {
	config, _ := pda.TreeConfig(tree)
	enc := codec.InstructionEncoder(SetTreeCreatorIx, interfaces.PubkeyLength)
	enc.Pubkey(next)
	return ledger.Instruction{
		ProgramID: pda.BubblegumProgramID,
		Name:      SetTreeCreatorIx,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(config, false),
			ledger.ReadOnly(tree, false),
			ledger.ReadOnly(current, true),
		},
		Data: enc.Bytes(),
	}
}

func mintInstruction(args interfaces.AppendLeafArgs) ledger.Instruction {
	name, disc := MintV1Ix, mintV1Disc
	if args.CollectionMint != nil {
		name, disc = MintToCollectionV1Ix, mintToCollectionV1Disc
	}
	m := EncodeMetadata(&args.Metadata)
	data := make([]byte, 0, len(disc)+len(m))
	data = append(append(data, disc[:]...), m...)

	return ledger.Instruction{
		ProgramID: pda.BubblegumProgramID,
		Name:      name,
		Accounts:  mintAccounts(args),
		Data:      data,
	}
}

func mintAccounts(args interfaces.AppendLeafArgs) []ledger.AccountMeta {
	config, _ := pda.TreeConfig(args.Tree)
	accounts := []ledger.AccountMeta{
		ledger.Writable(config, false),
		ledger.ReadOnly(args.Owner, false),
		ledger.ReadOnly(args.Delegate, false),
		ledger.Writable(args.Tree, false),
		ledger.Writable(args.Payer, true),
		ledger.ReadOnly(args.Authority, true),
		ledger.ReadOnly(pda.NoopProgramID, false),
		ledger.ReadOnly(pda.CompressionProgramID, false),
	}
	if args.CollectionMint == nil {
		return accounts
	}

	mint := *args.CollectionMint
	metadataKey, _ := pda.CollectionMetadata(mint)
	edition, _ := pda.MasterEdition(mint)
	signer, _ := pda.CollectionCPISigner()
	return append(accounts,
		ledger.ReadOnly(args.Authority, true),
		ledger.ReadOnly(mint, false),
		ledger.Writable(metadataKey, false),
		ledger.ReadOnly(edition, false),
		ledger.ReadOnly(signer, false),
		ledger.ReadOnly(pda.MetadataProgramID, false),
	)
}
