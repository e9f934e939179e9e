package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/pda"
)

const (
	CreateCollectionIx        = "create_collection"
	SetUpdateAuthorityIx      = "set_update_authority"
	IncrementCollectionSizeIx = "increment_collection_size"
)

var (
	ErrInvalidCollectionData = errors.New("invalid collection data")
	ErrUnsizedCollection     = errors.New("collection is not sized")
	ErrCollectionSigner      = errors.New("collection size updates must be signed by the compression protocol")
	ErrMintMismatch          = errors.New("metadata does not belong to mint")
)

var (
	createCollectionDisc        = codec.InstructionDiscriminator(CreateCollectionIx)
	setUpdateAuthorityDisc      = codec.InstructionDiscriminator(SetUpdateAuthorityIx)
	incrementCollectionSizeDisc = codec.InstructionDiscriminator(IncrementCollectionSizeIx)
)

// AccountReader reads committed accounts.
type AccountReader interface {
	Account(ctx context.Context, key interfaces.Pubkey) (*ledger.Account, error)
}

// Program is the collection metadata program. It processes its own instructions when
// deployed on a ledger, and is the client other programs use to read collections and
// update collection sizes.
type Program struct{}

func New() *Program {
	return &Program{}
}

// ProgramID returns the address the program is deployed at.
func (p *Program) ProgramID() interfaces.Pubkey {
	return pda.MetadataProgramID
}

// Process implements ledger.Processor.
func (p *Program) Process(ctx *ledger.Context, data []byte) error {
	disc, args, ok := codec.SplitDiscriminator(data)
	if !ok {
		return ledger.ErrInvalidInstruction
	}
	switch disc {
	case createCollectionDisc:
		return p.createCollection(ctx, args)
	case setUpdateAuthorityDisc:
		return p.setUpdateAuthority(ctx, args)
	case incrementCollectionSizeDisc:
		return p.incrementCollectionSize(ctx)
	default:
		return fmt.Errorf("%w: unknown discriminator %x", ledger.ErrInvalidInstruction, disc)
	}
}

// CreateCollectionInstruction creates a collection mint with its metadata and master edition.
// The mint must sign.
func CreateCollectionInstruction(payer, mint interfaces.Pubkey, args interfaces.CollectionArgs) ledger.Instruction {
	metadata, _ := pda.CollectionMetadata(mint)
	edition, _ := pda.MasterEdition(mint)

	enc := codec.InstructionEncoder(CreateCollectionIx, 4+len(args.Name)+4+len(args.Symbol)+4+len(args.URI)+1)
	enc.String(args.Name)
	enc.String(args.Symbol)
	enc.String(args.URI)
	enc.Bool(args.Sized)

	return ledger.Instruction{
		ProgramID: pda.MetadataProgramID,
		Name:      CreateCollectionIx,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(mint, true),
			ledger.Writable(metadata, false),
			ledger.Writable(edition, false),
			ledger.ReadOnly(args.UpdateAuthority, false),
			ledger.Writable(payer, true),
		},
		Data: enc.Bytes(),
	}
}

func (p *Program) createCollection(ctx *ledger.Context, args []byte) error {
	keys, err := ctx.Keys(5)
	if err != nil {
		return err
	}
	mint, metadata, edition, authority, payer := keys[0], keys[1], keys[2], keys[3], keys[4]

	dec := codec.NewDecoder(args)
	name := dec.String(MaxNameLength)
	symbol := dec.String(MaxSymbolLength)
	uri := dec.String(MaxURILength)
	sized := dec.Bool()
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollectionData, err)
	}

	metadataAddress, metadataBump := pda.CollectionMetadata(mint)
	editionAddress, editionBump := pda.MasterEdition(mint)
	if metadata != metadataAddress || edition != editionAddress {
		return fmt.Errorf("%w: metadata or edition address", ErrInvalidCollectionData)
	}

	if err := ctx.CreateAccount(payer, mint, MintAccountSize, pda.MetadataProgramID, nil); err != nil {
		return fmt.Errorf("create mint: %w", err)
	}
	if err := ctx.SetData(mint, encodeMint(edition, 1)); err != nil {
		return err
	}

	seeds := pda.WithBump(pda.CollectionMetadataSeeds(mint), metadataBump)
	if err := ctx.CreateAccount(payer, metadata, MetadataAccountSize, pda.MetadataProgramID, seeds); err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}
	collection := &Collection{
		UpdateAuthority: authority,
		Mint:            mint,
		Name:            name,
		Symbol:          symbol,
		URI:             uri,
	}
	if sized {
		collection.Size = new(uint64)
	}
	if err := ctx.SetData(metadata, encodeCollection(collection)); err != nil {
		return err
	}

	seeds = pda.WithBump(pda.MasterEditionSeeds(mint), editionBump)
	if err := ctx.CreateAccount(payer, edition, EditionAccountSize, pda.MetadataProgramID, seeds); err != nil {
		return fmt.Errorf("create master edition: %w", err)
	}
	if err := ctx.SetData(edition, encodeEdition(0, 0)); err != nil {
		return err
	}

	ctx.Log("Created collection %s with update authority %s", mint, authority)
	return nil
}

// SetUpdateAuthorityInstruction hands the collection over to next. current must sign.
func SetUpdateAuthorityInstruction(mint, current, next interfaces.Pubkey) ledger.Instruction {
	metadata, _ := pda.CollectionMetadata(mint)
	enc := codec.InstructionEncoder(SetUpdateAuthorityIx, interfaces.PubkeyLength)
	enc.Pubkey(next)
	return ledger.Instruction{
		ProgramID: pda.MetadataProgramID,
		Name:      SetUpdateAuthorityIx,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(metadata, false),
			ledger.ReadOnly(current, true),
		},
		Data: enc.Bytes(),
	}
}

func (p *Program) setUpdateAuthority(ctx *ledger.Context, args []byte) error {
	keys, err := ctx.Keys(2)
	if err != nil {
		return err
	}
	metadata, current := keys[0], keys[1]

	dec := codec.NewDecoder(args)
	next := dec.Pubkey()
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInstruction, err)
	}

	collection, err := p.load(ctx, metadata)
	if err != nil {
		return err
	}
	if collection.UpdateAuthority != current || !ctx.IsSigner(current) {
		return fmt.Errorf("%w: %s is not the update authority", interfaces.ErrUnauthorizedAuthority, current)
	}

	collection.UpdateAuthority = next
	if err := ctx.SetData(metadata, encodeCollection(collection)); err != nil {
		return err
	}
	ctx.Log("Update authority of %s set to %s", collection.Mint, next)
	return nil
}

func (p *Program) incrementCollectionSize(ctx *ledger.Context) error {
	keys, err := ctx.Keys(4)
	if err != nil {
		return err
	}
	metadata, authority, mint, signer := keys[0], keys[1], keys[2], keys[3]

	expected, _ := pda.CollectionCPISigner()
	if signer != expected || !ctx.IsSigner(signer) {
		return ErrCollectionSigner
	}

	collection, err := p.load(ctx, metadata)
	if err != nil {
		return err
	}
	if collection.Mint != mint {
		return fmt.Errorf("%w: %s", ErrMintMismatch, mint)
	}
	if collection.UpdateAuthority != authority || !ctx.IsSigner(authority) {
		return fmt.Errorf("%w: %s is not the update authority", interfaces.ErrUnauthorizedAuthority, authority)
	}
	if collection.Size == nil {
		return ErrUnsizedCollection
	}

	size := *collection.Size + 1
	collection.Size = &size
	return ctx.SetData(metadata, encodeCollection(collection))
}

func (p *Program) load(ctx *ledger.Context, metadata interfaces.Pubkey) (*Collection, error) {
	a, err := ctx.Account(metadata)
	if err != nil {
		return nil, err
	}
	if a.Owner != pda.MetadataProgramID {
		return nil, fmt.Errorf("%w: %s is owned by %s", ledger.ErrIllegalOwner, metadata, a.Owner)
	}
	return DecodeCollection(a.Data)
}

// Collection reads the collection of mint from within an executing instruction.
// The metadata and master edition accounts must be declared by the instruction.
func (p *Program) Collection(ctx *ledger.Context, mint interfaces.Pubkey) (*interfaces.CollectionInfo, error) {
	metadata, _ := pda.CollectionMetadata(mint)
	edition, _ := pda.MasterEdition(mint)

	collection, err := p.load(ctx, metadata)
	if err != nil {
		return nil, err
	}
	if collection.Mint != mint {
		return nil, fmt.Errorf("%w: %s", ErrMintMismatch, mint)
	}

	a, err := ctx.Account(edition)
	if err != nil {
		return nil, fmt.Errorf("master edition: %w", err)
	}
	if a.Owner != pda.MetadataProgramID || !isEdition(a.Data) {
		return nil, fmt.Errorf("%w: %s is not a master edition", interfaces.ErrCorruptState, edition)
	}
	return collection.Info(metadata, edition), nil
}

// IncrementCollectionSize bumps the size of a sized collection. authority must be the
// update authority; the compression protocol's collection signer signs through signerSeeds.
func (p *Program) IncrementCollectionSize(ctx *ledger.Context, mint, authority interfaces.Pubkey, signerSeeds [][][]byte) error {
	metadata, _ := pda.CollectionMetadata(mint)
	signer, _ := pda.CollectionCPISigner()
	ix := ledger.Instruction{
		ProgramID: pda.MetadataProgramID,
		Name:      IncrementCollectionSizeIx,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(metadata, false),
			ledger.ReadOnly(authority, true),
			ledger.ReadOnly(mint, false),
			ledger.ReadOnly(signer, true),
		},
		Data: append([]byte(nil), incrementCollectionSizeDisc[:]...),
	}
	return ctx.InvokeSigned(ix, signerSeeds, nil)
}

// FetchCollection reads the committed collection of mint.
func (p *Program) FetchCollection(ctx context.Context, reader AccountReader, mint interfaces.Pubkey) (*interfaces.CollectionInfo, error) {
	metadata, _ := pda.CollectionMetadata(mint)
	edition, _ := pda.MasterEdition(mint)

	a, err := reader.Account(ctx, metadata)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", mint, err)
	}
	if a.Owner != pda.MetadataProgramID {
		return nil, fmt.Errorf("%w: %s is owned by %s", interfaces.ErrCorruptState, metadata, a.Owner)
	}
	collection, err := DecodeCollection(a.Data)
	if err != nil {
		return nil, err
	}
	return collection.Info(metadata, edition), nil
}

// IsMint reports whether a holds a collection mint.
func IsMint(a *ledger.Account) bool {
	return a != nil && a.Owner == pda.MetadataProgramID && isMint(a.Data)
}
