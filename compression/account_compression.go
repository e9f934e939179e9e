package compression

import (
	"errors"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/changelog"
	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/pda"
)

const (
	InitEmptyMerkleTreeIx = "init_empty_merkle_tree"
	AppendIx              = "append"
)

// ErrIncorrectTreeAuthority is returned when a tree mutation is not signed by the tree's authority.
var ErrIncorrectTreeAuthority = errors.New("incorrect tree authority")

var (
	initEmptyMerkleTreeDisc = codec.InstructionDiscriminator(InitEmptyMerkleTreeIx)
	appendDisc              = codec.InstructionDiscriminator(AppendIx)
)

// AccountCompression owns tree accounts. It initializes them, appends leaves on behalf of
// the tree authority and logs a changelog event for every root transition.
type AccountCompression struct{}

// Process implements ledger.Processor.
func (p *AccountCompression) Process(ctx *ledger.Context, data []byte) error {
	disc, args, ok := codec.SplitDiscriminator(data)
	if !ok {
		return ledger.ErrInvalidInstruction
	}
	switch disc {
	case initEmptyMerkleTreeDisc:
		return p.initEmptyMerkleTree(ctx, args)
	case appendDisc:
		return p.append(ctx, args)
	default:
		return fmt.Errorf("%w: unknown discriminator %x", ledger.ErrInvalidInstruction, disc)
	}
}

func (p *AccountCompression) initEmptyMerkleTree(ctx *ledger.Context, args []byte) error {
	keys, err := ctx.Keys(3)
	if err != nil {
		return err
	}
	treeKey, authority := keys[0], keys[1]

	dec := codec.NewDecoder(args)
	header := Header{
		MaxDepth:      dec.U32(),
		MaxBufferSize: dec.U32(),
		Authority:     authority,
		CreationSlot:  ctx.Slot(),
	}
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInstruction, err)
	}
	if !ctx.IsSigner(authority) {
		return fmt.Errorf("%w: authority %s", ledger.ErrMissingRequiredSig, authority)
	}

	a, err := ctx.Account(treeKey)
	if err != nil {
		return err
	}
	if a.Owner != pda.CompressionProgramID {
		return fmt.Errorf("%w: %s is owned by %s", ledger.ErrIllegalOwner, treeKey, a.Owner)
	}
	if !IsZeroed(a.Data) {
		return fmt.Errorf("%w: %s", ErrTreeAlreadyInitialized, treeKey)
	}

	canopy, err := canopyDepthFromSize(header, len(a.Data))
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidTreeParameters, err)
	}
	params := interfaces.TreeParams{MaxDepth: header.MaxDepth, MaxBufferSize: header.MaxBufferSize, CanopyDepth: canopy}
	if err := ValidateParams(params); err != nil {
		return err
	}

	tree := NewTree(header, canopy)
	if err := ctx.SetData(treeKey, tree.Encode()); err != nil {
		return err
	}
	return logEvent(ctx, changelog.EncodeChangeLog(tree.Event(treeKey)))
}

func (p *AccountCompression) append(ctx *ledger.Context, args []byte) error {
	keys, err := ctx.Keys(3)
	if err != nil {
		return err
	}
	treeKey := keys[0]

	dec := codec.NewDecoder(args)
	leaf := dec.Hash()
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInstruction, err)
	}

	tree, err := p.load(ctx, treeKey, keys[1])
	if err != nil {
		return err
	}
	if _, err := tree.Append(leaf); err != nil {
		return err
	}
	if err := ctx.SetData(treeKey, tree.Encode()); err != nil {
		return err
	}
	return logEvent(ctx, changelog.EncodeChangeLog(tree.Event(treeKey)))
}

// load decodes the tree and checks that authority signed for it.
func (p *AccountCompression) load(ctx *ledger.Context, treeKey, authority interfaces.Pubkey) (*Tree, error) {
	a, err := ctx.Account(treeKey)
	if err != nil {
		return nil, err
	}
	if a.Owner != pda.CompressionProgramID {
		return nil, fmt.Errorf("%w: %s is owned by %s", ledger.ErrIllegalOwner, treeKey, a.Owner)
	}
	tree, err := DecodeTree(a.Data)
	if err != nil {
		return nil, err
	}
	if tree.Authority != authority || !ctx.IsSigner(authority) {
		return nil, fmt.Errorf("%w: %s", ErrIncorrectTreeAuthority, authority)
	}
	return tree, nil
}

func logEvent(ctx *ledger.Context, data []byte) error {
	return ctx.Invoke(ledger.Instruction{ProgramID: pda.NoopProgramID, Name: "noop_instruction", Data: data}, nil)
}

func initEmptyMerkleTreeInstruction(tree, authority interfaces.Pubkey, params interfaces.TreeParams) ledger.Instruction {
	enc := codec.InstructionEncoder(InitEmptyMerkleTreeIx, 8)
	enc.U32(params.MaxDepth)
	enc.U32(params.MaxBufferSize)
	return ledger.Instruction{
		ProgramID: pda.CompressionProgramID,
		Name:      InitEmptyMerkleTreeIx,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(tree, false),
			ledger.ReadOnly(authority, true),
			ledger.ReadOnly(pda.NoopProgramID, false),
		},
		Data: enc.Bytes(),
	}
}

func appendInstruction(tree, authority interfaces.Pubkey, leaf interfaces.Hash) ledger.Instruction {
	enc := codec.InstructionEncoder(AppendIx, 32)
	enc.Hash(leaf)
	return ledger.Instruction{
		ProgramID: pda.CompressionProgramID,
		Name:      AppendIx,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(tree, false),
			ledger.ReadOnly(authority, true),
			ledger.ReadOnly(pda.NoopProgramID, false),
		},
		Data: enc.Bytes(),
	}
}
