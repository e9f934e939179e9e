package compression

import (
	"context"
	"testing"

	"github.com/ruteri/compressed-tree-registry/changelog"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/kms"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/metadata"
	"github.com/ruteri/compressed-tree-registry/pda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	ledger    *ledger.Ledger
	engine    *Engine
	payer     *kms.Keypair
	authority *kms.Keypair
	tree      *kms.Keypair
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()

	l, err := ledger.Open(ledger.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	engine := NewEngine(metadata.New())
	require.NoError(t, engine.Deploy(ctx, l))

	f := &engineFixture{
		ledger:    l,
		engine:    engine,
		payer:     kms.MustKeypair(),
		authority: kms.MustKeypair(),
		tree:      kms.MustKeypair(),
	}
	require.NoError(t, l.Airdrop(ctx, f.payer.PublicKey(), 10_000_000_000))
	return f
}

func (f *engineFixture) execute(t *testing.T, ix ledger.Instruction, signers ...interfaces.Signer) (*interfaces.Receipt, error) {
	t.Helper()
	tx := ledger.NewTransaction(f.payer.PublicKey(), ix)
	require.NoError(t, tx.Sign(append([]interfaces.Signer{f.payer}, signers...)...))
	return f.ledger.Execute(context.Background(), tx)
}

func (f *engineFixture) createTree(t *testing.T, params interfaces.TreeParams) *interfaces.Receipt {
	t.Helper()
	receipt, err := f.execute(t, createTreeConfigInstruction(interfaces.AllocateTreeArgs{
		Tree:      f.tree.PublicKey(),
		Payer:     f.payer.PublicKey(),
		Authority: f.authority.PublicKey(),
		Params:    params,
	}), f.tree, f.authority)
	require.NoError(t, err)
	return receipt
}

func (f *engineFixture) mintArgs(owner interfaces.Pubkey) interfaces.AppendLeafArgs {
	return interfaces.AppendLeafArgs{
		Tree:      f.tree.PublicKey(),
		Authority: f.authority.PublicKey(),
		Owner:     owner,
		Delegate:  owner,
		Payer:     f.payer.PublicKey(),
		Metadata:  *validMetadata(),
	}
}

func TestEngine_CreateTree(t *testing.T) {
	f := newEngineFixture(t)
	params := interfaces.TreeParams{MaxDepth: 3, MaxBufferSize: 8}
	receipt := f.createTree(t, params)

	event, err := changelog.RecoverLeafAppendEvent(receipt.InnerInstructions, f.tree.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), event.Seq)
	assert.Equal(t, EmptyRoot(3), event.Root)

	account, err := f.engine.FetchTree(context.Background(), f.ledger, f.tree.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), account.MaxDepth)
	assert.Equal(t, uint32(8), account.MaxBufferSize)
	assert.Equal(t, EmptyRoot(3), account.Root)
	assert.Equal(t, uint64(0), account.NumLeaves)
	assert.Equal(t, f.authority.PublicKey(), account.Authority)
	assert.Equal(t, f.authority.PublicKey(), account.Delegate)

	raw, err := f.ledger.Account(context.Background(), f.tree.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, pda.CompressionProgramID, raw.Owner)
	assert.Len(t, raw.Data, AccountSize(params))

	// The tree account exists now, so a second allocation fails.
	_, err = f.execute(t, createTreeConfigInstruction(interfaces.AllocateTreeArgs{
		Tree:      f.tree.PublicKey(),
		Payer:     f.payer.PublicKey(),
		Authority: f.authority.PublicKey(),
		Params:    params,
	}), f.tree, f.authority)
	assert.Error(t, err)
}

func TestEngine_CreateTreeRejectsParams(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.execute(t, createTreeConfigInstruction(interfaces.AllocateTreeArgs{
		Tree:      f.tree.PublicKey(),
		Payer:     f.payer.PublicKey(),
		Authority: f.authority.PublicKey(),
		Params:    interfaces.TreeParams{MaxDepth: 4, MaxBufferSize: 8},
	}), f.tree, f.authority)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTreeParameters)
	assert.ErrorIs(t, f.engine.SupportsTree(interfaces.TreeParams{MaxDepth: 4, MaxBufferSize: 8}), interfaces.ErrInvalidTreeParameters)
}

func TestEngine_Mint(t *testing.T) {
	f := newEngineFixture(t)
	f.createTree(t, interfaces.TreeParams{MaxDepth: 3, MaxBufferSize: 8})

	owner := kms.MustKeypair().PublicKey()
	var root interfaces.Hash
	for i := 0; i < 3; i++ {
		receipt, err := f.execute(t, mintInstruction(f.mintArgs(owner)), f.authority)
		require.NoError(t, err)

		event, err := changelog.RecoverLeafAppendEvent(receipt.InnerInstructions, f.tree.PublicKey())
		require.NoError(t, err)
		assert.Equal(t, uint32(i), event.Index)
		assert.Equal(t, uint64(i+1), event.Seq)
		root = event.Root
	}

	account, err := f.engine.FetchTree(context.Background(), f.ledger, f.tree.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), account.NumLeaves)
	assert.Equal(t, uint64(3), account.Seq)
	assert.Equal(t, root, account.Root)

	accounts := f.engine.MintAccounts(f.mintArgs(owner))
	signers := 0
	for _, meta := range accounts {
		if meta.IsSigner {
			signers++
			assert.Equal(t, f.payer.PublicKey(), meta.Pubkey)
		}
	}
	assert.Equal(t, 1, signers)
	assert.Equal(t, pda.BubblegumProgramID, accounts[len(accounts)-1].Pubkey)
}

func TestEngine_MintRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.createTree(t, interfaces.TreeParams{MaxDepth: 3, MaxBufferSize: 8})
	owner := kms.MustKeypair().PublicKey()

	stranger := kms.MustKeypair()
	args := f.mintArgs(owner)
	args.Authority = stranger.PublicKey()
	_, err := f.execute(t, mintInstruction(args), stranger)
	assert.ErrorIs(t, err, ErrTreeAuthorityRejected)

	args = f.mintArgs(owner)
	args.Metadata.Name = string(make([]byte, MaxNameLength+1))
	_, err = f.execute(t, mintInstruction(args), f.authority)
	assert.ErrorIs(t, err, ErrMetadataNameTooLong)

	args = f.mintArgs(owner)
	args.Metadata.Collection = &interfaces.LeafCollection{Key: interfaces.Pubkey{1}, Verified: true}
	_, err = f.execute(t, mintInstruction(args), f.authority)
	assert.ErrorIs(t, err, ErrCollectionVerified)

	account, err := f.engine.FetchTree(context.Background(), f.ledger, f.tree.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), account.NumLeaves)
}

func TestEngine_MintUntilFull(t *testing.T) {
	f := newEngineFixture(t)
	f.createTree(t, interfaces.TreeParams{MaxDepth: 3, MaxBufferSize: 8})
	owner := kms.MustKeypair().PublicKey()

	for i := 0; i < 8; i++ {
		_, err := f.execute(t, mintInstruction(f.mintArgs(owner)), f.authority)
		require.NoError(t, err)
	}
	_, err := f.execute(t, mintInstruction(f.mintArgs(owner)), f.authority)
	assert.ErrorIs(t, err, ErrMintCapacityExceeded)
}

func TestEngine_SetTreeCreator(t *testing.T) {
	f := newEngineFixture(t)
	f.createTree(t, interfaces.TreeParams{MaxDepth: 3, MaxBufferSize: 8})

	next := kms.MustKeypair()
	_, err := f.execute(t, setTreeCreatorInstruction(f.tree.PublicKey(), f.authority.PublicKey(), next.PublicKey()), f.authority)
	require.NoError(t, err)

	account, err := f.engine.FetchTree(context.Background(), f.ledger, f.tree.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, next.PublicKey(), account.Authority)
	assert.Equal(t, next.PublicKey(), account.Delegate)

	// The previous creator can no longer mint.
	_, err = f.execute(t, mintInstruction(f.mintArgs(next.PublicKey())), f.authority)
	assert.ErrorIs(t, err, ErrTreeAuthorityRejected)

	args := f.mintArgs(next.PublicKey())
	args.Authority = next.PublicKey()
	_, err = f.execute(t, mintInstruction(args), next)
	assert.NoError(t, err)
}

func TestEngine_FetchTreeNotATree(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.FetchTree(context.Background(), f.ledger, f.payer.PublicKey())
	assert.Error(t, err)
}
