package program

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/ruteri/compressed-tree-registry/compression"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/kms"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/metrics"
	"github.com/ruteri/compressed-tree-registry/pda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errHandoff = errors.New("authority handoff rejected")

// rejectingHandoff allocates trees normally but refuses to hand them over.
type rejectingHandoff struct {
	*compression.Engine
	allocated int
}

func (r *rejectingHandoff) AllocateTree(ctx *ledger.Context, args interfaces.AllocateTreeArgs) error {
	if err := r.Engine.AllocateTree(ctx, args); err != nil {
		return err
	}
	r.allocated++
	return nil
}

func (r *rejectingHandoff) SetTreeAuthority(ctx *ledger.Context, tree, current, next interfaces.Pubkey) error {
	return errHandoff
}

func (h *harness) executeWith(ctx context.Context, ix ledger.Instruction, signers ...interfaces.Signer) error {
	h.t.Helper()
	tx := ledger.NewTransaction(h.payer.PublicKey(), ix)
	require.NoError(h.t, tx.Sign(append([]interfaces.Signer{h.payer}, signers...)...))
	_, err := h.ledger.Execute(ctx, tx)
	return err
}

func (h *harness) lamports(key interfaces.Pubkey) uint64 {
	h.t.Helper()
	a, err := h.ledger.Account(context.Background(), key)
	require.NoError(h.t, err)
	return a.Lamports
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestCreateTree_HandoffFailureRollsBackAllocation(t *testing.T) {
	var protocol *rejectingHandoff
	h := newHarnessWith(t, 2, harnessOptions{
		protocol: func(engine *compression.Engine) CompressionProtocol {
			protocol = &rejectingHandoff{Engine: engine}
			return protocol
		},
	})
	h.initialize()
	before := h.lamports(h.payer.PublicKey())

	tree, err := h.createTree(smallTree)
	require.ErrorIs(t, err, interfaces.ErrDelegatedProtocol)
	assert.ErrorIs(t, err, errHandoff)
	assert.Equal(t, 1, protocol.allocated, "allocation must have succeeded before the handoff")

	_, err = h.ledger.Account(context.Background(), tree)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	config, _ := pda.TreeConfig(tree)
	_, err = h.ledger.Account(context.Background(), config)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	assert.Equal(t, before, h.lamports(h.payer.PublicKey()))
	assert.Equal(t, uint32(0), h.state().TreeCount)
	assert.Empty(t, h.state().Trees)
}

func TestMetrics_CountOnlyCommitted(t *testing.T) {
	collectors, err := metrics.NewCollectors("program_commit_test")
	require.NoError(t, err)

	// cancel, when set, fires after the registry handler returns successfully.
	var cancel context.CancelFunc
	h := newHarnessWith(t, 4, harnessOptions{
		metrics: collectors,
		wrap: func(next ledger.Processor) ledger.Processor {
			return ledger.ProcessorFunc(func(c *ledger.Context, data []byte) error {
				err := next.Process(c, data)
				if cancel != nil {
					cancel()
				}
				return err
			})
		},
	})
	h.initialize()

	tree := h.mustCreateTree(smallTree)
	_, err = h.mint(tree, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, collectors.TreesCreated))
	assert.Equal(t, 1.0, counterValue(t, collectors.LeavesMinted.WithLabelValues(MintIx)))

	t.Run("create_tree", func(t *testing.T) {
		ctx, c := context.WithCancel(context.Background())
		cancel = c
		defer func() { cancel = nil }()

		dropped := kms.MustKeypair()
		err := h.executeWith(ctx, h.createTreeInstruction(dropped.PublicKey(), smallTree), dropped)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, uint32(1), h.state().TreeCount)
		assert.Equal(t, 1.0, counterValue(t, collectors.TreesCreated))
	})

	t.Run("mint", func(t *testing.T) {
		ctx, c := context.WithCancel(context.Background())
		cancel = c
		defer func() { cancel = nil }()

		req := &interfaces.MintRequest{Tree: tree, LeafOwner: kms.MustKeypair().PublicKey(), Metadata: testLeaf}
		err := h.executeWith(ctx, h.mintInstruction(req, nil))
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, uint64(1), h.tree(tree).NumLeaves)
		assert.Equal(t, 1.0, counterValue(t, collectors.LeavesMinted.WithLabelValues(MintIx)))
	})
}
