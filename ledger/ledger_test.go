package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/kms"
	"github.com/ruteri/compressed-tree-registry/pda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	counterProgram = interfaces.Pubkey{0xc0, 0x01}
	calleeProgram  = interfaces.Pubkey{0xc0, 0x02}
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func fundedPayer(t *testing.T, l *Ledger) *kms.Keypair {
	t.Helper()
	payer := kms.MustKeypair()
	require.NoError(t, l.Airdrop(context.Background(), payer.PublicKey(), 1_000_000_000))
	return payer
}

// counter stores a u64 in an 8-byte account derived from the "counter" seed.
// Instruction data: 0 = create, 1 = increment, 2 = fail after increment.
func counterProcessor(ctx *Context, data []byte) error {
	accounts := ctx.Accounts()
	payer, counter := accounts[0].Pubkey, accounts[1].Pubkey
	_, bump := pda.MustFind([][]byte{[]byte("counter")}, counterProgram)

	switch data[0] {
	case 0:
		return ctx.CreateAccount(payer, counter, 8, counterProgram, pda.WithBump([][]byte{[]byte("counter")}, bump))
	case 1, 2:
		a, err := ctx.Account(counter)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(a.Data, binary.LittleEndian.Uint64(a.Data)+1)
		if err := ctx.SetData(counter, a.Data); err != nil {
			return err
		}
		if data[0] == 2 {
			return errors.New("boom")
		}
		return nil
	}
	return errors.New("unknown instruction")
}

func counterTx(payer *kms.Keypair, op byte) *Transaction {
	counter, _ := pda.MustFind([][]byte{[]byte("counter")}, counterProgram)
	tx := NewTransaction(payer.PublicKey(), Instruction{
		ProgramID: counterProgram,
		Name:      "counter",
		Accounts: []AccountMeta{
			Writable(payer.PublicKey(), true),
			Writable(counter, false),
		},
		Data: []byte{op},
	})
	return tx
}

func readCounter(t *testing.T, l *Ledger) uint64 {
	t.Helper()
	counter, _ := pda.MustFind([][]byte{[]byte("counter")}, counterProgram)
	a, err := l.Account(context.Background(), counter)
	require.NoError(t, err)
	return binary.LittleEndian.Uint64(a.Data)
}

func TestExecute_CommitsAndRecordsReceipt(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Deploy(context.Background(), counterProgram, ProcessorFunc(counterProcessor)))
	payer := fundedPayer(t, l)

	tx := counterTx(payer, 0)
	require.NoError(t, tx.Sign(payer))
	receipt, err := l.Execute(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, tx.Signature(), receipt.Signature)

	// The account creation is logged as a nested system call.
	require.Len(t, receipt.InnerInstructions, 1)
	assert.Equal(t, interfaces.SystemProgramID, receipt.InnerInstructions[0].ProgramID)
	assert.Equal(t, 2, receipt.InnerInstructions[0].StackHeight)

	payerAccount, err := l.Account(context.Background(), payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000)-RentExemptMinimum(8), payerAccount.Lamports)

	inc := counterTx(payer, 1)
	require.NoError(t, inc.Sign(payer))
	_, err = l.Execute(context.Background(), inc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), readCounter(t, l))

	stored, err := l.Receipt(context.Background(), inc.Signature())
	require.NoError(t, err)
	assert.Equal(t, inc.Signature(), stored.Signature)
	assert.Greater(t, stored.Slot, receipt.Slot)
}

func TestExecute_FailureLeavesNoStateChange(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Deploy(context.Background(), counterProgram, ProcessorFunc(counterProcessor)))
	payer := fundedPayer(t, l)

	create := counterTx(payer, 0)
	require.NoError(t, create.Sign(payer))
	_, err := l.Execute(context.Background(), create)
	require.NoError(t, err)

	fail := counterTx(payer, 2)
	require.NoError(t, fail.Sign(payer))
	receipt, err := l.Execute(context.Background(), fail)
	require.Error(t, err)
	require.NotNil(t, receipt)
	assert.False(t, receipt.Succeeded())
	assert.Equal(t, uint64(0), readCounter(t, l), "the increment made before the failure must be discarded")

	stored, err := l.Receipt(context.Background(), fail.Signature())
	require.NoError(t, err)
	assert.Equal(t, "boom", stored.Err)

	// A recorded transaction cannot be replayed.
	_, err = l.Execute(context.Background(), fail)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestExecute_RejectsBadSignatures(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Deploy(context.Background(), counterProgram, ProcessorFunc(counterProcessor)))
	payer := fundedPayer(t, l)

	unsigned := counterTx(payer, 0)
	_, err := l.Execute(context.Background(), unsigned)
	assert.ErrorIs(t, err, ErrMissingSignature)

	tampered := counterTx(payer, 0)
	require.NoError(t, tampered.Sign(payer))
	tampered.Instruction.Data = []byte{1}
	_, err = l.Execute(context.Background(), tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	wrongSigner := counterTx(payer, 0)
	require.NoError(t, wrongSigner.Sign(kms.MustKeypair()))
	_, err = l.Execute(context.Background(), wrongSigner)
	assert.ErrorIs(t, err, ErrMissingSignature)

	unknown := NewTransaction(payer.PublicKey(), Instruction{ProgramID: calleeProgram, Name: "x"})
	require.NoError(t, unknown.Sign(payer))
	_, err = l.Execute(context.Background(), unknown)
	assert.ErrorIs(t, err, ErrProgramNotFound)
}

func TestExecute_ConcurrentWritesAreSerialized(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Deploy(context.Background(), counterProgram, ProcessorFunc(counterProcessor)))
	payer := fundedPayer(t, l)

	create := counterTx(payer, 0)
	require.NoError(t, create.Sign(payer))
	_, err := l.Execute(context.Background(), create)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := counterTx(payer, 1)
			if err := tx.Sign(payer); err != nil {
				errs <- err
				return
			}
			_, err := l.Execute(context.Background(), tx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(workers), readCounter(t, l))
}

func TestExecute_CancelledContext(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Deploy(context.Background(), counterProgram, ProcessorFunc(counterProcessor)))
	payer := fundedPayer(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx := counterTx(payer, 0)
	require.NoError(t, tx.Sign(payer))
	receipt, err := l.Execute(ctx, tx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, receipt)
}

func TestExecute_OnCommitRunsAfterCommitOnly(t *testing.T) {
	l := newTestLedger(t)
	committed := 0
	// cancel, when set, fires after the counter handler returns.
	var cancel context.CancelFunc
	require.NoError(t, l.Deploy(context.Background(), counterProgram, ProcessorFunc(func(ctx *Context, data []byte) error {
		ctx.OnCommit(func() { committed++ })
		err := counterProcessor(ctx, data)
		if cancel != nil {
			cancel()
		}
		return err
	})))
	payer := fundedPayer(t, l)

	create := counterTx(payer, 0)
	require.NoError(t, create.Sign(payer))
	_, err := l.Execute(context.Background(), create)
	require.NoError(t, err)
	assert.Equal(t, 1, committed)

	fail := counterTx(payer, 2)
	require.NoError(t, fail.Sign(payer))
	_, err = l.Execute(context.Background(), fail)
	require.Error(t, err)
	assert.Equal(t, 1, committed, "a failed handler commits nothing")

	ctx, c := context.WithCancel(context.Background())
	cancel = c
	inc := counterTx(payer, 1)
	require.NoError(t, inc.Sign(payer))
	_, err = l.Execute(ctx, inc)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, committed, "a transaction cancelled after its handler commits nothing")
	assert.Equal(t, uint64(0), readCounter(t, l))
}

func TestReceipt_CallersCannotAlterCache(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Deploy(context.Background(), counterProgram, ProcessorFunc(counterProcessor)))
	payer := fundedPayer(t, l)

	tx := counterTx(payer, 0)
	require.NoError(t, tx.Sign(payer))
	returned, err := l.Execute(context.Background(), tx)
	require.NoError(t, err)
	logs := len(returned.LogMessages)
	require.Len(t, returned.InnerInstructions, 1)

	returned.LogMessages = append(returned.LogMessages, "forged")
	returned.LogMessages[0] = "forged"
	returned.InnerInstructions[0].Data[0] ^= 0xff
	returned.InnerInstructions = nil

	first, err := l.Receipt(context.Background(), tx.Signature())
	require.NoError(t, err)
	require.Len(t, first.LogMessages, logs)
	assert.NotEqual(t, "forged", first.LogMessages[0])
	require.Len(t, first.InnerInstructions, 1)

	original := first.InnerInstructions[0].Data[0]
	first.InnerInstructions[0].Data[0] ^= 0xff
	first.LogMessages[0] = "forged"

	second, err := l.Receipt(context.Background(), tx.Signature())
	require.NoError(t, err)
	assert.Equal(t, original, second.InnerInstructions[0].Data[0])
	assert.NotEqual(t, "forged", second.LogMessages[0])
}

func TestInvokeSigned_Privileges(t *testing.T) {
	l := newTestLedger(t)
	payer := fundedPayer(t, l)
	seeds := [][]byte{[]byte("authority")}
	authority, bump := pda.MustFind(seeds, counterProgram)
	target := interfaces.Pubkey{0xaa}

	var calleeSawSigner bool
	require.NoError(t, l.Deploy(context.Background(), calleeProgram, ProcessorFunc(func(ctx *Context, data []byte) error {
		calleeSawSigner = ctx.IsSigner(authority)
		ctx.Log("callee ran with %d bytes", len(data))
		return nil
	})))

	mode := "signed"
	require.NoError(t, l.Deploy(context.Background(), counterProgram, ProcessorFunc(func(ctx *Context, data []byte) error {
		ix := Instruction{
			ProgramID: calleeProgram,
			Accounts:  []AccountMeta{ReadOnly(authority, true)},
			Data:      []byte{1, 2, 3},
		}
		switch mode {
		case "signed":
			return ctx.InvokeSigned(ix, [][][]byte{pda.WithBump(seeds, bump)}, nil)
		case "unsigned":
			return ctx.Invoke(ix, nil)
		case "writable":
			return ctx.Invoke(Instruction{
				ProgramID: calleeProgram,
				Accounts:  []AccountMeta{Writable(target, false)},
			}, nil)
		}
		return nil
	})))

	run := func() (*interfaces.Receipt, error) {
		tx := NewTransaction(payer.PublicKey(), Instruction{
			ProgramID: counterProgram,
			Name:      mode,
			Accounts: []AccountMeta{
				ReadOnly(authority, false),
				ReadOnly(target, false),
				ReadOnly(calleeProgram, false),
			},
		})
		require.NoError(t, tx.Sign(payer))
		return l.Execute(context.Background(), tx)
	}

	receipt, err := run()
	require.NoError(t, err)
	assert.True(t, calleeSawSigner)
	require.Len(t, receipt.InnerInstructions, 1)
	assert.Equal(t, calleeProgram, receipt.InnerInstructions[0].ProgramID)
	assert.Equal(t, interfaces.HexBytes{1, 2, 3}, receipt.InnerInstructions[0].Data)
	assert.Contains(t, receipt.LogMessages, "Program log: callee ran with 3 bytes")

	mode = "unsigned"
	_, err = run()
	assert.ErrorIs(t, err, ErrPrivilegeEscalation)

	mode = "writable"
	_, err = run()
	assert.ErrorIs(t, err, ErrPrivilegeEscalation)
}

func TestContext_AccountRules(t *testing.T) {
	l := newTestLedger(t)
	payer := fundedPayer(t, l)
	undeclared := interfaces.Pubkey{0xbb}
	foreign := kms.MustKeypair()
	require.NoError(t, l.Airdrop(context.Background(), foreign.PublicKey(), 10))

	var accessErr, writeErr, closeErr error
	require.NoError(t, l.Deploy(context.Background(), counterProgram, ProcessorFunc(func(ctx *Context, data []byte) error {
		_, accessErr = ctx.Account(undeclared)
		writeErr = ctx.SetData(foreign.PublicKey(), nil)
		closeErr = ctx.CloseAccount(foreign.PublicKey(), payer.PublicKey())
		return nil
	})))

	tx := NewTransaction(payer.PublicKey(), Instruction{
		ProgramID: counterProgram,
		Name:      "rules",
		Accounts:  []AccountMeta{Writable(foreign.PublicKey(), false)},
	})
	require.NoError(t, tx.Sign(payer))
	_, err := l.Execute(context.Background(), tx)
	require.NoError(t, err)

	assert.ErrorIs(t, accessErr, ErrAccountNotDeclared)
	assert.ErrorIs(t, writeErr, ErrIllegalOwner)
	assert.ErrorIs(t, closeErr, ErrIllegalOwner)
}

func TestAccountEncoding(t *testing.T) {
	a := &Account{Owner: counterProgram, Lamports: 42, Data: []byte{1, 2, 3}, Executable: true}
	decoded, err := decodeAccount(encodeAccount(a))
	require.NoError(t, err)
	assert.Equal(t, a, decoded)

	_, err = decodeAccount(encodeAccount(a)[:10])
	assert.Error(t, err)
}

func TestAccountNotFound(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Account(context.Background(), interfaces.Pubkey{9})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = l.Receipt(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
