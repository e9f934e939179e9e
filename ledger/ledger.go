package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/metrics"
	"github.com/ruteri/compressed-tree-registry/pda"
)

var (
	accountPrefix = []byte("acct/")
	receiptPrefix = []byte("tx/")
	slotKey       = []byte("meta/slot")
)

// LoaderProgramID owns the executable accounts of deployed programs.
var LoaderProgramID = interfaces.MustPubkeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")

func accountKey(key interfaces.Pubkey) []byte {
	return append(append([]byte{}, accountPrefix...), key[:]...)
}

func receiptKey(signature string) []byte {
	return append(append([]byte{}, receiptPrefix...), signature...)
}

// Processor executes the instructions addressed to a deployed program.
type Processor interface {
	Process(ctx *Context, data []byte) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *Context, data []byte) error

func (f ProcessorFunc) Process(ctx *Context, data []byte) error {
	return f(ctx, data)
}

type Options struct {
	// Path is the badger directory. Empty or InMemory keeps everything in memory.
	Path     string
	InMemory bool

	// ReceiptCacheSize is the number of receipts kept in the read cache.
	ReceiptCacheSize int64

	Log     *slog.Logger
	Metrics *metrics.Collectors
}

// Ledger is an account store executing signed transactions atomically.
//
// Every transaction declares the accounts it reads and writes. Declared accounts are
// locked in key order before execution, so transactions writing the same account run
// one after the other while transactions on disjoint accounts run in parallel. All
// writes of a transaction, nested program calls included, commit in a single badger
// transaction or not at all.
type Ledger struct {
	db       *badger.DB
	slots    *badger.Sequence
	receipts *ristretto.Cache
	locks    *lockTable
	log      *slog.Logger
	metrics  *metrics.Collectors

	mu       sync.RWMutex
	programs map[interfaces.Pubkey]Processor
}

// Open opens (or creates) a ledger. The log wrapper program is always deployed.
func Open(opts Options) (*Ledger, error) {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory || opts.Path == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	slots, err := db.GetSequence(slotKey, 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open slot sequence: %w", err)
	}

	cacheSize := opts.ReceiptCacheSize
	if cacheSize <= 0 {
		cacheSize = 1 << 14
	}
	receipts, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheSize * 10,
		MaxCost:     cacheSize,
		BufferItems: 64,
	})
	if err != nil {
		slots.Release()
		db.Close()
		return nil, fmt.Errorf("create receipt cache: %w", err)
	}

	l := &Ledger{
		db:       db,
		slots:    slots,
		receipts: receipts,
		locks:    newLockTable(),
		log:      log,
		metrics:  opts.Metrics,
		programs: make(map[interfaces.Pubkey]Processor),
	}

	noop := ProcessorFunc(func(*Context, []byte) error { return nil })
	if err := l.Deploy(context.Background(), pda.NoopProgramID, noop); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the slot sequence and closes the database.
func (l *Ledger) Close() error {
	l.receipts.Close()
	if err := l.slots.Release(); err != nil {
		l.log.Warn("Failed to release slot sequence", "err", err)
	}
	return l.db.Close()
}

// Deploy makes processor reachable at programID and marks the account executable.
func (l *Ledger) Deploy(ctx context.Context, programID interfaces.Pubkey, processor Processor) error {
	l.mu.Lock()
	l.programs[programID] = processor
	l.mu.Unlock()

	release := l.locks.acquire([]AccountMeta{Writable(programID, false)})
	defer release()

	return l.db.Update(func(txn *badger.Txn) error {
		a := &Account{Owner: LoaderProgramID, Lamports: RentExemptMinimum(0), Data: []byte{}, Executable: true}
		return txn.Set(accountKey(programID), encodeAccount(a))
	})
}

func (l *Ledger) processor(programID interfaces.Pubkey) (Processor, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.programs[programID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, programID)
	}
	return p, nil
}

// Execute verifies, locks, runs and commits tx.
//
// Transactions rejected before execution (bad signatures, unknown program, duplicate,
// cancelled context) return no receipt. A transaction that fails while executing leaves
// no state change, but its receipt is recorded and returned along with the error.
func (l *Ledger) Execute(ctx context.Context, tx *Transaction) (*interfaces.Receipt, error) {
	start := time.Now()
	name := tx.Instruction.Name

	receipt, err := l.execute(ctx, tx)
	l.metrics.ObserveTransaction(name, err, time.Since(start))
	if err != nil {
		l.log.Debug("Transaction failed", "instruction", name, "signature", tx.Signature(), "err", err)
	} else {
		l.log.Debug("Transaction committed", "instruction", name, "signature", receipt.Signature, "slot", receipt.Slot)
	}
	return receipt, err
}

func (l *Ledger) execute(ctx context.Context, tx *Transaction) (*interfaces.Receipt, error) {
	if err := tx.Verify(); err != nil {
		return nil, err
	}
	ix := tx.Instruction
	processor, err := l.processor(ix.ProgramID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lockSet := tx.lockSet()
	release := l.locks.acquire(lockSet)
	defer release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signature := tx.Signature()
	txn := l.db.NewTransaction(true)
	defer txn.Discard()

	if _, err := txn.Get(receiptKey(signature)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, signature)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("lookup receipt: %w", err)
	}

	slot, err := l.slots.Next()
	if err != nil {
		return nil, fmt.Errorf("next slot: %w", err)
	}

	signers := make(map[interfaces.Pubkey]struct{})
	for _, key := range tx.Signers() {
		signers[key] = struct{}{}
	}

	receipt := &interfaces.Receipt{
		Signature:         signature,
		Slot:              slot,
		Program:           ix.ProgramID,
		Instruction:       ix.Name,
		Signers:           tx.Signers(),
		InnerInstructions: []interfaces.InnerInstruction{},
		LogMessages:       []string{},
	}
	state := newTxState(txn, slot, receipt)

	root := newContext(ctx, l, state, ix.ProgramID, ix.Accounts, signers, 1)
	for _, meta := range lockSet {
		root.metas[meta.Pubkey] = mergeMeta(root.metas[meta.Pubkey], meta)
	}

	runErr := root.run(func(c *Context) error {
		return processor.Process(c, ix.Data)
	})
	if runErr == nil {
		runErr = state.flush()
	}
	if runErr == nil {
		runErr = ctx.Err()
	}
	if runErr == nil {
		runErr = l.commit(txn, receipt)
	}

	if runErr != nil {
		receipt.Err = runErr.Error()
		if err := l.storeReceipt(receipt); err != nil {
			l.log.Error("Failed to record failed transaction", "signature", signature, "err", err)
		}
		return receipt, runErr
	}

	l.cacheReceipt(receipt)
	for _, fn := range state.onCommit {
		fn()
	}
	return receipt, nil
}

func (l *Ledger) commit(txn *badger.Txn, receipt *interfaces.Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	if err := txn.Set(receiptKey(receipt.Signature), raw); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	err = txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return ErrWriteConflict
	}
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (l *Ledger) storeReceipt(receipt *interfaces.Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	if err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(receiptKey(receipt.Signature), raw)
	}); err != nil {
		return err
	}
	l.cacheReceipt(receipt)
	return nil
}

// cacheReceipt caches a private copy so callers cannot alter what later readers see.
func (l *Ledger) cacheReceipt(receipt *interfaces.Receipt) {
	l.receipts.Set(receipt.Signature, copyReceipt(receipt), 1)
}

func copyReceipt(r *interfaces.Receipt) *interfaces.Receipt {
	c := *r
	c.Signers = slices.Clone(r.Signers)
	c.LogMessages = slices.Clone(r.LogMessages)
	c.InnerInstructions = make([]interfaces.InnerInstruction, len(r.InnerInstructions))
	for i, inner := range r.InnerInstructions {
		inner.Data = slices.Clone(inner.Data)
		c.InnerInstructions[i] = inner
	}
	return &c
}

// Receipt returns the recorded outcome of the transaction with the given signature.
func (l *Ledger) Receipt(ctx context.Context, signature string) (*interfaces.Receipt, error) {
	if cached, ok := l.receipts.Get(signature); ok {
		if receipt, ok := cached.(*interfaces.Receipt); ok {
			return copyReceipt(receipt), nil
		}
	}

	var receipt interfaces.Receipt
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(receiptKey(signature))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &receipt)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("transaction %s %w", signature, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read receipt: %w", err)
	}

	l.cacheReceipt(&receipt)
	return &receipt, nil
}

// Account reads the committed state of an account.
func (l *Ledger) Account(ctx context.Context, key interfaces.Pubkey) (*Account, error) {
	var a *Account
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		a, err = decodeAccount(raw)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Airdrop credits lamports to a system account, creating it when absent.
func (l *Ledger) Airdrop(ctx context.Context, to interfaces.Pubkey, lamports uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release := l.locks.acquire([]AccountMeta{Writable(to, false)})
	defer release()

	return l.db.Update(func(txn *badger.Txn) error {
		state := newTxState(txn, 0, &interfaces.Receipt{})
		a, err := state.load(to)
		if err != nil {
			return err
		}
		if a == nil {
			a = &Account{Owner: interfaces.SystemProgramID, Data: []byte{}}
		}
		a.Lamports += lamports
		state.store(to, a)
		return state.flush()
	})
}
