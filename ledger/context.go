package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/pda"
)

// MaxInvokeHeight bounds the instruction stack, the top-level instruction counting as 1.
const MaxInvokeHeight = 5

// txState is the working set shared by every instruction of one transaction.
// A nil account marks an absent or closed account.
type txState struct {
	txn      *badger.Txn
	slot     uint64
	accounts map[interfaces.Pubkey]*Account
	dirty    map[interfaces.Pubkey]struct{}
	receipt  *interfaces.Receipt
	onCommit []func()
}

func newTxState(txn *badger.Txn, slot uint64, receipt *interfaces.Receipt) *txState {
	return &txState{
		txn:      txn,
		slot:     slot,
		accounts: make(map[interfaces.Pubkey]*Account),
		dirty:    make(map[interfaces.Pubkey]struct{}),
		receipt:  receipt,
	}
}

func (s *txState) load(key interfaces.Pubkey) (*Account, error) {
	if a, ok := s.accounts[key]; ok {
		return a, nil
	}

	item, err := s.txn.Get(accountKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.accounts[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", key, err)
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", key, err)
	}
	a, err := decodeAccount(raw)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", key, err)
	}
	s.accounts[key] = a
	return a, nil
}

func (s *txState) store(key interfaces.Pubkey, a *Account) {
	s.accounts[key] = a
	s.dirty[key] = struct{}{}
}

func (s *txState) flush() error {
	for key := range s.dirty {
		a := s.accounts[key]
		var err error
		if a == nil {
			err = s.txn.Delete(accountKey(key))
		} else {
			err = s.txn.Set(accountKey(key), encodeAccount(a))
		}
		if err != nil {
			return fmt.Errorf("write account %s: %w", key, err)
		}
	}
	return nil
}

func (s *txState) log(line string) {
	s.receipt.LogMessages = append(s.receipt.LogMessages, line)
}

// Context is what a program sees while one of its instructions executes: the accounts
// the instruction declared, the identities that signed for it, and the means to call
// other programs.
type Context struct {
	ctx      context.Context
	ledger   *Ledger
	state    *txState
	program  interfaces.Pubkey
	accounts []AccountMeta
	metas    map[interfaces.Pubkey]AccountMeta
	signers  map[interfaces.Pubkey]struct{}
	height   int
}

func newContext(ctx context.Context, l *Ledger, state *txState, program interfaces.Pubkey, accounts []AccountMeta, signers map[interfaces.Pubkey]struct{}, height int) *Context {
	metas := make(map[interfaces.Pubkey]AccountMeta, len(accounts)+1)
	for _, meta := range accounts {
		metas[meta.Pubkey] = mergeMeta(metas[meta.Pubkey], meta)
	}
	return &Context{
		ctx:      ctx,
		ledger:   l,
		state:    state,
		program:  program,
		accounts: accounts,
		metas:    metas,
		signers:  signers,
		height:   height,
	}
}

// Context returns the context the transaction was submitted with.
func (c *Context) Context() context.Context {
	return c.ctx
}

// ProgramID returns the program currently executing.
func (c *Context) ProgramID() interfaces.Pubkey {
	return c.program
}

// Slot returns the slot the transaction executes in.
func (c *Context) Slot() uint64 {
	return c.state.slot
}

// StackHeight returns 1 for the top-level instruction and grows by one per nested call.
func (c *Context) StackHeight() int {
	return c.height
}

// Accounts returns the accounts of the instruction in declaration order.
func (c *Context) Accounts() []AccountMeta {
	out := make([]AccountMeta, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// Keys returns the first n accounts of the instruction.
func (c *Context) Keys(n int) ([]interfaces.Pubkey, error) {
	if len(c.accounts) < n {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughAccounts, len(c.accounts), n)
	}
	keys := make([]interfaces.Pubkey, n)
	for i := range keys {
		keys[i] = c.accounts[i].Pubkey
	}
	return keys, nil
}

// IsSigner reports whether key signed the transaction or is a derived identity the caller signed for.
func (c *Context) IsSigner(key interfaces.Pubkey) bool {
	_, ok := c.signers[key]
	return ok && c.metas[key].IsSigner
}

// IsWritable reports whether the instruction declared key writable.
func (c *Context) IsWritable(key interfaces.Pubkey) bool {
	return c.metas[key].IsWritable
}

// Account returns a copy of the account at key.
func (c *Context) Account(key interfaces.Pubkey) (*Account, error) {
	if _, ok := c.metas[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotDeclared, key)
	}
	a, err := c.state.load(key)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return a.Clone(), nil
}

// SetData overwrites the data of an account owned by the executing program.
// The length is fixed at creation.
func (c *Context) SetData(key interfaces.Pubkey, data []byte) error {
	a, err := c.writableOwned(key)
	if err != nil {
		return err
	}
	if len(data) != len(a.Data) {
		return fmt.Errorf("%w: %s has %d bytes, got %d", ErrAccountDataSize, key, len(a.Data), len(data))
	}

	a = a.Clone()
	copy(a.Data, data)
	c.state.store(key, a)
	return nil
}

// CreateAccount allocates space zeroed bytes at address, assigns them to owner and funds the
// rent-exempt minimum from payer. address must sign, either as a keypair or, when seeds are
// given, as the address the executing program derives from them.
// A funded system account without data at address is adopted.
func (c *Context) CreateAccount(payer, address interfaces.Pubkey, space int, owner interfaces.Pubkey, seeds [][]byte) error {
	if space < 0 || space > MaxAccountDataSize {
		return fmt.Errorf("invalid account size %d", space)
	}
	if !c.IsSigner(payer) {
		return fmt.Errorf("%w: payer %s", ErrMissingRequiredSig, payer)
	}
	if !c.IsWritable(payer) || !c.IsWritable(address) {
		return fmt.Errorf("%w: create %s", ErrAccountNotWritable, address)
	}

	if seeds != nil {
		derived, err := pda.CreateProgramAddress(seeds, c.program)
		if err != nil {
			return err
		}
		if derived != address {
			return fmt.Errorf("%w: %s is not derived from the given seeds", ErrMissingRequiredSig, address)
		}
	} else if !c.IsSigner(address) {
		return fmt.Errorf("%w: new account %s", ErrMissingRequiredSig, address)
	}

	existing, err := c.state.load(address)
	if err != nil {
		return err
	}
	var balance uint64
	if existing != nil {
		if !existing.IsUninitialized() {
			return fmt.Errorf("%w: %s", ErrAccountInUse, address)
		}
		balance = existing.Lamports
	}

	required := RentExemptMinimum(space)
	if balance < required {
		if err := c.debit(payer, required-balance); err != nil {
			return err
		}
		balance = required
	}

	c.recordInner(interfaces.SystemProgramID, encodeCreateAccount(required, space, owner))
	c.state.store(address, &Account{
		Owner:    owner,
		Lamports: balance,
		Data:     make([]byte, space),
	})
	return nil
}

// CloseAccount deletes an account owned by the executing program and moves its lamports to receiver.
func (c *Context) CloseAccount(address, receiver interfaces.Pubkey) error {
	if address == receiver {
		return fmt.Errorf("cannot close %s into itself", address)
	}
	a, err := c.writableOwned(address)
	if err != nil {
		return err
	}
	if !c.IsWritable(receiver) {
		return fmt.Errorf("%w: receiver %s", ErrAccountNotWritable, receiver)
	}

	dest, err := c.state.load(receiver)
	if err != nil {
		return err
	}
	if dest == nil {
		dest = &Account{Owner: interfaces.SystemProgramID, Data: []byte{}}
	} else {
		dest = dest.Clone()
	}
	dest.Lamports += a.Lamports

	c.state.store(receiver, dest)
	c.state.store(address, nil)
	return nil
}

// Invoke calls another program with the caller's privileges. When fn is nil the
// instruction is dispatched to the program deployed at ix.ProgramID.
func (c *Context) Invoke(ix Instruction, fn func(*Context) error) error {
	return c.InvokeSigned(ix, nil, fn)
}

// InvokeSigned is Invoke with additional signers: every seed set yields the address the
// executing program derives from it, and that address signs the nested instruction.
func (c *Context) InvokeSigned(ix Instruction, signerSeeds [][][]byte, fn func(*Context) error) error {
	if c.height+1 > MaxInvokeHeight {
		return ErrCallDepth
	}
	if _, ok := c.metas[ix.ProgramID]; !ok {
		return fmt.Errorf("%w: program %s", ErrAccountNotDeclared, ix.ProgramID)
	}

	derived := make(map[interfaces.Pubkey]struct{}, len(signerSeeds))
	for _, seeds := range signerSeeds {
		address, err := pda.CreateProgramAddress(seeds, c.program)
		if err != nil {
			return fmt.Errorf("derive signer: %w", err)
		}
		derived[address] = struct{}{}
	}

	signers := make(map[interfaces.Pubkey]struct{})
	for _, meta := range ix.Accounts {
		caller, ok := c.metas[meta.Pubkey]
		if !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotDeclared, meta.Pubkey)
		}
		if meta.IsWritable && !caller.IsWritable {
			return fmt.Errorf("%w: %s is read-only for the caller", ErrPrivilegeEscalation, meta.Pubkey)
		}
		if !meta.IsSigner {
			continue
		}
		_, signedByCaller := c.signers[meta.Pubkey]
		_, signedByProgram := derived[meta.Pubkey]
		if !(signedByCaller && caller.IsSigner) && !signedByProgram {
			return fmt.Errorf("%w: %s did not sign", ErrPrivilegeEscalation, meta.Pubkey)
		}
		signers[meta.Pubkey] = struct{}{}
	}

	if fn == nil {
		processor, err := c.ledger.processor(ix.ProgramID)
		if err != nil {
			return err
		}
		data := ix.Data
		fn = func(callee *Context) error {
			return processor.Process(callee, data)
		}
	}

	c.recordInner(ix.ProgramID, ix.Data)
	callee := newContext(c.ctx, c.ledger, c.state, ix.ProgramID, ix.Accounts, signers, c.height+1)
	return callee.run(fn)
}

// OnCommit registers fn to run once the transaction has committed. Nothing runs for a
// transaction that rolls back.
func (c *Context) OnCommit(fn func()) {
	c.state.onCommit = append(c.state.onCommit, fn)
}

// Log appends a program log line to the receipt.
func (c *Context) Log(format string, args ...any) {
	c.state.log("Program log: " + fmt.Sprintf(format, args...))
}

func (c *Context) run(fn func(*Context) error) error {
	c.state.log(fmt.Sprintf("Program %s invoke [%d]", c.program, c.height))
	if err := fn(c); err != nil {
		c.state.log(fmt.Sprintf("Program %s failed: %v", c.program, err))
		return err
	}
	c.state.log(fmt.Sprintf("Program %s success", c.program))
	return nil
}

func (c *Context) recordInner(program interfaces.Pubkey, data []byte) {
	c.state.receipt.InnerInstructions = append(c.state.receipt.InnerInstructions, interfaces.InnerInstruction{
		ProgramID:   program,
		StackHeight: c.height + 1,
		Data:        append([]byte(nil), data...),
	})
}

func (c *Context) writableOwned(key interfaces.Pubkey) (*Account, error) {
	if !c.IsWritable(key) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, key)
	}
	a, err := c.Account(key)
	if err != nil {
		return nil, err
	}
	if a.Owner != c.program {
		return nil, fmt.Errorf("%w: %s is owned by %s", ErrIllegalOwner, key, a.Owner)
	}
	return a, nil
}

func (c *Context) debit(payer interfaces.Pubkey, lamports uint64) error {
	a, err := c.Account(payer)
	if err != nil {
		return err
	}
	if a.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d lamports, needs %d", ErrInsufficientFunds, payer, a.Lamports, lamports)
	}
	a.Lamports -= lamports
	c.state.store(payer, a)
	return nil
}

// encodeCreateAccount is the system program's create_account instruction data.
func encodeCreateAccount(lamports uint64, space int, owner interfaces.Pubkey) []byte {
	enc := codec.NewEncoder(52)
	enc.U32(0)
	enc.U64(lamports)
	enc.U64(uint64(space))
	enc.Pubkey(owner)
	return enc.Bytes()
}
