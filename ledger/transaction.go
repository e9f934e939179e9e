package ledger

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

const messageVersion = 0

// AccountMeta declares how an instruction accesses an account.
type AccountMeta struct {
	Pubkey     interfaces.Pubkey `json:"pubkey"`
	IsSigner   bool              `json:"is_signer"`
	IsWritable bool              `json:"is_writable"`
}

// Writable declares a mutable account.
func Writable(key interfaces.Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: key, IsSigner: signer, IsWritable: true}
}

// ReadOnly declares an account that is only read.
func ReadOnly(key interfaces.Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: key, IsSigner: signer}
}

// Instruction is one call into a program.
type Instruction struct {
	ProgramID interfaces.Pubkey `json:"program_id"`
	Name      string            `json:"name"`
	Accounts  []AccountMeta     `json:"accounts"`
	Data      []byte            `json:"data"`
}

// Transaction is a signed top-level instruction.
// Signatures are ordered as Signers().
type Transaction struct {
	FeePayer    interfaces.Pubkey `json:"fee_payer"`
	Instruction Instruction       `json:"instruction"`
	Nonce       uuid.UUID         `json:"nonce"`
	Signatures  [][]byte          `json:"signatures"`
}

// NewTransaction wraps ix in an unsigned transaction with a fresh nonce.
func NewTransaction(feePayer interfaces.Pubkey, ix Instruction) *Transaction {
	return &Transaction{
		FeePayer:    feePayer,
		Instruction: ix,
		Nonce:       uuid.New(),
	}
}

// Signers lists the identities that must sign, fee payer first.
func (tx *Transaction) Signers() []interfaces.Pubkey {
	signers := []interfaces.Pubkey{tx.FeePayer}
	seen := map[interfaces.Pubkey]struct{}{tx.FeePayer: {}}
	for _, meta := range tx.Instruction.Accounts {
		if !meta.IsSigner {
			continue
		}
		if _, ok := seen[meta.Pubkey]; ok {
			continue
		}
		seen[meta.Pubkey] = struct{}{}
		signers = append(signers, meta.Pubkey)
	}
	return signers
}

// Message returns the bytes every signature covers.
func (tx *Transaction) Message() []byte {
	ix := tx.Instruction
	enc := codec.NewEncoder(128 + len(ix.Accounts)*34 + len(ix.Data))
	enc.U8(messageVersion)
	enc.Pubkey(tx.FeePayer)
	enc.Raw(tx.Nonce[:])
	enc.Pubkey(ix.ProgramID)
	enc.String(ix.Name)
	enc.U32(uint32(len(ix.Accounts)))
	for _, meta := range ix.Accounts {
		enc.Pubkey(meta.Pubkey)
		enc.Bool(meta.IsSigner)
		enc.Bool(meta.IsWritable)
	}
	enc.VecBytes(ix.Data)
	return enc.Bytes()
}

// Sign adds signatures from the given signers. Signers that are not required are ignored.
func (tx *Transaction) Sign(signers ...interfaces.Signer) error {
	required := tx.Signers()
	if len(tx.Signatures) != len(required) {
		signatures := make([][]byte, len(required))
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}

	msg := tx.Message()
	for _, signer := range signers {
		for i, key := range required {
			if signer.PublicKey() != key {
				continue
			}
			sig, err := signer.Sign(msg)
			if err != nil {
				return fmt.Errorf("sign as %s: %w", key, err)
			}
			tx.Signatures[i] = sig
		}
	}
	return nil
}

// Verify checks that every required signer produced a valid signature over the message.
func (tx *Transaction) Verify() error {
	required := tx.Signers()
	if len(tx.Signatures) != len(required) {
		return fmt.Errorf("%w: have %d signatures, need %d", ErrMissingSignature, len(tx.Signatures), len(required))
	}

	msg := tx.Message()
	for i, key := range required {
		if len(tx.Signatures[i]) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingSignature, key)
		}
		if !interfaces.VerifySignature(key, msg, tx.Signatures[i]) {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, key)
		}
	}
	return nil
}

// Signature returns the fee payer's signature, which identifies the transaction.
func (tx *Transaction) Signature() string {
	if len(tx.Signatures) == 0 || len(tx.Signatures[0]) == 0 {
		return ""
	}
	return base58.Encode(tx.Signatures[0])
}

// lockSet merges the accounts touched by tx, the fee payer and the program included.
func (tx *Transaction) lockSet() []AccountMeta {
	merged := make(map[interfaces.Pubkey]AccountMeta, len(tx.Instruction.Accounts)+2)
	merged[tx.Instruction.ProgramID] = ReadOnly(tx.Instruction.ProgramID, false)
	merged[tx.FeePayer] = mergeMeta(merged[tx.FeePayer], Writable(tx.FeePayer, true))
	for _, meta := range tx.Instruction.Accounts {
		merged[meta.Pubkey] = mergeMeta(merged[meta.Pubkey], meta)
	}
	return sortedMetas(merged)
}

func mergeMeta(existing, meta AccountMeta) AccountMeta {
	existing.Pubkey = meta.Pubkey
	existing.IsSigner = existing.IsSigner || meta.IsSigner
	existing.IsWritable = existing.IsWritable || meta.IsWritable
	return existing
}

func sortedMetas(metas map[interfaces.Pubkey]AccountMeta) []AccountMeta {
	out := make([]AccountMeta, 0, len(metas))
	for _, meta := range metas {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Pubkey.Compare(out[j].Pubkey) < 0
	})
	return out
}
