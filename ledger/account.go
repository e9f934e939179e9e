package ledger

import (
	"bytes"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

const (
	// AccountStorageOverhead is charged on top of the data length of every account.
	AccountStorageOverhead = 128

	// LamportsPerByteYear is the rent rate.
	LamportsPerByteYear = 3480

	// ExemptionThreshold is the number of years of rent an account must hold to be exempt.
	ExemptionThreshold = 2

	// MaxAccountDataSize bounds the data of a single account.
	MaxAccountDataSize = 10 * 1024 * 1024
)

// RentExemptMinimum returns the balance an account holding size bytes must keep.
func RentExemptMinimum(size int) uint64 {
	return uint64(AccountStorageOverhead+size) * LamportsPerByteYear * ExemptionThreshold
}

// Account is the unit of ledger state.
type Account struct {
	Owner      interfaces.Pubkey `json:"owner"`
	Lamports   uint64            `json:"lamports"`
	Data       []byte            `json:"data"`
	Executable bool              `json:"executable"`
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Data = bytes.Clone(a.Data)
	return &out
}

// IsUninitialized reports whether a is a plain system account without data.
func (a *Account) IsUninitialized() bool {
	return a.Owner == interfaces.SystemProgramID && len(a.Data) == 0
}

func encodeAccount(a *Account) []byte {
	enc := codec.NewEncoder(32 + 8 + 1 + 4 + len(a.Data))
	enc.Pubkey(a.Owner)
	enc.U64(a.Lamports)
	enc.Bool(a.Executable)
	enc.VecBytes(a.Data)
	return enc.Bytes()
}

func decodeAccount(raw []byte) (*Account, error) {
	dec := codec.NewDecoder(raw)
	a := &Account{
		Owner:      dec.Pubkey(),
		Lamports:   dec.U64(),
		Executable: dec.Bool(),
	}
	n := dec.VecLen(MaxAccountDataSize)
	a.Data = bytes.Clone(dec.Raw(n))
	if err := dec.Finish(); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	if a.Data == nil {
		a.Data = []byte{}
	}
	return a, nil
}
