package registry

import (
	"context"

	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the Registry interface
type MockRegistry struct {
	mock.Mock
}

var _ interfaces.Registry = (*MockRegistry)(nil)

// ProgramID mocks the ProgramID method
func (m *MockRegistry) ProgramID() interfaces.Pubkey {
	args := m.Called()
	return args.Get(0).(interfaces.Pubkey)
}

// Payer mocks the Payer method
func (m *MockRegistry) Payer() interfaces.Pubkey {
	args := m.Called()
	return args.Get(0).(interfaces.Pubkey)
}

// TreeAuthority mocks the TreeAuthority method
func (m *MockRegistry) TreeAuthority(tree interfaces.Pubkey) interfaces.Pubkey {
	args := m.Called(tree)
	return args.Get(0).(interfaces.Pubkey)
}

// Initialize mocks the Initialize method
func (m *MockRegistry) Initialize(ctx context.Context) (*interfaces.Receipt, error) {
	args := m.Called(ctx)
	return receiptArg(args, 0), args.Error(1)
}

// CloseStateAccount mocks the CloseStateAccount method
func (m *MockRegistry) CloseStateAccount(ctx context.Context, receiver interfaces.Pubkey) (*interfaces.Receipt, error) {
	args := m.Called(ctx, receiver)
	return receiptArg(args, 0), args.Error(1)
}

// State mocks the State method
func (m *MockRegistry) State(ctx context.Context) (*interfaces.RegistryState, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*interfaces.RegistryState)
	return s, args.Error(1)
}

// CreateTree mocks the CreateTree method
func (m *MockRegistry) CreateTree(ctx context.Context, label string, params interfaces.TreeParams) (*interfaces.TreeInfo, *interfaces.Receipt, error) {
	args := m.Called(ctx, label, params)
	info, _ := args.Get(0).(*interfaces.TreeInfo)
	return info, receiptArg(args, 1), args.Error(2)
}

// Tree mocks the Tree method
func (m *MockRegistry) Tree(ctx context.Context, tree interfaces.Pubkey) (*interfaces.TreeAccount, error) {
	args := m.Called(ctx, tree)
	account, _ := args.Get(0).(*interfaces.TreeAccount)
	return account, args.Error(1)
}

// Mint mocks the Mint method
func (m *MockRegistry) Mint(ctx context.Context, req *interfaces.MintRequest) (*interfaces.MintResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*interfaces.MintResult)
	return result, args.Error(1)
}

// MintToCollection mocks the MintToCollection method
func (m *MockRegistry) MintToCollection(ctx context.Context, req *interfaces.MintRequest, collectionMint interfaces.Pubkey) (*interfaces.MintResult, error) {
	args := m.Called(ctx, req, collectionMint)
	result, _ := args.Get(0).(*interfaces.MintResult)
	return result, args.Error(1)
}

// CreateCollection mocks the CreateCollection method
func (m *MockRegistry) CreateCollection(ctx context.Context, label string, collection interfaces.CollectionArgs) (*interfaces.CollectionInfo, *interfaces.Receipt, error) {
	args := m.Called(ctx, label, collection)
	info, _ := args.Get(0).(*interfaces.CollectionInfo)
	return info, receiptArg(args, 1), args.Error(2)
}

// Collection mocks the Collection method
func (m *MockRegistry) Collection(ctx context.Context, mint interfaces.Pubkey) (*interfaces.CollectionInfo, error) {
	args := m.Called(ctx, mint)
	info, _ := args.Get(0).(*interfaces.CollectionInfo)
	return info, args.Error(1)
}

// Receipt mocks the Receipt method
func (m *MockRegistry) Receipt(ctx context.Context, signature string) (*interfaces.Receipt, error) {
	args := m.Called(ctx, signature)
	return receiptArg(args, 0), args.Error(1)
}

// RecoverLeaf mocks the RecoverLeaf method
func (m *MockRegistry) RecoverLeaf(ctx context.Context, signature string, tree interfaces.Pubkey) (*interfaces.MintResult, error) {
	args := m.Called(ctx, signature, tree)
	result, _ := args.Get(0).(*interfaces.MintResult)
	return result, args.Error(1)
}

// Airdrop mocks the Airdrop method
func (m *MockRegistry) Airdrop(ctx context.Context, to interfaces.Pubkey, lamports uint64) error {
	args := m.Called(ctx, to, lamports)
	return args.Error(0)
}

func receiptArg(args mock.Arguments, i int) *interfaces.Receipt {
	receipt, _ := args.Get(i).(*interfaces.Receipt)
	return receipt
}
