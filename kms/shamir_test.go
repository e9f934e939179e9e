package kms

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err, "Failed to generate test seed")
	return seed
}

func TestShamirKMS_NewShamirKMS(t *testing.T) {
	seed := testSeed(t)

	kms, shares, err := NewShamirKMS(seed, 3, 5)
	require.NoError(t, err, "NewShamirKMS should succeed with valid parameters")
	assert.Equal(t, 5, len(shares), "Should generate 5 shares")
	assert.True(t, kms.IsUnlocked(), "KMS should start in unlocked state when initiated with the seed")

	simple, err := NewSimpleKMS(seed)
	require.NoError(t, err)
	payer, err := kms.PayerKey()
	require.NoError(t, err)
	expected, err := simple.PayerKey()
	require.NoError(t, err)
	assert.Equal(t, expected.PublicKey(), payer.PublicKey())

	_, _, err = NewShamirKMS(seed, 6, 5)
	assert.Error(t, err, "Should fail when threshold > total shares")

	_, _, err = NewShamirKMS(seed, 1, 5)
	assert.Error(t, err, "Should fail when threshold < 2")

	_, _, err = NewShamirKMS(make([]byte, 16), 3, 5)
	assert.Error(t, err, "Should fail with seed < 32 bytes")
}

func TestShamirKMS_Recovery(t *testing.T) {
	seed := testSeed(t)
	original, shares, err := NewShamirKMS(seed, 3, 5)
	require.NoError(t, err)
	originalPayer, err := original.PayerKey()
	require.NoError(t, err)
	originalTree, err := original.TreeKey("main")
	require.NoError(t, err)

	expected := originalPayer.PublicKey()
	kms, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 3, ExpectedPayer: &expected})
	require.NoError(t, err)
	assert.False(t, kms.IsUnlocked(), "KMS should start in locked state")

	_, err = kms.PayerKey()
	assert.ErrorIs(t, err, ErrLocked)
	_, err = kms.TreeKey("main")
	assert.ErrorIs(t, err, ErrLocked)
	_, err = kms.CollectionMintKey("drop")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, kms.SubmitShare(shares[4]))
	require.NoError(t, kms.SubmitShare(shares[4]), "resubmitting a share is a no-op")
	require.NoError(t, kms.SubmitShare(shares[1]))
	assert.False(t, kms.IsUnlocked())

	require.NoError(t, kms.SubmitShare(shares[2]))
	assert.True(t, kms.IsUnlocked())

	payer, err := kms.PayerKey()
	require.NoError(t, err)
	assert.Equal(t, originalPayer.PublicKey(), payer.PublicKey())
	tree, err := kms.TreeKey("main")
	require.NoError(t, err)
	assert.Equal(t, originalTree.PublicKey(), tree.PublicKey())

	assert.Error(t, kms.SubmitShare(shares[0]), "Should fail once unlocked")
}

func TestShamirKMS_RecoveryMismatch(t *testing.T) {
	_, shares, err := NewShamirKMS(testSeed(t), 2, 3)
	require.NoError(t, err)

	other := MustKeypair().PublicKey()
	kms, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 2, ExpectedPayer: &other})
	require.NoError(t, err)

	require.NoError(t, kms.SubmitShare(shares[0]))
	assert.ErrorIs(t, kms.SubmitShare(shares[1]), ErrShareMismatch)
	assert.False(t, kms.IsUnlocked())
}

func TestShamirKMS_InvalidShares(t *testing.T) {
	_, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 1})
	assert.Error(t, err)

	kms, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 2})
	require.NoError(t, err)
	assert.Error(t, kms.SubmitShare([]byte{1, 2, 3}), "Should fail with a truncated share")

	_, shares, err := NewShamirKMS(testSeed(t), 2, 3)
	require.NoError(t, err)
	require.NoError(t, kms.SubmitShare(shares[0]))

	conflicting := append([]byte(nil), shares[0]...)
	conflicting[0] ^= 0xff
	assert.Error(t, kms.SubmitShare(conflicting), "Should fail with a different share for the same index")
}
