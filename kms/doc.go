// Package kms derives the signing identities the registry operates with.
//
// It implements the interfaces.KMS interface:
//
//	type KMS interface {
//	    PayerKey() (Signer, error)
//	    TreeKey(label string) (Signer, error)
//	    CollectionMintKey(label string) (Signer, error)
//	}
//
// # SimpleKMS
//
// Derives every key deterministically from a master seed with HKDF-SHA256, using the
// key purpose and label as info. A restarted service signs with the same payer, tree
// and collection mint keys, so trees it created stay mintable.
//
// # ShamirKMS
//
// Holds the same master seed split with Shamir's Secret Sharing. Operators keep one
// share each; the service derives nothing until a threshold of shares has been
// submitted. An expected payer identity can be configured to reject a seed
// reconstructed from wrong or mixed shares:
//
//	seed := make([]byte, 32)
//	rand.Read(seed)
//	_, shares, err := kms.NewShamirKMS(seed, 3, 5)
//	// hand out shares, erase seed
//
//	k, err := kms.NewShamirKMSRecovery(kms.ShamirConfig{Threshold: 3})
//	for _, share := range collected {
//	    if err := k.SubmitShare(share); err != nil {
//	        return err
//	    }
//	}
//	payer, err := k.PayerKey()
//
// # Keypair
//
// Ed25519 keypairs implementing interfaces.Signer. MustKeypair generates a random one
// for tests and ephemeral identities.
package kms
