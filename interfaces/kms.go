package interfaces

// KMS derives the signing identities the registry client operates with.
// Every key is a deterministic function of the KMS master secret and its label,
// so a restarted service signs with the same identities.
type KMS interface {
	// PayerKey returns the identity funding and signing every transaction.
	PayerKey() (Signer, error)

	// TreeKey returns the keypair a tree account is allocated at.
	TreeKey(label string) (Signer, error)

	// CollectionMintKey returns the keypair a collection mint is created at.
	CollectionMintKey(label string) (Signer, error)
}
