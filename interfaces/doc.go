// Package interfaces defines the core types and interfaces of the compressed tree
// registry, separating definitions from implementations.
//
// # Registry
//
// Registry is the client view of the registry program: it initializes and closes the
// registry state, provisions merkle trees, mints leaves (optionally into a verified
// collection) and recovers minted leaves from transaction receipts. Implemented by
// registry.Client, with a mock in the registry package for handler tests.
//
// # Keys
//
// Pubkey is a 32-byte ed25519 public key or program derived address, rendered in
// base58. Signer signs transactions. KMS derives the payer, tree and collection mint
// signers the registry operates with.
//
// # Storage
//
// StorageBackend provides content-addressed storage for off-chain metadata across file,
// S3 and IPFS backends. StorageBackendFactory creates backends from URIs and combines
// several into a redundant multi-backend.
//
// # Account and event types
//
// RegistryState, TreeAccount, MetadataArgs, CollectionInfo, LeafAppendEvent and Receipt
// mirror the on-ledger layouts in a JSON friendly form. The error sentinels in errors.go
// are shared by the programs, the client and the HTTP layer, which maps them to status
// codes.
package interfaces
