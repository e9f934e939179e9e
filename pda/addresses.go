package pda

import (
	"github.com/ruteri/compressed-tree-registry/codec"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// Well-known program identities.
var (
	BubblegumProgramID   = interfaces.MustPubkeyFromBase58("BGUMAp9Gq7iTEuizy4pqaxsTyUCBK68MDfK752saRPUY")
	CompressionProgramID = interfaces.MustPubkeyFromBase58("cmtDvXumGCrqC1Age74AVPhSRVXJMd8PJS91L8KbNCK")
	NoopProgramID        = interfaces.MustPubkeyFromBase58("noopb9bkMVfRPU8AsbpTUg8AQkHtKwMYZiFUjNRtMmV")
	MetadataProgramID    = interfaces.MustPubkeyFromBase58("HHF9fc7muVGESPRCb1SMZFztcZXXTd6D85aREtXEEruU")

	// DefaultRegistryProgramID is the identity the registry program is deployed at unless configured otherwise.
	DefaultRegistryProgramID = interfaces.MustPubkeyFromBase58("FfBTdPDEYkQPp5pLobjSmHTdbGeqJMcUbqjKevKcuCXS")
)

// Domain separation seeds.
const (
	RegistryStateSeed = "registry_state"
	TreeOwnerSeed     = "tree_owner"
	AssetSeed         = "asset"
	CollectionCPISeed = "collection_cpi"
	MetadataSeed      = "metadata"
	EditionSeed       = "edition"
)

// RegistryStateSeeds are the seeds of the registry singleton, without bump.
func RegistryStateSeeds() [][]byte {
	return [][]byte{[]byte(RegistryStateSeed)}
}

// RegistryState derives the registry singleton address of programID.
func RegistryState(programID interfaces.Pubkey) (interfaces.Pubkey, uint8) {
	return MustFind(RegistryStateSeeds(), programID)
}

// TreeAuthoritySeeds are the seeds of a tree's signing authority, without bump.
func TreeAuthoritySeeds(tree interfaces.Pubkey) [][]byte {
	return [][]byte{[]byte(TreeOwnerSeed), tree.Bytes()}
}

// TreeAuthority derives the identity that signs every mutation of tree on behalf of programID.
func TreeAuthority(tree, programID interfaces.Pubkey) (interfaces.Pubkey, uint8) {
	return MustFind(TreeAuthoritySeeds(tree), programID)
}

// TreeConfigSeeds are the seeds of a tree's configuration account, without bump.
func TreeConfigSeeds(tree interfaces.Pubkey) [][]byte {
	return [][]byte{tree.Bytes()}
}

// TreeConfig derives the compression protocol's per-tree configuration account.
func TreeConfig(tree interfaces.Pubkey) (interfaces.Pubkey, uint8) {
	return MustFind(TreeConfigSeeds(tree), BubblegumProgramID)
}

// CollectionCPISeeds are the seeds of the collection signer, without bump.
func CollectionCPISeeds() [][]byte {
	return [][]byte{[]byte(CollectionCPISeed)}
}

// CollectionCPISigner derives the identity the compression protocol signs collection updates with.
func CollectionCPISigner() (interfaces.Pubkey, uint8) {
	return MustFind(CollectionCPISeeds(), BubblegumProgramID)
}

// Asset derives the global identifier of the leaf minted with nonce into tree.
func Asset(tree interfaces.Pubkey, nonce uint64) (interfaces.Pubkey, uint8) {
	n := codec.NewEncoder(8)
	n.U64(nonce)
	return MustFind([][]byte{[]byte(AssetSeed), tree.Bytes(), n.Bytes()}, BubblegumProgramID)
}

// CollectionMetadataSeeds are the seeds of a mint's metadata account, without bump.
func CollectionMetadataSeeds(mint interfaces.Pubkey) [][]byte {
	return [][]byte{[]byte(MetadataSeed), MetadataProgramID.Bytes(), mint.Bytes()}
}

// CollectionMetadata derives the metadata account of a collection mint.
func CollectionMetadata(mint interfaces.Pubkey) (interfaces.Pubkey, uint8) {
	return MustFind(CollectionMetadataSeeds(mint), MetadataProgramID)
}

// MasterEditionSeeds are the seeds of a mint's master edition account, without bump.
func MasterEditionSeeds(mint interfaces.Pubkey) [][]byte {
	return [][]byte{[]byte(MetadataSeed), MetadataProgramID.Bytes(), mint.Bytes(), []byte(EditionSeed)}
}

// MasterEdition derives the master edition account of a collection mint.
func MasterEdition(mint interfaces.Pubkey) (interfaces.Pubkey, uint8) {
	return MustFind(MasterEditionSeeds(mint), MetadataProgramID)
}
