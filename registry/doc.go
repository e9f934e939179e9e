// Package registry provides the client of the compressed tree registry program.
//
// Client implements interfaces.Registry. Every state-changing method builds one
// instruction, lists the accounts the compression and collection programs touch,
// signs the transaction with the payer identity derived by the KMS (plus the tree or
// collection mint keypair when a new account is allocated at it) and submits it to the
// ledger backend.
//
// # Leaf recovery
//
// A mint does not return the position of the new leaf directly. The compression program
// logs a changelog event through the log wrapper program, and the client scans the
// transaction's inner instructions for the first event of the target tree:
//
//	result, err := client.Mint(ctx, &interfaces.MintRequest{
//	    Tree:      tree,
//	    LeafOwner: owner,
//	    Metadata:  metadata,
//	})
//	// result.Event.Index is the zero-based leaf position,
//	// result.AssetID the derived asset identifier.
//
// The same recovery works after the fact from a stored receipt with RecoverLeaf.
//
// # Local deployments
//
// NewLocal opens a ledger (in memory unless a path is given), deploys the registry with
// the programs it calls and returns a client with a funded payer:
//
//	kms, _ := kms.NewSimpleKMS(masterKey)
//	client, l, err := registry.NewLocal(ctx, kms, registry.LocalOptions{Airdrop: 10_000_000_000})
//	if err != nil {
//	    return err
//	}
//	defer l.Close()
//
//	_, err = client.Initialize(ctx)
//	info, _, err := client.CreateTree(ctx, "main", interfaces.TreeParams{MaxDepth: 14, MaxBufferSize: 64})
//
// MockRegistry is a testify mock of interfaces.Registry for handler tests.
package registry
