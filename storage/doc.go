// Package storage publishes the off-chain JSON documents that leaf and collection URIs
// point at.
//
// Documents are content addressed: the ID of a document is the SHA-256 hash of its
// compact JSON encoding, and every backend keeps it under
// <content type>/<content id>.json (Vault: <mount>/data/<path>/<content type>/<content id>). MetadataStore validates uploads, stores them on a
// backend and returns the public URI to put in a leaf:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
//	    "file:///var/lib/registry/metadata",
//	    "s3://bucket-name/metadata/?region=us-west-2",
//	})
//	store, err := storage.NewMetadataStore(backend, "https://registry.example.com/api/metadata", logger)
//	doc, err := store.Put(ctx, interfaces.LeafMetadataType, body)
//	// doc.URI == "https://registry.example.com/api/metadata/leaf/<id>.json"
//
// Supported location schemes:
//
//   - file:///var/lib/registry/metadata
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=minio.local:9000
//   - ipfs://localhost:5001/metadata?timeout=30s (mutable file system of the node)
//   - vault://[TOKEN@]vault.example.com:8200/secret/registry (KV v2 mount, ?tls=false for plain http)
//
// MultiStorageBackend writes to every available backend and reads from the first one
// holding the document.
package storage
