// Package clients provides the HTTP client of the registry API.
//
// RegistryClient mirrors the server routes one method per route and decodes
// api.ErrorResponse bodies into *APIError:
//
//	c := &clients.RegistryClient{ServerAddr: "http://127.0.0.1:8080"}
//	created, err := c.CreateTree(ctx, &api.CreateTreeRequest{MaxDepth: 14, MaxBufferSize: 64})
//	doc, err := c.UploadMetadata(ctx, interfaces.LeafMetadataType, body)
//	result, err := c.Mint(ctx, created.Tree.Address, &api.MintRequest{
//	    LeafOwner: owner,
//	    Metadata:  interfaces.MetadataArgs{Name: "Leaf", URI: doc.URI},
//	})
package clients
