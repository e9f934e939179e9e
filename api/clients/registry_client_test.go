package clients

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/compressed-tree-registry/api"
	"github.com/ruteri/compressed-tree-registry/httpserver"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/kms"
	"github.com/ruteri/compressed-tree-registry/program"
	"github.com/ruteri/compressed-tree-registry/registry"
	"github.com/ruteri/compressed-tree-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) *RegistryClient {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	k, err := kms.NewSimpleKMS(bytes.Repeat([]byte{0x11}, 32))
	require.NoError(t, err)
	local, l, err := registry.NewLocal(ctx, k, registry.LocalOptions{
		Program: program.Options{Capacity: 2},
		Airdrop: 100_000_000_000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	backend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)

	mux := chi.NewRouter()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := storage.NewMetadataStore(backend, srv.URL+"/api/metadata", logger)
	require.NoError(t, err)
	httpserver.NewHandler(local, store, logger).RegisterRoutes(mux)

	return &RegistryClient{ServerAddr: srv.URL}
}

func TestRegistryClient(t *testing.T) {
	ctx := context.Background()
	c := setupServer(t)

	_, err := c.State(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	receipt, err := c.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, program.InitializeIx, receipt.Instruction)

	created, err := c.CreateTree(ctx, &api.CreateTreeRequest{Label: "main", MaxDepth: 5, MaxBufferSize: 8})
	require.NoError(t, err)

	doc, err := c.UploadMetadata(ctx, interfaces.LeafMetadataType, []byte(`{"name":"Leaf #0","symbol":"CTR"}`))
	require.NoError(t, err)

	owner := kms.MustKeypair().PublicKey()
	result, err := c.Mint(ctx, created.Tree.Address, &api.MintRequest{
		LeafOwner: owner,
		Metadata:  interfaces.MetadataArgs{Name: "Leaf #0", Symbol: "CTR", URI: doc.URI},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), result.Event.Index)

	recovered, err := c.RecoverLeaf(ctx, result.Receipt.Signature, created.Tree.Address)
	require.NoError(t, err)
	assert.Equal(t, result.Event, recovered.Event)

	tx, err := c.Transaction(ctx, result.Receipt.Signature)
	require.NoError(t, err)
	assert.True(t, tx.Succeeded())

	collection, err := c.CreateCollection(ctx, &api.CreateCollectionRequest{
		Label: "drop",
		Tree:  created.Tree.Address,
		Name:  "Drop",
		Sized: true,
	})
	require.NoError(t, err)
	assert.Equal(t, created.TreeAuthority, collection.Collection.UpdateAuthority)

	mint := collection.Collection.Mint
	result, err = c.Mint(ctx, created.Tree.Address, &api.MintRequest{
		LeafOwner:      owner,
		Metadata:       interfaces.MetadataArgs{Name: "Leaf #1", URI: doc.URI},
		CollectionMint: &mint,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), result.Event.Index)

	info, err := c.Collection(ctx, mint)
	require.NoError(t, err)
	require.NotNil(t, info.Size)
	assert.Equal(t, uint64(1), *info.Size)

	tree, err := c.Tree(ctx, created.Tree.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tree.NumLeaves)

	_, err = c.CloseStateAccount(ctx, nil)
	require.NoError(t, err)

	_, err = c.State(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
