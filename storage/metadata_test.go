package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFileStore(t *testing.T) (*MetadataStore, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)
	store, err := NewMetadataStore(backend, "https://registry.example.com/api/metadata/", discardLogger())
	require.NoError(t, err)
	return store, dir
}

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{name: "minimal", doc: `{"name":"Leaf"}`},
		{name: "full", doc: `{"name":"Leaf","symbol":"CTR","image":"https://example.com/1.png","attributes":[{"trait_type":"level","value":3}],"properties":{"category":"image","files":[{"uri":"https://example.com/1.png","type":"image/png"}]}}`},
		{name: "unknown fields", doc: `{"name":"Leaf","animation_url":"https://example.com/1.mp4"}`},
		{name: "missing name", doc: `{"symbol":"CTR"}`, wantErr: true},
		{name: "not an object", doc: `["Leaf"]`, wantErr: true},
		{name: "not json", doc: `name: Leaf`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, compact, err := ParseMetadata([]byte(tt.doc))
			if tt.wantErr {
				require.ErrorIs(t, err, interfaces.ErrInvalidMetadata)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Leaf", parsed.Name)
			assert.JSONEq(t, tt.doc, string(compact))
		})
	}
}

func TestMetadataStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store, dir := newFileStore(t)

	doc, err := store.Put(ctx, interfaces.LeafMetadataType, []byte("{\n  \"name\": \"Leaf\",\n  \"symbol\": \"CTR\"\n}"))
	require.NoError(t, err)

	compact := []byte(`{"name":"Leaf","symbol":"CTR"}`)
	assert.Equal(t, interfaces.ComputeID(compact), doc.ID)
	assert.Equal(t, "https://registry.example.com/api/metadata/leaf/"+doc.ID.String()+".json", doc.URI)

	_, err = os.Stat(filepath.Join(dir, "leaf", doc.ID.String()+".json"))
	require.NoError(t, err)

	again, err := store.Put(ctx, interfaces.LeafMetadataType, compact)
	require.NoError(t, err)
	assert.Equal(t, doc, again)

	data, err := store.Get(ctx, interfaces.LeafMetadataType, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, compact, data)

	_, err = store.Get(ctx, interfaces.CollectionMetadataType, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestMetadataStore_Tampered(t *testing.T) {
	ctx := context.Background()
	store, dir := newFileStore(t)

	doc, err := store.Put(ctx, interfaces.CollectionMetadataType, []byte(`{"name":"Drop"}`))
	require.NoError(t, err)

	path := filepath.Join(dir, "collection", doc.ID.String()+".json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"Other"}`), 0644))

	_, err = store.Get(ctx, interfaces.CollectionMetadataType, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestNewMetadataStore_BaseURLTooLong(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)

	_, err = NewMetadataStore(backend, "https://registry.example.com/"+strings.Repeat("a", 120), discardLogger())
	assert.Error(t, err)
}

func TestStorageBackendFactory(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger())
	dir := t.TempDir()

	backend, err := factory.StorageBackendFor(interfaces.StorageBackendLocation("file://" + dir))
	require.NoError(t, err)
	assert.Equal(t, "file://"+dir, backend.LocationURI())
	assert.True(t, backend.Available(context.Background()))

	_, err = factory.StorageBackendFor("vault://vault.example.com:8200")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI, "vault requires a mount path")

	vault, err := factory.StorageBackendFor("vault://s.token@vault.example.com:8200/secret/registry")
	require.NoError(t, err)
	assert.Equal(t, "vault://vault.example.com:8200/secret/registry", vault.LocationURI())

	_, err = factory.StorageBackendFor("ipfs://localhost:5001/metadata?timeout=never")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	multi, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
		"github://owner/repo",
		interfaces.StorageBackendLocation("file://" + dir),
	})
	require.NoError(t, err)
	assert.Equal(t, "multi:[file://"+dir+"]", multi.LocationURI())

	_, err = factory.CreateMultiBackend([]interfaces.StorageBackendLocation{"github://owner/repo"})
	assert.Error(t, err)
}
