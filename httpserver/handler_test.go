package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/compressed-tree-registry/api"
	"github.com/ruteri/compressed-tree-registry/compression"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/kms"
	"github.com/ruteri/compressed-tree-registry/pda"
	"github.com/ruteri/compressed-tree-registry/program"
	"github.com/ruteri/compressed-tree-registry/registry"
	"github.com/ruteri/compressed-tree-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(h *Handler) http.Handler {
	mux := chi.NewRouter()
	h.RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{interfaces.ErrNotFound, http.StatusNotFound},
		{interfaces.ErrTreeNotFound, http.StatusNotFound},
		{fmt.Errorf("tx: %w", interfaces.ErrEventNotFound), http.StatusNotFound},
		{interfaces.ErrContentNotFound, http.StatusNotFound},
		{interfaces.ErrAlreadyInitialized, http.StatusConflict},
		{interfaces.ErrRegistryFull, http.StatusConflict},
		{interfaces.ErrUnauthorizedAuthority, http.StatusForbidden},
		{interfaces.ErrCollectionAuthorityMismatch, http.StatusForbidden},
		{interfaces.ErrInvalidTreeParameters, http.StatusBadRequest},
		{interfaces.ErrInvalidMetadata, http.StatusBadRequest},
		{interfaces.NewDelegatedProtocolError(pda.BubblegumProgramID, compression.ErrMetadataNameTooLong), http.StatusUnprocessableEntity},
		{interfaces.NewDelegatedProtocolError(pda.BubblegumProgramID, interfaces.ErrNotFound), http.StatusUnprocessableEntity},
		{registry.ErrTransactionFailed, http.StatusUnprocessableEntity},
		{interfaces.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{&RequestError{StatusCode: http.StatusTeapot, Err: interfaces.ErrNotFound}, http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusCode(tt.err))
		})
	}
}

func TestHandleGetState(t *testing.T) {
	mockRegistry := new(registry.MockRegistry)
	router := newRouter(NewHandler(mockRegistry, nil, testLogger()))

	state := &interfaces.RegistryState{
		Creator:   kms.MustKeypair().PublicKey(),
		TreeCount: 1,
		Capacity:  20,
		Trees:     []interfaces.TreeInfo{{Address: kms.MustKeypair().PublicKey(), MaxDepth: 14, MaxBufferSize: 64}},
	}
	mockRegistry.On("State", mock.Anything).Return(state, nil).Once()
	mockRegistry.On("State", mock.Anything).Return(nil, fmt.Errorf("registry state: %w", interfaces.ErrNotFound)).Once()

	w := do(t, router, http.MethodGet, "/api/registry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, *state, decode[interfaces.RegistryState](t, w))

	w = do(t, router, http.MethodGet, "/api/registry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, w).Error, "not found")

	mockRegistry.AssertExpectations(t)
}

func TestHandleInitialize(t *testing.T) {
	mockRegistry := new(registry.MockRegistry)
	router := newRouter(NewHandler(mockRegistry, nil, testLogger()))

	payer := kms.MustKeypair().PublicKey()
	mockRegistry.On("Payer").Return(payer)
	mockRegistry.On("Initialize", mock.Anything).Return(&interfaces.Receipt{Signature: "sig", Instruction: program.InitializeIx}, nil).Once()
	mockRegistry.On("Initialize", mock.Anything).Return(nil, interfaces.ErrAlreadyInitialized).Once()

	w := do(t, router, http.MethodPost, "/api/registry/initialize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sig", decode[api.ReceiptResponse](t, w).Receipt.Signature)

	w = do(t, router, http.MethodPost, "/api/registry/initialize", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleCloseStateAccount(t *testing.T) {
	mockRegistry := new(registry.MockRegistry)
	router := newRouter(NewHandler(mockRegistry, nil, testLogger()))

	payer := kms.MustKeypair().PublicKey()
	receiver := kms.MustKeypair().PublicKey()
	mockRegistry.On("Payer").Return(payer)
	mockRegistry.On("CloseStateAccount", mock.Anything, payer).Return(&interfaces.Receipt{Signature: "a"}, nil)
	mockRegistry.On("CloseStateAccount", mock.Anything, receiver).Return(nil, interfaces.ErrUnauthorizedAuthority)

	w := do(t, router, http.MethodDelete, "/api/registry", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodDelete, "/api/registry", &api.CloseRequest{Receiver: &receiver})
	assert.Equal(t, http.StatusForbidden, w.Code)

	mockRegistry.AssertExpectations(t)
}

func TestHandleCreateTree(t *testing.T) {
	mockRegistry := new(registry.MockRegistry)
	router := newRouter(NewHandler(mockRegistry, nil, testLogger()))

	tree := kms.MustKeypair().PublicKey()
	authority := kms.MustKeypair().PublicKey()
	params := interfaces.TreeParams{MaxDepth: 14, MaxBufferSize: 64}
	info := &interfaces.TreeInfo{Address: tree, MaxDepth: 14, MaxBufferSize: 64}

	mockRegistry.On("CreateTree", mock.Anything, "main", params).Return(info, &interfaces.Receipt{Signature: "sig"}, nil)
	mockRegistry.On("TreeAuthority", tree).Return(authority)
	mockRegistry.On("CreateTree", mock.Anything, "", interfaces.TreeParams{MaxDepth: 3, MaxBufferSize: 8}).
		Return(nil, nil, interfaces.NewDelegatedProtocolError(pda.CompressionProgramID, interfaces.ErrInvalidTreeParameters))
	mockRegistry.On("CreateTree", mock.Anything, "full", params).Return(nil, nil, interfaces.ErrRegistryFull)

	w := do(t, router, http.MethodPost, "/api/trees", &api.CreateTreeRequest{Label: "main", MaxDepth: 14, MaxBufferSize: 64})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.CreateTreeResponse](t, w)
	assert.Equal(t, *info, resp.Tree)
	assert.Equal(t, authority, resp.TreeAuthority)
	assert.Equal(t, "sig", resp.Receipt.Signature)

	w = do(t, router, http.MethodPost, "/api/trees", &api.CreateTreeRequest{MaxDepth: 3, MaxBufferSize: 8})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/api/trees", &api.CreateTreeRequest{Label: "full", MaxDepth: 14, MaxBufferSize: 64})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/api/trees", []byte(`{"max_depth":14,"depth":3}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mockRegistry.AssertExpectations(t)
}

func TestHandleMint(t *testing.T) {
	mockRegistry := new(registry.MockRegistry)
	router := newRouter(NewHandler(mockRegistry, nil, testLogger()))

	tree := kms.MustKeypair().PublicKey()
	owner := kms.MustKeypair().PublicKey()
	metadata := interfaces.MetadataArgs{Name: "Leaf", Symbol: "CTR", URI: "https://example.com/leaf.json", Creators: []interfaces.Creator{}}

	expected := &interfaces.MintRequest{Tree: tree, LeafOwner: owner, Metadata: metadata}
	result := &interfaces.MintResult{
		Receipt: &interfaces.Receipt{Signature: "sig"},
		Event:   interfaces.LeafAppendEvent{TreeID: tree, Seq: 4, Index: 3},
		AssetID: kms.MustKeypair().PublicKey(),
	}
	mockRegistry.On("Mint", mock.Anything, expected).Return(result, nil)

	w := do(t, router, http.MethodPost, "/api/trees/"+tree.String()+"/mint", &api.MintRequest{
		LeafOwner: owner,
		Metadata:  interfaces.MetadataArgs{Name: "Leaf", Symbol: "CTR", URI: "https://example.com/leaf.json"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[interfaces.MintResult](t, w)
	assert.Equal(t, uint32(3), got.Event.Index)
	assert.Equal(t, result.AssetID, got.AssetID)

	w = do(t, router, http.MethodPost, "/api/trees/not-a-key/mint", &api.MintRequest{LeafOwner: owner})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/trees/"+tree.String()+"/mint", &api.MintRequest{Metadata: metadata})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mockRegistry.AssertExpectations(t)
}

func TestHandleMintToCollection(t *testing.T) {
	mockRegistry := new(registry.MockRegistry)
	router := newRouter(NewHandler(mockRegistry, nil, testLogger()))

	tree := kms.MustKeypair().PublicKey()
	owner := kms.MustKeypair().PublicKey()
	collection := kms.MustKeypair().PublicKey()
	metadata := interfaces.MetadataArgs{Name: "Leaf", Creators: []interfaces.Creator{}}

	mockRegistry.On("MintToCollection", mock.Anything, &interfaces.MintRequest{Tree: tree, LeafOwner: owner, Metadata: metadata}, collection).
		Return(nil, interfaces.ErrCollectionAuthorityMismatch)

	path := "/api/trees/" + tree.String() + "/mint_to_collection"
	w := do(t, router, http.MethodPost, path, &api.MintRequest{LeafOwner: owner, Metadata: metadata, CollectionMint: &collection})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, http.MethodPost, path, &api.MintRequest{LeafOwner: owner, Metadata: metadata})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mockRegistry.AssertExpectations(t)
}

func TestHandleCreateCollection(t *testing.T) {
	mockRegistry := new(registry.MockRegistry)
	router := newRouter(NewHandler(mockRegistry, nil, testLogger()))

	tree := kms.MustKeypair().PublicKey()
	authority := kms.MustKeypair().PublicKey()
	info := &interfaces.CollectionInfo{Mint: kms.MustKeypair().PublicKey(), UpdateAuthority: authority, Name: "Drop"}

	mockRegistry.On("TreeAuthority", tree).Return(authority)
	mockRegistry.On("CreateCollection", mock.Anything, "drop", interfaces.CollectionArgs{
		Name:            "Drop",
		Symbol:          "DRP",
		UpdateAuthority: authority,
		Sized:           true,
	}).Return(info, &interfaces.Receipt{Signature: "sig"}, nil)

	w := do(t, router, http.MethodPost, "/api/collections", &api.CreateCollectionRequest{Label: "drop", Tree: tree, Name: "Drop", Symbol: "DRP", Sized: true})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.CollectionResponse](t, w)
	assert.Equal(t, info, resp.Collection)

	w = do(t, router, http.MethodPost, "/api/collections", &api.CreateCollectionRequest{Name: "Drop"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mockRegistry.AssertExpectations(t)
}

func TestHandleRecoverLeaf(t *testing.T) {
	mockRegistry := new(registry.MockRegistry)
	router := newRouter(NewHandler(mockRegistry, nil, testLogger()))

	tree := kms.MustKeypair().PublicKey()
	other := kms.MustKeypair().PublicKey()
	result := &interfaces.MintResult{Receipt: &interfaces.Receipt{Signature: "sig"}, Event: interfaces.LeafAppendEvent{TreeID: tree, Seq: 1}}

	mockRegistry.On("RecoverLeaf", mock.Anything, "sig", tree).Return(result, nil)
	mockRegistry.On("RecoverLeaf", mock.Anything, "sig", other).Return(nil, fmt.Errorf("transaction sig: %w", interfaces.ErrEventNotFound))
	mockRegistry.On("RecoverLeaf", mock.Anything, "failed", tree).Return(nil, fmt.Errorf("%w: program failed", registry.ErrTransactionFailed))
	mockRegistry.On("Receipt", mock.Anything, "unknown").Return(nil, interfaces.ErrNotFound)

	w := do(t, router, http.MethodGet, "/api/transactions/sig/leaf?tree="+tree.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tree, decode[interfaces.MintResult](t, w).Event.TreeID)

	w = do(t, router, http.MethodGet, "/api/transactions/sig/leaf?tree="+other.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/api/transactions/failed/leaf?tree="+tree.String(), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodGet, "/api/transactions/sig/leaf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/transactions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	mockRegistry.AssertExpectations(t)
}

func TestHandleMetadata(t *testing.T) {
	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	store, err := storage.NewMetadataStore(backend, "https://registry.example.com/api/metadata", testLogger())
	require.NoError(t, err)
	router := newRouter(NewHandler(new(registry.MockRegistry), store, testLogger()))

	w := do(t, router, http.MethodPost, "/api/metadata?type=collection", []byte(`{"name": "Drop", "image": "https://example.com/drop.png"}`))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.MetadataResponse](t, w)
	assert.Equal(t, "https://registry.example.com/api/metadata/collection/"+resp.ID+".json", resp.URI)

	w = do(t, router, http.MethodGet, "/api/metadata/collection/"+resp.ID+".json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"Drop","image":"https://example.com/drop.png"}`, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/metadata/leaf/"+resp.ID+".json", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/api/metadata", []byte(`{"symbol":"CTR"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/metadata?type=edition", []byte(`{"name":"Leaf"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/metadata", bytes.Repeat([]byte(" "), maxBodySize+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	disabled := newRouter(NewHandler(new(registry.MockRegistry), nil, testLogger()))
	w = do(t, disabled, http.MethodPost, "/api/metadata", []byte(`{"name":"Leaf"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestHandler_LocalRegistry drives the API against a registry deployed on an in-memory ledger.
func TestHandler_LocalRegistry(t *testing.T) {
	ctx := context.Background()
	k, err := kms.NewSimpleKMS(bytes.Repeat([]byte{0x07}, 32))
	require.NoError(t, err)
	client, l, err := registry.NewLocal(ctx, k, registry.LocalOptions{
		Program: program.Options{Capacity: 2},
		Airdrop: 100_000_000_000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	router := newRouter(NewHandler(client, nil, testLogger()))

	w := do(t, router, http.MethodPost, "/api/registry/initialize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/trees", &api.CreateTreeRequest{Label: "main", MaxDepth: 3, MaxBufferSize: 8})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[api.CreateTreeResponse](t, w)

	owner := kms.MustKeypair().PublicKey()
	for i := 0; i < 2; i++ {
		w = do(t, router, http.MethodPost, "/api/trees/"+created.Tree.Address.String()+"/mint", &api.MintRequest{
			LeafOwner: owner,
			Metadata:  interfaces.MetadataArgs{Name: "Leaf", Symbol: "CTR", URI: "https://example.com/leaf.json"},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		minted := decode[interfaces.MintResult](t, w)
		assert.Equal(t, uint32(i), minted.Event.Index)

		w = do(t, router, http.MethodGet, "/api/transactions/"+minted.Receipt.Signature+"/leaf?tree="+created.Tree.Address.String(), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, minted.Event, decode[interfaces.MintResult](t, w).Event)
	}

	w = do(t, router, http.MethodGet, "/api/trees/"+created.Tree.Address.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode[interfaces.TreeAccount](t, w)
	assert.Equal(t, uint64(2), tree.NumLeaves)
	assert.Equal(t, created.TreeAuthority, tree.Authority)

	unknown := kms.MustKeypair().PublicKey()
	w = do(t, router, http.MethodPost, "/api/trees/"+unknown.String()+"/mint", &api.MintRequest{
		LeafOwner: owner,
		Metadata:  interfaces.MetadataArgs{Name: "Leaf"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/api/registry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint32(1), decode[interfaces.RegistryState](t, w).TreeCount)
}
