package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/compressed-tree-registry/api"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/registry"
	"github.com/ruteri/compressed-tree-registry/storage"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) error {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf(format, args...)}
}

// statusCode maps registry, storage and request errors to HTTP status codes.
func statusCode(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrDelegatedProtocol), errors.Is(err, registry.ErrTransactionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrNotFound),
		errors.Is(err, interfaces.ErrEventNotFound),
		errors.Is(err, interfaces.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrAlreadyInitialized), errors.Is(err, interfaces.ErrRegistryFull):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrUnauthorizedAuthority), errors.Is(err, interfaces.ErrCollectionAuthorityMismatch):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrInvalidTreeParameters), errors.Is(err, interfaces.ErrInvalidMetadata):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Handler serves the registry API on top of a registry client and an optional
// off-chain metadata store.
type Handler struct {
	registry interfaces.Registry
	metadata *storage.MetadataStore
	log      *slog.Logger
}

// NewHandler creates a handler. A nil metadata store disables the /api/metadata routes.
func NewHandler(registry interfaces.Registry, metadata *storage.MetadataStore, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		metadata: metadata,
		log:      log,
	}
}

// Status reports the registry the handler serves. An uninitialized registry is not an
// error; a registry that cannot be read is.
func (h *Handler) Status(ctx context.Context) (*api.StatusResponse, error) {
	status := &api.StatusResponse{
		ProgramID: h.registry.ProgramID(),
		Payer:     h.registry.Payer(),
		Metadata:  h.metadata != nil,
	}

	state, err := h.registry.State(ctx)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		status.Initialized = true
		status.TreeCount = state.TreeCount
		status.Capacity = state.Capacity
	}
	return status, nil
}

// RegisterRoutes mounts every API route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/registry", h.HandleGetState)
	r.Post("/api/registry/initialize", h.HandleInitialize)
	r.Delete("/api/registry", h.HandleCloseStateAccount)

	r.Post("/api/trees", h.HandleCreateTree)
	r.Get("/api/trees/{tree}", h.HandleGetTree)
	r.Post("/api/trees/{tree}/mint", h.HandleMint)
	r.Post("/api/trees/{tree}/mint_to_collection", h.HandleMintToCollection)

	r.Post("/api/collections", h.HandleCreateCollection)
	r.Get("/api/collections/{mint}", h.HandleGetCollection)

	r.Get("/api/transactions/{signature}", h.HandleGetTransaction)
	r.Get("/api/transactions/{signature}/leaf", h.HandleRecoverLeaf)

	r.Post("/api/metadata", h.HandleUploadMetadata)
	r.Get("/api/metadata/{type}/{file}", h.HandleGetMetadata)
}

func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.registry.State(r.Context())
	h.respond(w, r, state, err)
}

func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.registry.Initialize(r.Context())
	if err == nil {
		h.log.Info("Registry initialized", "creator", h.registry.Payer(), "signature", receipt.Signature)
	}
	h.respond(w, r, &api.ReceiptResponse{Receipt: receipt}, err)
}

// HandleCloseStateAccount closes the registry state. Only the creator may do so, which the
// program enforces against the payer signing for this server.
func (h *Handler) HandleCloseStateAccount(w http.ResponseWriter, r *http.Request) {
	var req api.CloseRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.respond(w, r, nil, err)
			return
		}
	}

	receiver := h.registry.Payer()
	if req.Receiver != nil {
		receiver = *req.Receiver
	}

	receipt, err := h.registry.CloseStateAccount(r.Context(), receiver)
	h.respond(w, r, &api.ReceiptResponse{Receipt: receipt}, err)
}

func (h *Handler) HandleCreateTree(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTreeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}

	info, receipt, err := h.registry.CreateTree(r.Context(), req.Label, req.Params())
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}

	h.respond(w, r, &api.CreateTreeResponse{
		Tree:          *info,
		TreeAuthority: h.registry.TreeAuthority(info.Address),
		Receipt:       receipt,
	}, nil)
}

func (h *Handler) HandleGetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := pubkeyParam(r, "tree")
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	account, err := h.registry.Tree(r.Context(), tree)
	h.respond(w, r, account, err)
}

func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	var body api.MintRequest
	req, err := h.decodeMint(w, r, &body)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}

	result, err := h.registry.Mint(r.Context(), req)
	h.logMint(req, result, err)
	h.respond(w, r, result, err)
}

func (h *Handler) HandleMintToCollection(w http.ResponseWriter, r *http.Request) {
	var body api.MintRequest
	req, err := h.decodeMint(w, r, &body)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	if body.CollectionMint == nil {
		h.respond(w, r, nil, badRequest("collection_mint is required"))
		return
	}

	result, err := h.registry.MintToCollection(r.Context(), req, *body.CollectionMint)
	h.logMint(req, result, err)
	h.respond(w, r, result, err)
}

func (h *Handler) decodeMint(w http.ResponseWriter, r *http.Request, body *api.MintRequest) (*interfaces.MintRequest, error) {
	tree, err := pubkeyParam(r, "tree")
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(w, r, body); err != nil {
		return nil, err
	}
	if body.LeafOwner.IsZero() {
		return nil, badRequest("leaf_owner is required")
	}
	if body.Metadata.Creators == nil {
		body.Metadata.Creators = []interfaces.Creator{}
	}

	return &interfaces.MintRequest{
		Tree:         tree,
		LeafOwner:    body.LeafOwner,
		LeafDelegate: body.LeafDelegate,
		Metadata:     body.Metadata,
	}, nil
}

func (h *Handler) logMint(req *interfaces.MintRequest, result *interfaces.MintResult, err error) {
	if err != nil {
		h.log.Warn("Mint failed", "tree", req.Tree, "owner", req.LeafOwner, "err", err)
		return
	}
	h.log.Info("Leaf minted",
		"tree", req.Tree,
		"index", result.Event.Index,
		"seq", result.Event.Seq,
		"asset_id", result.AssetID,
		"signature", result.Receipt.Signature)
}

func (h *Handler) HandleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCollectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	if req.Tree.IsZero() {
		h.respond(w, r, nil, badRequest("tree is required"))
		return
	}

	collection, receipt, err := h.registry.CreateCollection(r.Context(), req.Label, interfaces.CollectionArgs{
		Name:            req.Name,
		Symbol:          req.Symbol,
		URI:             req.URI,
		UpdateAuthority: h.registry.TreeAuthority(req.Tree),
		Sized:           req.Sized,
	})
	h.respond(w, r, &api.CollectionResponse{Collection: collection, Receipt: receipt}, err)
}

func (h *Handler) HandleGetCollection(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	collection, err := h.registry.Collection(r.Context(), mint)
	h.respond(w, r, collection, err)
}

func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.registry.Receipt(r.Context(), chi.URLParam(r, "signature"))
	h.respond(w, r, receipt, err)
}

// HandleRecoverLeaf decodes the leaf a committed mint appended to the tree named by the
// tree query parameter.
func (h *Handler) HandleRecoverLeaf(w http.ResponseWriter, r *http.Request) {
	treeParam := r.URL.Query().Get("tree")
	if treeParam == "" {
		h.respond(w, r, nil, badRequest("tree query parameter is required"))
		return
	}
	tree, err := interfaces.NewPubkeyFromBase58(treeParam)
	if err != nil {
		h.respond(w, r, nil, badRequest("invalid tree: %v", err))
		return
	}

	result, err := h.registry.RecoverLeaf(r.Context(), chi.URLParam(r, "signature"), tree)
	h.respond(w, r, result, err)
}

// HandleUploadMetadata publishes an off-chain JSON document.
// The type query parameter selects leaf (default) or collection.
func (h *Handler) HandleUploadMetadata(w http.ResponseWriter, r *http.Request) {
	if h.metadata == nil {
		h.respond(w, r, nil, &RequestError{StatusCode: http.StatusNotFound, Err: errors.New("metadata storage is not configured")})
		return
	}

	contentType := interfaces.LeafMetadataType
	if t := r.URL.Query().Get("type"); t != "" {
		var err error
		if contentType, err = interfaces.ParseContentType(t); err != nil {
			h.respond(w, r, nil, badRequest("%v", err))
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.respond(w, r, nil, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: err})
		return
	}

	doc, err := h.metadata.Put(r.Context(), contentType, body)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	h.respond(w, r, &api.MetadataResponse{ID: doc.ID.String(), URI: doc.URI}, nil)
}

func (h *Handler) HandleGetMetadata(w http.ResponseWriter, r *http.Request) {
	if h.metadata == nil {
		h.respond(w, r, nil, &RequestError{StatusCode: http.StatusNotFound, Err: errors.New("metadata storage is not configured")})
		return
	}

	contentType, err := interfaces.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		h.respond(w, r, nil, &RequestError{StatusCode: http.StatusNotFound, Err: err})
		return
	}
	id, err := interfaces.NewContentIDFromHex(strings.TrimSuffix(chi.URLParam(r, "file"), ".json"))
	if err != nil {
		h.respond(w, r, nil, badRequest("%v", err))
		return
	}

	data, err := h.metadata.Get(r.Context(), contentType, id)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// respond writes result as JSON, or the error with the status statusCode picks.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, result any, err error) {
	if err != nil {
		status := statusCode(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		} else {
			h.log.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
		}
		writeJSON(w, status, &api.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func pubkeyParam(r *http.Request, name string) (interfaces.Pubkey, error) {
	key, err := interfaces.NewPubkeyFromBase58(chi.URLParam(r, name))
	if err != nil {
		return interfaces.Pubkey{}, badRequest("invalid %s: %v", name, err)
	}
	return key, nil
}
