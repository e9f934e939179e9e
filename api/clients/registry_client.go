package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ruteri/compressed-tree-registry/api"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// APIError is a non-2xx response of the registry server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry server returned error %d: %s", e.StatusCode, e.Message)
}

// RegistryClient talks to the registry HTTP API.
type RegistryClient struct {
	// ServerAddr is the base URL of the registry server
	ServerAddr string

	// HTTPClient defaults to http.DefaultClient
	HTTPClient *http.Client
}

func (c *RegistryClient) State(ctx context.Context) (*interfaces.RegistryState, error) {
	var state interfaces.RegistryState
	return &state, c.do(ctx, http.MethodGet, "/api/registry", nil, &state)
}

func (c *RegistryClient) Initialize(ctx context.Context) (*interfaces.Receipt, error) {
	var resp api.ReceiptResponse
	if err := c.do(ctx, http.MethodPost, "/api/registry/initialize", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Receipt, nil
}

func (c *RegistryClient) CloseStateAccount(ctx context.Context, receiver *interfaces.Pubkey) (*interfaces.Receipt, error) {
	var resp api.ReceiptResponse
	if err := c.do(ctx, http.MethodDelete, "/api/registry", &api.CloseRequest{Receiver: receiver}, &resp); err != nil {
		return nil, err
	}
	return resp.Receipt, nil
}

func (c *RegistryClient) CreateTree(ctx context.Context, req *api.CreateTreeRequest) (*api.CreateTreeResponse, error) {
	var resp api.CreateTreeResponse
	return &resp, c.do(ctx, http.MethodPost, "/api/trees", req, &resp)
}

func (c *RegistryClient) Tree(ctx context.Context, tree interfaces.Pubkey) (*interfaces.TreeAccount, error) {
	var account interfaces.TreeAccount
	return &account, c.do(ctx, http.MethodGet, "/api/trees/"+tree.String(), nil, &account)
}

// Mint appends a leaf. A non-nil req.CollectionMint mints into that collection.
func (c *RegistryClient) Mint(ctx context.Context, tree interfaces.Pubkey, req *api.MintRequest) (*interfaces.MintResult, error) {
	path := "/api/trees/" + tree.String() + "/mint"
	if req.CollectionMint != nil {
		path += "_to_collection"
	}
	var result interfaces.MintResult
	return &result, c.do(ctx, http.MethodPost, path, req, &result)
}

func (c *RegistryClient) CreateCollection(ctx context.Context, req *api.CreateCollectionRequest) (*api.CollectionResponse, error) {
	var resp api.CollectionResponse
	return &resp, c.do(ctx, http.MethodPost, "/api/collections", req, &resp)
}

func (c *RegistryClient) Collection(ctx context.Context, mint interfaces.Pubkey) (*interfaces.CollectionInfo, error) {
	var info interfaces.CollectionInfo
	return &info, c.do(ctx, http.MethodGet, "/api/collections/"+mint.String(), nil, &info)
}

func (c *RegistryClient) Transaction(ctx context.Context, signature string) (*interfaces.Receipt, error) {
	var receipt interfaces.Receipt
	return &receipt, c.do(ctx, http.MethodGet, "/api/transactions/"+url.PathEscape(signature), nil, &receipt)
}

func (c *RegistryClient) RecoverLeaf(ctx context.Context, signature string, tree interfaces.Pubkey) (*interfaces.MintResult, error) {
	var result interfaces.MintResult
	path := "/api/transactions/" + url.PathEscape(signature) + "/leaf?tree=" + tree.String()
	return &result, c.do(ctx, http.MethodGet, path, nil, &result)
}

// UploadMetadata publishes an off-chain JSON document and returns the URI to put in a leaf.
func (c *RegistryClient) UploadMetadata(ctx context.Context, contentType interfaces.ContentType, doc []byte) (*api.MetadataResponse, error) {
	var resp api.MetadataResponse
	return &resp, c.do(ctx, http.MethodPost, "/api/metadata?type="+contentType.String(), json.RawMessage(doc), &resp)
}

func (c *RegistryClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.ServerAddr, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp api.ErrorResponse
		bodyBytes, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse response of %s %s: %w", method, path, err)
	}
	return nil
}
