package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/compressed-tree-registry/compression"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// OffChainMetadata is the JSON document a leaf or collection URI resolves to.
// Unknown fields are kept as uploaded.
type OffChainMetadata struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol,omitempty"`
	Description string      `json:"description,omitempty"`
	Image       string      `json:"image,omitempty"`
	ExternalURL string      `json:"external_url,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty"`
	Properties  *Properties `json:"properties,omitempty"`
}

type Attribute struct {
	TraitType string          `json:"trait_type"`
	Value     json.RawMessage `json:"value"`
}

type Properties struct {
	Category string `json:"category,omitempty"`
	Files    []File `json:"files,omitempty"`
}

type File struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

// Document is a stored off-chain document and the URI it is published under.
type Document struct {
	ID          interfaces.ContentID
	ContentType interfaces.ContentType
	URI         string
}

// MetadataStore publishes off-chain metadata on a storage backend under
// <baseURL>/<content type>/<content id>.json
type MetadataStore struct {
	backend interfaces.StorageBackend
	baseURL string
	log     *slog.Logger
}

// NewMetadataStore fails if the URIs it would publish do not fit in a leaf.
func NewMetadataStore(backend interfaces.StorageBackend, baseURL string, log *slog.Logger) (*MetadataStore, error) {
	s := &MetadataStore{
		backend: backend,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     log,
	}
	longest := s.uri(interfaces.CollectionMetadataType, interfaces.ContentID{})
	if len(longest) > compression.MaxURILength {
		return nil, fmt.Errorf("base URL %q: published URIs are %d bytes, at most %d fit in a leaf",
			baseURL, len(longest), compression.MaxURILength)
	}
	return s, nil
}

// ParseMetadata checks that doc is a JSON object with a non-empty name and returns
// its compact encoding, which is what gets hashed and stored.
func ParseMetadata(doc []byte) (*OffChainMetadata, []byte, error) {
	var parsed OffChainMetadata
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidMetadata, err)
	}
	if parsed.Name == "" {
		return nil, nil, fmt.Errorf("%w: missing name", interfaces.ErrInvalidMetadata)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidMetadata, err)
	}
	return &parsed, compact.Bytes(), nil
}

// Put validates and stores doc. Documents differing only in whitespace share an ID.
func (s *MetadataStore) Put(ctx context.Context, contentType interfaces.ContentType, doc []byte) (*Document, error) {
	_, compact, err := ParseMetadata(doc)
	if err != nil {
		return nil, err
	}

	id, err := s.backend.Store(ctx, compact, contentType)
	if err != nil {
		return nil, fmt.Errorf("storing %s metadata: %w", contentType, err)
	}

	s.log.Info("Stored off-chain metadata",
		slog.String("content_type", contentType.String()),
		slog.String("content_id", id.String()),
		slog.String("backend", s.backend.Name()))

	return &Document{ID: id, ContentType: contentType, URI: s.uri(contentType, id)}, nil
}

// Get fetches a stored document and checks it against its ID.
func (s *MetadataStore) Get(ctx context.Context, contentType interfaces.ContentType, id interfaces.ContentID) ([]byte, error) {
	data, err := s.backend.Fetch(ctx, id, contentType)
	if err != nil {
		return nil, err
	}
	if interfaces.ComputeID(data) != id {
		s.log.Warn("Stored metadata does not match its content ID",
			slog.String("content_id", id.String()),
			slog.String("backend", s.backend.Name()))
		return nil, fmt.Errorf("%w: content hash mismatch for %s", interfaces.ErrContentNotFound, id)
	}
	return data, nil
}

func (s *MetadataStore) uri(contentType interfaces.ContentType, id interfaces.ContentID) string {
	return fmt.Sprintf("%s/%s/%s.json", s.baseURL, contentType, id)
}
