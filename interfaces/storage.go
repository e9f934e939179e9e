package interfaces

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/sha256-simd"
)

// ContentID is the SHA-256 hash of a stored off-chain document.
type ContentID [32]byte

// NewContentIDFromHex parses a 64 character hex string, with or without 0x prefix.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var id ContentID
	copy(id[:], hashBytes)
	return id, nil
}

// ComputeID calculates content ID from data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// String returns hex representation.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// ContentType indicates storage namespace.
type ContentType int

const (
	// LeafMetadataType for the JSON document a leaf URI points at
	LeafMetadataType ContentType = iota
	// CollectionMetadataType for the JSON document of a collection
	CollectionMetadataType
)

// String returns type name, also used as the path segment of published URIs.
func (ct ContentType) String() string {
	switch ct {
	case LeafMetadataType:
		return "leaf"
	case CollectionMetadataType:
		return "collection"
	default:
		return "unknown"
	}
}

// ParseContentType is the inverse of ContentType.String.
func ParseContentType(s string) (ContentType, error) {
	switch s {
	case "leaf":
		return LeafMetadataType, nil
	case "collection":
		return CollectionMetadataType, nil
	default:
		return 0, fmt.Errorf("unknown content type %q", s)
	}
}

// StorageBackendLocation is a backend URI: [scheme]://[auth@]host[:port][/path][?params]
type StorageBackendLocation string

// Parse validates the location and returns its URL.
func (loc StorageBackendLocation) Parse() (*url.URL, error) {
	u, err := url.Parse(string(loc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "file", "s3", "ipfs", "vault":
	default:
		return nil, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, u.Scheme)
	}
	return u, nil
}

var (
	// ErrContentNotFound is returned when requested content cannot be found in the storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrInvalidMetadata is returned for off-chain documents that are not a JSON object with a name.
	ErrInvalidMetadata = errors.New("invalid off-chain metadata")
)

// StorageBackend provides content-addressed data storage.
type StorageBackend interface {
	// Fetch retrieves data by content ID and type.
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)

	// Store saves data and returns its content ID.
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends.
type StorageBackendFactory interface {
	// StorageBackendFor creates backend from URI. Supports file://, s3:// and ipfs://
	StorageBackendFor(location StorageBackendLocation) (StorageBackend, error)

	// CreateMultiBackend creates aggregated storage backend.
	CreateMultiBackend(locations []StorageBackendLocation) (StorageBackend, error)
}
