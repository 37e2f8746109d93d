package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"versionedkv/internal/storage/block"
)

const metadataPath = "catalog/metadata.json"

// document is the on-disk shape FilePersistence reads and writes.
type document struct {
	Branches map[string]*BranchInfo `json:"branches"`
	Versions map[string]*VersionInfo `json:"versions"`
}

// FilePersistence persists catalog metadata as a single JSON document
// on a block.Storage backend, grounded on
// internal/catalog/persistence.go's CatalogPersistence but trimmed of
// its background-backup goroutine: the catalog is small enough that
// every mutation is persisted synchronously (see Catalog.persistLocked).
type FilePersistence struct {
	storage block.Storage
}

// NewFilePersistence wraps a block.Storage backend as a catalog
// PersistenceLayer.
func NewFilePersistence(storage block.Storage) *FilePersistence {
	return &FilePersistence{storage: storage}
}

// Save writes the full branch/version metadata set, overwriting any
// previous document.
func (p *FilePersistence) Save(ctx context.Context, branches map[string]*BranchInfo, versions map[string]*VersionInfo) error {
	doc := document{Branches: branches, Versions: versions}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("persistence: marshal: %w", err)
	}

	w, err := p.storage.Writer(ctx, metadataPath)
	if err != nil {
		return fmt.Errorf("persistence: open writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("persistence: write: %w", err)
	}
	return w.Close()
}

// Load reads the metadata document, returning empty maps if none has
// been written yet.
func (p *FilePersistence) Load(ctx context.Context) (map[string]*BranchInfo, map[string]*VersionInfo, error) {
	r, err := p.storage.Reader(ctx, metadataPath)
	if err != nil {
		if block.IsNotFound(err) {
			return make(map[string]*BranchInfo), make(map[string]*VersionInfo), nil
		}
		return nil, nil, fmt.Errorf("persistence: open reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("persistence: read: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("persistence: unmarshal: %w", err)
	}
	if doc.Branches == nil {
		doc.Branches = make(map[string]*BranchInfo)
	}
	if doc.Versions == nil {
		doc.Versions = make(map[string]*VersionInfo)
	}
	return doc.Branches, doc.Versions, nil
}

// Close is a no-op: FilePersistence holds no resources of its own beyond
// the block.Storage it was given, which the caller owns.
func (p *FilePersistence) Close() error {
	return nil
}
