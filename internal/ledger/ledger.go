// Package ledger provides persistence for blocks, documents, and their
// append-only logs, with in-memory and SQLite implementations.
package ledger

import "github.com/starford/othala/internal/models"

// IngestRecord tracks the last block minted from a seed file.
type IngestRecord struct {
	BlockID  string
	Checksum string
}

// Ledger defines the persistence operations the stores depend on.
// Consumers should depend on this interface rather than a concrete type
// to facilitate testing with the in-memory implementation.
type Ledger interface {
	// PutBlock inserts the block or, for an existing id, replaces the
	// stored row. Lookups on missing ids report apperr.ErrNotFound.
	PutBlock(b *models.Block) error
	GetBlock(id string) (*models.Block, error)
	// FamilyBlocks returns every block in the family ordered by created_at
	// ascending; unknown families yield an empty slice.
	FamilyBlocks(familyID string) ([]*models.Block, error)

	CreateDocument(d *models.Document) error
	GetDocument(id string) (*models.Document, error)
	// UpdateDocument persists the document's current snapshot and appends
	// one log entry. Log rows are never updated or deleted.
	UpdateDocument(d *models.Document, entry models.LogEntry) error

	IngestState() (map[string]IngestRecord, error)
	SetIngestRecord(path string, rec IngestRecord) error

	Close() error
}

// Verify both implementations satisfy Ledger at compile time.
var (
	_ Ledger = (*Memory)(nil)
	_ Ledger = (*DB)(nil)
)
