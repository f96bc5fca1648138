// Package docstore manages documents: ordered, deduplicated collections of
// block references with an append-only operation log. Document operations
// compose block store operations; the oracle is never called directly.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/blockstore"
	"github.com/starford/othala/internal/ledger"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/similarity"
)

// EventFunc receives document events: "created", "updated".
type EventFunc func(kind string, d *models.Document)

// Store owns document state. Mutations on one document are serialized so
// the log and snapshot always move together.
type Store struct {
	ledger ledger.Ledger
	blocks *blockstore.Store
	sim    similarity.Index
	logger *slog.Logger
	notify EventFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore builds a document store. notify may be nil.
func NewStore(led ledger.Ledger, blocks *blockstore.Store, sim similarity.Index, logger *slog.Logger, notify EventFunc) *Store {
	return &Store{
		ledger: led,
		blocks: blocks,
		sim:    sim,
		logger: logger,
		notify: notify,
		locks:  make(map[string]*sync.Mutex),
	}
}

// New creates a document over the given blocks, deduplicated preserving
// input order. Every id must resolve. The genesis log entry records the
// initial snapshot.
func (s *Store) New(blockIDs []string) (*models.Document, error) {
	refs := make([]string, 0, len(blockIDs))
	for _, id := range blockIDs {
		if _, err := s.blocks.Get(id); err != nil {
			return nil, err
		}
		if !slices.Contains(refs, id) {
			refs = append(refs, id)
		}
	}
	now := time.Now().UTC()
	d := &models.Document{
		ID:        models.NewDocumentID(),
		BlockIDs:  refs,
		CreatedAt: now,
		Log: []models.LogEntry{{
			Operation: models.DocOpCreate,
			Snapshot:  slices.Clone(refs),
			TMS:       now,
		}},
	}
	if err := s.ledger.CreateDocument(d); err != nil {
		return nil, err
	}
	s.emit("created", d)
	return d, nil
}

// Get returns the document by id.
func (s *Store) Get(docID string) (*models.Document, error) {
	return s.ledger.GetDocument(docID)
}

// Sum creates a NEW document holding a's blocks followed by b's blocks not
// already present. The source documents are untouched.
func (s *Store) Sum(aID, bID string) (*models.Document, error) {
	a, err := s.ledger.GetDocument(aID)
	if err != nil {
		return nil, err
	}
	b, err := s.ledger.GetDocument(bID)
	if err != nil {
		return nil, err
	}
	refs := slices.Clone(a.BlockIDs)
	for _, id := range b.BlockIDs {
		if !slices.Contains(refs, id) {
			refs = append(refs, id)
		}
	}
	return s.derive(models.DocOpSum, refs, []string{aID, bID})
}

// Subtract creates a NEW document holding a's blocks with b's removed,
// order preserved. The referenced blocks themselves are never deleted.
func (s *Store) Subtract(aID, bID string) (*models.Document, error) {
	a, err := s.ledger.GetDocument(aID)
	if err != nil {
		return nil, err
	}
	b, err := s.ledger.GetDocument(bID)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(a.BlockIDs))
	for _, id := range a.BlockIDs {
		if !b.Contains(id) {
			refs = append(refs, id)
		}
	}
	return s.derive(models.DocOpSubtract, refs, []string{aID, bID})
}

// derive persists a document produced from parent documents: genesis entry
// plus the deriving operation with its parents_kbd.
func (s *Store) derive(op string, refs, parentDocs []string) (*models.Document, error) {
	now := time.Now().UTC()
	d := &models.Document{
		ID:        models.NewDocumentID(),
		BlockIDs:  refs,
		CreatedAt: now,
		Log: []models.LogEntry{
			{Operation: models.DocOpCreate, Snapshot: slices.Clone(refs), TMS: now},
			{Operation: op, Snapshot: slices.Clone(refs), TMS: now, ParentDocs: parentDocs},
		},
	}
	if err := s.ledger.CreateDocument(d); err != nil {
		return nil, err
	}
	s.emit("created", d)
	return d, nil
}

// Add appends the block reference if it is not already present. The log
// records the call either way; the snapshot change is idempotent.
func (s *Store) Add(docID, blockID string) (*models.Document, error) {
	if _, err := s.blocks.Get(blockID); err != nil {
		return nil, err
	}
	unlock := s.lock(docID)
	defer unlock()

	d, err := s.ledger.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if !d.Contains(blockID) {
		d.BlockIDs = append(d.BlockIDs, blockID)
	}
	entry := models.LogEntry{
		Operation: models.DocOpAdd,
		Snapshot:  slices.Clone(d.BlockIDs),
		TMS:       time.Now().UTC(),
		BlockIDs:  []string{blockID},
	}
	if err := s.ledger.UpdateDocument(d, entry); err != nil {
		return nil, err
	}
	return s.refresh(d.ID)
}

// SmartAdd adds the block after consulting the similarity index against the
// document's current blocks. Overlapping blocks are removed from the
// snapshot and folded with the new block into a computed sum; the merged
// block takes their place. Without overlap it behaves like Add, logged as
// smart_add.
func (s *Store) SmartAdd(ctx context.Context, docID, blockID string) (*models.Document, error) {
	nb, err := s.blocks.Get(blockID)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(docID)
	defer unlock()

	d, err := s.ledger.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	corpus, err := s.resolve(d)
	if err != nil {
		return nil, err
	}
	overlaps, err := s.sim.FindOverlaps(ctx, nb.Content, corpus)
	if err != nil {
		return nil, err
	}

	entry := models.LogEntry{Operation: models.DocOpSmartAdd, TMS: time.Now().UTC()}
	if len(overlaps) == 0 {
		if !d.Contains(blockID) {
			d.BlockIDs = append(d.BlockIDs, blockID)
		}
		entry.BlockIDs = []string{blockID}
	} else {
		overlapIDs := make([]string, len(overlaps))
		for i, o := range overlaps {
			overlapIDs[i] = o.ID
		}
		merged, err := s.blocks.Sum(append(slices.Clone(overlapIDs), blockID))
		if err != nil {
			return nil, err
		}
		if _, err := s.blocks.Compute(ctx, merged.ID, fmt.Sprintf("Folded into %s by smart add.", d.ID)); err != nil {
			return nil, err
		}
		keep := make([]string, 0, len(d.BlockIDs)+1)
		for _, id := range d.BlockIDs {
			if !slices.Contains(overlapIDs, id) && id != blockID {
				keep = append(keep, id)
			}
		}
		d.BlockIDs = append(keep, merged.ID)
		entry.BlockIDs = []string{merged.ID}
		s.logger.Info("smart add folded overlapping blocks",
			slog.String("kbd_id", d.ID),
			slog.Int("overlaps", len(overlapIDs)),
			slog.String("merged_kbb", merged.ID))
	}
	entry.Snapshot = slices.Clone(d.BlockIDs)
	if err := s.ledger.UpdateDocument(d, entry); err != nil {
		return nil, err
	}
	return s.refresh(d.ID)
}

// Compute computes every uncomputed referenced block in snapshot order and
// records one compute entry.
func (s *Store) Compute(ctx context.Context, docID string) (*models.Document, error) {
	unlock := s.lock(docID)
	defer unlock()

	d, err := s.ledger.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	for _, id := range d.BlockIDs {
		b, err := s.blocks.Get(id)
		if err != nil {
			return nil, err
		}
		if b.Computed() {
			continue
		}
		msg := fmt.Sprintf("Computed for document %s.", d.ID)
		if _, err := s.blocks.Compute(ctx, id, msg); err != nil && !errors.Is(err, apperr.ErrAlreadyComputed) {
			return nil, err
		}
	}
	entry := models.LogEntry{
		Operation: models.DocOpCompute,
		Snapshot:  slices.Clone(d.BlockIDs),
		TMS:       time.Now().UTC(),
	}
	if err := s.ledger.UpdateDocument(d, entry); err != nil {
		return nil, err
	}
	return s.refresh(d.ID)
}

// Log returns the document's append-only operation log.
func (s *Store) Log(docID string) ([]models.LogEntry, error) {
	d, err := s.ledger.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	return d.Log, nil
}

// Resolve returns the referenced blocks in snapshot order.
func (s *Store) Resolve(docID string) ([]*models.Block, error) {
	d, err := s.ledger.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	return s.resolve(d)
}

// FindSimilar runs a similarity query against the document's blocks without
// mutating anything.
func (s *Store) FindSimilar(ctx context.Context, docID, text string) ([]*models.Block, error) {
	d, err := s.ledger.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	corpus, err := s.resolve(d)
	if err != nil {
		return nil, err
	}
	return s.sim.FindOverlaps(ctx, text, corpus)
}

func (s *Store) resolve(d *models.Document) ([]*models.Block, error) {
	blocks := make([]*models.Block, len(d.BlockIDs))
	for i, id := range d.BlockIDs {
		b, err := s.blocks.Get(id)
		if err != nil {
			return nil, err
		}
		blocks[i] = b
	}
	return blocks, nil
}

// refresh re-reads the stored document so callers see the appended log.
func (s *Store) refresh(docID string) (*models.Document, error) {
	d, err := s.ledger.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	s.emit("updated", d)
	return d, nil
}

// lock serializes mutations per document id.
func (s *Store) lock(docID string) func() {
	s.mu.Lock()
	m, ok := s.locks[docID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[docID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Store) emit(kind string, d *models.Document) {
	if s.notify != nil {
		s.notify(kind, d)
	}
}
