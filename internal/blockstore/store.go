// Package blockstore implements the versioning core: block construction,
// deferred compute through the content oracle, and whole-lineage replay.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/ledger"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/oracle"
)

// EventFunc receives store events: "created", "computed", "conflict".
type EventFunc func(kind string, b *models.Block)

// Store owns block identity, lineage, and the compute state machine. All
// reads and writes go through the ledger; blocks are immutable once
// computed.
type Store struct {
	ledger ledger.Ledger
	oracle oracle.Oracle
	logger *slog.Logger
	notify EventFunc

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewStore builds a block store. notify may be nil.
func NewStore(led ledger.Ledger, orc oracle.Oracle, logger *slog.Logger, notify EventFunc) *Store {
	return &Store{
		ledger:   led,
		oracle:   orc,
		logger:   logger,
		notify:   notify,
		inflight: make(map[string]struct{}),
	}
}

// Create allocates a new block in a new family with literal content.
func (s *Store) Create(content string) (*models.Block, error) {
	b := &models.Block{
		ID:        models.NewBlockID(),
		FamilyID:  models.NewFamilyID(),
		Content:   content,
		Op:        models.OpCreate,
		ParentIDs: []string{},
		State:     models.StateUncomputed,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.PutBlock(b); err != nil {
		return nil, err
	}
	s.emit("created", b)
	return b, nil
}

// Edit derives a new version of an existing block: same family, new id,
// literal new content.
func (s *Store) Edit(blockID, newContent string) (*models.Block, error) {
	src, err := s.ledger.GetBlock(blockID)
	if err != nil {
		return nil, err
	}
	b := &models.Block{
		ID:        models.NewBlockID(),
		FamilyID:  src.FamilyID,
		Content:   newContent,
		Op:        models.OpEdit,
		ParentIDs: []string{src.ID},
		State:     models.StateUncomputed,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.PutBlock(b); err != nil {
		return nil, err
	}
	s.emit("created", b)
	return b, nil
}

// Sum starts a new family whose content will be the semantic merge of two
// or more blocks, in the given order. The content stays empty until Compute.
func (s *Store) Sum(blockIDs []string) (*models.Block, error) {
	if len(blockIDs) < 2 {
		return nil, fmt.Errorf("blockstore: sum of %d blocks: %w", len(blockIDs), apperr.ErrInvalidArity)
	}
	for _, id := range blockIDs {
		if _, err := s.ledger.GetBlock(id); err != nil {
			return nil, err
		}
	}
	b := &models.Block{
		ID:        models.NewBlockID(),
		FamilyID:  models.NewFamilyID(),
		Op:        models.OpSum,
		ParentIDs: slices.Clone(blockIDs),
		State:     models.StateUncomputed,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.PutBlock(b); err != nil {
		return nil, err
	}
	s.emit("created", b)
	return b, nil
}

// Subtract starts a new family whose content will be the minuend with the
// subtrahend's information removed.
func (s *Store) Subtract(minuendID, subtrahendID string) (*models.Block, error) {
	for _, id := range []string{minuendID, subtrahendID} {
		if _, err := s.ledger.GetBlock(id); err != nil {
			return nil, err
		}
	}
	b := &models.Block{
		ID:        models.NewBlockID(),
		FamilyID:  models.NewFamilyID(),
		Op:        models.OpSubtract,
		ParentIDs: []string{minuendID, subtrahendID},
		State:     models.StateUncomputed,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.PutBlock(b); err != nil {
		return nil, err
	}
	s.emit("created", b)
	return b, nil
}

// Get returns the block by id.
func (s *Store) Get(blockID string) (*models.Block, error) {
	return s.ledger.GetBlock(blockID)
}

// Compute finalizes an uncomputed block: create/edit blocks get their
// timestamp stamped, sum/subtract blocks get their content merged through
// the oracle (computing any uncomputed parent first). Computing is
// single-shot per block; the loser of a concurrent race fails with
// ErrAlreadyComputed and never reaches the oracle. On oracle failure the
// block stays uncomputed and the call can be retried.
func (s *Store) Compute(ctx context.Context, blockID, message string) (*models.Block, error) {
	if !s.begin(blockID) {
		return nil, fmt.Errorf("blockstore: block %s: compute in flight: %w", blockID, apperr.ErrAlreadyComputed)
	}
	defer s.end(blockID)

	b, err := s.ledger.GetBlock(blockID)
	if err != nil {
		return nil, err
	}
	if b.Computed() {
		return nil, fmt.Errorf("blockstore: block %s: %w", blockID, apperr.ErrAlreadyComputed)
	}

	if !b.IsLeaf() {
		parents, err := s.computeParents(ctx, b)
		if err != nil {
			return nil, err
		}
		res, err := s.oracle.Merge(ctx, b.Op, sourcesFor(b.Op, parents))
		if err != nil {
			return nil, fmt.Errorf("blockstore: block %s: %w: %w", b.ID, apperr.ErrOracle, err)
		}
		b.Content = res.Text
		b.ContentRaw = res.Raw
		b.Conflict = res.Conflict
		if res.Conflict != "" {
			s.logger.Warn("merge surfaced a conflict",
				slog.String("kbb_id", b.ID),
				slog.String("conflict", res.Conflict))
			s.emit("conflict", b)
		}
	}

	now := time.Now().UTC()
	if message == "" {
		message = fmt.Sprintf("Computed on %s.", now.Format(time.RFC3339))
	}
	b.Message = message
	b.ComputedAt = now
	b.State = models.StateComputed

	if err := s.ledger.PutBlock(b); err != nil {
		return nil, err
	}
	s.emit("computed", b)
	return b, nil
}

// computeParents loads the block's parents in lineage order, computing any
// that are still uncomputed. A concurrent compute winning the race on a
// parent is fine; the parent is re-read afterwards.
func (s *Store) computeParents(ctx context.Context, b *models.Block) ([]*models.Block, error) {
	parents := make([]*models.Block, len(b.ParentIDs))
	for i, pid := range b.ParentIDs {
		p, err := s.ledger.GetBlock(pid)
		if err != nil {
			return nil, err
		}
		if !p.Computed() {
			msg := fmt.Sprintf("Computed on %s because parent of %s, operation %s.",
				time.Now().UTC().Format(time.RFC3339), b.ID, b.Op)
			if _, err := s.Compute(ctx, pid, msg); err != nil && !errors.Is(err, apperr.ErrAlreadyComputed) {
				return nil, err
			}
			if p, err = s.ledger.GetBlock(pid); err != nil {
				return nil, err
			}
			if !p.Computed() {
				return nil, fmt.Errorf("blockstore: parent %s of %s is still uncomputed", pid, b.ID)
			}
		}
		parents[i] = p
	}
	return parents, nil
}

// sourcesFor converts parents into oracle sources. Sum contributions are
// reordered by recency (computed_at ascending, ties by created_at) so the
// most recent text appears last; subtract keeps [minuend, subtrahend].
func sourcesFor(op models.OpKind, parents []*models.Block) []oracle.Source {
	sources := make([]oracle.Source, len(parents))
	for i, p := range parents {
		sources[i] = oracle.Source{
			Text:       p.Content,
			Kind:       p.Op,
			CreatedAt:  p.CreatedAt,
			ComputedAt: p.ComputedAt,
		}
	}
	if op == models.OpSum {
		sort.SliceStable(sources, func(i, j int) bool {
			if !sources[i].ComputedAt.Equal(sources[j].ComputedAt) {
				return sources[i].ComputedAt.Before(sources[j].ComputedAt)
			}
			return sources[i].CreatedAt.Before(sources[j].CreatedAt)
		})
	}
	return sources
}

// FamilyHistory returns the family's blocks ordered by created_at ascending.
func (s *Store) FamilyHistory(familyID string) ([]*models.Block, error) {
	blocks, err := s.ledger.FamilyBlocks(familyID)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("blockstore: family %s: %w", familyID, apperr.ErrNotFound)
	}
	return blocks, nil
}

// Provenance expands the block's parent DAG into a tree, depth-first.
// Blocks shared across lineages appear once per path.
func (s *Store) Provenance(blockID string) (*models.ProvenanceNode, error) {
	b, err := s.ledger.GetBlock(blockID)
	if err != nil {
		return nil, err
	}
	node := &models.ProvenanceNode{Block: b}
	for _, pid := range b.ParentIDs {
		parent, err := s.Provenance(pid)
		if err != nil {
			return nil, err
		}
		node.Parents = append(node.Parents, parent)
	}
	return node, nil
}

func (s *Store) begin(blockID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[blockID]; busy {
		return false
	}
	s.inflight[blockID] = struct{}{}
	return true
}

func (s *Store) end(blockID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, blockID)
}

func (s *Store) emit(kind string, b *models.Block) {
	if s.notify != nil {
		s.notify(kind, b)
	}
}
