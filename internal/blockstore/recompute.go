package blockstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// Recompute replays the ancestor lineage of a computed block against the
// current state of its families. Create and edit nodes are substituted by
// their family's latest computed version; every sum and subtract node is
// rebuilt as a fresh block in the original node's family, its parents
// remapped to the replayed versions, and computed immediately. Returns the
// replayed terminal block.
//
// A failure partway leaves the blocks replayed so far valid in their
// families; the call can simply be retried.
func (s *Store) Recompute(ctx context.Context, blockID string) (*models.Block, error) {
	root, err := s.ledger.GetBlock(blockID)
	if err != nil {
		return nil, err
	}
	if !root.Computed() {
		return nil, fmt.Errorf("blockstore: block %s: %w", blockID, apperr.ErrNotComputed)
	}

	closure := make(map[string]*models.Block)
	if err := s.collectLineage(blockID, closure); err != nil {
		return nil, err
	}
	order, err := topoOrder(closure)
	if err != nil {
		return nil, fmt.Errorf("blockstore: block %s: %w", blockID, err)
	}

	replacement := make(map[string]string, len(order))
	for _, node := range order {
		if node.IsLeaf() {
			latest, err := s.latestComputed(node)
			if err != nil {
				return nil, err
			}
			replacement[node.ID] = latest.ID
			continue
		}
		parentIDs := make([]string, len(node.ParentIDs))
		for i, pid := range node.ParentIDs {
			parentIDs[i] = replacement[pid]
		}
		nb := &models.Block{
			ID:        models.NewBlockID(),
			FamilyID:  node.FamilyID,
			Op:        node.Op,
			ParentIDs: parentIDs,
			State:     models.StateUncomputed,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.ledger.PutBlock(nb); err != nil {
			return nil, err
		}
		s.emit("created", nb)
		computed, err := s.Compute(ctx, nb.ID, fmt.Sprintf("Recomputed from %s.", node.ID))
		if err != nil {
			return nil, err
		}
		replacement[node.ID] = computed.ID
	}
	return s.ledger.GetBlock(replacement[blockID])
}

// collectLineage loads the block and all its ancestors into closure.
func (s *Store) collectLineage(blockID string, closure map[string]*models.Block) error {
	if _, seen := closure[blockID]; seen {
		return nil
	}
	b, err := s.ledger.GetBlock(blockID)
	if err != nil {
		return err
	}
	closure[b.ID] = b
	for _, pid := range b.ParentIDs {
		if err := s.collectLineage(pid, closure); err != nil {
			return err
		}
	}
	return nil
}

// topoOrder sorts the closure parents-first, breaking ties by created_at
// then id so the replay order is deterministic.
func topoOrder(closure map[string]*models.Block) ([]*models.Block, error) {
	order := make([]*models.Block, 0, len(closure))
	done := make(map[string]bool, len(closure))
	for len(order) < len(closure) {
		var ready []*models.Block
		for _, b := range closure {
			if done[b.ID] {
				continue
			}
			ok := true
			for _, pid := range b.ParentIDs {
				if _, in := closure[pid]; in && !done[pid] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, b)
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("lineage cycle detected")
		}
		sort.Slice(ready, func(i, j int) bool {
			if !ready[i].CreatedAt.Equal(ready[j].CreatedAt) {
				return ready[i].CreatedAt.Before(ready[j].CreatedAt)
			}
			return ready[i].ID < ready[j].ID
		})
		next := ready[0]
		done[next.ID] = true
		order = append(order, next)
	}
	return order, nil
}

// latestComputed returns the most recently computed block in the node's
// family, by computed_at then created_at. Falls back to the node itself.
func (s *Store) latestComputed(node *models.Block) (*models.Block, error) {
	family, err := s.ledger.FamilyBlocks(node.FamilyID)
	if err != nil {
		return nil, err
	}
	latest := node
	for _, b := range family {
		if !b.Computed() {
			continue
		}
		if !latest.Computed() || computedAfter(b, latest) {
			latest = b
		}
	}
	return latest, nil
}

func computedAfter(a, b *models.Block) bool {
	if !a.ComputedAt.Equal(b.ComputedAt) {
		return a.ComputedAt.After(b.ComputedAt)
	}
	return a.CreatedAt.After(b.CreatedAt)
}
