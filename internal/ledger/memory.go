package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// Memory is a mutex-guarded in-memory Ledger for tests and ephemeral runs.
type Memory struct {
	mu       sync.RWMutex
	blocks   map[string]*models.Block
	families map[string][]string // family id -> block ids in insertion order
	docs     map[string]*models.Document
	ingest   map[string]IngestRecord
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		blocks:   make(map[string]*models.Block),
		families: make(map[string][]string),
		docs:     make(map[string]*models.Document),
		ingest:   make(map[string]IngestRecord),
	}
}

func (m *Memory) PutBlock(b *models.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blocks[b.ID]; !exists {
		m.families[b.FamilyID] = append(m.families[b.FamilyID], b.ID)
	}
	m.blocks[b.ID] = b.Clone()
	return nil
}

func (m *Memory) GetBlock(id string) (*models.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[id]
	if !ok {
		return nil, fmt.Errorf("ledger: block %s: %w", id, apperr.ErrNotFound)
	}
	return b.Clone(), nil
}

func (m *Memory) FamilyBlocks(familyID string) ([]*models.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.families[familyID]
	out := make([]*models.Block, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.blocks[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) CreateDocument(d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ID] = d.Clone()
	return nil
}

func (m *Memory) GetDocument(id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("ledger: document %s: %w", id, apperr.ErrNotFound)
	}
	return d.Clone(), nil
}

func (m *Memory) UpdateDocument(d *models.Document, entry models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.docs[d.ID]
	if !ok {
		return fmt.Errorf("ledger: document %s: %w", d.ID, apperr.ErrNotFound)
	}
	snapshot := d.Clone()
	snapshot.Log = append(stored.Log, entry)
	m.docs[d.ID] = snapshot
	return nil
}

func (m *Memory) IngestState() (map[string]IngestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]IngestRecord, len(m.ingest))
	for k, v := range m.ingest {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SetIngestRecord(path string, rec IngestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingest[path] = rec
	return nil
}

func (m *Memory) Close() error { return nil }
