package models

import (
	"slices"
	"time"
)

// Document operation names recorded in the append-only log.
const (
	DocOpCreate   = "create"
	DocOpSum      = "sum"
	DocOpSubtract = "sub"
	DocOpAdd      = "add"
	DocOpSmartAdd = "smart_add"
	DocOpCompute  = "compute"
)

// Document is an ordered, deduplicated collection of block references with
// an append-only operation log. It never holds block content, only ids.
type Document struct {
	ID        string     `json:"kbd_id"`
	BlockIDs  []string   `json:"kbb_ids"`
	Log       []LogEntry `json:"operations"`
	CreatedAt time.Time  `json:"created_at"`
}

// LogEntry is one record of the document operation log. The wire keys are a
// stable external contract and must not change.
type LogEntry struct {
	Operation  string    `json:"operation"`
	Snapshot   []string  `json:"kbbs_snapshot"`
	TMS        time.Time `json:"tms"`
	ParentDocs []string  `json:"parents_kbd,omitempty"`
	BlockIDs   []string  `json:"kbb,omitempty"`
}

// Contains reports whether the document currently references the block id.
func (d *Document) Contains(blockID string) bool {
	return slices.Contains(d.BlockIDs, blockID)
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	c.BlockIDs = slices.Clone(d.BlockIDs)
	c.Log = make([]LogEntry, len(d.Log))
	for i, e := range d.Log {
		e.Snapshot = slices.Clone(e.Snapshot)
		e.ParentDocs = slices.Clone(e.ParentDocs)
		e.BlockIDs = slices.Clone(e.BlockIDs)
		c.Log[i] = e
	}
	return &c
}
