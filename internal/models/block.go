// Package models defines the domain types for Othala.
package models

import (
	"fmt"
	"slices"
	"time"
)

// OpKind identifies the operation a block was derived by.
type OpKind string

const (
	OpCreate   OpKind = "create"
	OpEdit     OpKind = "edit"
	OpSum      OpKind = "sum"
	OpSubtract OpKind = "sub"
)

// ValidParentCount reports whether n parents satisfy the operation's arity
// rule: create takes none, edit exactly one, subtract exactly two, sum two
// or more.
func (k OpKind) ValidParentCount(n int) bool {
	switch k {
	case OpCreate:
		return n == 0
	case OpEdit:
		return n == 1
	case OpSubtract:
		return n == 2
	case OpSum:
		return n >= 2
	default:
		return false
	}
}

// State is the compute status of a block.
type State string

const (
	StateUncomputed State = "uncomputed"
	StateComputed   State = "computed"
)

// DisplayTime is the timestamp layout used in the printed block form.
const DisplayTime = "2006-01-02 15:04:05"

// Block is an immutable, timestamped unit of versioned text with explicit
// lineage. Content stays empty on derived (sum/subtract) blocks until a
// compute succeeds; create and edit blocks carry their literal content from
// construction.
type Block struct {
	ID         string    `json:"kbb_id"`
	FamilyID   string    `json:"kbn_id"`
	Content    string    `json:"content"`
	ContentRaw string    `json:"content_raw,omitempty"`
	Op         OpKind    `json:"op"`
	ParentIDs  []string  `json:"parent_ids"`
	State      State     `json:"state"`
	Message    string    `json:"message,omitempty"`
	Conflict   string    `json:"conflict,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ComputedAt time.Time `json:"computed_at,omitzero"`
}

// Computed reports whether the block has been finalized.
func (b *Block) Computed() bool {
	return b.State == StateComputed
}

// IsLeaf reports whether the block carries literal content (create/edit)
// rather than oracle-derived content.
func (b *Block) IsLeaf() bool {
	return b.Op == OpCreate || b.Op == OpEdit
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	c := *b
	c.ParentIDs = slices.Clone(b.ParentIDs)
	return &c
}

// String renders the stable printed form consumed by downstream tooling:
// operation tag, content, block id, family id, created and computed
// timestamps, each bracketed. Uncomputed blocks mark the computed slot.
func (b *Block) String() string {
	computed := "uncomputed"
	if b.Computed() {
		computed = b.ComputedAt.Format(DisplayTime)
	}
	return fmt.Sprintf("[%s] %s [%s] [%s] [%s] [%s]",
		b.Op, b.Content, b.ID, b.FamilyID,
		b.CreatedAt.Format(DisplayTime), computed)
}

// ProvenanceNode is one node of a block's ancestry tree: the block itself
// plus the expansion of its parents, in parent-id order.
type ProvenanceNode struct {
	Block   *Block            `json:"block"`
	Parents []*ProvenanceNode `json:"parents,omitempty"`
}
