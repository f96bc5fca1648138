package models

import "github.com/google/uuid"

// Id prefixes are part of the external display and log contracts.
const (
	BlockIDPrefix    = "kbb_"
	FamilyIDPrefix   = "kbn_"
	DocumentIDPrefix = "kbd_"
)

// NewBlockID mints a globally unique block id.
func NewBlockID() string { return BlockIDPrefix + uuid.NewString() }

// NewFamilyID mints a globally unique family id.
func NewFamilyID() string { return FamilyIDPrefix + uuid.NewString() }

// NewDocumentID mints a globally unique document id.
func NewDocumentID() string { return DocumentIDPrefix + uuid.NewString() }
