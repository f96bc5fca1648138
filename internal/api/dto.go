package api

import (
	"github.com/starford/othala/internal/history"
	"github.com/starford/othala/internal/models"
)

// CreateBlockRequest is the request body for minting a create block.
type CreateBlockRequest struct {
	Content string `json:"content" example:"The sky is blue." validate:"required"`
}

// EditBlockRequest is the request body for deriving an edit block.
type EditBlockRequest struct {
	Content string `json:"content" example:"The sky is light blue." validate:"required"`
}

// SumBlocksRequest is the request body for deriving a sum block.
type SumBlocksRequest struct {
	BlockIDs []string `json:"block_ids" example:"kbb_a,kbb_b" validate:"required"`
}

// SubtractBlocksRequest is the request body for deriving a subtract block.
type SubtractBlocksRequest struct {
	MinuendID    string `json:"minuend_id" example:"kbb_a" validate:"required"`
	SubtrahendID string `json:"subtrahend_id" example:"kbb_b" validate:"required"`
}

// ComputeBlockRequest is the optional request body for computing a block.
type ComputeBlockRequest struct {
	Message string `json:"message" example:"Reviewed and accepted."`
}

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	BlockIDs []string `json:"block_ids" example:"kbb_a,kbb_b"`
}

// DocumentPairRequest names the two operands of a document sum or subtract.
type DocumentPairRequest struct {
	A string `json:"a" example:"kbd_a" validate:"required"`
	B string `json:"b" example:"kbd_b" validate:"required"`
}

// AddBlockRequest is the request body for adding a block to a document.
// Smart routes the insertion through overlap folding.
type AddBlockRequest struct {
	BlockID string `json:"block_id" example:"kbb_a" validate:"required"`
	Smart   bool   `json:"smart" example:"true"`
}

// Block is the full block response type (aliased from the domain layer).
type Block = models.Block

// Document is the full document response type (aliased from the domain layer).
type Document = models.Document

// ProvenanceResponse wraps a block's ancestry tree with its rendering.
type ProvenanceResponse struct {
	BlockID  string                 `json:"block_id" validate:"required"`
	Tree     *models.ProvenanceNode `json:"tree" validate:"required"`
	Rendered string                 `json:"rendered" validate:"required"`
}

// GraphResponse wraps the lineage graph of a block.
type GraphResponse struct {
	Nodes []history.GraphNode `json:"nodes" validate:"required"`
	Links []history.GraphLink `json:"links" validate:"required"`
}

// FamilyHistoryResponse wraps a family timeline with its rendering.
type FamilyHistoryResponse struct {
	FamilyID string          `json:"family_id" validate:"required"`
	Blocks   []*models.Block `json:"blocks" validate:"required"`
	Rendered string          `json:"rendered" validate:"required"`
}

// DocumentDetailResponse wraps a document with its resolved blocks and
// rendering.
type DocumentDetailResponse struct {
	Document *models.Document `json:"document" validate:"required"`
	Blocks   []*models.Block  `json:"blocks" validate:"required"`
	Rendered string           `json:"rendered" validate:"required"`
}

// DocumentLogResponse wraps a document's operation log.
type DocumentLogResponse struct {
	Entries []models.LogEntry `json:"entries" validate:"required"`
}

// SimilarBlocksResponse wraps overlap search hits.
type SimilarBlocksResponse struct {
	Blocks []*models.Block `json:"blocks" validate:"required"`
}
