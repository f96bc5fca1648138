package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/othala/internal/blockstore"
	"github.com/starford/othala/internal/docstore"
	"github.com/starford/othala/internal/history"
)

// Handler holds API route handlers.
type Handler struct {
	blocks *blockstore.Store
	docs   *docstore.Store
}

// NewHandler creates a new Handler.
func NewHandler(blocks *blockstore.Store, docs *docstore.Store) *Handler {
	return &Handler{blocks: blocks, docs: docs}
}

// CreateBlock handles POST /api/blocks.
//
//	@Summary		Create a new block with literal content
//	@Tags			blocks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateBlockRequest	true	"Block content"
//	@Success		201		{object}	Block
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks [post]
func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	b, err := h.blocks.Create(req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GetBlock handles GET /api/blocks/{id}.
//
//	@Summary		Get a single block by id
//	@Tags			blocks
//	@Produce		json
//	@Param			id	path		string	true	"Block id"
//	@Success		200	{object}	Block
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{id} [get]
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	b, err := h.blocks.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// EditBlock handles POST /api/blocks/{id}/edit.
//
//	@Summary		Derive an edit block in the same family
//	@Tags			blocks
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Block id to edit"
//	@Param			body	body		EditBlockRequest	true	"Replacement content"
//	@Success		201		{object}	Block
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{id}/edit [post]
func (h *Handler) EditBlock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req EditBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	b, err := h.blocks.Edit(chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// SumBlocks handles POST /api/blocks/sum.
//
//	@Summary		Derive a sum block over two or more blocks
//	@Tags			blocks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SumBlocksRequest	true	"Blocks to sum"
//	@Success		201		{object}	Block
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/sum [post]
func (h *Handler) SumBlocks(w http.ResponseWriter, r *http.Request) {
	var req SumBlocksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	b, err := h.blocks.Sum(req.BlockIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// SubtractBlocks handles POST /api/blocks/subtract.
//
//	@Summary		Derive a subtract block from a minuend and a subtrahend
//	@Tags			blocks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SubtractBlocksRequest	true	"Operands"
//	@Success		201		{object}	Block
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/subtract [post]
func (h *Handler) SubtractBlocks(w http.ResponseWriter, r *http.Request) {
	var req SubtractBlocksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.MinuendID == "" || req.SubtrahendID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("minuend_id and subtrahend_id are required"))
		return
	}
	b, err := h.blocks.Subtract(req.MinuendID, req.SubtrahendID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// ComputeBlock handles POST /api/blocks/{id}/compute. The body is optional;
// an empty one computes with the default message.
//
//	@Summary		Compute a block, finalizing its content
//	@Tags			blocks
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Block id"
//	@Param			body	body		ComputeBlockRequest	false	"Optional compute message"
//	@Success		200		{object}	Block
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{id}/compute [post]
func (h *Handler) ComputeBlock(w http.ResponseWriter, r *http.Request) {
	var req ComputeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	b, err := h.blocks.Compute(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// RecomputeBlock handles POST /api/blocks/{id}/recompute.
//
//	@Summary		Replay a computed block's lineage against the latest family versions
//	@Tags			blocks
//	@Produce		json
//	@Param			id	path		string	true	"Block id"
//	@Success		201	{object}	Block
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{id}/recompute [post]
func (h *Handler) RecomputeBlock(w http.ResponseWriter, r *http.Request) {
	b, err := h.blocks.Recompute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// BlockProvenance handles GET /api/blocks/{id}/provenance.
//
//	@Summary		Get a block's ancestry tree with its text rendering
//	@Tags			blocks
//	@Produce		json
//	@Param			id	path		string	true	"Block id"
//	@Success		200	{object}	ProvenanceResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{id}/provenance [get]
func (h *Handler) BlockProvenance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	root, err := h.blocks.Provenance(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"block_id": id,
		"tree":     root,
		"rendered": history.Tree(root),
	})
}

// BlockGraph handles GET /api/blocks/{id}/graph.
//
//	@Summary		Get a block's lineage as graph nodes and links
//	@Tags			blocks
//	@Produce		json
//	@Param			id	path		string	true	"Block id"
//	@Success		200	{object}	GraphResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{id}/graph [get]
func (h *Handler) BlockGraph(w http.ResponseWriter, r *http.Request) {
	root, err := h.blocks.Provenance(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	nodes, links := history.Graph(root)
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"links": links,
	})
}

// FamilyHistory handles GET /api/families/{id}/history.
//
//	@Summary		Get every version in a family, oldest first
//	@Tags			families
//	@Produce		json
//	@Param			id	path		string	true	"Family id"
//	@Success		200	{object}	FamilyHistoryResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/families/{id}/history [get]
func (h *Handler) FamilyHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	blocks, err := h.blocks.FamilyHistory(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"family_id": id,
		"blocks":    blocks,
		"rendered":  history.Timeline(blocks),
	})
}
