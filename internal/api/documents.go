package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/othala/internal/history"
)

// CreateDocument handles POST /api/documents. The body is optional; an empty
// one creates an empty document.
//
//	@Summary		Create a document over existing blocks
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	false	"Initial block ids"
//	@Success		201		{object}	Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	d, err := h.docs.New(req.BlockIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GetDocument handles GET /api/documents/{id}.
//
//	@Summary		Get a document with its resolved blocks and rendering
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document id"
//	@Success		200	{object}	DocumentDetailResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.docs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	blocks, err := h.docs.Resolve(d.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": d,
		"blocks":   blocks,
		"rendered": history.Document(d, blocks),
	})
}

// SumDocuments handles POST /api/documents/sum.
//
//	@Summary		Derive the union of two documents
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DocumentPairRequest	true	"Operands"
//	@Success		201		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/sum [post]
func (h *Handler) SumDocuments(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePair(w, r)
	if !ok {
		return
	}
	d, err := h.docs.Sum(req.A, req.B)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// SubtractDocuments handles POST /api/documents/subtract.
//
//	@Summary		Derive the difference of two documents
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DocumentPairRequest	true	"Operands"
//	@Success		201		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/subtract [post]
func (h *Handler) SubtractDocuments(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePair(w, r)
	if !ok {
		return
	}
	d, err := h.docs.Subtract(req.A, req.B)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func decodePair(w http.ResponseWriter, r *http.Request) (DocumentPairRequest, bool) {
	var req DocumentPairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return req, false
	}
	if req.A == "" || req.B == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("a and b are required"))
		return req, false
	}
	return req, true
}

// AddBlock handles POST /api/documents/{id}/blocks. With smart set, the
// insertion folds semantically overlapping blocks first.
//
//	@Summary		Add a block to a document, optionally via smart overlap folding
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Document id"
//	@Param			body	body		AddBlockRequest	true	"Block to add"
//	@Success		200		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/blocks [post]
func (h *Handler) AddBlock(w http.ResponseWriter, r *http.Request) {
	var req AddBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.BlockID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("block_id is required"))
		return
	}
	id := chi.URLParam(r, "id")
	var d *Document
	var err error
	if req.Smart {
		d, err = h.docs.SmartAdd(r.Context(), id, req.BlockID)
	} else {
		d, err = h.docs.Add(id, req.BlockID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ComputeDocument handles POST /api/documents/{id}/compute.
//
//	@Summary		Compute every uncomputed block a document references
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document id"
//	@Success		200	{object}	Document
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/compute [post]
func (h *Handler) ComputeDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.docs.Compute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DocumentLog handles GET /api/documents/{id}/log.
//
//	@Summary		Get a document's append-only operation log
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document id"
//	@Success		200	{object}	DocumentLogResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/log [get]
func (h *Handler) DocumentLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.docs.Log(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
	})
}

// FindSimilar handles GET /api/documents/{id}/similar.
//
//	@Summary		Find document blocks that overlap the given text
//	@Tags			documents
//	@Produce		json
//	@Param			id		path		string	true	"Document id"
//	@Param			text	query		string	true	"Candidate text"
//	@Success		200		{object}	SimilarBlocksResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/similar [get]
func (h *Handler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'text' is required"))
		return
	}
	blocks, err := h.docs.FindSimilar(r.Context(), chi.URLParam(r, "id"), text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"blocks": blocks,
	})
}
