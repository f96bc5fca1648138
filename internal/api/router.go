package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/othala/internal/blockstore"
	"github.com/starford/othala/internal/docstore"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(blocks *blockstore.Store, docs *docstore.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(blocks, docs)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Block algebra.
	r.Post("/blocks", h.CreateBlock)
	r.Post("/blocks/sum", h.SumBlocks)
	r.Post("/blocks/subtract", h.SubtractBlocks)
	r.Get("/blocks/{id}", h.GetBlock)
	r.Post("/blocks/{id}/edit", h.EditBlock)
	r.Post("/blocks/{id}/compute", h.ComputeBlock)
	r.Post("/blocks/{id}/recompute", h.RecomputeBlock)
	r.Get("/blocks/{id}/provenance", h.BlockProvenance)
	r.Get("/blocks/{id}/graph", h.BlockGraph)

	// Family timelines.
	r.Get("/families/{id}/history", h.FamilyHistory)

	// Documents.
	r.Post("/documents", h.CreateDocument)
	r.Post("/documents/sum", h.SumDocuments)
	r.Post("/documents/subtract", h.SubtractDocuments)
	r.Get("/documents/{id}", h.GetDocument)
	r.Post("/documents/{id}/blocks", h.AddBlock)
	r.Post("/documents/{id}/compute", h.ComputeDocument)
	r.Get("/documents/{id}/log", h.DocumentLog)
	r.Get("/documents/{id}/similar", h.FindSimilar)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
