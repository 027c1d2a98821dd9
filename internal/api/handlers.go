// Package api wires up the Gin HTTP router and handlers for the document
// store's public surface: health, document CRUD, and the inbound
// replication endpoint.
//
// This generalises the teacher's internal/api package — same
// Handler-holds-dependencies-and-Register-mounts-routes shape — around the
// new domain: a /kv/:key CRUD trio and a cluster-membership group become
// /api/docs document CRUD and a single /replicate receiver, since this
// system has no join/leave/list-nodes membership protocol.
package api

import (
	"errors"
	"net/http"

	"github.com/distributed-docstore/docstore/internal/config"
	"github.com/distributed-docstore/docstore/internal/docerr"
	"github.com/distributed-docstore/docstore/internal/docstore"
	"github.com/distributed-docstore/docstore/internal/model"
	"github.com/distributed-docstore/docstore/internal/orchestrate"
	"github.com/distributed-docstore/docstore/internal/replicate"
	"github.com/gin-gonic/gin"
)

const maxListIDs = 1000

// Handler holds all dependencies injected from main.
type Handler struct {
	engine       *docstore.Engine
	orchestrator *orchestrate.Orchestrator
	cfg          *config.Config
}

// NewHandler creates a Handler.
func NewHandler(engine *docstore.Engine, orchestrator *orchestrate.Orchestrator, cfg *config.Config) *Handler {
	return &Handler{engine: engine, orchestrator: orchestrator, cfg: cfg}
}

// Register mounts all routes on r. Every route requires bearer auth
// (installed as router-level middleware by the caller) except none — the
// whole surface is authenticated per spec.md §6.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)

	docs := r.Group("/api/docs")
	docs.GET("", h.ListIDs)
	docs.POST("", h.CreateOrUpdate)
	docs.GET("/:id", h.Get)
	docs.DELETE("/:id", h.Delete)

	r.POST("/replicate", h.Replicate)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListIDs handles GET /api/docs.
func (h *Handler) ListIDs(c *gin.Context) {
	ids, err := h.engine.ListIDs(maxListIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

// Get handles GET /api/docs/:id.
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.engine.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// CreateOrUpdate handles POST /api/docs — the user-facing write path
// (spec.md §4.7), delegated entirely to the orchestrator.
func (h *Handler) CreateOrUpdate(c *gin.Context) {
	var input model.Document
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.orchestrator.Put(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// Delete handles DELETE /api/docs/:id.
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.orchestrator.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Replicate handles POST /replicate — the replication receiver (C6).
func (h *Handler) Replicate(c *gin.Context) {
	var change replicate.Change
	if err := c.ShouldBindJSON(&change); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := change.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	switch change.Op {
	case replicate.OpPut:
		err = h.engine.ApplyRemotePut(change.Doc, change.PrevRev)
	case replicate.OpDel:
		err = h.engine.ApplyRemoteDel(change.ID, change.PrevRev)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// respondError maps a docerr sentinel to its HTTP status per spec.md §7,
// responding with the sentinel's own message rather than whatever internal
// context (doc id, operation name) the caller wrapped it with — the client
// sees "conflict: revision mismatch", not "put \"X\": conflict: revision
// mismatch" (spec.md §8 scenario 2). Errors that don't match a known kind
// get a generic message, never the internal error text.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := "internal server error"
	switch {
	case errors.Is(err, docerr.ErrNotFound):
		status = http.StatusNotFound
		body = docerr.ErrNotFound.Error()
	case errors.Is(err, docerr.ErrConflict):
		status = http.StatusConflict
		body = docerr.ErrConflict.Error()
	case errors.Is(err, docerr.ErrInvalidPayload):
		status = http.StatusBadRequest
		body = docerr.ErrInvalidPayload.Error()
	case errors.Is(err, docerr.ErrUnauthorized):
		status = http.StatusUnauthorized
		body = docerr.ErrUnauthorized.Error()
	}
	c.JSON(status, gin.H{"error": body})
}
