package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/repository"
)

// DocumentHandler serves the document store REST contract for every collection.
type DocumentHandler struct {
	resources map[string]repository.Resource
}

// NewDocumentHandler creates a handler over the given collections.
func NewDocumentHandler(resources []repository.Resource) *DocumentHandler {
	m := make(map[string]repository.Resource, len(resources))
	for _, r := range resources {
		m[r.Name()] = r
	}
	return &DocumentHandler{resources: m}
}

func (h *DocumentHandler) resource(c *gin.Context) (repository.Resource, bool) {
	name := c.Param("collection")
	r, ok := h.resources[name]
	if !ok {
		writeError(c, fmt.Errorf("collection %q: %w", name, domain.ErrNotFound))
		return nil, false
	}
	return r, true
}

// List handles GET /api/:collection.
func (h *DocumentHandler) List(c *gin.Context) {
	r, ok := h.resource(c)
	if !ok {
		return
	}
	q, err := repository.ParseQuery(c.Request.URL.Query())
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := r.FindDocs(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get handles GET /api/:collection/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	r, ok := h.resource(c)
	if !ok {
		return
	}
	doc, err := r.GetDoc(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Create handles POST /api/:collection.
func (h *DocumentHandler) Create(c *gin.Context) {
	r, ok := h.resource(c)
	if !ok {
		return
	}
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	doc, err := r.CreateDoc(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// Update handles PATCH /api/:collection/:id. Query filters act as
// preconditions: PATCH ...?status=pending answers 409 unless the stored
// document is still pending.
func (h *DocumentHandler) Update(c *gin.Context) {
	r, ok := h.resource(c)
	if !ok {
		return
	}
	q, err := repository.ParseQuery(c.Request.URL.Query())
	if err != nil {
		writeError(c, err)
		return
	}
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	doc, err := r.UpdateDoc(c.Request.Context(), c.Param("id"), body, q.Filters)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrInvalidInput)
	}
	return body, nil
}
