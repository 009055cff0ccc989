package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"larder/internal/models"
	"larder/internal/taxonomy"
)

func optionKind(c *gin.Context) (models.OptionKind, bool) {
	kind, err := models.ParseOptionKind(c.Param("kind"))
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", taxonomy.ErrUnknownKind, err))
		return "", false
	}
	return kind, true
}

// GetOptions returns the merged option list, fetching custom entries on
// first use. A failed fetch still returns the cached list.
func (s *Server) GetOptions(c *gin.Context) {
	kind, ok := optionKind(c)
	if !ok {
		return
	}
	catalog := s.workspace(c).Catalog
	options, err := catalog.Options(c.Request.Context(), kind)

	body := gin.H{
		"kind":    kind,
		"options": options,
		"loaded":  catalog.Loaded(kind),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// RefreshOptions refetches the custom entries of a kind
func (s *Server) RefreshOptions(c *gin.Context) {
	kind, ok := optionKind(c)
	if !ok {
		return
	}
	catalog := s.workspace(c).Catalog
	if err := catalog.Refresh(c.Request.Context(), kind); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "options": catalog.CurrentOptions(kind)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "options": catalog.CurrentOptions(kind), "loaded": true})
}

// AddOption resolves a typed value, adding it as a custom entry when new
func (s *Server) AddOption(c *gin.Context) {
	kind, ok := optionKind(c)
	if !ok {
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	catalog := s.workspace(c).Catalog
	_, existed := catalog.Lookup(kind, req.Value)
	entry, err := catalog.ResolveOrAdd(c.Request.Context(), kind, req.Value)
	if err != nil {
		abortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	c.JSON(status, entry)
}
