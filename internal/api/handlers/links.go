package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"whisperjournal/internal/models"
	"whisperjournal/internal/store"
)

type LinkHandler struct {
	store *store.Store
}

func NewLinkHandler(st *store.Store) *LinkHandler {
	return &LinkHandler{store: st}
}

type linkRequest struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
}

// List returns every link touching the entry, in either direction
func (h *LinkHandler) List(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.GetEntry(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}
	links, err := h.store.ListLinks(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list links"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links})
}

// Create adds a typed link from the path entry to the target
func (h *LinkHandler) Create(c *gin.Context) {
	id := c.Param("id")
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TargetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "targetId is required"})
		return
	}
	if !models.ValidLinkType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown link type"})
		return
	}
	if id == req.TargetID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot link an entry to itself"})
		return
	}
	if _, err := h.store.GetEntry(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}
	if _, err := h.store.GetEntry(req.TargetID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target entry not found"})
		return
	}

	link, err := h.store.AddLink(id, req.TargetID, req.Type)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link"})
		return
	}
	c.JSON(http.StatusOK, link)
}

// Delete removes the link matching source, target, and type
func (h *LinkHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TargetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "targetId is required"})
		return
	}
	err := h.store.RemoveLink(id, req.TargetID, req.Type)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove link"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
