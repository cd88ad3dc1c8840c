package handlers

import (
	"context"
	"net/http"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/gin-gonic/gin"
)

type CategoryLister interface {
	List(ctx context.Context, visibleOnly bool) ([]models.Category, error)
}

type CategoryHandler struct {
	categories CategoryLister
	logger     *logger.Logger
}

func NewCategoryHandler(categories CategoryLister, logger *logger.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, logger: logger}
}

func (h *CategoryHandler) List(c *gin.Context) {
	categories, err := h.categories.List(c.Request.Context(), true)
	if err != nil {
		h.logger.Error("Failed to list categories: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": categories})
}
