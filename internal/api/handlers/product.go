package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/repository"

	"github.com/gin-gonic/gin"
)

const maxPageLimit = 100

type ProductReader interface {
	ListProducts(ctx context.Context, f repository.ProductFilter) ([]models.Product, int64, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, []models.Variant, error)
}

type ProductHandler struct {
	products ProductReader
	channels []config.ChannelConfig
	logger   *logger.Logger
}

func NewProductHandler(products ProductReader, channels []config.ChannelConfig, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		channels: channels,
		logger:   logger,
	}
}

// List returns visible products, optionally filtered by category or channel.
func (h *ProductHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageLimit {
		limit = 20
	}

	filter := repository.ProductFilter{Page: page, Limit: limit}

	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category_id"})
			return
		}
		filter.CategoryID = id
	}
	if name := c.Query("channel"); name != "" {
		ch, ok := config.FindChannel(h.channels, name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
			return
		}
		filter.ChannelID = ch.ChannelID
	}

	products, total, err := h.products.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list products: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": products,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *ProductHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	product, variants, err := h.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.logger.Error("Failed to fetch product %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product, "variants": variants})
}
