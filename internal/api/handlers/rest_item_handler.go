package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/sharon232323/bidmate/internal/api/middleware"
	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/services"
	"github.com/sharon232323/bidmate/internal/storage"
	"github.com/sharon232323/bidmate/internal/utils"
)

// RestItemHandler handles REST requests for items.
type RestItemHandler struct {
	itemService services.IItemService
	storage     storage.IS3Storage
}

// NewRestItemHandler creates a new RestItemHandler.
func NewRestItemHandler(itemService services.IItemService, s3 storage.IS3Storage) *RestItemHandler {
	return &RestItemHandler{
		itemService: itemService,
		storage:     s3,
	}
}

type createItemRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	IsBarter    bool            `json:"is_barter"`
}

type imageUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

type setImageRequest struct {
	Key string `json:"key" binding:"required"`
}

// itemID parses the :id path parameter, answering 400 when it is malformed.
func itemID(c *gin.Context) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
		return utils.SixID{}, false
	}
	return id, true
}

// ListItems handles GET /v1/items
func (h *RestItemHandler) ListItems(c *gin.Context) {
	filter := services.ItemFilter{
		Owner:    strings.TrimSpace(c.Query("owner")),
		Category: strings.TrimSpace(c.Query("category")),
		Limit:    parseLimit(c.DefaultQuery("limit", "50")),
	}

	if s := c.Query("status"); s != "" {
		status, ok := models.ParseItemStatus(s)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of available, bartered, sold"})
			return
		}
		filter.Status = &status
	}
	if s := c.Query("barter"); s != "" {
		isBarter, err := strconv.ParseBool(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "barter must be true or false"})
			return
		}
		filter.IsBarter = &isBarter
	}
	if s := c.Query("cursor"); s != "" {
		cursor, err := parseCursor(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Before = cursor
	}

	items := make([]*models.Item, 0, filter.Limit)
	for item, err := range h.itemService.ListItems(c.Request.Context(), filter) {
		if err != nil {
			respondError(c, err, "Failed to list items")
			return
		}
		items = append(items, item)
	}

	nextCursor := ""
	if len(items) == filter.Limit {
		last := items[len(items)-1]
		nextCursor = formatCursor(last.CreatedAt, last.ID)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":        items,
		"next_cursor": nextCursor,
	})
}

// GetItemByID handles GET /v1/items/:id
func (h *RestItemHandler) GetItemByID(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	item, err := h.itemService.FindItemByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to retrieve item")
		return
	}
	c.JSON(http.StatusOK, item)
}

// CreateItem handles POST /v1/items
func (h *RestItemHandler) CreateItem(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	item, err := h.itemService.CreateItem(c.Request.Context(), p.Email, models.NewItem{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		IsBarter:    req.IsBarter,
	})
	if err != nil {
		respondError(c, err, "Failed to create item")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// DeleteItem handles DELETE /v1/items/:id
func (h *RestItemHandler) DeleteItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	p, _ := middleware.PrincipalFrom(c)

	if err := h.itemService.DeleteItem(c.Request.Context(), id, p); err != nil {
		respondError(c, err, "Failed to delete item")
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateImageUpload handles POST /v1/items/:id/image-upload. The client PUTs
// the file to the returned URL and then attaches the key with SetItemImage.
func (h *RestItemHandler) CreateImageUpload(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	p, _ := middleware.PrincipalFrom(c)

	var req imageUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename and content_type are required"})
		return
	}
	if !strings.HasPrefix(req.ContentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content_type must be an image type"})
		return
	}

	item, err := h.itemService.FindItemByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to retrieve item")
		return
	}
	if !p.Owns(item.Owner) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can upload an image"})
		return
	}

	url, key, err := h.storage.GeneratePresignedPutURL(c.Request.Context(), p.Email, id.String(), req.Filename, req.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare upload"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upload_url": url,
		"key":        key,
	})
}

// SetItemImage handles PUT /v1/items/:id/image
func (h *RestItemHandler) SetItemImage(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	p, _ := middleware.PrincipalFrom(c)

	var req setImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if !storage.KeyBelongsTo(req.Key, p.Email, id.String()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key was not issued for this item"})
		return
	}

	item, err := h.itemService.SetItemImage(c.Request.Context(), id, p, req.Key)
	if err != nil {
		respondError(c, err, "Failed to set item image")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item":      item,
		"image_url": h.storage.PublicURL(item.Image),
	})
}
