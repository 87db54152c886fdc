package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/services"
)

// ContactNotifier forwards a stored contact request to the administrators.
type ContactNotifier interface {
	ContactReceived(ctx context.Context, c *models.Contact) error
}

// RestContactHandler handles the public contact form.
type RestContactHandler struct {
	contactService services.IContactService
	notifier       ContactNotifier
}

// NewRestContactHandler creates a new RestContactHandler. With a nil
// notifier requests are only stored.
func NewRestContactHandler(contactService services.IContactService, notifier ContactNotifier) *RestContactHandler {
	return &RestContactHandler{
		contactService: contactService,
		notifier:       notifier,
	}
}

type createContactRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Year       string `json:"year"`
	Department string `json:"department"`
	Reason     string `json:"reason"`
}

// CreateContact handles POST /v1/contact
func (h *RestContactHandler) CreateContact(c *gin.Context) {
	var req createContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	contact, err := h.contactService.CreateContact(c.Request.Context(), models.NewContact{
		Name:       req.Name,
		Email:      req.Email,
		Year:       req.Year,
		Department: req.Department,
		Reason:     req.Reason,
	})
	if err != nil {
		respondError(c, err, "Failed to submit contact request")
		return
	}

	if h.notifier != nil {
		ctx := context.WithoutCancel(c.Request.Context())
		if err := h.notifier.ContactReceived(ctx, contact); err != nil {
			log.Printf("Failed to queue notification for contact %s: %v", contact.ID, err)
		}
	}
	c.JSON(http.StatusCreated, gin.H{"data": contact})
}
