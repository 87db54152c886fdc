package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/sharon232323/bidmate/internal/api/middleware"
	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/notify"
	"github.com/sharon232323/bidmate/internal/services"
	"github.com/sharon232323/bidmate/internal/utils"
)

// RestOfferHandler handles REST requests for offers and their decisions.
type RestOfferHandler struct {
	offerService     services.IOfferService
	lifecycleService services.ILifecycleService
	notifier         notify.Notifier
}

// NewRestOfferHandler creates a new RestOfferHandler. A nil notifier drops events.
func NewRestOfferHandler(offerService services.IOfferService, lifecycleService services.ILifecycleService, notifier notify.Notifier) *RestOfferHandler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &RestOfferHandler{
		offerService:     offerService,
		lifecycleService: lifecycleService,
		notifier:         notifier,
	}
}

type placeOfferRequest struct {
	Amount  *decimal.Decimal `json:"amount"`
	Message string           `json:"message"`
}

// publish hands a committed change to the notifier. The response never
// depends on the outcome.
func (h *RestOfferHandler) publish(c *gin.Context, ev notify.Event) {
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.notifier.Notify(ctx, ev); err != nil {
		log.Printf("Failed to publish %s event %s for offer %s: %v", ev.Type, ev.EventID, ev.OfferID, err)
	}
}

func writeOffers(c *gin.Context, offers func(func(*models.Offer, error) bool), fallback string) {
	out := []*models.Offer{}
	for offer, err := range offers {
		if err != nil {
			respondError(c, err, fallback)
			return
		}
		out = append(out, offer)
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// ListItemOffers handles GET /v1/items/:id/offers
func (h *RestOfferHandler) ListItemOffers(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	writeOffers(c, h.offerService.ListOffersForItem(c.Request.Context(), id), "Failed to list offers")
}

// ListMyOffers handles GET /v1/me/offers
func (h *RestOfferHandler) ListMyOffers(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	writeOffers(c, h.offerService.ListOffersForBidder(c.Request.Context(), p.Email), "Failed to list offers")
}

// PlaceOffer handles POST /v1/items/:id/offers
func (h *RestOfferHandler) PlaceOffer(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	p, _ := middleware.PrincipalFrom(c)

	var req placeOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	offer, err := h.offerService.PlaceOffer(c.Request.Context(), id, p.Email, models.NewOffer{
		Amount:  req.Amount,
		Message: req.Message,
	})
	if err != nil {
		respondError(c, err, "Failed to place offer")
		return
	}

	h.publish(c, notify.OfferPlaced(offer))
	c.JSON(http.StatusCreated, offer)
}

func offerID(c *gin.Context) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offer ID format"})
		return utils.SixID{}, false
	}
	return id, true
}

// AcceptOffer handles POST /v1/offers/:id/accept
func (h *RestOfferHandler) AcceptOffer(c *gin.Context) {
	h.decide(c, h.lifecycleService.AcceptOffer, "Failed to accept offer")
}

// RejectOffer handles POST /v1/offers/:id/reject
func (h *RestOfferHandler) RejectOffer(c *gin.Context) {
	h.decide(c, h.lifecycleService.RejectOffer, "Failed to reject offer")
}

type decideFunc func(ctx context.Context, offerID utils.SixID, requester models.Principal) (*models.Decision, error)

func (h *RestOfferHandler) decide(c *gin.Context, fn decideFunc, fallback string) {
	id, ok := offerID(c)
	if !ok {
		return
	}
	p, _ := middleware.PrincipalFrom(c)

	decision, err := fn(c.Request.Context(), id, p)
	if err != nil {
		respondError(c, err, fallback)
		return
	}

	if decision.Changed {
		h.publish(c, notify.Decided(decision))
	}
	c.JSON(http.StatusOK, decision)
}
