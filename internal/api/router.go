package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/sharon232323/bidmate/internal/api/handlers"
	"github.com/sharon232323/bidmate/internal/api/middleware"
	"github.com/sharon232323/bidmate/internal/captcha"
	"github.com/sharon232323/bidmate/internal/config"
	"github.com/sharon232323/bidmate/internal/email"
	"github.com/sharon232323/bidmate/internal/notify"
	"github.com/sharon232323/bidmate/internal/services"
	"github.com/sharon232323/bidmate/internal/storage"
)

// SetupRouter configures and returns the main Gin engine. ctx bounds the
// lifetime of background middleware state.
func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	itemService services.IItemService,
	offerService services.IOfferService,
	lifecycleService services.ILifecycleService,
	contactService services.IContactService,
	s3Storage storage.IS3Storage,
	verifier captcha.ITurnstileVerifier,
	notifier notify.Notifier,
	contactNotifier handlers.ContactNotifier,
) *gin.Engine {
	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(ctx, cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	itemHandler := handlers.NewRestItemHandler(itemService, s3Storage)
	offerHandler := handlers.NewRestOfferHandler(offerService, lifecycleService, notifier)
	contactHandler := handlers.NewRestContactHandler(contactService, contactNotifier)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Public reads
		v1.GET("/items", itemHandler.ListItems)
		v1.GET("/items/:id", itemHandler.GetItemByID)
		v1.GET("/items/:id/offers", offerHandler.ListItemOffers)

		// Anonymous writes go through the captcha
		v1.POST("/contact", middleware.CaptchaMiddleware(cfg, verifier), middleware.RequireHumanMiddleware(), contactHandler.CreateContact)

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/me/offers", offerHandler.ListMyOffers)
		}

		approvedRequired := v1.Group("/")
		approvedRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.ApprovedMiddleware())
		{
			approvedRequired.POST("/items", itemHandler.CreateItem)
			approvedRequired.DELETE("/items/:id", itemHandler.DeleteItem)
			approvedRequired.POST("/items/:id/image-upload", itemHandler.CreateImageUpload)
			approvedRequired.PUT("/items/:id/image", itemHandler.SetItemImage)
			approvedRequired.POST("/items/:id/offers", offerHandler.PlaceOffer)
			approvedRequired.POST("/offers/:id/accept", offerHandler.AcceptOffer)
			approvedRequired.POST("/offers/:id/reject", offerHandler.RejectOffer)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine.
// The Redis client backs getTestEmail.
func SetupServiceRouter(rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				log.Println("Shutdown signal sent successfully.")
			default:
				log.Println("Shutdown channel already signaled or blocked.")
			}
		case "getTestEmail":
			var args []string // Expect ["kind", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
				return
			}
			redisKey := email.MockEmailKey(args[1], args[0])

			// Poll Redis briefly for the key
			var emailJsonData string
			var getErr error
			found := false
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			for i := 0; i < 10; i++ { // Poll up to ~2 seconds
				emailJsonData, getErr = rdb.Get(ctx, redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(ctx, redisKey) // Delete after fetching
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
