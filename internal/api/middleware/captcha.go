package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharon232323/bidmate/internal/captcha"
	"github.com/sharon232323/bidmate/internal/config"
)

const (
	// ContextKeyIsHumanVerified holds the key for captcha status in Gin context.
	ContextKeyIsHumanVerified = "isHumanVerified"

	// HeaderHumanToken carries the token issued after a passed challenge.
	HeaderHumanToken = "X-C-T"
	// HeaderChallenge carries a Turnstile challenge response.
	HeaderChallenge = "X-C-V"
)

// CaptchaMiddleware marks the request as human when it presents a valid
// human token or passes a Turnstile challenge. A passed challenge is answered
// with a fresh human token in the X-C-T response header.
func CaptchaMiddleware(cfg *config.Config, verifier captcha.ITurnstileVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		isHuman := false

		if tok := c.GetHeader(HeaderHumanToken); tok != "" {
			isHuman = verifier.ValidateHumanToken(tok, clientIP)
		}

		if challenge := c.GetHeader(HeaderChallenge); !isHuman && challenge != "" {
			verified, err := verifier.Verify(c.Request.Context(), challenge, clientIP)
			switch {
			case err != nil:
				log.Printf("Error verifying Turnstile challenge from %s: %v", clientIP, err)
			case verified:
				isHuman = true
				tok, err := verifier.GenerateHumanToken(clientIP, cfg.CaptchaTokenTTL)
				if err != nil {
					log.Printf("Error issuing human token for %s: %v", clientIP, err)
				} else {
					c.Header(HeaderHumanToken, tok)
				}
			}
		}

		c.Set(ContextKeyIsHumanVerified, isHuman)
		c.Next()
	}
}

// RequireHumanMiddleware rejects requests CaptchaMiddleware did not verify.
func RequireHumanMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsHumanVerified) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Captcha verification required"})
			return
		}
		c.Next()
	}
}
