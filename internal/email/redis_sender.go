package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharon232323/bidmate/internal/config"
)

// Kinds of marketplace notification, used to key captured mock emails.
const (
	KindOfferPlaced   = "offer_placed"
	KindOfferAccepted = "offer_accepted"
	KindOfferRejected = "offer_rejected"
	KindContact       = "contact_received"
	KindUnknown       = "unknown"
)

// MockEmailTTL is how long a captured email stays readable.
const MockEmailTTL = 5 * time.Minute

// MockEmailKey is where RedisSender stores the last email of a kind sent to to.
func MockEmailKey(to, kind string) string {
	return fmt.Sprintf("mockemail:%s:%s", to, kind)
}

// KindFromSubject maps a notification subject back to its kind.
func KindFromSubject(subject string) string {
	s := strings.ToLower(subject)
	switch {
	case strings.HasPrefix(s, "new contact request"):
		return KindContact
	case strings.Contains(s, "accepted"):
		return KindOfferAccepted
	case strings.Contains(s, "declined"), strings.Contains(s, "rejected"):
		return KindOfferRejected
	case strings.Contains(s, "new bid"), strings.Contains(s, "new offer"):
		return KindOfferPlaced
	}
	return KindUnknown
}

// RedisSender stores emails in Redis so that tests can read them back
// through the service API.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client *redis.Client, cfg *config.Config) *RedisSender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// Send stores a JSON representation of the email under MockEmailKey of the
// first recipient.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := KindFromSubject(subject)

	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	emailData := map[string]interface{}{
		"to":      strings.Join(to, ", "),
		"from":    s.cfg.SmtpFromAddress,
		"subject": subject,
		"body":    string(rawMessage),
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
		"kind":    kind,
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(primaryTo, kind)
	if err := s.client.Set(ctx, key, jsonData, MockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	log.Printf("Mock email stored in Redis key '%s' (TTL: %v, To: %s, Subject: %s)", key, MockEmailTTL, strings.Join(to, ", "), subject)
	return nil
}
