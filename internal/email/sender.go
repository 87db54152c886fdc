package email

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/sharon232323/bidmate/internal/config"
)

// Sender delivers one notification email. rawMessage is the complete
// RFC 5322 message, headers included.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender relays notifications through the configured SMTP server.
type SMTPSender struct {
	from     string
	addr     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewSMTPSender returns an SMTPSender, or a LoggingSender when SMTP_HOST is
// empty so that development setups still see every notification.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		log.Println("SMTP host not configured, notifications will only be logged.")
		return &LoggingSender{from: cfg.SmtpFromAddress}
	}

	var auth smtp.Auth
	if cfg.SmtpUsername != "" {
		auth = smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost)
	}
	return &SMTPSender{
		from:     cfg.SmtpFromAddress,
		addr:     fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort),
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients for %q", subject)
	}
	// net/smtp has no context support; at least honour a cancelled task.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.sendMail(s.addr, s.auth, s.from, to, rawMessage); err != nil {
		return fmt.Errorf("smtp send to %s via %s: %w", strings.Join(to, ", "), s.addr, err)
	}
	log.Printf("Notification sent via SMTP to %s (Subject: %s)", strings.Join(to, ", "), subject)
	return nil
}

// LoggingSender writes notifications to the process log instead of sending.
type LoggingSender struct {
	from string
}

func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	log.Printf("Notification (not sent) From=%s To=%s Subject=%q\n%s", s.from, strings.Join(to, ", "), subject, rawMessage)
	return nil
}
