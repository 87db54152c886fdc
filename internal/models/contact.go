package models

import (
	"time"

	"github.com/sharon232323/bidmate/internal/utils"
)

// Contact is an anonymous request to the site admins, for example asking
// for account approval.
type Contact struct {
	ID         utils.SixID `json:"id"`
	Name       string      `json:"name"`
	Email      string      `json:"email,omitempty"` // reply address, optional
	Year       string      `json:"year,omitempty"`
	Department string      `json:"department,omitempty"`
	Reason     string      `json:"reason"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewContact holds the fields of the contact form.
type NewContact struct {
	Name       string
	Email      string
	Year       string
	Department string
	Reason     string
}
