package models

import "strings"

// Principal is the already-authenticated caller of a mutating operation.
// Identity and the approval/admin flags come from the session provider.
type Principal struct {
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
	Approved bool   `json:"approved"`
}

// NormalizeEmail is the canonical form of an owner or bidder identity.
// Every identity is stored and compared in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Owns reports whether the principal is the given owner.
func (p Principal) Owns(owner string) bool {
	email := NormalizeEmail(p.Email)
	return email != "" && email == NormalizeEmail(owner)
}
