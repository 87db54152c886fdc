package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sharon232323/bidmate/internal/db"
	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/utils"
)

const maxContactReason = 5000

// IContactService records contact requests sent to the site admins.
type IContactService interface {
	CreateContact(ctx context.Context, in models.NewContact) (*models.Contact, error)
	FindContactByID(ctx context.Context, id utils.SixID) (*models.Contact, error)
}

type contactService struct {
	st store.Store
}

// NewContactService creates a new ContactService.
func NewContactService(st store.Store) IContactService {
	return &contactService{st: st}
}

func (s *contactService) CreateContact(ctx context.Context, in models.NewContact) (*models.Contact, error) {
	c := &models.Contact{
		Name:       strings.TrimSpace(in.Name),
		Email:      models.NormalizeEmail(in.Email),
		Year:       strings.TrimSpace(in.Year),
		Department: strings.TrimSpace(in.Department),
		Reason:     strings.TrimSpace(in.Reason),
	}
	switch {
	case c.Name == "":
		return nil, fmt.Errorf("%w: name is required", models.ErrValidation)
	case c.Reason == "":
		return nil, fmt.Errorf("%w: reason is required", models.ErrValidation)
	case utf8.RuneCountInString(c.Reason) > maxContactReason:
		return nil, fmt.Errorf("%w: reason is longer than %d characters", models.ErrValidation, maxContactReason)
	case c.Email != "" && !strings.Contains(c.Email, "@"):
		return nil, fmt.Errorf("%w: email %q is not an address", models.ErrValidation, c.Email)
	}
	for _, f := range [][2]string{{"name", c.Name}, {"email", c.Email}, {"year", c.Year}, {"department", c.Department}} {
		if err := checkSingleLine(f[0], f[1]); err != nil {
			return nil, err
		}
	}

	c.CreatedAt = now()
	err := db.Try(func() error {
		c.ID = utils.NewSixID()
		return s.st.InsertContact(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert contact request (last attempted ID: %s): %w", c.ID, err)
	}
	return c, nil
}

func (s *contactService) FindContactByID(ctx context.Context, id utils.SixID) (*models.Contact, error) {
	c, err := s.st.GetContact(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "contact", id)
	}
	return c, nil
}
