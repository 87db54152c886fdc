package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/utils"
)

// ItemCache is the read-through cache consulted by FindItemByID.
// Implementations swallow their own failures. Fill must not cache a result
// that an Invalidate issued while load ran has made stale.
type ItemCache interface {
	Get(ctx context.Context, id utils.SixID) (*models.Item, bool)
	Fill(ctx context.Context, id utils.SixID, load func(context.Context) (*models.Item, error)) (*models.Item, error)
	Invalidate(ctx context.Context, id utils.SixID)
}

type noCache struct{}

func (noCache) Get(context.Context, utils.SixID) (*models.Item, bool) { return nil, false }
func (noCache) Invalidate(context.Context, utils.SixID)               {}

func (noCache) Fill(ctx context.Context, _ utils.SixID, load func(context.Context) (*models.Item, error)) (*models.Item, error) {
	return load(ctx)
}

func cacheOrNoop(c ItemCache) ItemCache {
	if c == nil {
		return noCache{}
	}
	return c
}

// maxAmount is the first value that no longer fits NUMERIC(12,2).
var maxAmount = decimal.New(1, 10)

// now is truncated to milliseconds, the precision every store keeps.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func validateAmount(field string, d decimal.Decimal) error {
	switch {
	case d.IsNegative():
		return fmt.Errorf("%w: %s must not be negative", models.ErrValidation, field)
	case !d.Equal(d.Round(2)):
		return fmt.Errorf("%w: %s must have at most two decimal places", models.ErrValidation, field)
	case d.GreaterThanOrEqual(maxAmount):
		return fmt.Errorf("%w: %s is too large", models.ErrValidation, field)
	}
	return nil
}

// checkSingleLine rejects control characters in fields that end up in
// notification headers.
func checkSingleLine(field, v string) error {
	if strings.IndexFunc(v, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: %s must not contain control characters", models.ErrValidation, field)
	}
	return nil
}

// lookupErr turns a store miss into models.ErrNotFound and wraps anything else.
func lookupErr(err error, kind string, id utils.SixID) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", models.ErrNotFound, kind, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}
