package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNoQuote = errors.New("orders: no shipping quote for destination")

// Quoter prices delivery to a postal code for a cart. It is an external
// lookup and may be slow or down.
type Quoter interface {
	Quote(ctx context.Context, postalCode string, lines []Line) (int, error)
}

// ZoneQuoter prices by the longest matching postal-code prefix plus a per
// unit surcharge.
type ZoneQuoter struct {
	Zones        map[string]int
	PerUnitCents int
}

func (z ZoneQuoter) Quote(_ context.Context, postalCode string, lines []Line) (int, error) {
	best, base := -1, 0
	for prefix, fee := range z.Zones {
		if strings.HasPrefix(postalCode, prefix) && len(prefix) > best {
			best, base = len(prefix), fee
		}
	}
	if best < 0 {
		return 0, ErrNoQuote
	}
	units := 0
	for _, l := range lines {
		units += l.Qty
	}
	return base + units*z.PerUnitCents, nil
}

// FeeCalculator never fails: a missing, slow or broken quoter degrades to
// the flat fee.
type FeeCalculator struct {
	Quoter    Quoter
	FlatCents int
	Timeout   time.Duration
	Log       *zap.Logger
}

func (f *FeeCalculator) Fee(ctx context.Context, postalCode string, lines []Line) int {
	if f == nil {
		return 0
	}
	if f.Quoter == nil {
		return f.FlatCents
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	fee, err := f.Quoter.Quote(ctx, postalCode, lines)
	if err != nil || fee < 0 {
		if f.Log != nil {
			f.Log.Warn("shipping_quote_fallback",
				zap.String("postal_code", postalCode),
				zap.Int("flat_cents", f.FlatCents),
				zap.Error(err),
			)
		}
		return f.FlatCents
	}
	return fee
}
