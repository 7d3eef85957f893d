// Package fx resolves exchange rates for cross-currency settlement and
// converts amounts according to the event's rate policy.
package fx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vkarkhanis/splitex/internal/models"
)

// RateSource supplies end-of-day rates for FxEndOfDay events. The wire
// protocol behind it is out of the engine's hands.
type RateSource interface {
	Rate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error)
}

// Conversion is the result of resolving one amount into the settlement
// currency.
type Conversion struct {
	Rate            decimal.Decimal
	ConvertedAmount decimal.Decimal
}

type cacheKey struct {
	pair string
	date string // yyyy-mm-dd
}

// Resolver converts amounts between currencies. It is constructed once per
// process and injected wherever needed; end-of-day rates are cached per
// (pair, date) so a plan generation hits the source at most once per pair.
type Resolver struct {
	source RateSource

	mu    sync.Mutex
	cache map[cacheKey]decimal.Decimal
}

// NewResolver creates a resolver. source may be nil when only predefined
// rate tables are in use.
func NewResolver(source RateSource) *Resolver {
	return &Resolver{
		source: source,
		cache:  make(map[cacheKey]decimal.Decimal),
	}
}

// Resolve returns the rate and converted amount for one settlement, or
// (nil, nil) when from and to are the same currency.
//
// Predefined mode fails with a FxRateMissingError when the table lacks the
// pair; a silently assumed 1.0 would corrupt every settlement downstream.
func (r *Resolver) Resolve(ctx context.Context, amount decimal.Decimal, from, to string, mode models.FxRateMode, predefined map[string]decimal.Decimal, date time.Time) (*Conversion, error) {
	if from == to {
		return nil, nil
	}

	var rate decimal.Decimal
	switch mode {
	case models.FxPredefined:
		var ok bool
		rate, ok = predefined[models.FxPairKey(from, to)]
		if !ok {
			return nil, &models.FxRateMissingError{From: from, To: to}
		}
	case models.FxEndOfDay:
		var err error
		rate, err = r.endOfDayRate(ctx, from, to, date)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown fx rate mode %q", mode)
	}

	return &Conversion{
		Rate:            rate,
		ConvertedAmount: models.RoundMoney(amount.Mul(rate), to),
	}, nil
}

func (r *Resolver) endOfDayRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	if r.source == nil {
		return decimal.Zero, fmt.Errorf("no end-of-day rate source configured")
	}

	key := cacheKey{pair: models.FxPairKey(from, to), date: date.Format("2006-01-02")}

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	rate, err := r.source.Rate(ctx, from, to, date)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch eod rate for %s: %w", key.pair, err)
	}

	r.mu.Lock()
	r.cache[key] = rate
	r.mu.Unlock()
	return rate, nil
}
