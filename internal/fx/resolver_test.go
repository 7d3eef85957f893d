package fx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkarkhanis/splitex/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// countingSource records how many times each pair was fetched.
type countingSource struct {
	rates map[string]decimal.Decimal
	calls map[string]int
	err   error
}

func (s *countingSource) Rate(_ context.Context, from, to string, _ time.Time) (decimal.Decimal, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[from+"_"+to]++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	rate, ok := s.rates[from+"_"+to]
	if !ok {
		return decimal.Zero, errors.New("pair not found")
	}
	return rate, nil
}

func TestResolveSameCurrencyIsNoop(t *testing.T) {
	r := NewResolver(nil)
	conv, err := r.Resolve(context.Background(), dec("100"), "USD", "USD",
		models.FxPredefined, nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestResolvePredefinedRate(t *testing.T) {
	r := NewResolver(nil)
	rates := map[string]decimal.Decimal{"USD_INR": dec("82.5")}

	conv, err := r.Resolve(context.Background(), dec("100"), "USD", "INR",
		models.FxPredefined, rates, time.Now())
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.True(t, conv.Rate.Equal(dec("82.5")))
	assert.True(t, conv.ConvertedAmount.Equal(dec("8250")))
}

func TestResolvePredefinedMissingPairFails(t *testing.T) {
	r := NewResolver(nil)

	conv, err := r.Resolve(context.Background(), dec("100"), "USD", "INR",
		models.FxPredefined, map[string]decimal.Decimal{"USD_EUR": dec("0.92")}, time.Now())
	assert.Nil(t, conv)
	assert.ErrorIs(t, err, models.ErrFxRateMissing)

	var missing *models.FxRateMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "USD", missing.From)
	assert.Equal(t, "INR", missing.To)
}

func TestResolveEndOfDayCachesPerPairAndDate(t *testing.T) {
	source := &countingSource{rates: map[string]decimal.Decimal{"USD_INR": dec("83.1")}}
	r := NewResolver(source)
	date := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		conv, err := r.Resolve(context.Background(), dec("10"), "USD", "INR",
			models.FxEndOfDay, nil, date)
		require.NoError(t, err)
		assert.True(t, conv.Rate.Equal(dec("83.1")))
	}
	assert.Equal(t, 1, source.calls["USD_INR"])

	// A different date misses the cache.
	_, err := r.Resolve(context.Background(), dec("10"), "USD", "INR",
		models.FxEndOfDay, nil, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls["USD_INR"])
}

func TestResolveEndOfDaySourceError(t *testing.T) {
	source := &countingSource{err: errors.New("provider down")}
	r := NewResolver(source)

	conv, err := r.Resolve(context.Background(), dec("10"), "USD", "INR",
		models.FxEndOfDay, nil, time.Now())
	assert.Nil(t, conv)
	assert.Error(t, err)
}

func TestResolveEndOfDayWithoutSourceFails(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), dec("10"), "USD", "INR",
		models.FxEndOfDay, nil, time.Now())
	assert.Error(t, err)
}

func TestResolveRoundsToTargetMinorUnits(t *testing.T) {
	r := NewResolver(nil)
	rates := map[string]decimal.Decimal{"USD_JPY": dec("151.337")}

	conv, err := r.Resolve(context.Background(), dec("10"), "USD", "JPY",
		models.FxPredefined, rates, time.Now())
	require.NoError(t, err)
	// 1513.37 rounds to whole yen.
	assert.True(t, conv.ConvertedAmount.Equal(dec("1513")))
}

func TestResolveUnknownModeFails(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), dec("10"), "USD", "INR",
		models.FxRateMode("spot"), nil, time.Now())
	assert.Error(t, err)
}
