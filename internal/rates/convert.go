package rates

import (
	"context"
	"fmt"
	"math"
)

// ConvertWithRates converts amount between two currencies by pivoting
// through the base currency: amount * rates[from] expresses it in RON,
// dividing by rates[to] lands in the target. The result is rounded to two
// decimals, half away from zero; the rounding is final.
//
// When from and to coincide the amount is returned untouched, without
// requiring the code to exist in the rate map.
func ConvertWithRates(amount float64, from, to string, rates map[string]float64) (float64, error) {
	if from == to {
		return amount, nil
	}

	fromRate, ok := rates[from]
	if !ok {
		return 0, fmt.Errorf("%w for %s", ErrRateNotFound, from)
	}
	toRate, ok := rates[to]
	if !ok {
		return 0, fmt.Errorf("%w for %s", ErrRateNotFound, to)
	}

	amountInBase := amount * fromRate
	return round2(amountInBase / toRate), nil
}

// Convert resolves the current rate set through GetLatest and converts with
// it. This is the only place the converter touches the cache manager.
func (s *Service) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if from == to {
		return amount, nil
	}
	latest, err := s.GetLatest(ctx)
	if err != nil {
		return 0, err
	}
	return ConvertWithRates(amount, from, to, latest.Rates)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
