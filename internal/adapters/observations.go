// Package adapters composes storage backends behind the store ports.
package adapters

import (
	"context"

	"saldo/internal/core"
	"saldo/internal/store"
)

// ObservationOverlay serves everything from the wrapped backend except
// observation reads, which come from a separate source such as a spreadsheet.
// Observation writes still land in the backend.
type ObservationOverlay struct {
	store.Backend
	observations store.ObservationReader
}

var _ store.Backend = (*ObservationOverlay)(nil)

func NewObservationOverlay(backend store.Backend, observations store.ObservationReader) *ObservationOverlay {
	return &ObservationOverlay{Backend: backend, observations: observations}
}

// FetchObservedBalances implements store.ObservationReader
func (o *ObservationOverlay) FetchObservedBalances(ctx context.Context, rng core.DateRange) ([]core.ObservedBalanceSnapshot, error) {
	return o.observations.FetchObservedBalances(ctx, rng)
}

// FetchBillingTotals implements store.ObservationReader
func (o *ObservationOverlay) FetchBillingTotals(ctx context.Context, rng core.DateRange) ([]core.BillingTotal, error) {
	return o.observations.FetchBillingTotals(ctx, rng)
}
