package inventory

import (
	"context"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"
)

// FreeQtyReader reads the free quantity of products at a location, children
// included. Products without stock may be omitted from the result.
type FreeQtyReader interface {
	FreeQuantities(ctx context.Context, location LocationID, products []ProductID) (map[ProductID]decimal.Decimal, error)
}

// ForecastStore loads forecast ledgers.
type ForecastStore struct {
	reader FreeQtyReader
	logger *slog.Logger
}

// NewForecastStore builds ForecastStore.
func NewForecastStore(reader FreeQtyReader, logger *slog.Logger) *ForecastStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastStore{reader: reader, logger: logger}
}

// Load reads the free quantity once per location in demand and returns a
// fresh ledger. Every requested pair is present in the result, at zero when
// the location holds no stock of the product. A failed read aborts the load.
func (s *ForecastStore) Load(ctx context.Context, demand map[LocationID][]ProductID) (*Ledger, error) {
	ledger := NewLedger()
	if len(demand) == 0 {
		return ledger, nil
	}
	locations := make([]LocationID, 0, len(demand))
	for loc := range demand {
		locations = append(locations, loc)
	}
	slices.Sort(locations)

	for _, loc := range locations {
		products := uniqueProducts(demand[loc])
		if len(products) == 0 {
			continue
		}
		free, err := s.reader.FreeQuantities(ctx, loc, products)
		if err != nil {
			return nil, &FetchError{Location: loc, Err: err}
		}
		for _, id := range products {
			qty, ok := free[id]
			if !ok {
				qty = decimal.Zero
			}
			ledger.Set(loc, id, qty)
		}
		s.logger.Debug("forecast loaded", slog.Int64("location_id", int64(loc)), slog.Int("products", len(products)))
	}
	return ledger, nil
}

func uniqueProducts(ids []ProductID) []ProductID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
