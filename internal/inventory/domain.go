package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// LocationID identifies a stock location.
type LocationID int64

// ProductID identifies a product variant.
type ProductID int64

// ErrLocationNotFound indicates a forecast was requested for an unknown location.
var ErrLocationNotFound = errors.New("inventory: location not found")

// ErrForecastMissing indicates a ledger lookup for a pair that was never loaded.
var ErrForecastMissing = errors.New("inventory: forecast not loaded")

// FetchError reports a failed forecast read for one location.
type FetchError struct {
	Location LocationID
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("inventory: fetch forecast for location %d: %v", e.Location, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Ledger is the in-memory forecast of free quantity per location and product.
// It is owned by a single resolve call and is never written back.
type Ledger struct {
	qty map[LocationID]map[ProductID]decimal.Decimal
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{qty: make(map[LocationID]map[ProductID]decimal.Decimal)}
}

// Set records the free quantity for a pair.
func (l *Ledger) Set(location LocationID, product ProductID, qty decimal.Decimal) {
	products, ok := l.qty[location]
	if !ok {
		products = make(map[ProductID]decimal.Decimal)
		l.qty[location] = products
	}
	products[product] = qty
}

// Available returns the current free quantity for a pair.
func (l *Ledger) Available(location LocationID, product ProductID) (decimal.Decimal, error) {
	if l == nil {
		return decimal.Zero, ErrForecastMissing
	}
	qty, ok := l.qty[location][product]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: location %d product %d", ErrForecastMissing, location, product)
	}
	return qty, nil
}

// Consume subtracts qty from a pair. No floor applies: the balance may go
// negative, and a negative qty increases it.
func (l *Ledger) Consume(location LocationID, product ProductID, qty decimal.Decimal) error {
	current, err := l.Available(location, product)
	if err != nil {
		return err
	}
	l.qty[location][product] = current.Sub(qty)
	return nil
}

// Len returns the number of loaded locations.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.qty)
}

// Snapshot copies the ledger contents.
func (l *Ledger) Snapshot() map[LocationID]map[ProductID]decimal.Decimal {
	out := make(map[LocationID]map[ProductID]decimal.Decimal, l.Len())
	if l == nil {
		return out
	}
	for loc, products := range l.qty {
		cp := make(map[ProductID]decimal.Decimal, len(products))
		for id, qty := range products {
			cp[id] = qty
		}
		out[loc] = cp
	}
	return out
}
