// Package inventory owns product stock. Ledger is the only writer of stock
// levels: it reserves a whole demand set or nothing.
package inventory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/rihla-backoffice/internal/domain"
)

// ProductNotFoundError indicates a demand references an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates a demand exceeds the product's stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// MaxQuantity is the largest number of units of one product a reservation
// may ask for. Stock levels are stored as 32-bit integers.
const MaxQuantity = math.MaxInt32

// Demand is a request for Quantity units of a product.
type Demand struct {
	ProductID string
	Quantity  int
}

// Store is the stock primitive set a Ledger needs. Both methods must be called
// inside a transaction for the reservation to be atomic.
type Store interface {
	// LockStock locks the stock rows of ids and returns their current levels.
	// Unknown ids are absent from the result.
	LockStock(ctx context.Context, ids []string) (map[string]int, error)
	// DecrementStock subtracts qty from a product's stock only if the stock is
	// at least qty. It reports whether the row was written.
	DecrementStock(ctx context.Context, id string, qty int) (bool, error)
}

// Ledger reserves stock for orders.
type Ledger struct {
	store Store
	tx    domain.Transactor
}

// NewLedger returns a Ledger writing through store inside tx.
func NewLedger(store Store, tx domain.Transactor) *Ledger {
	return &Ledger{store: store, tx: tx}
}

// Reserve validates every demand and then decrements stock for all of them.
// If any demand fails, no stock is changed. Demands for the same product are
// merged. Rows are locked in ascending id order so concurrent reservations
// over overlapping products cannot deadlock each other.
func (l *Ledger) Reserve(ctx context.Context, demands []Demand) error {
	merged, err := Merge(demands)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}

	return l.tx.InTx(ctx, func(ctx context.Context) error {
		ids := make([]string, len(merged))
		for i, d := range merged {
			ids[i] = d.ProductID
		}

		stock, err := l.store.LockStock(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "lock stock")
		}

		// Validate everything before the first write.
		for _, d := range merged {
			available, ok := stock[d.ProductID]
			if !ok {
				return &ProductNotFoundError{ProductID: d.ProductID}
			}
			if available < d.Quantity {
				return &InsufficientStockError{
					ProductID: d.ProductID,
					Requested: d.Quantity,
					Available: available,
				}
			}
		}

		for _, d := range merged {
			ok, err := l.store.DecrementStock(ctx, d.ProductID, d.Quantity)
			if err != nil {
				return errors.Wrapf(err, "decrement stock %s", d.ProductID)
			}
			if !ok {
				return fmt.Errorf("%w: stock for product %s changed after validation", domain.ErrConflict, d.ProductID)
			}
		}
		return nil
	})
}

// Merge sums quantities per product and returns demands sorted by product id.
// A demand with a quantity below one, or a per-product total above
// MaxQuantity, is a validation error.
func Merge(demands []Demand) ([]Demand, error) {
	totals := make(map[string]int, len(demands))
	for _, d := range demands {
		if d.ProductID == "" {
			return nil, domain.Invalid("product_id", "must not be empty")
		}
		if d.Quantity < 1 {
			return nil, domain.Invalid("quantity", fmt.Sprintf("must be at least 1 for product %s", d.ProductID))
		}
		if d.Quantity > MaxQuantity-totals[d.ProductID] {
			return nil, domain.Invalid("quantity", fmt.Sprintf("total for product %s exceeds %d", d.ProductID, MaxQuantity))
		}
		totals[d.ProductID] += d.Quantity
	}

	merged := make([]Demand, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Demand{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(merged, func(a, b Demand) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return merged, nil
}
