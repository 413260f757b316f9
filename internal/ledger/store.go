package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Store is the append-only record of stock movements. Append is the only
// mutation and is all-or-nothing across the entries passed in one call.
type Store interface {
	// Append persists entries atomically and returns them stamped with
	// ID, Seq and CreatedAt, in the order given.
	Append(ctx context.Context, entries ...Entry) ([]Entry, error)
	// EntriesFor returns every entry for sku ordered by Seq.
	EntriesFor(ctx context.Context, sku string) ([]Entry, error)
	// EntriesForSale returns every entry tagged with saleRef ordered by Seq.
	EntriesForSale(ctx context.Context, saleRef string) ([]Entry, error)
	// SKUs lists every SKU that has at least one entry.
	SKUs(ctx context.Context) ([]string, error)
}

// StorageError reports a durability failure. Nothing from the failed call
// may be assumed written.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("ledger %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err carries a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
