package postgres

import (
	"context"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `seq, id::text, sku, delta, reason, COALESCE(sale_ref, ''), reference, created_at`

// LedgerStore is the durable ledger.Store.
type LedgerStore struct{ DB *pgxpool.Pool }

var _ ledger.Store = (*LedgerStore)(nil)

// Append writes all entries in one transaction: a failure on any row rolls
// back the rest.
func (s *LedgerStore) Append(ctx context.Context, entries ...ledger.Entry) ([]ledger.Entry, error) {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, &ledger.StorageError{Op: "append", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]ledger.Entry, 0, len(entries))
	for _, e := range entries {
		e.ID = uuid.NewString()
		err := tx.QueryRow(ctx, `
			INSERT INTO ledger_entries(id, sku, delta, reason, sale_ref, reference)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
			RETURNING seq, created_at`,
			e.ID, e.SKU, e.Delta, string(e.Reason), e.SaleRef, e.Reference,
		).Scan(&e.Seq, &e.CreatedAt)
		if err != nil {
			return nil, &ledger.StorageError{Op: "append", Err: err}
		}
		out = append(out, e)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &ledger.StorageError{Op: "append", Err: err}
	}
	return out, nil
}

func (s *LedgerStore) EntriesFor(ctx context.Context, sku string) ([]ledger.Entry, error) {
	return s.query(ctx, "entries_for", `SELECT `+entryColumns+` FROM ledger_entries WHERE sku=$1 ORDER BY seq`, sku)
}

func (s *LedgerStore) EntriesForSale(ctx context.Context, saleRef string) ([]ledger.Entry, error) {
	return s.query(ctx, "entries_for_sale", `SELECT `+entryColumns+` FROM ledger_entries WHERE sale_ref=$1 ORDER BY seq`, saleRef)
}

func (s *LedgerStore) SKUs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT DISTINCT sku FROM ledger_entries ORDER BY sku`)
	if err != nil {
		return nil, &ledger.StorageError{Op: "skus", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, &ledger.StorageError{Op: "skus", Err: err}
		}
		out = append(out, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, &ledger.StorageError{Op: "skus", Err: err}
	}
	return out, nil
}

func (s *LedgerStore) query(ctx context.Context, op, sql string, arg string) ([]ledger.Entry, error) {
	rows, err := s.DB.Query(ctx, sql, arg)
	if err != nil {
		return nil, &ledger.StorageError{Op: op, Err: err}
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var reason string
		if err := rows.Scan(&e.Seq, &e.ID, &e.SKU, &e.Delta, &reason, &e.SaleRef, &e.Reference, &e.CreatedAt); err != nil {
			return nil, &ledger.StorageError{Op: op, Err: err}
		}
		e.Reason = ledger.Reason(reason)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &ledger.StorageError{Op: op, Err: err}
	}
	return out, nil
}
