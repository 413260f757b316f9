package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/stockledger/internal/sales"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"strings"
	"time"
)

type SaleRepository struct{ DB *pgxpool.Pool }

var _ sales.Repository = (*SaleRepository)(nil)

func (r *SaleRepository) NextNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.DB.QueryRow(ctx, `SELECT nextval('sale_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return sales.FormatNumber(n), nil
}

// Save upserts the sale header and replaces its lines in one transaction.
func (r *SaleRepository) Save(ctx context.Context, s *sales.Sale) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO sales(number, payment_method, notes, status, total, created_at, committed_at, voided_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
		ON CONFLICT (number) DO UPDATE SET
			payment_method=EXCLUDED.payment_method, notes=EXCLUDED.notes, status=EXCLUDED.status,
			total=EXCLUDED.total, committed_at=EXCLUDED.committed_at, voided_at=EXCLUDED.voided_at`,
		s.Number, string(s.Payment), s.Notes, string(s.Status), s.Total.String(), s.CreatedAt, s.CommittedAt, s.VoidedAt,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sale_items WHERE sale_number=$1`, s.Number); err != nil {
		return err
	}
	for i, l := range s.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sale_items(sale_number, line_no, sku, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6::numeric)`,
			s.Number, i+1, l.SKU, l.Name, l.Quantity, l.UnitPrice.String(),
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const saleColumns = `number, payment_method, notes, status, total::text, created_at, committed_at, voided_at`

func (r *SaleRepository) Get(ctx context.Context, number string) (*sales.Sale, error) {
	s, err := scanSale(r.DB.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE number=$1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sales.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, map[string]*sales.Sale{s.Number: s}); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SaleRepository) List(ctx context.Context, f sales.Filter) ([]*sales.Sale, error) {
	var (
		where []string
		args  []any
	)
	cond := func(expr string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(expr, len(args)))
	}
	if !f.From.IsZero() {
		cond("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		cond("created_at < $%d", f.To)
	}
	if f.Payment != "" {
		cond("payment_method = $%d", string(f.Payment))
	}
	if f.Status != "" {
		cond("status = $%d", string(f.Status))
	}

	q := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, number DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*sales.Sale{}
	byNumber := map[string]*sales.Sale{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		byNumber[s.Number] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, byNumber); err != nil {
		return nil, err
	}
	return out, nil
}

// loadLines fills the lines of every sale in byNumber with one query.
func (r *SaleRepository) loadLines(ctx context.Context, byNumber map[string]*sales.Sale) error {
	if len(byNumber) == 0 {
		return nil
	}
	numbers := make([]string, 0, len(byNumber))
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT sale_number, sku, name, quantity, unit_price::text FROM sale_items
		WHERE sale_number = ANY($1) ORDER BY sale_number, line_no`, numbers)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			number, price string
			l             sales.LineItem
		)
		if err := rows.Scan(&number, &l.SKU, &l.Name, &l.Quantity, &price); err != nil {
			return err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return err
		}
		s := byNumber[number]
		s.Lines = append(s.Lines, l)
	}
	return rows.Err()
}

func scanSale(row pgx.Row) (*sales.Sale, error) {
	var (
		s              sales.Sale
		payment, state string
		total          string
		committed      *time.Time
		voided         *time.Time
	)
	if err := row.Scan(&s.Number, &payment, &s.Notes, &state, &total, &s.CreatedAt, &committed, &voided); err != nil {
		return nil, err
	}
	s.Payment = sales.PaymentMethod(payment)
	s.Status = sales.Status(state)
	s.CommittedAt, s.VoidedAt = committed, voided
	var err error
	if s.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	return &s, nil
}
