package postgres

import (
	"context"
	"errors"
	"github.com/ariefcatur/stockledger/internal/catalog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Prices travel as text so NUMERIC never passes through float64.
const productColumns = `sku, name, description, category, buying_price::text, selling_price::text,
	min_stock, active, created_at, updated_at`

type CatalogStore struct{ DB *pgxpool.Pool }

var _ catalog.Store = (*CatalogStore)(nil)

func (s *CatalogStore) Create(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if err := p.Validate(); err != nil {
		return catalog.Product{}, err
	}
	row := s.DB.QueryRow(ctx, `
		INSERT INTO products(sku, name, description, category, buying_price, selling_price, min_stock, active)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8)
		ON CONFLICT (sku) DO NOTHING
		RETURNING `+productColumns,
		p.SKU, p.Name, p.Description, p.Category, p.BuyingPrice.String(), p.SellingPrice.String(), p.MinStock, p.Active,
	)
	out, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrExists
	}
	return out, err
}

func (s *CatalogStore) Update(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if err := p.Validate(); err != nil {
		return catalog.Product{}, err
	}
	row := s.DB.QueryRow(ctx, `
		UPDATE products SET name=$2, description=$3, category=$4, buying_price=$5::numeric,
			selling_price=$6::numeric, min_stock=$7, active=$8, updated_at=now()
		WHERE sku=$1
		RETURNING `+productColumns,
		p.SKU, p.Name, p.Description, p.Category, p.BuyingPrice.String(), p.SellingPrice.String(), p.MinStock, p.Active,
	)
	out, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return out, err
}

func (s *CatalogStore) Get(ctx context.Context, sku string) (catalog.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku=$1`, sku))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, err
}

func (s *CatalogStore) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *CatalogStore) Delete(ctx context.Context, sku string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM products WHERE sku=$1`, sku)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	var buying, selling string
	err := row.Scan(&p.SKU, &p.Name, &p.Description, &p.Category, &buying, &selling,
		&p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	if p.BuyingPrice, err = decimal.NewFromString(buying); err != nil {
		return catalog.Product{}, err
	}
	if p.SellingPrice, err = decimal.NewFromString(selling); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}
