package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"stockhistory/internal/core"
)

// Source reads as-of inventory balances from the ERP database.
type Source struct {
	db      *sql.DB
	dialect dialect
	rng     core.AssortmentRange
}

// NewSource wraps an open connection. driver is one of the canonical
// config driver names and selects the query dialect.
func NewSource(db *sql.DB, driver string, rng core.AssortmentRange) (*Source, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return &Source{db: db, dialect: d, rng: rng}, nil
}

// BalancesAsOf returns one balance per standard-item assortment in range,
// counting every qualifying movement dated on or before asOf. Assortments
// with items but no movements come back with zero quantity and value.
func (s *Source) BalancesAsOf(ctx context.Context, asOf core.Date) ([]core.Balance, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.query, s.dialect.args(asOf, s.rng)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances as of %s: %w", asOf, err)
	}
	defer rows.Close()

	var balances []core.Balance
	for rows.Next() {
		var (
			code            string
			quantity, value decimal.NullDecimal
		)
		if err := rows.Scan(&code, &quantity, &value); err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}

		b := core.Balance{
			Assortment: core.NormalizeAssortment(code),
			Quantity:   orZero(quantity).Round(2),
			Value:      orZero(value).Round(2),
		}
		if !s.rng.Contains(b.Assortment) {
			return nil, fmt.Errorf("%w: %q outside %s", core.ErrUnknownAssortment, b.Assortment, s.rng)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read balances as of %s: %w", asOf, err)
	}

	return balances, nil
}

// Driver returns the canonical driver name of the source.
func (s *Source) Driver() string { return s.dialect.name }

func (s *Source) Close() error {
	return s.db.Close()
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
