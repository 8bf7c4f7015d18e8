package treasury

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
)

// PostgresStore persists platform balances in PostgreSQL.
//
// Balances are NUMERIC(78,0) so a full uint256 fits without loss; deltas
// are applied in SQL so concurrent accruals never lose updates.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed platform balance store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Add(ctx context.Context, token string, delta *big.Int) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO platform_balances (token, balance, updated_at)
		VALUES ($1, $2::NUMERIC(78,0), NOW())
		ON CONFLICT (token) DO UPDATE
		SET balance = platform_balances.balance + $2::NUMERIC(78,0),
		    updated_at = NOW()`,
		token, delta.String(),
	)
	return err
}

func (p *PostgresStore) Balance(ctx context.Context, token string) (*big.Int, error) {
	var s string
	err := p.db.QueryRowContext(ctx, `
		SELECT balance::TEXT FROM platform_balances WHERE token = $1`, token).Scan(&s)
	if err == sql.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed platform balance for token %s: %q", token, s)
	}
	return b, nil
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
