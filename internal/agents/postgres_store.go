package agents

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists agent data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed agent store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, a *Agent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agents (address, fee_bps, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`,
		a.Address, a.FeeBPS, a.CreatedAt, a.UpdatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrAgentExists
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, address string) (*Agent, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT address, fee_bps, created_at, updated_at
		FROM agents WHERE address = $1`, address)

	a := &Agent{}
	err := row.Scan(&a.Address, &a.FeeBPS, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (p *PostgresStore) Delete(ctx context.Context, address string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM agents WHERE address = $1`, address)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]*Agent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT address, fee_bps, created_at, updated_at
		FROM agents
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Agent
	for rows.Next() {
		a := &Agent{}
		if err := rows.Scan(&a.Address, &a.FeeBPS, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
