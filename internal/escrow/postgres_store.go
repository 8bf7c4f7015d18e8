package escrow

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists escrow data in PostgreSQL.
//
// Balances are NUMERIC(78,0) so a full uint256 fits without loss.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, e *Escrow) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrows (
			id, agent_addr, seller_addr, buyer_addr, token_addr,
			agent_fee_bps, balance, limit_hours, salt,
			status, created_at, updated_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7::NUMERIC(78,0), $8, $9,
			$10, $11, $12, $13
		)`,
		e.ID, e.AgentAddr, e.SellerAddr, e.BuyerAddr, e.TokenAddr,
		e.AgentFeeBPS, e.Balance, e.LimitHours, e.Salt,
		string(e.Status), e.CreatedAt, e.UpdatedAt, nullTime(e.ClosedAt),
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrEscrowExists
	}
	return err
}

const escrowColumns = `id, agent_addr, seller_addr, buyer_addr, token_addr,
		       agent_fee_bps, balance::TEXT, limit_hours, salt,
		       status, created_at, updated_at, closed_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Escrow, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id)

	e, err := scanEscrow(row)
	if err == sql.ErrNoRows {
		return nil, ErrEscrowNotFound
	}
	return e, err
}

func (p *PostgresStore) Update(ctx context.Context, e *Escrow) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE escrows SET
			buyer_addr = $1, balance = $2::NUMERIC(78,0),
			status = $3, updated_at = $4, closed_at = $5
		WHERE id = $6`,
		e.BuyerAddr, e.Balance, string(e.Status), e.UpdatedAt, nullTime(e.ClosedAt), e.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEscrowNotFound
	}
	return nil
}

func (p *PostgresStore) ListByParty(ctx context.Context, addr string, limit int) ([]*Escrow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE seller_addr = $1 OR buyer_addr = $1 OR agent_addr = $1
		ORDER BY created_at DESC
		LIMIT $2`, addr, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEscrow(s scanner) (*Escrow, error) {
	e := &Escrow{}
	var (
		status   string
		closedAt sql.NullTime
	)

	err := s.Scan(
		&e.ID, &e.AgentAddr, &e.SellerAddr, &e.BuyerAddr, &e.TokenAddr,
		&e.AgentFeeBPS, &e.Balance, &e.LimitHours, &e.Salt,
		&status, &e.CreatedAt, &e.UpdatedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = Status(status)
	if closedAt.Valid {
		e.ClosedAt = &closedAt.Time
	}
	return e, nil
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
