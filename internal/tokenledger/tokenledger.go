// Package tokenledger abstracts token custody for the escrow engine.
//
// The engine never moves tokens itself; it instructs a TokenLedger
// collaborator. In production that collaborator fronts real ERC20
// transfers; the in-memory implementation here backs demo mode and tests.
// All amounts are integer base units.
package tokenledger

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/jpgonzalezra/dp2p-engine/internal/amount"
)

var ErrInsufficientFunds = errors.New("insufficient token balance")

// TokenLedger moves tokens between external accounts and the engine's
// custody account. TransferIn pulls amount of token from `from` into
// custody; TransferOut pushes amount from custody to `to`. Either fails
// explicitly when the source balance is short; on failure no balance
// changes.
type TokenLedger interface {
	TransferIn(ctx context.Context, token, from string, amt *big.Int) error
	TransferOut(ctx context.Context, token, to string, amt *big.Int) error
	BalanceOf(ctx context.Context, token, account string) (*big.Int, error)
}

// MemoryLedger is an in-memory multi-token ledger.
type MemoryLedger struct {
	engineAddr string
	balances   map[string]map[string]*big.Int // token -> account -> balance
	mu         sync.RWMutex
}

// NewMemoryLedger creates a ledger whose custody account is engineAddr.
func NewMemoryLedger(engineAddr string) *MemoryLedger {
	return &MemoryLedger{
		engineAddr: strings.ToLower(engineAddr),
		balances:   make(map[string]map[string]*big.Int),
	}
}

// Mint credits an account directly. Demo and test setup only.
func (l *MemoryLedger) Mint(token, account string, amt *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(strings.ToLower(token), strings.ToLower(account), amt)
}

func (l *MemoryLedger) TransferIn(ctx context.Context, token, from string, amt *big.Int) error {
	return l.transfer(token, strings.ToLower(from), l.engineAddr, amt)
}

func (l *MemoryLedger) TransferOut(ctx context.Context, token, to string, amt *big.Int) error {
	return l.transfer(token, l.engineAddr, strings.ToLower(to), amt)
}

func (l *MemoryLedger) BalanceOf(ctx context.Context, token, account string) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if accounts, ok := l.balances[strings.ToLower(token)]; ok {
		if b, ok := accounts[strings.ToLower(account)]; ok {
			return new(big.Int).Set(b), nil
		}
	}
	return big.NewInt(0), nil
}

func (l *MemoryLedger) transfer(token, from, to string, amt *big.Int) error {
	if err := amount.Check(amt); err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	token = strings.ToLower(token)
	accounts, ok := l.balances[token]
	if !ok {
		return ErrInsufficientFunds
	}
	src, ok := accounts[from]
	if !ok || src.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}

	src.Sub(src, amt)
	l.credit(token, to, amt)
	return nil
}

// credit assumes l.mu is held.
func (l *MemoryLedger) credit(token, account string, amt *big.Int) {
	accounts, ok := l.balances[token]
	if !ok {
		accounts = make(map[string]*big.Int)
		l.balances[token] = accounts
	}
	b, ok := accounts[account]
	if !ok {
		b = new(big.Int)
		accounts[account] = b
	}
	b.Add(b, amt)
}

// Compile-time assertion that MemoryLedger implements TokenLedger.
var _ TokenLedger = (*MemoryLedger)(nil)
