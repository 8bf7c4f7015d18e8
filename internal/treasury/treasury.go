// Package treasury accounts platform fees skimmed from escrow deposits.
//
// Accrued balances are tracked per token. Only the owner can withdraw
// them or change the platform fee rate, and the rate is hard-capped at
// 100 basis points (1%) so the skim can never be raised past what
// participants signed up for.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/jpgonzalezra/dp2p-engine/internal/amount"
	"github.com/jpgonzalezra/dp2p-engine/internal/fees"
	"github.com/jpgonzalezra/dp2p-engine/internal/idgen"
	"github.com/jpgonzalezra/dp2p-engine/internal/logging"
	"github.com/jpgonzalezra/dp2p-engine/internal/syncutil"
	"github.com/jpgonzalezra/dp2p-engine/internal/validation"
)

var (
	ErrUnauthorized        = errors.New("caller is not the owner")
	ErrInvalidAddress      = errors.New("invalid withdrawal address")
	ErrInsufficientBalance = errors.New("insufficient platform balance")
)

// ZeroAddress is the all-zero address, never a valid withdrawal target.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Store persists accrued platform balances per token.
type Store interface {
	// Add applies a signed delta to a token's accrued balance, creating
	// the row at zero if absent.
	Add(ctx context.Context, token string, delta *big.Int) error
	Balance(ctx context.Context, token string) (*big.Int, error)
}

// TokenLedger pays out withdrawals from the engine's custody account.
type TokenLedger interface {
	TransferOut(ctx context.Context, token, to string, amt *big.Int) error
}

// EventPublisher receives treasury change notifications.
type EventPublisher interface {
	Publish(eventType string, data map[string]interface{})
}

// WithdrawRequest contains the parameters for a platform withdrawal.
// An empty Amount means the full accrued balance of each token.
type WithdrawRequest struct {
	Tokens []string `json:"tokens" binding:"required"`
	To     string   `json:"to" binding:"required"`
	Amount string   `json:"amount"`
}

// Withdrawal reports one token's payout.
type Withdrawal struct {
	ID     string `json:"id"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Service implements platform treasury business logic.
type Service struct {
	store     Store
	ledger    TokenLedger
	ownerAddr string
	rateBPS   atomic.Int64
	events    EventPublisher
	locks     syncutil.ShardedMutex // serializes accrual/withdrawal per token
}

// NewService creates a treasury service with the given initial fee rate.
func NewService(store Store, ledger TokenLedger, ownerAddr string, initialRateBPS int64) *Service {
	s := &Service{
		store:     store,
		ledger:    ledger,
		ownerAddr: strings.ToLower(ownerAddr),
	}
	s.rateBPS.Store(initialRateBPS)
	return s
}

// WithEvents adds an event publisher for treasury change broadcasts.
func (s *Service) WithEvents(p EventPublisher) *Service {
	s.events = p
	return s
}

// Rate returns the current platform fee rate in basis points.
func (s *Service) Rate() int64 {
	return s.rateBPS.Load()
}

// SetRate changes the platform fee rate. Owner only; capped at 100 bp.
// Escrows are unaffected: the rate is read at deposit time only.
func (s *Service) SetRate(ctx context.Context, callerAddr string, rateBPS int64) error {
	if !s.isOwner(callerAddr) {
		return ErrUnauthorized
	}
	if err := fees.CheckPlatformFee(rateBPS); err != nil {
		return err
	}

	s.rateBPS.Store(rateBPS)
	logging.L(ctx).Info("platform fee changed", "fee_bps", rateBPS)
	if s.events != nil {
		s.events.Publish("fee_changed", map[string]interface{}{"feeBps": rateBPS})
	}
	return nil
}

// Accrue credits a deposit's platform fee share to the token's balance.
// Called by the escrow service; the tokens are already in custody.
func (s *Service) Accrue(ctx context.Context, token string, amt *big.Int) error {
	if err := amount.Check(amt); err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}

	token = strings.ToLower(token)
	unlock := s.locks.Lock(token)
	defer unlock()

	if err := s.store.Add(ctx, token, amt); err != nil {
		return fmt.Errorf("failed to accrue platform fee: %w", err)
	}
	return nil
}

// Withdraw pays accrued balances out to req.To. Owner only. With an
// explicit amount, every listed token pays exactly that amount or the
// whole request fails before any transfer for that token happens.
func (s *Service) Withdraw(ctx context.Context, callerAddr string, req WithdrawRequest) ([]Withdrawal, error) {
	if !s.isOwner(callerAddr) {
		return nil, ErrUnauthorized
	}

	to := validation.SanitizeAddress(req.To)
	if !validation.IsValidEthAddress(to) || to == ZeroAddress {
		return nil, ErrInvalidAddress
	}

	var requested *big.Int
	if req.Amount != "" {
		var err error
		requested, err = amount.Parse(req.Amount)
		if err != nil {
			return nil, err
		}
	}

	var result []Withdrawal
	for _, token := range req.Tokens {
		w, err := s.withdrawToken(ctx, strings.ToLower(token), to, requested)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}

	if s.events != nil {
		s.events.Publish("platform_withdraw", map[string]interface{}{
			"to":          to,
			"withdrawals": result,
		})
	}
	return result, nil
}

func (s *Service) withdrawToken(ctx context.Context, token, to string, requested *big.Int) (Withdrawal, error) {
	unlock := s.locks.Lock(token)
	defer unlock()

	balance, err := s.store.Balance(ctx, token)
	if err != nil {
		return Withdrawal{}, fmt.Errorf("failed to read platform balance: %w", err)
	}

	amt := balance
	if requested != nil {
		if requested.Cmp(balance) > 0 {
			return Withdrawal{}, ErrInsufficientBalance
		}
		amt = requested
	}

	if amt.Sign() > 0 {
		if err := s.store.Add(ctx, token, new(big.Int).Neg(amt)); err != nil {
			return Withdrawal{}, fmt.Errorf("failed to debit platform balance: %w", err)
		}
		if err := s.ledger.TransferOut(ctx, token, to, amt); err != nil {
			// Compensate: restore the accrued balance
			_ = s.store.Add(ctx, token, amt)
			return Withdrawal{}, fmt.Errorf("failed to pay out platform balance: %w", err)
		}
	}

	logging.L(ctx).Info("platform withdrawal",
		"token", token, "to", to, "amount", amount.Format(amt))

	return Withdrawal{
		ID:     idgen.WithPrefix("wd_"),
		Token:  token,
		To:     to,
		Amount: amount.Format(amt),
	}, nil
}

// BalanceOf returns the accrued platform balance for a token.
func (s *Service) BalanceOf(ctx context.Context, token string) (*big.Int, error) {
	return s.store.Balance(ctx, strings.ToLower(token))
}

func (s *Service) isOwner(callerAddr string) bool {
	return strings.EqualFold(callerAddr, s.ownerAddr)
}
