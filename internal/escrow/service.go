package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jpgonzalezra/dp2p-engine/internal/amount"
	"github.com/jpgonzalezra/dp2p-engine/internal/fees"
	"github.com/jpgonzalezra/dp2p-engine/internal/logging"
	"github.com/jpgonzalezra/dp2p-engine/internal/metrics"
	"github.com/jpgonzalezra/dp2p-engine/internal/traces"
	"github.com/jpgonzalezra/dp2p-engine/internal/validation"
)

// Create creates a new escrow with the caller as seller. A non-empty
// req.Amount additionally performs the first deposit atomically: if any
// step fails, nothing happened.
func (s *Service) Create(ctx context.Context, callerAddr string, req CreateRequest) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Create", traces.Token(req.TokenAddr))
	defer span.End()

	seller := validation.SanitizeAddress(callerAddr)
	agent := validation.SanitizeAddress(req.AgentAddr)
	token := validation.SanitizeAddress(req.TokenAddr)
	buyer := ZeroAddress
	if req.BuyerAddr != "" {
		buyer = validation.SanitizeAddress(req.BuyerAddr)
	}

	agentFee, registered, err := s.registry.FeeOf(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to look up agent: %w", err)
	}
	if !registered {
		return nil, ErrInvalidAgent
	}

	salt := big.NewInt(0)
	if req.Salt != "" {
		salt, err = amount.Parse(req.Salt)
		if err != nil {
			return nil, err
		}
	}
	if req.LimitHours < 0 || req.LimitHours > MaxLimitHours {
		return nil, ErrInvalidLimit
	}

	id := ComputeID(s.instanceAddr, agent, seller, buyer, agentFee, token, req.LimitHours, salt)
	span.SetAttributes(traces.EscrowID(id))

	unlock := s.locks.Lock(id)
	defer unlock()

	var deposit *big.Int
	if req.Amount != "" {
		deposit, err = amount.Parse(req.Amount)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	escrow := &Escrow{
		ID:          id,
		AgentAddr:   agent,
		SellerAddr:  seller,
		BuyerAddr:   buyer,
		TokenAddr:   token,
		AgentFeeBPS: agentFee,
		Balance:     "0",
		LimitHours:  req.LimitHours,
		Salt:        salt.String(),
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Move the first deposit into custody before the record exists so a
	// failed transfer leaves no trace; compensate if the insert fails.
	var credited, feeShare *big.Int
	if deposit != nil && deposit.Sign() > 0 {
		feeShare, credited, err = fees.Split(deposit, s.treasury.Rate())
		if err != nil {
			return nil, err
		}
		if err := s.ledger.TransferIn(ctx, token, seller, deposit); err != nil {
			return nil, fmt.Errorf("failed to transfer deposit: %w", err)
		}
		escrow.Balance = credited.String()
	}

	if err := s.store.Create(ctx, escrow); err != nil {
		if deposit != nil && deposit.Sign() > 0 {
			_ = s.ledger.TransferOut(ctx, token, seller, deposit)
		}
		if errors.Is(err, ErrEscrowExists) {
			return nil, ErrEscrowExists
		}
		return nil, fmt.Errorf("failed to create escrow record: %w", err)
	}

	if feeShare != nil && feeShare.Sign() > 0 {
		if err := s.treasury.Accrue(ctx, token, feeShare); err != nil {
			// CRITICAL: fee share is in custody but unaccounted.
			logging.L(ctx).Error("CRITICAL: platform fee accrual failed after deposit",
				"escrow_id", id, "token", token, "fee", feeShare.String(), "error", err)
		}
	}

	metrics.EscrowCreatedTotal.Inc()
	logging.L(ctx).Info("escrow created",
		"escrow_id", id, "seller", seller, "agent", agent, "token", token,
		"agent_fee_bps", agentFee, "balance", escrow.Balance)
	s.publish("escrow_created", id, map[string]interface{}{
		"seller":  seller,
		"agent":   agent,
		"buyer":   buyer,
		"token":   token,
		"balance": escrow.Balance,
	})
	if deposit != nil {
		s.publish("deposit", id, map[string]interface{}{
			"amount":   deposit.String(),
			"credited": escrow.Balance,
		})
	}
	return escrow, nil
}

// Deposit adds funds to an open escrow. Seller only. The platform fee is
// skimmed at the treasury's current rate; the remainder joins the balance.
// A zero amount moves nothing but still counts as a deposit event.
func (s *Service) Deposit(ctx context.Context, id, callerAddr, amountStr string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Deposit", traces.EscrowID(id), traces.Amount(amountStr))
	defer span.End()

	amt, err := amount.Parse(amountStr)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	escrow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(callerAddr, escrow.SellerAddr) {
		return nil, ErrUnauthorized
	}

	if amt.Sign() == 0 {
		// No transfer, no state change; the event still fires so
		// indexers see the attempt.
		metrics.EscrowDepositsTotal.Inc()
		s.publish("deposit", id, map[string]interface{}{"amount": "0", "credited": "0"})
		return escrow, nil
	}

	feeShare, credited, err := fees.Split(amt, s.treasury.Rate())
	if err != nil {
		return nil, err
	}

	if err := s.ledger.TransferIn(ctx, escrow.TokenAddr, escrow.SellerAddr, amt); err != nil {
		return nil, fmt.Errorf("failed to transfer deposit: %w", err)
	}

	balance, _ := new(big.Int).SetString(escrow.Balance, 10)
	escrow.Balance = new(big.Int).Add(balance, credited).String()
	escrow.UpdatedAt = s.now()

	if err := s.updateMoved(ctx, escrow, "deposit"); err != nil {
		return nil, err
	}

	if feeShare.Sign() > 0 {
		if err := s.treasury.Accrue(ctx, escrow.TokenAddr, feeShare); err != nil {
			// CRITICAL: fee share is in custody but unaccounted.
			logging.L(ctx).Error("CRITICAL: platform fee accrual failed after deposit",
				"escrow_id", id, "token", escrow.TokenAddr, "fee", feeShare.String(), "error", err)
		}
	}

	metrics.EscrowDepositsTotal.Inc()
	logging.L(ctx).Info("escrow deposit",
		"escrow_id", id, "amount", amt.String(), "credited", credited.String(),
		"platform_fee", feeShare.String())
	s.publish("deposit", id, map[string]interface{}{
		"amount":   amt.String(),
		"credited": credited.String(),
	})
	return escrow, nil
}

// ReleaseWithSellerSignature releases the full balance to the buyer,
// authorized by the seller's signature over the escrow identifier.
// Caller must be the buyer. The agent earns its snapshotted fee.
func (s *Service) ReleaseWithSellerSignature(ctx context.Context, id, callerAddr, sigHex string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.ReleaseWithSellerSignature", traces.EscrowID(id))
	defer span.End()
	return s.releaseWithSignature(ctx, id, callerAddr, sigHex, "release_seller_sig", func(e *Escrow) string {
		return e.SellerAddr
	})
}

// ReleaseWithAgentSignature releases the full balance to the buyer,
// authorized by the agent's signature over the escrow identifier.
func (s *Service) ReleaseWithAgentSignature(ctx context.Context, id, callerAddr, sigHex string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.ReleaseWithAgentSignature", traces.EscrowID(id))
	defer span.End()
	return s.releaseWithSignature(ctx, id, callerAddr, sigHex, "release_agent_sig", func(e *Escrow) string {
		return e.AgentAddr
	})
}

func (s *Service) releaseWithSignature(ctx context.Context, id, callerAddr, sigHex, event string, signerOf func(*Escrow) string) (*Escrow, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	escrow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(callerAddr, escrow.BuyerAddr) || !escrow.HasBuyer() {
		return nil, ErrUnauthorized
	}
	if err := s.verifySignature(escrow, sigHex, signerOf(escrow)); err != nil {
		return nil, err
	}

	out, err := s.payOutAll(ctx, escrow, escrow.BuyerAddr, escrow.AgentFeeBPS, event)
	if err != nil {
		return nil, err
	}
	metrics.EscrowReleasesTotal.WithLabelValues(event).Inc()
	return out, nil
}

// Release pays out part of the balance to the buyer. Seller only, no
// signature: the seller authorizes by being the caller. The agent earns
// its fee on the released amount. The escrow closes when the balance
// reaches zero and stays open otherwise.
func (s *Service) Release(ctx context.Context, id, callerAddr, amountStr string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Release", traces.EscrowID(id), traces.Amount(amountStr))
	defer span.End()

	amt, err := amount.Parse(amountStr)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	escrow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(callerAddr, escrow.SellerAddr) {
		return nil, ErrUnauthorized
	}
	if !escrow.HasBuyer() {
		return nil, ErrBuyerUnassigned
	}

	balance, _ := new(big.Int).SetString(escrow.Balance, 10)
	if amt.Cmp(balance) > 0 {
		return nil, ErrInsufficientBalance
	}

	agentShare, buyerShare, err := fees.Split(amt, escrow.AgentFeeBPS)
	if err != nil {
		return nil, err
	}

	if err := s.transferShares(ctx, escrow, agentShare, escrow.BuyerAddr, buyerShare); err != nil {
		return nil, err
	}

	remaining := new(big.Int).Sub(balance, amt)
	escrow.Balance = remaining.String()
	escrow.UpdatedAt = s.now()
	if remaining.Sign() == 0 {
		s.close(escrow)
	}
	if err := s.updateMoved(ctx, escrow, "release"); err != nil {
		return nil, err
	}

	metrics.EscrowReleasesTotal.WithLabelValues("partial").Inc()
	logging.L(ctx).Info("escrow partial release",
		"escrow_id", id, "amount", amt.String(), "to_buyer", buyerShare.String(),
		"to_agent", agentShare.String(), "remaining", escrow.Balance)
	s.publish("release", id, map[string]interface{}{
		"amount":    amt.String(),
		"toBuyer":   buyerShare.String(),
		"toAgent":   agentShare.String(),
		"remaining": escrow.Balance,
	})
	return escrow, nil
}

// ResolveDisputeBuyer settles a dispute in the buyer's favor. Caller must
// be the buyer presenting the agent's signature, or the owner with no
// signature. The agent path skims the agent fee; the owner path pays the
// full balance.
func (s *Service) ResolveDisputeBuyer(ctx context.Context, id, callerAddr, sigHex string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.ResolveDisputeBuyer", traces.EscrowID(id))
	defer span.End()
	return s.resolveDispute(ctx, id, callerAddr, sigHex, func(e *Escrow) string { return e.BuyerAddr })
}

// ResolveDisputeSeller settles a dispute in the seller's favor, with the
// same authorization paths as ResolveDisputeBuyer.
func (s *Service) ResolveDisputeSeller(ctx context.Context, id, callerAddr, sigHex string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.ResolveDisputeSeller", traces.EscrowID(id))
	defer span.End()
	return s.resolveDispute(ctx, id, callerAddr, sigHex, func(e *Escrow) string { return e.SellerAddr })
}

func (s *Service) resolveDispute(ctx context.Context, id, callerAddr, sigHex string, beneficiaryOf func(*Escrow) string) (*Escrow, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	escrow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// An unassigned buyer slot can never be a beneficiary; without this
	// the owner path would pay the balance to the zero address.
	beneficiary := beneficiaryOf(escrow)
	if beneficiary == ZeroAddress {
		return nil, ErrBuyerUnassigned
	}

	feeBPS := escrow.AgentFeeBPS
	if s.isOwner(callerAddr) {
		// The owner arbitrates directly; no signature, and the agent
		// earns nothing from a settlement it did not sign.
		feeBPS = 0
	} else {
		if !strings.EqualFold(callerAddr, beneficiary) {
			return nil, ErrUnauthorized
		}
		if err := s.verifySignature(escrow, sigHex, escrow.AgentAddr); err != nil {
			return nil, err
		}
	}

	out, err := s.payOutAll(ctx, escrow, beneficiary, feeBPS, "dispute_resolved")
	if err != nil {
		return nil, err
	}
	metrics.EscrowDisputesResolvedTotal.Inc()
	return out, nil
}

// BuyerCancel abandons the purchase. Buyer only. The agent keeps its fee
// for the brokered (then cancelled) deal; the remainder refunds the seller.
func (s *Service) BuyerCancel(ctx context.Context, id, callerAddr string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.BuyerCancel", traces.EscrowID(id))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	escrow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(callerAddr, escrow.BuyerAddr) || !escrow.HasBuyer() {
		return nil, ErrUnauthorized
	}

	out, err := s.payOutAll(ctx, escrow, escrow.SellerAddr, escrow.AgentFeeBPS, "buyer_cancel")
	if err != nil {
		return nil, err
	}
	metrics.EscrowCancelsTotal.WithLabelValues("buyer").Inc()
	return out, nil
}

// Cancel voids the escrow and refunds the seller in full. Agent or owner
// only; no fee is taken.
func (s *Service) Cancel(ctx context.Context, id, callerAddr string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Cancel", traces.EscrowID(id))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	escrow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(callerAddr, escrow.AgentAddr) && !s.isOwner(callerAddr) {
		return nil, ErrUnauthorized
	}

	out, err := s.payOutAll(ctx, escrow, escrow.SellerAddr, 0, "cancel")
	if err != nil {
		return nil, err
	}
	metrics.EscrowCancelsTotal.WithLabelValues("agent").Inc()
	return out, nil
}

// CancelBySeller lets the seller reclaim an escrow nobody took over:
// only while the buyer is unassigned and the limit window is still open.
// Escrows created with limitHours == 0 have no window and can never be
// cancelled this way.
func (s *Service) CancelBySeller(ctx context.Context, id, callerAddr string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.CancelBySeller", traces.EscrowID(id))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	escrow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(callerAddr, escrow.SellerAddr) {
		return nil, ErrUnauthorized
	}
	if escrow.HasBuyer() {
		return nil, ErrEscrowComplete
	}
	deadline, ok := escrow.Deadline()
	if !ok || !s.now().Before(deadline) {
		return nil, ErrLimitExpired
	}

	out, err := s.payOutAll(ctx, escrow, escrow.SellerAddr, 0, "seller_cancel")
	if err != nil {
		return nil, err
	}
	metrics.EscrowCancelsTotal.WithLabelValues("seller").Inc()
	return out, nil
}

// TakeOverAsBuyer assigns the caller as buyer of an unassigned escrow.
// With a limit window, takeover must happen strictly before the deadline;
// limitHours == 0 means the escrow stays open for takeover indefinitely.
func (s *Service) TakeOverAsBuyer(ctx context.Context, id, callerAddr string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.TakeOverAsBuyer", traces.EscrowID(id))
	defer span.End()

	buyer := validation.SanitizeAddress(callerAddr)
	if !validation.IsValidEthAddress(buyer) || buyer == ZeroAddress {
		return nil, ErrUnauthorized
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	escrow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if escrow.HasBuyer() {
		return nil, ErrEscrowComplete
	}
	if deadline, ok := escrow.Deadline(); ok && !s.now().Before(deadline) {
		return nil, ErrLimitExpired
	}

	escrow.BuyerAddr = buyer
	escrow.UpdatedAt = s.now()
	if err := s.store.Update(ctx, escrow); err != nil {
		return nil, fmt.Errorf("failed to update escrow: %w", err)
	}

	metrics.EscrowTakeoversTotal.Inc()
	logging.L(ctx).Info("escrow taken over", "escrow_id", id, "buyer", buyer)
	s.publish("takeover", id, map[string]interface{}{"buyer": buyer})
	return escrow, nil
}

// Get returns an escrow by identifier.
func (s *Service) Get(ctx context.Context, id string) (*Escrow, error) {
	return s.store.Get(ctx, id)
}

// ListByParty returns escrows where addr is seller, buyer, or agent.
func (s *Service) ListByParty(ctx context.Context, addr string, limit int) ([]*Escrow, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByParty(ctx, validation.SanitizeAddress(addr), limit)
}

// load fetches an escrow for a role-gated operation. Missing and closed
// escrows fail exactly like a role mismatch, so probing identifiers
// reveals nothing.
func (s *Service) load(ctx context.Context, id string) (*Escrow, error) {
	escrow, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrEscrowNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if escrow.Status != StatusOpen {
		return nil, ErrUnauthorized
	}
	return escrow, nil
}

func (s *Service) verifySignature(escrow *Escrow, sigHex, signerAddr string) error {
	message, ok := idMessage(escrow.ID)
	if !ok {
		return ErrInvalidSignature
	}
	if !s.verifier.Verify(message, sigHex, common.HexToAddress(signerAddr)) {
		return ErrInvalidSignature
	}
	return nil
}

// payOutAll splits the whole balance at feeBPS, pays the agent share and
// the beneficiary remainder, and closes the escrow.
func (s *Service) payOutAll(ctx context.Context, escrow *Escrow, beneficiary string, feeBPS int64, event string) (*Escrow, error) {
	balance, _ := new(big.Int).SetString(escrow.Balance, 10)

	agentShare, mainShare, err := fees.Split(balance, feeBPS)
	if err != nil {
		return nil, err
	}

	if err := s.transferShares(ctx, escrow, agentShare, beneficiary, mainShare); err != nil {
		return nil, err
	}

	escrow.Balance = "0"
	escrow.UpdatedAt = s.now()
	s.close(escrow)
	if err := s.updateMoved(ctx, escrow, event); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("escrow settled",
		"escrow_id", escrow.ID, "event", event, "to", beneficiary,
		"amount", mainShare.String(), "to_agent", agentShare.String())
	s.publish(event, escrow.ID, map[string]interface{}{
		"to":      beneficiary,
		"amount":  mainShare.String(),
		"toAgent": agentShare.String(),
	})
	return escrow, nil
}

// transferShares pays the agent cut and the main share out of custody.
// The agent transfer goes first; if the main transfer then fails the agent
// payment is pulled back so a failed operation moves nothing.
func (s *Service) transferShares(ctx context.Context, escrow *Escrow, agentShare *big.Int, to string, mainShare *big.Int) error {
	if agentShare.Sign() > 0 {
		if err := s.ledger.TransferOut(ctx, escrow.TokenAddr, escrow.AgentAddr, agentShare); err != nil {
			return fmt.Errorf("failed to pay agent fee: %w", err)
		}
	}
	if mainShare.Sign() > 0 {
		if err := s.ledger.TransferOut(ctx, escrow.TokenAddr, to, mainShare); err != nil {
			if agentShare.Sign() > 0 {
				_ = s.ledger.TransferIn(ctx, escrow.TokenAddr, escrow.AgentAddr, agentShare)
			}
			return fmt.Errorf("failed to pay out escrow: %w", err)
		}
	}
	return nil
}

func (s *Service) close(escrow *Escrow) {
	now := s.now()
	escrow.Status = StatusClosed
	escrow.ClosedAt = &now
}

// updateMoved persists a record after tokens have already moved. Retries
// once; a second failure is logged for manual resolution because the
// transfers have no safe inverse at this point.
func (s *Service) updateMoved(ctx context.Context, escrow *Escrow, event string) error {
	if err := s.store.Update(ctx, escrow); err != nil {
		if retryErr := s.store.Update(ctx, escrow); retryErr != nil {
			logging.L(ctx).Error("CRITICAL: escrow funds moved but record update failed",
				"escrow_id", escrow.ID, "event", event, "error", retryErr)
			return fmt.Errorf("failed to update escrow after fund movement (requires manual resolution): %w", err)
		}
	}
	return nil
}
