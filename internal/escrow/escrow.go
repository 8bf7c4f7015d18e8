// Package escrow implements the peer-to-peer escrow state machine.
//
// Flow:
//  1. Seller creates an escrow naming an agent, a token, and optionally a buyer
//  2. Seller deposits tokens → platform fee skimmed, remainder held in balance
//  3. Buyer releases with a seller or agent signature → balance paid out,
//     agent fee skimmed
//  4. Disputes resolve with an agent signature (or by the owner directly)
//  5. Cancels refund the seller; an unassigned escrow can be taken over by
//     a buyer inside the limit window
//
// Escrows are identified by a deterministic hash of their creation tuple, so
// an identifier can be recomputed off-system and is consumed forever once used.
package escrow

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/jpgonzalezra/dp2p-engine/internal/signature"
	"github.com/jpgonzalezra/dp2p-engine/internal/syncutil"
)

var (
	ErrEscrowNotFound      = errors.New("escrow not found")
	ErrEscrowExists        = errors.New("escrow already exists")
	ErrUnauthorized        = errors.New("not authorized for this escrow operation")
	ErrInvalidAgent        = errors.New("agent not registered")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrInsufficientBalance = errors.New("insufficient escrow balance")
	ErrBuyerUnassigned     = errors.New("escrow has no buyer")
	ErrEscrowComplete      = errors.New("escrow already has a buyer")
	ErrLimitExpired        = errors.New("escrow limit window expired")
	ErrInvalidLimit        = errors.New("limit hours out of range")
)

// ZeroAddress marks an unassigned buyer.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// MaxLimitHours bounds the takeover window. A hundred years is already
// absurd; anything larger would overflow the duration math in Deadline.
const MaxLimitHours = 24 * 365 * 100

// Status represents the state of an escrow.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Escrow is one escrow record. Balance is integer base units of TokenAddr,
// held after the platform fee skim. AgentFeeBPS is the agent's registry fee
// snapshotted at creation; registry changes never affect it.
type Escrow struct {
	ID          string     `json:"id"`
	AgentAddr   string     `json:"agentAddr"`
	SellerAddr  string     `json:"sellerAddr"`
	BuyerAddr   string     `json:"buyerAddr"` // zero address until assigned or taken over
	TokenAddr   string     `json:"tokenAddr"`
	AgentFeeBPS int64      `json:"agentFeeBps"`
	Balance     string     `json:"balance"`
	LimitHours  int64      `json:"limitHours"` // 0 = no takeover deadline
	Salt        string     `json:"salt"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

// HasBuyer reports whether a buyer has been assigned.
func (e *Escrow) HasBuyer() bool {
	return e.BuyerAddr != "" && e.BuyerAddr != ZeroAddress
}

// Deadline returns the end of the limit window and whether one exists.
func (e *Escrow) Deadline() (time.Time, bool) {
	if e.LimitHours == 0 {
		return time.Time{}, false
	}
	return e.CreatedAt.Add(time.Duration(e.LimitHours) * time.Hour), true
}

// Store persists escrow records.
type Store interface {
	// Create inserts a new record, failing ErrEscrowExists when the
	// identifier was ever used before (closed records included).
	Create(ctx context.Context, escrow *Escrow) error
	Get(ctx context.Context, id string) (*Escrow, error)
	Update(ctx context.Context, escrow *Escrow) error
	ListByParty(ctx context.Context, addr string, limit int) ([]*Escrow, error)
}

// AgentRegistry reads agent fees so escrow doesn't import agents.
type AgentRegistry interface {
	FeeOf(ctx context.Context, address string) (int64, bool, error)
}

// TokenLedger moves tokens between parties and the engine's custody.
type TokenLedger interface {
	TransferIn(ctx context.Context, token, from string, amt *big.Int) error
	TransferOut(ctx context.Context, token, to string, amt *big.Int) error
}

// Treasury supplies the platform fee rate and collects the skim.
type Treasury interface {
	Rate() int64
	Accrue(ctx context.Context, token string, amt *big.Int) error
}

// EventPublisher receives state transition notifications.
type EventPublisher interface {
	Publish(eventType string, data map[string]interface{})
}

// CreateRequest contains the parameters for creating an escrow.
// The authenticated caller is the seller. A non-empty Amount makes the
// create atomic with a first deposit.
type CreateRequest struct {
	AgentAddr  string `json:"agentAddr" binding:"required"`
	BuyerAddr  string `json:"buyerAddr"` // empty or zero address = open for takeover
	TokenAddr  string `json:"tokenAddr" binding:"required"`
	LimitHours int64  `json:"limitHours"`
	Salt       string `json:"salt"`
	Amount     string `json:"amount"`
}

// DepositRequest contains the parameters for a deposit.
type DepositRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// SignatureRequest carries a detached authorization signature over the
// escrow identifier.
type SignatureRequest struct {
	Signature string `json:"signature"`
}

// ReleaseRequest contains the parameters for a partial release.
type ReleaseRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// Service implements escrow business logic.
type Service struct {
	store        Store
	registry     AgentRegistry
	ledger       TokenLedger
	treasury     Treasury
	verifier     signature.Verifier
	instanceAddr string
	ownerAddr    string
	events       EventPublisher
	locks        syncutil.ShardedMutex // per-escrow-id serialization
	now          func() time.Time
}

// NewService creates a new escrow service. instanceAddr is the deployment
// identity mixed into every identifier; ownerAddr is the privileged
// arbiter of last resort.
func NewService(store Store, registry AgentRegistry, ledger TokenLedger, treasury Treasury, verifier signature.Verifier, instanceAddr, ownerAddr string) *Service {
	s := &Service{
		store:        store,
		registry:     registry,
		ledger:       ledger,
		treasury:     treasury,
		verifier:     verifier,
		instanceAddr: strings.ToLower(instanceAddr),
		ownerAddr:    strings.ToLower(ownerAddr),
		now:          time.Now,
	}
	return s
}

// WithEvents adds an event publisher for state transition broadcasts.
func (s *Service) WithEvents(p EventPublisher) *Service {
	s.events = p
	return s
}

// WithClock overrides the service clock. Used by tests to exercise the
// limit window.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) isOwner(addr string) bool {
	return strings.EqualFold(addr, s.ownerAddr)
}

func (s *Service) publish(eventType, id string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["escrowId"] = id
	s.events.Publish(eventType, data)
}
