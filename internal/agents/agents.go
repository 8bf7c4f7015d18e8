// Package agents implements the escrow agent registry.
//
// Agents are third parties trusted to arbitrate escrows. The registry is
// owner-gated: only the configured owner address may add or remove agents.
// Each agent carries a fee rate in basis points that escrows snapshot at
// creation time, so removing an agent or changing its fee never affects
// escrows already open.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jpgonzalezra/dp2p-engine/internal/fees"
	"github.com/jpgonzalezra/dp2p-engine/internal/logging"
	"github.com/jpgonzalezra/dp2p-engine/internal/validation"
)

var (
	ErrUnauthorized   = errors.New("caller is not the owner")
	ErrInvalidAddress = errors.New("invalid agent address")
	ErrAgentExists    = errors.New("agent already registered")
	ErrAgentNotFound  = errors.New("agent not registered")
)

// ZeroAddress is the all-zero address, rejected everywhere an identity is
// expected.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Agent is a registered escrow arbiter.
type Agent struct {
	Address   string    `json:"address"`
	FeeBPS    int64     `json:"feeBps"` // 0 is a valid rate, distinct from not registered
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists agent records.
type Store interface {
	Create(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, address string) (*Agent, error)
	Delete(ctx context.Context, address string) error
	List(ctx context.Context, limit int) ([]*Agent, error)
}

// EventPublisher receives registry change notifications.
type EventPublisher interface {
	Publish(eventType string, data map[string]interface{})
}

// AddRequest contains the parameters for registering an agent.
type AddRequest struct {
	Address string `json:"address" binding:"required"`
	FeeBPS  int64  `json:"feeBps"`
}

// Service implements agent registry business logic.
type Service struct {
	store     Store
	ownerAddr string
	events    EventPublisher
	now       func() time.Time
}

// NewService creates a new agent registry service.
func NewService(store Store, ownerAddr string) *Service {
	return &Service{
		store:     store,
		ownerAddr: strings.ToLower(ownerAddr),
		now:       time.Now,
	}
}

// WithEvents adds an event publisher for registry change broadcasts.
func (s *Service) WithEvents(p EventPublisher) *Service {
	s.events = p
	return s
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Add registers a new agent. Owner only.
func (s *Service) Add(ctx context.Context, callerAddr string, req AddRequest) (*Agent, error) {
	if !s.isOwner(callerAddr) {
		return nil, ErrUnauthorized
	}

	addr := validation.SanitizeAddress(req.Address)
	if !validation.IsValidEthAddress(addr) || addr == ZeroAddress {
		return nil, ErrInvalidAddress
	}
	if err := fees.CheckAgentFee(req.FeeBPS); err != nil {
		return nil, err
	}

	if _, err := s.store.Get(ctx, addr); err == nil {
		return nil, ErrAgentExists
	} else if !errors.Is(err, ErrAgentNotFound) {
		return nil, fmt.Errorf("failed to check agent: %w", err)
	}

	now := s.now()
	agent := &Agent{
		Address:   addr,
		FeeBPS:    req.FeeBPS,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	logging.L(ctx).Info("agent registered", "address", addr, "fee_bps", req.FeeBPS)
	if s.events != nil {
		s.events.Publish("agent_added", map[string]interface{}{
			"address": addr,
			"feeBps":  req.FeeBPS,
		})
	}
	return agent, nil
}

// Remove deregisters an agent. Owner only. Escrows that snapshotted this
// agent's fee are unaffected.
func (s *Service) Remove(ctx context.Context, callerAddr, address string) error {
	if !s.isOwner(callerAddr) {
		return ErrUnauthorized
	}

	addr := validation.SanitizeAddress(address)
	if !validation.IsValidEthAddress(addr) || addr == ZeroAddress {
		return ErrInvalidAddress
	}
	if err := s.store.Delete(ctx, addr); err != nil {
		return err
	}

	logging.L(ctx).Info("agent removed", "address", addr)
	if s.events != nil {
		s.events.Publish("agent_removed", map[string]interface{}{"address": addr})
	}
	return nil
}

// FeeOf returns the agent's current fee rate and whether it is registered.
// A registered agent with fee 0 returns (0, true, nil).
func (s *Service) FeeOf(ctx context.Context, address string) (int64, bool, error) {
	agent, err := s.store.Get(ctx, validation.SanitizeAddress(address))
	if errors.Is(err, ErrAgentNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return agent.FeeBPS, true, nil
}

// Get returns an agent by address.
func (s *Service) Get(ctx context.Context, address string) (*Agent, error) {
	return s.store.Get(ctx, validation.SanitizeAddress(address))
}

// List returns registered agents.
func (s *Service) List(ctx context.Context, limit int) ([]*Agent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, limit)
}

func (s *Service) isOwner(callerAddr string) bool {
	return strings.EqualFold(callerAddr, s.ownerAddr)
}
