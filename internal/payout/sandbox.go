package payout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sandbox is an in-process gateway for local runs. Payouts start pending and
// report completed from the first status check onwards.
type Sandbox struct {
	mu      sync.Mutex
	payouts map[string]*Payout
	byRef   map[string]string
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		payouts: make(map[string]*Payout),
		byRef:   make(map[string]string),
	}
}

func (s *Sandbox) CreatePayout(ctx context.Context, req Request) (*Payout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byRef[req.Reference]; ok {
		p := *s.payouts[id]
		return &p, nil
	}

	dest := req.Destination
	if dest == "" {
		dest = "acct_sandbox_" + uuid.NewString()[:8]
	}
	p := &Payout{
		ID:          "po_sandbox_" + uuid.NewString()[:12],
		Status:      StatusPending,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
		Destination: dest,
		CreatedAt:   time.Now(),
	}
	s.payouts[p.ID] = p
	s.byRef[req.Reference] = p.ID

	out := *p
	return &out, nil
}

func (s *Sandbox) GetPayout(ctx context.Context, id string) (*Payout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.Status == StatusPending {
		p.Status = StatusCompleted
		arrival := time.Now()
		p.ArrivalDate = &arrival
	}
	out := *p
	return &out, nil
}
