package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/scrapsail/scrapsail-backend/internal/events"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
	"github.com/scrapsail/scrapsail-backend/internal/payout"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/testutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:           "test-secret",
		JWTAccessExpiry:     15 * time.Minute,
		JWTRefreshExpiry:    time.Hour,
		OTPTTL:              10 * time.Minute,
		ExternalCallTimeout: 5 * time.Second,
		PayoutCurrency:      "inr",
		CreditRates:         lifecycle.DefaultRates(),
		RedemptionRate:      decimal.NewFromInt(1),
		MinWithdrawal:       decimal.NewFromInt(100),
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PickupEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.PickupEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) actions() []lifecycle.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]lifecycle.Action, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

// fakeGateway records payout requests. New payouts take initialStatus.
type fakeGateway struct {
	mu            sync.Mutex
	requests      []payout.Request
	payouts       map[string]*payout.Payout
	createErr     error
	initialStatus payout.Status
	// onCreate runs before the payout is recorded, outside the lock.
	onCreate func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payouts: map[string]*payout.Payout{}, initialStatus: payout.StatusPending}
}

func (g *fakeGateway) CreatePayout(_ context.Context, req payout.Request) (*payout.Payout, error) {
	if g.onCreate != nil {
		g.onCreate()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	p := &payout.Payout{
		ID:        fmt.Sprintf("po_test_%d", len(g.requests)),
		Status:    g.initialStatus,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Reference: req.Reference,
		CreatedAt: time.Now(),
	}
	p.Destination = req.Destination
	if p.Destination == "" {
		p.Destination = fmt.Sprintf("acct_test_%d", len(g.requests))
	}
	g.payouts[p.ID] = p
	out := *p
	return &out, nil
}

func (g *fakeGateway) GetPayout(_ context.Context, id string) (*payout.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payouts[id]
	if !ok {
		return nil, payout.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (g *fakeGateway) setStatus(id string, status payout.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payouts[id].Status = status
}

type env struct {
	db        *gorm.DB
	cfg       *config.Config
	settings  *services.SettingsService
	ledger    *services.LedgerService
	pickups   *services.PickupService
	publisher *recordingPublisher
	gateway   *fakeGateway
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewDB(t)
	cfg := testConfig()
	settings := services.NewSettingsService(db, cfg)
	gateway := newFakeGateway()
	ledger := services.NewLedgerService(db, settings, gateway, cfg)
	publisher := &recordingPublisher{}

	return &env{
		db:        db,
		cfg:       cfg,
		settings:  settings,
		ledger:    ledger,
		pickups:   services.NewPickupService(db, ledger, settings, publisher, cfg.ExternalCallTimeout),
		publisher: publisher,
		gateway:   gateway,
	}
}
