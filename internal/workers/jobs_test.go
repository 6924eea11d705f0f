package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/scrapsail/scrapsail-backend/internal/payout"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		ExternalCallTimeout: 5 * time.Second,
		PayoutCurrency:      "inr",
		CreditRates:         lifecycle.DefaultRates(),
		RedemptionRate:      decimal.NewFromInt(1),
		MinWithdrawal:       decimal.NewFromInt(100),
	}
}

func TestRunnerRunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	var r Runner
	r.Every(ctx, "counter", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	r.Every(ctx, "disabled", 0, func(context.Context) error {
		t.Error("disabled job ran")
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	r.Wait()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestAssignDeferredJob(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testConfig()
	settings := services.NewSettingsService(db, cfg)
	ledger := services.NewLedgerService(db, settings, payout.NewSandbox(), cfg)
	pickups := services.NewPickupService(db, ledger, settings, nil, cfg.ExternalCallTimeout)

	user := testutil.CreateUser(t, db, models.RoleUser, 0)
	p, err := pickups.Create(user.ID, &dto.CreatePickupRequest{
		WasteCategory: "Paper",
		Weight:        decimal.NewFromInt(2),
		PickupAddress: "4 Mill Lane",
		ScheduledDate: "2030-03-01",
	})
	require.NoError(t, err)
	_, err = pickups.Approve(p.ID, "")
	require.NoError(t, err)

	job := AssignDeferred(pickups)
	require.NoError(t, job(context.Background()))

	p, err = pickups.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusAdminApproved, p.Status)

	testutil.CreateUser(t, db, models.RoleCollector, 0)
	require.NoError(t, job(context.Background()))

	p, err = pickups.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCollectorAssigned, p.Status)
}

func TestPollPayoutsSettlesPendingWithdrawals(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testConfig()
	settings := services.NewSettingsService(db, cfg)
	ledger := services.NewLedgerService(db, settings, payout.NewSandbox(), cfg)

	user := testutil.CreateUser(t, db, models.RoleUser, 500)
	res, err := ledger.Withdraw(context.Background(), user.ID, &dto.WithdrawRequest{
		Amount:            200,
		AccountHolderName: "Ravi",
		AccountNumber:     "99887766",
		IFSCCode:          "ICIC0000001",
	})
	require.NoError(t, err)
	require.Equal(t, models.TxPending, res.Transaction.Status)

	// too young to poll
	require.NoError(t, PollPayouts(ledger, time.Hour)(context.Background()))
	var txn models.Transaction
	require.NoError(t, db.First(&txn, res.Transaction.ID).Error)
	assert.Equal(t, models.TxPending, txn.Status)

	require.NoError(t, PollPayouts(ledger, -time.Minute)(context.Background()))
	require.NoError(t, db.First(&txn, res.Transaction.ID).Error)
	assert.Equal(t, models.TxCompleted, txn.Status)
	assert.Equal(t, int64(300), testutil.Reload(t, db, user).CarbonCredits)
}
