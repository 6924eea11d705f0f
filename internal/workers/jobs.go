package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/scrapsail/scrapsail-backend/internal/services"
)

const batchSize = 50

// AssignDeferred assigns collectors to approved pickups that had none
// available at approval time.
func AssignDeferred(pickups *services.PickupService) Job {
	return func(ctx context.Context) error {
		n, err := pickups.AssignDeferred(batchSize)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("deferred pickups assigned", "count", n)
		}
		return nil
	}
}

func SweepOTPs(otp *services.OTPService) Job {
	return func(ctx context.Context) error {
		n, err := otp.SweepExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("expired otps deleted", "count", n)
		}
		return nil
	}
}

// PollPayouts refreshes withdrawals that have stayed pending for longer than
// minAge, for gateways whose webhooks were missed.
func PollPayouts(ledger *services.LedgerService, minAge time.Duration) Job {
	return func(ctx context.Context) error {
		pending, err := ledger.PendingWithdrawals(time.Now().Add(-minAge), batchSize)
		if err != nil {
			return err
		}

		settled := 0
		for _, txn := range pending {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			updated, _, err := ledger.RefreshWithdrawal(ctx, txn.UserID, txn.ID)
			if err != nil {
				slog.Warn("payout refresh failed", "transaction_id", txn.ID, "user_id", txn.UserID, "error", err)
				continue
			}
			if updated.Status != txn.Status {
				settled++
			}
		}
		if settled > 0 {
			slog.Info("pending withdrawals settled", "count", settled)
		}
		return nil
	}
}
