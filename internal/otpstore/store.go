// Package otpstore keeps one-time codes keyed by (email, purpose) with an expiry.
package otpstore

import (
	"context"
	"time"
)

// Store holds at most one code per (email, purpose).
type Store interface {
	// Save replaces any existing code for (email, purpose).
	Save(ctx context.Context, email, purpose, code string, expiresAt time.Time) error
	// Consume deletes the code and reports true only if it matched and had not
	// expired at now. A code can be consumed once.
	Consume(ctx context.Context, email, purpose, code string, now time.Time) (bool, error)
	// Check reports whether code matches and is unexpired at now, leaving it
	// in place.
	Check(ctx context.Context, email, purpose, code string, now time.Time) (bool, error)
	Delete(ctx context.Context, email, purpose string) error
	// DeleteExpired removes codes that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
