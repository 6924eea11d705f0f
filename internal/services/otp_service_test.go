package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/scrapsail/scrapsail-backend/internal/notify"
	"github.com/scrapsail/scrapsail-backend/internal/otpstore"
	"github.com/scrapsail/scrapsail-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.OTPMessage
	err  error
}

func (n *captureNotifier) SendOTP(_ context.Context, msg notify.OTPMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) last(t *testing.T) notify.OTPMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

func newOTPService(t *testing.T, notifier notify.Notifier, debug bool) *OTPService {
	t.Helper()
	cfg := &config.Config{
		OTPTTL:              10 * time.Minute,
		OTPDebugMode:        debug,
		ExternalCallTimeout: time.Second,
	}
	return NewOTPService(otpstore.NewGormStore(testutil.NewDB(t)), notifier, nil, cfg)
}

func TestOTPIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	notifier := &captureNotifier{}
	svc := newOTPService(t, notifier, false)

	issued, err := svc.Issue(ctx, " Asha@Example.com ", "", "Asha")
	require.NoError(t, err)
	assert.Empty(t, issued.Code, "code is never returned when delivery succeeds")
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), issued.ExpiresAt, 5*time.Second)

	msg := notifier.last(t)
	assert.Equal(t, "asha@example.com", msg.To)
	assert.Equal(t, "verification", msg.Purpose)
	assert.Regexp(t, `^\d{6}$`, msg.Code)

	ok, err := svc.Verify(ctx, "asha@example.com", "000000x", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Verify(ctx, "ASHA@example.com", msg.Code, "verification")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify(ctx, "asha@example.com", msg.Code, "")
	require.NoError(t, err)
	assert.False(t, ok, "codes are single use")
}

func TestOTPReissueReplacesPreviousCode(t *testing.T) {
	ctx := context.Background()
	notifier := &captureNotifier{}
	svc := newOTPService(t, notifier, false)

	_, err := svc.Issue(ctx, "user@example.com", "login", "")
	require.NoError(t, err)
	first := notifier.last(t).Code

	_, err = svc.Issue(ctx, "user@example.com", "login", "")
	require.NoError(t, err)
	second := notifier.last(t).Code

	if first != second {
		ok, err := svc.Verify(ctx, "user@example.com", first, "login")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	ok, err := svc.Verify(ctx, "user@example.com", second, "login")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOTPPurposesAreIndependent(t *testing.T) {
	ctx := context.Background()
	notifier := &captureNotifier{}
	svc := newOTPService(t, notifier, false)

	_, err := svc.Issue(ctx, "user@example.com", "withdrawal", "")
	require.NoError(t, err)
	code := notifier.last(t).Code

	ok, err := svc.Verify(ctx, "user@example.com", code, "login")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Verify(ctx, "user@example.com", code, "withdrawal")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOTPExpiry(t *testing.T) {
	ctx := context.Background()
	notifier := &captureNotifier{}
	svc := newOTPService(t, notifier, false)

	base := time.Now()
	svc.now = func() time.Time { return base }
	_, err := svc.Issue(ctx, "user@example.com", "", "")
	require.NoError(t, err)
	code := notifier.last(t).Code

	svc.now = func() time.Time { return base.Add(11 * time.Minute) }
	ok, err := svc.Verify(ctx, "user@example.com", code, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPSweepExpired(t *testing.T) {
	ctx := context.Background()
	svc := newOTPService(t, &captureNotifier{}, false)

	base := time.Now()
	svc.now = func() time.Time { return base }
	_, err := svc.Issue(ctx, "a@example.com", "", "")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "b@example.com", "", "")
	require.NoError(t, err)

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	svc.now = func() time.Time { return base.Add(time.Hour) }
	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOTPDeliveryFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("debug mode returns the code", func(t *testing.T) {
		svc := newOTPService(t, notify.Unconfigured{}, true)
		issued, err := svc.Issue(ctx, "user@example.com", "", "")
		require.NoError(t, err)
		require.Regexp(t, `^\d{6}$`, issued.Code)

		ok, err := svc.Verify(ctx, "user@example.com", issued.Code, "")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("otherwise fails and discards the code", func(t *testing.T) {
		notifier := &captureNotifier{err: errors.New("smtp: connection refused")}
		svc := newOTPService(t, notifier, false)
		_, err := svc.Issue(ctx, "user@example.com", "", "")
		assert.ErrorIs(t, err, apperrors.ErrGateway)

		n, err := svc.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		svc.now = func() time.Time { return time.Now().Add(time.Hour) }
		n, err = svc.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "no code was left behind")
	})
}

func TestOTPRequiresEmail(t *testing.T) {
	svc := newOTPService(t, &captureNotifier{}, false)
	_, err := svc.Issue(context.Background(), "   ", "", "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	ok, err := svc.Verify(context.Background(), "", "123456", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRateLimiterWithoutRedisAllows(t *testing.T) {
	var nilLimiter *RateLimiter
	assert.NoError(t, nilLimiter.Allow(context.Background(), "k"))

	l := NewRateLimiter(nil, "otp-send", 1, time.Minute)
	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Allow(context.Background(), "k"))
	}
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	l := NewRateLimiter(client, "otp-send", 2, time.Minute)
	require.NoError(t, l.Allow(ctx, "a@example.com"))
	require.NoError(t, l.Allow(ctx, "a@example.com"))

	err := l.Allow(ctx, "a@example.com")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 429, appErr.Status())

	// keys are independent
	assert.NoError(t, l.Allow(ctx, "b@example.com"))

	ttl := mr.TTL("ratelimit:otp-send:a@example.com")
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	mr.FastForward(time.Minute + time.Second)
	assert.NoError(t, l.Allow(ctx, "a@example.com"), "window reset")
}

func TestRateLimiterFailsOpenWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	l := NewRateLimiter(client, "otp-send", 1, time.Minute)
	assert.NoError(t, l.Allow(context.Background(), "a@example.com"))
	assert.NoError(t, l.Allow(context.Background(), "a@example.com"))
}
