package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/scrapsail/scrapsail-backend/internal/notify"
	"github.com/scrapsail/scrapsail-backend/internal/otpstore"
)

const defaultOTPPurpose = "verification"

var otpSpace = big.NewInt(1_000_000)

// IssuedOTP is the outcome of a send. Code is set only in debug mode when the
// notifier could not deliver it.
type IssuedOTP struct {
	ExpiresAt time.Time
	Code      string
}

type OTPService struct {
	store    otpstore.Store
	notifier notify.Notifier
	limiter  *RateLimiter
	ttl      time.Duration
	debug    bool
	timeout  time.Duration
	now      func() time.Time
}

func NewOTPService(store otpstore.Store, notifier notify.Notifier, limiter *RateLimiter, cfg *config.Config) *OTPService {
	return &OTPService{
		store:    store,
		notifier: notifier,
		limiter:  limiter,
		ttl:      cfg.OTPTTL,
		debug:    cfg.OTPDebugMode,
		timeout:  cfg.ExternalCallTimeout,
		now:      time.Now,
	}
}

// Issue generates a fresh code for (email, purpose), replacing any previous
// one, and hands it to the notifier.
func (s *OTPService) Issue(ctx context.Context, email, purpose, userName string) (*IssuedOTP, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.Validation("Email is required")
	}
	if purpose == "" {
		purpose = defaultOTPPurpose
	}
	if err := s.limiter.Allow(ctx, "otp:"+email); err != nil {
		return nil, err
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.ttl)
	if err := s.store.Save(ctx, email, purpose, code, expiresAt); err != nil {
		return nil, fmt.Errorf("save otp: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.notifier.SendOTP(sendCtx, notify.OTPMessage{
		To:        email,
		UserName:  userName,
		Code:      code,
		Purpose:   purpose,
		ExpiresIn: s.ttl,
	})
	if err == nil {
		slog.Info("otp sent", "purpose", purpose)
		return &IssuedOTP{ExpiresAt: expiresAt}, nil
	}

	if s.debug {
		slog.Warn("otp delivery failed, returning code in debug mode", "purpose", purpose, "error", err)
		return &IssuedOTP{ExpiresAt: expiresAt, Code: code}, nil
	}

	if delErr := s.store.Delete(ctx, email, purpose); delErr != nil {
		slog.Warn("failed to discard undelivered otp", "error", delErr)
	}
	return nil, apperrors.Gateway("Failed to send OTP", err)
}

// Verify consumes the code. A wrong, expired or already used code yields
// false without an error.
func (s *OTPService) Verify(ctx context.Context, email, code, purpose string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return false, nil
	}
	if purpose == "" {
		purpose = defaultOTPPurpose
	}
	ok, err := s.store.Consume(ctx, email, purpose, code, s.now())
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return ok, nil
}

// Check reports whether the code is currently valid without consuming it.
func (s *OTPService) Check(ctx context.Context, email, code, purpose string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return false, nil
	}
	if purpose == "" {
		purpose = defaultOTPPurpose
	}
	ok, err := s.store.Check(ctx, email, purpose, code, s.now())
	if err != nil {
		return false, fmt.Errorf("check otp: %w", err)
	}
	return ok, nil
}

func (s *OTPService) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
