// Package notify delivers one-time codes to users.
package notify

import (
	"context"
	"errors"
	"time"
)

var ErrNotifierUnavailable = errors.New("notifier not configured")

type OTPMessage struct {
	To        string
	UserName  string
	Code      string
	Purpose   string
	ExpiresIn time.Duration
}

type Notifier interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}

// Unconfigured is used when no mail transport is set up.
type Unconfigured struct{}

func (Unconfigured) SendOTP(context.Context, OTPMessage) error {
	return ErrNotifierUnavailable
}
