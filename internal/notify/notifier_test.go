package notify

import (
	"context"
	"testing"
	"time"

	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestUnconfiguredIsUnavailable(t *testing.T) {
	err := Unconfigured{}.SendOTP(context.Background(), OTPMessage{To: "a@example.com", Code: "123456"})
	assert.ErrorIs(t, err, ErrNotifierUnavailable)
}

func TestSMTPNotifierReportsDialFailure(t *testing.T) {
	n := NewSMTPNotifier(&config.Config{SMTPHost: "127.0.0.1", SMTPPort: 1, SMTPFrom: "no-reply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := n.SendOTP(ctx, OTPMessage{To: "a@example.com", Code: "123456", Purpose: "pickup", ExpiresIn: 10 * time.Minute})
	assert.Error(t, err)
}

func TestSMTPNotifierHonoursCancelledContext(t *testing.T) {
	n := NewSMTPNotifier(&config.Config{SMTPHost: "10.255.255.1", SMTPPort: 25, SMTPFrom: "no-reply@example.com"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.SendOTP(ctx, OTPMessage{To: "a@example.com", Code: "123456"})
	assert.Error(t, err)
}
