package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/scrapsail/scrapsail-backend/internal/config"
	"gopkg.in/gomail.v2"
)

var otpTemplate = template.Must(template.New("otp").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #2e7d32;">ScrapSail verification code</h2>
  <p>Hello {{.UserName}},</p>
  <p>Use the code below to confirm your {{.Purpose}} request:</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>This code expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>
</div>`))

// SMTPNotifier sends OTP mails through an SMTP relay.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPNotifier(cfg *config.Config) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
	}
}

func (n *SMTPNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	name := msg.UserName
	if name == "" {
		name = "there"
	}

	var body bytes.Buffer
	if err := otpTemplate.Execute(&body, map[string]interface{}{
		"UserName": name,
		"Purpose":  msg.Purpose,
		"Code":     msg.Code,
		"Minutes":  int(msg.ExpiresIn.Minutes()),
	}); err != nil {
		return fmt.Errorf("render otp mail: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", "Your ScrapSail verification code")
	m.SetBody("text/html", body.String())

	// gomail has no context support; the send keeps running after ctx ends
	// but the caller stops waiting.
	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send otp mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send otp mail: %w", ctx.Err())
	}
}
