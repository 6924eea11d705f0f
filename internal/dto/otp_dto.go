package dto

import "time"

type SendOTPRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Type     string `json:"type" validate:"max=50"`
	UserName string `json:"user_name" validate:"max=100"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
	Type  string `json:"type" validate:"max=50"`
}

type SendOTPResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	// OTP is only populated in debug mode when mail delivery failed.
	OTP string `json:"otp,omitempty"`
}
