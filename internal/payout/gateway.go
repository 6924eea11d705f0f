// Package payout moves cash for credit withdrawals to a user's bank account.
package payout

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var ErrNotFound = errors.New("payout not found")

type BankAccount struct {
	HolderName    string
	AccountNumber string
	IFSC          string
	BankName      string
	Contact       string
}

// Last4 returns the last four digits of the account number.
func (b BankAccount) Last4() string {
	if len(b.AccountNumber) <= 4 {
		return b.AccountNumber
	}
	return b.AccountNumber[len(b.AccountNumber)-4:]
}

type Request struct {
	// Reference is unique per withdrawal and doubles as the idempotency key.
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Account   BankAccount
	Email     string
	Narration string
	// Destination is the payee account created by an earlier payout, if any.
	Destination string
}

type Payout struct {
	ID          string
	Status      Status
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	// Destination identifies the payee account the cash was routed to.
	Destination string
	FailureText string
	CreatedAt   time.Time
	ArrivalDate *time.Time
}

type Gateway interface {
	CreatePayout(ctx context.Context, req Request) (*Payout, error)
	GetPayout(ctx context.Context, id string) (*Payout, error)
}
