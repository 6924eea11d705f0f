package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/account"
	stripePayout "github.com/stripe/stripe-go/v76/payout"
	"github.com/stripe/stripe-go/v76/transfer"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Stripe pays users through Connect. Each payee gets a custom connected
// account holding their bank account; a withdrawal transfers the cash from
// the platform balance to that account and pays it out to the bank.
// Payout ids are "<account>/<payout>" since payouts live on the connected
// account.
type Stripe struct {
	accounts  account.Client
	transfers transfer.Client
	payouts   stripePayout.Client
	country   string
}

func NewStripe(apiKey, country string) *Stripe {
	return newStripe(stripe.GetBackend(stripe.APIBackend), apiKey, country)
}

func newStripe(b stripe.Backend, apiKey, country string) *Stripe {
	return &Stripe{
		accounts:  account.Client{B: b, Key: apiKey},
		transfers: transfer.Client{B: b, Key: apiKey},
		payouts:   stripePayout.Client{B: b, Key: apiKey},
		country:   strings.ToUpper(country),
	}
}

func (s *Stripe) CreatePayout(ctx context.Context, req Request) (*Payout, error) {
	currency := strings.ToLower(req.Currency)
	amount := toMinorUnits(req.Amount)

	dest, err := s.destination(ctx, req, currency)
	if err != nil {
		return nil, err
	}

	tp := &stripe.TransferParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		Destination:   stripe.String(dest),
		TransferGroup: stripe.String(req.Reference),
		Description:   stripe.String(req.Narration),
	}
	tp.Context = ctx
	tp.SetIdempotencyKey(req.Reference + "-transfer")
	if _, err := s.transfers.New(tp); err != nil {
		return nil, fmt.Errorf("failed to transfer to connected account: %w", err)
	}

	pp := &stripe.PayoutParams{
		Amount:              stripe.Int64(amount),
		Currency:            stripe.String(currency),
		Description:         stripe.String(req.Narration),
		StatementDescriptor: stripe.String("SCRAPSAIL CREDITS"),
	}
	pp.Context = ctx
	pp.SetStripeAccount(dest)
	pp.SetIdempotencyKey(req.Reference + "-payout")
	pp.AddMetadata("reference", req.Reference)
	pp.AddMetadata("account_last4", req.Account.Last4())

	result, err := s.payouts.New(pp)
	if err != nil {
		return nil, fmt.Errorf("failed to create Stripe payout: %w", err)
	}
	return fromStripe(result, dest), nil
}

// destination creates the payee's connected account on first use and
// otherwise replaces its default bank account with the one requested.
func (s *Stripe) destination(ctx context.Context, req Request, currency string) (string, error) {
	bank := &stripe.AccountExternalAccountParams{
		AccountNumber:     stripe.String(req.Account.AccountNumber),
		RoutingNumber:     stripe.String(strings.ToUpper(req.Account.IFSC)),
		AccountHolderName: stripe.String(req.Account.HolderName),
		AccountHolderType: stripe.String("individual"),
		Country:           stripe.String(s.country),
		Currency:          stripe.String(currency),
	}

	if req.Destination != "" {
		params := &stripe.AccountParams{ExternalAccount: bank}
		params.Context = ctx
		if _, err := s.accounts.Update(req.Destination, params); err != nil {
			return "", fmt.Errorf("failed to update payee bank account: %w", err)
		}
		return req.Destination, nil
	}

	params := &stripe.AccountParams{
		Type:            stripe.String(string(stripe.AccountTypeCustom)),
		Country:         stripe.String(s.country),
		Email:           stripe.String(req.Email),
		BusinessType:    stripe.String(string(stripe.AccountBusinessTypeIndividual)),
		ExternalAccount: bank,
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference + "-account")
	params.AddMetadata("email", req.Email)

	acct, err := s.accounts.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create payee account: %w", err)
	}
	return acct.ID, nil
}

func (s *Stripe) GetPayout(ctx context.Context, id string) (*Payout, error) {
	dest, payoutID := splitPayoutID(id)
	params := &stripe.PayoutParams{}
	params.Context = ctx
	if dest != "" {
		params.SetStripeAccount(dest)
	}

	result, err := s.payouts.Get(payoutID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch Stripe payout: %w", err)
	}
	return fromStripe(result, dest), nil
}

// ParseWebhook verifies a Stripe webhook signature and returns the payout
// carried by payout.* events, including those from connected accounts.
// Other event types return nil.
func ParseWebhook(payload []byte, signature, secret string) (*Payout, string, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, "", fmt.Errorf("invalid webhook: %w", err)
	}
	eventType := string(event.Type)
	if !strings.HasPrefix(eventType, "payout.") {
		return nil, eventType, nil
	}

	var p stripe.Payout
	if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
		return nil, eventType, fmt.Errorf("decode payout: %w", err)
	}
	return fromStripe(&p, event.Account), eventType, nil
}

func fromStripe(p *stripe.Payout, dest string) *Payout {
	id := p.ID
	if dest != "" {
		id = dest + "/" + p.ID
	}
	out := &Payout{
		ID:          id,
		Status:      mapStripeStatus(p.Status),
		Amount:      decimal.New(p.Amount, -2),
		Currency:    string(p.Currency),
		Destination: dest,
		FailureText: p.FailureMessage,
		CreatedAt:   time.Unix(p.Created, 0),
	}
	if p.Metadata != nil {
		out.Reference = p.Metadata["reference"]
	}
	if p.ArrivalDate > 0 {
		arrival := time.Unix(p.ArrivalDate, 0)
		out.ArrivalDate = &arrival
	}
	return out
}

func splitPayoutID(id string) (dest, payoutID string) {
	if i := strings.IndexByte(id, '/'); i > 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

func mapStripeStatus(s stripe.PayoutStatus) Status {
	switch s {
	case stripe.PayoutStatusPaid:
		return StatusCompleted
	case stripe.PayoutStatusFailed:
		return StatusFailed
	case stripe.PayoutStatusCanceled:
		return StatusCancelled
	default:
		return StatusPending
	}
}

// toMinorUnits converts a cash amount to the currency's smallest unit.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
