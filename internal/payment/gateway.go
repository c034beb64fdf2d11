package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrProvider   = errors.New("payment provider error")
	ErrSignature  = errors.New("webhook signature verification failed")
)

// Intent is the provider-side payment intent created for a transaction.
type Intent struct {
	Provider     string
	ProviderID   string
	ClientSecret string
	Metadata     map[string]string
}

// Confirmation is the synchronous status check result. The primary success
// path is event-driven; this exists for polling-style callers.
type Confirmation struct {
	Status string // succeeded, pending or failed
}

// RefundResult is the outcome of a provider refund call. Provider faults
// are folded into a failed result, never surfaced as an error.
type RefundResult struct {
	Status           string
	Provider         string
	ProviderRefundID string
	Metadata         map[string]string
}

type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventChargeRefunded   EventKind = "charge_refunded"
)

// Event is a provider webhook event normalised for the reconciliation
// engine. A zero Kind means the event type is not one we act on.
type Event struct {
	Provider       string
	ProviderID     string
	Kind           EventKind
	AmountRefunded decimal.Decimal
}

// Gateway abstracts the payment provider. Implemented by StripeGateway
// and by DummyGateway for local development and tests.
type Gateway interface {
	// CreateIntent registers a payment intent with the provider. Retrying
	// with the same idempotency key must not create a duplicate intent.
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string, idempotencyKey string) (Intent, error)
	ConfirmPayment(ctx context.Context, provider, providerID string) (Confirmation, error)
	RefundPayment(ctx context.Context, provider, providerID string, amount decimal.Decimal, metadata map[string]string, idempotencyKey string) RefundResult
	// VerifyAndParseEvent authenticates a raw webhook payload and maps it
	// to a normalised Event.
	VerifyAndParseEvent(payload []byte, signatureHeader string) (Event, error)
}
