package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

const stripeProvider = "stripe"

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeConfig carries the provider credentials. They are injected here
// once at construction; nothing reads ambient key state at call time.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// StripeGateway implements Gateway against the Stripe PaymentIntents API.
type StripeGateway struct {
	intents       stripeIntentAPI
	refunds       stripeRefundAPI
	webhookSecret string
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("stripe: api key is required")
	}
	sc := client.New(cfg.APIKey, nil)
	return &StripeGateway{
		intents:       sc.PaymentIntents,
		refunds:       sc.Refunds,
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string, idempotencyKey string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(amount)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if len(metadata) > 0 {
		params.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			params.Metadata[k] = v
		}
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w: %v", ErrProvider, err)
	}
	return Intent{
		Provider:     stripeProvider,
		ProviderID:   pi.ID,
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}, nil
}

// ConfirmPayment retrieves the intent and reports its settled state.
// Stripe confirmation itself happens client-side with the client secret.
func (g *StripeGateway) ConfirmPayment(ctx context.Context, provider, providerID string) (Confirmation, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.intents.Get(providerID, params)
	if err != nil {
		return Confirmation{Status: "failed"}, fmt.Errorf("stripe: lookup payment intent: %w: %v", ErrProvider, err)
	}
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		return Confirmation{Status: "succeeded"}, nil
	}
	return Confirmation{Status: "pending"}, nil
}

func (g *StripeGateway) RefundPayment(ctx context.Context, provider, providerID string, amount decimal.Decimal, metadata map[string]string, idempotencyKey string) RefundResult {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerID),
		Amount:        stripe.Int64(toMinorUnits(amount)),
	}
	params.Context = ctx
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if len(metadata) > 0 {
		params.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			params.Metadata[k] = v
		}
	}

	r, err := g.refunds.New(params)
	if err != nil {
		return RefundResult{Status: "failed", Provider: stripeProvider, Metadata: metadata}
	}
	status := "failed"
	if r.Status == stripe.RefundStatusSucceeded {
		status = "succeeded"
	}
	return RefundResult{
		Status:           status,
		Provider:         stripeProvider,
		ProviderRefundID: r.ID,
		Metadata:         r.Metadata,
	}
}

func (g *StripeGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (Event, error) {
	if g.webhookSecret == "" {
		return Event{}, fmt.Errorf("stripe webhook secret not configured: %w", ErrSignature)
	}
	if signatureHeader == "" {
		return Event{}, fmt.Errorf("missing Stripe-Signature header: %w", ErrSignature)
	}
	ev, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("stripe: decode payment intent event: %w", err)
		}
		kind := EventPaymentSucceeded
		if ev.Type == "payment_intent.payment_failed" {
			kind = EventPaymentFailed
		}
		return Event{Provider: stripeProvider, ProviderID: pi.ID, Kind: kind}, nil
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return Event{}, fmt.Errorf("stripe: decode charge event: %w", err)
		}
		intentID := ""
		if ch.PaymentIntent != nil {
			intentID = ch.PaymentIntent.ID
		}
		return Event{
			Provider:       stripeProvider,
			ProviderID:     intentID,
			Kind:           EventChargeRefunded,
			AmountRefunded: fromMinorUnits(ch.AmountRefunded),
		}, nil
	}

	// event types we do not act on are acknowledged upstream
	return Event{Provider: stripeProvider}, nil
}
