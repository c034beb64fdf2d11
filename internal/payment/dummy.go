package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DummyProvider is the provider name used when no real PSP is configured.
const DummyProvider = "local_dummy"

// DummyGateway stands in for a real provider in development and tests.
// It holds no state, so every CreateIntent hands out a fresh opaque id
// and refunds always succeed.
type DummyGateway struct{}

func (DummyGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string, idempotencyKey string) (Intent, error) {
	id := uuid.NewString()
	return Intent{
		Provider:     DummyProvider,
		ProviderID:   id,
		ClientSecret: fmt.Sprintf("secret_%s", id),
		Metadata:     metadata,
	}, nil
}

func (DummyGateway) ConfirmPayment(ctx context.Context, provider, providerID string) (Confirmation, error) {
	return Confirmation{Status: "succeeded"}, nil
}

func (DummyGateway) RefundPayment(ctx context.Context, provider, providerID string, amount decimal.Decimal, metadata map[string]string, idempotencyKey string) RefundResult {
	return RefundResult{
		Status:           "succeeded",
		Provider:         provider,
		ProviderRefundID: uuid.NewString(),
		Metadata:         metadata,
	}
}

func (DummyGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (Event, error) {
	return Event{}, fmt.Errorf("dummy provider has no signed webhooks: %w", ErrSignature)
}
