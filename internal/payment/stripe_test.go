package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
)

const testWebhookSecret = "whsec_test_secret"

// webhook.ConstructEvent rejects events pinned to a different API version.
var stripeAPIVersion = stripe.APIVersion

// signPayload builds a Stripe-Signature header the way Stripe's servers
// do: v1 is an HMAC-SHA256 of "<timestamp>.<payload>".
func signPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestStripeGateway(t *testing.T) *StripeGateway {
	t.Helper()
	g, err := NewStripeGateway(StripeConfig{
		APIKey:        "sk_test_key",
		WebhookSecret: testWebhookSecret,
	})
	require.NoError(t, err)
	return g
}

func TestNewStripeGatewayRequiresKey(t *testing.T) {
	_, err := NewStripeGateway(StripeConfig{})
	require.Error(t, err)
}

func TestMinorUnitConversion(t *testing.T) {
	require.Equal(t, int64(1999), toMinorUnits(decimal.RequireFromString("19.99")))
	require.Equal(t, int64(100), toMinorUnits(decimal.RequireFromString("1")))
	require.True(t, fromMinorUnits(2999).Equal(decimal.RequireFromString("29.99")))
	require.True(t, fromMinorUnits(0).IsZero())
}

func TestVerifyAndParsePaymentIntentSucceeded(t *testing.T) {
	g := newTestStripeGateway(t)

	payload := []byte(`{
		"id": "evt_1",
		"api_version": "` + stripeAPIVersion + `",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "object": "payment_intent"}}
	}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	ev, err := g.VerifyAndParseEvent(payload, header)
	require.NoError(t, err)
	require.Equal(t, EventPaymentSucceeded, ev.Kind)
	require.Equal(t, "stripe", ev.Provider)
	require.Equal(t, "pi_123", ev.ProviderID)
}

func TestVerifyAndParsePaymentFailed(t *testing.T) {
	g := newTestStripeGateway(t)

	payload := []byte(`{
		"id": "evt_2",
		"api_version": "` + stripeAPIVersion + `",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_456", "object": "payment_intent"}}
	}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	ev, err := g.VerifyAndParseEvent(payload, header)
	require.NoError(t, err)
	require.Equal(t, EventPaymentFailed, ev.Kind)
	require.Equal(t, "pi_456", ev.ProviderID)
}

func TestVerifyAndParseChargeRefunded(t *testing.T) {
	g := newTestStripeGateway(t)

	payload := []byte(`{
		"id": "evt_3",
		"api_version": "` + stripeAPIVersion + `",
		"type": "charge.refunded",
		"data": {"object": {
			"id": "ch_1",
			"object": "charge",
			"amount_refunded": 2999,
			"payment_intent": "pi_789"
		}}
	}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	ev, err := g.VerifyAndParseEvent(payload, header)
	require.NoError(t, err)
	require.Equal(t, EventChargeRefunded, ev.Kind)
	require.Equal(t, "pi_789", ev.ProviderID)
	require.True(t, ev.AmountRefunded.Equal(decimal.RequireFromString("29.99")), "refunded %s", ev.AmountRefunded)
}

func TestVerifyAndParseIgnoresOtherEventTypes(t *testing.T) {
	g := newTestStripeGateway(t)

	payload := []byte(`{
		"id": "evt_4",
		"api_version": "` + stripeAPIVersion + `",
		"type": "customer.created",
		"data": {"object": {"id": "cus_1", "object": "customer"}}
	}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	ev, err := g.VerifyAndParseEvent(payload, header)
	require.NoError(t, err)
	require.Empty(t, ev.Kind)
}

func TestVerifyAndParseRejectsBadSignatures(t *testing.T) {
	g := newTestStripeGateway(t)
	payload := []byte(`{"id": "evt_5", "type": "payment_intent.succeeded", "data": {"object": {}}}`)

	_, err := g.VerifyAndParseEvent(payload, "")
	require.ErrorIs(t, err, ErrSignature)

	_, err = g.VerifyAndParseEvent(payload, signPayload(payload, "whsec_wrong", time.Now()))
	require.ErrorIs(t, err, ErrSignature)

	// stale timestamps fall outside the default tolerance
	_, err = g.VerifyAndParseEvent(payload, signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
	require.ErrorIs(t, err, ErrSignature)

	// a signature over different bytes must not verify
	header := signPayload([]byte(`{"tampered":true}`), testWebhookSecret, time.Now())
	_, err = g.VerifyAndParseEvent(payload, header)
	require.ErrorIs(t, err, ErrSignature)
}

func TestVerifyAndParseWithoutSecret(t *testing.T) {
	g, err := NewStripeGateway(StripeConfig{APIKey: "sk_test_key"})
	require.NoError(t, err)

	payload := []byte(`{}`)
	_, err = g.VerifyAndParseEvent(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.ErrorIs(t, err, ErrSignature)
}
