package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mvolkov/web_shop/internal/logging"
	"github.com/mvolkov/web_shop/internal/models"
	"github.com/mvolkov/web_shop/internal/order"
)

// Service owns PaymentTransaction state: it creates provider intents and
// reconciles inbound provider events into transaction and order status.
type Service struct {
	DB      *gorm.DB
	Gateway Gateway
	Orders  *order.Service
}

// sqlite serializes writers on its own and rejects FOR UPDATE syntax;
// everywhere else we take a row lock.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// CreatePayment opens a payment attempt for the order: a pending local
// transaction plus a provider intent. The idempotency key ties retries of
// this call to one provider-side intent. Returns the transaction and the
// client secret the shopper needs to complete payment.
func (s *Service) CreatePayment(ctx context.Context, orderID uint) (*models.PaymentTransaction, string, error) {
	var o models.Order
	if err := s.DB.WithContext(ctx).First(&o, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return nil, "", err
	}

	tx := models.PaymentTransaction{
		OrderID:  &o.ID,
		UserID:   o.UserID,
		Amount:   o.TotalAmount,
		Currency: "USD",
		Status:   models.PaymentStatusPending,
	}
	if err := s.DB.WithContext(ctx).Create(&tx).Error; err != nil {
		return nil, "", err
	}

	idemKey := fmt.Sprintf("pi_%d_%d", o.ID, tx.ID)
	intent, err := s.Gateway.CreateIntent(ctx, tx.Amount, tx.Currency, map[string]string{
		"order_id":   fmt.Sprint(o.ID),
		"payment_id": fmt.Sprint(tx.ID),
	}, idemKey)
	if err != nil {
		return nil, "", err
	}

	tx.Provider = intent.Provider
	tx.ProviderID = intent.ProviderID
	tx.Metadata = intent.Metadata
	if err := s.DB.WithContext(ctx).Save(&tx).Error; err != nil {
		return nil, "", err
	}
	return &tx, intent.ClientSecret, nil
}

func (s *Service) GetPayment(ctx context.Context, id uint) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := s.DB.WithContext(ctx).First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &tx, nil
}

// HandleProviderWebhook reconciles a signed provider event. An event that
// matches no local transaction is acknowledged without action: the
// provider's retry contract must be satisfied even for stale or foreign
// events.
func (s *Service) HandleProviderWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	ev, err := s.Gateway.VerifyAndParseEvent(payload, signatureHeader)
	if err != nil {
		return err
	}
	if ev.Kind == "" {
		return nil
	}

	tx, err := s.findByProviderRef(ctx, ev.Provider, ev.ProviderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logging.FromContext(ctx).Info("webhook for unknown transaction acknowledged",
				"provider", ev.Provider, "provider_id", ev.ProviderID, "kind", ev.Kind)
			return nil
		}
		return err
	}
	return s.dispatch(ctx, tx, ev)
}

// HandleDummyEvent is the synchronous, testing-oriented webhook shape.
// Unlike the signed path, an unknown transaction here is a reportable
// NotFound: local callers want the visibility.
func (s *Service) HandleDummyEvent(ctx context.Context, provider, providerID, event string) error {
	if provider == "" || providerID == "" || event == "" {
		return fmt.Errorf("invalid webhook payload: %w", ErrValidation)
	}

	var kind EventKind
	switch event {
	case "payment_succeeded":
		kind = EventPaymentSucceeded
	case "payment_failed":
		kind = EventPaymentFailed
	default:
		return fmt.Errorf("unknown event %q: %w", event, ErrValidation)
	}

	tx, err := s.findByProviderRef(ctx, provider, providerID)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, tx, Event{Provider: provider, ProviderID: providerID, Kind: kind})
}

func (s *Service) findByProviderRef(ctx context.Context, provider, providerID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := s.DB.WithContext(ctx).
		Where("provider = ? AND provider_id = ?", provider, providerID).
		First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %s/%s: %w", provider, providerID, ErrNotFound)
		}
		return nil, err
	}
	return &tx, nil
}

// dispatch writes the transaction's new state, then drives the order
// state machine when an order is linked. A transaction without an order
// is a valid terminal state.
func (s *Service) dispatch(ctx context.Context, tx *models.PaymentTransaction, ev Event) error {
	switch ev.Kind {
	case EventPaymentSucceeded:
		return s.settle(ctx, tx, models.PaymentStatusSucceeded, order.PaymentSucceeded)
	case EventPaymentFailed:
		return s.settle(ctx, tx, models.PaymentStatusFailed, order.PaymentFailed)
	case EventChargeRefunded:
		return s.applyProviderRefund(ctx, tx, ev.AmountRefunded)
	}
	return fmt.Errorf("unknown event kind %q: %w", ev.Kind, ErrValidation)
}

func (s *Service) settle(ctx context.Context, tx *models.PaymentTransaction, status string, ev order.PaymentEvent) error {
	if err := s.DB.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ?", tx.ID).
		Update("status", status).Error; err != nil {
		return err
	}
	tx.Status = status

	o, err := s.linkedOrder(ctx, tx)
	if err != nil || o == nil {
		return err
	}
	return s.Orders.ApplyPaymentEvent(ctx, o, ev)
}

// applyProviderRefund records a refund total reported by the provider
// (possibly issued out-of-band, straight from the provider dashboard) and
// derives the transaction status from it. A full refund cancels the
// linked order; a partial refund leaves the order paid.
func (s *Service) applyProviderRefund(ctx context.Context, tx *models.PaymentTransaction, refunded decimal.Decimal) error {
	err := s.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var current models.PaymentTransaction
		if err := lockForUpdate(db).First(&current, tx.ID).Error; err != nil {
			return err
		}
		status := refundStatusFor(refunded, current.Amount, current.Status)
		if err := db.Model(&models.PaymentTransaction{}).Where("id = ?", current.ID).
			Updates(map[string]interface{}{
				"refunded_amount": refunded,
				"status":          status,
			}).Error; err != nil {
			return err
		}
		tx.RefundedAmount = refunded
		tx.Status = status
		return nil
	})
	if err != nil {
		return err
	}

	if tx.Status != models.PaymentStatusRefunded {
		return nil
	}
	o, err := s.linkedOrder(ctx, tx)
	if err != nil || o == nil {
		return err
	}
	return s.Orders.UpdateStatus(ctx, o, models.OrderStatusCancelled)
}

func (s *Service) linkedOrder(ctx context.Context, tx *models.PaymentTransaction) (*models.Order, error) {
	if tx.OrderID == nil {
		return nil, nil
	}
	var o models.Order
	if err := s.DB.WithContext(ctx).First(&o, *tx.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}
