package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mvolkov/web_shop/internal/models"
)

// CreateRefund opens a refund against the payment and settles it with the
// provider synchronously. When the payment never reached a provider there
// is nothing to call: the refund is returned already failed rather than
// raising, so the caller still gets the record.
func (s *Service) CreateRefund(ctx context.Context, paymentID uint, amount decimal.Decimal) (*models.Refund, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("refund amount must be > 0: %w", ErrValidation)
	}
	if amount.GreaterThan(payment.Amount) {
		return nil, fmt.Errorf("refund amount exceeds payment amount: %w", ErrValidation)
	}

	refund := models.Refund{
		PaymentID: payment.ID,
		Amount:    amount,
		Currency:  payment.Currency,
		Status:    models.RefundStatusPending,
	}
	if err := s.DB.WithContext(ctx).Create(&refund).Error; err != nil {
		return nil, err
	}

	if payment.Provider == "" || payment.ProviderID == "" {
		refund.Status = models.RefundStatusFailed
		if err := s.DB.WithContext(ctx).Save(&refund).Error; err != nil {
			return nil, err
		}
		return &refund, nil
	}

	idemKey := fmt.Sprintf("rf_%d_%d_%s", payment.ID, refund.ID, amount.String())
	result := s.Gateway.RefundPayment(ctx, payment.Provider, payment.ProviderID, amount, map[string]string{
		"payment_id": fmt.Sprint(payment.ID),
		"refund_id":  fmt.Sprint(refund.ID),
	}, idemKey)

	refund.Provider = result.Provider
	refund.ProviderRefundID = result.ProviderRefundID
	refund.Metadata = result.Metadata
	if result.Status == "succeeded" {
		refund.Status = models.RefundStatusSucceeded
	} else {
		refund.Status = models.RefundStatusFailed
	}
	if err := s.DB.WithContext(ctx).Save(&refund).Error; err != nil {
		return nil, err
	}

	// a failed provider call leaves the payment untouched
	if refund.Status == models.RefundStatusSucceeded {
		if err := s.RecalculateRefundStatus(ctx, payment.ID); err != nil {
			return nil, err
		}
	}
	return &refund, nil
}

func (s *Service) GetRefund(ctx context.Context, id uint) (*models.Refund, error) {
	var refund models.Refund
	if err := s.DB.WithContext(ctx).First(&refund, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("refund %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &refund, nil
}

// RecalculateRefundStatus recomputes the payment's refunded amount from
// the succeeded refunds on file and derives the refund-facing status.
// The sum is always rebuilt from scratch so concurrent refund completions
// may land in any order; the payment row stays locked for the
// read-refunds / write-status pair.
func (s *Service) RecalculateRefundStatus(ctx context.Context, paymentID uint) error {
	return s.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var payment models.PaymentTransaction
		if err := lockForUpdate(db).First(&payment, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
			}
			return err
		}

		var refunds []models.Refund
		if err := db.Where("payment_id = ? AND status = ?", payment.ID, models.RefundStatusSucceeded).
			Find(&refunds).Error; err != nil {
			return err
		}
		total := decimal.Zero
		for _, r := range refunds {
			total = total.Add(r.Amount)
		}

		status := refundStatusFor(total, payment.Amount, payment.Status)
		return db.Model(&models.PaymentTransaction{}).Where("id = ?", payment.ID).
			Updates(map[string]interface{}{
				"refunded_amount": total,
				"status":          status,
			}).Error
	})
}

// refundStatusFor is the single place refund-derived statuses come from.
// A zero refund total only reverts a previously refunded status; it never
// downgrades a failed, pending or cancelled payment.
func refundStatusFor(total, amount decimal.Decimal, current string) string {
	if total.Sign() <= 0 {
		if current == models.PaymentStatusRefunded || current == models.PaymentStatusPartiallyRefunded {
			return models.PaymentStatusSucceeded
		}
		return current
	}
	if total.LessThan(amount) {
		return models.PaymentStatusPartiallyRefunded
	}
	return models.PaymentStatusRefunded
}
