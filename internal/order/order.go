package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mvolkov/web_shop/internal/cart"
	"github.com/mvolkov/web_shop/internal/logging"
	"github.com/mvolkov/web_shop/internal/models"
	"github.com/mvolkov/web_shop/internal/notify"
)

var (
	ErrValidation        = errors.New("validation")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Service struct {
	DB     *gorm.DB
	Notify notify.Sink
}

// Line is one entry of an explicitly supplied item list.
type Line struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type CreateOrderInput struct {
	Identity        cart.Identity
	Items           []Line // when empty, the identity's cart is the source
	ShippingAddress string
	ContactEmail    string
	ContactPhone    string
	ContactName     string
}

// CreateOrder builds an immutable order snapshot from the shopper's cart
// or an explicit item list. The whole build runs in one transaction: the
// order row is created with a zero total, items are appended while the
// total accumulates, and the final total is written in a single update.
// A cart-sourced order clears the cart's items on success.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return nil, fmt.Errorf("shipping_address required: %w", ErrValidation)
	}
	if in.Identity.UserID == nil && strings.TrimSpace(in.ContactEmail) == "" {
		return nil, fmt.Errorf("contact_email is required for guest checkout: %w", ErrValidation)
	}

	var order models.Order
	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type snapshot struct {
			productID uint
			quantity  uint
			unitPrice decimal.Decimal
		}
		var lines []snapshot
		var sourceCart *models.Cart

		if len(in.Items) > 0 {
			// validate the entire list before creating anything
			for idx, it := range in.Items {
				if it.Quantity <= 0 {
					return fmt.Errorf("item[%d] quantity must be > 0: %w", idx, ErrValidation)
				}
				var p models.Product
				if err := tx.First(&p, it.ProductID).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("item[%d] product not found: %w", idx, ErrValidation)
					}
					return err
				}
				lines = append(lines, snapshot{productID: p.ID, quantity: uint(it.Quantity), unitPrice: p.Price})
			}
		} else {
			var c models.Cart
			q := tx.Where("session_key = ?", in.Identity.SessionKey)
			if in.Identity.UserID != nil {
				q = tx.Where("user_id = ?", *in.Identity.UserID)
			}
			if err := q.First(&c).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("cart not found or empty: %w", ErrValidation)
				}
				return err
			}
			var items []models.CartItem
			if err := tx.Where("cart_id = ?", c.ID).Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("cart not found or empty: %w", ErrValidation)
			}
			for _, ci := range items {
				lines = append(lines, snapshot{productID: ci.ProductID, quantity: ci.Quantity, unitPrice: ci.UnitPrice})
			}
			sourceCart = &c
		}

		order = models.Order{
			UserID:          in.Identity.UserID,
			Status:          models.OrderStatusPending,
			TotalAmount:     decimal.Zero,
			ShippingAddress: in.ShippingAddress,
			ContactEmail:    in.ContactEmail,
			ContactPhone:    in.ContactPhone,
			ContactName:     in.ContactName,
		}
		if sourceCart != nil {
			order.CartID = &sourceCart.ID
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		total := decimal.Zero
		for _, ln := range lines {
			oi := models.OrderItem{
				OrderID:   order.ID,
				ProductID: ln.productID,
				Quantity:  ln.quantity,
				UnitPrice: ln.unitPrice,
			}
			if err := tx.Create(&oi).Error; err != nil {
				return err
			}
			order.Items = append(order.Items, oi)
			total = total.Add(oi.Subtotal())
		}

		order.TotalAmount = total
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("total_amount", total).Error; err != nil {
			return err
		}

		if sourceCart != nil {
			if err := tx.Where("cart_id = ?", sourceCart.ID).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.notifyCreated(ctx, &order)
	return &order, nil
}

// ApplyPaymentEvent moves the order's status along the declared edges in
// response to a payment outcome. Re-applying an event whose target status
// is already current is a silent no-op.
func (s *Service) ApplyPaymentEvent(ctx context.Context, o *models.Order, event PaymentEvent) error {
	target, ok := statusForEvent(event)
	if !ok {
		return fmt.Errorf("unknown payment event %q: %w", event, ErrValidation)
	}
	return s.transition(ctx, o, target)
}

// UpdateStatus is the fulfillment-side status change (staff marking an
// order shipped). The same edge set applies.
func (s *Service) UpdateStatus(ctx context.Context, o *models.Order, status string) error {
	if !knownStatus(status) {
		return fmt.Errorf("unknown status %q: %w", status, ErrValidation)
	}
	return s.transition(ctx, o, status)
}

func (s *Service) transition(ctx context.Context, o *models.Order, target string) error {
	if o.Status == target {
		return nil
	}
	if !canTransition(o.Status, target) {
		return fmt.Errorf("%s -> %s: %w", o.Status, target, ErrInvalidTransition)
	}

	previous := o.Status
	if err := s.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", o.ID).
		Update("status", target).Error; err != nil {
		return err
	}
	o.Status = target

	s.notifyStatusChanged(ctx, o, previous)
	return nil
}

// Requester carries whatever the HTTP layer knows about the caller of a
// lookup: an authenticated user, a staff flag, or a guest-supplied email.
type Requester struct {
	UserID     *uint
	IsStaff    bool
	GuestEmail string
}

// Lookup returns the order if the requester may view it: staff and the
// owning user always may; anyone else must present an email matching the
// order's contact email or the owner's email, case-insensitively.
func (s *Service) Lookup(ctx context.Context, orderID uint, req Requester) (*models.Order, error) {
	var o models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").First(&o, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return nil, err
	}

	if req.IsStaff {
		return &o, nil
	}
	if req.UserID != nil && o.UserID != nil && *req.UserID == *o.UserID {
		return &o, nil
	}
	if email := strings.TrimSpace(req.GuestEmail); email != "" {
		if o.ContactEmail != "" && strings.EqualFold(o.ContactEmail, email) {
			return &o, nil
		}
		if owner := s.ownerEmail(ctx, &o); owner != "" && strings.EqualFold(owner, email) {
			return &o, nil
		}
	}
	return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListAll returns every order, newest first. Staff only; the handler
// enforces that.
func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Service) ownerEmail(ctx context.Context, o *models.Order) string {
	if o.UserID == nil {
		return ""
	}
	var u models.User
	if err := s.DB.WithContext(ctx).First(&u, *o.UserID).Error; err != nil {
		return ""
	}
	return u.Email
}

func (s *Service) recipient(ctx context.Context, o *models.Order) string {
	if o.ContactEmail != "" {
		return o.ContactEmail
	}
	return s.ownerEmail(ctx, o)
}

func (s *Service) greeting(ctx context.Context, o *models.Order) string {
	if o.ContactName != "" {
		return o.ContactName
	}
	if o.UserID != nil {
		var u models.User
		if err := s.DB.WithContext(ctx).First(&u, *o.UserID).Error; err == nil && u.FirstName != "" {
			return u.FirstName
		}
	}
	return "Customer"
}

func (s *Service) notifyCreated(ctx context.Context, o *models.Order) {
	if s.Notify == nil {
		return
	}
	recipient := s.recipient(ctx, o)
	if recipient == "" {
		return
	}
	subject := fmt.Sprintf("Order %d confirmation", o.ID)
	body := fmt.Sprintf(
		"Hello %s,\n\nWe have received your order %d.\nCurrent status: %s.\n\nWe will notify you as soon as it ships.\n\nThank you for shopping with us.",
		s.greeting(ctx, o), o.ID, o.Status,
	)
	if err := s.Notify.Send(ctx, recipient, subject, body); err != nil {
		logging.FromContext(ctx).Error("order created notification failed", "order", o.ID, "err", err)
	}
}

func (s *Service) notifyStatusChanged(ctx context.Context, o *models.Order, previous string) {
	if s.Notify == nil {
		return
	}
	recipient := s.recipient(ctx, o)
	if recipient == "" {
		return
	}
	subject := fmt.Sprintf("Order %d status update", o.ID)
	body := fmt.Sprintf(
		"Hello %s,\n\nYour order %d status changed from %s to %s.\n\nYou can continue tracking your order with the provided order number.\n\nThank you for shopping with us.",
		s.greeting(ctx, o), o.ID, previous, o.Status,
	)
	if err := s.Notify.Send(ctx, recipient, subject, body); err != nil {
		logging.FromContext(ctx).Error("order status notification failed", "order", o.ID, "err", err)
	}
}
