package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mvolkov/web_shop/internal/models"
)

var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
)

// Identity names the owner of a cart: an authenticated user or an
// anonymous session key, exactly one of the two.
type Identity struct {
	UserID     *uint
	SessionKey string
}

func (id Identity) valid() bool {
	return (id.UserID != nil) != (id.SessionKey != "")
}

type Service struct {
	DB *gorm.DB
}

// sqlite serializes writers on its own and rejects FOR UPDATE syntax;
// everywhere else we take a row lock.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Resolve returns the cart for the given identity, creating it lazily on
// first access. The unique index on the owner key makes this race-tolerant:
// a concurrent creator loses the insert and falls back to fetching the
// existing row.
func (s *Service) Resolve(ctx context.Context, id Identity) (*models.Cart, error) {
	if !id.valid() {
		return nil, fmt.Errorf("identity must carry exactly one of user or session key: %w", ErrValidation)
	}

	fetch := func(db *gorm.DB) (*models.Cart, error) {
		var c models.Cart
		q := db.WithContext(ctx)
		if id.UserID != nil {
			q = q.Where("user_id = ?", *id.UserID)
		} else {
			q = q.Where("session_key = ?", id.SessionKey)
		}
		if err := q.First(&c).Error; err != nil {
			return nil, err
		}
		return &c, nil
	}

	if c, err := fetch(s.DB); err == nil {
		return c, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c := models.Cart{UserID: id.UserID}
	if id.SessionKey != "" {
		key := id.SessionKey
		c.SessionKey = &key
	}
	if err := s.DB.WithContext(ctx).Create(&c).Error; err != nil {
		// lost the race: someone else created the row first
		if existing, fetchErr := fetch(s.DB); fetchErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return &c, nil
}

// AddItem puts quantity units of the product into the cart. An existing
// line for the same product accumulates quantity and keeps its original
// unit price; a new line snapshots the product's current price.
func (s *Service) AddItem(ctx context.Context, cart *models.Cart, productID uint, quantity uint) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1: %w", ErrValidation)
	}

	var item models.CartItem
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("product %d: %w", productID, ErrNotFound)
			}
			return err
		}

		err := lockForUpdate(tx).
			Where("cart_id = ? AND product_id = ?", cart.ID, productID).
			First(&item).Error
		if err == nil {
			item.Quantity += quantity
			return tx.Save(&item).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		item = models.CartItem{
			CartID:    cart.ID,
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: product.Price,
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SetItemQuantity updates a line's quantity. A quantity of zero or less
// removes the line; removal of an absent line is a success.
func (s *Service) SetItemQuantity(ctx context.Context, cart *models.Cart, itemID uint, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		err := s.DB.WithContext(ctx).
			Where("id = ? AND cart_id = ?", itemID, cart.ID).
			Delete(&models.CartItem{}).Error
		return nil, err
	}

	var item models.CartItem
	if err := s.DB.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cart.ID).
		First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
		}
		return nil, err
	}
	item.Quantity = uint(quantity)
	if err := s.DB.WithContext(ctx).Save(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, cart *models.Cart, itemID uint) error {
	res := s.DB.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cart.ID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}
	return nil
}

// Items lists the cart's lines, most recently added first.
func (s *Service) Items(ctx context.Context, cart *models.Cart) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := s.DB.WithContext(ctx).
		Where("cart_id = ?", cart.ID).
		Order("created_at DESC, id DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Total sums the line subtotals. An empty cart totals exactly zero.
func (s *Service) Total(ctx context.Context, cart *models.Cart) (decimal.Decimal, error) {
	items, err := s.Items(ctx, cart)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total, nil
}
