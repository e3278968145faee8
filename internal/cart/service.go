package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dukaan/internal/pricing"
)

// ErrNotFound indicates the requested cart could not be located or has
// expired.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

const keyPrefix = "dukaan:cart:"

// Item is one product line in a cart snapshot.
type Item struct {
	ProductID           string           `json:"productId"`
	Name                string           `json:"name"`
	UnitPrice           decimal.Decimal  `json:"unitPrice"`
	DiscountedUnitPrice *decimal.Decimal `json:"discountedUnitPrice,omitempty"`
	Qty                 int64            `json:"qty"`
	GSTPercent          *decimal.Decimal `json:"gstPercent,omitempty"`
	CategoryID          string           `json:"categoryId"`
}

// Cart is the redis-backed cart snapshot. Carts are anonymous and keyed
// by id; expiry is enforced by the key TTL.
type Cart struct {
	ID        string    `json:"id"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Lines converts the snapshot to pricing input.
func (c Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, pricing.Line{
			ProductID:           it.ProductID,
			UnitPrice:           it.UnitPrice,
			DiscountedUnitPrice: it.DiscountedUnitPrice,
			Qty:                 it.Qty,
			GSTPercent:          it.GSTPercent,
			CategoryID:          it.CategoryID,
		})
	}
	return lines
}

// Service stores cart snapshots in redis as JSON blobs with a sliding
// TTL, matching the ephemeral nature of a guest cart.
type Service struct {
	Client *redis.Client
	TTL    time.Duration
	Now    func() time.Time
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create persists a fresh empty cart and returns it.
func (s *Service) Create(ctx context.Context) (Cart, error) {
	if s == nil || s.Client == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	now := s.now()
	cart := Cart{
		ID:        uuid.NewString(),
		Items:     []Item{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// Get loads a cart snapshot. Expired carts surface as ErrNotFound since
// redis removes the key.
func (s *Service) Get(ctx context.Context, id string) (Cart, error) {
	if s == nil || s.Client == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	raw, err := s.Client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var cart Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return cart, nil
}

// AddItem inserts a line or, when the product already exists in the
// cart, increments its quantity. Price fields of an existing line are
// refreshed from the incoming item.
func (s *Service) AddItem(ctx context.Context, cartID string, item Item) (Cart, error) {
	if item.Qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	if item.ProductID == "" {
		return Cart{}, fmt.Errorf("product id is required: %w", ErrInvalidInput)
	}
	if item.UnitPrice.IsNegative() {
		return Cart{}, fmt.Errorf("unit price must not be negative: %w", ErrInvalidInput)
	}
	cart, err := s.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			item.Qty += cart.Items[i].Qty
			cart.Items[i] = item
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, item)
	}
	cart.UpdatedAt = s.now()
	if err := s.save(ctx, cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// SetQty updates a line's quantity; zero removes the line.
func (s *Service) SetQty(ctx context.Context, cartID, productID string, qty int64) (Cart, error) {
	if qty < 0 {
		return Cart{}, fmt.Errorf("qty must not be negative: %w", ErrInvalidInput)
	}
	cart, err := s.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	found := false
	items := cart.Items[:0]
	for _, it := range cart.Items {
		if it.ProductID == productID {
			found = true
			if qty == 0 {
				continue
			}
			it.Qty = qty
		}
		items = append(items, it)
	}
	if !found {
		return Cart{}, fmt.Errorf("product not in cart: %w", ErrNotFound)
	}
	cart.Items = items
	cart.UpdatedAt = s.now()
	if err := s.save(ctx, cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) (Cart, error) {
	return s.SetQty(ctx, cartID, productID, 0)
}

// Clear drops the cart snapshot entirely. Used after a successful
// checkout.
func (s *Service) Clear(ctx context.Context, cartID string) error {
	if s == nil || s.Client == nil {
		return errors.New("cart service not configured")
	}
	return s.Client.Del(ctx, keyPrefix+cartID).Err()
}

func (s *Service) save(ctx context.Context, cart Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.Client.Set(ctx, keyPrefix+cart.ID, raw, s.ttl()).Err(); err != nil {
		return fmt.Errorf("store cart: %w", err)
	}
	return nil
}
