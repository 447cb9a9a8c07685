package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

// InMemoryStore keeps the catalog and orders in process memory.
// It is used when no database is configured and in tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	foods     []models.Food
	orders    []models.Order
	items     []models.OrderItem
	dedup     map[string]*DedupRecord
	nextFood  int64
	nextOrder int64
	nextItem  int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{dedup: make(map[string]*DedupRecord)}
}

func (s *InMemoryStore) ListCategories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var categories []string
	for _, f := range s.foods {
		if f.Available && !seen[f.Category] {
			seen[f.Category] = true
			categories = append(categories, f.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *InMemoryStore) ListFoodsByCategory(ctx context.Context, category string) ([]models.Food, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var foods []models.Food
	for _, f := range s.foods {
		if f.Available && f.Category == category {
			foods = append(foods, f)
		}
	}
	sort.SliceStable(foods, func(i, j int) bool { return foods[i].Name < foods[j].Name })
	return foods, nil
}

func (s *InMemoryStore) GetFoodByID(ctx context.Context, id int64) (models.Food, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.foods {
		if f.ID == id && f.Available {
			return f, nil
		}
	}
	return models.Food{}, fmt.Errorf("food %d: %w", id, ErrNotFound)
}

func (s *InMemoryStore) FindFoodsByName(ctx context.Context, name string) ([]models.Food, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(name))
	var foods []models.Food
	for _, f := range s.foods {
		if f.Available && strings.Contains(strings.ToLower(f.Name), needle) {
			foods = append(foods, f)
		}
	}
	return foods, nil
}

func (s *InMemoryStore) CountFoods(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.foods), nil
}

// SeedFoods appends foods to the catalog, assigning sequential ids.
func (s *InMemoryStore) SeedFoods(ctx context.Context, foods []models.Food) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range foods {
		s.nextFood++
		f.ID = s.nextFood
		s.foods = append(s.foods, f)
	}
	return len(foods), nil
}

func (s *InMemoryStore) CreateOrder(ctx context.Context, userID string) (models.Order, error) {
	if userID == "" {
		return models.Order{}, models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrder++
	o := models.Order{ID: s.nextOrder, UserID: userID, Status: models.OrderStatusCreated, CreatedAt: time.Now().UTC()}
	s.orders = append(s.orders, o)
	return o, nil
}

func (s *InMemoryStore) GetActiveOrder(ctx context.Context, userID string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.orders) - 1; i >= 0; i-- {
		o := s.orders[i]
		if o.UserID == userID && o.Status != models.OrderStatusCompleted && o.Status != models.OrderStatusCancelled {
			return o, nil
		}
	}
	return models.Order{}, fmt.Errorf("active order for %s: %w", userID, ErrNotFound)
}

func (s *InMemoryStore) AddOrderItem(ctx context.Context, orderID, foodID int64, quantity int) (models.OrderItem, error) {
	if quantity <= 0 {
		return models.OrderItem{}, models.ErrInvalidQuantity
	}
	if _, err := s.GetFoodByID(ctx, foodID); err != nil {
		return models.OrderItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderIndex(orderID) < 0 {
		return models.OrderItem{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	for i := range s.items {
		if s.items[i].OrderID == orderID && s.items[i].FoodID == foodID {
			s.items[i].Quantity += quantity
			return s.items[i], nil
		}
	}
	s.nextItem++
	item := models.OrderItem{ID: s.nextItem, OrderID: orderID, FoodID: foodID, Quantity: quantity}
	s.items = append(s.items, item)
	return item, nil
}

func (s *InMemoryStore) RemoveOrderItem(ctx context.Context, orderID, foodID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].OrderID == orderID && s.items[i].FoodID == foodID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItemDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var details []models.OrderItemDetail
	for _, it := range s.items {
		if it.OrderID != orderID {
			continue
		}
		f, ok := s.foodByID(it.FoodID)
		if !ok {
			continue
		}
		details = append(details, models.OrderItemDetail{
			OrderItem: it,
			Name:      f.Name,
			Price:     f.Price,
			Category:  f.Category,
			Subtotal:  f.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	sort.SliceStable(details, func(i, j int) bool { return details[i].Name < details[j].Name })
	return details, nil
}

func (s *InMemoryStore) GetOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderTotal(orderID), nil
}

func (s *InMemoryStore) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) (models.Order, error) {
	if !models.IsValidOrderStatus(status) {
		return models.Order{}, fmt.Errorf("%w: %q", models.ErrInvalidOrderStatus, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.orderIndex(orderID)
	if i < 0 {
		return models.Order{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	s.orders[i].Status = status
	return s.orders[i], nil
}

func (s *InMemoryStore) SelectPayment(ctx context.Context, orderID int64, method models.PaymentMethod) (models.Order, error) {
	if !models.IsValidPaymentMethod(method) {
		return models.Order{}, fmt.Errorf("%w: %q", models.ErrInvalidPaymentMethod, method)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.orderIndex(orderID)
	if i < 0 {
		return models.Order{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	s.orders[i].PaymentMethod = method
	s.orders[i].Status = models.OrderStatusConfirmed
	return s.orders[i], nil
}

func (s *InMemoryStore) CancelOrder(ctx context.Context, orderID int64) (models.Order, error) {
	return s.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled)
}

func (s *InMemoryStore) GetOrderHistory(ctx context.Context, userID string, limit int) ([]models.OrderSummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var history []models.OrderSummary
	for i := len(s.orders) - 1; i >= 0 && len(history) < limit; i-- {
		o := s.orders[i]
		if o.UserID != userID {
			continue
		}
		count := 0
		for _, it := range s.items {
			if it.OrderID == o.ID {
				count++
			}
		}
		history = append(history, models.OrderSummary{
			ID:            o.ID,
			Status:        o.Status,
			PaymentMethod: o.PaymentMethod,
			CreatedAt:     o.CreatedAt,
			ItemCount:     count,
			Total:         s.orderTotal(o.ID),
		})
	}
	return history, nil
}

func (s *InMemoryStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = &DedupRecord{MessageID: messageID, UserID: userID, ReceivedAt: time.Now().UTC()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok {
		now := time.Now().UTC()
		rec.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) PruneDedup(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.dedup {
		if rec.ReceivedAt.Before(before) {
			delete(s.dedup, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds for the in-memory store.
func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }

// Volatile reports that nothing survives a restart.
func (s *InMemoryStore) Volatile() bool { return true }

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) orderIndex(orderID int64) int {
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			return i
		}
	}
	return -1
}

func (s *InMemoryStore) foodByID(id int64) (models.Food, bool) {
	for _, f := range s.foods {
		if f.ID == id {
			return f, true
		}
	}
	return models.Food{}, false
}

func (s *InMemoryStore) orderTotal(orderID int64) decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.items {
		if it.OrderID != orderID {
			continue
		}
		if f, ok := s.foodByID(it.FoodID); ok {
			total = total.Add(f.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	return total
}
