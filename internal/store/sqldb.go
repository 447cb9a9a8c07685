package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

// sqlDB implements the catalog and order repositories over database/sql.
// Queries are written with $N placeholders and rewritten by bind for the target driver.
type sqlDB struct {
	db   *sql.DB
	name string
	bind func(string) string
}

const foodColumns = `id, name, COALESCE(description, ''), price, category, COALESCE(image_url, ''), available`

func scanFood(scan func(dest ...interface{}) error) (models.Food, error) {
	var f models.Food
	err := scan(&f.ID, &f.Name, &f.Description, &f.Price, &f.Category, &f.ImageURL, &f.Available)
	return f, err
}

func (s *sqlDB) queryFoods(ctx context.Context, op, query string, args ...interface{}) ([]models.Food, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		slog.Error(s.name+"."+op+": query failed", "error", err)
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()
	var foods []models.Food
	for rows.Next() {
		f, err := scanFood(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food row: %w", err)
		}
		foods = append(foods, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate food rows: %w", err)
	}
	return foods, nil
}

// ListCategories returns distinct categories of available foods, sorted.
func (s *sqlDB) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM foods WHERE available = TRUE ORDER BY category`)
	if err != nil {
		slog.Error(s.name+".ListCategories: query failed", "error", err)
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()
	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	slog.Debug(s.name+".ListCategories: succeeded", "count", len(categories))
	return categories, nil
}

func (s *sqlDB) ListFoodsByCategory(ctx context.Context, category string) ([]models.Food, error) {
	return s.queryFoods(ctx, "ListFoodsByCategory",
		`SELECT `+foodColumns+` FROM foods WHERE category = $1 AND available = TRUE ORDER BY name`, category)
}

func (s *sqlDB) GetFoodByID(ctx context.Context, id int64) (models.Food, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+foodColumns+` FROM foods WHERE id = $1 AND available = TRUE`), id)
	f, err := scanFood(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Food{}, fmt.Errorf("food %d: %w", id, ErrNotFound)
	}
	if err != nil {
		slog.Error(s.name+".GetFoodByID: query failed", "foodID", id, "error", err)
		return models.Food{}, fmt.Errorf("failed to get food %d: %w", id, err)
	}
	return f, nil
}

func (s *sqlDB) FindFoodsByName(ctx context.Context, name string) ([]models.Food, error) {
	return s.queryFoods(ctx, "FindFoodsByName",
		`SELECT `+foodColumns+` FROM foods WHERE LOWER(name) LIKE LOWER($1) ESCAPE '\' AND available = TRUE ORDER BY id`,
		likePattern(strings.TrimSpace(name)))
}

func (s *sqlDB) CountFoods(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM foods`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count foods: %w", err)
	}
	return n, nil
}

// SeedFoods inserts the given foods in one transaction and returns how many were written.
func (s *sqlDB) SeedFoods(ctx context.Context, foods []models.Food) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.bind(
		`INSERT INTO foods (name, description, price, category, image_url, available) VALUES ($1, $2, $3, $4, $5, $6)`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare seed statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range foods {
		if _, err := stmt.ExecContext(ctx, f.Name, nilIfEmpty(f.Description), f.Price, f.Category, nilIfEmpty(f.ImageURL), f.Available); err != nil {
			return 0, fmt.Errorf("failed to seed food %q: %w", f.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	slog.Info(s.name+".SeedFoods: catalog seeded", "count", len(foods))
	return len(foods), nil
}

func (s *sqlDB) CreateOrder(ctx context.Context, userID string) (models.Order, error) {
	if userID == "" {
		return models.Order{}, models.ErrEmptyUserID
	}
	o := models.Order{UserID: userID}
	var created dbTime
	err := s.db.QueryRowContext(ctx, s.bind(
		`INSERT INTO orders (user_wa_id, status, created_at, updated_at) VALUES ($1, $2, $3, $3) RETURNING id, status, created_at`),
		userID, string(models.OrderStatusCreated), time.Now().UTC(),
	).Scan(&o.ID, &o.Status, &created)
	if err != nil {
		slog.Error(s.name+".CreateOrder: insert failed", "userID", userID, "error", err)
		return models.Order{}, fmt.Errorf("failed to create order for %s: %w", userID, err)
	}
	o.CreatedAt = created.Time
	slog.Debug(s.name+".CreateOrder: succeeded", "userID", userID, "orderID", o.ID)
	return o, nil
}

func (s *sqlDB) scanOrder(row *sql.Row, orderID int64) (models.Order, error) {
	var (
		o       models.Order
		method  sql.NullString
		created dbTime
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &method, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to scan order: %w", err)
	}
	o.PaymentMethod = models.PaymentMethod(method.String)
	o.CreatedAt = created.Time
	return o, nil
}

const orderColumns = `id, user_wa_id, status, payment_method, created_at`

func (s *sqlDB) GetActiveOrder(ctx context.Context, userID string) (models.Order, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+orderColumns+` FROM orders
		WHERE user_wa_id = $1 AND status NOT IN ('completed', 'cancelled')
		ORDER BY created_at DESC, id DESC LIMIT 1`), userID)
	return s.scanOrder(row, 0)
}

func (s *sqlDB) AddOrderItem(ctx context.Context, orderID, foodID int64, quantity int) (models.OrderItem, error) {
	if quantity <= 0 {
		return models.OrderItem{}, models.ErrInvalidQuantity
	}
	if _, err := s.GetFoodByID(ctx, foodID); err != nil {
		return models.OrderItem{}, err
	}
	var item models.OrderItem
	err := s.db.QueryRowContext(ctx, s.bind(`INSERT INTO order_items (order_id, food_id, quantity, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, food_id) DO UPDATE SET quantity = order_items.quantity + EXCLUDED.quantity
		RETURNING id, order_id, food_id, quantity`),
		orderID, foodID, quantity, time.Now().UTC(),
	).Scan(&item.ID, &item.OrderID, &item.FoodID, &item.Quantity)
	if err != nil {
		slog.Error(s.name+".AddOrderItem: upsert failed", "orderID", orderID, "foodID", foodID, "error", err)
		return models.OrderItem{}, fmt.Errorf("failed to add food %d to order %d: %w", foodID, orderID, err)
	}
	return item, nil
}

func (s *sqlDB) RemoveOrderItem(ctx context.Context, orderID, foodID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM order_items WHERE order_id = $1 AND food_id = $2`), orderID, foodID)
	if err != nil {
		return false, fmt.Errorf("failed to remove food %d from order %d: %w", foodID, orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *sqlDB) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItemDetail, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT oi.id, oi.order_id, oi.quantity, f.id, f.name, f.price, f.category
		FROM order_items oi
		JOIN foods f ON oi.food_id = f.id
		WHERE oi.order_id = $1
		ORDER BY f.name`), orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items of order %d: %w", orderID, err)
	}
	defer rows.Close()
	var items []models.OrderItemDetail
	for rows.Next() {
		var d models.OrderItemDetail
		if err := rows.Scan(&d.ID, &d.OrderID, &d.Quantity, &d.FoodID, &d.Name, &d.Price, &d.Category); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		d.Subtotal = d.Price.Mul(decimal.NewFromInt(int64(d.Quantity)))
		items = append(items, d)
	}
	return items, rows.Err()
}

func (s *sqlDB) GetOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT COALESCE(SUM(oi.quantity * f.price), 0)
		FROM order_items oi
		JOIN foods f ON oi.food_id = f.id
		WHERE oi.order_id = $1`), orderID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to total order %d: %w", orderID, err)
	}
	return total, nil
}

func (s *sqlDB) updateOrder(ctx context.Context, op string, orderID int64, query string, args ...interface{}) (models.Order, error) {
	res, err := s.db.ExecContext(ctx, s.bind(query), args...)
	if err != nil {
		slog.Error(s.name+"."+op+": update failed", "orderID", orderID, "error", err)
		return models.Order{}, fmt.Errorf("failed to update order %d: %w", orderID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Order{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+orderColumns+` FROM orders WHERE id = $1`), orderID)
	return s.scanOrder(row, orderID)
}

func (s *sqlDB) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) (models.Order, error) {
	if !models.IsValidOrderStatus(status) {
		return models.Order{}, fmt.Errorf("%w: %q", models.ErrInvalidOrderStatus, status)
	}
	return s.updateOrder(ctx, "UpdateOrderStatus", orderID,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, string(status), time.Now().UTC(), orderID)
}

func (s *sqlDB) SelectPayment(ctx context.Context, orderID int64, method models.PaymentMethod) (models.Order, error) {
	if !models.IsValidPaymentMethod(method) {
		return models.Order{}, fmt.Errorf("%w: %q", models.ErrInvalidPaymentMethod, method)
	}
	return s.updateOrder(ctx, "SelectPayment", orderID,
		`UPDATE orders SET payment_method = $1, status = $2, updated_at = $3 WHERE id = $4`,
		string(method), string(models.OrderStatusConfirmed), time.Now().UTC(), orderID)
}

func (s *sqlDB) CancelOrder(ctx context.Context, orderID int64) (models.Order, error) {
	return s.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled)
}

func (s *sqlDB) GetOrderHistory(ctx context.Context, userID string, limit int) ([]models.OrderSummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT o.id, o.status, o.payment_method, o.created_at,
			COUNT(oi.id) AS item_count,
			COALESCE(SUM(oi.quantity * f.price), 0) AS total
		FROM orders o
		LEFT JOIN order_items oi ON o.id = oi.order_id
		LEFT JOIN foods f ON oi.food_id = f.id
		WHERE o.user_wa_id = $1
		GROUP BY o.id, o.status, o.payment_method, o.created_at
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2`), userID, limit)
	if err != nil {
		slog.Error(s.name+".GetOrderHistory: query failed", "userID", userID, "error", err)
		return nil, fmt.Errorf("failed to query order history for %s: %w", userID, err)
	}
	defer rows.Close()
	var history []models.OrderSummary
	for rows.Next() {
		var (
			o       models.OrderSummary
			method  sql.NullString
			created dbTime
		)
		if err := rows.Scan(&o.ID, &o.Status, &method, &created, &o.ItemCount, &o.Total); err != nil {
			return nil, fmt.Errorf("failed to scan order summary: %w", err)
		}
		o.PaymentMethod = models.PaymentMethod(method.String)
		o.CreatedAt = created.Time
		history = append(history, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order history: %w", err)
	}
	slog.Debug(s.name+".GetOrderHistory: succeeded", "userID", userID, "count", len(history))
	return history, nil
}

func (s *sqlDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *sqlDB) Close() error {
	slog.Debug(s.name + ".Close: closing database connection")
	if err := s.db.Close(); err != nil {
		slog.Error(s.name+".Close: failed to close database", "error", err)
		return err
	}
	return nil
}
