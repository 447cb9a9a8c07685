package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

func menuItem(name, description, price, category, image string) models.Food {
	return models.Food{
		Name:        name,
		Description: description,
		Price:       decimal.RequireFromString(price),
		Category:    category,
		ImageURL:    "https://example.com/images/" + image + ".jpg",
		Available:   true,
	}
}

// DefaultMenu returns the built-in Momo House catalog.
func DefaultMenu() []models.Food {
	return []models.Food{
		menuItem("Steamed Veg Momo", "Fresh vegetables & herbs wrapped in soft dough, steamed to perfection", "180.00", "momos", "steamed-veg-momo"),
		menuItem("Steamed Chicken Momo", "Juicy chicken filling in soft steamed dumplings", "220.00", "momos", "steamed-chicken-momo"),
		menuItem("Fried Veg Momo", "Crispy fried vegetable momos with crunchy exterior", "200.00", "momos", "fried-veg-momo"),
		menuItem("Fried Chicken Momo", "Golden fried chicken momos, crispy and delicious", "240.00", "momos", "fried-chicken-momo"),
		menuItem("Tandoori Momo", "Momos grilled in tandoor with special spices", "260.00", "momos", "tandoori-momo"),
		menuItem("Jhol Momo", "Steamed momos served in spicy soup gravy", "250.00", "momos", "jhol-momo"),
		menuItem("Veg Thukpa", "Traditional Tibetan noodle soup with vegetables", "200.00", "noodles", "veg-thukpa"),
		menuItem("Chicken Thukpa", "Hearty noodle soup with tender chicken pieces", "250.00", "noodles", "chicken-thukpa"),
		menuItem("Veg Chowmein", "Stir-fried noodles with fresh vegetables", "180.00", "noodles", "veg-chowmein"),
		menuItem("Chicken Chowmein", "Stir-fried noodles with chicken and vegetables", "220.00", "noodles", "chicken-chowmein"),
		menuItem("Veg Chopsuey", "Crispy noodles with vegetable gravy", "220.00", "noodles", "veg-chopsuey"),
		menuItem("Veg Fried Rice", "Wok-tossed rice with mixed vegetables", "180.00", "rice", "veg-fried-rice"),
		menuItem("Chicken Fried Rice", "Delicious fried rice with chicken pieces", "220.00", "rice", "chicken-fried-rice"),
		menuItem("Egg Fried Rice", "Classic egg fried rice with vegetables", "190.00", "rice", "egg-fried-rice"),
		menuItem("Chicken Biryani", "Aromatic basmati rice with spiced chicken", "300.00", "rice", "chicken-biryani"),
		menuItem("Masala Tea", "Traditional spiced tea", "40.00", "beverages", "masala-tea"),
		menuItem("Coffee", "Hot brewed coffee", "60.00", "beverages", "coffee"),
		menuItem("Fresh Lime Soda", "Refreshing lime soda (sweet/salty)", "80.00", "beverages", "lime-soda"),
		menuItem("Mango Lassi", "Creamy mango yogurt drink", "100.00", "beverages", "mango-lassi"),
		menuItem("Cold Coffee", "Iced coffee with cream", "120.00", "beverages", "cold-coffee"),
	}
}

// SeedIfEmpty inserts foods into the catalog only when it has no rows yet.
// It returns the number of foods inserted.
func SeedIfEmpty(ctx context.Context, catalog CatalogRepo, foods []models.Food) (int, error) {
	n, err := catalog.CountFoods(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count foods: %w", err)
	}
	if n > 0 {
		slog.Debug("Store.SeedIfEmpty: catalog already populated", "count", n)
		return 0, nil
	}
	return catalog.SeedFoods(ctx, foods)
}
