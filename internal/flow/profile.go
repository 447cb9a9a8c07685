package flow

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/OrderPipe/internal/models"
	"github.com/BTreeMap/OrderPipe/internal/store"
)

// Wallet is an e-wallet payment destination.
type Wallet struct {
	Name        string `yaml:"name"`
	ID          string `yaml:"id"`
	AccountName string `yaml:"account_name"`
}

// BankAccount is a bank transfer destination.
type BankAccount struct {
	Bank        string `yaml:"bank"`
	Account     string `yaml:"account"`
	AccountName string `yaml:"account_name"`
}

// PaymentDetails lists where online payments can be sent.
type PaymentDetails struct {
	Wallets []Wallet     `yaml:"wallets"`
	Bank    *BankAccount `yaml:"bank,omitempty"`
}

// MenuItem is a catalog entry as written in the profile file.
type MenuItem struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Price       decimal.Decimal `yaml:"price"`
	Category    string          `yaml:"category"`
	ImageURL    string          `yaml:"image_url"`
	Available   *bool           `yaml:"available"`
}

// Profile describes the restaurant the bot serves.
type Profile struct {
	Name          string         `yaml:"name"`
	OrderIDPrefix string         `yaml:"order_id_prefix"`
	DeliveryTime  string         `yaml:"delivery_time"`
	Timezone      string         `yaml:"timezone"`
	Payment       PaymentDetails `yaml:"payment"`
	Menu          []MenuItem     `yaml:"menu"`

	location *time.Location
	menu     []models.Food
}

// DefaultProfile returns the built-in Momo House profile.
func DefaultProfile() *Profile {
	p := &Profile{}
	p.applyDefaults()
	return p
}

// LoadProfile reads a YAML profile; fields left out keep their defaults.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile document.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	for i, item := range p.Menu {
		if strings.TrimSpace(item.Name) == "" || strings.TrimSpace(item.Category) == "" {
			return nil, fmt.Errorf("menu[%d]: name and category are required", i)
		}
		if !item.Price.IsPositive() {
			return nil, fmt.Errorf("menu[%d] %q: price must be positive", i, item.Name)
		}
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
		}
	}
	p.applyDefaults()
	slog.Debug("ParseProfile: profile loaded", "name", p.Name, "menuItems", len(p.menu), "wallets", len(p.Payment.Wallets))
	return &p, nil
}

func (p *Profile) applyDefaults() {
	if p.Name == "" {
		p.Name = "Momo House"
	}
	if p.OrderIDPrefix == "" {
		p.OrderIDPrefix = "MH"
	}
	if p.DeliveryTime == "" {
		p.DeliveryTime = "30-40 minutes"
	}
	if len(p.Payment.Wallets) == 0 && p.Payment.Bank == nil {
		p.Payment = PaymentDetails{
			Wallets: []Wallet{
				{Name: "eSewa", ID: "9800000001", AccountName: "Momo House Pvt Ltd"},
				{Name: "Khalti", ID: "9800000002", AccountName: "Momo House"},
			},
			Bank: &BankAccount{Bank: "Nepal Bank Ltd", Account: "0123456789012", AccountName: "Momo House Pvt Ltd"},
		}
	}
	p.location = time.Local
	if p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			p.location = loc
		}
	}
	if len(p.Menu) == 0 {
		p.menu = store.DefaultMenu()
		return
	}
	p.menu = make([]models.Food, 0, len(p.Menu))
	for _, item := range p.Menu {
		available := true
		if item.Available != nil {
			available = *item.Available
		}
		p.menu = append(p.menu, models.Food{
			Name:        strings.TrimSpace(item.Name),
			Description: item.Description,
			Price:       item.Price,
			Category:    strings.ToLower(strings.TrimSpace(item.Category)),
			ImageURL:    item.ImageURL,
			Available:   available,
		})
	}
}

// Foods returns the seed catalog.
func (p *Profile) Foods() []models.Food {
	return append([]models.Food(nil), p.menu...)
}

// Location is the timezone used to display order times.
func (p *Profile) Location() *time.Location {
	return p.location
}
