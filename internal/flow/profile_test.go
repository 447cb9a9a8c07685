package flow

import (
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"
)

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()
	if p.Name != "Momo House" || p.OrderIDPrefix != "MH" || p.DeliveryTime != "30-40 minutes" {
		t.Errorf("unexpected defaults %+v", p)
	}
	if len(p.Payment.Wallets) != 2 || p.Payment.Bank == nil {
		t.Errorf("unexpected payment defaults %+v", p.Payment)
	}
	if len(p.Foods()) != 20 {
		t.Errorf("expected the 20-item seed menu, got %d", len(p.Foods()))
	}
}

func TestLoadProfile(t *testing.T) {
	doc := `
name: Dumpling Den
order_id_prefix: DD
timezone: Asia/Kathmandu
payment:
  wallets:
    - name: eSewa
      id: "9811111111"
      account_name: Dumpling Den
menu:
  - name: Buff Momo
    description: Classic buffalo momo
    price: 190.50
    category: Momos
  - name: Sold Out Soup
    price: 150
    category: soups
    available: false
`
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Name != "Dumpling Den" || p.OrderIDPrefix != "DD" || p.DeliveryTime != "30-40 minutes" {
		t.Errorf("unexpected profile %+v", p)
	}
	if p.Payment.Bank != nil || len(p.Payment.Wallets) != 1 {
		t.Errorf("explicit payment section should replace defaults: %+v", p.Payment)
	}
	if p.Location().String() != "Asia/Kathmandu" {
		t.Errorf("location = %s", p.Location())
	}

	foods := p.Foods()
	if len(foods) != 2 {
		t.Fatalf("expected 2 foods, got %d", len(foods))
	}
	if foods[0].Category != "momos" || !foods[0].Available || foods[0].Price.String() != "190.5" {
		t.Errorf("unexpected first food %+v", foods[0])
	}
	if foods[1].Available {
		t.Errorf("available: false was ignored")
	}
}

func TestParseProfileRejectsBadMenu(t *testing.T) {
	cases := map[string]string{
		"missing category": "menu:\n  - name: Momo\n    price: 100\n",
		"zero price":       "menu:\n  - name: Momo\n    price: 0\n    category: momos\n",
		"bad timezone":     "timezone: Mars/Olympus\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseProfile([]byte(doc)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
