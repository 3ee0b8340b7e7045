package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category partitions every tracked item. The set is fixed at compile time.
type Category string

const (
	CategoryCurrency Category = "currency"
	CategoryCrypto   Category = "crypto"
	CategoryGold     Category = "gold"
	CategoryCoin     Category = "coin"
)

var allCategories = []Category{CategoryCurrency, CategoryCrypto, CategoryGold, CategoryCoin}

// Categories returns every known category in a stable order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory normalises s and validates it against the known set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("market: unknown category %q", s)
	}
	return c, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// Observation is a single price point for one item. Values are never mutated;
// newer observations supersede older ones.
type Observation struct {
	ItemCode  string           `json:"itemCode" msgpack:"item_code"`
	Category  Category         `json:"category" msgpack:"category"`
	Price     decimal.Decimal  `json:"price" msgpack:"price"`
	Timestamp time.Time        `json:"timestamp" msgpack:"timestamp"`
	High      *decimal.Decimal `json:"high,omitempty" msgpack:"high,omitempty"`
	Low       *decimal.Decimal `json:"low,omitempty" msgpack:"low,omitempty"`
}
