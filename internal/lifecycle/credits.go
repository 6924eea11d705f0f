package lifecycle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryPlastic Category = "Plastic"
	CategoryMetal   Category = "Metal"
	CategoryPaper   Category = "Paper"
	CategoryEWaste  Category = "E-waste"
	CategoryOrganic Category = "Organic"
	CategoryMixed   Category = "Mixed"
)

var Categories = []Category{
	CategoryPlastic,
	CategoryMetal,
	CategoryPaper,
	CategoryEWaste,
	CategoryOrganic,
	CategoryMixed,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// RateTable maps a waste category to credits awarded per kilogram.
type RateTable map[Category]int64

func DefaultRates() RateTable {
	return RateTable{
		CategoryPlastic: 10,
		CategoryMetal:   15,
		CategoryPaper:   8,
		CategoryEWaste:  25,
		CategoryOrganic: 5,
		CategoryMixed:   12,
	}
}

// Credits returns round(weight * rate), rounding halves away from zero.
func (r RateTable) Credits(weight decimal.Decimal, category Category) (int64, error) {
	rate, ok := r[category]
	if !ok {
		return 0, fmt.Errorf("no credit rate for category %q", category)
	}
	return weight.Mul(decimal.NewFromInt(rate)).Round(0).IntPart(), nil
}

// Merge returns a copy of r with the entries of override applied on top.
func (r RateTable) Merge(override RateTable) RateTable {
	out := make(RateTable, len(r))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// String renders the table in the same "Plastic=10,Metal=15" form ParseRates accepts.
func (r RateTable) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.FormatInt(r[Category(k)], 10))
	}
	return strings.Join(parts, ",")
}

// ParseRates parses "Plastic=10,Metal=15". Unknown categories and negative rates are rejected.
func ParseRates(s string) (RateTable, error) {
	table := RateTable{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid rate entry %q", part)
		}
		category := Category(strings.TrimSpace(name))
		if !category.Valid() {
			return nil, fmt.Errorf("unknown waste category %q", name)
		}
		rate, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || rate < 0 {
			return nil, fmt.Errorf("invalid rate for %s: %q", category, value)
		}
		table[category] = rate
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("empty rate table")
	}
	return table, nil
}
