package quality

import (
	"math"
	"strings"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/platform"
)

// DishIssue flags one invalid dish with the reasons it was rejected.
type DishIssue struct {
	Item   model.MenuItem
	Issues []string
}

// ValidateDishes splits extracted items into emittable dishes and flagged
// rejects. A dish needs a non-empty name, a positive finite price, and a
// recognized ISO-4217 currency.
func ValidateDishes(items []model.MenuItem) (valid []model.MenuItem, invalid []DishIssue) {
	for _, item := range items {
		var issues []string
		if strings.TrimSpace(item.Name) == "" {
			issues = append(issues, "missing name")
		}
		if item.Price.Amount <= 0 || math.IsNaN(item.Price.Amount) || math.IsInf(item.Price.Amount, 0) {
			issues = append(issues, "invalid price amount")
		}
		if !platform.ValidCurrency(item.Price.Currency) {
			issues = append(issues, "invalid currency")
		}
		if len(issues) > 0 {
			invalid = append(invalid, DishIssue{Item: item, Issues: issues})
			continue
		}
		valid = append(valid, item)
	}
	return valid, invalid
}
