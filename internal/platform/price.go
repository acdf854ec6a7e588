package platform

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"

	"github.com/brandreach/menuscout/internal/model"
)

var (
	amountPattern = regexp.MustCompile(`\d+(?:[.,\s]\d+)*`)

	// currencyMarkers maps symbols and codes found in page text to ISO codes.
	// Order matters: longer markers are checked first.
	currencyMarkers = []struct {
		marker string
		code   string
	}{
		{"CHF", "CHF"},
		{"PLN", "PLN"},
		{"EUR", "EUR"},
		{"GBP", "GBP"},
		{"USD", "USD"},
		{"zł", "PLN"},
		{"€", "EUR"},
		{"£", "GBP"},
		{"$", "USD"},
	}
)

// ValidCurrency reports whether code is a well-formed ISO-4217 code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	_, err := currency.ParseISO(code)
	return err == nil
}

// ParsePrice normalizes a locale-formatted price string into an amount plus
// a 3-letter currency code. fallback is used when the text carries no
// currency marker (platform pages usually price in the country's currency).
func ParsePrice(raw, fallback string) (model.Price, error) {
	code := fallback
	for _, m := range currencyMarkers {
		if strings.Contains(raw, m.marker) {
			code = m.code
			break
		}
	}
	if !ValidCurrency(code) {
		return model.Price{}, eris.Errorf("platform: invalid currency %q", code)
	}

	match := amountPattern.FindString(raw)
	if match == "" {
		return model.Price{}, eris.Errorf("platform: no amount in %q", raw)
	}

	amount, err := parseLocaleAmount(match)
	if err != nil {
		return model.Price{}, err
	}

	return model.Price{Amount: amount, Currency: code}, nil
}

// PriceFromMinorUnits converts a minor-unit integer (e.g. cents) into a
// decimal amount with the given currency.
func PriceFromMinorUnits(minor int64, code string) (model.Price, error) {
	if !ValidCurrency(code) {
		return model.Price{}, eris.Errorf("platform: invalid currency %q", code)
	}
	return model.Price{Amount: float64(minor) / 100, Currency: code}, nil
}

// parseLocaleAmount handles both "1.234,56" and "1,234.56" groupings as well
// as plain "7,99" / "7.99" decimals.
func parseLocaleAmount(s string) (float64, error) {
	s = strings.ReplaceAll(s, " ", "")

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both present: the later separator is the decimal point.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// Commas delimiting three-digit groups ("1,234", "1,234,567") are
		// thousands separators; anything else is a decimal comma.
		if groupedThousands(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	case strings.Count(s, ".") > 1:
		// A lone dot stays a decimal point; repeated dots can only be
		// grouping ("1.234.567").
		if groupedThousands(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	amount, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "platform: parse amount %q", s)
	}
	return amount, nil
}

// groupedThousands reports whether s is digit groups joined by sep in
// standard thousands grouping: a leading group of up to three digits
// followed by exactly-three-digit groups.
func groupedThousands(s, sep string) bool {
	groups := strings.Split(s, sep)
	if len(groups) < 2 || len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}
