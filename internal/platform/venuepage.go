package platform

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/brandreach/menuscout/internal/model"
)

// Parse-strategy confidence levels, by provenance.
const (
	confStructured  = 0.9
	confMarkup      = 0.7
	confProductScan = 0.4
)

var (
	jsonLDPattern = regexp.MustCompile(`(?is)<script[^>]+type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)
	linePrice     = regexp.MustCompile(`(?:€|zł|£|\$|CHF|PLN|EUR)\s*\d+(?:[.,]\d+)?|\d+(?:[.,]\d+)?\s*(?:€|zł|£|\$|CHF|PLN|EUR)`)
)

// jsonLDDoc mirrors the schema.org Restaurant subset delivery platforms embed.
type jsonLDDoc struct {
	Type    string `json:"@type"`
	Name    string `json:"name"`
	Address struct {
		StreetAddress   string `json:"streetAddress"`
		PostalCode      string `json:"postalCode"`
		AddressLocality string `json:"addressLocality"`
	} `json:"address"`
	Geo struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"geo"`
	AggregateRating struct {
		RatingValue float64 `json:"ratingValue"`
	} `json:"aggregateRating"`
	HasMenu struct {
		HasMenuSection []struct {
			Name        string `json:"name"`
			HasMenuItem []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				Offers      struct {
					Price         json.Number `json:"price"`
					PriceCurrency string      `json:"priceCurrency"`
				} `json:"offers"`
			} `json:"hasMenuItem"`
		} `json:"hasMenuSection"`
	} `json:"hasMenu"`
}

// parseJSONLD extracts a venue page from embedded schema.org structured data.
func parseJSONLD(content, fallbackCurrency, productFamily string) (*model.VenuePage, bool) {
	for _, match := range jsonLDPattern.FindAllStringSubmatch(content, -1) {
		var doc jsonLDDoc
		if err := json.Unmarshal([]byte(match[1]), &doc); err != nil {
			continue
		}
		if !strings.EqualFold(doc.Type, "Restaurant") && !strings.EqualFold(doc.Type, "FoodEstablishment") {
			continue
		}

		page := &model.VenuePage{
			Name:      strings.TrimSpace(doc.Name),
			Latitude:  doc.Geo.Latitude,
			Longitude: doc.Geo.Longitude,
			Rating:    doc.AggregateRating.RatingValue,
		}
		addrParts := []string{doc.Address.StreetAddress, doc.Address.PostalCode, doc.Address.AddressLocality}
		page.Address = strings.TrimSpace(strings.Join(nonEmpty(addrParts), ", "))

		for _, section := range doc.HasMenu.HasMenuSection {
			for _, item := range section.HasMenuItem {
				if strings.TrimSpace(item.Name) == "" {
					continue
				}
				currency := item.Offers.PriceCurrency
				if currency == "" {
					currency = fallbackCurrency
				}
				price, err := ParsePrice(item.Offers.Price.String(), currency)
				if err != nil {
					continue
				}
				page.Items = append(page.Items, model.MenuItem{
					Name:        strings.TrimSpace(item.Name),
					Description: strings.TrimSpace(item.Description),
					Price:       price,
					Category:    strings.TrimSpace(section.Name),
					ProductTag:  productTag(item.Name+" "+item.Description, productFamily),
					Confidence:  confStructured,
				})
			}
		}

		if len(page.Items) > 0 {
			return page, true
		}
	}
	return nil, false
}

// parseMarkup applies platform-specific item patterns to the raw HTML. Each
// pattern must capture a name group and a price group.
func parseMarkup(content string, patterns []*regexp.Regexp, namePattern *regexp.Regexp, fallbackCurrency, productFamily string) (*model.VenuePage, bool) {
	page := &model.VenuePage{}
	if namePattern != nil {
		if m := namePattern.FindStringSubmatch(content); len(m) > 1 {
			page.Name = strings.TrimSpace(htmlUnescape(m[1]))
		}
	}

	for _, pattern := range patterns {
		matches := pattern.FindAllStringSubmatch(content, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			name := strings.TrimSpace(htmlUnescape(m[1]))
			if name == "" {
				continue
			}
			price, err := ParsePrice(m[2], fallbackCurrency)
			if err != nil {
				continue
			}
			page.Items = append(page.Items, model.MenuItem{
				Name:       name,
				Price:      price,
				ProductTag: productTag(name, productFamily),
				Confidence: confMarkup,
			})
		}
		if len(page.Items) > 0 {
			// First matching pattern wins; patterns are never merged.
			return page, true
		}
	}
	return nil, false
}

// scanProductLines is the last-resort strategy: strip markup and keep lines
// that mention the tracked product family alongside a price.
func scanProductLines(content, productFamily, fallbackCurrency string) (*model.VenuePage, bool) {
	if productFamily == "" {
		return nil, false
	}

	page := &model.VenuePage{}
	needle := strings.ToLower(productFamily)
	for _, line := range strings.Split(stripHTMLTags(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		rawPrice := linePrice.FindString(line)
		if rawPrice == "" {
			continue
		}
		price, err := ParsePrice(rawPrice, fallbackCurrency)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(strings.SplitN(line, rawPrice, 2)[0])
		if name == "" {
			name = productFamily
		}
		page.Items = append(page.Items, model.MenuItem{
			Name:       name,
			Price:      price,
			ProductTag: productFamily,
			Confidence: confProductScan,
		})
	}

	if len(page.Items) == 0 {
		return nil, false
	}
	return page, true
}

func productTag(text, productFamily string) string {
	if productFamily == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(productFamily)) {
		return productFamily
	}
	return ""
}

// stripHTMLTags removes HTML tags, producing rough plain text with tag
// boundaries as line breaks.
func stripHTMLTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune('\n')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

func htmlUnescape(s string) string {
	return htmlEntities.Replace(s)
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
