package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const restaurantJSONLD = `<html><head>
<script type="application/ld+json">
{
  "@type": "Restaurant",
  "name": "Pizzeria Roma",
  "address": {"streetAddress": "Hauptstr. 1", "postalCode": "10827", "addressLocality": "Berlin"},
  "geo": {"latitude": 52.48, "longitude": 13.35},
  "aggregateRating": {"ratingValue": 4.4},
  "hasMenu": {
    "hasMenuSection": [
      {
        "name": "Pizza",
        "hasMenuItem": [
          {"name": "Margherita", "description": "Tomate, Mozzarella", "offers": {"price": "7.99", "priceCurrency": "EUR"}},
          {"name": "Salami", "offers": {"price": "8.99", "priceCurrency": "EUR"}}
        ]
      }
    ]
  }
}
</script>
</head><body></body></html>`

func TestParseVenuePageStructuredData(t *testing.T) {
	ta := NewTakeaway("pizza")
	page, err := ta.ParseVenuePage(restaurantJSONLD, "DE")
	require.NoError(t, err)

	assert.Equal(t, "Pizzeria Roma", page.Name)
	assert.Equal(t, "Hauptstr. 1, 10827, Berlin", page.Address)
	assert.InDelta(t, 52.48, page.Latitude, 1e-9)
	assert.InDelta(t, 4.4, page.Rating, 1e-9)

	require.Len(t, page.Items, 2)
	first := page.Items[0]
	assert.Equal(t, "Margherita", first.Name)
	assert.Equal(t, "Pizza", first.Category)
	assert.InDelta(t, 7.99, first.Price.Amount, 1e-9)
	assert.Equal(t, "EUR", first.Price.Currency)
	assert.InDelta(t, confStructured, first.Confidence, 1e-9)
}

const takeawayMarkup = `<html><body>
<h1>Kebap Haus</h1>
<div data-qa="menu-item-name-1">Dürüm Kebap</div>
<div data-qa="menu-item-price-1">6,50 €</div>
<div data-qa="menu-item-name-2">Lahmacun</div>
<div data-qa="menu-item-price-2">4,00 €</div>
</body></html>`

func TestParseVenuePageMarkupFallback(t *testing.T) {
	ta := NewTakeaway("kebap")
	page, err := ta.ParseVenuePage(takeawayMarkup, "DE")
	require.NoError(t, err)

	assert.Equal(t, "Kebap Haus", page.Name)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Dürüm Kebap", page.Items[0].Name)
	assert.InDelta(t, 6.50, page.Items[0].Price.Amount, 1e-9)
	assert.Equal(t, "kebap", page.Items[0].ProductTag)
	assert.InDelta(t, confMarkup, page.Items[0].Confidence, 1e-9)
}

func TestParseVenuePageProductScanLastResort(t *testing.T) {
	content := `<html><body><p>Unser Angebot</p><div>Chio Chips Paprika 2,49 €</div><div>Cola 1,99 €</div></body></html>`

	ta := NewTakeaway("chips")
	page, err := ta.ParseVenuePage(content, "DE")
	require.NoError(t, err)

	require.Len(t, page.Items, 1)
	assert.Contains(t, page.Items[0].Name, "Chio Chips Paprika")
	assert.InDelta(t, 2.49, page.Items[0].Price.Amount, 1e-9)
	assert.InDelta(t, confProductScan, page.Items[0].Confidence, 1e-9)
}

func TestParseVenuePageNothingMatches(t *testing.T) {
	ta := NewTakeaway("pizza")
	_, err := ta.ParseVenuePage("<html><body><p>nothing here</p></body></html>", "DE")
	require.Error(t, err)

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParseVenuePageCurrencyFollowsCountry(t *testing.T) {
	// Unmarked prices take the country's billing currency, never a
	// platform-wide default.
	plPage := `<html><body>
<h1>Pizzeria Krakowska</h1>
<div data-qa="menu-item-name-1">Pizza Wiejska</div>
<div data-qa="menu-item-price-1">12,99</div>
</body></html>`

	ta := NewTakeaway("pizza")
	page, err := ta.ParseVenuePage(plPage, "PL")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.InDelta(t, 12.99, page.Items[0].Price.Amount, 1e-9)
	assert.Equal(t, "PLN", page.Items[0].Price.Currency)

	gbPage := `<html><body>
<h1>Burger House</h1>
<div data-testid="store-item-title">Cheeseburger</div>
<div data-testid="store-item-price">9.49</div>
</body></html>`

	ue := NewUberEats("burger")
	page, err = ue.ParseVenuePage(gbPage, "GB")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "GBP", page.Items[0].Price.Currency)
}

func TestParseVenuePageMarkerBeatsCountryCurrency(t *testing.T) {
	content := `<html><body>
<h1>Burger House</h1>
<div data-testid="store-item-title">Cheeseburger</div>
<div data-testid="store-item-price">$9.49</div>
</body></html>`

	ue := NewUberEats("burger")
	page, err := ue.ParseVenuePage(content, "GB")
	require.NoError(t, err)

	require.Len(t, page.Items, 1)
	assert.Equal(t, "USD", page.Items[0].Price.Currency, "an explicit marker wins over the country fallback")
}
