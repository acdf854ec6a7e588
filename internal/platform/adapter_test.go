package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/searchpool"
)

func testRegistry() *Registry {
	return NewRegistry(NewTakeaway("pizza"), NewUberEats("pizza"))
}

func TestResolveCountryIsPure(t *testing.T) {
	tests := []struct {
		url     string
		country string
		ok      bool
	}{
		{"https://www.lieferando.de/speisekarte/roma", "DE", true},
		{"https://www.lieferando.at/speisekarte/wien-kebap", "AT", true},
		{"https://www.pyszne.pl/restauracja/krakow", "PL", true},
		{"https://pyszne.pl/x", "PL", true},
		{"https://www.thuisbezorgd.nl/menu/amsterdam", "NL", true},
		{"https://www.eat.ch/menu/zuerich", "CH", true},
		{"https://www.ubereats.com/store/roma/abc", "US", true},
		{"https://www.ubereats.com/fr/store/paris/def", "FR", true},
		{"https://www.ubereats.com/pl/store/warszawa/ghi", "PL", true},
		{"https://example.com/x", "", false},
		{"not a url", "", false},
		{"", "", false},
	}

	r := testRegistry()
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, country, ok := r.ResolveCountry(tt.url)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.country, country)
			}
		})
	}
}

func TestExtractVenueID(t *testing.T) {
	ta := NewTakeaway("")
	id, ok := ta.ExtractVenueID("https://www.lieferando.de/speisekarte/pizzeria-roma-berlin")
	require.True(t, ok)
	assert.Equal(t, "pizzeria-roma-berlin", id)

	_, ok = ta.ExtractVenueID("https://www.lieferando.de/ueber-uns")
	assert.False(t, ok, "non-menu paths carry no venue id")

	ue := NewUberEats("")
	id, ok = ue.ExtractVenueID("https://www.ubereats.com/de/store/burger-house/xyz123")
	require.True(t, ok)
	assert.Equal(t, "burger-house", id)

	_, ok = ue.ExtractVenueID("https://www.ubereats.com/de/category/pizza")
	assert.False(t, ok)
}

func TestBuildSearchURL(t *testing.T) {
	ta := NewTakeaway("")
	q, err := ta.BuildSearchURL("pizza margherita", "DE", "Berlin")
	require.NoError(t, err)
	assert.Equal(t, `site:www.lieferando.de/speisekarte "pizza margherita" Berlin`, q)

	_, err = ta.BuildSearchURL("pizza", "XX", "")
	assert.Error(t, err, "unsupported country")

	ue := NewUberEats("")
	q, err = ue.BuildSearchURL("pizza", "FR", "")
	require.NoError(t, err)
	assert.Equal(t, `site:www.ubereats.com/fr/store "pizza"`, q)
}

func TestBuildVenueURL(t *testing.T) {
	ta := NewTakeaway("")
	u, err := ta.BuildVenueURL("pizzeria-roma", "PL")
	require.NoError(t, err)
	assert.Equal(t, "https://www.pyszne.pl/restauracja/pizzeria-roma", u)

	ue := NewUberEats("")
	u, err = ue.BuildVenueURL("burger-house", "US")
	require.NoError(t, err)
	assert.Equal(t, "https://www.ubereats.com/store/burger-house", u)
}

func TestParseSearchResultsStrategyOrder(t *testing.T) {
	ta := NewTakeaway("")

	// Venue URLs present: the URL-grammar strategy wins and the snippet URL
	// must not be merged in.
	results := []searchpool.Result{
		{
			Title:   "Pizzeria Roma | Lieferando.de",
			URL:     "https://www.lieferando.de/speisekarte/pizzeria-roma",
			Snippet: "Order at https://www.lieferando.de/speisekarte/other-venue today",
		},
	}
	hits := ta.ParseSearchResults(results)
	require.Len(t, hits, 1)
	assert.Equal(t, "Pizzeria Roma", hits[0].Name)
	assert.Equal(t, "pizzeria-roma", hits[0].VenueID)

	// No venue-URL match anywhere: recognized-host titles are the fallback.
	results = []searchpool.Result{
		{Title: "Beste Pizza in Berlin – Lieferando", URL: "https://www.lieferando.de/lieferservice/berlin"},
		{Title: "Irrelevant", URL: "https://example.com/page"},
	}
	hits = ta.ParseSearchResults(results)
	require.Len(t, hits, 1)
	assert.Equal(t, "Beste Pizza in Berlin", hits[0].Name)
	assert.Empty(t, hits[0].VenueID)

	// Venue URLs only inside snippets: the snippet scan is the last resort.
	results = []searchpool.Result{
		{
			Title:   "Top Kebab Spots",
			URL:     "https://blog.example.com/kebab",
			Snippet: "see https://www.lieferando.de/speisekarte/kebap-haus for the menu",
		},
	}
	hits = ta.ParseSearchResults(results)
	require.Len(t, hits, 1)
	assert.Equal(t, "kebap-haus", hits[0].VenueID)
}

func TestParseSearchResultsDedupes(t *testing.T) {
	ta := NewTakeaway("")
	results := []searchpool.Result{
		{Title: "Roma", URL: "https://www.lieferando.de/speisekarte/roma"},
		{Title: "Roma again", URL: "https://www.lieferando.de/speisekarte/roma"},
	}
	hits := ta.ParseSearchResults(results)
	assert.Len(t, hits, 1)
}

func TestRegistryPlatforms(t *testing.T) {
	r := testRegistry()
	platforms := r.Platforms()
	assert.Equal(t, []model.Platform{model.PlatformTakeaway, model.PlatformUberEats}, platforms)
	assert.NotNil(t, r.Get(model.PlatformTakeaway))
	assert.Nil(t, r.Get(model.Platform("doordash")))
}
