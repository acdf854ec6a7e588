package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/searchpool"
)

const uberEatsHost = "www.ubereats.com"

// uberEatsCountries maps supported countries to their URL path prefix and
// billing currency. The US site has no prefix.
var uberEatsCountries = map[string]struct {
	pathPrefix string
	currency   string
}{
	"US": {pathPrefix: "", currency: "USD"},
	"GB": {pathPrefix: "gb", currency: "GBP"},
	"FR": {pathPrefix: "fr", currency: "EUR"},
	"DE": {pathPrefix: "de", currency: "EUR"},
	"NL": {pathPrefix: "nl", currency: "EUR"},
	"PL": {pathPrefix: "pl", currency: "PLN"},
}

var uberEatsItemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)data-testid="store-item-title"[^>]*>([^<]+)<.{0,400}?data-testid="store-item-price"[^>]*>([^<]+)<`),
	regexp.MustCompile(`(?is)<h3[^>]*>([^<]{2,80})</h3>.{0,400}?((?:€|zł|£|\$)\s?\d+[.,]\d{2}|\d+[.,]\d{2}\s?(?:€|zł|£|\$))`),
}

var uberEatsNamePattern = regexp.MustCompile(`(?is)<h1[^>]*>([^<]+)</h1>`)

// UberEats is the adapter for the Uber Eats platform.
type UberEats struct {
	productFamily string
}

// NewUberEats creates the Uber Eats adapter.
func NewUberEats(productFamily string) *UberEats {
	return &UberEats{productFamily: productFamily}
}

// Platform returns the platform tag.
func (u *UberEats) Platform() model.Platform { return model.PlatformUberEats }

// Countries lists supported country codes in stable order.
func (u *UberEats) Countries() []string {
	out := make([]string, 0, len(uberEatsCountries))
	for c := range uberEatsCountries {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SearchDomain returns the country-scoped site root.
func (u *UberEats) SearchDomain(country string) (string, error) {
	cc, ok := uberEatsCountries[strings.ToUpper(country)]
	if !ok {
		return "", eris.Errorf("ubereats: unsupported country %q", country)
	}
	if cc.pathPrefix == "" {
		return uberEatsHost, nil
	}
	return uberEatsHost + "/" + cc.pathPrefix, nil
}

// BuildSearchURL returns a site-restricted search query string.
func (u *UberEats) BuildSearchURL(query, country, city string) (string, error) {
	domain, err := u.SearchDomain(country)
	if err != nil {
		return "", err
	}
	q := fmt.Sprintf("site:%s/store %q", strings.TrimSuffix(domain, "/"), query)
	if city != "" {
		q += " " + city
	}
	return q, nil
}

// BuildVenueURL returns the canonical store URL for a venue slug.
func (u *UberEats) BuildVenueURL(slug, country string) (string, error) {
	cc, ok := uberEatsCountries[strings.ToUpper(country)]
	if !ok {
		return "", eris.Errorf("ubereats: unsupported country %q", country)
	}
	if cc.pathPrefix == "" {
		return fmt.Sprintf("https://%s/store/%s", uberEatsHost, strings.Trim(slug, "/")), nil
	}
	return fmt.Sprintf("https://%s/%s/store/%s", uberEatsHost, cc.pathPrefix, strings.Trim(slug, "/")), nil
}

// ExtractVenueID parses the store slug from a venue URL.
func (u *UberEats) ExtractVenueID(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !isUberEatsHost(parsed.Host) {
		return "", false
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "store" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], true
		}
	}
	return "", false
}

// ResolveCountry derives the country from the URL's path prefix. Store URLs
// without a prefix belong to the US site. Pure; never errors.
func (u *UberEats) ResolveCountry(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !isUberEatsHost(parsed.Host) {
		return "", false
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", false
	}
	if segments[0] == "store" {
		return "US", true
	}
	for country, cc := range uberEatsCountries {
		if cc.pathPrefix != "" && segments[0] == cc.pathPrefix {
			return country, true
		}
	}
	return "", false
}

func isUberEatsHost(host string) bool {
	host = strings.ToLower(host)
	return host == uberEatsHost || host == strings.TrimPrefix(uberEatsHost, "www.")
}

// ParseSearchResults extracts venue candidates. Same fixed strategy order as
// the other adapters: URL grammar, recognized hosts, snippet scan.
func (u *UberEats) ParseSearchResults(results []searchpool.Result) []SearchHit {
	strategies := []func([]searchpool.Result) []SearchHit{
		u.hitsFromVenueURLs,
		u.hitsFromRecognizedHosts,
		u.hitsFromSnippets,
	}
	for _, strategy := range strategies {
		if hits := strategy(results); len(hits) > 0 {
			return dedupeHits(hits)
		}
	}
	return nil
}

func (u *UberEats) hitsFromVenueURLs(results []searchpool.Result) []SearchHit {
	var hits []SearchHit
	for _, r := range results {
		id, ok := u.ExtractVenueID(r.URL)
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{
			Name:    cleanResultTitle(r.Title),
			URL:     r.URL,
			VenueID: id,
			Snippet: r.Snippet,
		})
	}
	return hits
}

func (u *UberEats) hitsFromRecognizedHosts(results []searchpool.Result) []SearchHit {
	var hits []SearchHit
	for _, r := range results {
		if _, ok := u.ResolveCountry(r.URL); !ok {
			continue
		}
		name := cleanResultTitle(r.Title)
		if name == "" {
			continue
		}
		hits = append(hits, SearchHit{Name: name, URL: r.URL, Snippet: r.Snippet})
	}
	return hits
}

func (u *UberEats) hitsFromSnippets(results []searchpool.Result) []SearchHit {
	var hits []SearchHit
	for _, r := range results {
		for _, raw := range urlInText.FindAllString(r.Snippet, -1) {
			id, ok := u.ExtractVenueID(raw)
			if !ok {
				continue
			}
			hits = append(hits, SearchHit{
				Name:    cleanResultTitle(r.Title),
				URL:     raw,
				VenueID: id,
				Snippet: r.Snippet,
			})
		}
	}
	return hits
}

// ParseVenuePage parses a store page via the layered fallback cascade. The
// country selects the fallback currency for prices without a marker.
func (u *UberEats) ParseVenuePage(content, country string) (*model.VenuePage, error) {
	cur := "USD"
	if cc, ok := uberEatsCountries[strings.ToUpper(country)]; ok {
		cur = cc.currency
	}
	if page, ok := parseJSONLD(content, cur, u.productFamily); ok {
		return page, nil
	}
	if page, ok := parseMarkup(content, uberEatsItemPatterns, uberEatsNamePattern, cur, u.productFamily); ok {
		return page, nil
	}
	if page, ok := scanProductLines(content, u.productFamily, cur); ok {
		return page, nil
	}
	return nil, &ParseError{Platform: model.PlatformUberEats, Stage: "venue page"}
}
