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

// takeawayDomain describes one country site of the Takeaway.com family
// (Lieferando, Pyszne, Thuisbezorgd, Eat.ch).
type takeawayDomain struct {
	host     string
	menuPath string
	currency string
}

// takeawayDomains is the fixed per-country domain table.
var takeawayDomains = map[string]takeawayDomain{
	"DE": {host: "www.lieferando.de", menuPath: "speisekarte", currency: "EUR"},
	"AT": {host: "www.lieferando.at", menuPath: "speisekarte", currency: "EUR"},
	"PL": {host: "www.pyszne.pl", menuPath: "restauracja", currency: "PLN"},
	"NL": {host: "www.thuisbezorgd.nl", menuPath: "menu", currency: "EUR"},
	"CH": {host: "www.eat.ch", menuPath: "menu", currency: "CHF"},
}

var takeawayItemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)data-qa="menu-item-name[^"]*"[^>]*>([^<]+)<.{0,600}?data-qa="menu-item-price[^"]*"[^>]*>([^<]+)<`),
	regexp.MustCompile(`(?is)class="[^"]*meal-name[^"]*"[^>]*>([^<]+)<.{0,600}?class="[^"]*meal-price[^"]*"[^>]*>([^<]+)<`),
}

var takeawayNamePattern = regexp.MustCompile(`(?is)<h1[^>]*>([^<]+)</h1>`)

// Takeaway is the adapter for the Takeaway.com platform family.
type Takeaway struct {
	productFamily string
}

// NewTakeaway creates the Takeaway.com family adapter. productFamily drives
// the last-resort page scan and item tagging.
func NewTakeaway(productFamily string) *Takeaway {
	return &Takeaway{productFamily: productFamily}
}

// Platform returns the platform tag.
func (t *Takeaway) Platform() model.Platform { return model.PlatformTakeaway }

// Countries lists supported country codes in stable order.
func (t *Takeaway) Countries() []string {
	out := make([]string, 0, len(takeawayDomains))
	for c := range takeawayDomains {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SearchDomain returns the country-specific site host.
func (t *Takeaway) SearchDomain(country string) (string, error) {
	d, ok := takeawayDomains[strings.ToUpper(country)]
	if !ok {
		return "", eris.Errorf("takeaway: unsupported country %q", country)
	}
	return d.host, nil
}

// BuildSearchURL returns a site-restricted search query string.
func (t *Takeaway) BuildSearchURL(query, country, city string) (string, error) {
	d, ok := takeawayDomains[strings.ToUpper(country)]
	if !ok {
		return "", eris.Errorf("takeaway: unsupported country %q", country)
	}
	q := fmt.Sprintf("site:%s/%s %q", d.host, d.menuPath, query)
	if city != "" {
		q += " " + city
	}
	return q, nil
}

// BuildVenueURL returns the canonical menu URL for a venue slug.
func (t *Takeaway) BuildVenueURL(slug, country string) (string, error) {
	d, ok := takeawayDomains[strings.ToUpper(country)]
	if !ok {
		return "", eris.Errorf("takeaway: unsupported country %q", country)
	}
	return fmt.Sprintf("https://%s/%s/%s", d.host, d.menuPath, strings.Trim(slug, "/")), nil
}

// ExtractVenueID parses the venue slug from a menu URL.
func (t *Takeaway) ExtractVenueID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	country, ok := t.countryForHost(u.Host)
	if !ok {
		return "", false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] != takeawayDomains[country].menuPath || segments[1] == "" {
		return "", false
	}
	return segments[1], true
}

// ResolveCountry derives the country from the URL host. Pure; unrecognized
// hosts simply report ok=false.
func (t *Takeaway) ResolveCountry(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return t.countryForHost(u.Host)
}

func (t *Takeaway) countryForHost(host string) (string, bool) {
	host = strings.ToLower(host)
	for country, d := range takeawayDomains {
		if host == d.host || host == strings.TrimPrefix(d.host, "www.") {
			return country, true
		}
	}
	return "", false
}

// ParseSearchResults extracts venue candidates. Strategy order: venue-URL
// grammar, then recognized-host titles, then snippet URL scan. First
// non-empty result set wins.
func (t *Takeaway) ParseSearchResults(results []searchpool.Result) []SearchHit {
	strategies := []func([]searchpool.Result) []SearchHit{
		t.hitsFromVenueURLs,
		t.hitsFromRecognizedHosts,
		t.hitsFromSnippets,
	}
	for _, strategy := range strategies {
		if hits := strategy(results); len(hits) > 0 {
			return dedupeHits(hits)
		}
	}
	return nil
}

func (t *Takeaway) hitsFromVenueURLs(results []searchpool.Result) []SearchHit {
	var hits []SearchHit
	for _, r := range results {
		id, ok := t.ExtractVenueID(r.URL)
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

func (t *Takeaway) hitsFromRecognizedHosts(results []searchpool.Result) []SearchHit {
	var hits []SearchHit
	for _, r := range results {
		if _, ok := t.ResolveCountry(r.URL); !ok {
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

var urlInText = regexp.MustCompile(`https?://[^\s"'<>]+`)

func (t *Takeaway) hitsFromSnippets(results []searchpool.Result) []SearchHit {
	var hits []SearchHit
	for _, r := range results {
		for _, raw := range urlInText.FindAllString(r.Snippet, -1) {
			id, ok := t.ExtractVenueID(raw)
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

// ParseVenuePage parses a menu page via the layered fallback cascade. The
// country selects the fallback currency for prices without a marker.
func (t *Takeaway) ParseVenuePage(content, country string) (*model.VenuePage, error) {
	cur := "EUR"
	if d, ok := takeawayDomains[strings.ToUpper(country)]; ok {
		cur = d.currency
	}
	if page, ok := parseJSONLD(content, cur, t.productFamily); ok {
		return page, nil
	}
	if page, ok := parseMarkup(content, takeawayItemPatterns, takeawayNamePattern, cur, t.productFamily); ok {
		return page, nil
	}
	if page, ok := scanProductLines(content, t.productFamily, cur); ok {
		return page, nil
	}
	return nil, &ParseError{Platform: model.PlatformTakeaway, Stage: "venue page"}
}

// cleanResultTitle strips search-result suffixes like " | Lieferando.de".
func cleanResultTitle(title string) string {
	for _, sep := range []string{" | ", " – ", " - "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}
	return strings.TrimSpace(title)
}
