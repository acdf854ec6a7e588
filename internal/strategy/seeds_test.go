package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/store"
)

// seedMockStore records upserted strategies; unused methods panic via the
// embedded nil Store.
type seedMockStore struct {
	store.Store

	upserted []model.Strategy
}

func (m *seedMockStore) UpsertStrategy(_ context.Context, s model.Strategy) error {
	m.upserted = append(m.upserted, s)
	return nil
}

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeeds(t *testing.T) {
	path := writeSeedFile(t, `
strategies:
  - id: takeaway-de-sitesearch
    query_template: 'site:www.lieferando.de/speisekarte "{product}" {city}'
    platform: takeaway
    country: DE
    tier: 1
  - id: uber-us-generic
    query_template: '{product} delivery {city} ubereats'
    platform: uber_eats
    country: US
    tier: 9
  - id: broken-entry
    platform: takeaway
    country: DE
`)

	st := &seedMockStore{}
	count, err := LoadSeeds(context.Background(), st, path)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "incomplete entries are skipped")
	require.Len(t, st.upserted, 2)

	first := st.upserted[0]
	assert.Equal(t, "takeaway-de-sitesearch", first.ID)
	assert.Equal(t, model.PlatformTakeaway, first.Platform)
	assert.Equal(t, 1, first.Tier)
	assert.Equal(t, model.OriginSeed, first.Origin)
	assert.True(t, first.Active)

	assert.Equal(t, 2, st.upserted[1].Tier, "out-of-range tier is clamped to the default")
}

func TestLoadSeedsMissingFile(t *testing.T) {
	_, err := LoadSeeds(context.Background(), &seedMockStore{}, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read seed file")
}

func TestLoadSeedsMalformedYAML(t *testing.T) {
	path := writeSeedFile(t, "strategies: [not, a, mapping")
	_, err := LoadSeeds(context.Background(), &seedMockStore{}, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse seed file")
}
