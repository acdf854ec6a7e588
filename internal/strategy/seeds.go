package strategy

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/store"
)

// seedFile is the on-disk shape of a strategy seed catalog.
type seedFile struct {
	Strategies []seedEntry `yaml:"strategies"`
}

type seedEntry struct {
	ID            string `yaml:"id"`
	QueryTemplate string `yaml:"query_template"`
	Platform      string `yaml:"platform"`
	Country       string `yaml:"country"`
	Tier          int    `yaml:"tier"`
}

// LoadSeeds reads a YAML seed catalog and upserts each entry with origin
// seed. Existing entries keep their performance history; only the template
// and tier are refreshed.
func LoadSeeds(ctx context.Context, st store.Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "strategy: read seed file %s", path)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, eris.Wrapf(err, "strategy: parse seed file %s", path)
	}

	log := zap.L().With(zap.String("service", "strategy"))
	count := 0
	for _, entry := range file.Strategies {
		if entry.QueryTemplate == "" || entry.Platform == "" || entry.Country == "" {
			log.Warn("skipping incomplete seed entry", zap.String("id", entry.ID))
			continue
		}
		tier := entry.Tier
		if tier < 1 || tier > 3 {
			tier = 2
		}
		s := model.Strategy{
			ID:            entry.ID,
			QueryTemplate: entry.QueryTemplate,
			Platform:      model.Platform(entry.Platform),
			Country:       entry.Country,
			Tier:          tier,
			Origin:        model.OriginSeed,
			Active:        true,
		}
		if err := st.UpsertStrategy(ctx, s); err != nil {
			return count, err
		}
		count++
	}
	log.Info("seeded strategy catalog", zap.Int("count", count), zap.String("path", path))
	return count, nil
}
