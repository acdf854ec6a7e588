package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandreach/menuscout/internal/budget"
	"github.com/brandreach/menuscout/internal/config"
	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/store"
)

// Evolver proposes new query templates for underperforming sources by
// prompting a model with the catalog's performance history. Every call is
// metered against the budget.
type Evolver struct {
	store    store.Store
	governor *budget.Governor
	client   anthropic.Client
	cfg      config.AnthropicConfig
	log      *zap.Logger
}

// NewEvolver creates an evolver. The governor meters each model call.
func NewEvolver(st store.Store, gov *budget.Governor, cfg config.AnthropicConfig) *Evolver {
	return &Evolver{
		store:    st,
		governor: gov,
		client:   anthropic.NewClient(option.WithAPIKey(cfg.Key)),
		cfg:      cfg,
		log:      zap.L().With(zap.String("service", "strategy")),
	}
}

const evolvePrompt = `You generate web search query templates for finding restaurant pages on food delivery platforms.

Platform: %s
Country: %s
Product family: %s

Existing templates and their success rates:
%s

Propose up to %d new query templates that are meaningfully different from the existing ones. Templates may use the placeholders {product}, {country}, and {city}.

Respond with a JSON array of strings only, no prose.`

// Evolve asks the model for new templates for a source and stores them with
// origin agent, tier 3. Agent strategies stay out of the automatic tiering
// path until an operator reviews them.
func (e *Evolver) Evolve(ctx context.Context, platform model.Platform, country, productFamily string, maxNew int) ([]model.Strategy, error) {
	if throttled, reason, err := e.governor.IsThrottled(ctx); err != nil {
		return nil, err
	} else if throttled {
		return nil, eris.Wrapf(budget.ErrThrottled, "strategy: evolve blocked (%s)", reason)
	}

	existing, err := e.store.ListActiveStrategies(ctx, platform, country)
	if err != nil {
		return nil, err
	}

	var history strings.Builder
	for _, s := range existing {
		fmt.Fprintf(&history, "- %q (tier %d, success %.0f%%, %d uses)\n",
			s.QueryTemplate, s.Tier, s.SuccessRate*100, s.TotalUses)
	}
	if history.Len() == 0 {
		history.WriteString("(none yet)\n")
	}

	prompt := fmt.Sprintf(evolvePrompt, platform, country, productFamily, history.String(), maxNew)
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.cfg.Model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "strategy: model call")
	}
	if err := e.governor.RecordAICall(ctx, e.cfg.CostPerCallUSD); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}
	templates, err := parseTemplates(text.String())
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(existing))
	for _, s := range existing {
		known[strings.ToLower(s.QueryTemplate)] = true
	}

	var created []model.Strategy
	for _, tmpl := range templates {
		tmpl = strings.TrimSpace(tmpl)
		if tmpl == "" || known[strings.ToLower(tmpl)] {
			continue
		}
		if len(created) >= maxNew {
			break
		}
		s := model.Strategy{
			QueryTemplate: tmpl,
			Platform:      platform,
			Country:       country,
			Tier:          3,
			Origin:        model.OriginAgent,
			Active:        true,
		}
		if err := e.store.UpsertStrategy(ctx, s); err != nil {
			return created, err
		}
		created = append(created, s)
	}

	e.log.Info("evolved strategies",
		zap.String("platform", string(platform)),
		zap.String("country", country),
		zap.Int("created", len(created)),
	)
	return created, nil
}

// parseTemplates extracts the JSON array from the model response, tolerating
// surrounding prose or a code fence.
func parseTemplates(text string) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, eris.Errorf("strategy: no JSON array in model response")
	}
	var templates []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &templates); err != nil {
		return nil, eris.Wrap(err, "strategy: decode model response")
	}
	return templates, nil
}
