package affiliate

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
)

// Registry dispatches URLs to the converter registered for their merchant.
// Unknown merchants get generic tracking-parameter cleaning.
type Registry struct {
	converters map[models.Merchant]interfaces.AffiliateConverter
	logger     arbor.ILogger
}

// NewRegistry creates a registry holding the given converters
func NewRegistry(logger arbor.ILogger, converters ...interfaces.AffiliateConverter) *Registry {
	r := &Registry{
		converters: make(map[models.Merchant]interfaces.AffiliateConverter, len(converters)),
		logger:     logger,
	}
	for _, c := range converters {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the converter for c.Merchant()
func (r *Registry) Register(c interfaces.AffiliateConverter) {
	r.converters[c.Merchant()] = c
}

// Converter returns the converter registered for merchant, if any
func (r *Registry) Converter(merchant models.Merchant) (interfaces.AffiliateConverter, bool) {
	c, ok := r.converters[merchant]
	return c, ok
}

// Convert cleans rawURL and hands it to the matching merchant converter.
// It never fails; the worst case is the cleaned input.
func (r *Registry) Convert(ctx context.Context, rawURL string) string {
	cleaned := CleanTrackingParams(rawURL)
	merchant := Classify(cleaned)

	converter, ok := r.converters[merchant]
	if !ok {
		return cleaned
	}

	// Converter output is not cleaned again: the Mercado Livre fallback link
	// carries matt_word, which CleanTrackingParams would strip.
	converted := converter.Convert(ctx, cleaned)
	if converted == "" {
		r.logger.Warn().Str("merchant", merchant.String()).Msg("Converter returned an empty URL, using cleaned original")
		return cleaned
	}
	return converted
}
