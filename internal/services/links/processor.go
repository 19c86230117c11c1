package links

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/metrics"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/ternarybob/promolink/internal/services/affiliate"
	"golang.org/x/sync/errgroup"
)

// Link resolution results used as metric labels
const (
	resultConverted   = "converted"
	resultBlacklisted = "blacklisted"
	resultFailed      = "failed"
)

// Placeholder returns the token for link index i
func Placeholder(i int) string {
	return fmt.Sprintf("[LINK_%d]", i)
}

// Processor replaces the URLs of a message with [LINK_n] placeholders and
// resolves each one to its affiliate URL
type Processor struct {
	blacklist   *DomainList
	ownChannels *DomainList
	expander    interfaces.URLExpander
	converter   interfaces.LinkConverter
	maxParallel int
	metrics     *metrics.Metrics
	logger      arbor.ILogger
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithMaxParallel bounds concurrent link resolutions (default 4)
func WithMaxParallel(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxParallel = n
		}
	}
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor creates a link processor
func NewProcessor(
	blacklist *DomainList,
	ownChannels *DomainList,
	expander interfaces.URLExpander,
	converter interfaces.LinkConverter,
	logger arbor.ILogger,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		blacklist:   blacklist,
		ownChannels: ownChannels,
		expander:    expander,
		converter:   converter,
		maxParallel: 4,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessAndReplace substitutes every non-own-channel URL of text with a
// placeholder and returns the trimmed text plus the placeholder map.
//
// extraLink, when given, is placed first and receives [LINK_0] even if it does
// not occur in text. Own-channel links stay verbatim and consume no index.
// Blacklisted links map to nil. A link whose resolution fails maps to the
// original URL. Indices follow extraction order even though links resolve
// concurrently.
func (p *Processor) ProcessAndReplace(ctx context.Context, text string, extraLink string) (string, models.PlaceholderMap) {
	started := time.Now()
	defer func() { p.metrics.ObserveLinkProcessing(time.Since(started)) }()

	matches := findURLs(text)

	candidates := make([]string, 0, len(matches)+1)
	if extra := strings.TrimSpace(extraLink); extra != "" {
		candidates = append(candidates, ensureScheme(extra))
	}
	for _, m := range matches {
		candidates = append(candidates, m.url)
	}

	index := make(map[string]int, len(candidates))
	ordered := make([]string, 0, len(candidates))
	for _, u := range candidates {
		if _, ok := index[u]; ok {
			continue
		}
		if p.ownChannels.Matches(u) {
			continue
		}
		index[u] = len(ordered)
		ordered = append(ordered, u)
	}

	resolved := make([]*string, len(ordered))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.maxParallel)
	for i, u := range ordered {
		group.Go(func() error {
			resolved[i] = p.resolveSafely(groupCtx, u)
			return nil
		})
	}
	_ = group.Wait()

	placeholders := make(models.PlaceholderMap, len(ordered))
	for i := range ordered {
		placeholders[Placeholder(i)] = resolved[i]
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		i, ok := index[m.url]
		if !ok {
			continue
		}
		b.WriteString(text[last:m.start])
		b.WriteString(Placeholder(i))
		last = m.end
	}
	b.WriteString(text[last:])

	return strings.TrimSpace(b.String()), placeholders
}

// resolveSafely isolates a single link: a panic while resolving it maps the
// placeholder to the original URL instead of aborting the message
func (p *Processor) resolveSafely(ctx context.Context, rawURL string) (result *string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("url", rawURL).Str("panic", fmt.Sprintf("%v", r)).Msg("Link resolution panicked, keeping original URL")
			p.metrics.RecordLink(affiliate.Classify(rawURL).String(), resultFailed)
			original := rawURL
			result = &original
		}
	}()
	return p.resolve(ctx, rawURL)
}

func (p *Processor) resolve(ctx context.Context, rawURL string) *string {
	if p.blacklist.Matches(rawURL) {
		p.logger.Debug().Str("url", rawURL).Msg("Link blocked by blacklist")
		p.metrics.RecordLink(models.MerchantUnknown.String(), resultBlacklisted)
		return nil
	}

	expanded := p.expander.Expand(ctx, rawURL)
	if p.blacklist.Matches(expanded) {
		p.logger.Debug().Str("url", rawURL).Str("expanded", expanded).Msg("Expanded link blocked by blacklist")
		p.metrics.RecordLink(affiliate.Classify(expanded).String(), resultBlacklisted)
		return nil
	}

	converted := p.converter.Convert(ctx, expanded)
	if converted == "" {
		converted = rawURL
	}

	merchant := affiliate.Classify(expanded)
	p.metrics.RecordLink(merchant.String(), resultConverted)
	p.logger.Debug().
		Str("url", rawURL).
		Str("expanded", expanded).
		Str("merchant", merchant.String()).
		Msg("Link converted")

	return &converted
}
