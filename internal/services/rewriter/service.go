// Package rewriter produces the publishable copy of an offer with an LLM.
package rewriter

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
)

// Service rewrites offer text while keeping [LINK_n] placeholders in place.
// A nil provider disables rewriting.
type Service struct {
	provider Provider
	config   common.RewriterConfig
	retry    *httpclient.RetryPolicy
	logger   arbor.ILogger
}

// Option configures a Service
type Option func(*Service)

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(policy *httpclient.RetryPolicy) Option {
	return func(s *Service) {
		s.retry = policy
	}
}

// NewService creates a rewriter over provider
func NewService(provider Provider, config common.RewriterConfig, logger arbor.ILogger, opts ...Option) *Service {
	policy := httpclient.NewRetryPolicy()
	policy.InitialBackoff = 5 * time.Second
	policy.MaxBackoff = 20 * time.Second

	s := &Service{
		provider: provider,
		config:   config,
		retry:    policy,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a provider is configured
func (s *Service) Enabled() bool {
	return s.provider != nil
}

func (s *Service) generate(ctx context.Context, req *Request) (string, error) {
	var out string
	err := s.retry.Do(ctx, s.logger, func() error {
		text, err := s.provider.Generate(ctx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}

// Rewrite returns the rewritten text. The caller keeps the original on error.
func (s *Service) Rewrite(ctx context.Context, text string) (string, error) {
	if s.provider == nil || strings.TrimSpace(text) == "" {
		return text, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.generate(ctx, &Request{
		SystemInstruction: systemPrompt(s.config.SystemPrompt, s.config.OwnChannelURL),
		Prompt:            rewritePrompt(text),
		Temperature:       s.config.Temperature,
		MaxTokens:         s.config.MaxTokens,
	})
	if err != nil {
		s.logger.Warn().Str("provider", string(s.provider.Type())).Err(err).Msg("Rewrite failed")
		return "", err
	}

	out = TrimTrailingCallToAction(NormalizeHTML(out))
	s.logger.Debug().Int("input_len", len(text)).Int("output_len", len(out)).Msg("Offer text rewritten")
	return out, nil
}

// ExtractProductName asks the model for a short product name. It returns
// UnknownProduct when nothing usable comes back.
func (s *Service) ExtractProductName(ctx context.Context, text string) string {
	if s.provider == nil || strings.TrimSpace(text) == "" {
		return UnknownProduct
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.generate(ctx, &Request{
		Prompt:      sprintfProductPrompt(text),
		Temperature: 0.2,
		MaxTokens:   64,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Product name extraction failed")
		return UnknownProduct
	}

	name := strings.Trim(strings.TrimSpace(out), `"'.`)
	words := strings.Fields(name)
	if len(words) == 0 {
		return UnknownProduct
	}
	if len(words) > 15 {
		name = strings.Join(words[:7], " ")
	}
	return name
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout > 0 {
		return context.WithTimeout(ctx, s.config.Timeout.Std())
	}
	return context.WithCancel(ctx)
}
