package rewriter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"google.golang.org/genai"
)

type stubProvider struct {
	responses []string
	errs      []error
	calls     int
	last      *Request
}

func (p *stubProvider) Type() ProviderType { return ProviderGemini }

func (p *stubProvider) Generate(ctx context.Context, req *Request) (string, error) {
	i := p.calls
	p.calls++
	p.last = req
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return p.responses[len(p.responses)-1], nil
}

func fastPolicy() *httpclient.RetryPolicy {
	return &httpclient.RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxRetryAfter:     5 * time.Millisecond,
	}
}

func newTestService(p Provider) *Service {
	config := common.RewriterConfig{OwnChannelURL: "https://t.me/promosliterais", Temperature: 0.7}
	return NewService(p, config, arbor.NewLogger(), WithRetryPolicy(fastPolicy()))
}

func TestNormalizeHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"markdown bold and italic", "**Oferta** do dia\n\nCompre *já* [LINK_0]", "<b>Oferta</b> do dia\n\nCompre <i>já</i> [LINK_0]"},
		{"breaks and paragraphs", "<p>Linha 1<br>Linha 2</p>", "Linha 1\nLinha 2"},
		{"html kept", "<b>Fone</b> por <code>R$ 99</code>", "<b>Fone</b> por <code>R$ 99</code>"},
		{"code span", "Cupom `LIVRO10`", "Cupom <code>LIVRO10</code>"},
		{"plain text untouched", "🔥 Promo\n[LINK_0]", "🔥 Promo\n[LINK_0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHTML(tt.in))
		})
	}
}

func TestTrimTrailingCallToAction(t *testing.T) {
	assert.Equal(t, "Compre agora", TrimTrailingCallToAction("Compre agora 👉🛒 \n"))
	assert.Equal(t, "Clique", TrimTrailingCallToAction("Clique ⬇️🔗"))
	assert.Equal(t, "Compre 👉 [LINK_0]", TrimTrailingCallToAction("Compre 👉 [LINK_0]"))
}

func TestService_RewriteNormalizesOutput(t *testing.T) {
	p := &stubProvider{responses: []string{"**Fone JBL** baratíssimo\n[LINK_0] 🛒"}}
	s := newTestService(p)

	out, err := s.Rewrite(context.Background(), "Fone JBL por R$ 99 [LINK_0]")
	require.NoError(t, err)
	assert.Equal(t, "<b>Fone JBL</b> baratíssimo\n[LINK_0]", out)
	assert.Contains(t, p.last.SystemInstruction, "https://t.me/promosliterais")
	assert.Contains(t, p.last.Prompt, "Fone JBL por R$ 99 [LINK_0]")
}

func TestService_RewriteRetriesRateLimit(t *testing.T) {
	p := &stubProvider{
		errs:      []error{&httpclient.RateLimitedError{Endpoint: "gemini", RetryAfter: time.Millisecond}, nil},
		responses: []string{"", "ok [LINK_0]"},
	}
	s := newTestService(p)

	out, err := s.Rewrite(context.Background(), "texto [LINK_0]")
	require.NoError(t, err)
	assert.Equal(t, "ok [LINK_0]", out)
	assert.Equal(t, 2, p.calls)
}

func TestService_RewritePermanentErrorNotRetried(t *testing.T) {
	p := &stubProvider{
		errs:      []error{&httpclient.PermanentError{Endpoint: "gemini", Message: "bad key"}},
		responses: []string{"never"},
	}
	s := newTestService(p)

	_, err := s.Rewrite(context.Background(), "texto")
	require.Error(t, err)
	var permanent *httpclient.PermanentError
	assert.True(t, errors.As(err, &permanent))
	assert.Equal(t, 1, p.calls)
}

func TestService_DisabledProviderReturnsInput(t *testing.T) {
	s := newTestService(nil)
	out, err := s.Rewrite(context.Background(), "igual [LINK_0]")
	require.NoError(t, err)
	assert.Equal(t, "igual [LINK_0]", out)
	assert.Equal(t, UnknownProduct, s.ExtractProductName(context.Background(), "qualquer"))
	assert.False(t, s.Enabled())
}

func TestService_ExtractProductName(t *testing.T) {
	p := &stubProvider{responses: []string{" \"Caixa de Som Tribit StormBox\" "}}
	assert.Equal(t, "Caixa de Som Tribit StormBox", newTestService(p).ExtractProductName(context.Background(), "promo"))

	long := &stubProvider{responses: []string{"um dois tres quatro cinco seis sete oito nove dez onze doze treze quatorze quinze dezesseis"}}
	assert.Equal(t, "um dois tres quatro cinco seis sete", newTestService(long).ExtractProductName(context.Background(), "promo"))

	failing := &stubProvider{errs: []error{&httpclient.PermanentError{Endpoint: "gemini"}}, responses: []string{""}}
	assert.Equal(t, UnknownProduct, newTestService(failing).ExtractProductName(context.Background(), "promo"))
}

func TestClassifyGeminiError(t *testing.T) {
	err := classifyGeminiError(genai.APIError{Code: 429, Message: "Quota exceeded. Please retry in 12.5s.", Status: "RESOURCE_EXHAUSTED"})
	var rateLimited *httpclient.RateLimitedError
	require.True(t, errors.As(err, &rateLimited))
	assert.Equal(t, 12500*time.Millisecond, rateLimited.RetryAfter)

	err = classifyGeminiError(genai.APIError{Code: 503, Message: "overloaded", Status: "UNAVAILABLE"})
	assert.True(t, httpclient.IsRetryable(err))

	err = classifyGeminiError(genai.APIError{Code: 400, Message: "bad", Status: "INVALID_ARGUMENT"})
	assert.False(t, httpclient.IsRetryable(err))
}

func TestNewProvider(t *testing.T) {
	logger := arbor.NewLogger()

	p, err := NewProvider(common.RewriterConfig{Provider: "none"}, nil, logger)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProvider(common.RewriterConfig{Provider: "claude"}, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, ProviderClaude, p.Type())

	_, err = NewProvider(common.RewriterConfig{Provider: "gpt"}, nil, logger)
	assert.Error(t, err)
}
