package rewriter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"google.golang.org/genai"
)

// ProviderType names the LLM backend
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderClaude ProviderType = "claude"
	ProviderNone   ProviderType = "none"
)

// Request is a provider-agnostic generation request
type Request struct {
	SystemInstruction string
	Prompt            string
	Temperature       float32
	MaxTokens         int
}

// Provider generates text. Errors come back as httpclient typed errors so the
// caller can decide whether to retry.
type Provider interface {
	Type() ProviderType
	Generate(ctx context.Context, req *Request) (string, error)
}

// NewProvider builds the provider selected in config, or nil for "none".
// API keys are resolved lazily on first use.
func NewProvider(config common.RewriterConfig, secrets *common.SecretResolver, logger arbor.ILogger) (Provider, error) {
	switch ProviderType(config.Provider) {
	case ProviderGemini:
		return &geminiProvider{config: config, secrets: secrets, logger: logger}, nil
	case ProviderClaude:
		return &claudeProvider{config: config, secrets: secrets, logger: logger}, nil
	case ProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown rewriter provider: %s", config.Provider)
	}
}

type geminiProvider struct {
	config  common.RewriterConfig
	secrets *common.SecretResolver
	logger  arbor.ILogger

	mu     sync.Mutex
	client *genai.Client
}

func (p *geminiProvider) Type() ProviderType { return ProviderGemini }

func (p *geminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	apiKey := p.secrets.Resolve(ctx, common.SecretGeminiAPIKey, p.config.APIKey)
	if apiKey == "" {
		return nil, &httpclient.PermanentError{Endpoint: "gemini", Message: "gemini api key not configured"}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	p.client = client
	return client, nil
}

func (p *geminiProvider) Generate(ctx context.Context, req *Request) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := client.Models.GenerateContent(ctx, p.config.Model, contents, config)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &httpclient.PermanentError{Endpoint: "gemini", Message: "empty response"}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &httpclient.PermanentError{Endpoint: "gemini", Message: "empty text in response"}
	}
	return text, nil
}

// retryDelayPattern matches "Please retry in 45.3s" and "retryDelay: 45s"
var retryDelayPattern = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s"]+)(\d+(?:\.\d+)?)\s*s`)

func extractRetryDelay(message string) time.Duration {
	m := retryDelayPattern.FindStringSubmatch(message)
	if len(m) < 2 {
		return 0
	}
	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return httpclient.Classify("gemini", 0, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return &httpclient.RateLimitedError{Endpoint: "gemini", RetryAfter: extractRetryDelay(apiErr.Message)}
		}
		if classified := httpclient.Classify("gemini", apiErr.Code, nil); classified != nil {
			return classified
		}
	}

	// Some SDK paths only surface the status in the message
	if strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		return &httpclient.RateLimitedError{Endpoint: "gemini", RetryAfter: extractRetryDelay(err.Error())}
	}
	return httpclient.Classify("gemini", 0, err)
}

type claudeProvider struct {
	config  common.RewriterConfig
	secrets *common.SecretResolver
	logger  arbor.ILogger

	mu     sync.Mutex
	client *anthropic.Client
}

func (p *claudeProvider) Type() ProviderType { return ProviderClaude }

func (p *claudeProvider) getClient(ctx context.Context) (*anthropic.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	apiKey := p.secrets.Resolve(ctx, common.SecretAnthropicAPIKey, p.config.APIKey)
	if apiKey == "" {
		return nil, &httpclient.PermanentError{Endpoint: "claude", Message: "anthropic api key not configured"}
	}

	// Retries are driven by our RetryPolicy
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	p.client = &client
	return p.client, nil
}

func (p *claudeProvider) Generate(ctx context.Context, req *Request) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyClaudeError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", &httpclient.PermanentError{Endpoint: "claude", Message: "empty response"}
	}
	return strings.TrimSpace(text.String()), nil
}

func classifyClaudeError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			var retryAfter time.Duration
			if apiErr.Response != nil {
				retryAfter = httpclient.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &httpclient.RateLimitedError{Endpoint: "claude", RetryAfter: retryAfter}
		}
		if classified := httpclient.Classify("claude", apiErr.StatusCode, nil); classified != nil {
			return classified
		}
	}
	return httpclient.Classify("claude", 0, err)
}
