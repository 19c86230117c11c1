package common

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/promolink/internal/interfaces"
)

// Secret key names shared by the KV store, the environment mapping and the services
const (
	SecretMLAffiliateCookie   = "ml_affiliate_cookie"
	SecretAliExpressAppSecret = "aliexpress_app_secret"
	SecretShopeeSecret        = "shopee_secret"
	SecretGeminiAPIKey        = "gemini_api_key"
	SecretAnthropicAPIKey     = "anthropic_api_key"
	SecretTelegramBotToken    = "telegram_bot_token"
	SecretWhatsAppToken       = "whatsapp_token"
)

// secretEnvMapping lists environment variables per secret, first match wins
var secretEnvMapping = map[string][]string{
	SecretMLAffiliateCookie:   {"PROMOLINK_ML_AFFILIATE_COOKIE", "ML_AFFILIATE_COOKIE"},
	SecretAliExpressAppSecret: {"PROMOLINK_ALIEXPRESS_APP_SECRET", "ALI_APP_SECRET"},
	SecretShopeeSecret:        {"PROMOLINK_SHOPEE_SECRET"},
	SecretGeminiAPIKey:        {"PROMOLINK_GEMINI_API_KEY", "GEMINI_API_KEY"},
	SecretAnthropicAPIKey:     {"PROMOLINK_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
	SecretTelegramBotToken:    {"PROMOLINK_TELEGRAM_BOT_TOKEN", "BOT_TOKEN"},
	SecretWhatsAppToken:       {"PROMOLINK_WHATSAPP_TOKEN", "GREEN_API_TOKEN"},
}

// ResolveAPIKey resolves a secret by name.
// Resolution order: environment variables → KV store → config fallback → error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	for _, envVarName := range secretEnvMapping[name] {
		if envValue := os.Getenv(envVarName); envValue != "" {
			return envValue, nil
		}
	}

	if kvStorage != nil {
		value, err := kvStorage.Get(ctx, name)
		if err == nil && value != "" {
			return value, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("secret '%s' not found in environment, KV store, or config", name)
}

// SecretResolver binds ResolveAPIKey to a KV store so services can re-read
// credentials on every call and pick up changes without a restart
type SecretResolver struct {
	kvStorage interfaces.KeyValueStorage
}

// NewSecretResolver creates a resolver over the given KV store (nil skips the KV tier)
func NewSecretResolver(kvStorage interfaces.KeyValueStorage) *SecretResolver {
	return &SecretResolver{kvStorage: kvStorage}
}

// Resolve returns the secret value, or "" when it is not configured anywhere
func (r *SecretResolver) Resolve(ctx context.Context, name string, configFallback string) string {
	var kv interfaces.KeyValueStorage
	if r != nil {
		kv = r.kvStorage
	}
	value, err := ResolveAPIKey(ctx, kv, name, configFallback)
	if err != nil {
		return ""
	}
	return value
}
