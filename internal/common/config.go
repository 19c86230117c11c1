package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Logging      LoggingConfig      `toml:"logging"`
	Storage      StorageConfig      `toml:"storage"`
	History      HistoryConfig      `toml:"history"`
	Dedup        DedupConfig        `toml:"dedup"`
	Links        LinksConfig        `toml:"links"`
	Amazon       AmazonConfig       `toml:"amazon"`
	MercadoLivre MercadoLivreConfig `toml:"mercadolivre"`
	AliExpress   AliExpressConfig   `toml:"aliexpress"`
	Shopee       ShopeeConfig       `toml:"shopee"`
	Scraper      ScraperConfig      `toml:"scraper"`
	Rewriter     RewriterConfig     `toml:"rewriter"`
	Telegram     TelegramConfig     `toml:"telegram"`
	WhatsApp     WhatsAppConfig     `toml:"whatsapp"`
	Pipeline     PipelineConfig     `toml:"pipeline"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "console", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// HistoryConfig selects where published-offer signatures are kept
type HistoryConfig struct {
	Backend       string   `toml:"backend" validate:"oneof=badger redis"`
	RedisURL      string   `toml:"redis_url" validate:"required_if=Backend redis"`
	Retention     Duration `toml:"retention"`      // entries older than this are purged
	PurgeSchedule string   `toml:"purge_schedule"` // cron expression, empty disables purge
}

// DedupConfig holds the tuning values for the duplicate gate
type DedupConfig struct {
	WindowMinutes  int     `toml:"window_minutes" validate:"gte=1"`
	FuzzyThreshold float64 `toml:"fuzzy_threshold" validate:"gt=0,lte=1"`
	MinTokenLength int     `toml:"min_token_length" validate:"gte=0"` // tokens must be longer than this
	RecentPosts    int     `toml:"recent_posts" validate:"gte=0"`     // published posts consulted by the fuzzy check
}

type LinksConfig struct {
	Blacklist     []string `toml:"blacklist"`
	OwnChannels   []string `toml:"own_channels"`
	ExpandTimeout Duration `toml:"expand_timeout"`
	UserAgent     string   `toml:"user_agent"`
	MaxParallel   int      `toml:"max_parallel" validate:"gte=1"`
}

type AmazonConfig struct {
	Tag string `toml:"tag"`
}

type MercadoLivreConfig struct {
	Cookie      string   `toml:"cookie"` // affiliate session cookie, prefer the ml_affiliate_cookie key
	Tag         string   `toml:"tag"`
	APIURL      string   `toml:"api_url"`
	FallbackURL string   `toml:"fallback_url"`
	Timeout     Duration `toml:"timeout"`
}

type AliExpressConfig struct {
	AppKey     string   `toml:"app_key"`
	AppSecret  string   `toml:"app_secret"`
	TrackingID string   `toml:"tracking_id"`
	APIURL     string   `toml:"api_url"`
	Timeout    Duration `toml:"timeout"`
	RateLimit  int      `toml:"rate_limit"` // requests per second
}

type ShopeeConfig struct {
	AppID         string   `toml:"app_id"`
	Secret        string   `toml:"secret"`
	GraphQLURL    string   `toml:"graphql_url"`
	StorefrontURL string   `toml:"storefront_url"`
	SearchURL     string   `toml:"search_url"`
	SubID         string   `toml:"sub_id"`
	Timeout       Duration `toml:"timeout"`
	RateLimit     int      `toml:"rate_limit"`
}

type ScraperConfig struct {
	MaxAttempts    int      `toml:"max_attempts" validate:"gte=1"`
	RequestTimeout Duration `toml:"request_timeout"`
	UserAgents     []string `toml:"user_agents"`
}

type RewriterConfig struct {
	Provider      string   `toml:"provider" validate:"oneof=gemini claude none"`
	Model         string   `toml:"model"`
	APIKey        string   `toml:"api_key"`
	Temperature   float32  `toml:"temperature"`
	MaxTokens     int      `toml:"max_tokens"`
	Timeout       Duration `toml:"timeout"`
	OwnChannelURL string   `toml:"own_channel_url"`
	SystemPrompt  string   `toml:"system_prompt"` // empty uses the built-in prompt
}

type TelegramConfig struct {
	BotToken      string `toml:"bot_token"`
	TargetChannel string `toml:"target_channel"` // "-100..." id or "@name"
	CaptionLimit  int    `toml:"caption_limit" validate:"gte=1"`
}

type WhatsAppConfig struct {
	Enabled     bool   `toml:"enabled"`
	InstanceID  string `toml:"instance_id"`
	Token       string `toml:"token"`
	Destination string `toml:"destination"`
	APIURL      string `toml:"api_url"`
}

type PipelineConfig struct {
	DownloadsDir string `toml:"downloads_dir"`
	QueueSize    int    `toml:"queue_size" validate:"gte=1"`
}

// DefaultUserAgent is a desktop Chrome signature accepted by the merchant sites
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/promolink",
			},
		},
		History: HistoryConfig{
			Backend:       "badger",
			Retention:     Duration(7 * 24 * time.Hour),
			PurgeSchedule: "0 4 * * *",
		},
		Dedup: DedupConfig{
			WindowMinutes:  60,
			FuzzyThreshold: 0.5,
			MinTokenLength: 3,
			RecentPosts:    50,
		},
		Links: LinksConfig{
			Blacklist:     []string{"nerdofertas.com", "t.me", "chat.whatsapp.com", "grupos.link"},
			OwnChannels:   []string{"t.me/promosliterais"},
			ExpandTimeout: Duration(15 * time.Second),
			UserAgent:     DefaultUserAgent,
			MaxParallel:   4,
		},
		Amazon: AmazonConfig{
			Tag: "luiz4opromos-20",
		},
		MercadoLivre: MercadoLivreConfig{
			Tag:         "drmkt",
			APIURL:      "https://www.mercadolivre.com.br/affiliate-program/api/v2/stripe/user/links",
			FallbackURL: "https://www.mercadolivre.com.br/social/drmkt?forceInApp=true&matt_word=drmk",
			Timeout:     Duration(10 * time.Second),
		},
		AliExpress: AliExpressConfig{
			APIURL:    "https://api-sg.aliexpress.com/sync",
			Timeout:   Duration(10 * time.Second),
			RateLimit: 5,
		},
		Shopee: ShopeeConfig{
			GraphQLURL:    "https://open-api.affiliate.shopee.com.br/graphql",
			StorefrontURL: "https://shopee.com.br/api/v4/item/get",
			SearchURL:     "https://html.duckduckgo.com/html/",
			Timeout:       Duration(10 * time.Second),
			RateLimit:     5,
		},
		Scraper: ScraperConfig{
			MaxAttempts:    3,
			RequestTimeout: Duration(20 * time.Second),
		},
		Rewriter: RewriterConfig{
			Provider:      "gemini",
			Model:         "gemini-2.5-flash",
			Temperature:   0.7,
			MaxTokens:     1024,
			Timeout:       Duration(60 * time.Second),
			OwnChannelURL: "https://t.me/promosliterais",
		},
		Telegram: TelegramConfig{
			CaptionLimit: 1024,
		},
		WhatsApp: WhatsAppConfig{
			APIURL: "https://api.green-api.com",
		},
		Pipeline: PipelineConfig{
			DownloadsDir: "./downloads",
			QueueSize:    100,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies PROMOLINK_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PROMOLINK_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("PROMOLINK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PROMOLINK_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging
	if level := os.Getenv("PROMOLINK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PROMOLINK_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage and history
	if badgerPath := os.Getenv("PROMOLINK_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if backend := os.Getenv("PROMOLINK_HISTORY_BACKEND"); backend != "" {
		config.History.Backend = backend
	}
	if redisURL := os.Getenv("PROMOLINK_REDIS_URL"); redisURL != "" {
		config.History.RedisURL = redisURL
	}

	// Dedup
	if window := os.Getenv("PROMOLINK_DEDUP_WINDOW_MINUTES"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			config.Dedup.WindowMinutes = w
		}
	}
	if threshold := os.Getenv("PROMOLINK_DEDUP_FUZZY_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Dedup.FuzzyThreshold = t
		}
	}

	// Links
	if blacklist := os.Getenv("PROMOLINK_LINKS_BLACKLIST"); blacklist != "" {
		config.Links.Blacklist = splitList(blacklist)
	}
	if ownChannels := os.Getenv("PROMOLINK_LINKS_OWN_CHANNELS"); ownChannels != "" {
		config.Links.OwnChannels = splitList(ownChannels)
	}
	if timeout := os.Getenv("PROMOLINK_LINKS_EXPAND_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Links.ExpandTimeout = Duration(d)
		}
	}

	// Merchants
	if tag := os.Getenv("PROMOLINK_AMAZON_TAG"); tag != "" {
		config.Amazon.Tag = tag
	}
	if appKey := os.Getenv("PROMOLINK_ALIEXPRESS_APP_KEY"); appKey != "" {
		config.AliExpress.AppKey = appKey
	}
	if trackingID := os.Getenv("PROMOLINK_ALIEXPRESS_TRACKING_ID"); trackingID != "" {
		config.AliExpress.TrackingID = trackingID
	}
	if appID := os.Getenv("PROMOLINK_SHOPEE_APP_ID"); appID != "" {
		config.Shopee.AppID = appID
	}
	if subID := os.Getenv("PROMOLINK_SHOPEE_SUB_ID"); subID != "" {
		config.Shopee.SubID = subID
	}

	// Rewriter
	if provider := os.Getenv("PROMOLINK_REWRITER_PROVIDER"); provider != "" {
		config.Rewriter.Provider = provider
	}
	if model := os.Getenv("PROMOLINK_REWRITER_MODEL"); model != "" {
		config.Rewriter.Model = model
	}

	// Publishing
	if target := os.Getenv("PROMOLINK_TELEGRAM_TARGET_CHANNEL"); target != "" {
		config.Telegram.TargetChannel = target
	}
	if enabled := os.Getenv("PROMOLINK_WHATSAPP_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.WhatsApp.Enabled = e
		}
	}
	if instanceID := os.Getenv("PROMOLINK_WHATSAPP_INSTANCE_ID"); instanceID != "" {
		config.WhatsApp.InstanceID = instanceID
	}
	if destination := os.Getenv("PROMOLINK_WHATSAPP_DESTINATION"); destination != "" {
		config.WhatsApp.Destination = destination
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the final configuration for values the services cannot run with
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// splitList splits a comma-separated environment value, dropping empty items
func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
