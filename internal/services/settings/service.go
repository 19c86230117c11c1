package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/interfaces"
)

// Runtime setting keys, editable while the service runs
const (
	KeyPaused          = "paused"
	KeyManualApproval  = "manual_approval"
	KeyMinPrice        = "min_price"
	KeyDelayMinutes    = "delay_minutes"
	KeySignature       = "signature"
	KeyCooldownMinutes = "cooldown_minutes"
	KeyAdminID         = "admin_id"
	KeyKeywords        = "keywords"        // comma separated
	KeySourceChannels  = "source_channels" // comma separated
)

type definition struct {
	value       string
	description string
}

var defaults = map[string]definition{
	KeyPaused:          {"false", "Stop handling incoming messages"},
	KeyManualApproval:  {"false", "Hold offers until an admin approves them"},
	KeyMinPrice:        {"0", "Skip offers cheaper than this (R$)"},
	KeyDelayMinutes:    {"0", "Wait between published offers"},
	KeySignature:       {"", "Text appended to every post"},
	KeyCooldownMinutes: {"60", "Window for exact duplicate detection"},
	KeyAdminID:         {"", "Telegram chat that receives previews and errors"},
	KeyKeywords:        {"", "Only forward offers mentioning one of these words"},
	KeySourceChannels:  {"", "Channels accepted as offer sources"},
}

// Service provides typed access to runtime settings kept in the key/value store
type Service struct {
	storage interfaces.KeyValueStorage
	logger  arbor.ILogger
}

// NewService creates a new settings service
func NewService(storage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// IsKnown reports whether key is a runtime setting
func IsKnown(key string) bool {
	_, ok := defaults[key]
	return ok
}

// SeedDefaults stores default values for settings that are not set yet
func (s *Service) SeedDefaults(ctx context.Context) error {
	seeded := 0
	for key, def := range defaults {
		created, err := s.storage.SetIfAbsent(ctx, key, def.value, def.description)
		if err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", key, err)
		}
		if created {
			seeded++
		}
	}
	if seeded > 0 {
		s.logger.Info().Int("count", seeded).Msg("Seeded default settings")
	}
	return nil
}

// Get returns the value of key, or its default when unset or unreadable
func (s *Service) Get(ctx context.Context, key string) string {
	value, err := s.storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Error().Err(err).Str("key", key).Msg("Failed to read setting")
		}
		return defaults[key].value
	}
	return value
}

// Set stores a setting value
func (s *Service) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if err := s.storage.Set(ctx, key, value, defaults[key].description); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to store setting")
		return err
	}
	s.logger.Info().Str("key", key).Msg("Stored setting")
	return nil
}

// All returns every runtime setting with defaults filled in
func (s *Service) All(ctx context.Context) map[string]string {
	out := make(map[string]string, len(defaults))
	for key := range defaults {
		out[key] = s.Get(ctx, key)
	}
	return out
}

func (s *Service) getBool(ctx context.Context, key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s.Get(ctx, key)))
	return err == nil && b
}

func (s *Service) getInt(ctx context.Context, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s.Get(ctx, key)))
	if err != nil {
		n, _ = strconv.Atoi(defaults[key].value)
	}
	return n
}

func (s *Service) getList(ctx context.Context, key string) []string {
	items := []string{}
	for _, item := range strings.Split(s.Get(ctx, key), ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func (s *Service) Paused(ctx context.Context) bool         { return s.getBool(ctx, KeyPaused) }
func (s *Service) ManualApproval(ctx context.Context) bool { return s.getBool(ctx, KeyManualApproval) }
func (s *Service) DelayMinutes(ctx context.Context) int    { return s.getInt(ctx, KeyDelayMinutes) }
func (s *Service) CooldownMinutes(ctx context.Context) int { return s.getInt(ctx, KeyCooldownMinutes) }
func (s *Service) Signature(ctx context.Context) string    { return s.Get(ctx, KeySignature) }
func (s *Service) AdminID(ctx context.Context) string {
	return strings.TrimSpace(s.Get(ctx, KeyAdminID))
}
func (s *Service) Keywords(ctx context.Context) []string { return s.getList(ctx, KeyKeywords) }
func (s *Service) SourceChannels(ctx context.Context) []string {
	return s.getList(ctx, KeySourceChannels)
}

// MinPrice accepts "49.90" and "49,90"
func (s *Service) MinPrice(ctx context.Context) float64 {
	raw := strings.ReplaceAll(strings.TrimSpace(s.Get(ctx, KeyMinPrice)), ",", ".")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
