package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/storage/badger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return NewService(manager.KeyValueStorage(), logger)
}

func TestService_DefaultsWithoutSeeding(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	assert.False(t, s.Paused(ctx))
	assert.False(t, s.ManualApproval(ctx))
	assert.Equal(t, 60, s.CooldownMinutes(ctx))
	assert.Equal(t, 0, s.DelayMinutes(ctx))
	assert.Equal(t, float64(0), s.MinPrice(ctx))
	assert.Empty(t, s.Keywords(ctx))
	assert.Equal(t, "", s.Get(ctx, "unknown_key"))
}

func TestService_SeedDefaultsKeepsExistingValues(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.Set(ctx, KeySignature, "<b>Promos Literais</b>"))
	require.NoError(t, s.SeedDefaults(ctx))
	require.NoError(t, s.SeedDefaults(ctx))

	assert.Equal(t, "<b>Promos Literais</b>", s.Signature(ctx))
	all := s.All(ctx)
	assert.Len(t, all, len(defaults))
	assert.Equal(t, "60", all[KeyCooldownMinutes])
}

func TestService_TypedGetters(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.Set(ctx, KeyPaused, "1"))
	require.NoError(t, s.Set(ctx, KeyManualApproval, "true"))
	require.NoError(t, s.Set(ctx, KeyMinPrice, "49,90"))
	require.NoError(t, s.Set(ctx, KeyCooldownMinutes, "abc"))
	require.NoError(t, s.Set(ctx, KeyDelayMinutes, " 5 "))
	require.NoError(t, s.Set(ctx, KeyKeywords, "fone, , notebook ,SSD"))
	require.NoError(t, s.Set(ctx, KeySourceChannels, "@promos,-100123"))

	assert.True(t, s.Paused(ctx))
	assert.True(t, s.ManualApproval(ctx))
	assert.InDelta(t, 49.90, s.MinPrice(ctx), 0.001)
	assert.Equal(t, 60, s.CooldownMinutes(ctx), "invalid values fall back to the default")
	assert.Equal(t, 5, s.DelayMinutes(ctx))
	assert.Equal(t, []string{"fone", "notebook", "SSD"}, s.Keywords(ctx))
	assert.Equal(t, []string{"@promos", "-100123"}, s.SourceChannels(ctx))
}

func TestService_SetRejectsEmptyKey(t *testing.T) {
	s := newTestService(t)
	assert.Error(t, s.Set(context.Background(), "", "x"))
	assert.True(t, IsKnown(KeyAdminID))
	assert.False(t, IsKnown("nope"))
}
