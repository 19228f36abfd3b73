package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/store"
	"github.com/anthonyhu/aidocs/store/storetest"
)

func newTestSelector(t *testing.T) (*Selector, *storetest.Driver, *store.Store) {
	t.Helper()
	driver := storetest.New()
	st := store.New(driver, &profile.Profile{})
	return NewSelector(st, metrics.NewExporter(), 1), driver, st
}

func TestSelectorDefaultsWithoutSettings(t *testing.T) {
	selector, _, _ := newTestSelector(t)
	require.NoError(t, selector.Init(context.Background()))

	sel := selector.Selection()
	assert.Equal(t, DefaultRouterID, sel.RouterID)
	assert.Empty(t, sel.ModelID)
	assert.Empty(t, sel.Enabled)
}

func TestSelectorInitPicksLastUsedModelWhenEnabled(t *testing.T) {
	selector, driver, _ := newTestSelector(t)
	driver.SeedSetting("router.selected", `"router-a"`)
	driver.SeedSetting("model.openai/gpt-4o-mini", `{"enabled": true}`)
	driver.SeedSetting("model.anthropic/claude-3.5-sonnet", `{"enabled": true}`)
	driver.SeedUserSetting(1, store.UserSettingLastModel, `"anthropic/claude-3.5-sonnet"`)

	require.NoError(t, selector.Init(context.Background()))

	sel := selector.Selection()
	assert.Equal(t, "router-a", sel.RouterID)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", sel.ModelID)
	assert.True(t, sel.Enabled["openai/gpt-4o-mini"])
}

func TestSelectorFallsBackToFirstEnabledCanonicalModel(t *testing.T) {
	selector, driver, _ := newTestSelector(t)
	driver.SeedSetting("model.openai/gpt-4o-2024-11-20", `{"enabled": true}`)
	driver.SeedSetting("model.anthropic/claude-3.5-sonnet", `{"enabled": true}`)
	// Last-used model is disabled now.
	driver.SeedUserSetting(1, store.UserSettingLastModel, `"openai/gpt-4o-mini"`)

	require.NoError(t, selector.Init(context.Background()))

	// The fallback is deterministic: first enabled model in canonical order.
	sel := selector.Selection()
	assert.Equal(t, "openai/gpt-4o-2024-11-20", sel.ModelID)
}

func TestSelectorRouterSwitchResetsEnablement(t *testing.T) {
	selector, driver, _ := newTestSelector(t)
	driver.SeedSetting("router.selected", `"router-b"`)
	// Only router-a models are enabled; none of them exist on router-b.
	driver.SeedSetting("model.openai/gpt-4o-mini", `{"enabled": true}`)

	require.NoError(t, selector.Init(context.Background()))

	sel := selector.Selection()
	assert.Equal(t, "router-b", sel.RouterID)
	assert.Empty(t, sel.Enabled)
	assert.Empty(t, sel.ModelID)
}

func TestSelectorUnknownRouterFallsBackToDefault(t *testing.T) {
	selector, driver, _ := newTestSelector(t)
	driver.SeedSetting("router.selected", `"router-z"`)

	require.NoError(t, selector.Init(context.Background()))
	assert.Equal(t, DefaultRouterID, selector.Selection().RouterID)
}

func TestSelectorIgnoresMalformedModelSetting(t *testing.T) {
	selector, driver, _ := newTestSelector(t)
	driver.SeedSetting("model.openai/gpt-4o-mini", `not json`)
	driver.SeedSetting("model.anthropic/claude-3.5-sonnet", `{"enabled": true}`)

	require.NoError(t, selector.Init(context.Background()))
	sel := selector.Selection()
	assert.False(t, sel.Enabled["openai/gpt-4o-mini"])
	assert.Equal(t, "anthropic/claude-3.5-sonnet", sel.ModelID)
}

func TestSelectorRecomputesOnSettingsChange(t *testing.T) {
	selector, _, st := newTestSelector(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, selector.Init(ctx))
	require.NoError(t, selector.Start(ctx))

	// Enabling a model through the settings table must flow into the
	// selection via the watcher.
	_, err := st.UpsertSetting(ctx, &store.UpsertSetting{
		Key:   "model.deepseek/deepseek-r1:free",
		Value: `{"enabled": true}`,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return selector.Selection().ModelID == "deepseek/deepseek-r1:free"
	}, time.Second, 5*time.Millisecond)
}

func TestSelectorParsesRouterConfig(t *testing.T) {
	selector, driver, _ := newTestSelector(t)
	driver.SeedSetting("router.config.router-a.baseUrl", `"https://example.com/v1"`)
	driver.SeedSetting("router.config.router-a.apiKey", `"sk-test"`)

	require.NoError(t, selector.Init(context.Background()))

	conf := selector.RouterConfig("router-a")
	assert.Equal(t, "https://example.com/v1", conf.BaseURL)
	assert.Equal(t, "sk-test", conf.APIKey)
}

func TestSelectorLLMConfigFallbacks(t *testing.T) {
	selector, driver, _ := newTestSelector(t)
	driver.SeedSetting("model.openai/gpt-4o-mini", `{"enabled": true}`)
	require.NoError(t, selector.Init(context.Background()))

	p := &profile.Profile{
		LLMAPIKey:      "profile-key",
		LLMMaxTokens:   1024,
		LLMTemperature: 0.5,
		LLMTimeout:     60,
	}
	cfg := selector.LLMConfig(p)

	// No remote config: registry base URL and profile API key apply.
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.BaseURL)
	assert.Equal(t, "profile-key", cfg.APIKey)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Model)
	assert.Equal(t, 1024, cfg.MaxTokens)
}

func TestSelectorRecordUsePersistsLastModel(t *testing.T) {
	selector, _, st := newTestSelector(t)
	ctx := context.Background()

	selector.RecordUse(ctx, "gpt-4o")

	userID := int32(1)
	key := store.UserSettingLastModel
	setting, err := st.GetUserSetting(ctx, &store.FindUserSetting{UserID: &userID, Key: &key})
	require.NoError(t, err)
	require.NotNil(t, setting)
	assert.Equal(t, `"gpt-4o"`, setting.Value)
}

func TestRegistry(t *testing.T) {
	routers := Routers()
	require.Len(t, routers, 2)

	a, ok := GetRouter("router-a")
	require.True(t, ok)
	assert.NotEmpty(t, a.Models)
	assert.NotEmpty(t, a.DefaultBaseURL)

	_, ok = GetRouter("router-x")
	assert.False(t, ok)
}
