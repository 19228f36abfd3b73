package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/anthonyhu/aidocs/ai/llm"
	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/store"
)

// Setting keys shared with the settings endpoints.
const (
	SettingKeyRouterSelected   = "router.selected"
	SettingKeyModelPrefix      = "model."
	SettingKeyRouterConfPrefix = "router.config."
)

// Selection is the current routing decision: which router serves traffic,
// which model is active on it, and which models are enabled.
type Selection struct {
	RouterID string
	ModelID  string
	Enabled  map[string]bool
}

// RouterConfig holds the per-router remote configuration.
type RouterConfig struct {
	BaseURL string
	APIKey  string
}

// Selector tracks the active router/model selection against the settings
// table. It recomputes on every settings change pushed by the store watcher;
// a disabled active model falls back to the first enabled model in the
// router's canonical order.
type Selector struct {
	store   *store.Store
	metrics *metrics.Exporter
	userID  int32

	mu      sync.RWMutex
	sel     Selection
	configs map[string]RouterConfig
}

// NewSelector creates a selector for the given user.
func NewSelector(st *store.Store, exporter *metrics.Exporter, userID int32) *Selector {
	return &Selector{
		store:   st,
		metrics: exporter,
		userID:  userID,
		sel: Selection{
			RouterID: DefaultRouterID,
			Enabled:  map[string]bool{},
		},
		configs: map[string]RouterConfig{},
	}
}

// Init loads the last-used model and the full settings table, then computes
// the initial selection. A read failure keeps the bootstrap defaults so chat
// is never blocked on remote configuration.
func (s *Selector) Init(ctx context.Context) error {
	lastModel := ""
	key := store.UserSettingLastModel
	userSetting, err := s.store.GetUserSetting(ctx, &store.FindUserSetting{UserID: &s.userID, Key: &key})
	if err != nil {
		slog.Warn("selector: failed to load last-used model", "error", err)
	} else if userSetting != nil {
		lastModel = decodeString(userSetting.Value)
	}

	if err := s.reload(ctx, lastModel); err != nil {
		slog.Warn("selector: initial settings load failed, keeping defaults", "error", err)
		return nil
	}
	return nil
}

// Start subscribes to the settings watcher and recomputes on every change.
// Returns after the subscription is established; the watch loop runs until
// ctx is cancelled.
func (s *Selector) Start(ctx context.Context) error {
	events, err := s.store.WatchSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch settings: %w", err)
	}

	go func() {
		for ev := range events {
			slog.Debug("selector: settings changed", "key", ev.Key)
			if err := s.reload(ctx, s.Selection().ModelID); err != nil {
				// Keep the last known selection on fetch failure.
				slog.Warn("selector: settings reload failed, keeping last selection", "error", err)
			}
		}
	}()
	return nil
}

// Selection returns a copy of the current selection.
func (s *Selector) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sel := Selection{
		RouterID: s.sel.RouterID,
		ModelID:  s.sel.ModelID,
		Enabled:  make(map[string]bool, len(s.sel.Enabled)),
	}
	for k, v := range s.sel.Enabled {
		sel.Enabled[k] = v
	}
	return sel
}

// RouterConfig returns the remote configuration for the given router.
func (s *Selector) RouterConfig(routerID string) RouterConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs[routerID]
}

// RecordUse persists the model as the user's last-used one. Best-effort; the
// stored value is a hint for the next session, not the source of truth.
func (s *Selector) RecordUse(ctx context.Context, modelID string) {
	if modelID == "" {
		return
	}
	value, _ := json.Marshal(modelID)
	if _, err := s.store.UpsertUserSetting(ctx, &store.UpsertUserSetting{
		UserID: s.userID,
		Key:    store.UserSettingLastModel,
		Value:  string(value),
	}); err != nil {
		slog.Warn("selector: failed to persist last-used model", "model", modelID, "error", err)
	}
}

// LLMConfig builds the generation client configuration for the current
// selection, falling back to profile defaults where the remote configuration
// is silent.
func (s *Selector) LLMConfig(p *profile.Profile) *llm.Config {
	sel := s.Selection()
	conf := s.RouterConfig(sel.RouterID)

	baseURL := conf.BaseURL
	apiKey := conf.APIKey
	model := sel.ModelID

	if baseURL == "" {
		if r, ok := GetRouter(sel.RouterID); ok {
			baseURL = r.DefaultBaseURL
		}
	}
	if baseURL == "" {
		baseURL = p.LLMBaseURL
	}
	if apiKey == "" {
		apiKey = p.LLMAPIKey
	}
	if model == "" {
		model = p.LLMModel
	}

	return &llm.Config{
		RouterID:    sel.RouterID,
		Model:       model,
		APIKey:      apiKey,
		BaseURL:     baseURL,
		MaxTokens:   p.LLMMaxTokens,
		Temperature: float32(p.LLMTemperature),
		Timeout:     p.LLMTimeout,
	}
}

// reload fetches the full settings table and recomputes the selection.
// preferredModel is the model to keep if it is still enabled.
func (s *Selector) reload(ctx context.Context, preferredModel string) error {
	settings, err := s.store.ListSettings(ctx, &store.FindSetting{})
	if err != nil {
		return err
	}

	routerID := DefaultRouterID
	enabled := map[string]bool{}
	configs := map[string]RouterConfig{}

	for _, setting := range settings {
		switch {
		case setting.Key == SettingKeyRouterSelected:
			if id := decodeString(setting.Value); id != "" {
				routerID = id
			}
		case strings.HasPrefix(setting.Key, SettingKeyModelPrefix):
			modelID := strings.TrimPrefix(setting.Key, SettingKeyModelPrefix)
			var v struct {
				Enabled bool `json:"enabled"`
			}
			if err := json.Unmarshal([]byte(setting.Value), &v); err != nil {
				slog.Warn("selector: malformed model setting", "key", setting.Key, "error", err)
				continue
			}
			enabled[modelID] = v.Enabled
		case strings.HasPrefix(setting.Key, SettingKeyRouterConfPrefix):
			// router.config.<routerID>.<field>
			parts := strings.SplitN(strings.TrimPrefix(setting.Key, SettingKeyRouterConfPrefix), ".", 2)
			if len(parts) != 2 {
				continue
			}
			conf := configs[parts[0]]
			switch parts[1] {
			case "baseUrl":
				conf.BaseURL = decodeString(setting.Value)
			case "apiKey":
				conf.APIKey = decodeString(setting.Value)
			}
			configs[parts[0]] = conf
		}
	}

	current, ok := GetRouter(routerID)
	if !ok {
		slog.Warn("selector: unknown router in settings, using default", "router", routerID)
		routerID = DefaultRouterID
		current, _ = GetRouter(routerID)
	}

	// Enablement only counts for models of the selected router. A router
	// switch therefore starts with nothing enabled until its model settings
	// are written.
	routerEnabled := map[string]bool{}
	for _, m := range current.Models {
		if enabled[m.ID] {
			routerEnabled[m.ID] = true
		}
	}

	modelID := preferredModel
	if !routerEnabled[modelID] {
		fallback := ""
		for _, m := range current.Models {
			if routerEnabled[m.ID] {
				fallback = m.ID
				break
			}
		}
		if modelID != "" && fallback != "" && fallback != modelID {
			slog.Info("selector: active model disabled, falling back",
				"model", modelID,
				"fallback", fallback,
				"router", routerID,
			)
			s.metrics.RecordModelFallback()
		}
		modelID = fallback
	}

	s.mu.Lock()
	s.sel = Selection{RouterID: routerID, ModelID: modelID, Enabled: routerEnabled}
	s.configs = configs
	s.mu.Unlock()

	if modelID != "" && modelID != preferredModel {
		s.RecordUse(ctx, modelID)
	}

	return nil
}

// decodeString unwraps a JSON-encoded string, tolerating raw unquoted values.
func decodeString(raw string) string {
	var v string
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
