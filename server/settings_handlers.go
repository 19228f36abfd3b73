package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/anthonyhu/aidocs/ai/router"
	"github.com/anthonyhu/aidocs/store"
)

func (s *Server) handleGetSettings(c echo.Context) error {
	find := &store.FindSetting{}
	if prefix := c.QueryParam("prefix"); prefix != "" {
		find.KeyPrefix = &prefix
	}

	settings, err := s.store.ListSettings(c.Request().Context(), find)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) handlePutSetting(c echo.Context) error {
	key := c.Param("key")
	if !isKnownSettingKey(key) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown setting key")
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := c.Bind(&req); err != nil || req.Value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}

	setting, err := s.store.UpsertSetting(c.Request().Context(), &store.UpsertSetting{
		Key:   key,
		Value: req.Value,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, setting)
}

// isKnownSettingKey restricts writes to the key families the engine reads.
func isKnownSettingKey(key string) bool {
	return key == router.SettingKeyRouterSelected ||
		strings.HasPrefix(key, router.SettingKeyModelPrefix) ||
		strings.HasPrefix(key, router.SettingKeyRouterConfPrefix)
}

type routerView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Selected    bool        `json:"selected"`
	Models      []modelView `json:"models"`
}

type modelView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Active      bool   `json:"active"`
}

func (s *Server) handleListRouters(c echo.Context) error {
	selection := s.selector.Selection()

	views := make([]routerView, 0, 2)
	for _, r := range router.Routers() {
		view := routerView{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Selected:    r.ID == selection.RouterID,
		}
		for _, m := range r.Models {
			enabled := view.Selected && selection.Enabled[m.ID]
			view.Models = append(view.Models, modelView{
				ID:          m.ID,
				Name:        m.Name,
				Description: m.Description,
				Enabled:     enabled,
				Active:      view.Selected && m.ID == selection.ModelID,
			})
		}
		views = append(views, view)
	}
	return c.JSON(http.StatusOK, views)
}
