package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/councilchamber/internal/history"
	"github.com/councilchamber/internal/llm"
	"github.com/councilchamber/internal/preferences"
	"github.com/councilchamber/pkg/models"
)

// HistoryResponse lists past rounds in the requested order
type HistoryResponse struct {
	Order   string                `json:"order"`
	Entries []models.HistoryEntry `json:"entries"`
}

// GET /api/v1/history?order=newest|oldest&limit=N
func (s *Server) getHistory(c echo.Context) error {
	order := c.QueryParam("order")
	if order == "" {
		order = "newest"
	}
	if order != "newest" && order != "oldest" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "order must be newest or oldest", Field: "order"})
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer", Field: "limit"})
		}
		limit = n
	}

	entries, err := s.deps.History.List(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read history")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to read history"})
	}

	if order == "newest" {
		entries = history.Reverse(entries, limit)
	} else if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}

	return c.JSON(http.StatusOK, HistoryResponse{Order: order, Entries: entries})
}

// GET /api/v1/models
func (s *Server) getModels(c echo.Context) error {
	var options []string
	if s.deps.Models != nil {
		options = s.deps.Models.FreeModels(c.Request().Context())
	}
	if len(options) == 0 {
		options = llm.StaticModels()
	}
	return c.JSON(http.StatusOK, map[string]any{"models": options})
}

// SettingsResponse never carries the API key itself
type SettingsResponse struct {
	Model     string `json:"model"`
	HasAPIKey bool   `json:"has_api_key"`
}

// UpdateSettingsRequest changes only the fields that are present
type UpdateSettingsRequest struct {
	APIKey *string `json:"api_key,omitempty"`
	Model  *string `json:"model,omitempty"`
}

// GET /api/v1/settings
func (s *Server) getSettings(c echo.Context) error {
	settings, err := s.settings(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read settings")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to read settings"})
	}
	return c.JSON(http.StatusOK, settings)
}

// PUT /api/v1/settings
func (s *Server) updateSettings(c echo.Context) error {
	var req UpdateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
	}

	ctx := c.Request().Context()

	if req.Model != nil && strings.TrimSpace(*req.Model) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "model must not be blank", Field: "model"})
	}

	if req.APIKey != nil {
		if err := s.deps.Preferences.SetCredential(ctx, *req.APIKey); err != nil {
			if errors.Is(err, preferences.ErrBlankCredential) {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "api_key"})
			}
			log.Error().Err(err).Msg("Failed to save API key")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to save settings"})
		}
		log.Info().Msg("API key updated")
	}

	if req.Model != nil {
		if err := s.deps.Preferences.SetModel(ctx, *req.Model); err != nil {
			log.Error().Err(err).Msg("Failed to save model")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to save settings"})
		}
		log.Info().Str("model", strings.TrimSpace(*req.Model)).Msg("Model updated")
	}

	return s.getSettings(c)
}

func (s *Server) settings(c echo.Context) (SettingsResponse, error) {
	ctx := c.Request().Context()
	model, err := s.deps.Preferences.Model(ctx, s.deps.DefaultModel)
	if err != nil {
		return SettingsResponse{}, err
	}
	credential, err := s.credential(c)
	if err != nil {
		return SettingsResponse{}, err
	}
	return SettingsResponse{Model: model, HasAPIKey: credential != ""}, nil
}
