package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/councilchamber/internal/council"
)

// CreateRoundRequest asks the council a question. Model falls back to the
// saved preference.
type CreateRoundRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

// POST /api/v1/rounds
func (s *Server) createRound(c echo.Context) error {
	var req CreateRoundRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
	}

	ctx := c.Request().Context()

	model := strings.TrimSpace(req.Model)
	if model == "" {
		saved, err := s.deps.Preferences.Model(ctx, s.deps.DefaultModel)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read model preference")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to read settings"})
		}
		model = saved
	}

	credential, err := s.credential(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read API key")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to read settings"})
	}

	round, err := s.deps.Dispatcher.StartRound(ctx, req.Query, s.deps.Personas, model, credential)
	if err != nil {
		var validationErr *council.ValidationError
		if errors.As(err, &validationErr) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: validationErr.Error(), Field: validationErr.Field})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusAccepted, round.Snapshot())
}

// GET /api/v1/rounds/current
func (s *Server) getCurrentRound(c echo.Context) error {
	round := s.deps.Dispatcher.Current()
	if round == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "No round has been started"})
	}
	return c.JSON(http.StatusOK, round.Snapshot())
}

// GET /api/v1/rounds/current/events
//
// Streams the current round as server-sent events: a snapshot first, then
// every notification until the round is done or the client goes away.
func (s *Server) streamCurrentRound(c echo.Context) error {
	round := s.deps.Dispatcher.Current()
	if round == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "No round has been started"})
	}

	// Subscribe before the snapshot so nothing falls between them
	events, unsubscribe := round.Subscribe()
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "snapshot", round.Snapshot()); err != nil {
		return nil
	}

	ctx := c.Request().Context()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeSSE(w, string(event.Type), event); err != nil {
				log.Debug().Err(err).Str("round_id", round.ID()).Msg("Event stream closed")
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func writeSSE(w *echo.Response, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// credential prefers the configured override to the saved key
func (s *Server) credential(c echo.Context) (string, error) {
	if s.deps.Credential != "" {
		return s.deps.Credential, nil
	}
	return s.deps.Preferences.Credential(c.Request().Context())
}
