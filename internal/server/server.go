package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kiesman99/layouttiler/internal/api"
	"github.com/kiesman99/layouttiler/internal/config"
	"github.com/kiesman99/layouttiler/internal/logging"
	"github.com/kiesman99/layouttiler/internal/run"
)

// Options configures the control API server.
type Options struct {
	Version string
	Manager *run.Manager
	Logger  *logging.Logger

	// Upload settings the API does not expose per request.
	Timeout   time.Duration
	UserAgent string
}

// Server implements the ServerInterface from the generated API
type Server struct {
	startTime time.Time
	version   string
	manager   *run.Manager
	timeout   time.Duration
	userAgent string
	logger    logging.Logger
}

// NewServer creates a new server instance
func NewServer(opts Options) *Server {
	manager := opts.Manager
	if manager == nil {
		manager = run.NewManager(run.Options{Logger: opts.Logger})
	}

	return &Server{
		startTime: time.Now(),
		version:   opts.Version,
		manager:   manager,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		logger:    logging.Ensure(opts.Logger).With().Str("component", "server").Logger(),
	}
}

// Manager returns the run manager behind the API.
func (s *Server) Manager() *run.Manager {
	return s.manager
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	s.writeJSON(w, http.StatusOK, response)
}

// StartRun validates the request and starts a pyramid upload in the background.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req api.StartRunJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", &requestID, nil)
		return
	}

	cfg, err := s.runConfig(&req)
	if err != nil {
		s.handleRunError(w, err, &requestID)
		return
	}

	status, err := s.manager.Start(r.Context(), cfg)
	if err != nil {
		s.handleRunError(w, err, &requestID)
		return
	}

	s.logger.Info().
		Str("request_id", requestID).
		Str("image", cfg.ImagePath).
		Str("layout_key", cfg.LayoutKey).
		Int("tile_size", cfg.TileSize).
		Msg("run started")

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusAccepted, toAPIStatus(status))
}

// GetProgress returns the state and latest progress snapshot.
func (s *Server) GetProgress(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toAPIStatus(s.manager.Status()))
}

// CancelRun sets the cancel flag. The run stops at its next checkpoint.
func (s *Server) CancelRun(w http.ResponseWriter, r *http.Request) {
	status := s.manager.Cancel()
	s.writeJSON(w, http.StatusAccepted, toAPIStatus(status))
}

// runConfig converts an API request into a run configuration
func (s *Server) runConfig(req *api.RunRequest) (*config.Run, error) {
	cfg := &config.Run{
		ImagePath:     req.ImagePath,
		ServerAddress: req.ServerAddress,
		LayoutKey:     req.LayoutKey,
		Secret:        req.Secret,
		Background:    config.Color{R: 255, G: 255, B: 255},
		TileSize:      config.DefaultTileSize,
		Timeout:       s.timeout,
		UserAgent:     s.userAgent,
	}

	if req.BackgroundColor != nil {
		bg, err := config.ColorFromInts(*req.BackgroundColor)
		if err != nil {
			return nil, &config.ValidationError{Field: "background_color", Message: err.Error()}
		}
		cfg.Background = bg
	}
	if req.TileSize != nil {
		cfg.TileSize = *req.TileSize
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// handleRunError maps run errors onto API error responses
func (s *Server) handleRunError(w http.ResponseWriter, err error, requestID *string) {
	var validationErr *config.ValidationError
	if errors.As(err, &validationErr) {
		s.writeValidationErrorResponse(w, validationErr.Field, validationErr.Error(), requestID)
		return
	}

	if errors.Is(err, run.ErrRunInProgress) {
		s.writeErrorResponse(w, http.StatusConflict, "RUN_IN_PROGRESS",
			"A run is already in progress", requestID, map[string]interface{}{
				"state": string(run.Running),
			})
		return
	}

	s.logger.Error().Err(err).Msg("failed to start run")
	s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"Internal server error", requestID, nil)
}

func toAPIStatus(st run.Status) api.RunStatus {
	out := api.RunStatus{State: api.RunStatusState(st.State)}

	if st.Progress != nil {
		out.Progress = &api.Progress{
			Current:    st.Progress.Current,
			Total:      st.Progress.Total,
			ZoomLevel:  st.Progress.ZoomLevel,
			Percentage: st.Progress.Percentage,
			Status:     st.Progress.Status,
		}
	}

	if st.Result != nil {
		result := &api.RunOutcome{
			Message: st.Result.Message,
			MaxZoom: st.Result.MaxZoom,
		}
		if st.Result.LayoutPath != "" {
			result.LayoutPath = &st.Result.LayoutPath
		}
		if st.Result.Tiles > 0 {
			result.Tiles = &st.Result.Tiles
			result.Bytes = &st.Result.Bytes
		}
		out.Result = result
	}

	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Error encoding response")
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, field, message string, requestID *string) {
	response := api.ValidationErrorResponse{
		Error:     api.VALIDATIONERROR,
		Message:   message,
		RequestId: requestID,
		ValidationErrors: []struct {
			Code    *string `json:"code,omitempty"`
			Field   string  `json:"field"`
			Message string  `json:"message"`
		}{
			{
				Field:   field,
				Message: message,
			},
		},
	}

	s.writeJSON(w, http.StatusBadRequest, response)
}

// requestIDFrom returns the chi request id, or a fresh one outside the middleware chain.
func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return "req_" + uuid.NewString()
}
