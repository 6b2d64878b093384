package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "hudlink/internal/errors"
	"hudlink/internal/middleware"
	"hudlink/internal/services"
)

// RunService is the part of services.RunService the handler needs
type RunService interface {
	Start(ctx context.Context, req services.RunRequest) (*services.RunStatus, error)
	Get(id string) (*services.RunStatus, error)
	List() []*services.RunStatus
	Cancel(ctx context.Context, id string) error
}

// RunsHandler serves the run API
type RunsHandler struct {
	service      RunService
	validation   *middleware.ValidationMiddleware
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(service RunService, validation *middleware.ValidationMiddleware, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *RunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{
		service:      service,
		validation:   validation,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "runs")),
	}
}

// Routes returns the run routes
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.With(middleware.ContentTypeValidator("application/json"), h.validation.ValidateRequest).Post("/", h.StartRun)
	r.Get("/", h.ListRuns)
	r.Get("/{id}", h.GetRun)
	r.Delete("/{id}", h.CancelRun)
	return r
}

// runRequest binds the POST body
type runRequest struct {
	services.RunRequest
}

// Bind implements render.Binder
func (rr *runRequest) Bind(r *http.Request) error { return nil }

// StartRun handles POST /api/v1/runs
func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := &runRequest{}
	if err := render.Bind(r, data); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(data.RunRequest); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	status, err := h.service.Start(ctx, data.RunRequest)
	if err != nil {
		if errors.Is(err, services.ErrServiceStopping) {
			err = apperrors.ErrServiceUnavailable
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "run started",
		slog.String("run_id", status.ID),
		slog.Int("units", len(status.Units)),
		slog.String("request_id", middleware.GetReqID(ctx)))

	w.Header().Set("Location", r.URL.Path+"/"+status.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, status)
}

// ListRuns handles GET /api/v1/runs?limit=N
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := middleware.QueryInt(r, "limit", 1, 1000, 100)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	runs := h.service.List()
	if len(runs) > limit {
		runs = runs[:limit]
	}
	render.JSON(w, r, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /api/v1/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := h.service.Get(id)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.translate(id, err))
		return
	}
	render.JSON(w, r, status)
}

// CancelRun handles DELETE /api/v1/runs/{id}
func (h *RunsHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.errorHandler.HandleError(w, r, h.translate(id, err))
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"id": id, "status": "cancelling"})
}

func (h *RunsHandler) translate(id string, err error) error {
	switch {
	case errors.Is(err, services.ErrRunNotFound):
		return apperrors.RunNotFound(id)
	case errors.Is(err, services.ErrRunFinished):
		return apperrors.New(http.StatusConflict, "RUN_FINISHED", "run "+id+" already finished")
	}
	return err
}
