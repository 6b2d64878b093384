package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "hudlink/internal/errors"
	"hudlink/internal/files"
	"hudlink/pkg/contracts/domain"
)

// OutputsHandler lists committed unit output directories
type OutputsHandler struct {
	discovery    *files.Discovery
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewOutputsHandler creates a new outputs handler
func NewOutputsHandler(discovery *files.Discovery, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *OutputsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutputsHandler{
		discovery:    discovery,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "outputs")),
	}
}

// Routes returns the output routes
func (h *OutputsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.ListOutputs)
	r.Get("/{state}/{year}", h.GetOutput)
	return r
}

// ListOutputs handles GET /api/v1/outputs
func (h *OutputsHandler) ListOutputs(w http.ResponseWriter, r *http.Request) {
	units, err := h.discovery.ListUnits()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"outputs": units,
		"count":   len(units),
	})
}

// GetOutput handles GET /api/v1/outputs/{state}/{year}
func (h *OutputsHandler) GetOutput(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || !domain.IsStateAbbrev(state) {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationErrors([]apperrors.ValidationError{
			{Field: "unit", Message: "expected /{state}/{year}, e.g. /FL/2023"},
		}))
		return
	}

	unit := domain.NewUnit(state, year)
	out, ok, err := h.discovery.FindUnit(unit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if !ok {
		h.errorHandler.HandleError(w, r, apperrors.New(http.StatusNotFound, "OUTPUT_NOT_FOUND",
			fmt.Sprintf("no committed output for %s", unit)))
		return
	}
	render.JSON(w, r, out)
}
