package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "hudlink/internal/errors"
	"hudlink/internal/validation"
	"hudlink/pkg/contracts/domain"
)

// InputsHandler reports whether a unit's input files are in place
type InputsHandler struct {
	validator    *validation.FileValidator
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewInputsHandler creates a new inputs handler
func NewInputsHandler(validator *validation.FileValidator, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *InputsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InputsHandler{
		validator:    validator,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "inputs")),
	}
}

// Routes returns the input routes
func (h *InputsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/{state}/{year}", h.CheckUnit)
	return r
}

type inputsResponse struct {
	validation.UnitCheck
	OK bool `json:"ok"`
}

// CheckUnit handles GET /api/v1/inputs/{state}/{year}
func (h *InputsHandler) CheckUnit(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || !domain.IsStateAbbrev(state) {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationErrors([]apperrors.ValidationError{
			{Field: "unit", Message: "expected /{state}/{year}, e.g. /FL/2023"},
		}))
		return
	}

	check := h.validator.CheckUnit(domain.NewUnit(state, year))
	render.JSON(w, r, inputsResponse{UnitCheck: check, OK: check.OK()})
}
