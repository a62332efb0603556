package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/replenishment/internal/platform/httpx"
)

// Enqueuer hands a run to the background worker and returns the task id.
type Enqueuer interface {
	EnqueueProcurementRun(ctx context.Context, req RunRequest) (string, error)
}

// Handler accepts pull runs from the upstream procurement runner.
type Handler struct {
	logger    *slog.Logger
	queue     Enqueuer
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, queue Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, queue: queue, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/runs", h.submitRun)
}

type runAccepted struct {
	RunID  string `json:"run_id"`
	TaskID string `json:"task_id"`
}

func (h *Handler) submitRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, describeValidation(err)))
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	taskID, err := h.queue.EnqueueProcurementRun(r.Context(), req)
	if err != nil {
		h.logger.Error("enqueue procurement run", slog.Any("error", err), slog.String("run_id", req.RunID))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	h.logger.Info("procurement run accepted",
		slog.String("run_id", req.RunID),
		slog.String("task_id", taskID),
		slog.Int("procurements", len(req.Procurements)))
	httpx.JSON(w, http.StatusAccepted, runAccepted{RunID: req.RunID, TaskID: taskID})
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
