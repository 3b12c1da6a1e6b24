package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/orchestrator"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/repo"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/review"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
)

// Canceller — отмена workflow (реализуется оркестратором).
type Canceller interface {
	Cancel(ctx context.Context, workflowID string) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store      store.Store
	coord      *review.Coordinator
	canceller  Canceller
	advisories *repo.AdvisoryRepo // nil — архив не подключён
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store      store.Store
	Coord      *review.Coordinator
	Canceller  Canceller
	Advisories *repo.AdvisoryRepo
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:      cfg.Store,
		coord:      cfg.Coord,
		canceller:  cfg.Canceller,
		advisories: cfg.Advisories,
		logger:     logger,
	}
}

// GetWorkflow возвращает снимок workflow.
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	wf, err := h.store.GetWorkflow(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(w, "workflow not found")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Success(w, workflowResponse(wf))
}

// CancelWorkflow отменяет workflow.
func (h *Handler) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.canceller.Cancel(r.Context(), id)
	switch {
	case err == nil:
		Success(w, map[string]string{"workflow_id": id, "status": "cancelling"})
	case errors.Is(err, orchestrator.ErrWorkflowNotFound):
		NotFound(w, "workflow not found")
	case errors.Is(err, orchestrator.ErrTerminal):
		Error(w, http.StatusConflict, ErrCodeTerminal, err.Error())
	default:
		InternalError(w, h.logger, err)
	}
}

// ListReviews возвращает страницу review-задач.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	tasks, err := h.coord.List(r.Context(), review.ListFilter{Offset: offset, Limit: limit})
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	List(w, tasks, len(tasks))
}

// ClaimReview выдаёт оператору аренду на решение.
func (h *Handler) ClaimReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Operator == "" {
		BadRequest(w, "operator is required")
		return
	}

	token, err := h.coord.Claim(r.Context(), id, req.Operator)
	switch {
	case err == nil:
		Success(w, ClaimResponse{LeaseToken: token})
	case errors.Is(err, review.ErrNotFound):
		NotFound(w, "workflow not found")
	case errors.Is(err, review.ErrNotAwaitingReview):
		Error(w, http.StatusConflict, ErrCodeInvalidState, err.Error())
	case errors.Is(err, review.ErrAlreadyClaimed):
		Error(w, http.StatusConflict, ErrCodeAlreadyClaimed, err.Error())
	default:
		InternalError(w, h.logger, err)
	}
}

// DecideReview принимает решение оператора.
func (h *Handler) DecideReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed request body")
		return
	}
	if req.LeaseToken == "" || req.Decision == "" {
		BadRequest(w, "lease_token and decision are required")
		return
	}

	err := h.coord.Decide(r.Context(), id, req.LeaseToken, domain.ReviewDecision(req.Decision), req.Feedback)
	switch {
	case err == nil:
		Success(w, map[string]string{"workflow_id": id, "decision": req.Decision})
	case errors.Is(err, review.ErrNotFound):
		NotFound(w, "workflow not found")
	case errors.Is(err, review.ErrNotAwaitingReview):
		Error(w, http.StatusConflict, ErrCodeInvalidState, err.Error())
	case errors.Is(err, review.ErrLeaseInvalid):
		Error(w, http.StatusConflict, ErrCodeLeaseInvalid, "lease invalid or expired")
	case errors.Is(err, review.ErrUnknownDecision):
		BadRequest(w, err.Error())
	default:
		InternalError(w, h.logger, err)
	}
}

// ListAdvisories возвращает последние опубликованные предупреждения.
func (h *Handler) ListAdvisories(w http.ResponseWriter, r *http.Request) {
	if h.advisories == nil {
		NotFound(w, "advisory archive is not configured")
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	advisories, err := h.advisories.List(r.Context(), limit, offset)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	List(w, advisories, len(advisories))
}

// GetAdvisory возвращает предупреждение по workflow.
func (h *Handler) GetAdvisory(w http.ResponseWriter, r *http.Request) {
	if h.advisories == nil {
		NotFound(w, "advisory archive is not configured")
		return
	}

	adv, err := h.advisories.GetByWorkflowID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			NotFound(w, "advisory not found")
			return
		}
		InternalError(w, h.logger, err)
		return
	}
	Success(w, adv)
}
