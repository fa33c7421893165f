package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/http/middleware"
	"github.com/diagnosis/refcheck/internal/http/response"
	"github.com/diagnosis/refcheck/internal/repo"
	"github.com/diagnosis/refcheck/internal/requests"
)

type RequestsHandler struct {
	Requests *requests.Service
}

func NewRequestsHandler(svc *requests.Service) *RequestsHandler {
	return &RequestsHandler{Requests: svc}
}

func (h *RequestsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.submit)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/tokens", h.tokens)
	return r
}

func (h *RequestsHandler) submit(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Requests.Submit(r.Context(), middleware.Claims(r).Sub)
	var stepErr *domain.StepError
	switch {
	case errors.As(err, &stepErr):
		response.Step(w, stepErr)
		return
	case errors.Is(err, domain.ErrSimulatedFailure):
		response.WriteError(w, http.StatusServiceUnavailable, "Submission failed, please try again", response.CodeSubmitFailed)
		return
	case err != nil:
		internalError(w, r, "Submit failed", err)
		return
	}
	response.JSON(w, http.StatusCreated, summary)
}

func (h *RequestsHandler) list(w http.ResponseWriter, r *http.Request) {
	var status *domain.RequestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, ok := domain.ParseRequestStatus(raw)
		if !ok {
			response.BadRequest(w, "Unknown status")
			return
		}
		status = &s
	}
	list, err := h.Requests.List(r.Context(), middleware.Claims(r).Sub, status)
	if err != nil {
		internalError(w, r, "List requests failed", err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *RequestsHandler) get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Requests.Get(r.Context(), middleware.Claims(r).Sub, chi.URLParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		response.NotFound(w, "Request not found")
		return
	}
	if err != nil {
		internalError(w, r, "Get request failed", err)
		return
	}
	response.JSON(w, http.StatusOK, detail)
}

func (h *RequestsHandler) tokens(w http.ResponseWriter, r *http.Request) {
	list, err := h.Requests.Tokens(r.Context(), middleware.Claims(r).Sub, chi.URLParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		response.NotFound(w, "Request not found")
		return
	}
	if err != nil {
		internalError(w, r, "List tokens failed", err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}
