package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/http/response"
	"github.com/diagnosis/refcheck/internal/respond"
)

// RespondHandler serves respondents. The token in the path is the only
// credential.
type RespondHandler struct {
	Respond  *respond.Service
	validate *validator.Validate
}

func NewRespondHandler(svc *respond.Service) *RespondHandler {
	return &RespondHandler{Respond: svc, validate: newValidator()}
}

func (h *RespondHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{token}", h.access)
	r.Post("/{token}/consent", h.consent)
	r.Get("/{token}/draft", h.loadDraft)
	r.Put("/{token}/draft", h.saveDraft)
	r.Post("/{token}/answers", h.answers)
	r.Post("/{token}/reject", h.reject)
	return r
}

// fail maps respondent errors and reports whether one was written.
func (h *RespondHandler) fail(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}
	var denied *respond.AccessError
	switch {
	case errors.As(err, &denied):
		response.Token(w, denied.Validation)
	case errors.Is(err, respond.ErrConsentRequired):
		response.WriteError(w, http.StatusForbidden, "Consent is required before answering", response.CodeConsentRequired)
	default:
		internalError(w, r, "Respondent request failed", err)
	}
	return true
}

func (h *RespondHandler) access(w http.ResponseWriter, r *http.Request) {
	view, err := h.Respond.Access(r.Context(), chi.URLParam(r, "token"))
	if h.fail(w, r, err) {
		return
	}
	response.JSON(w, http.StatusOK, view)
}

func (h *RespondHandler) consent(w http.ResponseWriter, r *http.Request) {
	view, err := h.Respond.Consent(r.Context(), chi.URLParam(r, "token"))
	if h.fail(w, r, err) {
		return
	}
	response.JSON(w, http.StatusOK, view)
}

type answersIn struct {
	Answers []domain.Answer `json:"answers" validate:"required,dive"`
}

func (h *RespondHandler) loadDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.Respond.LoadDraft(r.Context(), chi.URLParam(r, "token"))
	if h.fail(w, r, err) {
		return
	}
	if draft == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	response.JSON(w, http.StatusOK, draft)
}

func (h *RespondHandler) saveDraft(w http.ResponseWriter, r *http.Request) {
	var in answersIn
	if !decode(w, r, &in) || !check(w, h.validate, &in) {
		return
	}
	draft, err := h.Respond.SaveDraft(r.Context(), chi.URLParam(r, "token"), in.Answers)
	if h.fail(w, r, err) {
		return
	}
	response.JSON(w, http.StatusOK, draft)
}

func (h *RespondHandler) answers(w http.ResponseWriter, r *http.Request) {
	var in answersIn
	if !decode(w, r, &in) || !check(w, h.validate, &in) {
		return
	}
	resp, fields, err := h.Respond.Respond(r.Context(), chi.URLParam(r, "token"), in.Answers)
	if h.fail(w, r, err) {
		return
	}
	if !fields.Empty() {
		response.Fields(w, fields)
		return
	}
	response.JSON(w, http.StatusCreated, resp)
}

type rejectIn struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *RespondHandler) reject(w http.ResponseWriter, r *http.Request) {
	var in rejectIn
	if r.ContentLength != 0 {
		if !decode(w, r, &in) {
			return
		}
	}
	if !check(w, h.validate, &in) {
		return
	}
	rec, err := h.Respond.Reject(r.Context(), chi.URLParam(r, "token"), in.Reason)
	if h.fail(w, r, err) {
		return
	}
	response.JSON(w, http.StatusCreated, rec)
}
