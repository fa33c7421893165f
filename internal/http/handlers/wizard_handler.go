package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/http/middleware"
	"github.com/diagnosis/refcheck/internal/http/response"
	"github.com/diagnosis/refcheck/internal/wizard"
)

// WizardHandler exposes the caller's own wizard. Every route needs the JWT
// middleware in front of it.
type WizardHandler struct {
	Wizards  *wizard.Registry
	validate *validator.Validate
}

func NewWizardHandler(wizards *wizard.Registry) *WizardHandler {
	return &WizardHandler{Wizards: wizards, validate: newValidator()}
}

func (h *WizardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.export)
	r.Post("/reset", h.reset)
	r.Post("/next", h.next)
	r.Post("/previous", h.previous)
	r.Post("/goto/{step}", h.goTo)
	r.Get("/steps/{step}/valid", h.stepValid)
	r.Patch("/talent", h.updateTalent)
	r.Post("/work-history", h.addWorkHistory)
	r.Delete("/work-history/{id}", h.removeWorkHistory)
	r.Post("/companies", h.addCompany)
	r.Delete("/companies/{id}", h.removeCompany)
	r.Post("/questions", h.addQuestion)
	r.Put("/questions", h.reorderQuestions)
	r.Patch("/questions/{id}", h.updateQuestion)
	r.Put("/terms", h.setTerms)
	return r
}

func (h *WizardHandler) engine(r *http.Request) *wizard.Engine {
	return h.Wizards.Get(r.Context(), middleware.Claims(r).Sub)
}

type stepOut struct {
	Moved       bool `json:"moved"`
	CurrentStep int  `json:"currentStep"`
	TotalSteps  int  `json:"totalSteps"`
}

func (h *WizardHandler) export(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.engine(r).Export())
}

func (h *WizardHandler) reset(w http.ResponseWriter, r *http.Request) {
	e := h.engine(r)
	e.Reset()
	response.JSON(w, http.StatusOK, e.Export())
}

func (h *WizardHandler) next(w http.ResponseWriter, r *http.Request) {
	e := h.engine(r)
	moved := e.NextStep()
	response.JSON(w, http.StatusOK, stepOut{Moved: moved, CurrentStep: e.CurrentStep(), TotalSteps: e.TotalSteps()})
}

func (h *WizardHandler) previous(w http.ResponseWriter, r *http.Request) {
	e := h.engine(r)
	moved := e.PreviousStep()
	response.JSON(w, http.StatusOK, stepOut{Moved: moved, CurrentStep: e.CurrentStep(), TotalSteps: e.TotalSteps()})
}

func stepParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		response.BadRequest(w, "Step must be a number")
		return 0, false
	}
	return step, true
}

func (h *WizardHandler) goTo(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}
	e := h.engine(r)
	if !e.GoToStep(step) {
		response.WriteError(w, http.StatusUnprocessableEntity, "Step is out of range", response.CodeInvalidStepRange)
		return
	}
	response.JSON(w, http.StatusOK, stepOut{Moved: true, CurrentStep: e.CurrentStep(), TotalSteps: e.TotalSteps()})
}

func (h *WizardHandler) stepValid(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}
	e := h.engine(r)
	out := map[string]any{"step": step, "valid": e.IsStepValid(step)}
	if step == domain.StepTalentInfo {
		if errs := wizard.TalentInfoErrors(e.FormData().TalentInfo); !errs.Empty() {
			out["fields"] = errs
		}
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *WizardHandler) updateTalent(w http.ResponseWriter, r *http.Request) {
	var patch domain.TalentInfoPatch
	if !decode(w, r, &patch) {
		return
	}
	response.JSON(w, http.StatusOK, h.engine(r).UpdateTalentInfo(patch))
}

func (h *WizardHandler) addWorkHistory(w http.ResponseWriter, r *http.Request) {
	var in domain.WorkHistoryInput
	if !decode(w, r, &in) {
		return
	}
	entry, errs := h.engine(r).AddWorkHistory(in)
	if !errs.Empty() {
		response.Fields(w, errs)
		return
	}
	response.JSON(w, http.StatusCreated, entry)
}

func (h *WizardHandler) removeWorkHistory(w http.ResponseWriter, r *http.Request) {
	if !h.engine(r).RemoveWorkHistory(chi.URLParam(r, "id")) {
		response.NotFound(w, "Work history entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WizardHandler) addCompany(w http.ResponseWriter, r *http.Request) {
	var in domain.TargetCompanyInput
	if !decode(w, r, &in) {
		return
	}
	company, errs := h.engine(r).AddTargetCompany(in)
	if !errs.Empty() {
		response.Fields(w, errs)
		return
	}
	response.JSON(w, http.StatusCreated, company)
}

func (h *WizardHandler) removeCompany(w http.ResponseWriter, r *http.Request) {
	if !h.engine(r).RemoveTargetCompany(chi.URLParam(r, "id")) {
		response.NotFound(w, "Company not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type questionIn struct {
	Text string `json:"text" validate:"required"`
}

func (h *WizardHandler) addQuestion(w http.ResponseWriter, r *http.Request) {
	var in questionIn
	if !decode(w, r, &in) || !check(w, h.validate, &in) {
		return
	}
	q, errs := h.engine(r).AddCustomQuestion(in.Text)
	if !errs.Empty() {
		response.Fields(w, errs)
		return
	}
	response.JSON(w, http.StatusCreated, q)
}

type reorderIn struct {
	Questions []domain.Question `json:"questions" validate:"required"`
}

func (h *WizardHandler) reorderQuestions(w http.ResponseWriter, r *http.Request) {
	var in reorderIn
	if !decode(w, r, &in) || !check(w, h.validate, &in) {
		return
	}
	e := h.engine(r)
	e.ReorderQuestions(in.Questions)
	response.JSON(w, http.StatusOK, e.FormData().Questions)
}

func (h *WizardHandler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var patch domain.QuestionPatch
	if !decode(w, r, &patch) {
		return
	}
	q, ok := h.engine(r).UpdateQuestion(chi.URLParam(r, "id"), patch)
	if !ok {
		response.NotFound(w, "Question not found")
		return
	}
	response.JSON(w, http.StatusOK, q)
}

type termsIn struct {
	Accepted *bool `json:"accepted" validate:"required"`
}

func (h *WizardHandler) setTerms(w http.ResponseWriter, r *http.Request) {
	var in termsIn
	if !decode(w, r, &in) || !check(w, h.validate, &in) {
		return
	}
	e := h.engine(r)
	e.SetTermsAccepted(*in.Accepted)
	response.JSON(w, http.StatusOK, map[string]bool{"termsAccepted": *in.Accepted})
}
