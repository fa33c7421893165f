package domain

import (
	"strconv"
	"time"
)

// TotalSteps is the number of steps in the request wizard.
const TotalSteps = 5

const (
	StepTalentInfo = iota + 1
	StepWorkHistory
	StepTargetCompanies
	StepQuestions
	StepTerms
)

type TalentInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// TalentInfoPatch is merged field by field; nil fields keep their value.
type TalentInfoPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

type WorkHistory struct {
	ID               string `json:"id"`
	Position         string `json:"position"`
	Company          string `json:"company"`
	StartDate        string `json:"startDate"`
	EndDate          string `json:"endDate"`
	Responsibilities string `json:"responsibilities"`
}

type WorkHistoryInput struct {
	Position         string `json:"position"`
	Company          string `json:"company"`
	StartDate        string `json:"startDate"`
	EndDate          string `json:"endDate"`
	Responsibilities string `json:"responsibilities"`
}

type TargetCompany struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Domain        string `json:"domain"`
	ContactPerson string `json:"contactPerson"`
	ContactEmail  string `json:"contactEmail"`
}

type TargetCompanyInput struct {
	Name          string `json:"name"`
	Domain        string `json:"domain"`
	ContactPerson string `json:"contactPerson"`
	ContactEmail  string `json:"contactEmail"`
}

type Question struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsDefault bool   `json:"isDefault"`
	IsEnabled bool   `json:"isEnabled"`
	Order     int    `json:"order"`
}

type QuestionPatch struct {
	Text      *string `json:"text,omitempty"`
	IsEnabled *bool   `json:"isEnabled,omitempty"`
	Order     *int    `json:"order,omitempty"`
}

// WizardFormData is the whole wizard state apart from the current step.
type WizardFormData struct {
	TalentInfo      TalentInfo      `json:"talentInfo"`
	WorkHistory     []WorkHistory   `json:"workHistory"`
	TargetCompanies []TargetCompany `json:"targetCompanies"`
	Questions       []Question      `json:"questions"`
	TermsAccepted   bool            `json:"termsAccepted"`
}

// WizardExport is a side-effect free copy of the wizard state.
type WizardExport struct {
	FormData    WizardFormData `json:"formData"`
	CurrentStep int            `json:"currentStep"`
	Timestamp   time.Time      `json:"timestamp"`
}

// DefaultQuestions seeds every new wizard.
func DefaultQuestions() []Question {
	texts := []string{
		"지원자의 담당 업무와 역할은 무엇이었나요?",
		"지원자의 업무 성과와 강점을 평가해 주세요.",
		"동료 및 상사와의 협업 방식은 어떠했나요?",
		"지원자가 개선하면 좋을 점은 무엇인가요?",
		"기회가 된다면 지원자와 다시 함께 일하시겠습니까?",
	}
	qs := make([]Question, 0, len(texts))
	for i, text := range texts {
		qs = append(qs, Question{
			ID:        "q" + strconv.Itoa(i+1),
			Text:      text,
			IsDefault: true,
			IsEnabled: true,
			Order:     i + 1,
		})
	}
	return qs
}

// NewWizardFormData returns the state a freshly opened wizard starts with.
func NewWizardFormData() WizardFormData {
	return WizardFormData{
		WorkHistory:     []WorkHistory{},
		TargetCompanies: []TargetCompany{},
		Questions:       DefaultQuestions(),
	}
}

// Clone deep-copies the slices so callers can't mutate engine state.
func (f WizardFormData) Clone() WizardFormData {
	out := f
	out.WorkHistory = append([]WorkHistory{}, f.WorkHistory...)
	out.TargetCompanies = append([]TargetCompany{}, f.TargetCompanies...)
	out.Questions = append([]Question{}, f.Questions...)
	return out
}

// EnabledQuestions returns enabled questions in list order.
func (f WizardFormData) EnabledQuestions() []Question {
	out := make([]Question, 0, len(f.Questions))
	for _, q := range f.Questions {
		if q.IsEnabled {
			out = append(out, q)
		}
	}
	return out
}
