package domain

import "time"

type RequestStatus string

const (
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
)

func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch RequestStatus(s) {
	case RequestInProgress, RequestCompleted:
		return RequestStatus(s), true
	default:
		return "", false
	}
}

// ReferenceRequest is what a submitted wizard turns into.
type ReferenceRequest struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"ownerId"`
	Talent          TalentInfo      `json:"talent"`
	WorkHistory     []WorkHistory   `json:"workHistory"`
	TargetCompanies []TargetCompany `json:"targetCompanies"`
	Questions       []Question      `json:"questions"`
	Status          RequestStatus   `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (r *ReferenceRequest) Company(id string) (TargetCompany, bool) {
	for _, c := range r.TargetCompanies {
		if c.ID == id {
			return c, true
		}
	}
	return TargetCompany{}, false
}

type RequestSummary struct {
	Request *ReferenceRequest `json:"request"`
	Stats   TokenStats        `json:"stats"`
}

// RequestDetail adds what respondents sent back.
type RequestDetail struct {
	RequestSummary
	Responses  []Response        `json:"responses"`
	Rejections []RejectionRecord `json:"rejections"`
}

type Answer struct {
	QuestionID string `json:"questionId" validate:"required"`
	Text       string `json:"text"`
}

type Response struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	RequestID   string    `json:"requestId"`
	CompanyID   string    `json:"companyId"`
	Answers     []Answer  `json:"answers"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ResponseDraft is an in-progress response kept per token.
type ResponseDraft struct {
	Answers []Answer  `json:"answers"`
	SavedAt time.Time `json:"savedAt"`
}

// Respondent view of a request: only what the consent and answer screens show.
type RespondentView struct {
	Token          string     `json:"token"`
	TalentName     string     `json:"talentName"`
	CompanyName    string     `json:"companyName"`
	RespondentName string     `json:"respondentName"`
	Questions      []Question `json:"questions"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	Consented      bool       `json:"consented"`
}
