package domain

import "time"

// TokenError tags why a response token can't be used.
type TokenError string

const (
	TokenNotFound    TokenError = "TOKEN_NOT_FOUND"
	TokenAlreadyUsed TokenError = "TOKEN_ALREADY_USED"
	TokenExpired     TokenError = "TOKEN_EXPIRED"
	TokenRejected    TokenError = "TOKEN_REJECTED"
)

func (e TokenError) Message() string {
	switch e {
	case TokenNotFound:
		return "This link is not valid."
	case TokenAlreadyUsed:
		return "A response has already been submitted with this link."
	case TokenExpired:
		return "This link has expired."
	case TokenRejected:
		return "This reference request was declined."
	default:
		return "This link can't be used."
	}
}

// Reminder policy for pending respondents.
const (
	ReminderDelay = 3 * 24 * time.Hour
	MaxReminders  = 3
)

// ResponseToken grants one named respondent access to the consent, respond
// and reject screens of a single request.
type ResponseToken struct {
	Token           string     `json:"token"`
	RequestID       string     `json:"requestId"`
	CompanyID       string     `json:"companyId"`
	RespondentEmail string     `json:"respondentEmail"`
	RespondentName  string     `json:"respondentName"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	IsUsed          bool       `json:"isUsed"`
	UsedAt          *time.Time `json:"usedAt,omitempty"`
	RemindersSent   int        `json:"remindersSent"`
	LastReminderAt  *time.Time `json:"lastReminderAt,omitempty"`
	ConsentedAt     *time.Time `json:"consentedAt,omitempty"`
}

func (t *ResponseToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsValidAt: present, unused and not past expiry.
func (t *ResponseToken) IsValidAt(now time.Time) bool {
	return t != nil && !t.IsUsed && !t.IsExpiredAt(now)
}

// NeedsReminderAt applies the debounced reminder policy.
func (t *ResponseToken) NeedsReminderAt(now time.Time) bool {
	if !t.IsValidAt(now) {
		return false
	}
	if t.RemindersSent == 0 {
		return now.Sub(t.CreatedAt) > ReminderDelay
	}
	if t.LastReminderAt == nil {
		return false
	}
	return now.Sub(*t.LastReminderAt) > ReminderDelay && t.RemindersSent < MaxReminders
}

// TokenValidation is the tagged result of validating a response token.
type TokenValidation struct {
	IsValid   bool           `json:"isValid"`
	Error     TokenError     `json:"error,omitempty"`
	Message   string         `json:"message,omitempty"`
	UsedAt    *time.Time     `json:"usedAt,omitempty"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	TokenData *ResponseToken `json:"tokenData,omitempty"`
}

func InvalidToken(code TokenError) TokenValidation {
	return TokenValidation{IsValid: false, Error: code, Message: code.Message()}
}

type TokenStats struct {
	Total        int     `json:"total"`
	Used         int     `json:"used"`
	Expired      int     `json:"expired"`
	Pending      int     `json:"pending"`
	ResponseRate float64 `json:"responseRate"`
}

// RejectionRecord is kept apart from the token; a token counts as rejected
// when a record references it.
type RejectionRecord struct {
	ID              string    `json:"id"`
	Token           string    `json:"token"`
	RequestID       string    `json:"requestId"`
	CompanyID       string    `json:"companyId"`
	RespondentEmail string    `json:"respondentEmail"`
	Reason          string    `json:"reason"`
	RejectedAt      time.Time `json:"rejectedAt"`
}
