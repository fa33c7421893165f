package wizard

import (
	"strings"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/validation"
)

// StepValid reports whether step is complete for data. It reads nothing but
// data, so the same input always gives the same answer.
func StepValid(data domain.WizardFormData, step int) bool {
	switch step {
	case domain.StepTalentInfo:
		t := data.TalentInfo
		return strings.TrimSpace(t.Name) != "" &&
			strings.TrimSpace(t.Phone) != "" &&
			validation.IsValidEmail(t.Email)
	case domain.StepWorkHistory:
		return len(data.WorkHistory) > 0
	case domain.StepTargetCompanies:
		return len(data.TargetCompanies) > 0
	case domain.StepQuestions:
		for _, q := range data.Questions {
			if q.IsEnabled {
				return true
			}
		}
		return false
	case domain.StepTerms:
		return data.TermsAccepted
	default:
		return false
	}
}

// FirstInvalidStep returns the lowest step that does not validate, or 0.
func FirstInvalidStep(data domain.WizardFormData) int {
	for step := 1; step <= domain.TotalSteps; step++ {
		if !StepValid(data, step) {
			return step
		}
	}
	return 0
}

// TalentInfoErrors explains why step 1 fails, field by field.
func TalentInfoErrors(t domain.TalentInfo) domain.FieldErrors {
	errs := domain.FieldErrors{}
	if strings.TrimSpace(t.Name) == "" {
		errs.Add("name", "name is required")
	}
	switch {
	case strings.TrimSpace(t.Email) == "":
		errs.Add("email", "email is required")
	case !validation.IsValidEmail(t.Email):
		errs.Add("email", "email format is invalid")
	}
	switch {
	case strings.TrimSpace(t.Phone) == "":
		errs.Add("phone", "phone is required")
	case !validation.IsValidPhone(t.Phone):
		errs.Add("phone", "phone format is invalid")
	}
	return errs
}

func workHistoryErrors(in domain.WorkHistoryInput) domain.FieldErrors {
	errs := domain.FieldErrors{}
	if strings.TrimSpace(in.Position) == "" {
		errs.Add("position", "position is required")
	}
	if strings.TrimSpace(in.Company) == "" {
		errs.Add("company", "company is required")
	}
	start, ok := validation.ParsePeriod(in.StartDate)
	if !ok {
		errs.Add("startDate", "start date must be YYYY-MM or YYYY-MM-DD")
	}
	if strings.TrimSpace(in.EndDate) != "" {
		end, endOK := validation.ParsePeriod(in.EndDate)
		switch {
		case !endOK:
			errs.Add("endDate", "end date must be YYYY-MM or YYYY-MM-DD")
		case ok && end.Before(start):
			errs.Add("endDate", "end date is before start date")
		}
	}
	return errs
}

func targetCompanyErrors(in domain.TargetCompanyInput, existing []domain.TargetCompany) domain.FieldErrors {
	errs := domain.FieldErrors{}
	name := strings.TrimSpace(in.Name)
	domainName := validation.NormalizeDomain(in.Domain)

	if name == "" {
		errs.Add("name", "company name is required")
	}
	if domainName == "" {
		errs.Add("domain", "company domain is required")
	} else if !validation.IsValidDomain(domainName) {
		errs.Add("domain", "company domain is invalid")
	}
	if strings.TrimSpace(in.ContactPerson) == "" {
		errs.Add("contactPerson", "contact person is required")
	}
	if !validation.IsValidEmail(in.ContactEmail) {
		errs.Add("contactEmail", "contact email is invalid")
	}

	for _, c := range existing {
		if name != "" && strings.EqualFold(c.Name, name) {
			errs.Add("name", "company has already been added")
		}
		if domainName != "" && strings.EqualFold(validation.NormalizeDomain(c.Domain), domainName) {
			errs.Add("domain", "a company with this domain has already been added")
		}
	}
	return errs
}
