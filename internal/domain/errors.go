package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("not found")

// FieldErrors maps a form field to a user facing message. Validation
// problems travel as values of this type; they are not errors.
type FieldErrors map[string]string

func (fe FieldErrors) Add(field, msg string) {
	if _, exists := fe[field]; !exists {
		fe[field] = msg
	}
}

func (fe FieldErrors) Empty() bool {
	return len(fe) == 0
}

func (fe FieldErrors) String() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return strings.Join(parts, "; ")
}

// StepError is returned when a submission reaches a wizard step that does
// not validate.
type StepError struct {
	Step int
}

func (e *StepError) Error() string {
	return fmt.Sprintf("wizard step %d is not complete", e.Step)
}

// ErrSimulatedFailure is injected by the submit path when a failure rate is
// configured.
var ErrSimulatedFailure = errors.New("simulated submission failure")
