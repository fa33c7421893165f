package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/http/response"
	"github.com/diagnosis/refcheck/pkg/logger"
)

const maxBodyBytes = 1 << 20

// newValidator reports field names by their json tag.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst. It writes the error response itself and
// reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			response.BadRequest(w, "Request body is required")
			return false
		}
		response.WriteErrorWithDetails(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput, err.Error())
		return false
	}
	return true
}

// check runs struct validation and answers 422 on failure.
func check(w http.ResponseWriter, v *validator.Validate, dst any) bool {
	err := v.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		response.BadRequest(w, err.Error())
		return false
	}
	fields := domain.FieldErrors{}
	for _, fe := range verrs {
		fields.Add(fieldPath(fe.Namespace()), message(fe))
	}
	response.Fields(w, fields)
	return false
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "max":
		return "Too long (max " + fe.Param() + ")"
	case "min":
		return "Too short (min " + fe.Param() + ")"
	default:
		return "Invalid value"
	}
}

func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger.ErrorContext(r.Context(), msg, "error", err)
	response.InternalError(w, "Something went wrong")
}
