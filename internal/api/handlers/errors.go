package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/orrn/labelrelay/internal/core"
)

// Issue is one entry of a structured validation error body.
type Issue struct {
	Code    string   `json:"code"`
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// StatusFor maps a dispatch failure kind to the HTTP status returned to the
// caller. Client-caused failures are 400, everything else 500.
func StatusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation, core.KindMissingCredential, core.KindInvalidContent:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func eitherURLOrZPLIssue() Issue {
	return Issue{
		Code:    "custom",
		Path:    []string{},
		Message: "Either url or zpl must be provided",
	}
}

var registerFieldNames sync.Once

// UseJSONFieldNames makes gin's validator report fields by their JSON tag
// name, so binding errors can be returned as-is to API callers.
func UseJSONFieldNames() {
	registerFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindingIssues turns a ShouldBindJSON error into per-field issues.
func bindingIssues(err error) []Issue {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		issues := make([]Issue, 0, len(verrs))
		for _, fe := range verrs {
			issues = append(issues, Issue{
				Code:    "invalid_string",
				Path:    []string{fe.Field()},
				Message: validationMessage(fe),
			})
		}
		return issues
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []Issue{{
			Code:    "invalid_type",
			Path:    []string{typeErr.Field},
			Message: "Expected " + typeErr.Type.String() + ", received " + typeErr.Value,
		}}
	}

	return []Issue{{
		Code:    "invalid_json",
		Path:    []string{},
		Message: "Request body must be a JSON object: " + err.Error(),
	}}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "url":
		return "Invalid url"
	default:
		return "Failed on the '" + fe.Tag() + "' rule"
	}
}
