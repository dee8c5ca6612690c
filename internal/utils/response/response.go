// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every response, success or failure, is an Envelope. API consumers can
// always rely on "success" being present and on the other keys only
// appearing when the operation has something to put in them.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Envelope is the uniform wrapper returned by every endpoint.
//
//	{ "success": true, "count": 2, "data": [ ... ] }
//	{ "success": false, "message": "validation failed", "error": "field email is required" }
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// Count is a pointer so that an empty list still reports "count": 0.
	Count *int   `json:"count,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`

	// Echoed request inputs.
	Filters map[string]string `json:"filters,omitempty"`
	Query   string            `json:"query,omitempty"`
	Program string            `json:"program,omitempty"`
	SortBy  string            `json:"sortBy,omitempty"`
	Order   string            `json:"order,omitempty"`
}

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// OK wraps a single record.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// List wraps a result set together with its size. T is generic so the
// count can be taken without reflection.
func List[T any](items []T) Envelope {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	return Envelope{Success: true, Count: &n, Data: items}
}

// Fail is an error envelope with a message and no underlying detail.
func Fail(message string) Envelope {
	return Envelope{Success: false, Message: message}
}

// FailWithError is an error envelope that also surfaces err's text.
// Validator errors are rewritten into plain sentences.
func FailWithError(message string, err error) Envelope {
	return Envelope{Success: false, Message: message, Error: ErrorText(err)}
}

// ErrorText renders err for a client. A validator.ValidationErrors becomes
// one sentence per failing field, joined with ", ":
//
//	field firstName is required, field email must be a valid email address
func ErrorText(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", e.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s must be a valid email address", e.Field()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", e.Field(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}
