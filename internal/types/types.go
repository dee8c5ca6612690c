// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles —
// handlers, storage, and utils can all import types without depending
// on each other.
package types

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Student represents a student record in our system.
//
// Struct tags serve two purposes:
//
//  1. json:"..."  — controls how the field appears when encoded to JSON.
//     The store-specific representation (BSON, SQL columns) lives in the
//     storage backends, so this struct never carries bson tags.
//
//  2. validate:"..." — the schema every backend enforces before writing.
//     See Validate below.
type Student struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"      validate:"required"`
	FirstName string  `json:"firstName" validate:"required"`
	Email     string  `json:"email"     validate:"required,email"`
	Program   string  `json:"program"`
	Year      int     `json:"year"      validate:"gte=0"`
	Average   float64 `json:"average"   validate:"gte=0"`
	Active    bool    `json:"active"`
}

// StudentPatch is the body of an update request.
//
// Every field is a pointer: nil means "not submitted, keep the stored
// value", non-nil means "overwrite". This is how a partial update is
// told apart from an update that sets a field to its zero value
// (e.g. "active": false or "average": 0).
type StudentPatch struct {
	Name      *string  `json:"name,omitempty"`
	FirstName *string  `json:"firstName,omitempty"`
	Email     *string  `json:"email,omitempty"`
	Program   *string  `json:"program,omitempty"`
	Year      *int     `json:"year,omitempty"`
	Average   *float64 `json:"average,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

// Apply returns a copy of s with every submitted patch field overwritten.
// The ID is never patched.
func (p StudentPatch) Apply(s Student) Student {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.FirstName != nil {
		s.FirstName = *p.FirstName
	}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.Program != nil {
		s.Program = *p.Program
	}
	if p.Year != nil {
		s.Year = *p.Year
	}
	if p.Average != nil {
		s.Average = *p.Average
	}
	if p.Active != nil {
		s.Active = *p.Active
	}
	return s
}

// fields lists the Go names of the submitted fields.
func (p StudentPatch) fields() []string {
	var out []string
	if p.Name != nil {
		out = append(out, "Name")
	}
	if p.FirstName != nil {
		out = append(out, "FirstName")
	}
	if p.Email != nil {
		out = append(out, "Email")
	}
	if p.Program != nil {
		out = append(out, "Program")
	}
	if p.Year != nil {
		out = append(out, "Year")
	}
	if p.Average != nil {
		out = append(out, "Average")
	}
	if p.Active != nil {
		out = append(out, "Active")
	}
	return out
}

// IsEmpty reports whether no field was submitted.
func (p StudentPatch) IsEmpty() bool {
	return p == StudentPatch{}
}

// validate is shared by all callers; a *validator.Validate caches struct
// metadata and is safe for concurrent use. Field errors report the JSON
// name ("firstName"), not the Go name ("FirstName").
var validate = newValidator()

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

// Validate checks s against its validate:"..." tags.
// It returns nil or a validator.ValidationErrors.
func Validate(s Student) error {
	return validate.Struct(s)
}

// ValidatePatch checks only the fields p submits, read from the patched
// record s. A stored record that predates a rule can still be updated
// (or deactivated) without fixing fields the update does not touch.
func ValidatePatch(s Student, p StudentPatch) error {
	return validate.StructPartial(s, p.fields()...)
}
