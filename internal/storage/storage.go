// Package storage defines the Storage interface — a contract that any
// database backend must satisfy to work with this application.
//
// Handlers depend only on this package. The MongoDB backend
// (storage/mongodb) is what runs in production; the SQLite backend
// (storage/sqlite) satisfies the same contract for local runs and tests.
//
// Queries are described with the typed Filter and Sort values below, not
// with raw key/value maps, so every backend knows exactly which keys and
// operators it has to translate.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/students-api/internal/types"
)

// Errors every backend reports in the same way, so handlers can map them
// to status codes with errors.Is / errors.As.
var (
	// ErrNotFound means no record has the requested identifier. A
	// malformed identifier is reported as ErrNotFound too.
	ErrNotFound = errors.New("student not found")

	// ErrDuplicateEmail is the store's unique-key violation on email.
	ErrDuplicateEmail = errors.New("duplicate email")
)

// ValidationError is a schema rejection raised by the store before a
// write. Its message is safe to show to the client verbatim.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// Filter enumerates every query criterion the students resource supports.
// A nil pointer or empty string means the criterion is absent and must
// not appear in the backend query at all. Present criteria are ANDed.
type Filter struct {
	// Active is an equality match on the active flag.
	Active *bool

	// Program is an exact match.
	Program *string

	// NameContains is a case-insensitive substring match on name.
	NameContains string

	// NameOrFirstNameContains is a case-insensitive substring match on
	// name OR firstName.
	NameOrFirstNameContains string

	// YearMin and YearMax are inclusive bounds on year.
	YearMin *int
	YearMax *int

	// AverageMin is an inclusive lower bound on average.
	AverageMin *float64
}

// Sortable field names, as they appear in the JSON representation.
const (
	FieldName      = "name"
	FieldFirstName = "firstName"
	FieldEmail     = "email"
	FieldProgram   = "program"
	FieldYear      = "year"
	FieldAverage   = "average"
)

// SortFields lists every field a Sort may name.
var SortFields = map[string]bool{
	FieldName:      true,
	FieldFirstName: true,
	FieldEmail:     true,
	FieldProgram:   true,
	FieldYear:      true,
	FieldAverage:   true,
}

// Sort orders a result set by one field. A nil *Sort means the store's
// default order.
type Sort struct {
	Field string
	Desc  bool
}

// Storage is the database contract.
// All methods take the request context; none of them retry.
type Storage interface {
	// CreateStudent validates and inserts s, returning the stored record
	// with its generated ID.
	CreateStudent(ctx context.Context, s types.Student) (types.Student, error)

	// FindStudentByName returns the first record whose name and firstName
	// match exactly, regardless of the active flag, or ErrNotFound.
	FindStudentByName(ctx context.Context, name, firstName string) (types.Student, error)

	// GetStudentByID fetches one record regardless of the active flag.
	GetStudentByID(ctx context.Context, id string) (types.Student, error)

	// FindStudents returns every record matching f, ordered by sort.
	// The result is never nil.
	FindStudents(ctx context.Context, f Filter, sort *Sort) ([]types.Student, error)

	// UpdateStudentByID applies patch to the stored record, validates the
	// result and returns the post-update record.
	UpdateStudentByID(ctx context.Context, id string, patch types.StudentPatch) (types.Student, error)

	// Close releases the underlying connection(s).
	Close(ctx context.Context) error
}
