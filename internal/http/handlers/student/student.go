// Package student contains all HTTP handlers related to the Student resource.
//
// HANDLER PATTERN USED HERE — THE CLOSURE / FACTORY PATTERN:
// ────────────────────────────────────────────────────────────
// Go's router expects handler functions with the signature:
//
//	func(http.ResponseWriter, *http.Request)
//
// To inject the storage dependency each exported function is a factory:
// it is called once at startup with the storage and returns the handler
// that runs on every request.
//
//	router.HandleFunc("POST /students", student.New(store))
//
// Every handler answers with a response.Envelope and never lets a storage
// error escape without a status code.
package student

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/types"
	"github.com/aanand-mishra/students-api/internal/utils/response"
)

// Client-facing messages.
const (
	MsgDuplicateName    = "duplicate name+firstName"
	MsgDuplicateEmail   = "duplicate email"
	MsgValidationFailed = "validation failed"
	MsgNotFound         = "student not found"
	MsgDeactivated      = "student deactivated successfully"
	MsgQueryRequired    = "search parameter q is required"
	MsgInvalidRequest   = "invalid request"
	MsgInternal         = "internal server error"
)

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /students
// Creates a new student from the JSON request body.
//
// Request body (JSON):
//
//	{ "name": "Dupont", "firstName": "Jean", "email": "jean@x.com",
//	  "program": "CS", "year": 2021, "average": 14.5 }
//
// Success response (201 Created):
//
//	{ "success": true, "data": { "id": "...", ..., "active": true } }
//
// Error responses:
//
//	400 Bad Request  — empty/malformed body, duplicate name+firstName,
//	                   duplicate email, or failed validation
//	500 Internal     — database error
//
// The duplicate name check and the insert are two separate storage calls.
// Two concurrent creates with the same pair can both pass the check.
// ─────────────────────────────────────────────────────────────────────────────
func New(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a student")

		// active defaults to true; the body may still override it.
		student := types.Student{Active: true}
		if err := decodeBody(r, &student); err != nil {
			response.WriteJSON(w, http.StatusBadRequest,
				response.FailWithError(MsgInvalidRequest, err))
			return
		}

		_, err := store.FindStudentByName(r.Context(), student.Name, student.FirstName)
		switch {
		case err == nil:
			response.WriteJSON(w, http.StatusBadRequest, response.Fail(MsgDuplicateName))
			return
		case !errors.Is(err, storage.ErrNotFound):
			writeStorageError(w, "error checking duplicate student", err)
			return
		}

		created, err := store.CreateStudent(r.Context(), student)
		if err != nil {
			writeStorageError(w, "error creating student", err)
			return
		}

		slog.Info("student created", slog.String("id", created.ID))
		response.WriteJSON(w, http.StatusCreated, response.OK(created))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /students/{id}
// Fetches a single student whether active or not.
//
// An id the store cannot parse is reported as 404, same as an unknown id.
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("getting a student", slog.String("id", id))

		student, err := store.GetStudentByID(r.Context(), id)
		if err != nil {
			writeStorageError(w, "error getting student", err, slog.String("id", id))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.OK(student))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET /students
//
// One path serves three use cases, picked by the query string:
//
//	?sortBy=&order=                                     → sorted list
//	?name=&program=&yearMin=&yearMax=&averageMin=       → advanced search
//	(none of the above)                                 → all active students
//
// Advanced filters sent next to sortBy/order still apply to the sorted
// list and are echoed back. All three only return active students.
// ─────────────────────────────────────────────────────────────────────────────
func GetList(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter, echo, err := parseAdvancedFilters(q)
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest,
				response.FailWithError(MsgInvalidRequest, err))
			return
		}

		if q.Has(paramSortBy) || q.Has(paramOrder) {
			getSorted(w, r, store, filter, echo, q.Get(paramSortBy), q.Get(paramOrder))
			return
		}
		if len(echo) > 0 {
			advancedSearch(w, r, store, filter, echo)
			return
		}

		slog.Info("getting all students")
		students, ok := find(w, r, store, activeOnly.apply(storage.Filter{}), nil)
		if !ok {
			return
		}
		response.WriteJSON(w, http.StatusOK, response.List(students))
	}
}

func advancedSearch(w http.ResponseWriter, r *http.Request, s storage.Storage, f storage.Filter, echo map[string]string) {
	slog.Info("advanced search", slog.Any("filters", echo))

	students, ok := find(w, r, s, activeOnly.apply(f), nil)
	if !ok {
		return
	}

	env := response.List(students)
	env.Filters = echo
	response.WriteJSON(w, http.StatusOK, env)
}

func getSorted(w http.ResponseWriter, r *http.Request, s storage.Storage, f storage.Filter, echo map[string]string, sortBy, order string) {
	slog.Info("getting sorted students",
		slog.String("sortBy", sortBy),
		slog.String("order", order),
		slog.Any("filters", echo))

	sort, err := parseSort(sortBy, order)
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest,
			response.FailWithError(MsgInvalidRequest, err))
		return
	}

	students, ok := find(w, r, s, activeOnly.apply(f), sort)
	if !ok {
		return
	}

	env := response.List(students)
	env.SortBy = sortBy
	env.Order = order
	if len(echo) > 0 {
		env.Filters = echo
	}
	response.WriteJSON(w, http.StatusOK, env)
}

// ─────────────────────────────────────────────────────────────────────────────
// GetInactive handles GET /students/inactive
// Lists the soft-deleted students.
// ─────────────────────────────────────────────────────────────────────────────
func GetInactive(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("getting inactive students")

		students, ok := find(w, r, store, inactiveOnly.apply(storage.Filter{}), nil)
		if !ok {
			return
		}
		response.WriteJSON(w, http.StatusOK, response.List(students))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByProgram handles GET /students/program/{program}
// Exact match on program. Unlike the other list endpoints this one does
// not filter on the active flag.
// ─────────────────────────────────────────────────────────────────────────────
func GetByProgram(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		program := r.PathValue("program")
		slog.Info("getting students by program", slog.String("program", program))

		f := anyActive.apply(storage.Filter{Program: &program})
		students, ok := find(w, r, store, f, nil)
		if !ok {
			return
		}

		env := response.List(students)
		env.Program = program
		response.WriteJSON(w, http.StatusOK, env)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Search handles GET /students/search?q=
// Case-insensitive substring match on name OR firstName, active only.
//
// Error responses:
//
//	400 Bad Request  — q missing or empty (no storage call is made)
// ─────────────────────────────────────────────────────────────────────────────
func Search(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get(paramQuery)
		slog.Info("searching students", slog.String("q", query))

		if query == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.Fail(MsgQueryRequired))
			return
		}

		f := activeOnly.apply(storage.Filter{NameOrFirstNameContains: query})
		students, ok := find(w, r, store, f, nil)
		if !ok {
			return
		}

		env := response.List(students)
		env.Query = query
		response.WriteJSON(w, http.StatusOK, env)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT /students/{id}
// Applies a partial update: fields left out of the body keep their
// stored values. Unknown fields are rejected.
//
// Request body (JSON):
//
//	{ "average": 15.75 }
//
// Success response (200 OK) — the record after the update.
//
// Error responses:
//
//	400 Bad Request  — empty/malformed body, duplicate email, or the
//	                   patched record fails validation
//	404 Not Found    — unknown id
//	500 Internal     — database error
// ─────────────────────────────────────────────────────────────────────────────
func Update(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("updating a student", slog.String("id", id))

		var patch types.StudentPatch
		if err := decodeBody(r, &patch); err != nil {
			response.WriteJSON(w, http.StatusBadRequest,
				response.FailWithError(MsgInvalidRequest, err))
			return
		}

		updated, err := store.UpdateStudentByID(r.Context(), id, patch)
		if err != nil {
			writeStorageError(w, "error updating student", err, slog.String("id", id))
			return
		}

		slog.Info("student updated", slog.String("id", id))
		response.WriteJSON(w, http.StatusOK, response.OK(updated))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles DELETE /students/{id}
// Soft delete: sets active to false and keeps the record. Deleting an
// already inactive student succeeds again with the same result.
// ─────────────────────────────────────────────────────────────────────────────
func Delete(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("deactivating a student", slog.String("id", id))

		inactive := false
		updated, err := store.UpdateStudentByID(r.Context(), id, types.StudentPatch{Active: &inactive})
		if err != nil {
			writeStorageError(w, "error deactivating student", err, slog.String("id", id))
			return
		}

		slog.Info("student deactivated", slog.String("id", id))
		env := response.OK(updated)
		env.Message = MsgDeactivated
		response.WriteJSON(w, http.StatusOK, env)
	}
}

// find runs a list query and writes the 500 itself on failure.
func find(w http.ResponseWriter, r *http.Request, s storage.Storage, f storage.Filter, sort *storage.Sort) ([]types.Student, bool) {
	students, err := s.FindStudents(r.Context(), f, sort)
	if err != nil {
		writeStorageError(w, "error listing students", err)
		return nil, false
	}
	return students, true
}

// writeStorageError maps a storage error to its status code and envelope.
func writeStorageError(w http.ResponseWriter, logMsg string, err error, attrs ...any) {
	var verr *storage.ValidationError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		response.WriteJSON(w, http.StatusNotFound, response.Fail(MsgNotFound))
	case errors.Is(err, storage.ErrDuplicateEmail):
		response.WriteJSON(w, http.StatusBadRequest, response.Fail(MsgDuplicateEmail))
	case errors.As(err, &verr):
		response.WriteJSON(w, http.StatusBadRequest,
			response.FailWithError(MsgValidationFailed, verr.Err))
	default:
		slog.Error(logMsg, append(attrs, slog.String("error", err.Error()))...)
		response.WriteJSON(w, http.StatusInternalServerError,
			response.FailWithError(MsgInternal, err))
	}
}

// decodeBody decodes a JSON request body into v, rejecting empty bodies
// and keys v does not declare.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}
	if err != nil {
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	return nil
}
