// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// SQLite stores everything in a single file on disk, so this backend is
// what local runs without a MongoDB server use. With the path ":memory:"
// it gives the test-suite a real store with no setup at all.
//
// The database is opened through a driver registered in this package on
// top of go-sqlite3; the same package recognises UNIQUE violations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/aanand-mishra/students-api/internal/config"
	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/types"
)

// driverName is go-sqlite3 with unicode_lower(text) registered on every
// connection. SQLite's built-in lower() and LIKE only fold ASCII letters,
// which is not enough for names like "Élodie".
const driverName = "sqlite3_students"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("unicode_lower", strings.ToLower, true)
		},
	})
}

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB which is a connection pool managed by database/sql.
type SQLite struct {
	Db *sql.DB
}

var _ storage.Storage = (*SQLite)(nil)

// selectColumns is shared by every read so the Scan order in scanStudent
// stays in one place.
const selectColumns = "SELECT id, name, first_name, email, program, year, average, active FROM students"

// New opens the SQLite database at cfg.Storage.SQLitePath, creates the
// students table if it does not already exist, and returns a
// ready-to-use *SQLite.
func New(cfg *config.Config) (*SQLite, error) {
	db, err := sql.Open(driverName, cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// Every new connection to ":memory:" is a separate, empty database.
	if cfg.Storage.SQLitePath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// email is UNIQUE here; (name, first_name) is not, that rule is a
	// pre-check in the create handler.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS students (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT    NOT NULL,
			first_name TEXT    NOT NULL,
			email      TEXT    NOT NULL UNIQUE,
			program    TEXT    NOT NULL DEFAULT '',
			year       INTEGER NOT NULL DEFAULT 0,
			average    REAL    NOT NULL DEFAULT 0,
			active     BOOLEAN NOT NULL DEFAULT 1
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db}, nil
}

// CreateStudent validates the student, inserts it and returns it with the
// generated id. A taken email is reported as storage.ErrDuplicateEmail.
func (s *SQLite) CreateStudent(ctx context.Context, student types.Student) (types.Student, error) {
	if err := types.Validate(student); err != nil {
		return types.Student{}, &storage.ValidationError{Err: err}
	}

	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO students (name, first_name, email, program, year, average, active) VALUES (?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx,
		student.Name, student.FirstName, student.Email,
		student.Program, student.Year, student.Average, student.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Student{}, storage.ErrDuplicateEmail
		}
		return types.Student{}, fmt.Errorf("CreateStudent: exec: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: last insert id: %w", err)
	}

	student.ID = strconv.FormatInt(lastID, 10)
	return student, nil
}

// FindStudentByName returns the first student with exactly this name and
// first name, or storage.ErrNotFound.
func (s *SQLite) FindStudentByName(ctx context.Context, name, firstName string) (types.Student, error) {
	row := s.Db.QueryRowContext(ctx,
		selectColumns+" WHERE name = ? AND first_name = ? LIMIT 1", name, firstName)
	return scanRow(row)
}

// GetStudentByID treats an id that is not an integer as unknown.
func (s *SQLite) GetStudentByID(ctx context.Context, id string) (types.Student, error) {
	intID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return types.Student{}, storage.ErrNotFound
	}

	row := s.Db.QueryRowContext(ctx, selectColumns+" WHERE id = ? LIMIT 1", intID)
	return scanRow(row)
}

// FindStudents returns every student matching f, ordered by sort when it
// is non-nil. The result is never nil.
func (s *SQLite) FindStudents(ctx context.Context, f storage.Filter, sort *storage.Sort) ([]types.Student, error) {
	where, args := buildWhere(f)
	orderBy, err := buildOrderBy(sort)
	if err != nil {
		return nil, err
	}

	rows, err := s.Db.QueryContext(ctx, selectColumns+where+orderBy, args...)
	if err != nil {
		return nil, fmt.Errorf("FindStudents: query: %w", err)
	}
	defer rows.Close()

	// Returning [] instead of null in JSON is better API behaviour.
	students := make([]types.Student, 0)

	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("FindStudents: scan row: %w", err)
		}
		students = append(students, student)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindStudents: rows iteration: %w", err)
	}

	return students, nil
}

// UpdateStudentByID overwrites the submitted fields of the student with
// the given id and returns the stored record after the update. Only the
// submitted fields are validated.
func (s *SQLite) UpdateStudentByID(ctx context.Context, id string, patch types.StudentPatch) (types.Student, error) {
	current, err := s.GetStudentByID(ctx, id)
	if err != nil {
		return types.Student{}, err
	}

	if patch.IsEmpty() {
		return current, nil
	}

	updated := patch.Apply(current)
	if err := types.ValidatePatch(updated, patch); err != nil {
		return types.Student{}, &storage.ValidationError{Err: err}
	}

	// GetStudentByID already proved the id parses.
	intID, _ := strconv.ParseInt(id, 10, 64)

	stmt, err := s.Db.PrepareContext(ctx,
		"UPDATE students SET name = ?, first_name = ?, email = ?, program = ?, year = ?, average = ?, active = ? WHERE id = ?",
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudentByID: prepare: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		updated.Name, updated.FirstName, updated.Email,
		updated.Program, updated.Year, updated.Average, updated.Active,
		intID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Student{}, storage.ErrDuplicateEmail
		}
		return types.Student{}, fmt.Errorf("UpdateStudentByID: exec: %w", err)
	}

	// Re-fetch the record so we return exactly what is stored in the DB.
	return s.GetStudentByID(ctx, id)
}

// Close closes the underlying connection pool.
func (s *SQLite) Close(context.Context) error {
	return s.Db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(sc scanner) (types.Student, error) {
	var (
		student types.Student
		id      int64
	)
	err := sc.Scan(
		&id,
		&student.Name,
		&student.FirstName,
		&student.Email,
		&student.Program,
		&student.Year,
		&student.Average,
		&student.Active,
	)
	if err != nil {
		return types.Student{}, err
	}
	student.ID = strconv.FormatInt(id, 10)
	return student, nil
}

func scanRow(row *sql.Row) (types.Student, error) {
	student, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Student{}, storage.ErrNotFound
	}
	if err != nil {
		return types.Student{}, fmt.Errorf("scan: %w", err)
	}
	return student, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
