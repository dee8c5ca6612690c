package student_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/students-api/internal/config"
	"github.com/aanand-mishra/students-api/internal/http/handlers/student"
	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/storage/sqlite"
	"github.com/aanand-mishra/students-api/internal/types"
)

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Count   *int              `json:"count"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Filters map[string]string `json:"filters"`
	Query   string            `json:"query"`
	Program string            `json:"program"`
	SortBy  string            `json:"sortBy"`
	Order   string            `json:"order"`
}

func (e envelope) student(t *testing.T) types.Student {
	t.Helper()
	var s types.Student
	require.NoError(t, json.Unmarshal(e.Data, &s))
	return s
}

func (e envelope) students(t *testing.T) []types.Student {
	t.Helper()
	var s []types.Student
	require.NoError(t, json.Unmarshal(e.Data, &s))
	require.NotNil(t, e.Count)
	require.Equal(t, len(s), *e.Count)
	return s
}

func newServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{Storage: config.Storage{Driver: config.DriverSQLite, SQLitePath: ":memory:"}}
	store, err := sqlite.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	router := http.NewServeMux()
	student.Register(router, store)
	return router
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

const (
	jeanJSON  = `{"name":"Dupont","firstName":"Jean","email":"jean@x.com","program":"CS","year":2021,"average":14.5}`
	aliceJSON = `{"name":"Martin","firstName":"Alice","email":"alice@x.com","program":"Math","year":2022,"average":16.0}`
)

func create(t *testing.T, h http.Handler, body string) types.Student {
	t.Helper()
	code, env := do(t, h, http.MethodPost, "/students", body)
	require.Equal(t, http.StatusCreated, code, env.Message+" "+env.Error)
	return env.student(t)
}

func ids(students []types.Student) []string {
	out := make([]string, 0, len(students))
	for _, s := range students {
		out = append(out, s.ID)
	}
	return out
}

func TestCreate(t *testing.T) {
	h := newServer(t)

	code, env := do(t, h, http.MethodPost, "/students", jeanJSON)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, env.Success)

	got := env.student(t)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, types.Student{
		ID: got.ID, Name: "Dupont", FirstName: "Jean", Email: "jean@x.com",
		Program: "CS", Year: 2021, Average: 14.5, Active: true,
	}, got)
}

func TestCreateDuplicateName(t *testing.T) {
	h := newServer(t)
	create(t, h, jeanJSON)

	code, env := do(t, h, http.MethodPost, "/students",
		`{"name":"Dupont","firstName":"Jean","email":"other@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Equal(t, "duplicate name+firstName", env.Message)

	_, env = do(t, h, http.MethodGet, "/students", "")
	assert.Len(t, env.students(t), 1)
}

func TestCreateDuplicateEmail(t *testing.T) {
	h := newServer(t)
	create(t, h, jeanJSON)

	code, env := do(t, h, http.MethodPost, "/students",
		`{"name":"Durand","firstName":"Paul","email":"jean@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "duplicate email", env.Message)
}

func TestCreateValidationAndBadBodies(t *testing.T) {
	h := newServer(t)

	code, env := do(t, h, http.MethodPost, "/students", `{"name":"Dupont","email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, student.MsgValidationFailed, env.Message)
	assert.Contains(t, env.Error, "field firstName is required")
	assert.Contains(t, env.Error, "field email must be a valid email address")

	code, env = do(t, h, http.MethodPost, "/students", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "request body is empty")

	code, _ = do(t, h, http.MethodPost, "/students", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, h, http.MethodPost, "/students", `{"name":"A","firstName":"B","email":"a@b.c","role":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "unknown field")
}

func TestGetByID(t *testing.T) {
	h := newServer(t)
	jean := create(t, h, jeanJSON)

	code, env := do(t, h, http.MethodGet, "/students/"+jean.ID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, jean, env.student(t))

	code, env = do(t, h, http.MethodGet, "/students/424242", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, student.MsgNotFound, env.Message)

	code, _ = do(t, h, http.MethodGet, "/students/not-an-id", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpdate(t *testing.T) {
	h := newServer(t)
	jean := create(t, h, jeanJSON)

	code, env := do(t, h, http.MethodPut, "/students/"+jean.ID, `{"average":15.75,"program":"AI"}`)
	require.Equal(t, http.StatusOK, code)

	want := jean
	want.Average = 15.75
	want.Program = "AI"
	assert.Equal(t, want, env.student(t))

	code, env = do(t, h, http.MethodPut, "/students/"+jean.ID, `{"email":"broken"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, student.MsgValidationFailed, env.Message)

	code, _ = do(t, h, http.MethodPut, "/students/999", `{"average":1}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = do(t, h, http.MethodPut, "/students/"+jean.ID, `{"nickname":"JJ"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, student.MsgInvalidRequest, env.Message)
}

func TestUpdateCanReactivate(t *testing.T) {
	h := newServer(t)
	jean := create(t, h, jeanJSON)
	do(t, h, http.MethodDelete, "/students/"+jean.ID, "")

	code, env := do(t, h, http.MethodPut, "/students/"+jean.ID, `{"active":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.student(t).Active)
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	h := newServer(t)
	jean := create(t, h, jeanJSON)

	for i := 0; i < 2; i++ {
		code, env := do(t, h, http.MethodDelete, "/students/"+jean.ID, "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, student.MsgDeactivated, env.Message)
		assert.False(t, env.student(t).Active)
	}

	_, env := do(t, h, http.MethodGet, "/students", "")
	assert.Empty(t, env.students(t))

	_, env = do(t, h, http.MethodGet, "/students/inactive", "")
	assert.Equal(t, []string{jean.ID}, ids(env.students(t)))

	code, _ := do(t, h, http.MethodDelete, "/students/31337", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSearch(t *testing.T) {
	h := newServer(t)
	martin := create(t, h, aliceJSON)
	marie := create(t, h, `{"name":"Durand","firstName":"Marie","email":"marie@x.com"}`)
	create(t, h, jeanJSON)
	gone := create(t, h, `{"name":"Marchand","firstName":"Paul","email":"paul@x.com"}`)
	do(t, h, http.MethodDelete, "/students/"+gone.ID, "")

	code, env := do(t, h, http.MethodGet, "/students/search?q=mar", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "mar", env.Query)
	assert.ElementsMatch(t, []string{martin.ID, marie.ID}, ids(env.students(t)))

	code, env = do(t, h, http.MethodGet, "/students/search", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, student.MsgQueryRequired, env.Message)
}

func TestAdvancedSearch(t *testing.T) {
	h := newServer(t)
	create(t, h, `{"name":"A","firstName":"a","email":"a@x.com","program":"CS","year":2019,"average":10}`)
	y2020 := create(t, h, `{"name":"B","firstName":"b","email":"b@x.com","program":"CS","year":2020,"average":12}`)
	y2022 := create(t, h, `{"name":"C","firstName":"c","email":"c@x.com","program":"Math","year":2022,"average":18}`)
	y2023 := create(t, h, `{"name":"D","firstName":"d","email":"d@x.com","program":"CS","year":2023,"average":15}`)

	code, env := do(t, h, http.MethodGet, "/students?yearMin=2020&yearMax=2022", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"yearMin": "2020", "yearMax": "2022"}, env.Filters)
	assert.ElementsMatch(t, []string{y2020.ID, y2022.ID}, ids(env.students(t)))

	_, env = do(t, h, http.MethodGet, "/students?yearMin=2020", "")
	assert.ElementsMatch(t, []string{y2020.ID, y2022.ID, y2023.ID}, ids(env.students(t)))

	_, env = do(t, h, http.MethodGet, "/students?program=CS&averageMin=12", "")
	assert.ElementsMatch(t, []string{y2020.ID, y2023.ID}, ids(env.students(t)))

	do(t, h, http.MethodDelete, "/students/"+y2023.ID, "")
	_, env = do(t, h, http.MethodGet, "/students?program=CS&averageMin=12", "")
	assert.Equal(t, []string{y2020.ID}, ids(env.students(t)))

	code, env = do(t, h, http.MethodGet, "/students?yearMin=later", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "invalid yearMin")
}

func TestGetSorted(t *testing.T) {
	h := newServer(t)
	low := create(t, h, `{"name":"A","firstName":"a","email":"a@x.com","average":9}`)
	high := create(t, h, `{"name":"B","firstName":"b","email":"b@x.com","average":17}`)
	mid := create(t, h, `{"name":"C","firstName":"c","email":"c@x.com","average":13}`)

	code, env := do(t, h, http.MethodGet, "/students?sortBy=average&order=desc", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "average", env.SortBy)
	assert.Equal(t, "desc", env.Order)
	assert.Equal(t, []string{high.ID, mid.ID, low.ID}, ids(env.students(t)))

	for _, path := range []string{"/students?sortBy=average", "/students?sortBy=average&order=DESC"} {
		_, env = do(t, h, http.MethodGet, path, "")
		assert.Equal(t, []string{low.ID, mid.ID, high.ID}, ids(env.students(t)), path)
	}

	code, _ = do(t, h, http.MethodGet, "/students?sortBy=secret", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetSortedKeepsAdvancedFilters(t *testing.T) {
	h := newServer(t)
	create(t, h, `{"name":"A","firstName":"a","email":"a@x.com","year":2019}`)
	y2024 := create(t, h, `{"name":"B","firstName":"b","email":"b@x.com","year":2024}`)
	y2022 := create(t, h, `{"name":"C","firstName":"c","email":"c@x.com","year":2022}`)

	code, env := do(t, h, http.MethodGet, "/students?yearMin=2022&sortBy=year", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "year", env.SortBy)
	assert.Equal(t, map[string]string{"yearMin": "2022"}, env.Filters)
	assert.Equal(t, []string{y2022.ID, y2024.ID}, ids(env.students(t)))

	code, _ = do(t, h, http.MethodGet, "/students?yearMin=soon&sortBy=year", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSearchFoldsNonASCIICase(t *testing.T) {
	h := newServer(t)
	elodie := create(t, h, `{"name":"Élodie","firstName":"Chloé","email":"elodie@x.com","program":"Lettres"}`)
	create(t, h, jeanJSON)

	_, env := do(t, h, http.MethodGet, "/students/search?q=%C3%A9lo", "")
	assert.Equal(t, []string{elodie.ID}, ids(env.students(t)))

	_, env = do(t, h, http.MethodGet, "/students/search?q=CHLO%C3%89", "")
	assert.Equal(t, []string{elodie.ID}, ids(env.students(t)))

	_, env = do(t, h, http.MethodGet, "/students?name=%C3%89LODIE", "")
	assert.Equal(t, []string{elodie.ID}, ids(env.students(t)))
}

// Scenario: soft-deleting a student hides it from the active lists but
// not from the program listing.
func TestScenarioProgramIgnoresActiveFlag(t *testing.T) {
	h := newServer(t)
	jean := create(t, h, jeanJSON)
	alice := create(t, h, aliceJSON)

	code, _ := do(t, h, http.MethodDelete, "/students/"+jean.ID, "")
	require.Equal(t, http.StatusOK, code)

	_, env := do(t, h, http.MethodGet, "/students", "")
	assert.Equal(t, []string{alice.ID}, ids(env.students(t)))

	_, env = do(t, h, http.MethodGet, "/students/program/CS", "")
	assert.Equal(t, "CS", env.Program)
	assert.Equal(t, []string{jean.ID}, ids(env.students(t)))

	_, env = do(t, h, http.MethodGet, "/students?yearMin=2022", "")
	assert.Equal(t, []string{alice.ID}, ids(env.students(t)))
}

// brokenStore fails every call the way an unreachable database would.
type brokenStore struct {
	storage.Storage
}

var errDown = errors.New("connection refused")

func (brokenStore) FindStudents(context.Context, storage.Filter, *storage.Sort) ([]types.Student, error) {
	return nil, errDown
}

func (brokenStore) FindStudentByName(context.Context, string, string) (types.Student, error) {
	return types.Student{}, errDown
}

func TestStoreFailureIsInternalError(t *testing.T) {
	router := http.NewServeMux()
	student.Register(router, brokenStore{})

	code, env := do(t, router, http.MethodGet, "/students", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, student.MsgInternal, env.Message)
	assert.Equal(t, "connection refused", env.Error)

	code, _ = do(t, router, http.MethodPost, "/students", jeanJSON)
	assert.Equal(t, http.StatusInternalServerError, code)
}
