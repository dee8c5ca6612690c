package student

import (
	"net/http"

	"github.com/aanand-mishra/students-api/internal/storage"
)

// Register mounts every students route on router.
//
// The literal segments "inactive", "search" and "program" are more
// specific than {id}, so ServeMux picks them first.
//
// Route table:
//
//	POST   /students                    → create a new student
//	GET    /students                    → list / advanced search / sorted list
//	GET    /students/inactive           → list soft-deleted students
//	GET    /students/search?q=          → search by name or firstName
//	GET    /students/program/{program}  → list by program
//	GET    /students/{id}               → get one student by ID
//	PUT    /students/{id}               → partially update a student
//	DELETE /students/{id}               → soft-delete a student
func Register(router *http.ServeMux, store storage.Storage) {
	router.HandleFunc("POST /students", New(store))
	router.HandleFunc("GET /students", GetList(store))
	router.HandleFunc("GET /students/inactive", GetInactive(store))
	router.HandleFunc("GET /students/search", Search(store))
	router.HandleFunc("GET /students/program/{program}", GetByProgram(store))
	router.HandleFunc("GET /students/{id}", GetByID(store))
	router.HandleFunc("PUT /students/{id}", Update(store))
	router.HandleFunc("DELETE /students/{id}", Delete(store))
}
