package sqlite

import (
	"fmt"
	"strings"

	"github.com/aanand-mishra/students-api/internal/storage"
)

// columns maps sortable JSON field names to SQL column names.
var columns = map[string]string{
	storage.FieldName:      "name",
	storage.FieldFirstName: "first_name",
	storage.FieldEmail:     "email",
	storage.FieldProgram:   "program",
	storage.FieldYear:      "year",
	storage.FieldAverage:   "average",
}

// buildWhere translates a storage.Filter into a WHERE clause with ?
// placeholders. Absent criteria produce no condition; an empty Filter
// produces an empty string.
//
// SQLite's LIKE only folds ASCII, so both sides of a substring match go
// through unicode_lower (see driverName) and the pattern is lowered here.
func buildWhere(f storage.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, *f.Active)
	}
	if f.Program != nil {
		conds = append(conds, "program = ?")
		args = append(args, *f.Program)
	}
	if f.NameContains != "" {
		conds = append(conds, `unicode_lower(name) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.NameContains))
	}
	if f.NameOrFirstNameContains != "" {
		p := likePattern(f.NameOrFirstNameContains)
		conds = append(conds, `(unicode_lower(name) LIKE ? ESCAPE '\' OR unicode_lower(first_name) LIKE ? ESCAPE '\')`)
		args = append(args, p, p)
	}
	if f.YearMin != nil {
		conds = append(conds, "year >= ?")
		args = append(args, *f.YearMin)
	}
	if f.YearMax != nil {
		conds = append(conds, "year <= ?")
		args = append(args, *f.YearMax)
	}
	if f.AverageMin != nil {
		conds = append(conds, "average >= ?")
		args = append(args, *f.AverageMin)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// likePattern lowers s and wraps it in % after escaping LIKE's own
// wildcards.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

// buildOrderBy never interpolates caller text: the field must be one of
// the known columns.
func buildOrderBy(s *storage.Sort) (string, error) {
	if s == nil {
		return "", nil
	}
	col, ok := columns[s.Field]
	if !ok {
		return "", fmt.Errorf("buildOrderBy: unknown sort field %q", s.Field)
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id ASC", col, dir), nil
}
