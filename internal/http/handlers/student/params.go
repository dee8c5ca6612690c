package student

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/aanand-mishra/students-api/internal/storage"
)

// activeScope states which records an operation looks at. Every list
// operation picks one explicitly; GetByProgram is the one that uses
// anyActive.
type activeScope int

const (
	activeOnly activeScope = iota
	inactiveOnly
	anyActive
)

// apply sets the Active criterion of f for this scope.
func (a activeScope) apply(f storage.Filter) storage.Filter {
	switch a {
	case activeOnly:
		v := true
		f.Active = &v
	case inactiveOnly:
		v := false
		f.Active = &v
	case anyActive:
		f.Active = nil
	}
	return f
}

// Query parameter names recognised by GET /students.
const (
	paramName       = "name"
	paramProgram    = "program"
	paramYearMin    = "yearMin"
	paramYearMax    = "yearMax"
	paramAverageMin = "averageMin"
	paramSortBy     = "sortBy"
	paramOrder      = "order"
	paramQuery      = "q"
)

// advancedParams lists the advanced-search keys in echo order.
var advancedParams = []string{paramName, paramProgram, paramYearMin, paramYearMax, paramAverageMin}

// parseAdvancedFilters builds a Filter from the advanced-search keys.
// A key contributes a criterion only when it is present and non-empty.
// The second result echoes exactly those keys; it is empty when no
// advanced-search key was supplied.
func parseAdvancedFilters(q url.Values) (storage.Filter, map[string]string, error) {
	var f storage.Filter
	echo := make(map[string]string)

	for _, key := range advancedParams {
		v := q.Get(key)
		if v == "" {
			continue
		}
		echo[key] = v

		switch key {
		case paramName:
			f.NameContains = v
		case paramProgram:
			p := v
			f.Program = &p
		case paramYearMin, paramYearMax:
			n, err := strconv.Atoi(v)
			if err != nil {
				return storage.Filter{}, nil, fmt.Errorf("invalid %s: must be an integer", key)
			}
			if key == paramYearMin {
				f.YearMin = &n
			} else {
				f.YearMax = &n
			}
		case paramAverageMin:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return storage.Filter{}, nil, fmt.Errorf("invalid %s: must be a number", key)
			}
			f.AverageMin = &n
		}
	}

	return f, echo, nil
}

// parseSort returns nil when sortBy is absent. Any order other than the
// exact token "desc" sorts ascending.
func parseSort(sortBy, order string) (*storage.Sort, error) {
	if sortBy == "" {
		return nil, nil
	}
	if !storage.SortFields[sortBy] {
		return nil, fmt.Errorf("invalid sortBy: %q is not a sortable field", sortBy)
	}
	return &storage.Sort{Field: sortBy, Desc: order == "desc"}, nil
}
