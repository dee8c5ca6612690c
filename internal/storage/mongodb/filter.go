package mongodb

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/aanand-mishra/students-api/internal/storage"
)

// buildFilter translates a storage.Filter into a MongoDB query document.
// Only the criteria that are present become keys; an empty Filter yields
// an empty document, which matches every record.
func buildFilter(f storage.Filter) bson.M {
	filter := bson.M{}

	if f.Active != nil {
		filter["active"] = *f.Active
	}
	if f.Program != nil {
		filter["program"] = *f.Program
	}
	if f.NameContains != "" {
		filter["name"] = containsRegex(f.NameContains)
	}
	if f.NameOrFirstNameContains != "" {
		re := containsRegex(f.NameOrFirstNameContains)
		filter["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"firstName": re},
		}
	}

	year := bson.M{}
	if f.YearMin != nil {
		year["$gte"] = *f.YearMin
	}
	if f.YearMax != nil {
		year["$lte"] = *f.YearMax
	}
	if len(year) > 0 {
		filter["year"] = year
	}

	if f.AverageMin != nil {
		filter["average"] = bson.M{"$gte": *f.AverageMin}
	}

	return filter
}

// containsRegex matches s as a literal, case-insensitive substring.
func containsRegex(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}

// buildSort returns nil when no sort was requested so the driver keeps
// the collection's natural order.
func buildSort(s *storage.Sort) bson.D {
	if s == nil {
		return nil
	}
	dir := 1
	if s.Desc {
		dir = -1
	}
	return bson.D{{Key: s.Field, Value: dir}}
}
