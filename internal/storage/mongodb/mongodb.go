// Package mongodb provides a MongoDB-backed implementation of the
// storage.Storage interface using the official mongo-driver.
//
// Each student is one document in a single collection. The identifier
// exposed to clients is the hex form of the document's ObjectID.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aanand-mishra/students-api/internal/config"
	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/types"
)

// MongoDB is the concrete implementation of storage.Storage.
// A *mongo.Client is safe for concurrent use by multiple goroutines.
type MongoDB struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ storage.Storage = (*MongoDB)(nil)

// studentDocument is the BSON shape of a student.
type studentDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	FirstName string             `bson:"firstName"`
	Email     string             `bson:"email"`
	Program   string             `bson:"program"`
	Year      int                `bson:"year"`
	Average   float64            `bson:"average"`
	Active    bool               `bson:"active"`
}

func toDocument(s types.Student) studentDocument {
	return studentDocument{
		Name:      s.Name,
		FirstName: s.FirstName,
		Email:     s.Email,
		Program:   s.Program,
		Year:      s.Year,
		Average:   s.Average,
		Active:    s.Active,
	}
}

func (d studentDocument) toStudent() types.Student {
	return types.Student{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		FirstName: d.FirstName,
		Email:     d.Email,
		Program:   d.Program,
		Year:      d.Year,
		Average:   d.Average,
		Active:    d.Active,
	}
}

// New connects to the server at cfg.Storage.MongoURI, checks it with a
// ping and makes sure the collection's indexes exist.
func New(ctx context.Context, cfg *config.Config) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Storage.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongodb.New: connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb.New: ping: %w", err)
	}

	m := &MongoDB{
		client: client,
		coll:   client.Database(cfg.Storage.MongoDatabase).Collection(cfg.Storage.MongoCollection),
	}

	if err := m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return m, nil
}

// EnsureIndexes creates the unique index on email. Creating an index that
// already exists with the same definition is a no-op.
//
// (name, firstName) deliberately has no unique index: that rule is a
// pre-check in the create handler and stays non-atomic.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("mongodb.EnsureIndexes: %w", err)
	}
	return nil
}

// CreateStudent validates the student, inserts it and returns it with
// the hex ObjectID the driver generated. A duplicate key on the email
// index is reported as storage.ErrDuplicateEmail.
func (m *MongoDB) CreateStudent(ctx context.Context, s types.Student) (types.Student, error) {
	if err := types.Validate(s); err != nil {
		return types.Student{}, &storage.ValidationError{Err: err}
	}

	doc := toDocument(s)
	res, err := m.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Student{}, storage.ErrDuplicateEmail
		}
		return types.Student{}, fmt.Errorf("CreateStudent: insert: %w", err)
	}

	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.toStudent(), nil
}

// FindStudentByName returns the first student with exactly this name and
// first name, or storage.ErrNotFound.
func (m *MongoDB) FindStudentByName(ctx context.Context, name, firstName string) (types.Student, error) {
	return m.findOne(ctx, bson.M{"name": name, "firstName": firstName})
}

// GetStudentByID looks a student up by its hex ObjectID. An id that is
// not a valid ObjectID is reported as storage.ErrNotFound.
func (m *MongoDB) GetStudentByID(ctx context.Context, id string) (types.Student, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.Student{}, storage.ErrNotFound
	}
	return m.findOne(ctx, bson.M{"_id": oid})
}

func (m *MongoDB) findOne(ctx context.Context, filter bson.M) (types.Student, error) {
	var doc studentDocument
	err := m.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Student{}, storage.ErrNotFound
	}
	if err != nil {
		return types.Student{}, fmt.Errorf("findOne: %w", err)
	}
	return doc.toStudent(), nil
}

// FindStudents returns every student matching f, ordered by sort when it
// is non-nil. The result is never nil.
func (m *MongoDB) FindStudents(ctx context.Context, f storage.Filter, sort *storage.Sort) ([]types.Student, error) {
	opts := options.Find()
	if s := buildSort(sort); s != nil {
		opts.SetSort(s)
	}

	cursor, err := m.coll.Find(ctx, buildFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("FindStudents: find: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []studentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("FindStudents: decode: %w", err)
	}

	students := make([]types.Student, 0, len(docs))
	for _, d := range docs {
		students = append(students, d.toStudent())
	}
	return students, nil
}

// UpdateStudentByID validates the submitted fields of the patched record
// in memory, then writes only those fields with $set and returns the
// document as it is after the update.
func (m *MongoDB) UpdateStudentByID(ctx context.Context, id string, patch types.StudentPatch) (types.Student, error) {
	current, err := m.GetStudentByID(ctx, id)
	if err != nil {
		return types.Student{}, err
	}

	if patch.IsEmpty() {
		return current, nil
	}

	if err := types.ValidatePatch(patch.Apply(current), patch); err != nil {
		return types.Student{}, &storage.ValidationError{Err: err}
	}

	// GetStudentByID already proved the id parses.
	oid, _ := primitive.ObjectIDFromHex(id)

	var doc studentDocument
	err = m.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": patchToSet(patch)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return types.Student{}, storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return types.Student{}, storage.ErrDuplicateEmail
	case err != nil:
		return types.Student{}, fmt.Errorf("UpdateStudentByID: %w", err)
	}

	return doc.toStudent(), nil
}

// patchToSet lists the submitted fields under their BSON names.
func patchToSet(p types.StudentPatch) bson.M {
	set := bson.M{}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.FirstName != nil {
		set["firstName"] = *p.FirstName
	}
	if p.Email != nil {
		set["email"] = *p.Email
	}
	if p.Program != nil {
		set["program"] = *p.Program
	}
	if p.Year != nil {
		set["year"] = *p.Year
	}
	if p.Average != nil {
		set["average"] = *p.Average
	}
	if p.Active != nil {
		set["active"] = *p.Active
	}
	return set
}

// Close disconnects the client.
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
