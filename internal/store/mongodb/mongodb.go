// Package mongodb stores users, classes, join requests and fee records in
// MongoDB collections keyed by string ids.
package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tuition/internal/catalog"
	"tuition/internal/enrollment"
	"tuition/internal/identity"
)

const (
	colUsers    = "users"
	colClasses  = "classes"
	colRequests = "join_requests"
	colFees     = "fee_records"
)

// Store implements the catalog, enrollment and identity repositories.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// EnsureIndexes creates the unique and lookup indexes the repositories rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colClasses: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "teacherId", Value: 1}}},
		},
		colRequests: {
			{Keys: bson.D{{Key: "classId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "studentId", Value: 1}}},
		},
		colFees: {
			{Keys: bson.D{{Key: "studentId", Value: 1}}},
			{Keys: bson.D{{Key: "joinRequestId", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

// -------- Users --------

func (s *Store) InsertUser(ctx context.Context, u identity.User) error {
	_, err := s.db.Collection(colUsers).InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return identity.ErrEmailTaken
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (identity.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (identity.User, error) {
	var u identity.User
	err := s.db.Collection(colUsers).FindOne(ctx, filter).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return identity.User{}, identity.ErrNotFound
	}
	return u, err
}

// -------- Classes --------

func (s *Store) InsertClass(ctx context.Context, c catalog.Class) error {
	_, err := s.db.Collection(colClasses).InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return catalog.ErrDuplicate
	}
	return err
}

func (s *Store) GetClass(ctx context.Context, id string) (catalog.Class, error) {
	return s.findClass(ctx, bson.M{"_id": id})
}

func (s *Store) GetClassByCode(ctx context.Context, code string) (catalog.Class, error) {
	return s.findClass(ctx, bson.M{"code": code})
}

func (s *Store) findClass(ctx context.Context, filter bson.M) (catalog.Class, error) {
	var c catalog.Class
	err := s.db.Collection(colClasses).FindOne(ctx, filter).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return catalog.Class{}, catalog.ErrNotFound
	}
	return c, err
}

func (s *Store) ListClasses(ctx context.Context) ([]catalog.Class, error) {
	return s.listClasses(ctx, bson.M{})
}

func (s *Store) ListClassesByTeacher(ctx context.Context, teacherID string) ([]catalog.Class, error) {
	return s.listClasses(ctx, bson.M{"teacherId": teacherID})
}

func (s *Store) listClasses(ctx context.Context, filter bson.M) ([]catalog.Class, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.db.Collection(colClasses).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []catalog.Class{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateClassFee(ctx context.Context, id string, fee float64) error {
	return s.updateClass(ctx, id, bson.M{"monthlyFee": fee})
}

func (s *Store) UpdateClassQR(ctx context.Context, id, url string) error {
	return s.updateClass(ctx, id, bson.M{"qrImageUrl": url})
}

func (s *Store) updateClass(ctx context.Context, id string, set bson.M) error {
	res, err := s.db.Collection(colClasses).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// -------- Join requests and fee records --------

func (s *Store) InsertJoinRequest(ctx context.Context, jr enrollment.JoinRequest) error {
	_, err := s.db.Collection(colRequests).InsertOne(ctx, jr)
	if mongo.IsDuplicateKeyError(err) {
		return enrollment.ErrDuplicate
	}
	return err
}

func (s *Store) InsertFeeRecord(ctx context.Context, fr enrollment.FeeRecord) error {
	_, err := s.db.Collection(colFees).InsertOne(ctx, fr)
	if mongo.IsDuplicateKeyError(err) {
		return enrollment.ErrDuplicate
	}
	return err
}

// InsertSubmission writes both documents in one transaction. It needs a
// replica set or sharded cluster; standalone servers reject sessions.
func (s *Store) InsertSubmission(ctx context.Context, jr enrollment.JoinRequest, fr enrollment.FeeRecord) error {
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if err := s.InsertJoinRequest(sc, jr); err != nil {
			return nil, err
		}
		return nil, s.InsertFeeRecord(sc, fr)
	})
	return err
}

func (s *Store) GetJoinRequest(ctx context.Context, id string) (enrollment.JoinRequest, error) {
	var jr enrollment.JoinRequest
	err := s.db.Collection(colRequests).FindOne(ctx, bson.M{"_id": id}).Decode(&jr)
	if err == mongo.ErrNoDocuments {
		return enrollment.JoinRequest{}, enrollment.ErrNotFound
	}
	return jr, err
}

func (s *Store) ListJoinRequests(ctx context.Context, f enrollment.RequestFilter) ([]enrollment.JoinRequest, error) {
	filter := bson.M{}
	if f.ClassID != "" {
		filter["classId"] = f.ClassID
	}
	if f.StudentID != "" {
		filter["studentId"] = f.StudentID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "requestedAt", Value: 1}})
	cur, err := s.db.Collection(colRequests).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []enrollment.JoinRequest{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListFeeRecords(ctx context.Context, f enrollment.FeeFilter) ([]enrollment.FeeRecord, error) {
	filter := bson.M{}
	if f.ClassID != "" {
		filter["classId"] = f.ClassID
	}
	if f.StudentID != "" {
		filter["studentId"] = f.StudentID
	}
	if f.JoinRequestID != "" {
		filter["joinRequestId"] = f.JoinRequestID
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.db.Collection(colFees).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []enrollment.FeeRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DecideJoinRequest(ctx context.Context, id string, status enrollment.Status, at time.Time) (enrollment.JoinRequest, error) {
	var jr enrollment.JoinRequest
	err := s.db.Collection(colRequests).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": enrollment.StatusPending},
		bson.M{"$set": bson.M{"status": status, "decidedAt": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&jr)
	if err == nil {
		return jr, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return enrollment.JoinRequest{}, err
	}
	current, err := s.GetJoinRequest(ctx, id)
	if err != nil {
		return enrollment.JoinRequest{}, err
	}
	return current, enrollment.ErrNotPending
}
