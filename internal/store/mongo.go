package store

import (
	"context"
	"errors"
	"time"

	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const usersCollection = "users"

// userDocument is the stored shape of a user; field names match the
// collection layout used by earlier deployments of the service.
type userDocument struct {
	ID            bson.ObjectID `bson:"_id"`
	Name          string        `bson:"name"`
	Email         string        `bson:"email"`
	Password      string        `bson:"password"`
	Role          string        `bson:"role"`
	IsActive      bool          `bson:"isActive"`
	LoginAttempts int           `bson:"loginAttempts"`
	LockUntil     *time.Time    `bson:"lockUntil,omitempty"`
	LastLogin     *time.Time    `bson:"lastLogin,omitempty"`
	CreatedAt     time.Time     `bson:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt"`
}

func (d userDocument) toUser() types.User {
	return types.User{
		ID:            d.ID.Hex(),
		Name:          d.Name,
		Email:         d.Email,
		PasswordHash:  d.Password,
		Role:          types.Role(d.Role),
		IsActive:      d.IsActive,
		LoginAttempts: d.LoginAttempts,
		LockUntil:     d.LockUntil,
		LastLogin:     d.LastLogin,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func documentFromUser(u types.User) (userDocument, error) {
	oid, err := bson.ObjectIDFromHex(u.ID)
	if err != nil {
		return userDocument{}, err
	}
	return userDocument{
		ID:            oid,
		Name:          u.Name,
		Email:         u.Email,
		Password:      u.PasswordHash,
		Role:          string(u.Role),
		IsActive:      u.IsActive,
		LoginAttempts: u.LoginAttempts,
		LockUntil:     u.LockUntil,
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}, nil
}

// MongoUserRepository handles persistence for users in MongoDB.
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique email index and the listing index.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_1"),
		},
		{
			Keys:    bson.D{{Key: "isActive", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("isActive_1_createdAt_-1"),
		},
	})
	return err
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return types.User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.D) (types.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return types.User{}, translateMongoError(err)
	}
	return doc.toUser(), nil
}

func (r *MongoUserRepository) ListActive(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	filter := bson.D{{Key: "isActive", Value: true}}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}

	users := make([]types.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toUser())
	}
	return users, int(total), nil
}

func (r *MongoUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = types.NewUserID()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	user.LoginAttempts = 0
	user.LockUntil = nil

	doc, err := documentFromUser(user)
	if err != nil {
		return types.User{}, err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return types.User{}, translateMongoError(err)
	}
	return user, nil
}

// Update sets only the fields present in changes and returns the stored document.
func (r *MongoUserRepository) Update(ctx context.Context, id string, changes types.UserChanges) (types.User, error) {
	return r.findOneAndSet(ctx, id, changesDocument(changes, time.Now().UTC()))
}

// SetActive flips the soft-delete flag without touching other fields.
func (r *MongoUserRepository) SetActive(ctx context.Context, id string, active bool) (types.User, error) {
	return r.findOneAndSet(ctx, id, bson.D{
		{Key: "isActive", Value: active},
		{Key: "updatedAt", Value: time.Now().UTC()},
	})
}

func (r *MongoUserRepository) findOneAndSet(ctx context.Context, id string, set bson.D) (types.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return types.User{}, ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.D{{Key: "$set", Value: set}}

	var doc userDocument
	if err := r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&doc); err != nil {
		return types.User{}, translateMongoError(err)
	}
	return doc.toUser(), nil
}

func changesDocument(c types.UserChanges, now time.Time) bson.D {
	var set bson.D
	if c.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *c.Name})
	}
	if c.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *c.Email})
	}
	if c.PasswordHash != nil {
		set = append(set, bson.E{Key: "password", Value: *c.PasswordHash})
	}
	if c.Role != nil {
		set = append(set, bson.E{Key: "role", Value: string(*c.Role)})
	}
	if c.IsActive != nil {
		set = append(set, bson.E{Key: "isActive", Value: *c.IsActive})
	}
	return append(set, bson.E{Key: "updatedAt", Value: now})
}

// RecordLoginFailure runs the lockout transition as a single pipeline
// update; every expression reads the pre-update document.
func (r *MongoUserRepository) RecordLoginFailure(ctx context.Context, id string, policy auth.LockoutPolicy, now time.Time) (types.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return types.User{}, ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDocument
	err = r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, loginFailurePipeline(policy, now), opts).Decode(&doc)
	if err != nil {
		return types.User{}, translateMongoError(err)
	}
	return doc.toUser(), nil
}

func loginFailurePipeline(policy auth.LockoutPolicy, now time.Time) mongo.Pipeline {
	hasLock := bson.D{{Key: "$ne", Value: bson.A{
		bson.D{{Key: "$ifNull", Value: bson.A{"$lockUntil", nil}}},
		nil,
	}}}
	expired := bson.D{{Key: "$and", Value: bson.A{
		hasLock,
		bson.D{{Key: "$lt", Value: bson.A{"$lockUntil", now}}},
	}}}
	locked := bson.D{{Key: "$gt", Value: bson.A{"$lockUntil", now}}}
	attempts := bson.D{{Key: "$add", Value: bson.A{
		bson.D{{Key: "$ifNull", Value: bson.A{"$loginAttempts", 0}}},
		1,
	}}}
	shouldLock := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "$gte", Value: bson.A{attempts, policy.MaxAttempts}}},
		bson.D{{Key: "$not", Value: bson.A{locked}}},
	}}}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "loginAttempts", Value: bson.D{{Key: "$cond", Value: bson.A{expired, 1, attempts}}}},
			{Key: "lockUntil", Value: bson.D{{Key: "$cond", Value: bson.A{
				expired,
				"$$REMOVE",
				bson.D{{Key: "$cond", Value: bson.A{shouldLock, now.Add(policy.LockDuration), "$lockUntil"}}},
			}}}},
			{Key: "updatedAt", Value: now},
		}}},
	}
}

func (r *MongoUserRepository) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "loginAttempts", Value: 0},
			{Key: "lastLogin", Value: now},
			{Key: "updatedAt", Value: now},
		}},
		{Key: "$unset", Value: bson.D{{Key: "lockUntil", Value: ""}}},
	}
	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func translateMongoError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicateEmail
	default:
		return err
	}
}
