package personality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore keeps traits in a MongoDB collection. A unique index on the
// trait identity turns the conditional upsert into an atomic merge.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		collection = "personality_traits"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{client: client, collection: client.Database(database).Collection(collection)}, nil
}

// NewMongoStoreFromCollection wraps an already connected collection.
func NewMongoStoreFromCollection(col *mongo.Collection) *MongoStore {
	return &MongoStore{collection: col}
}

// CreateSchema ensures the identity and ranking indexes exist.
func (ms *MongoStore) CreateSchema(ctx context.Context) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "agent_id", Value: 1},
				{Key: "user_id", Value: 1},
				{Key: "type", Value: 1},
				{Key: "content_prefix", Value: 1},
			},
			Options: options.Index().SetName("trait_identity").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "agent_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "confidence", Value: -1}},
			Options: options.Index().SetName("trait_rank"),
		},
	}
	_, err := ms.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Upsert matches only an equivalent trait with lower confidence. When none
// matches the upsert tries to insert, and the unique index rejects it if an
// equivalent trait with equal or higher confidence already exists.
func (ms *MongoStore) Upsert(ctx context.Context, t Trait) (Outcome, error) {
	if err := t.Validate(); err != nil {
		return Kept, err
	}
	now := time.Now().UTC()
	filter := bson.D{
		{Key: "agent_id", Value: t.AgentID},
		{Key: "user_id", Value: t.UserID},
		{Key: "type", Value: string(t.Type)},
		{Key: "content_prefix", Value: t.Prefix()},
		{Key: "confidence", Value: bson.D{{Key: "$lt", Value: t.Confidence}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "confidence", Value: t.Confidence},
			{Key: "source", Value: t.Source},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "content", Value: t.Content},
			{Key: "created_at", Value: now},
		}},
	}
	res, err := ms.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	switch {
	case mongo.IsDuplicateKeyError(err):
		return Kept, nil
	case err != nil:
		return Kept, fmt.Errorf("upsert trait: %w", err)
	case res.UpsertedCount > 0:
		return Inserted, nil
	case res.ModifiedCount > 0:
		return Raised, nil
	default:
		return Kept, nil
	}
}

func (ms *MongoStore) Top(ctx context.Context, key model.Key, limit int) ([]Trait, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultProfileTraits
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "confidence", Value: -1}, {Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := ms.collection.Find(ctx, bson.M{"agent_id": key.AgentID, "user_id": key.UserID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find traits: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Trait
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode traits: %w", err)
	}
	return out, nil
}

func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}
