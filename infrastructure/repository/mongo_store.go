package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tradequest-go/domain/storage"
)

// DefaultStoreCollection is the collection holding key/value documents.
const DefaultStoreCollection = "kv"

// storeDocument is the MongoDB document written for one key.
type storeDocument struct {
	ID        string    `bson:"_id"`
	Value     any       `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// storedDocument is the read side of storeDocument; the value is decoded lazily into the caller's type.
type storedDocument struct {
	ID    string        `bson:"_id"`
	Value bson.RawValue `bson:"value"`
}

// MongoStore implements storage.Store with one document per key.
type MongoStore struct {
	collection *mongo.Collection
	keys       keyspace
	logger     *slog.Logger
	now        func() time.Time
}

// NewMongoStore creates a MongoDB-based store in the given collection.
func NewMongoStore(db *MongoDB, collection, namespace string, logger *slog.Logger) *MongoStore {
	if logger == nil {
		logger = slog.Default()
	}
	if collection == "" {
		collection = DefaultStoreCollection
	}
	return &MongoStore{
		collection: db.Collection(collection),
		keys:       newKeyspace(namespace),
		logger:     logger,
		now:        time.Now,
	}
}

// Save writes value under key.
func (s *MongoStore) Save(ctx context.Context, key string, value any) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	doc := s.document(key, value)
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Load decodes the value stored under key into dst.
func (s *MongoStore) Load(ctx context.Context, key string, dst any) (bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return false, err
	}

	var doc storedDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": s.keys.key(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}

	if err := doc.Value.Unmarshal(dst); err != nil {
		return true, fmt.Errorf("failed to decode value for %s: %w", key, err)
	}
	return true, nil
}

// Delete removes key.
func (s *MongoStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return false, err
	}

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": s.keys.key(key)})
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return result.DeletedCount > 0, nil
}

// Exists reports whether key is present.
func (s *MongoStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return false, err
	}

	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": s.keys.key(key)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return n > 0, nil
}

// ListKeys returns keys starting with prefix, sorted.
func (s *MongoStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := storage.ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, s.prefixFilter(prefix), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []storedDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode keys: %w", err)
	}

	keys := make([]string, len(docs))
	for i, doc := range docs {
		keys[i] = s.keys.strip(doc.ID)
	}
	return keys, nil
}

// Clear removes every key in the namespace.
func (s *MongoStore) Clear(ctx context.Context) error {
	result, err := s.collection.DeleteMany(ctx, s.prefixFilter(""))
	if err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}

	s.logger.Info("Store cleared", "keys", result.DeletedCount)
	return nil
}

func (s *MongoStore) document(key string, value any) *storeDocument {
	return &storeDocument{
		ID:        s.keys.key(key),
		Value:     value,
		UpdatedAt: s.now().UTC(),
	}
}

func (s *MongoStore) prefixFilter(prefix string) bson.M {
	return bson.M{"_id": bson.M{"$regex": s.keys.regex(prefix)}}
}

// Ensure MongoStore implements storage.Store
var _ storage.Store = (*MongoStore)(nil)
