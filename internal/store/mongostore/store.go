package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nerrad567/tenantgate/internal/store"
)

// Config holds connection settings from the mongo section of config.yaml.
type Config struct {
	URI      string
	Database string
	// ConnectTimeout bounds the initial connect and ping.
	ConnectTimeout time.Duration
}

// Store implements store.Store on a MongoDB database. Document ids are
// ObjectIDs on disk and hex strings everywhere else.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Connect dials MongoDB, verifies it with a ping, and ensures indexes.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background()) //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	s := &Store{client: client, db: client.Database(cfg.Database)}
	if err := s.EnsureIndexes(ctx); err != nil {
		client.Disconnect(context.Background()) //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique and tenant indexes. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		"users": {
			{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "username", Value: 1}}, Options: unique},
		},
		"organizations": {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: unique},
		},
	}
	for _, coll := range []string{"roles", "factories", "products", "orders", "processes", "audit_logs"} {
		indexes[coll] = []mongo.IndexModel{{Keys: bson.D{{Key: "orgId", Value: 1}}}}
	}

	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating %s indexes: %w", coll, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Find returns matching documents. Without a sort they are ordered by _id.
func (s *Store) Find(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	filter, err := toBSONFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	sortSpec, err := toBSONSort(q.Sort)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(sortSpec)
	if q.Skip > 0 {
		opts.SetSkip(int64(q.Skip))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("finding in %s: %w", collection, err)
	}
	return decodeAll(ctx, cur)
}

// Count returns the number of matching documents.
func (s *Store) Count(ctx context.Context, collection string, f store.Filter) (int64, error) {
	filter, err := toBSONFilter(f)
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", collection, err)
	}
	return n, nil
}

// Get returns one document by id.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": toObjectID(id)}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	return fromBSON(raw), nil
}

// Insert stores doc with a fresh ObjectID unless it already carries an id.
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	body := bson.M{}
	for k, v := range doc {
		body[k] = v
	}
	if id := doc.ID(); id != "" {
		body["_id"] = toObjectID(id)
	} else {
		body["_id"] = primitive.NewObjectID()
	}

	res, err := s.db.Collection(collection).InsertOne(ctx, body)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", store.ErrDuplicate
		}
		return "", fmt.Errorf("inserting into %s: %w", collection, err)
	}
	return idString(res.InsertedID), nil
}

// Update applies $set with fields to document id.
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Document) error {
	set := bson.M{}
	for k, v := range fields {
		if k == store.IDField {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		// Nothing to set; still report a missing target.
		_, err := s.Get(ctx, collection, id)
		return err
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": toObjectID(id)}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Aggregate runs the pipeline natively.
func (s *Store) Aggregate(ctx context.Context, collection string, p store.Pipeline) ([]store.Document, error) {
	pipeline, err := toBSONPipeline(p)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregating %s: %w", collection, err)
	}
	return decodeAll(ctx, cur)
}

// Ping checks connectivity against the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]store.Document, error) {
	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("decoding documents: %w", err)
	}
	docs := make([]store.Document, len(raws))
	for i, r := range raws {
		docs[i] = fromBSON(r)
	}
	return docs, nil
}
