package joblog

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultMongoDatabase = "image_studio"
	mongoCollection      = "batch_jobs"
)

// Mongo records entries in a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	jobs   *mongo.Collection
}

// OpenMongo connects to uri and prepares the jobs collection in database.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongodb")
	}
	m := NewMongo(client, database)
	if err := m.Migrate(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

// NewMongo wraps an existing client.
func NewMongo(client *mongo.Client, database string) *Mongo {
	if database == "" {
		database = defaultMongoDatabase
	}
	return &Mongo{
		client: client,
		jobs:   client.Database(database).Collection(mongoCollection),
	}
}

// Migrate creates the collection indexes.
func (m *Mongo) Migrate(ctx context.Context) error {
	_, err := m.jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"jobId": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"finishedAt": -1}},
	})
	if err != nil {
		return errors.Wrap(err, "could not create indexes on batch_jobs collection")
	}
	return nil
}

// Record upserts e by job ID.
func (m *Mongo) Record(ctx context.Context, e Entry) error {
	_, err := m.jobs.ReplaceOne(ctx, bson.M{"jobId": e.JobID}, e, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(ErrWriteFailed, "mongodb upsert job %s: %v", e.JobID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *Mongo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "finishedAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.jobs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrapf(ErrReadFailed, "mongodb find: %v", err)
	}
	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, errors.Wrapf(ErrReadFailed, "mongodb decode: %v", err)
	}
	return entries, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
