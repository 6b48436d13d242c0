package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/oicur0t/sematext2psql/internal/fault"
	"github.com/oicur0t/sematext2psql/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const secondsPerDay = 24 * 60 * 60

// MaxTTLDays is the longest expiry whose seconds still fit the int32 expireAfterSeconds option
const MaxTTLDays = math.MaxInt32 / secondsPerDay

// Archive mirrors every imported batch into a MongoDB collection
type Archive struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
	ttlDays    int
}

// NewArchive connects to MongoDB and verifies the connection
func NewArchive(uri, database, collection string, timeout time.Duration, ttlDays int, logger *zap.Logger) (*Archive, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(1)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fault.New(fault.StoreConnection, "failed to connect to MongoDB").WithOriginal(err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fault.New(fault.StoreConnection, "failed to ping MongoDB").WithOriginal(err)
	}

	logger.Info("Connected to MongoDB archive",
		zap.String("database", database),
		zap.String("collection", collection))

	return &Archive{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger,
		ttlDays:    ttlDays,
	}, nil
}

// EnsureIndexes creates the archive indexes (this is idempotent)
func (a *Archive) EnsureIndexes(ctx context.Context) error {
	if _, err := a.collection.Indexes().CreateMany(ctx, archiveIndexes(a.ttlDays)); err != nil {
		return fault.New(fault.StoreWrite, "failed to create archive indexes").WithOriginal(err)
	}
	return nil
}

// WriteBatch inserts records in order. Records are not retained.
func (a *Archive) WriteBatch(ctx context.Context, records []models.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	result, err := a.collection.InsertMany(ctx, toDocuments(records), options.InsertMany().SetOrdered(true))
	if err != nil {
		return fault.Newf(fault.StoreWrite, "failed to archive batch of %d records", len(records)).WithOriginal(err)
	}

	a.logger.Debug("Batch archived",
		zap.String("collection", a.collection.Name()),
		zap.Int("inserted", len(result.InsertedIDs)))

	return nil
}

// Close closes the MongoDB connection
func (a *Archive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

func archiveIndexes(ttlDays int) []mongo.IndexModel {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pod_name", Value: 1}},
			Options: options.Index().SetName("pod_name"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at_desc"),
		},
	}

	if ttlDays > MaxTTLDays {
		ttlDays = MaxTTLDays
	}
	if ttlDays > 0 {
		ttlSeconds := int32(ttlDays * secondsPerDay)
		indexModels = append(indexModels, mongo.IndexModel{
			Keys: bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().
				SetName(fmt.Sprintf("ttl_%dd", ttlDays)).
				SetExpireAfterSeconds(ttlSeconds),
		})
	}

	return indexModels
}

// toDocuments copies records so the caller may reuse its slice
func toDocuments(records []models.LogRecord) []interface{} {
	docs := make([]interface{}, len(records))
	for i, record := range records {
		docs[i] = record
	}
	return docs
}
