package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditLog is one dispatch change recorded for later inspection.
type AuditLog struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Actor     string    `bson:"actor" json:"actor"`
	Action    string    `bson:"action" json:"action"`
	EntityIDs []string  `bson:"entity_ids" json:"entityIds"`
	Data      bson.M    `bson:"data" json:"data"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// MongoAuditRepository stores AuditLog documents in one collection.
type MongoAuditRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoAuditRepository(ctx context.Context, uri, database, collection string) (*MongoAuditRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &MongoAuditRepository{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (m *MongoAuditRepository) Record(ctx context.Context, entry *AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := m.collection.InsertOne(ctx, entry)
	return err
}

// ListByEntity returns the newest entries that touched entityID.
func (m *MongoAuditRepository) ListByEntity(ctx context.Context, entityID string, limit int64) ([]*AuditLog, error) {
	filter := bson.M{"entity_ids": entityID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []*AuditLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (m *MongoAuditRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
