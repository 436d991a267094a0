package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for MongoDB grid repository.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. shipgrid
	Collection string // e.g. ship_grids
}

// MongoGridRepo implements GridRepo on MongoDB backend.
type MongoGridRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoSnapshot struct {
	ID        string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoGridRepo establishes connection and returns repository.
func NewMongoGridRepo(ctx context.Context, cfg MongoConfig) (*MongoGridRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "shipgrid"
	}
	if cfg.Collection == "" {
		cfg.Collection = "ship_grids"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &MongoGridRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Save upserts the snapshot document.
func (m *MongoGridRepo) Save(ctx context.Context, shipID uuid.UUID, data []byte) error {
	doc := mongoSnapshot{ID: shipID.String(), Data: data, UpdatedAt: time.Now().UTC()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// Load returns the snapshot or ErrNotFound.
func (m *MongoGridRepo) Load(ctx context.Context, shipID uuid.UUID) ([]byte, error) {
	var doc mongoSnapshot
	err := m.collection.FindOne(ctx, bson.M{"_id": shipID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// Delete removes the snapshot document.
func (m *MongoGridRepo) Delete(ctx context.Context, shipID uuid.UUID) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": shipID.String()})
	return err
}

// List returns ids of all stored ships.
func (m *MongoGridRepo) List(ctx context.Context) ([]uuid.UUID, error) {
	cur, err := m.collection.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []uuid.UUID
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	sortIDs(ids)
	return ids, nil
}

// Close disconnects the client.
func (m *MongoGridRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
