package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"printhub/internal/order/models"
	"printhub/pkg/platform/sentinel"
)

// MongoStore implements Store on a MongoDB collection. Version acts as the
// optimistic concurrency token: Update matches on the prior version, so two
// racing writers cannot both land the same transition.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates an order store on db's "orders" collection and
// ensures the list-query indexes exist.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection("orders")
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "shop_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("ensure order indexes: %w", err)
	}
	return &MongoStore{collection: coll}, nil
}

type orderDoc struct {
	ID          string  `bson:"_id"`
	RequesterID string  `bson:"requester_id"`
	ShopID      string  `bson:"shop_id"`
	Status      string  `bson:"status"`
	TotalCost   float64 `bson:"total_cost"`
	Version     int64   `bson:"version"`
	PrintConfig struct {
		Pages       int    `bson:"pages"`
		Color       bool   `bson:"color"`
		DoubleSided bool   `bson:"double_sided"`
		Copies      int    `bson:"copies"`
		PaperSize   string `bson:"paper_size"`
		PaperType   string `bson:"paper_type"`
	} `bson:"print_config"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toOrderDoc(order *models.Order) orderDoc {
	var d orderDoc
	d.ID = order.ID
	d.RequesterID = order.RequesterID
	d.ShopID = order.ShopID
	d.Status = string(order.Status)
	d.TotalCost = order.TotalCost
	d.Version = order.Version
	d.PrintConfig.Pages = order.PrintConfig.Pages
	d.PrintConfig.Color = order.PrintConfig.Color
	d.PrintConfig.DoubleSided = order.PrintConfig.DoubleSided
	d.PrintConfig.Copies = order.PrintConfig.Copies
	d.PrintConfig.PaperSize = order.PrintConfig.PaperSize
	d.PrintConfig.PaperType = order.PrintConfig.PaperType
	d.CreatedAt = order.CreatedAt
	d.UpdatedAt = order.UpdatedAt
	return d
}

func fromOrderDoc(d *orderDoc) *models.Order {
	return &models.Order{
		ID:          d.ID,
		RequesterID: d.RequesterID,
		ShopID:      d.ShopID,
		Status:      models.Status(d.Status),
		TotalCost:   d.TotalCost,
		Version:     d.Version,
		PrintConfig: models.PrintJobSpec{
			Pages:       d.PrintConfig.Pages,
			Color:       d.PrintConfig.Color,
			DoubleSided: d.PrintConfig.DoubleSided,
			Copies:      d.PrintConfig.Copies,
			PaperSize:   d.PrintConfig.PaperSize,
			PaperType:   d.PrintConfig.PaperType,
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (s *MongoStore) Create(ctx context.Context, order *models.Order) error {
	_, err := s.collection.InsertOne(ctx, toOrderDoc(order))
	if mongo.IsDuplicateKeyError(err) {
		return sentinel.ErrConflict
	}
	return err
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.Order, error) {
	var d orderDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromOrderDoc(&d), nil
}

// Update replaces the document only when the stored version is one behind the
// incoming one. A no-match against an existing order is a lost race.
func (s *MongoStore) Update(ctx context.Context, order *models.Order) error {
	filter := bson.M{"_id": order.ID, "version": order.Version - 1}
	res, err := s.collection.ReplaceOne(ctx, filter, toOrderDoc(order))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, getErr := s.Get(ctx, order.ID); getErr != nil {
			return getErr
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *MongoStore) ListByRequester(ctx context.Context, requesterID string) ([]*models.Order, error) {
	return s.list(ctx, bson.M{"requester_id": requesterID})
}

func (s *MongoStore) ListByShop(ctx context.Context, shopID string) ([]*models.Order, error) {
	return s.list(ctx, bson.M{"shop_id": shopID})
}

func (s *MongoStore) list(ctx context.Context, filter bson.M) ([]*models.Order, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	orders := make([]*models.Order, len(docs))
	for i := range docs {
		orders[i] = fromOrderDoc(&docs[i])
	}
	return orders, nil
}
