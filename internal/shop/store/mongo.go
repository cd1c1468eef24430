package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"printhub/internal/shop/models"
	"printhub/pkg/platform/sentinel"
)

// MongoStore implements Store on a MongoDB collection with a 2dsphere index
// on the location field. Conditional updates give the admit/release pair its
// atomicity: the queue check and increment are a single findAndModify.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates a shop store on db's "shops" collection and ensures
// the geo index exists.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection("shops")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "location", Value: "2dsphere"}},
	})
	if err != nil {
		return nil, fmt.Errorf("ensure 2dsphere index: %w", err)
	}
	return &MongoStore{collection: coll}, nil
}

// shopDoc is the persisted shape. Location uses GeoJSON so the 2dsphere
// index and $nearSphere queries work.
type shopDoc struct {
	ID       string `bson:"_id"`
	OwnerID  string `bson:"owner_id"`
	Name     string `bson:"name"`
	Location struct {
		Type        string    `bson:"type"`
		Coordinates []float64 `bson:"coordinates"` // [lng, lat]
	} `bson:"location"`
	Address  string `bson:"address,omitempty"`
	Contact  string `bson:"contact,omitempty"`
	Capacity struct {
		MaxQueue       int `bson:"max_queue"`
		CurrentQueue   int `bson:"current_queue"`
		ProcessingRate int `bson:"processing_rate"`
	} `bson:"capacity"`
	Pricing struct {
		ColorPerPage float64 `bson:"color_per_page"`
		MonoPerPage  float64 `bson:"mono_per_page"`
	} `bson:"pricing"`
	Services struct {
		ColorPrinting bool `bson:"color_printing"`
		Binding       bool `bson:"binding"`
		Laminating    bool `bson:"laminating"`
	} `bson:"services"`
	IsActive  bool      `bson:"is_active"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toDoc(shop *models.Shop) shopDoc {
	var d shopDoc
	d.ID = shop.ID
	d.OwnerID = shop.OwnerID
	d.Name = shop.Name
	d.Location.Type = "Point"
	d.Location.Coordinates = []float64{shop.Location.Longitude, shop.Location.Latitude}
	d.Address = shop.Address
	d.Contact = shop.Contact
	d.Capacity.MaxQueue = shop.Capacity.MaxQueue
	d.Capacity.CurrentQueue = shop.Capacity.CurrentQueue
	d.Capacity.ProcessingRate = shop.Capacity.ProcessingRate
	d.Pricing.ColorPerPage = shop.Pricing.ColorPerPage
	d.Pricing.MonoPerPage = shop.Pricing.MonoPerPage
	d.Services.ColorPrinting = shop.Services.ColorPrinting
	d.Services.Binding = shop.Services.Binding
	d.Services.Laminating = shop.Services.Laminating
	d.IsActive = shop.IsActive
	d.CreatedAt = shop.CreatedAt
	d.UpdatedAt = shop.UpdatedAt
	return d
}

func fromDoc(d *shopDoc) *models.Shop {
	shop := &models.Shop{
		ID:      d.ID,
		OwnerID: d.OwnerID,
		Name:    d.Name,
		Address: d.Address,
		Contact: d.Contact,
		Capacity: models.Capacity{
			MaxQueue:       d.Capacity.MaxQueue,
			CurrentQueue:   d.Capacity.CurrentQueue,
			ProcessingRate: d.Capacity.ProcessingRate,
		},
		Pricing: models.Pricing{
			ColorPerPage: d.Pricing.ColorPerPage,
			MonoPerPage:  d.Pricing.MonoPerPage,
		},
		Services: models.Services{
			ColorPrinting: d.Services.ColorPrinting,
			Binding:       d.Services.Binding,
			Laminating:    d.Services.Laminating,
		},
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if len(d.Location.Coordinates) == 2 {
		shop.Location = models.GeoPoint{
			Longitude: d.Location.Coordinates[0],
			Latitude:  d.Location.Coordinates[1],
		}
	}
	return shop
}

func (s *MongoStore) Create(ctx context.Context, shop *models.Shop) error {
	_, err := s.collection.InsertOne(ctx, toDoc(shop))
	if mongo.IsDuplicateKeyError(err) {
		return sentinel.ErrConflict
	}
	return err
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.Shop, error) {
	var d shopDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromDoc(&d), nil
}

func (s *MongoStore) FindNearby(ctx context.Context, origin models.GeoPoint, radiusKm float64, limit int) ([]*models.Shop, error) {
	filter := bson.M{
		"is_active": true,
		"location": bson.M{
			"$nearSphere": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": []float64{origin.Longitude, origin.Latitude},
				},
				"$maxDistance": radiusKm * 1000,
			},
		},
	}

	findOpts := options.Find()
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []shopDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	shops := make([]*models.Shop, len(docs))
	for i := range docs {
		shops[i] = fromDoc(&docs[i])
	}
	return shops, nil
}

// TryAdmit performs the conditional check-and-increment as one findAndModify.
// The $expr precondition makes concurrent admissions for the same shop
// serialize inside the store; losers see no matching document.
func (s *MongoStore) TryAdmit(ctx context.Context, id string) error {
	filter := bson.M{
		"_id":   id,
		"$expr": bson.M{"$lt": bson.A{"$capacity.current_queue", "$capacity.max_queue"}},
	}
	update := bson.M{
		"$inc": bson.M{"capacity.current_queue": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	err := s.collection.FindOneAndUpdate(ctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either the shop is unknown or its queue is full.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return sentinel.ErrCapacityExceeded
	}
	return err
}

// Release decrements the queue, floored at zero by the $gt precondition.
// A no-match result against an existing shop means the queue was already
// empty, which is not an error.
func (s *MongoStore) Release(ctx context.Context, id string) error {
	filter := bson.M{
		"_id":                    id,
		"capacity.current_queue": bson.M{"$gt": 0},
	}
	update := bson.M{
		"$inc": bson.M{"capacity.current_queue": -1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	err := s.collection.FindOneAndUpdate(ctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return nil
	}
	return err
}

// UpdateCapacity applies the patch conditionally: lowering max_queue below
// the live current_queue would let admitted orders exceed the limit, so the
// filter refuses the write and the no-match is reported as a conflict.
func (s *MongoStore) UpdateCapacity(ctx context.Context, id string, patch CapacityPatch) (*models.Shop, error) {
	filter := bson.M{"_id": id}
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.MaxQueue != nil {
		filter["capacity.current_queue"] = bson.M{"$lte": *patch.MaxQueue}
		set["capacity.max_queue"] = *patch.MaxQueue
	}
	if patch.ProcessingRate != nil {
		set["capacity.processing_rate"] = *patch.ProcessingRate
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d shopDoc
	err := s.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, sentinel.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return fromDoc(&d), nil
}

func (s *MongoStore) SetActive(ctx context.Context, id string, active bool) (*models.Shop, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now().UTC()}}

	var d shopDoc
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromDoc(&d), nil
}
