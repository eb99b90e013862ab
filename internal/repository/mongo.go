package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"transfer-backend/internal/models"
)

// MongoBookingStore заказы как документы коллекции bookings.
// Условное обновление это ReplaceOne с фильтром по _id и version.
type MongoBookingStore struct {
	col *mongo.Collection
}

func NewMongoBookingStore(db *mongo.Database) *MongoBookingStore {
	return &MongoBookingStore{col: db.Collection("bookings")}
}

// EnsureIndexes создает индексы под выборки восстановления таймеров и списков
func (s *MongoBookingStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "order_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "assignment_type", Value: 1}}},
		{Keys: bson.D{{Key: "driver_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("ошибка при создании индексов: %w", err)
	}
	return nil
}

func (s *MongoBookingStore) Create(ctx context.Context, b *models.Booking) error {
	if b.Version == 0 {
		b.Version = 1
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	if _, err := s.col.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("ошибка при создании заказа: %w", err)
	}
	return nil
}

func (s *MongoBookingStore) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка при получении заказа: %w", err)
	}
	return &b, nil
}

func (s *MongoBookingStore) ConditionalUpdate(ctx context.Context, b *models.Booking) error {
	expected := b.Version
	next := b.Clone()
	next.Version = expected + 1
	next.UpdatedAt = time.Now().UTC()

	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": b.ID, "version": expected}, next)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении заказа: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.col.CountDocuments(ctx, bson.M{"_id": b.ID})
		if err != nil {
			return fmt.Errorf("ошибка при проверке заказа: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	b.Version = next.Version
	b.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *MongoBookingStore) Find(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	cur, err := s.col.Find(ctx, mongoFilter(f), options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("ошибка при поиске заказов: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.Booking
	for cur.Next(ctx) {
		var b models.Booking
		if err := cur.Decode(&b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, cur.Err()
}

func mongoFilter(f BookingFilter) bson.M {
	m := bson.M{}
	if len(f.Statuses) > 0 {
		m["status"] = bson.M{"$in": f.Statuses}
	}
	if f.AssignmentType != "" {
		m["assignment_type"] = f.AssignmentType
	}
	if f.Expired != nil {
		m["is_expired"] = *f.Expired
	}
	switch {
	case f.DriverID != nil:
		m["driver_id"] = *f.DriverID
	case f.Unassigned:
		m["driver_id"] = bson.M{"$exists": false}
	}
	if f.Published != nil {
		m["notifications_sent_at"] = bson.M{"$exists": *f.Published}
	}
	if f.Paid != nil {
		m["payment_paid"] = *f.Paid
	}
	if f.ReminderUnsent {
		m["reminder_sent_at"] = bson.M{"$exists": false}
	}
	return m
}
