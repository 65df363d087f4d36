package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

const (
	activitiesCollection = "activities"
	detailsCollection    = "message_send_details"
)

// MongoStore keeps audit rows in two collections, written one after the other.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) CreateActivity(ctx context.Context, activity *models.Activity) error {
	activity.GenIDIfEmpty()
	if _, err := s.db.Collection(activitiesCollection).InsertOne(ctx, activity); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateMessageDetail(ctx context.Context, detail *models.MessageSendDetail) error {
	detail.GenIDIfEmpty()
	if _, err := s.db.Collection(detailsCollection).InsertOne(ctx, detail); err != nil {
		return fmt.Errorf("insert message detail: %w", err)
	}
	return nil
}

// ListActivities returns a page of activities, newest first, with their details.
func (s *MongoStore) ListActivities(ctx context.Context, page, limit int) ([]models.ActivityWithDetail, int64, error) {
	page, limit = PageBounds(page, limit)
	activities := s.db.Collection(activitiesCollection)

	total, err := activities.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cursor, err := activities.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find activities: %w", err)
	}
	var found []models.Activity
	if err := cursor.All(ctx, &found); err != nil {
		return nil, 0, fmt.Errorf("decode activities: %w", err)
	}

	ids := make([]string, len(found))
	for i, a := range found {
		ids[i] = a.ID
	}
	cursor, err = s.db.Collection(detailsCollection).Find(ctx, bson.M{"IdActividad": bson.M{"$in": ids}})
	if err != nil {
		return nil, 0, fmt.Errorf("find message details: %w", err)
	}
	var details []models.MessageSendDetail
	if err := cursor.All(ctx, &details); err != nil {
		return nil, 0, fmt.Errorf("decode message details: %w", err)
	}
	byActivity := make(map[string]*models.MessageSendDetail, len(details))
	for i := range details {
		byActivity[details[i].ActivityID] = &details[i]
	}

	out := make([]models.ActivityWithDetail, len(found))
	for i, a := range found {
		out[i] = models.ActivityWithDetail{Activity: a, SendDetail: byActivity[a.ID]}
	}
	return out, total, nil
}
