package persistence

import (
	"context"
	"errors"

	"multipost/domain/model"
	"multipost/domain/repository"
	"multipost/infrastructure/logger"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const outcomeCollection = "publish_outcomes"

// OutcomeRepositoryMongo stores one document per (request_id, platform_id).
type OutcomeRepositoryMongo struct {
	collection *mongo.Collection
}

func NewOutcomeRepositoryMongo(client *mongo.Client, database string) *OutcomeRepositoryMongo {
	return &OutcomeRepositoryMongo{collection: client.Database(database).Collection(outcomeCollection)}
}

// EnsureIndexes creates the unique (request_id, platform_id) index.
func (r *OutcomeRepositoryMongo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}, {Key: "platform_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_outcome_request_platform"),
		},
		{Keys: bson.D{{Key: "platform_id", Value: 1}, {Key: "completed_at", Value: 1}}},
	})
	return err
}

func (r *OutcomeRepositoryMongo) Append(ctx context.Context, o *model.PublishOutcome) error {
	_, err := r.collection.InsertOne(ctx, o)
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicateOutcome
	}
	return err
}

func (r *OutcomeRepositoryMongo) ListByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error) {
	return r.find(ctx, bson.D{{Key: "request_id", Value: requestID}})
}

func (r *OutcomeRepositoryMongo) ListByPlatform(ctx context.Context, platform model.PlatformID) ([]*model.PublishOutcome, error) {
	return r.find(ctx, bson.D{{Key: "platform_id", Value: string(platform)}})
}

func (r *OutcomeRepositoryMongo) find(ctx context.Context, filter bson.D) ([]*model.PublishOutcome, error) {
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		if err := cursor.Close(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while closing cursor")
		}
	}(cursor, ctx)

	out := make([]*model.PublishOutcome, 0)
	for cursor.Next(ctx) {
		var o model.PublishOutcome
		if err := cursor.Decode(&o); err != nil {
			return nil, errors.Join(errors.New("decode outcome"), err)
		}
		out = append(out, &o)
	}
	return out, cursor.Err()
}
