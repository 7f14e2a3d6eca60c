package repositories

import (
	"context"
	"time"

	"govnav-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IssueFilter narrows list queries. Nil fields match everything.
type IssueFilter struct {
	Category *models.IssueCategory
	Status   *models.IssueStatus
}

// NearQuery describes a geospatial lookup around a point. ExcludeStatus,
// if non-empty, removes issues in that state from the result set.
type NearQuery struct {
	Point         models.GeoPoint
	RadiusMeters  int
	Category      models.IssueCategory
	ExcludeStatus models.IssueStatus
}

type IssueRepository interface {
	Insert(ctx context.Context, issue *models.Issue) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	FindByFilter(ctx context.Context, filter IssueFilter) ([]models.Issue, error)
	FindNear(ctx context.Context, q NearQuery) ([]models.Issue, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.IssueStatus, resolutionDetails *string, at time.Time) (*models.Issue, error)
	IncrementUpvotes(ctx context.Context, id primitive.ObjectID, at time.Time) (int64, error)
	PushComment(ctx context.Context, id primitive.ObjectID, comment models.Comment, at time.Time) (*models.Issue, error)
	CountByStatus(ctx context.Context) (map[models.IssueStatus]int64, error)
}

type mongoIssueRepository struct {
	collection *mongo.Collection
}

func NewIssueRepository(collection *mongo.Collection) IssueRepository {
	return &mongoIssueRepository{collection: collection}
}

func (r *mongoIssueRepository) Insert(ctx context.Context, issue *models.Issue) error {
	_, err := r.collection.InsertOne(ctx, issue)
	return err
}

func (r *mongoIssueRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	var issue models.Issue
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *mongoIssueRepository) FindByFilter(ctx context.Context, filter IssueFilter) ([]models.Issue, error) {
	query := bson.M{}
	if filter.Category != nil {
		query["category"] = *filter.Category
	}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// FindNear runs a $near query against the 2dsphere index. $maxDistance is
// an inclusive bound, so issues exactly at the radius are returned.
func (r *mongoIssueRepository) FindNear(ctx context.Context, q NearQuery) ([]models.Issue, error) {
	filter := bson.M{
		"category": q.Category,
		"location": bson.M{
			"$near": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": q.Point.Coordinates,
				},
				"$maxDistance": q.RadiusMeters,
			},
		},
	}
	if q.ExcludeStatus != "" {
		filter["status"] = bson.M{"$ne": q.ExcludeStatus}
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (r *mongoIssueRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.IssueStatus, resolutionDetails *string, at time.Time) (*models.Issue, error) {
	set := bson.M{"status": status, "updatedAt": at}
	if resolutionDetails != nil {
		set["resolutionDetails"] = *resolutionDetails
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var issue models.Issue
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// IncrementUpvotes applies an atomic $inc so concurrent upvotes serialize
// inside the store and no increment is lost.
func (r *mongoIssueRepository) IncrementUpvotes(ctx context.Context, id primitive.ObjectID, at time.Time) (int64, error) {
	update := bson.M{
		"$inc": bson.M{"upvotes": 1},
		"$set": bson.M{"updatedAt": at},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var issue models.Issue
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&issue)
	if err != nil {
		return 0, err
	}
	return issue.Upvotes, nil
}

func (r *mongoIssueRepository) PushComment(ctx context.Context, id primitive.ObjectID, comment models.Comment, at time.Time) (*models.Issue, error) {
	update := bson.M{
		"$push": bson.M{"comments": comment},
		"$set":  bson.M{"updatedAt": at},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var issue models.Issue
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *mongoIssueRepository) CountByStatus(ctx context.Context) (map[models.IssueStatus]int64, error) {
	pipeline := []bson.M{
		{
			"$group": bson.M{
				"_id":   "$status",
				"count": bson.M{"$sum": 1},
			},
		},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.IssueStatus `bson:"_id"`
		Count  int64              `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[models.IssueStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
