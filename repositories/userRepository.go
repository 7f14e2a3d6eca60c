package repositories

import (
	"context"
	"time"

	"govnav-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type UserRepository interface {
	Insert(ctx context.Context, user *models.User) (primitive.ObjectID, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	SetOTP(ctx context.Context, id primitive.ObjectID, otp *models.OTP) error
	ClearOTPAndVerify(ctx context.Context, id primitive.ObjectID) error
}

type mongoUserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(collection *mongo.Collection) UserRepository {
	return &mongoUserRepository{collection: collection}
}

func (r *mongoUserRepository) Insert(ctx context.Context, user *models.User) (primitive.ObjectID, error) {
	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, _ := result.InsertedID.(primitive.ObjectID)
	return id, nil
}

func (r *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SetOTP stores the outstanding verification code on the user document.
func (r *mongoUserRepository) SetOTP(ctx context.Context, id primitive.ObjectID, otp *models.OTP) error {
	update := bson.M{"$set": bson.M{"otp": otp, "updatedAt": time.Now()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// ClearOTPAndVerify marks the user verified and removes the code, making it
// single-use.
func (r *mongoUserRepository) ClearOTPAndVerify(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{
		"$set":   bson.M{"isVerified": true, "updatedAt": time.Now()},
		"$unset": bson.M{"otp": ""},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
