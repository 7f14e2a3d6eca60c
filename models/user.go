package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

// UserRole enum
type UserRole string

const (
	Citizen     UserRole = "citizen"
	GovEmployee UserRole = "gov_employee"
)

func ValidRole(r UserRole) bool {
	return r == Citizen || r == GovEmployee
}

// OTP is the outstanding one-time verification code, if any.
// It is cleared on first successful use.
type OTP struct {
	Code      string    `bson:"code" json:"-"`
	ExpiresAt time.Time `bson:"expiresAt" json:"-"`
}

type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	Password   string             `bson:"password,omitempty" json:"-"`
	Role       UserRole           `bson:"userType" json:"userType"`
	Department *string            `bson:"department,omitempty" json:"department,omitempty"`
	IsVerified bool               `bson:"isVerified" json:"isVerified"`
	OTP        *OTP               `bson:"otp,omitempty" json:"-"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate))
	return err == nil
}

// EnsureUserIndexes creates the unique index on email
func EnsureUserIndexes(collection *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}

	_, err := collection.Indexes().CreateOne(ctx, indexModel)
	return err
}
