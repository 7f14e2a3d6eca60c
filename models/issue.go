package models

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// IssueCategory enum
type IssueCategory string

const (
	Road        IssueCategory = "road"
	Water       IssueCategory = "water"
	Electricity IssueCategory = "electricity"
	Sanitation  IssueCategory = "sanitation"
	Other       IssueCategory = "other"
)

// IssueStatus enum
type IssueStatus string

const (
	Pending      IssueStatus = "pending"
	Acknowledged IssueStatus = "acknowledged"
	InProgress   IssueStatus = "in_progress"
	Resolved     IssueStatus = "resolved"
)

// ValidCategory reports whether c is one of the five fixed categories.
func ValidCategory(c IssueCategory) bool {
	switch c {
	case Road, Water, Electricity, Sanitation, Other:
		return true
	}
	return false
}

// ValidStatus reports whether s is one of the four lifecycle states.
func ValidStatus(s IssueStatus) bool {
	switch s {
	case Pending, Acknowledged, InProgress, Resolved:
		return true
	}
	return false
}

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

func NewGeoPoint(lon, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

func (g GeoPoint) Valid() bool {
	if g.Type != "Point" || len(g.Coordinates) != 2 {
		return false
	}
	lon, lat := g.Coordinates[0], g.Coordinates[1]
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

func (g GeoPoint) Longitude() float64 { return g.Coordinates[0] }
func (g GeoPoint) Latitude() float64  { return g.Coordinates[1] }

// Comment is an entry in an issue's append-only comment sequence
type Comment struct {
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Issue represents a civic issue reported by a citizen
type Issue struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Category          IssueCategory      `bson:"category" json:"category"`
	Details           string             `bson:"details" json:"details"`
	Location          GeoPoint           `bson:"location" json:"location"`
	Status            IssueStatus        `bson:"status" json:"status"`
	Upvotes           int64              `bson:"upvotes" json:"upvotes"`
	Comments          []Comment          `bson:"comments" json:"comments"`
	ResolutionDetails *string            `bson:"resolutionDetails,omitempty" json:"resolutionDetails,omitempty"`
	ReportedBy        primitive.ObjectID `bson:"reportedBy" json:"reportedBy"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ValidDetails reports whether the free-text details are non-empty.
func ValidDetails(details string) bool {
	return strings.TrimSpace(details) != ""
}

// EnsureIssueIndexes creates the 2dsphere index the nearby query depends on
func EnsureIssueIndexes(collection *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "location", Value: "2dsphere"}},
	}

	_, err := collection.Indexes().CreateOne(ctx, indexModel)
	return err
}
