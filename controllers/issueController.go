package controllers

import (
	"context"
	"net/http"
	"time"

	"govnav-be/config"
	"govnav-be/models"
	"govnav-be/repositories"
	"govnav-be/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var issueService = services.NewIssueService(repositories.NewIssueRepository(config.GetCollection("issues")))

// CreateIssue handles a citizen report. The submission is rejected when an
// unresolved issue of the same category already exists within 1 km.
func CreateIssue(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input struct {
		Category string `json:"category" binding:"required"`
		Details  string `json:"details" binding:"required,max=1000"`
		Location struct {
			Type        string    `json:"type" binding:"required"`
			Coordinates []float64 `json:"coordinates" binding:"required"`
		} `json:"location" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	location := models.GeoPoint{
		Type:        input.Location.Type,
		Coordinates: input.Location.Coordinates,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := issueService.ReportIssue(ctx, caller, models.IssueCategory(input.Category), input.Details, location)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, issue)
}

// GetAllIssues retrieves issues with optional status and category filters
func GetAllIssues(c *gin.Context) {
	filter := repositories.IssueFilter{}
	if status := c.Query("status"); status != "" && status != "all" {
		s := models.IssueStatus(status)
		filter.Status = &s
	}
	if category := c.Query("category"); category != "" && category != "all" {
		cat := models.IssueCategory(category)
		filter.Category = &cat
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issues, err := issueService.ListIssues(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issues)
}

// GetIssue retrieves an issue by its ID
func GetIssue(c *gin.Context) {
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := issueService.GetIssue(ctx, issueID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// UpdateIssueStatus lets government staff move an issue through its
// lifecycle, attaching a resolution note when resolving
func UpdateIssueStatus(c *gin.Context) {
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return
	}

	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input struct {
		Status            string  `json:"status" binding:"required"`
		ResolutionDetails *string `json:"resolutionDetails,omitempty"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := issueService.UpdateStatus(ctx, caller, issueID, models.IssueStatus(input.Status), input.ResolutionDetails)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// UpvoteIssue increments the issue's upvote counter
func UpvoteIssue(c *gin.Context) {
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := issueService.Upvote(ctx, issueID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"upvotes": count})
}

// AddComment appends a comment to the issue's comment sequence
func AddComment(c *gin.Context) {
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return
	}

	var input struct {
		Text string `json:"text" binding:"required,max=1000"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := issueService.AddComment(ctx, issueID, input.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// GetIssueAnalytics returns the count-by-status summary for dashboards
func GetIssueAnalytics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := issueService.CountByStatus(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	var totalIssues, openIssues int64
	for status, count := range counts {
		totalIssues += count
		if status != models.Resolved {
			openIssues += count
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"countByStatus": counts,
		"totalIssues":   totalIssues,
		"openIssues":    openIssues,
	})
}
