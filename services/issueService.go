package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"govnav-be/models"
	"govnav-be/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// DedupRadiusMeters is the fixed radius inside which a same-category,
// unresolved issue blocks a new report.
const DedupRadiusMeters = 1000

// Caller identifies the authenticated user on whose behalf an operation
// runs. It is passed explicitly; there is no ambient session state.
type Caller struct {
	ID   primitive.ObjectID
	Role models.UserRole
}

type IssueService struct {
	issues repositories.IssueRepository
}

func NewIssueService(issues repositories.IssueRepository) *IssueService {
	return &IssueService{issues: issues}
}

// storeErr wraps a repository failure so callers can distinguish an
// unreachable store from a domain outcome. Dependency failures are never
// reported as "no duplicate" or "no issue found".
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// CheckDuplicate reports whether an unresolved issue of the same category
// already exists within DedupRadiusMeters of location. Read-only. The
// radius bound is inclusive. A store failure fails closed.
func (s *IssueService) CheckDuplicate(ctx context.Context, category models.IssueCategory, location models.GeoPoint) (bool, error) {
	if !models.ValidCategory(category) {
		return false, fmt.Errorf("%w: invalid category %q", ErrValidation, category)
	}
	if !location.Valid() {
		return false, fmt.Errorf("%w: invalid location", ErrValidation)
	}

	nearby, err := s.issues.FindNear(ctx, repositories.NearQuery{
		Point:         location,
		RadiusMeters:  DedupRadiusMeters,
		Category:      category,
		ExcludeStatus: models.Resolved,
	})
	if err != nil {
		return false, storeErr(err)
	}
	return len(nearby) > 0, nil
}

// ReportIssue validates and persists a new citizen report after the
// duplicate pre-check passes. New issues start in pending.
func (s *IssueService) ReportIssue(ctx context.Context, caller Caller, category models.IssueCategory, details string, location models.GeoPoint) (*models.Issue, error) {
	if !models.ValidCategory(category) {
		return nil, fmt.Errorf("%w: invalid category %q", ErrValidation, category)
	}
	if !models.ValidDetails(details) {
		return nil, fmt.Errorf("%w: details must not be empty", ErrValidation)
	}
	if !location.Valid() {
		return nil, fmt.Errorf("%w: invalid location", ErrValidation)
	}

	duplicate, err := s.CheckDuplicate(ctx, category, location)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, ErrDuplicateIssue
	}

	now := time.Now()
	issue := &models.Issue{
		ID:         primitive.NewObjectID(),
		Category:   category,
		Details:    details,
		Location:   location,
		Status:     models.Pending,
		Upvotes:    0,
		Comments:   []models.Comment{},
		ReportedBy: caller.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.issues.Insert(ctx, issue); err != nil {
		return nil, storeErr(err)
	}
	return issue, nil
}

// UpdateStatus sets the issue's lifecycle state. Only government employees
// may call it. A resolution note is applied only when the target state is
// resolved; for any other target it is ignored, and a previously recorded
// note is left untouched.
func (s *IssueService) UpdateStatus(ctx context.Context, caller Caller, id primitive.ObjectID, status models.IssueStatus, resolutionDetails *string) (*models.Issue, error) {
	if caller.Role != models.GovEmployee {
		return nil, fmt.Errorf("%w: government employees only", ErrForbidden)
	}
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}
	if status != models.Resolved {
		resolutionDetails = nil
	}

	issue, err := s.issues.UpdateStatus(ctx, id, status, resolutionDetails, time.Now())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: issue %s", ErrNotFound, id.Hex())
		}
		return nil, storeErr(err)
	}
	return issue, nil
}

// Upvote increments the issue's counter by exactly one and returns the new
// count. The increment is atomic in the store, so concurrent calls are
// never lost.
func (s *IssueService) Upvote(ctx context.Context, id primitive.ObjectID) (int64, error) {
	count, err := s.issues.IncrementUpvotes(ctx, id, time.Now())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("%w: issue %s", ErrNotFound, id.Hex())
		}
		return 0, storeErr(err)
	}
	return count, nil
}

// AddComment appends a comment with a server-assigned timestamp. Existing
// comments are never reordered or removed.
func (s *IssueService) AddComment(ctx context.Context, id primitive.ObjectID, text string) (*models.Issue, error) {
	if !models.ValidDetails(text) {
		return nil, fmt.Errorf("%w: comment text must not be empty", ErrValidation)
	}

	comment := models.Comment{Text: text, CreatedAt: time.Now()}
	issue, err := s.issues.PushComment(ctx, id, comment, comment.CreatedAt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: issue %s", ErrNotFound, id.Hex())
		}
		return nil, storeErr(err)
	}
	return issue, nil
}

func (s *IssueService) GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	issue, err := s.issues.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: issue %s", ErrNotFound, id.Hex())
		}
		return nil, storeErr(err)
	}
	return issue, nil
}

func (s *IssueService) ListIssues(ctx context.Context, filter repositories.IssueFilter) ([]models.Issue, error) {
	if filter.Category != nil && !models.ValidCategory(*filter.Category) {
		return nil, fmt.Errorf("%w: invalid category %q", ErrValidation, *filter.Category)
	}
	if filter.Status != nil && !models.ValidStatus(*filter.Status) {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, *filter.Status)
	}

	issues, err := s.issues.FindByFilter(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	if issues == nil {
		issues = []models.Issue{}
	}
	return issues, nil
}

// CountByStatus groups all issues by lifecycle state. Statuses with no
// issues do not appear in the result.
func (s *IssueService) CountByStatus(ctx context.Context) (map[models.IssueStatus]int64, error) {
	counts, err := s.issues.CountByStatus(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return counts, nil
}
