package services

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"govnav-be/models"
	"govnav-be/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeIssueRepo is an in-memory IssueRepository. FindNear answers the
// geo query with a haversine distance check, mirroring the store's
// inclusive radius bound.
type fakeIssueRepo struct {
	mu     sync.Mutex
	issues map[primitive.ObjectID]*models.Issue

	nearErr   error
	insertErr error
}

func newFakeIssueRepo() *fakeIssueRepo {
	return &fakeIssueRepo{issues: make(map[primitive.ObjectID]*models.Issue)}
}

func distanceMeters(a, b models.GeoPoint) float64 {
	const earthRadius = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	lat1, lat2 := toRad(a.Latitude()), toRad(b.Latitude())
	dLat := lat2 - lat1
	dLon := toRad(b.Longitude()) - toRad(a.Longitude())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(h))
}

func copyIssue(issue *models.Issue) *models.Issue {
	clone := *issue
	clone.Comments = append([]models.Comment(nil), issue.Comments...)
	return &clone
}

func (f *fakeIssueRepo) Insert(_ context.Context, issue *models.Issue) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[issue.ID] = copyIssue(issue)
	return nil
}

func (f *fakeIssueRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return copyIssue(issue), nil
}

func (f *fakeIssueRepo) FindByFilter(_ context.Context, filter repositories.IssueFilter) ([]models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Issue
	for _, issue := range f.issues {
		if filter.Category != nil && issue.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && issue.Status != *filter.Status {
			continue
		}
		out = append(out, *copyIssue(issue))
	}
	return out, nil
}

func (f *fakeIssueRepo) FindNear(_ context.Context, q repositories.NearQuery) ([]models.Issue, error) {
	if f.nearErr != nil {
		return nil, f.nearErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Issue
	for _, issue := range f.issues {
		if issue.Category != q.Category {
			continue
		}
		if q.ExcludeStatus != "" && issue.Status == q.ExcludeStatus {
			continue
		}
		if distanceMeters(q.Point, issue.Location) <= float64(q.RadiusMeters) {
			out = append(out, *copyIssue(issue))
		}
	}
	return out, nil
}

func (f *fakeIssueRepo) UpdateStatus(_ context.Context, id primitive.ObjectID, status models.IssueStatus, resolutionDetails *string, at time.Time) (*models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	issue.Status = status
	if resolutionDetails != nil {
		issue.ResolutionDetails = resolutionDetails
	}
	issue.UpdatedAt = at
	return copyIssue(issue), nil
}

func (f *fakeIssueRepo) IncrementUpvotes(_ context.Context, id primitive.ObjectID, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return 0, mongo.ErrNoDocuments
	}
	issue.Upvotes++
	issue.UpdatedAt = at
	return issue.Upvotes, nil
}

func (f *fakeIssueRepo) PushComment(_ context.Context, id primitive.ObjectID, comment models.Comment, at time.Time) (*models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	issue.Comments = append(issue.Comments, comment)
	issue.UpdatedAt = at
	return copyIssue(issue), nil
}

func (f *fakeIssueRepo) CountByStatus(_ context.Context) (map[models.IssueStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.IssueStatus]int64)
	for _, issue := range f.issues {
		counts[issue.Status]++
	}
	return counts, nil
}

func seedIssue(t *testing.T, repo *fakeIssueRepo, category models.IssueCategory, status models.IssueStatus, location models.GeoPoint) *models.Issue {
	t.Helper()
	issue := &models.Issue{
		ID:         primitive.NewObjectID(),
		Category:   category,
		Details:    "seeded",
		Location:   location,
		Status:     status,
		Comments:   []models.Comment{},
		ReportedBy: primitive.NewObjectID(),
	}
	require.NoError(t, repo.Insert(context.Background(), issue))
	return issue
}

func citizen() Caller {
	return Caller{ID: primitive.NewObjectID(), Role: models.Citizen}
}

func govEmployee() Caller {
	return Caller{ID: primitive.NewObjectID(), Role: models.GovEmployee}
}

func TestCheckDuplicate(t *testing.T) {
	t.Parallel()

	base := models.NewGeoPoint(77.10, 28.70)
	// roughly 60m north-east of base
	near := models.NewGeoPoint(77.1005, 28.7003)
	// well outside the 1km radius
	far := models.NewGeoPoint(77.10, 28.72)

	testCases := []struct {
		name     string
		seed     func(repo *fakeIssueRepo)
		category models.IssueCategory
		point    models.GeoPoint
		want     bool
	}{
		{
			name: "unresolved same category nearby blocks",
			seed: func(repo *fakeIssueRepo) {
				seedIssue(t, repo, models.Road, models.Pending, base)
			},
			category: models.Road,
			point:    near,
			want:     true,
		},
		{
			name: "resolved issue never blocks even when coincident",
			seed: func(repo *fakeIssueRepo) {
				seedIssue(t, repo, models.Road, models.Resolved, base)
			},
			category: models.Road,
			point:    base,
			want:     false,
		},
		{
			name: "different category at same point is accepted",
			seed: func(repo *fakeIssueRepo) {
				seedIssue(t, repo, models.Water, models.Pending, base)
			},
			category: models.Road,
			point:    base,
			want:     false,
		},
		{
			name: "issue beyond the radius does not block",
			seed: func(repo *fakeIssueRepo) {
				seedIssue(t, repo, models.Road, models.Pending, far)
			},
			category: models.Road,
			point:    base,
			want:     false,
		},
		{
			name: "in_progress issue inside the radius blocks",
			seed: func(repo *fakeIssueRepo) {
				seedIssue(t, repo, models.Sanitation, models.InProgress, base)
			},
			category: models.Sanitation,
			point:    near,
			want:     true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := newFakeIssueRepo()
			tc.seed(repo)
			svc := NewIssueService(repo)

			got, err := svc.CheckDuplicate(context.Background(), tc.category, tc.point)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheckDuplicateInvalidInput(t *testing.T) {
	t.Parallel()
	svc := NewIssueService(newFakeIssueRepo())

	_, err := svc.CheckDuplicate(context.Background(), "pothole", models.NewGeoPoint(77.10, 28.70))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CheckDuplicate(context.Background(), models.Road, models.GeoPoint{Type: "Point", Coordinates: []float64{200, 95}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCheckDuplicateFailsClosed(t *testing.T) {
	t.Parallel()
	repo := newFakeIssueRepo()
	repo.nearErr = assert.AnError
	svc := NewIssueService(repo)

	_, err := svc.CheckDuplicate(context.Background(), models.Road, models.NewGeoPoint(77.10, 28.70))
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	// A broken geo index must also block submissions, never admit them
	_, err = svc.ReportIssue(context.Background(), citizen(), models.Road, "pothole", models.NewGeoPoint(77.10, 28.70))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, repo.issues)
}

func TestReportIssueScenario(t *testing.T) {
	t.Parallel()
	repo := newFakeIssueRepo()
	svc := NewIssueService(repo)
	ctx := context.Background()

	first, err := svc.ReportIssue(ctx, citizen(), models.Road, "pothole", models.NewGeoPoint(77.10, 28.70))
	require.NoError(t, err)
	assert.Equal(t, models.Pending, first.Status)
	assert.EqualValues(t, 0, first.Upvotes)
	assert.Nil(t, first.ResolutionDetails)

	// Second report ~60m away, same category, before resolution
	_, err = svc.ReportIssue(ctx, citizen(), models.Road, "another pothole", models.NewGeoPoint(77.1005, 28.7003))
	assert.ErrorIs(t, err, ErrDuplicateIssue)

	note := "patched"
	_, err = svc.UpdateStatus(ctx, govEmployee(), first.ID, models.Resolved, &note)
	require.NoError(t, err)

	third, err := svc.ReportIssue(ctx, citizen(), models.Road, "it is back", models.NewGeoPoint(77.1005, 28.7003))
	require.NoError(t, err)
	assert.Equal(t, models.Pending, third.Status)
}

func TestReportIssueValidation(t *testing.T) {
	t.Parallel()
	svc := NewIssueService(newFakeIssueRepo())
	ctx := context.Background()

	_, err := svc.ReportIssue(ctx, citizen(), "garbage", "details", models.NewGeoPoint(77.10, 28.70))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ReportIssue(ctx, citizen(), models.Road, "   ", models.NewGeoPoint(77.10, 28.70))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ReportIssue(ctx, citizen(), models.Road, "details", models.GeoPoint{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("resolution note applied only when resolving", func(t *testing.T) {
		t.Parallel()
		repo := newFakeIssueRepo()
		svc := NewIssueService(repo)
		issue := seedIssue(t, repo, models.Road, models.Pending, models.NewGeoPoint(77.10, 28.70))

		note := "should be ignored"
		updated, err := svc.UpdateStatus(ctx, govEmployee(), issue.ID, models.Acknowledged, &note)
		require.NoError(t, err)
		assert.Equal(t, models.Acknowledged, updated.Status)
		assert.Nil(t, updated.ResolutionDetails)

		resolution := "crew dispatched, pothole filled"
		updated, err = svc.UpdateStatus(ctx, govEmployee(), issue.ID, models.Resolved, &resolution)
		require.NoError(t, err)
		assert.Equal(t, models.Resolved, updated.Status)
		require.NotNil(t, updated.ResolutionDetails)
		assert.Equal(t, resolution, *updated.ResolutionDetails)
	})

	t.Run("note persists when leaving resolved", func(t *testing.T) {
		t.Parallel()
		repo := newFakeIssueRepo()
		svc := NewIssueService(repo)
		issue := seedIssue(t, repo, models.Water, models.Pending, models.NewGeoPoint(77.10, 28.70))

		resolution := "valve replaced"
		_, err := svc.UpdateStatus(ctx, govEmployee(), issue.ID, models.Resolved, &resolution)
		require.NoError(t, err)

		updated, err := svc.UpdateStatus(ctx, govEmployee(), issue.ID, models.InProgress, nil)
		require.NoError(t, err)
		assert.Equal(t, models.InProgress, updated.Status)
		require.NotNil(t, updated.ResolutionDetails)
		assert.Equal(t, resolution, *updated.ResolutionDetails)
	})

	t.Run("citizen is rejected", func(t *testing.T) {
		t.Parallel()
		repo := newFakeIssueRepo()
		svc := NewIssueService(repo)
		issue := seedIssue(t, repo, models.Road, models.Pending, models.NewGeoPoint(77.10, 28.70))

		_, err := svc.UpdateStatus(ctx, citizen(), issue.ID, models.Acknowledged, nil)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("invalid status", func(t *testing.T) {
		t.Parallel()
		repo := newFakeIssueRepo()
		svc := NewIssueService(repo)
		issue := seedIssue(t, repo, models.Road, models.Pending, models.NewGeoPoint(77.10, 28.70))

		_, err := svc.UpdateStatus(ctx, govEmployee(), issue.ID, "closed", nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown issue", func(t *testing.T) {
		t.Parallel()
		svc := NewIssueService(newFakeIssueRepo())

		_, err := svc.UpdateStatus(ctx, govEmployee(), primitive.NewObjectID(), models.Acknowledged, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpvote(t *testing.T) {
	t.Parallel()
	repo := newFakeIssueRepo()
	svc := NewIssueService(repo)
	ctx := context.Background()
	issue := seedIssue(t, repo, models.Road, models.Pending, models.NewGeoPoint(77.10, 28.70))

	count, err := svc.Upvote(ctx, issue.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// Same caller may upvote again; no per-user dedup exists
	count, err = svc.Upvote(ctx, issue.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = svc.Upvote(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpvoteConcurrent(t *testing.T) {
	t.Parallel()
	repo := newFakeIssueRepo()
	svc := NewIssueService(repo)
	issue := seedIssue(t, repo, models.Road, models.Pending, models.NewGeoPoint(77.10, 28.70))

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Upvote(context.Background(), issue.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := svc.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, got.Upvotes)
}

func TestAddComment(t *testing.T) {
	t.Parallel()
	repo := newFakeIssueRepo()
	svc := NewIssueService(repo)
	ctx := context.Background()
	issue := seedIssue(t, repo, models.Road, models.Pending, models.NewGeoPoint(77.10, 28.70))

	updated, err := svc.AddComment(ctx, issue.ID, "still not fixed")
	require.NoError(t, err)
	require.Len(t, updated.Comments, 1)
	assert.Equal(t, "still not fixed", updated.Comments[0].Text)
	assert.False(t, updated.Comments[0].CreatedAt.IsZero())

	updated, err = svc.AddComment(ctx, issue.ID, "crew on site")
	require.NoError(t, err)
	require.Len(t, updated.Comments, 2)
	// Appended in order, nothing reordered
	assert.Equal(t, "still not fixed", updated.Comments[0].Text)
	assert.Equal(t, "crew on site", updated.Comments[1].Text)

	_, err = svc.AddComment(ctx, issue.ID, "  ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddComment(ctx, primitive.NewObjectID(), "hello")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountByStatus(t *testing.T) {
	t.Parallel()
	repo := newFakeIssueRepo()
	svc := NewIssueService(repo)

	seedIssue(t, repo, models.Road, models.Pending, models.NewGeoPoint(77.10, 28.70))
	seedIssue(t, repo, models.Water, models.Pending, models.NewGeoPoint(78.10, 27.70))
	seedIssue(t, repo, models.Other, models.Resolved, models.NewGeoPoint(79.10, 26.70))

	counts, err := svc.CountByStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[models.IssueStatus]int64{
		models.Pending:  2,
		models.Resolved: 1,
	}, counts)
	// Statuses with zero issues do not appear
	_, ok := counts[models.Acknowledged]
	assert.False(t, ok)
}

func TestListIssues(t *testing.T) {
	t.Parallel()
	repo := newFakeIssueRepo()
	svc := NewIssueService(repo)
	ctx := context.Background()

	seedIssue(t, repo, models.Road, models.Pending, models.NewGeoPoint(77.10, 28.70))
	seedIssue(t, repo, models.Water, models.Resolved, models.NewGeoPoint(78.10, 27.70))

	all, err := svc.ListIssues(ctx, repositories.IssueFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := models.Resolved
	resolved, err := svc.ListIssues(ctx, repositories.IssueFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, models.Water, resolved[0].Category)

	bad := models.IssueStatus("archived")
	_, err = svc.ListIssues(ctx, repositories.IssueFilter{Status: &bad})
	assert.ErrorIs(t, err, ErrValidation)
}
