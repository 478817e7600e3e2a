package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficai/violation-reporter/internal/analysis"
	"github.com/trafficai/violation-reporter/internal/fingerprint"
	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
)

var baseTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func hashOf(n int) fingerprint.Fingerprint {
	return fingerprint.Fingerprint(fmt.Sprintf("%064x", n))
}

func sampleVerdict() analysis.Verdict {
	return analysis.Verdict{
		IsViolation: true,
		Violations: []analysis.Violation{{
			ViolationType: analysis.ViolationNoHelmet,
			VehicleDetails: analysis.VehicleDetails{
				Type: "Motorcycle", LicensePlate: "KA01AB1234", Color: "Black",
			},
			Severity:        analysis.SeverityMedium,
			Reasoning:       "Rider is not wearing a helmet.",
			ConfidenceScore: 0.91,
		}},
		SummaryReasoning: "One helmetless rider.",
		Environment:      analysis.Environment{TimeOfDay: "Day", Weather: "Clear", RoadType: "City Street"},
	}
}

func sampleReport(n int, userID string, created time.Time) *Report {
	r := New(media.KindImage, hashOf(n))
	r.UserID = userID
	r.Username = userID
	r.MediaName = fmt.Sprintf("capture-%d.jpg", n)
	r.MIMEType = "image/jpeg"
	r.Verdict = sampleVerdict()
	r.CreatedAt = created
	return r
}

// testRepository runs the behaviour every Repository must share.
func testRepository(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("save and find round trip", func(t *testing.T) {
		repo := newRepo(t)
		r := sampleReport(1, "alice", baseTime)
		r.Location = &geo.Coordinate{Latitude: 12.5, Longitude: 77.25}
		captured := baseTime.Add(-time.Hour)
		r.CapturedAt = &captured
		r.MediaURL = "https://bucket.s3.eu-west-1.amazonaws.com/x.jpg"

		require.NoError(t, repo.Save(ctx, r))

		got, err := repo.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
		assert.Equal(t, r.MediaHash, got.MediaHash)
		assert.Equal(t, media.KindImage, got.MediaType)
		assert.Equal(t, "alice", got.UserID)
		assert.Equal(t, r.MediaURL, got.MediaURL)
		assert.Equal(t, r.Verdict, got.Verdict)
		require.NotNil(t, got.Location)
		assert.Equal(t, *r.Location, *got.Location)
		require.NotNil(t, got.CapturedAt)
		assert.True(t, captured.Equal(*got.CapturedAt))
		assert.True(t, baseTime.Equal(got.CreatedAt))
	})

	t.Run("missing location stays nil", func(t *testing.T) {
		repo := newRepo(t)
		r := sampleReport(2, "", baseTime)
		require.NoError(t, repo.Save(ctx, r))

		got, err := repo.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Location)
		assert.Nil(t, got.CapturedAt)
	})

	t.Run("save replaces same ID", func(t *testing.T) {
		repo := newRepo(t)
		r := sampleReport(3, "alice", baseTime)
		require.NoError(t, repo.Save(ctx, r))

		r.MediaURL = "/archive/updated.jpg"
		require.NoError(t, repo.Save(ctx, r))

		got, err := repo.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "/archive/updated.jpg", got.MediaURL)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("media hash is unique", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Save(ctx, sampleReport(4, "alice", baseTime)))

		err := repo.Save(ctx, sampleReport(4, "bob", baseTime))
		assert.ErrorIs(t, err, ErrDuplicateHash)
	})

	t.Run("exists by hash", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Save(ctx, sampleReport(5, "alice", baseTime)))

		ok, err := repo.ExistsByHash(ctx, hashOf(5).String())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ExistsByHash(ctx, hashOf(6).String())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("find missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByID(ctx, "REP-missing")
		assert.ErrorIs(t, err, ErrReportNotFound)
	})

	t.Run("lists newest first", func(t *testing.T) {
		repo := newRepo(t)
		old := sampleReport(10, "alice", baseTime)
		mid := sampleReport(11, "bob", baseTime.Add(time.Minute))
		recent := sampleReport(12, "alice", baseTime.Add(2*time.Minute))
		for _, r := range []*Report{mid, old, recent} {
			require.NoError(t, repo.Save(ctx, r))
		}

		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{recent.ID, mid.ID, old.ID}, ids(all))

		mine, err := repo.ListByUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{recent.ID, old.ID}, ids(mine))

		none, err := repo.ListByUser(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		r := sampleReport(20, "alice", baseTime)
		require.NoError(t, repo.Save(ctx, r))

		require.NoError(t, repo.Delete(ctx, r.ID))
		_, err := repo.FindByID(ctx, r.ID)
		assert.ErrorIs(t, err, ErrReportNotFound)

		ok, err := repo.ExistsByHash(ctx, r.MediaHash.String())
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, repo.Delete(ctx, r.ID), ErrReportNotFound)
	})
}

func ids(reports []*Report) []string {
	out := make([]string, len(reports))
	for i, r := range reports {
		out[i] = r.ID
	}
	return out
}
