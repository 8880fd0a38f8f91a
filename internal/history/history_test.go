package history

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

type fakeStore struct {
	assessments []*domain.RiskAssessment
}

func (f *fakeStore) ListAssessments(ctx context.Context, filter domain.AssessmentFilter) ([]*domain.RiskAssessment, error) {
	var out []*domain.RiskAssessment
	for _, a := range f.assessments {
		if a.SMEUserID == filter.SMEUserID {
			out = append(out, a)
		}
	}
	return out, nil
}

func assessment(userID string, score float64, daysAgo int) *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ID:           userID + "-" + time.Now().Add(-time.Duration(daysAgo)*24*time.Hour).Format("20060102"),
		SMEUserID:    userID,
		RiskScore:    score,
		RiskCategory: domain.CategoryFromScore(score),
		Snapshot: domain.FinancialSnapshot{
			DebtRatio:          0.4,
			CreditHistoryScore: 70,
			YearsInBusiness:    6,
		},
		AssessedAt: time.Now().UTC().Add(-time.Duration(daysAgo) * 24 * time.Hour),
	}
}

func TestAnalyze(t *testing.T) {
	ctx := context.Background()

	t.Run("Deteriorating", func(t *testing.T) {
		store := &fakeStore{assessments: []*domain.RiskAssessment{
			assessment("sme-1", 40, 30),
			assessment("sme-1", 48, 15),
			assessment("sme-1", 55, 1),
		}}
		report, err := NewAnalyzer(store).Analyze(ctx, "sme-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Trend != TrendDeteriorating {
			t.Errorf("trend: got %s, want DETERIORATING", report.Trend)
		}
		if report.LatestScore != 55 || report.OldestScore != 40 {
			t.Errorf("scores: latest %v oldest %v", report.LatestScore, report.OldestScore)
		}
		if want := (40.0 + 48 + 55) / 3; math.Abs(report.AverageScore-want) > 1e-9 {
			t.Errorf("average: got %v, want %v", report.AverageScore, want)
		}
		// 40->48 and 48->55 are both rises of at least 5.
		if report.Deteriorations != 2 {
			t.Errorf("deteriorations: got %d, want 2", report.Deteriorations)
		}
		found := false
		for _, rec := range report.Recommendations {
			if rec == "Risk is trending upward across recent assessments. Increase monitoring frequency." {
				found = true
			}
		}
		if !found {
			t.Errorf("expected trend recommendation, got %v", report.Recommendations)
		}
	})

	t.Run("Improving", func(t *testing.T) {
		store := &fakeStore{assessments: []*domain.RiskAssessment{
			assessment("sme-1", 70, 20),
			assessment("sme-1", 60, 1),
		}}
		report, err := NewAnalyzer(store).Analyze(ctx, "sme-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Trend != TrendImproving {
			t.Errorf("trend: got %s, want IMPROVING", report.Trend)
		}
	})

	t.Run("StableWithinDelta", func(t *testing.T) {
		store := &fakeStore{assessments: []*domain.RiskAssessment{
			assessment("sme-1", 50, 20),
			assessment("sme-1", 54.9, 1),
		}}
		report, err := NewAnalyzer(store).Analyze(ctx, "sme-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Trend != TrendStable {
			t.Errorf("trend: got %s, want STABLE for a rise below 5", report.Trend)
		}
	})

	t.Run("ExactDeltaIsDeteriorating", func(t *testing.T) {
		store := &fakeStore{assessments: []*domain.RiskAssessment{
			assessment("sme-1", 50, 20),
			assessment("sme-1", 55, 1),
		}}
		report, err := NewAnalyzer(store).Analyze(ctx, "sme-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Trend != TrendDeteriorating {
			t.Errorf("trend: got %s, want DETERIORATING for a rise of exactly 5", report.Trend)
		}
	})

	t.Run("SingleAssessment", func(t *testing.T) {
		store := &fakeStore{assessments: []*domain.RiskAssessment{
			assessment("sme-1", 50, 1),
		}}
		report, err := NewAnalyzer(store).Analyze(ctx, "sme-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Trend != TrendInsufficientData {
			t.Errorf("trend: got %s, want INSUFFICIENT_DATA", report.Trend)
		}
		if report.AssessmentCount != 1 {
			t.Errorf("count: got %d", report.AssessmentCount)
		}
	})

	t.Run("NoAssessments", func(t *testing.T) {
		report, err := NewAnalyzer(&fakeStore{}).Analyze(ctx, "sme-unknown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Trend != TrendInsufficientData {
			t.Errorf("trend: got %s", report.Trend)
		}
		if len(report.Recommendations) == 0 {
			t.Error("expected a recommendation to run an initial assessment")
		}
	})

	t.Run("CategoryRecommendations", func(t *testing.T) {
		a := assessment("sme-1", 80, 1)
		a.Snapshot.DebtRatio = 0.85
		a.Snapshot.CreditHistoryScore = 30
		a.Snapshot.YearsInBusiness = 1
		store := &fakeStore{assessments: []*domain.RiskAssessment{a}}

		report, err := NewAnalyzer(store).Analyze(ctx, "sme-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Recommendations) != 4 {
			t.Errorf("expected 4 recommendations (critical, debt, credit, age), got %d: %v",
				len(report.Recommendations), report.Recommendations)
		}
	})

	t.Run("EmptyUserIDRejected", func(t *testing.T) {
		if _, err := NewAnalyzer(&fakeStore{}).Analyze(ctx, ""); err == nil {
			t.Error("expected error for empty user id")
		}
	})
}
