// Package history analyzes a user's stored risk assessments over time.
package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// Trend describes how a user's risk score moved across assessments.
type Trend string

const (
	TrendImproving        Trend = "IMPROVING"
	TrendDeteriorating    Trend = "DETERIORATING"
	TrendStable           Trend = "STABLE"
	TrendInsufficientData Trend = "INSUFFICIENT_DATA"
)

// trendDelta is the score movement needed before a trend is called.
const trendDelta = 5.0

// defaultWindow caps how many recent assessments feed the trend.
const defaultWindow = 10

// Report summarizes a user's assessment history.
type Report struct {
	SMEUserID       string   `json:"smeUserId"`
	AssessmentCount int      `json:"assessmentCount"`
	Trend           Trend    `json:"trend"`
	LatestScore     float64  `json:"latestScore"`
	OldestScore     float64  `json:"oldestScore"`
	AverageScore    float64  `json:"averageScore"`
	Deteriorations  int      `json:"deteriorations"`
	Recommendations []string `json:"recommendations"`
}

// Store is the slice of the repository the analyzer needs.
type Store interface {
	ListAssessments(ctx context.Context, filter domain.AssessmentFilter) ([]*domain.RiskAssessment, error)
}

// Analyzer computes risk trends from stored assessments.
type Analyzer struct {
	repo   Store
	window int
}

// NewAnalyzer creates a trend analyzer over the repository.
func NewAnalyzer(repo Store) *Analyzer {
	return &Analyzer{repo: repo, window: defaultWindow}
}

// Analyze builds the trend report for one user. The trend compares the
// newest assessment in the window against the oldest: a rise of at least 5
// points is DETERIORATING, a drop of at least 5 is IMPROVING.
func (a *Analyzer) Analyze(ctx context.Context, smeUserID string) (*Report, error) {
	if smeUserID == "" {
		return nil, fmt.Errorf("sme user id is required")
	}

	assessments, err := a.repo.ListAssessments(ctx, domain.AssessmentFilter{
		SMEUserID: smeUserID,
		Limit:     a.window,
	})
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}

	report := &Report{
		SMEUserID:       smeUserID,
		AssessmentCount: len(assessments),
		Trend:           TrendInsufficientData,
	}
	if len(assessments) == 0 {
		report.Recommendations = []string{"No assessments on record. Run an initial risk assessment."}
		return report, nil
	}

	// Listings come newest-first; work oldest-first here.
	sort.Slice(assessments, func(i, j int) bool {
		return assessments[i].AssessedAt.Before(assessments[j].AssessedAt)
	})

	oldest := assessments[0]
	latest := assessments[len(assessments)-1]
	report.OldestScore = oldest.RiskScore
	report.LatestScore = latest.RiskScore

	sum := 0.0
	for i, cur := range assessments {
		sum += cur.RiskScore
		if i > 0 && cur.RiskScore >= assessments[i-1].RiskScore+trendDelta {
			report.Deteriorations++
		}
	}
	report.AverageScore = sum / float64(len(assessments))

	if len(assessments) >= 2 {
		switch delta := latest.RiskScore - oldest.RiskScore; {
		case delta >= trendDelta:
			report.Trend = TrendDeteriorating
		case delta <= -trendDelta:
			report.Trend = TrendImproving
		default:
			report.Trend = TrendStable
		}
	}

	report.Recommendations = recommendations(latest, report.Trend)
	return report, nil
}

// recommendations derives plain-text guidance from the latest assessment
// and the overall trend.
func recommendations(latest *domain.RiskAssessment, trend Trend) []string {
	var recs []string

	switch latest.RiskCategory {
	case domain.RiskCritical:
		recs = append(recs, "Critical risk level. Suspend new credit exposure pending manual review.")
	case domain.RiskHigh:
		recs = append(recs, "High risk level. Require additional collateral or guarantees before extending credit.")
	case domain.RiskMedium:
		recs = append(recs, "Moderate risk level. Schedule a follow-up assessment within 90 days.")
	default:
		recs = append(recs, "Low risk level. Standard credit terms apply.")
	}

	if latest.Snapshot.DebtRatio > 0.7 {
		recs = append(recs, "Debt ratio exceeds 0.7. Recommend a debt reduction plan.")
	}
	if latest.Snapshot.CreditHistoryScore < 40 {
		recs = append(recs, "Weak credit history. Request recent payment records.")
	}
	if latest.Snapshot.YearsInBusiness < 2 {
		recs = append(recs, "Young business. Reassess quarterly during the first two years.")
	}

	switch trend {
	case TrendDeteriorating:
		recs = append(recs, "Risk is trending upward across recent assessments. Increase monitoring frequency.")
	case TrendImproving:
		recs = append(recs, "Risk is trending downward. Consider reviewing credit terms favourably.")
	}

	return recs
}
