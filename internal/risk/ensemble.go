package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// Ensemble runs every risk strategy against a profile, averages the scores
// and persists the resulting assessment. Unlike the fraud side, every
// successful evaluation is stored.
type Ensemble struct {
	strategies []*Strategy
	repo       domain.Repository
	bus        domain.EventBus
	tracer     trace.Tracer
}

// NewEnsemble creates the ensemble over the full strategy set, in
// declaration order. Bus is optional.
func NewEnsemble(repo domain.Repository, bus domain.EventBus) *Ensemble {
	e := &Ensemble{
		repo:   repo,
		bus:    bus,
		tracer: otel.Tracer("kestrel/risk"),
	}
	for _, id := range AllStrategies() {
		e.strategies = append(e.strategies, NewStrategy(id))
	}
	return e
}

// Assess scores a financial profile and persists the assessment record.
// A single strategy failure aborts the call with no stored record.
func (e *Ensemble) Assess(ctx context.Context, p *domain.FinancialProfile) (*domain.RiskAssessment, error) {
	ctx, span := e.tracer.Start(ctx, "risk.assess")
	defer span.End()

	predictions := make([]domain.RiskPrediction, 0, len(e.strategies))
	sum := 0.0
	for _, s := range e.strategies {
		pred, err := s.Evaluate(p)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		predictions = append(predictions, pred)
		sum += pred.RiskScore
	}

	score := clamp(sum / float64(len(e.strategies)))
	category := domain.CategoryFromScore(score)

	assessment := &domain.RiskAssessment{
		ID:           uuid.New().String(),
		SMEUserID:    p.SMEUserID,
		RiskScore:    score,
		RiskCategory: category,
		Summary:      buildSummary(score, category, p),
		Snapshot: domain.FinancialSnapshot{
			AnnualRevenue:      p.AnnualRevenue,
			TotalAssets:        p.TotalAssets,
			TotalLiabilities:   p.TotalLiabilities,
			DebtRatio:          p.DebtRatio(),
			IndustrySector:     p.IndustrySector,
			YearsInBusiness:    p.YearsInBusiness,
			CreditHistoryScore: p.CreditHistoryScore,
		},
		Predictions: predictions,
		AssessedAt:  time.Now().UTC(),
	}

	if e.repo != nil {
		if err := e.repo.SaveAssessment(ctx, assessment); err != nil {
			return nil, fmt.Errorf("save assessment: %w", err)
		}
	}

	span.SetAttributes(
		attribute.String("sme.user_id", p.SMEUserID),
		attribute.Float64("risk.score", score),
		attribute.String("risk.category", string(category)),
	)

	e.publish(ctx, assessment)

	slog.Info("risk assessment complete",
		"sme_user_id", p.SMEUserID,
		"assessment_id", assessment.ID,
		"risk_score", score,
		"category", category,
	)

	return assessment, nil
}

func (e *Ensemble) publish(ctx context.Context, a *domain.RiskAssessment) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.TopicAssessmentCreated, payload); err != nil {
		slog.Warn("assessment event publish failed",
			"assessment_id", a.ID,
			"error", err,
		)
	}
	if a.RiskCategory == domain.RiskCritical {
		if err := e.bus.Publish(ctx, domain.TopicAssessmentCritical, payload); err != nil {
			slog.Warn("critical assessment event publish failed",
				"assessment_id", a.ID,
				"error", err,
			)
		}
	}
}

// buildSummary renders the category verdict with the figures a reviewer
// looks at first.
func buildSummary(score float64, category domain.RiskCategory, p *domain.FinancialProfile) string {
	var verdict string
	switch category {
	case domain.RiskLow:
		verdict = "Low risk profile with a healthy financial position."
	case domain.RiskMedium:
		verdict = "Moderate risk; financial position is adequate but warrants monitoring."
	case domain.RiskHigh:
		verdict = "High risk; significant financial stress indicators present."
	default:
		verdict = "Critical risk; severe financial distress, immediate review recommended."
	}
	return fmt.Sprintf("Risk score %.1f (%s). %s Debt ratio %.2f, %d years in business, credit history %.0f.",
		score, category, verdict, p.DebtRatio(), p.YearsInBusiness, p.CreditHistoryScore)
}
