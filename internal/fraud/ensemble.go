package fraud

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// FraudThreshold is the ensemble decision boundary. The verdict is fraud
// only when the mean confidence is strictly above it.
const FraudThreshold = 0.7

// Ensemble runs every strategy against a transaction and combines their
// confidences into a single verdict. All strategies must succeed: a single
// inference failure aborts the evaluation with no partial result.
type Ensemble struct {
	strategies []*Strategy
	classifier *Classifier
	tracer     trace.Tracer
}

// NewEnsemble creates the ensemble over the full strategy set, in
// declaration order.
func NewEnsemble(classifier *Classifier, opts ...Option) *Ensemble {
	e := &Ensemble{
		classifier: classifier,
		tracer:     otel.Tracer("kestrel/fraud"),
	}
	for _, id := range AllStrategies() {
		e.strategies = append(e.strategies, NewStrategy(id, opts...))
	}
	return e
}

// NewEnsembleWithStrategies creates an ensemble over an explicit strategy
// list. Used by tests to inject per-strategy noise sources.
func NewEnsembleWithStrategies(classifier *Classifier, strategies ...*Strategy) *Ensemble {
	return &Ensemble{
		strategies: strategies,
		classifier: classifier,
		tracer:     otel.Tracer("kestrel/fraud"),
	}
}

// Evaluate scores a transaction with every strategy, averages the
// confidences, and hands the result to the classifier. The returned result
// carries every per-strategy prediction; the classifier decides separately
// whether anything is persisted.
func (e *Ensemble) Evaluate(ctx context.Context, tx *domain.Transaction) (*domain.FraudDetectionResult, error) {
	ctx, span := e.tracer.Start(ctx, "fraud.evaluate")
	defer span.End()

	start := time.Now()

	predictions := make([]domain.StrategyPrediction, 0, len(e.strategies))
	sum := 0.0
	primary := ""
	best := -1.0

	for _, s := range e.strategies {
		pred, err := s.Evaluate(tx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		predictions = append(predictions, pred)
		sum += pred.Confidence

		// Strictly greater: earlier strategies win ties.
		if pred.Confidence > best {
			best = pred.Confidence
			primary = pred.Reason
		}
	}

	confidence := sum / float64(len(e.strategies))

	result := &domain.FraudDetectionResult{
		IsFraud:       confidence > FraudThreshold,
		Confidence:    confidence,
		PrimaryReason: primary,
		Predictions:   predictions,
		FraudScore:    confidence,
	}

	span.SetAttributes(
		attribute.String("tx.id", tx.ID),
		attribute.Float64("fraud.confidence", confidence),
		attribute.Bool("fraud.is_fraud", result.IsFraud),
	)

	if e.classifier != nil {
		pattern, err := e.classifier.Classify(ctx, tx, result)
		if err != nil {
			slog.Error("pattern classification failed",
				"tx_id", tx.ID,
				"error", err,
			)
			return nil, err
		}
		if pattern != nil {
			slog.Info("pattern detected",
				"tx_id", tx.ID,
				"pattern_id", pattern.ID,
				"pattern_type", pattern.PatternType,
				"confidence", confidence,
			)
		}
	}

	slog.Debug("fraud evaluation complete",
		"tx_id", tx.ID,
		"confidence", confidence,
		"is_fraud", result.IsFraud,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
