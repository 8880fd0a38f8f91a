package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/features"
)

// persistThreshold is the minimum ensemble confidence for which a pattern
// record is written. Below it the evaluation leaves no trace.
const persistThreshold = 0.5

// DailyCounterKey is the cache counter key for patterns detected on day t.
// The classifier increments it and the stats endpoint reads it back.
func DailyCounterKey(t time.Time) string {
	return "patterns:" + t.UTC().Format("2006-01-02")
}

// Classifier turns qualifying ensemble results into persisted pattern
// records for later review.
type Classifier struct {
	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus
}

// NewClassifier creates a classifier. Cache and bus are optional; when nil
// the daily counter and the detection event are skipped.
func NewClassifier(repo domain.Repository, cache domain.Cache, bus domain.EventBus) *Classifier {
	return &Classifier{repo: repo, cache: cache, bus: bus}
}

// Classify persists a pattern record when the ensemble confidence is at
// least 0.5. Returns nil, nil for sub-threshold results.
func (c *Classifier) Classify(ctx context.Context, tx *domain.Transaction, result *domain.FraudDetectionResult) (*domain.Pattern, error) {
	if result.Confidence < persistThreshold {
		return nil, nil
	}

	hour := features.Hour(tx)
	now := time.Now().UTC()

	pattern := &domain.Pattern{
		ID:            uuid.New().String(),
		PatternType:   classifyType(result.Confidence, tx.Amount, hour),
		Description:   buildDescription(tx, result),
		Confidence:    result.Confidence,
		TransactionID: tx.ID,
		StrategyLabel: "ENSEMBLE",
		Metadata:      buildMetadata(tx, result, hour, now),
		DetectedAt:    now,
	}

	if err := c.repo.SavePattern(ctx, pattern); err != nil {
		return nil, fmt.Errorf("save pattern: %w", err)
	}

	if c.cache != nil {
		key := DailyCounterKey(now)
		if _, err := c.cache.IncrementCounter(ctx, key, 48*time.Hour); err != nil {
			slog.Warn("daily pattern counter increment failed",
				"key", key,
				"error", err,
			)
		}
	}

	if c.bus != nil {
		payload, err := json.Marshal(pattern)
		if err == nil {
			if err := c.bus.Publish(ctx, domain.TopicPatternDetected, payload); err != nil {
				slog.Warn("pattern event publish failed",
					"pattern_id", pattern.ID,
					"error", err,
				)
			}
		}
	}

	return pattern, nil
}

// classifyType selects the pattern type, evaluated top-down, first match
// wins.
func classifyType(confidence, amount float64, hour int) string {
	night := features.IsNight(hour)

	switch {
	case confidence >= 0.7 && amount > 10000 && night:
		return domain.PatternHighAmountLateNight
	case confidence >= 0.7 && amount > 10000:
		return domain.PatternHighAmountUnusual
	case confidence >= 0.7 && night:
		return domain.PatternLateNight
	case confidence >= 0.7:
		return domain.PatternSuspiciousActivity
	case confidence >= 0.6 && amount > 5000:
		return domain.PatternMediumHighAmount
	case confidence >= 0.6:
		return domain.PatternMediumUnusual
	default:
		return domain.PatternBorderline
	}
}

// buildDescription summarizes the transaction and every strategy that
// individually flagged it.
func buildDescription(tx *domain.Transaction, result *domain.FraudDetectionResult) string {
	flagged := 0
	var parts []string
	for _, p := range result.Predictions {
		if p.IsFraud {
			flagged++
			parts = append(parts, fmt.Sprintf("%s: %s", p.Strategy, p.Reason))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transaction %s: $%.2f %s. %d of %d strategies flagged fraud.",
		tx.ID, tx.Amount, tx.Type, flagged, len(result.Predictions))
	if len(parts) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(parts, ". "))
		b.WriteString(".")
	}
	return b.String()
}

// buildMetadata captures the audit context as a JSON blob. It is reporting
// material only and never read back for scoring.
func buildMetadata(tx *domain.Transaction, result *domain.FraudDetectionResult, hour int, now time.Time) string {
	weekday := features.Weekday(tx)
	meta := map[string]any{
		"avgConfidence":      result.Confidence,
		"threshold":          FraudThreshold,
		"amount":             tx.Amount,
		"hour":               hour,
		"dayOfWeek":          weekday,
		"type":               string(tx.Type),
		"isWeekend":          features.IsWeekend(weekday),
		"isBusinessHours":    features.IsBusinessHours(hour),
		"detectionTimestamp": now.Format(time.RFC3339),
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(blob)
}
