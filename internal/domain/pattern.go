package domain

import (
	"time"
)

// StrategyPrediction is one fraud strategy's contribution to an ensemble result.
type StrategyPrediction struct {
	Strategy   string  `json:"strategy"`
	Confidence float64 `json:"confidence"`
	IsFraud    bool    `json:"isFraud"`
	Reason     string  `json:"reason"`
}

// FraudDetectionResult is the transient outcome of one ensemble evaluation.
// It is returned to the caller; only qualifying patterns are persisted.
type FraudDetectionResult struct {
	IsFraud       bool                 `json:"isFraud"`
	Confidence    float64              `json:"confidence"`
	PrimaryReason string               `json:"primaryReason"`
	Predictions   []StrategyPrediction `json:"predictions"`
	FraudScore    float64              `json:"fraudScore"`
}

// Pattern type labels assigned by the classifier, ordered from the
// high-confidence bands down to borderline cases.
const (
	PatternHighAmountLateNight = "HIGH_AMOUNT_LATE_NIGHT"
	PatternHighAmountUnusual   = "HIGH_AMOUNT_UNUSUAL"
	PatternLateNight           = "LATE_NIGHT_TRANSACTION"
	PatternSuspiciousActivity  = "SUSPICIOUS_ACTIVITY"
	PatternMediumHighAmount    = "MEDIUM_RISK_HIGH_AMOUNT"
	PatternMediumUnusual       = "MEDIUM_RISK_UNUSUAL_PATTERN"
	PatternBorderline          = "BORDERLINE_SUSPICIOUS"
)

// Pattern is a persisted audit record describing a flagged or borderline
// transaction. Once created it is immutable except for the review fields,
// which transition one way: unreviewed to reviewed.
type Pattern struct {
	ID            string    `json:"id"`
	PatternType   string    `json:"patternType"`
	Description   string    `json:"description"`
	Confidence    float64   `json:"confidence"`
	TransactionID string    `json:"transactionId"`
	StrategyLabel string    `json:"strategyLabel"`
	Metadata      string    `json:"metadata"` // JSON blob for audit/reporting
	DetectedAt    time.Time `json:"detectedAt"`

	Reviewed    bool       `json:"reviewed"`
	ReviewNotes string     `json:"reviewNotes,omitempty"`
	ReviewedBy  string     `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
}

// PatternStats summarizes the stored patterns for reporting.
type PatternStats struct {
	Total      int64            `json:"total"`
	Reviewed   int64            `json:"reviewed"`
	Unreviewed int64            `json:"unreviewed"`
	BySeverity map[string]int64 `json:"bySeverity"`
	ByType     map[string]int64 `json:"byType"`
	Today      int64            `json:"today"`
}

// SeverityFromConfidence buckets a pattern confidence for reporting.
func SeverityFromConfidence(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "CRITICAL"
	case confidence >= 0.75:
		return "HIGH"
	case confidence >= 0.6:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
