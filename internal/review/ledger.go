// Package review manages the one-way review workflow for patterns and
// risk assessments.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// Store is the slice of the repository the ledger needs.
type Store interface {
	MarkPatternReviewed(ctx context.Context, patternID string, review domain.ReviewUpdate) error
	GetPattern(ctx context.Context, patternID string) (*domain.Pattern, error)
	MarkAssessmentReviewed(ctx context.Context, assessmentID string, review domain.ReviewUpdate) error
	GetAssessment(ctx context.Context, assessmentID string) (*domain.RiskAssessment, error)
}

// Ledger marks stored audit records as reviewed. The transition is one-way:
// a reviewed record never reverts, and repeated reviews simply overwrite the
// notes with the latest ones.
type Ledger struct {
	repo Store
}

// NewLedger creates a review ledger over the repository.
func NewLedger(repo Store) *Ledger {
	return &Ledger{repo: repo}
}

// ReviewPattern marks a pattern reviewed and returns the updated record.
// Unknown ids surface the repository's not-found error unchanged.
func (l *Ledger) ReviewPattern(ctx context.Context, patternID, notes, reviewerID string) (*domain.Pattern, error) {
	if strings.TrimSpace(patternID) == "" {
		return nil, fmt.Errorf("pattern id is required")
	}
	update := domain.ReviewUpdate{
		Notes:      notes,
		ReviewerID: reviewerID,
		ReviewedAt: time.Now().UTC(),
	}
	if err := l.repo.MarkPatternReviewed(ctx, patternID, update); err != nil {
		return nil, err
	}
	pattern, err := l.repo.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	slog.Info("pattern reviewed",
		"pattern_id", patternID,
		"reviewer_id", reviewerID,
	)
	return pattern, nil
}

// ReviewAssessment marks a risk assessment reviewed and returns the
// updated record.
func (l *Ledger) ReviewAssessment(ctx context.Context, assessmentID, notes, reviewerID string) (*domain.RiskAssessment, error) {
	if strings.TrimSpace(assessmentID) == "" {
		return nil, fmt.Errorf("assessment id is required")
	}
	update := domain.ReviewUpdate{
		Notes:      notes,
		ReviewerID: reviewerID,
		ReviewedAt: time.Now().UTC(),
	}
	if err := l.repo.MarkAssessmentReviewed(ctx, assessmentID, update); err != nil {
		return nil, err
	}
	assessment, err := l.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	slog.Info("assessment reviewed",
		"assessment_id", assessmentID,
		"reviewer_id", reviewerID,
	)
	return assessment, nil
}
