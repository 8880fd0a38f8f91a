// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// ReviewUpdate carries the fields set when a record is marked reviewed.
type ReviewUpdate struct {
	Notes      string
	ReviewerID string
	ReviewedAt time.Time
}

// PatternFilter narrows pattern listings.
type PatternFilter struct {
	TransactionID  string
	UnreviewedOnly bool
	MinConfidence  float64
	Limit          int
	Offset         int
}

// AssessmentFilter narrows assessment listings.
type AssessmentFilter struct {
	SMEUserID      string
	Category       RiskCategory
	UnreviewedOnly bool
	Limit          int
	Offset         int
}

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	AttachFraudScore(ctx context.Context, txID string, score float64) error

	// Pattern audit records
	SavePattern(ctx context.Context, p *Pattern) error
	GetPattern(ctx context.Context, patternID string) (*Pattern, error)
	ListPatterns(ctx context.Context, filter PatternFilter) ([]*Pattern, error)
	MarkPatternReviewed(ctx context.Context, patternID string, review ReviewUpdate) error
	PatternStats(ctx context.Context) (*PatternStats, error)

	// Risk assessment audit records
	SaveAssessment(ctx context.Context, a *RiskAssessment) error
	GetAssessment(ctx context.Context, assessmentID string) (*RiskAssessment, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*RiskAssessment, error)
	MarkAssessmentReviewed(ctx context.Context, assessmentID string, review ReviewUpdate) error

	// Screen rule configuration
	SaveScreenRule(ctx context.Context, rule *ScreenRule) error
	ListScreenRules(ctx context.Context) ([]*ScreenRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
