// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (
			id, user_id, type, amount, currency, timestamp, created_at, fraud_score, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var score sql.NullFloat64
	if tx.FraudScore != nil {
		score = sql.NullFloat64{Float64: *tx.FraudScore, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.Type,
		tx.Amount, tx.Currency,
		tx.Timestamp, tx.CreatedAt,
		score, string(metadata),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, currency, timestamp, created_at, fraud_score, metadata
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var score sql.NullFloat64
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.UserID, &tx.Type,
		&tx.Amount, &tx.Currency,
		&tx.Timestamp, &tx.CreatedAt,
		&score, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if score.Valid {
		v := score.Float64
		tx.FraudScore = &v
	}
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}

	return &tx, nil
}

// AttachFraudScore records the ensemble confidence on the transaction row.
func (r *SQLRepository) AttachFraudScore(ctx context.Context, txID string, score float64) error {
	query := `UPDATE transactions SET fraud_score = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), score, txID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SavePattern stores a detected pattern record.
func (r *SQLRepository) SavePattern(ctx context.Context, p *domain.Pattern) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: pattern id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO patterns (
			id, pattern_type, description, confidence, transaction_id,
			strategy_label, metadata, detected_at, reviewed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.PatternType, p.Description, p.Confidence, p.TransactionID,
		p.StrategyLabel, p.Metadata, p.DetectedAt,
	)
	return err
}

// GetPattern retrieves a pattern by ID.
func (r *SQLRepository) GetPattern(ctx context.Context, patternID string) (*domain.Pattern, error) {
	query := `
		SELECT id, pattern_type, description, confidence, transaction_id,
			   strategy_label, metadata, detected_at,
			   reviewed, review_notes, reviewed_by, reviewed_at
		FROM patterns
		WHERE id = ?
	`

	p, err := scanPattern(r.db.QueryRowContext(ctx, r.rebind(query), patternID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*domain.Pattern, error) {
	var p domain.Pattern
	var reviewed int
	var notes, reviewedBy sql.NullString
	var reviewedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.PatternType, &p.Description, &p.Confidence, &p.TransactionID,
		&p.StrategyLabel, &p.Metadata, &p.DetectedAt,
		&reviewed, &notes, &reviewedBy, &reviewedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Reviewed = reviewed == 1
	p.ReviewNotes = notes.String
	p.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		p.ReviewedAt = &t
	}
	return &p, nil
}

// ListPatterns retrieves patterns matching the filter, newest first.
func (r *SQLRepository) ListPatterns(ctx context.Context, filter domain.PatternFilter) ([]*domain.Pattern, error) {
	query := `
		SELECT id, pattern_type, description, confidence, transaction_id,
			   strategy_label, metadata, detected_at,
			   reviewed, review_notes, reviewed_by, reviewed_at
		FROM patterns
		WHERE 1=1
	`
	var args []any

	if filter.TransactionID != "" {
		query += " AND transaction_id = ?"
		args = append(args, filter.TransactionID)
	}
	if filter.UnreviewedOnly {
		query += " AND reviewed = 0"
	}
	if filter.MinConfidence > 0 {
		query += " AND confidence >= ?"
		args = append(args, filter.MinConfidence)
	}

	query += " ORDER BY detected_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*domain.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// MarkPatternReviewed sets the review fields. The reviewed flag only ever
// moves to 1; repeated reviews overwrite the notes.
func (r *SQLRepository) MarkPatternReviewed(ctx context.Context, patternID string, review domain.ReviewUpdate) error {
	query := `
		UPDATE patterns
		SET reviewed = 1, review_notes = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		review.Notes, review.ReviewerID, review.ReviewedAt, patternID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// PatternStats aggregates stored patterns for reporting.
func (r *SQLRepository) PatternStats(ctx context.Context) (*domain.PatternStats, error) {
	stats := &domain.PatternStats{
		BySeverity: make(map[string]int64),
		ByType:     make(map[string]int64),
	}

	countQuery := `SELECT COUNT(*), COALESCE(SUM(reviewed), 0) FROM patterns`
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&stats.Total, &stats.Reviewed); err != nil {
		return nil, err
	}
	stats.Unreviewed = stats.Total - stats.Reviewed

	typeRows, err := r.db.QueryContext(ctx, `SELECT pattern_type, COUNT(*) FROM patterns GROUP BY pattern_type`)
	if err != nil {
		return nil, err
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var patternType string
		var count int64
		if err := typeRows.Scan(&patternType, &count); err != nil {
			return nil, err
		}
		stats.ByType[patternType] = count
	}
	if err := typeRows.Err(); err != nil {
		return nil, err
	}

	sevRows, err := r.db.QueryContext(ctx, `SELECT confidence FROM patterns`)
	if err != nil {
		return nil, err
	}
	defer sevRows.Close()
	for sevRows.Next() {
		var confidence float64
		if err := sevRows.Scan(&confidence); err != nil {
			return nil, err
		}
		stats.BySeverity[domain.SeverityFromConfidence(confidence)]++
	}
	if err := sevRows.Err(); err != nil {
		return nil, err
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	todayQuery := r.rebind(`SELECT COUNT(*) FROM patterns WHERE detected_at >= ?`)
	if err := r.db.QueryRowContext(ctx, todayQuery, dayStart).Scan(&stats.Today); err != nil {
		return nil, err
	}

	return stats, nil
}

// SaveAssessment stores a risk assessment record.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: assessment id is required", ErrInvalidInput)
	}

	snapshot, _ := json.Marshal(a.Snapshot)
	predictions, _ := json.Marshal(a.Predictions)

	query := `
		INSERT INTO assessments (
			id, sme_user_id, risk_score, risk_category, summary,
			snapshot, predictions, assessed_at, reviewed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.SMEUserID, a.RiskScore, a.RiskCategory, a.Summary,
		string(snapshot), string(predictions), a.AssessedAt,
	)
	return err
}

// GetAssessment retrieves an assessment by ID.
func (r *SQLRepository) GetAssessment(ctx context.Context, assessmentID string) (*domain.RiskAssessment, error) {
	query := `
		SELECT id, sme_user_id, risk_score, risk_category, summary,
			   snapshot, predictions, assessed_at,
			   reviewed, review_notes, reviewed_by, reviewed_at
		FROM assessments
		WHERE id = ?
	`

	a, err := scanAssessment(r.db.QueryRowContext(ctx, r.rebind(query), assessmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAssessment(row rowScanner) (*domain.RiskAssessment, error) {
	var a domain.RiskAssessment
	var snapshot, predictions string
	var reviewed int
	var notes, reviewedBy sql.NullString
	var reviewedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.SMEUserID, &a.RiskScore, &a.RiskCategory, &a.Summary,
		&snapshot, &predictions, &a.AssessedAt,
		&reviewed, &notes, &reviewedBy, &reviewedAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(snapshot), &a.Snapshot)
	json.Unmarshal([]byte(predictions), &a.Predictions)
	a.Reviewed = reviewed == 1
	a.ReviewNotes = notes.String
	a.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.ReviewedAt = &t
	}
	return &a, nil
}

// ListAssessments retrieves assessments matching the filter, newest first.
func (r *SQLRepository) ListAssessments(ctx context.Context, filter domain.AssessmentFilter) ([]*domain.RiskAssessment, error) {
	query := `
		SELECT id, sme_user_id, risk_score, risk_category, summary,
			   snapshot, predictions, assessed_at,
			   reviewed, review_notes, reviewed_by, reviewed_at
		FROM assessments
		WHERE 1=1
	`
	var args []any

	if filter.SMEUserID != "" {
		query += " AND sme_user_id = ?"
		args = append(args, filter.SMEUserID)
	}
	if filter.Category != "" {
		query += " AND risk_category = ?"
		args = append(args, filter.Category)
	}
	if filter.UnreviewedOnly {
		query += " AND reviewed = 0"
	}

	query += " ORDER BY assessed_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []*domain.RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}
	return assessments, rows.Err()
}

// MarkAssessmentReviewed sets the review fields, one-way like patterns.
func (r *SQLRepository) MarkAssessmentReviewed(ctx context.Context, assessmentID string, review domain.ReviewUpdate) error {
	query := `
		UPDATE assessments
		SET reviewed = 1, review_notes = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		review.Notes, review.ReviewerID, review.ReviewedAt, assessmentID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveScreenRule upserts a screen rule by id.
func (r *SQLRepository) SaveScreenRule(ctx context.Context, rule *domain.ScreenRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screen_rules (
			id, name, description, expression, action, priority, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			action = excluded.action,
			priority = excluded.priority,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, rule.Action,
		rule.Priority, enabled, now, now,
	)
	return err
}

// ListScreenRules retrieves every screen rule, highest priority first.
func (r *SQLRepository) ListScreenRules(ctx context.Context) ([]*domain.ScreenRule, error) {
	query := `
		SELECT id, name, description, expression, action, priority, enabled, created_at, updated_at
		FROM screen_rules
		ORDER BY priority DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreenRule
	for rows.Next() {
		var rule domain.ScreenRule
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Expression, &rule.Action,
			&rule.Priority, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Description = description.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
