package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    fraud_score REAL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

const schemaPatterns = `
CREATE TABLE IF NOT EXISTS patterns (
    id TEXT PRIMARY KEY,
    pattern_type TEXT NOT NULL,
    description TEXT NOT NULL,
    confidence REAL NOT NULL,
    transaction_id TEXT NOT NULL,
    strategy_label TEXT NOT NULL,
    metadata TEXT NOT NULL,
    detected_at TIMESTAMP NOT NULL,
    reviewed INTEGER NOT NULL DEFAULT 0,
    review_notes TEXT,
    reviewed_by TEXT,
    reviewed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_patterns_tx ON patterns(transaction_id);
CREATE INDEX IF NOT EXISTS idx_patterns_reviewed ON patterns(reviewed);
CREATE INDEX IF NOT EXISTS idx_patterns_detected ON patterns(detected_at);
CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(pattern_type);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    sme_user_id TEXT NOT NULL,
    risk_score REAL NOT NULL,
    risk_category TEXT NOT NULL,
    summary TEXT NOT NULL,
    snapshot TEXT NOT NULL,
    predictions TEXT NOT NULL,
    assessed_at TIMESTAMP NOT NULL,
    reviewed INTEGER NOT NULL DEFAULT 0,
    review_notes TEXT,
    reviewed_by TEXT,
    reviewed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_assessments_user ON assessments(sme_user_id);
CREATE INDEX IF NOT EXISTS idx_assessments_category ON assessments(risk_category);
CREATE INDEX IF NOT EXISTS idx_assessments_assessed ON assessments(assessed_at);
`

const schemaScreenRules = `
CREATE TABLE IF NOT EXISTS screen_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    action TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_screen_rules_enabled ON screen_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaPatterns,
		schemaAssessments,
		schemaScreenRules,
	}
}
