package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/fraud"
	"github.com/kestrelhq/kestrel/internal/history"
	"github.com/kestrelhq/kestrel/internal/repository"
	"github.com/kestrelhq/kestrel/internal/review"
	"github.com/kestrelhq/kestrel/internal/risk"
	"github.com/kestrelhq/kestrel/internal/screening"
)

// scoreTTL is how long cached score snapshots live.
const scoreTTL = time.Hour

// Handler holds dependencies for API handlers.
type Handler struct {
	repo          domain.Repository
	cache         domain.Cache
	bus           domain.EventBus
	fraudEnsemble *fraud.Ensemble
	riskEnsemble  *risk.Ensemble
	screen        *screening.Engine
	ledger        *review.Ledger
	analyzer      *history.Analyzer
	version       string
}

// NewHandler creates a new API handler.
func NewHandler(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	fraudEnsemble *fraud.Ensemble,
	riskEnsemble *risk.Ensemble,
	screen *screening.Engine,
	ledger *review.Ledger,
	analyzer *history.Analyzer,
	version string,
) *Handler {
	return &Handler{
		repo:          repo,
		cache:         cache,
		bus:           bus,
		fraudEnsemble: fraudEnsemble,
		riskEnsemble:  riskEnsemble,
		screen:        screen,
		ledger:        ledger,
		analyzer:      analyzer,
		version:       version,
	}
}

// EvaluateResponse is the response for POST /fraud/evaluate.
type EvaluateResponse struct {
	TxID          string                      `json:"txId"`
	IsFraud       bool                        `json:"isFraud"`
	Confidence    float64                     `json:"confidence"`
	FraudScore    float64                     `json:"fraudScore"`
	PrimaryReason string                      `json:"primaryReason"`
	Predictions   []domain.StrategyPrediction `json:"predictions,omitempty"`
	Screen        *ScreenOutcome              `json:"screen,omitempty"`
	Metadata      struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// ScreenOutcome reports a screen rule short-circuit.
type ScreenOutcome struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Action   string `json:"action"`
}

// Evaluate handles POST /fraud/evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId is required",
		})
		return
	}
	if !domain.ValidTransactionType(req.Type) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type must be one of payment, transfer, withdrawal, deposit",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}

	tx := req.ToTransaction()
	tx.ID = uuid.New().String()

	if h.repo != nil {
		if err := h.repo.SaveTransaction(ctx, tx); err != nil {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
	}

	resp := EvaluateResponse{TxID: tx.ID}
	resp.Metadata.TraceID = traceID
	resp.Metadata.Version = h.version

	// Screen rules run before the ensemble. The first matching rule
	// short-circuits: deny yields a synthetic fraud verdict, allow skips
	// scoring entirely. Neither path persists a pattern.
	var result *domain.FraudDetectionResult
	if h.screen != nil {
		decision, err := h.screen.Screen(ctx, tx)
		if err != nil {
			slog.Error("screening failed", "tx_id", tx.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "screening failed",
			})
			return
		}
		if decision.Matched != nil {
			result = syntheticResult(decision)
			resp.Screen = &ScreenOutcome{
				RuleID:   decision.Matched.ID,
				RuleName: decision.Matched.Name,
				Action:   decision.Action,
			}
		}
	}

	if result == nil {
		var err error
		result, err = h.fraudEnsemble.Evaluate(ctx, tx)
		if err != nil {
			slog.Error("fraud evaluation failed", "tx_id", tx.ID, "error", err)
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": "fraud evaluation failed: " + err.Error(),
			})
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.AttachFraudScore(ctx, tx.ID, result.FraudScore); err != nil {
			slog.Error("failed to attach fraud score", "tx_id", tx.ID, "error", err)
		}
	}

	if h.cache != nil {
		snap := &domain.ScoreSnapshot{
			Confidence: result.Confidence,
			IsFraud:    result.IsFraud,
			ScoredAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if err := h.cache.SetScore(ctx, tx.ID, snap, scoreTTL); err != nil {
			slog.Warn("failed to cache score snapshot", "tx_id", tx.ID, "error", err)
		}
	}

	resp.IsFraud = result.IsFraud
	resp.Confidence = result.Confidence
	resp.FraudScore = result.FraudScore
	resp.PrimaryReason = result.PrimaryReason
	resp.Predictions = result.Predictions
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()

	writeJSON(w, http.StatusOK, resp)
}

// syntheticResult converts a screen decision into an ensemble-shaped result.
func syntheticResult(d *screening.Decision) *domain.FraudDetectionResult {
	if d.Action == domain.ScreenActionDeny {
		return &domain.FraudDetectionResult{
			IsFraud:       true,
			Confidence:    1.0,
			FraudScore:    1.0,
			PrimaryReason: "Denied by screen rule: " + d.Matched.Name,
		}
	}
	return &domain.FraudDetectionResult{
		IsFraud:       false,
		Confidence:    0.0,
		FraudScore:    0.0,
		PrimaryReason: "Allowed by screen rule: " + d.Matched.Name,
	}
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		writeRepoError(w, "transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetScore returns the cached score snapshot for a transaction, if present.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	if h.cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "cache not available",
		})
		return
	}

	snap, err := h.cache.GetScore(r.Context(), txID)
	if err != nil {
		slog.Error("failed to read score snapshot", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to read score",
		})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no cached score for transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// ListPatterns returns persisted patterns, newest first.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.PatternFilter{
		TransactionID:  q.Get("transactionId"),
		UnreviewedOnly: q.Get("unreviewed") == "true",
		Limit:          intParam(q.Get("limit"), 0),
		Offset:         intParam(q.Get("offset"), 0),
	}
	if v := q.Get("minConfidence"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinConfidence = f
		}
	}

	patterns, err := h.repo.ListPatterns(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list patterns", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list patterns",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// GetPattern retrieves a pattern by ID.
func (h *Handler) GetPattern(w http.ResponseWriter, r *http.Request) {
	patternID := chi.URLParam(r, "id")

	pattern, err := h.repo.GetPattern(r.Context(), patternID)
	if err != nil {
		writeRepoError(w, "pattern", err)
		return
	}

	writeJSON(w, http.StatusOK, pattern)
}

// PatternStats returns aggregate pattern counts for reporting.
func (h *Handler) PatternStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.PatternStats(r.Context())
	if err != nil {
		slog.Error("failed to compute pattern stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute stats",
		})
		return
	}

	// Today comes from the counter the classifier maintains. The database
	// count stands in when no cache is wired or the read fails.
	if h.cache != nil {
		if n, err := h.cache.GetCounter(r.Context(), fraud.DailyCounterKey(time.Now())); err == nil {
			stats.Today = n
		} else {
			slog.Warn("failed to read daily pattern counter", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// ReviewRequest is the request body for review endpoints.
type ReviewRequest struct {
	Notes      string `json:"notes"`
	ReviewerID string `json:"reviewerId"`
}

// ReviewPattern marks a pattern as reviewed and returns the updated record.
func (h *Handler) ReviewPattern(w http.ResponseWriter, r *http.Request) {
	patternID := chi.URLParam(r, "id")

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	pattern, err := h.ledger.ReviewPattern(r.Context(), patternID, req.Notes, req.ReviewerID)
	if err != nil {
		writeRepoError(w, "pattern", err)
		return
	}

	writeJSON(w, http.StatusOK, pattern)
}

// Assess handles POST /risk/assess requests.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var profile domain.FinancialProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if profile.SMEUserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "smeUserId is required",
		})
		return
	}
	if profile.AssessmentDate.IsZero() {
		profile.AssessmentDate = time.Now().UTC()
	}

	assessment, err := h.riskEnsemble.Assess(ctx, &profile)
	if err != nil {
		slog.Error("risk assessment failed", "sme_user_id", profile.SMEUserID, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "risk assessment failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// ListAssessments returns persisted risk assessments, newest first.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.AssessmentFilter{
		SMEUserID:      q.Get("smeUserId"),
		Category:       domain.RiskCategory(q.Get("category")),
		UnreviewedOnly: q.Get("unreviewed") == "true",
		Limit:          intParam(q.Get("limit"), 0),
		Offset:         intParam(q.Get("offset"), 0),
	}

	assessments, err := h.repo.ListAssessments(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list assessments", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list assessments",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessments": assessments,
		"count":       len(assessments),
	})
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	assessmentID := chi.URLParam(r, "id")

	assessment, err := h.repo.GetAssessment(r.Context(), assessmentID)
	if err != nil {
		writeRepoError(w, "assessment", err)
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// ReviewAssessment marks an assessment as reviewed and returns the updated record.
func (h *Handler) ReviewAssessment(w http.ResponseWriter, r *http.Request) {
	assessmentID := chi.URLParam(r, "id")

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	assessment, err := h.ledger.ReviewAssessment(r.Context(), assessmentID, req.Notes, req.ReviewerID)
	if err != nil {
		writeRepoError(w, "assessment", err)
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// Trend returns the score trend report for an SME user.
func (h *Handler) Trend(w http.ResponseWriter, r *http.Request) {
	smeUserID := chi.URLParam(r, "id")

	report, err := h.analyzer.Analyze(r.Context(), smeUserID)
	if err != nil {
		slog.Error("trend analysis failed", "sme_user_id", smeUserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "trend analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ListScreenRules returns the persisted screen rules in priority order.
func (h *Handler) ListScreenRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.repo.ListScreenRules(r.Context())
	if err != nil {
		slog.Error("failed to list screen rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list screen rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  rules,
		"count":  len(rules),
		"loaded": h.screen.RulesCount(),
	})
}

// CreateScreenRule validates and persists a screen rule.
// Call POST /screen-rules/reload to load it into the engine.
func (h *Handler) CreateScreenRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule domain.ScreenRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.Name == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if err := h.screen.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	if err := h.repo.SaveScreenRule(ctx, &rule); err != nil {
		slog.Error("failed to save screen rule", "rule_id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("screen rule created", "rule_id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /screen-rules/reload to apply changes.",
	})
}

// ReloadScreenRules reloads all screen rules from the database into the engine.
func (h *Handler) ReloadScreenRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rules, err := h.repo.ListScreenRules(ctx)
	if err != nil {
		slog.Error("failed to list screen rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.screen.ReloadRules(rules); err != nil {
		slog.Error("failed to reload screen rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("screen rules reloaded", "count", h.screen.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.screen.RulesCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeRepoError maps repository errors to HTTP status codes.
func writeRepoError(w http.ResponseWriter, kind string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": kind + " not found",
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("repository error", "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
	}
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
