//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel scoring engine.
//
// These tests exercise the full HTTP pipeline against a running instance:
//
//	Transaction → Screen Rules → Fraud Ensemble → Pattern Classifier
//	Profile     → Risk Ensemble → Assessment → Trend Report
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must be running, e.g.:
//
//	go run cmd/kestrel/main.go
//
// Set KESTREL_URL to point at a non-default address.
//
// NOTE: the strategies add a small random noise term, so these tests assert
// bands and invariants rather than exact confidences.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

func baseURL() string {
	if url := os.Getenv("KESTREL_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

var client = &http.Client{Timeout: 10 * time.Second}

func postJSON(t *testing.T, path string, body interface{}, out interface{}) int {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	resp, err := client.Post(baseURL()+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()

	resp, err := client.Get(baseURL() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

type evaluateResponse struct {
	TxID          string  `json:"txId"`
	IsFraud       bool    `json:"isFraud"`
	Confidence    float64 `json:"confidence"`
	FraudScore    float64 `json:"fraudScore"`
	PrimaryReason string  `json:"primaryReason"`
	Predictions   []struct {
		Strategy   string  `json:"strategy"`
		Confidence float64 `json:"confidence"`
	} `json:"predictions"`
}

func TestHealthCheck(t *testing.T) {
	var health map[string]string
	if code := getJSON(t, "/health", &health); code != http.StatusOK {
		t.Fatalf("health status %d - is the server running?", code)
	}
	if health["status"] == "" {
		t.Error("empty health status")
	}
}

func TestFraudScoring(t *testing.T) {
	t.Run("HighAmountWithdrawalIsSuspicious", func(t *testing.T) {
		var resp evaluateResponse
		code := postJSON(t, "/fraud/evaluate", map[string]interface{}{
			"userId":   "it-user-001",
			"type":     "withdrawal",
			"amount":   15000,
			"currency": "USD",
		}, &resp)
		if code != http.StatusOK {
			t.Fatalf("status %d", code)
		}

		if len(resp.Predictions) != 3 {
			t.Fatalf("expected 3 predictions, got %d", len(resp.Predictions))
		}
		if resp.FraudScore != resp.Confidence {
			t.Errorf("fraud score %.4f != confidence %.4f", resp.FraudScore, resp.Confidence)
		}

		// Mean invariant: ensemble confidence is the mean of the predictions.
		sum := 0.0
		for _, p := range resp.Predictions {
			sum += p.Confidence
		}
		mean := sum / float64(len(resp.Predictions))
		if diff := resp.Confidence - mean; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("confidence %.6f is not the prediction mean %.6f", resp.Confidence, mean)
		}

		// $15k withdrawal lands in the elevated bands regardless of when
		// the test runs.
		if resp.Confidence < 0.5 {
			t.Errorf("confidence %.4f unexpectedly low for $15k withdrawal", resp.Confidence)
		}
	})

	t.Run("SmallPaymentIsClean", func(t *testing.T) {
		var resp evaluateResponse
		code := postJSON(t, "/fraud/evaluate", map[string]interface{}{
			"userId":   "it-user-002",
			"type":     "payment",
			"amount":   42.50,
			"currency": "USD",
		}, &resp)
		if code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		if resp.IsFraud {
			t.Errorf("small payment flagged as fraud at %.4f", resp.Confidence)
		}
	})

	t.Run("TransactionRetrievableWithScore", func(t *testing.T) {
		var resp evaluateResponse
		postJSON(t, "/fraud/evaluate", map[string]interface{}{
			"userId":   "it-user-003",
			"type":     "transfer",
			"amount":   250,
			"currency": "USD",
		}, &resp)

		var tx struct {
			ID         string   `json:"id"`
			FraudScore *float64 `json:"fraudScore"`
		}
		if code := getJSON(t, "/transactions/"+resp.TxID, &tx); code != http.StatusOK {
			t.Fatalf("get transaction status %d", code)
		}
		if tx.FraudScore == nil {
			t.Error("expected attached fraud score")
		}
	})

	t.Run("ValidationRejected", func(t *testing.T) {
		code := postJSON(t, "/fraud/evaluate", map[string]interface{}{
			"userId":   "it-user-004",
			"type":     "payment",
			"amount":   -5,
			"currency": "USD",
		}, nil)
		if code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", code)
		}
	})
}

func TestPatternAuditTrail(t *testing.T) {
	// A large withdrawal always crosses the persistence threshold.
	var resp evaluateResponse
	code := postJSON(t, "/fraud/evaluate", map[string]interface{}{
		"userId":   "it-user-010",
		"type":     "withdrawal",
		"amount":   25000,
		"currency": "USD",
	}, &resp)
	if code != http.StatusOK {
		t.Fatalf("evaluate status %d", code)
	}

	var list struct {
		Patterns []struct {
			ID          string  `json:"id"`
			PatternType string  `json:"patternType"`
			Confidence  float64 `json:"confidence"`
			Reviewed    bool    `json:"reviewed"`
		} `json:"patterns"`
		Count int `json:"count"`
	}
	if code := getJSON(t, "/patterns?transactionId="+resp.TxID, &list); code != http.StatusOK {
		t.Fatalf("list status %d", code)
	}
	if list.Count != 1 {
		t.Fatalf("expected 1 pattern for transaction, got %d", list.Count)
	}

	pattern := list.Patterns[0]
	if pattern.Reviewed {
		t.Error("pattern should start unreviewed")
	}
	if pattern.PatternType == "" {
		t.Error("pattern type must be assigned")
	}

	t.Run("ReviewWorkflow", func(t *testing.T) {
		var returned struct {
			Reviewed    bool   `json:"reviewed"`
			ReviewNotes string `json:"reviewNotes"`
			ReviewedBy  string `json:"reviewedBy"`
		}
		code := postJSON(t, "/patterns/"+pattern.ID+"/review", map[string]string{
			"notes":      "integration test review",
			"reviewerId": "it-analyst",
		}, &returned)
		if code != http.StatusOK {
			t.Fatalf("review status %d", code)
		}
		if !returned.Reviewed || returned.ReviewedBy != "it-analyst" {
			t.Errorf("review response should carry the updated record: %+v", returned)
		}
		if returned.ReviewNotes != "integration test review" {
			t.Errorf("review notes: got %q", returned.ReviewNotes)
		}

		var reviewed struct {
			Reviewed   bool   `json:"reviewed"`
			ReviewedBy string `json:"reviewedBy"`
		}
		getJSON(t, "/patterns/"+pattern.ID, &reviewed)
		if !reviewed.Reviewed || reviewed.ReviewedBy != "it-analyst" {
			t.Errorf("review not applied: %+v", reviewed)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		var stats struct {
			Total int64 `json:"total"`
		}
		if code := getJSON(t, "/patterns/stats", &stats); code != http.StatusOK {
			t.Fatalf("stats status %d", code)
		}
		if stats.Total < 1 {
			t.Errorf("expected at least one pattern, got %d", stats.Total)
		}
	})
}

func TestRiskAssessment(t *testing.T) {
	distressed := map[string]interface{}{
		"smeUserId":            "it-sme-distressed",
		"annualRevenue":        80000,
		"totalAssets":          50000,
		"totalLiabilities":     40000,
		"monthlyCashFlow":      -2000,
		"outstandingDebt":      60000,
		"numberOfEmployees":    3,
		"yearsInBusiness":      1,
		"industrySector":       "restaurant",
		"creditHistoryScore":   30,
		"numberOfLatePayments": 6,
	}

	healthy := map[string]interface{}{
		"smeUserId":            "it-sme-healthy",
		"annualRevenue":        2000000,
		"totalAssets":          1500000,
		"totalLiabilities":     500000,
		"monthlyCashFlow":      50000,
		"outstandingDebt":      120000,
		"numberOfEmployees":    25,
		"yearsInBusiness":      10,
		"industrySector":       "technology",
		"creditHistoryScore":   85,
		"numberOfLatePayments": 0,
		"currentRatio":         2.0,
		"debtToEquityRatio":    0.5,
		"profitMargin":         0.15,
	}

	type assessment struct {
		ID           string  `json:"id"`
		RiskScore    float64 `json:"riskScore"`
		RiskCategory string  `json:"riskCategory"`
		Summary      string  `json:"summary"`
		Predictions  []struct {
			Strategy  string  `json:"strategy"`
			RiskScore float64 `json:"riskScore"`
		} `json:"predictions"`
	}

	t.Run("DistressedProfileIsCritical", func(t *testing.T) {
		var a assessment
		if code := postJSON(t, "/risk/assess", distressed, &a); code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		if a.RiskCategory != "CRITICAL" {
			t.Errorf("category %s, want CRITICAL (score %.2f)", a.RiskCategory, a.RiskScore)
		}
		if len(a.Predictions) != 3 {
			t.Errorf("expected 3 predictions, got %d", len(a.Predictions))
		}

		// Risk scoring is deterministic: mean of the three strategies.
		sum := 0.0
		for _, p := range a.Predictions {
			sum += p.RiskScore
		}
		mean := sum / float64(len(a.Predictions))
		if diff := a.RiskScore - mean; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("score %.6f is not the prediction mean %.6f", a.RiskScore, mean)
		}
	})

	t.Run("HealthyProfileIsLow", func(t *testing.T) {
		var a assessment
		if code := postJSON(t, "/risk/assess", healthy, &a); code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		if a.RiskCategory != "LOW" {
			t.Errorf("category %s, want LOW (score %.2f)", a.RiskCategory, a.RiskScore)
		}
	})

	t.Run("TrendReport", func(t *testing.T) {
		// Two more assessments for the same user build a history.
		for i := 0; i < 2; i++ {
			if code := postJSON(t, "/risk/assess", distressed, nil); code != http.StatusOK {
				t.Fatalf("assess status %d", code)
			}
		}

		var report struct {
			SMEUserID       string   `json:"smeUserId"`
			AssessmentCount int      `json:"assessmentCount"`
			Trend           string   `json:"trend"`
			Recommendations []string `json:"recommendations"`
		}
		if code := getJSON(t, "/risk/users/it-sme-distressed/trend", &report); code != http.StatusOK {
			t.Fatalf("trend status %d", code)
		}
		if report.AssessmentCount < 3 {
			t.Errorf("expected at least 3 assessments, got %d", report.AssessmentCount)
		}
		if len(report.Recommendations) == 0 {
			t.Error("expected recommendations for a critical profile")
		}
	})
}

func TestScreenRules(t *testing.T) {
	ruleID := fmt.Sprintf("it-deny-%d", time.Now().UnixNano())

	code := postJSON(t, "/screen-rules", map[string]interface{}{
		"id":         ruleID,
		"name":       "Integration deny rule",
		"expression": "amount > 900000.0",
		"action":     "deny",
		"priority":   999,
		"enabled":    true,
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("create status %d", code)
	}

	if code := postJSON(t, "/screen-rules/reload", nil, nil); code != http.StatusOK {
		t.Fatalf("reload status %d", code)
	}

	var resp evaluateResponse
	code = postJSON(t, "/fraud/evaluate", map[string]interface{}{
		"userId":   "it-user-020",
		"type":     "transfer",
		"amount":   950000,
		"currency": "USD",
	}, &resp)
	if code != http.StatusOK {
		t.Fatalf("evaluate status %d", code)
	}
	if !resp.IsFraud || resp.Confidence != 1.0 {
		t.Errorf("denied transaction should score 1.0, got %.4f (fraud=%v)", resp.Confidence, resp.IsFraud)
	}
	if len(resp.Predictions) != 0 {
		t.Error("screen deny must bypass the ensemble")
	}
}
