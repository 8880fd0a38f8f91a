package domain

import (
	"time"
)

// RiskPrediction is one risk strategy's contribution to an ensemble score.
type RiskPrediction struct {
	Strategy  string       `json:"strategy"`
	RiskScore float64      `json:"riskScore"`
	Category  RiskCategory `json:"category"`
	Rationale string       `json:"rationale"`
}

// FinancialSnapshot captures the profile figures an assessment was based on.
// Stored alongside the assessment so reviews do not depend on live data.
type FinancialSnapshot struct {
	AnnualRevenue      float64 `json:"annualRevenue"`
	TotalAssets        float64 `json:"totalAssets"`
	TotalLiabilities   float64 `json:"totalLiabilities"`
	DebtRatio          float64 `json:"debtRatio"`
	IndustrySector     string  `json:"industrySector"`
	YearsInBusiness    int     `json:"yearsInBusiness"`
	CreditHistoryScore float64 `json:"creditHistoryScore"`
}

// RiskAssessment is a persisted audit record of one credit-risk evaluation.
// Like Pattern, it is immutable except for the one-way review fields.
type RiskAssessment struct {
	ID        string `json:"id"`
	SMEUserID string `json:"smeUserId"`

	RiskScore    float64      `json:"riskScore"` // 0-100
	RiskCategory RiskCategory `json:"riskCategory"`
	Summary      string       `json:"summary"`

	Snapshot    FinancialSnapshot `json:"snapshot"`
	Predictions []RiskPrediction  `json:"predictions"`

	AssessedAt time.Time `json:"assessedAt"`

	Reviewed    bool       `json:"reviewed"`
	ReviewNotes string     `json:"reviewNotes,omitempty"`
	ReviewedBy  string     `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
}
