package domain

import (
	"math"
	"time"
)

// FinancialProfile is a snapshot of an SME's financials at assessment time.
// It is immutable once constructed and serves only as ensemble input.
type FinancialProfile struct {
	SMEUserID string `json:"smeUserId"`

	AnnualRevenue    float64 `json:"annualRevenue"`
	TotalAssets      float64 `json:"totalAssets"`
	TotalLiabilities float64 `json:"totalLiabilities"`
	MonthlyCashFlow  float64 `json:"monthlyCashFlow"`
	OutstandingDebt  float64 `json:"outstandingDebt"`

	NumberOfEmployees int    `json:"numberOfEmployees"`
	YearsInBusiness   int    `json:"yearsInBusiness"`
	IndustrySector    string `json:"industrySector"`

	CreditHistoryScore   float64 `json:"creditHistoryScore"` // 0-100
	NumberOfLatePayments int     `json:"numberOfLatePayments"`

	// Optional ratios. Nil means not provided; strategies fall back to
	// derived values.
	CurrentRatio      *float64 `json:"currentRatio,omitempty"`
	DebtToEquityRatio *float64 `json:"debtToEquityRatio,omitempty"`
	ProfitMargin      *float64 `json:"profitMargin,omitempty"`

	AssessmentDate time.Time `json:"assessmentDate"`
}

// DebtRatio returns total liabilities over total assets, or 0 when the
// profile has no assets.
func (p *FinancialProfile) DebtRatio() float64 {
	if p.TotalAssets == 0 {
		return 0
	}
	return p.TotalLiabilities / p.TotalAssets
}

// AssetToRevenueRatio returns total assets over annual revenue, or 0 when
// the profile has no revenue.
func (p *FinancialProfile) AssetToRevenueRatio() float64 {
	if p.AnnualRevenue == 0 {
		return 0
	}
	return p.TotalAssets / p.AnnualRevenue
}

// MonthlyDebtServiceRatio returns the monthly debt payment over monthly cash
// flow. A non-positive cash flow yields +Inf, which every band treats as the
// worst case.
func (p *FinancialProfile) MonthlyDebtServiceRatio() float64 {
	if p.MonthlyCashFlow <= 0 {
		return math.Inf(1)
	}
	return (p.OutstandingDebt / 12) / p.MonthlyCashFlow
}

// Equity returns total assets minus total liabilities.
func (p *FinancialProfile) Equity() float64 {
	return p.TotalAssets - p.TotalLiabilities
}

// Established reports whether the business has at least two years of history.
func (p *FinancialProfile) Established() bool {
	return p.YearsInBusiness >= 2
}

// RiskCategory classifies a risk score into one of four bands.
type RiskCategory string

const (
	RiskLow      RiskCategory = "LOW"
	RiskMedium   RiskCategory = "MEDIUM"
	RiskHigh     RiskCategory = "HIGH"
	RiskCritical RiskCategory = "CRITICAL"
)

// CategoryFromScore maps a risk score to its category. Boundary values
// belong to the upper band: exactly 25 is MEDIUM, exactly 75 is CRITICAL.
func CategoryFromScore(score float64) RiskCategory {
	switch {
	case score < 25:
		return RiskLow
	case score < 50:
		return RiskMedium
	case score < 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}
