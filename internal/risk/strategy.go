// Package risk implements the credit-risk scoring ensemble for SME
// financial profiles.
package risk

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// StrategyID identifies one of the closed set of risk scoring strategies.
type StrategyID string

const (
	// StrategyBalanceSheet scores liquidity, leverage, profitability and
	// asset quality from the reported ratios.
	StrategyBalanceSheet StrategyID = "balance-sheet"

	// StrategyIndustryContext scores the business against its sector,
	// scale, overall health, stability and credit history.
	StrategyIndustryContext StrategyID = "industry-context"

	// StrategyComposite is a deterministic composite of debt ratio, credit
	// history, business age and revenue size.
	StrategyComposite StrategyID = "composite"
)

// AllStrategies lists the strategies in declaration order.
func AllStrategies() []StrategyID {
	return []StrategyID{StrategyBalanceSheet, StrategyIndustryContext, StrategyComposite}
}

// InitError reports a strategy that failed its one-time setup.
type InitError struct {
	Strategy StrategyID
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("risk strategy %s: initialization failed: %v", e.Strategy, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// InferenceError reports a strategy whose scoring function failed. It aborts
// the whole ensemble call.
type InferenceError struct {
	Strategy StrategyID
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("risk strategy %s: inference failed: %v", e.Strategy, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Strategy is one credit-risk scoring strategy instance.
type Strategy struct {
	id StrategyID

	once    sync.Once
	initErr error
}

// NewStrategy creates a strategy for the given variant.
func NewStrategy(id StrategyID) *Strategy {
	return &Strategy{id: id}
}

// ID returns the strategy identifier.
func (s *Strategy) ID() StrategyID { return s.id }

func (s *Strategy) ensureInitialized() error {
	s.once.Do(func() {
		switch s.id {
		case StrategyBalanceSheet, StrategyIndustryContext, StrategyComposite:
		default:
			s.initErr = fmt.Errorf("unknown strategy variant %q", s.id)
		}
	})
	if s.initErr != nil {
		return &InitError{Strategy: s.id, Err: s.initErr}
	}
	return nil
}

// Evaluate scores one financial profile. The score is always within [0,100]
// and the category follows the standard bands.
func (s *Strategy) Evaluate(p *domain.FinancialProfile) (domain.RiskPrediction, error) {
	if err := s.ensureInitialized(); err != nil {
		return domain.RiskPrediction{}, err
	}
	if p == nil {
		return domain.RiskPrediction{}, &InferenceError{Strategy: s.id, Err: fmt.Errorf("nil profile")}
	}
	if p.AnnualRevenue < 0 || p.TotalAssets < 0 || p.TotalLiabilities < 0 {
		return domain.RiskPrediction{}, &InferenceError{Strategy: s.id, Err: fmt.Errorf("negative balance sheet figures")}
	}
	if p.CreditHistoryScore < 0 || p.CreditHistoryScore > 100 {
		return domain.RiskPrediction{}, &InferenceError{Strategy: s.id, Err: fmt.Errorf("credit history score %v out of [0,100]", p.CreditHistoryScore)}
	}

	var score float64
	var rationale string
	switch s.id {
	case StrategyBalanceSheet:
		score, rationale = scoreBalanceSheet(p)
	case StrategyIndustryContext:
		score, rationale = scoreIndustryContext(p)
	default:
		score, rationale = scoreComposite(p)
	}

	score = clamp(score)

	return domain.RiskPrediction{
		Strategy:  string(s.id),
		RiskScore: score,
		Category:  domain.CategoryFromScore(score),
		Rationale: rationale,
	}, nil
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}

// scoreBalanceSheet weighs liquidity 35, leverage 30, profitability 20 and
// asset quality 15. Missing optional ratios fall back to derived figures.
func scoreBalanceSheet(p *domain.FinancialProfile) (float64, string) {
	var liquidity float64
	if p.CurrentRatio != nil {
		switch cr := *p.CurrentRatio; {
		case cr < 0.5:
			liquidity = 0.9
		case cr < 1.0:
			liquidity = 0.6
		case cr < 1.5:
			liquidity = 0.3
		default:
			liquidity = 0.1
		}
	} else if p.MonthlyCashFlow <= 0 {
		liquidity = 0.8
	} else {
		liquidity = 0.4
	}

	var leverage float64
	if p.DebtToEquityRatio != nil {
		switch de := *p.DebtToEquityRatio; {
		case de > 3:
			leverage = 0.95
		case de > 2:
			leverage = 0.7
		case de > 1:
			leverage = 0.4
		default:
			leverage = 0.1
		}
	} else {
		leverage = math.Min(p.DebtRatio(), 1.0)
	}

	profitability := 0.5
	if p.ProfitMargin != nil {
		switch pm := *p.ProfitMargin; {
		case pm < 0:
			profitability = 0.9
		case pm < 0.05:
			profitability = 0.6
		case pm < 0.10:
			profitability = 0.3
		default:
			profitability = 0.1
		}
	}

	assetQuality := 0.2
	if ar := p.AssetToRevenueRatio(); ar > 3 {
		assetQuality = 0.7
	} else if ar < 0.5 {
		assetQuality = 0.6
	}

	score := 35*liquidity + 30*leverage + 20*profitability + 15*assetQuality
	rationale := fmt.Sprintf("Liquidity factor %.2f, leverage %.2f, profitability %.2f, asset quality %.2f", liquidity, leverage, profitability, assetQuality)
	return score, rationale
}

// sectorRisk maps a sector keyword to its base risk factor. Lookup is by
// substring so "fast food restaurant" still matches "restaurant".
var sectorRisk = []struct {
	keyword string
	factor  float64
}{
	{"restaurant", 0.8},
	{"hospitality", 0.8},
	{"travel", 0.8},
	{"entertainment", 0.8},
	{"retail", 0.6},
	{"construction", 0.6},
	{"real estate", 0.6},
	{"manufacturing", 0.4},
	{"service", 0.4},
	{"consulting", 0.4},
	{"technology", 0.3},
	{"healthcare", 0.3},
	{"education", 0.3},
	{"professional", 0.3},
}

func sectorFactor(sector string) float64 {
	normalized := strings.ToLower(sector)
	for _, entry := range sectorRisk {
		if strings.Contains(normalized, entry.keyword) {
			return entry.factor
		}
	}
	return 0.5
}

// scoreIndustryContext weighs sector 25, scale 20, health 30, stability 15
// and credit history 10.
func scoreIndustryContext(p *domain.FinancialProfile) (float64, string) {
	sector := sectorFactor(p.IndustrySector)

	scale := 0.2
	if p.NumberOfEmployees < 5 && p.AnnualRevenue < 100_000 {
		scale = 0.7
	} else if p.NumberOfEmployees < 20 && p.AnnualRevenue < 500_000 {
		scale = 0.4
	}

	var debtFactor float64
	switch dr := p.DebtRatio(); {
	case dr > 0.7:
		debtFactor = 0.8
	case dr > 0.5:
		debtFactor = 0.5
	default:
		debtFactor = 0.2
	}
	var cashFactor float64
	switch {
	case p.MonthlyCashFlow <= 0:
		cashFactor = 0.9
	case p.MonthlyDebtServiceRatio() > 0.4:
		cashFactor = 0.6
	default:
		cashFactor = 0.2
	}
	var equityFactor float64
	switch eq := p.Equity(); {
	case eq < 0:
		equityFactor = 0.9
	case eq < 0.1*p.AnnualRevenue:
		equityFactor = 0.6
	default:
		equityFactor = 0.2
	}
	health := (debtFactor + cashFactor + equityFactor) / 3

	stability := 0.2
	if p.YearsInBusiness < 2 && p.MonthlyCashFlow <= 0 {
		stability = 0.9
	} else if p.YearsInBusiness < 5 {
		stability = 0.5
	}

	credit := 0.1
	if p.CreditHistoryScore < 40 || p.NumberOfLatePayments > 5 {
		credit = 0.9
	} else if p.CreditHistoryScore < 60 || p.NumberOfLatePayments > 2 {
		credit = 0.5
	}

	score := 25*sector + 20*scale + 30*health + 15*stability + 10*credit
	rationale := fmt.Sprintf("Sector factor %.2f, scale %.2f, health %.2f, stability %.2f, credit %.2f", sector, scale, health, stability, credit)
	return score, rationale
}

// scoreComposite is fully deterministic: piecewise debt ratio contribution,
// credit history gap, business age and revenue size.
func scoreComposite(p *domain.FinancialProfile) (float64, string) {
	dr := p.DebtRatio()

	var debtScore float64
	switch {
	case dr > 0.7:
		debtScore = 30 + (dr-0.7)*50
	case dr > 0.5:
		debtScore = 15 + (dr-0.5)*75
	default:
		debtScore = dr * 30
	}

	creditScore := (100 - p.CreditHistoryScore) * 0.3

	var ageScore float64
	switch {
	case p.YearsInBusiness < 2:
		ageScore = 20
	case p.YearsInBusiness < 5:
		ageScore = 15
	case p.YearsInBusiness < 10:
		ageScore = 10
	default:
		ageScore = 5
	}

	var sizeScore float64
	switch {
	case p.AnnualRevenue < 500_000:
		sizeScore = 15
	case p.AnnualRevenue < 2_000_000:
		sizeScore = 10
	case p.AnnualRevenue < 10_000_000:
		sizeScore = 5
	}

	score := debtScore + creditScore + ageScore + sizeScore
	rationale := fmt.Sprintf("Debt %.1f, credit history %.1f, business age %.1f, revenue size %.1f", debtScore, creditScore, ageScore, sizeScore)
	return score, rationale
}
