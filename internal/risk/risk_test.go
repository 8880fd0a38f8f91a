package risk

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// fakeRepo records saved assessments; everything else is inert.
type fakeRepo struct {
	assessments map[string]*domain.RiskAssessment
	saveErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{assessments: make(map[string]*domain.RiskAssessment)}
}

func (f *fakeRepo) SaveTransaction(ctx context.Context, tx *domain.Transaction) error { return nil }
func (f *fakeRepo) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRepo) AttachFraudScore(ctx context.Context, txID string, score float64) error {
	return nil
}
func (f *fakeRepo) SavePattern(ctx context.Context, p *domain.Pattern) error { return nil }
func (f *fakeRepo) GetPattern(ctx context.Context, patternID string) (*domain.Pattern, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRepo) ListPatterns(ctx context.Context, filter domain.PatternFilter) ([]*domain.Pattern, error) {
	return nil, nil
}
func (f *fakeRepo) MarkPatternReviewed(ctx context.Context, patternID string, review domain.ReviewUpdate) error {
	return nil
}
func (f *fakeRepo) PatternStats(ctx context.Context) (*domain.PatternStats, error) { return nil, nil }
func (f *fakeRepo) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.assessments[a.ID] = a
	return nil
}
func (f *fakeRepo) GetAssessment(ctx context.Context, assessmentID string) (*domain.RiskAssessment, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRepo) ListAssessments(ctx context.Context, filter domain.AssessmentFilter) ([]*domain.RiskAssessment, error) {
	return nil, nil
}
func (f *fakeRepo) MarkAssessmentReviewed(ctx context.Context, assessmentID string, review domain.ReviewUpdate) error {
	return nil
}
func (f *fakeRepo) SaveScreenRule(ctx context.Context, rule *domain.ScreenRule) error { return nil }
func (f *fakeRepo) ListScreenRules(ctx context.Context) ([]*domain.ScreenRule, error) {
	return nil, nil
}
func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

func ptr(v float64) *float64 { return &v }

// distressedProfile mirrors a struggling young restaurant with negative cash
// flow and a thin credit file.
func distressedProfile() *domain.FinancialProfile {
	return &domain.FinancialProfile{
		SMEUserID:            "sme-001",
		AnnualRevenue:        80_000,
		TotalAssets:          50_000,
		TotalLiabilities:     40_000,
		MonthlyCashFlow:      -2_000,
		OutstandingDebt:      60_000,
		NumberOfEmployees:    3,
		YearsInBusiness:      1,
		IndustrySector:       "restaurant",
		CreditHistoryScore:   30,
		NumberOfLatePayments: 6,
		AssessmentDate:       time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
	}
}

// healthyProfile mirrors an established technology firm with strong ratios.
func healthyProfile() *domain.FinancialProfile {
	return &domain.FinancialProfile{
		SMEUserID:            "sme-002",
		AnnualRevenue:        2_000_000,
		TotalAssets:          1_500_000,
		TotalLiabilities:     500_000,
		MonthlyCashFlow:      50_000,
		OutstandingDebt:      120_000,
		NumberOfEmployees:    25,
		YearsInBusiness:      10,
		IndustrySector:       "technology",
		CreditHistoryScore:   85,
		NumberOfLatePayments: 0,
		CurrentRatio:         ptr(2.0),
		DebtToEquityRatio:    ptr(0.5),
		ProfitMargin:         ptr(0.15),
		AssessmentDate:       time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestStrategyScores(t *testing.T) {
	cases := []struct {
		name     string
		id       StrategyID
		profile  *domain.FinancialProfile
		want     float64
		category domain.RiskCategory
	}{
		{"BalanceSheetDistressed", StrategyBalanceSheet, distressedProfile(), 65, domain.RiskHigh},
		{"BalanceSheetHealthy", StrategyBalanceSheet, healthyProfile(), 11.5, domain.RiskLow},
		{"IndustryContextDistressed", StrategyIndustryContext, distressedProfile(), 75.5, domain.RiskCritical},
		{"IndustryContextHealthy", StrategyIndustryContext, healthyProfile(), 21.5, domain.RiskLow},
		{"CompositeDistressed", StrategyComposite, distressedProfile(), 91, domain.RiskCritical},
		{"CompositeHealthy", StrategyComposite, healthyProfile(), 24.5, domain.RiskLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pred, err := NewStrategy(tc.id).Evaluate(tc.profile)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(pred.RiskScore-tc.want) > 1e-9 {
				t.Errorf("score: got %v, want %v", pred.RiskScore, tc.want)
			}
			if pred.Category != tc.category {
				t.Errorf("category: got %s, want %s", pred.Category, tc.category)
			}
			if pred.Rationale == "" {
				t.Error("rationale must not be empty")
			}
		})
	}
}

func TestStrategyValidation(t *testing.T) {
	s := NewStrategy(StrategyBalanceSheet)

	t.Run("NilProfile", func(t *testing.T) {
		_, err := s.Evaluate(nil)
		var infErr *InferenceError
		if !errors.As(err, &infErr) {
			t.Fatalf("expected InferenceError, got %v", err)
		}
	})

	t.Run("NegativeRevenue", func(t *testing.T) {
		p := healthyProfile()
		p.AnnualRevenue = -1
		_, err := s.Evaluate(p)
		var infErr *InferenceError
		if !errors.As(err, &infErr) {
			t.Fatalf("expected InferenceError, got %v", err)
		}
	})

	t.Run("CreditScoreOutOfRange", func(t *testing.T) {
		p := healthyProfile()
		p.CreditHistoryScore = 120
		_, err := s.Evaluate(p)
		var infErr *InferenceError
		if !errors.As(err, &infErr) {
			t.Fatalf("expected InferenceError, got %v", err)
		}
	})

	t.Run("UnknownVariant", func(t *testing.T) {
		_, err := NewStrategy(StrategyID("bogus")).Evaluate(healthyProfile())
		var initErr *InitError
		if !errors.As(err, &initErr) {
			t.Fatalf("expected InitError, got %v", err)
		}
	})
}

func TestStrategyInitialization(t *testing.T) {
	t.Run("ConcurrentFirstUseSharesOneOutcome", func(t *testing.T) {
		s := NewStrategy(StrategyID("bogus"))
		p := healthyProfile()

		const n = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		outcomes := make(map[error]int)

		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := s.Evaluate(p)
				var initErr *InitError
				if !errors.As(err, &initErr) {
					t.Errorf("expected InitError, got %v", err)
					return
				}
				mu.Lock()
				outcomes[initErr.Err]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		// All callers must observe the single underlying init failure.
		if len(outcomes) != 1 {
			t.Errorf("expected one shared init outcome, got %d distinct errors", len(outcomes))
		}
	})

	t.Run("ConcurrentFirstUseOfValidStrategy", func(t *testing.T) {
		s := NewStrategy(StrategyComposite)
		p := healthyProfile()

		const n = 16
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				pred, err := s.Evaluate(p)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if math.Abs(pred.RiskScore-24.5) > 1e-9 {
					t.Errorf("score %v, want 24.5", pred.RiskScore)
				}
			}()
		}
		wg.Wait()
	})
}

func TestSectorFactor(t *testing.T) {
	cases := []struct {
		sector string
		want   float64
	}{
		{"restaurant", 0.8},
		{"Fast Food Restaurant", 0.8},
		{"Retail", 0.6},
		{"manufacturing", 0.4},
		{"technology", 0.3},
		{"unknown sector", 0.5},
		{"", 0.5},
	}
	for _, tc := range cases {
		if got := sectorFactor(tc.sector); got != tc.want {
			t.Errorf("sectorFactor(%q) = %v, want %v", tc.sector, got, tc.want)
		}
	}
}

func TestEnsembleAssess(t *testing.T) {
	ctx := context.Background()

	t.Run("DistressedProfileIsCritical", func(t *testing.T) {
		repo := newFakeRepo()
		e := NewEnsemble(repo, nil)

		a, err := e.Assess(ctx, distressedProfile())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantScore := (65 + 75.5 + 91) / 3.0
		if math.Abs(a.RiskScore-wantScore) > 1e-9 {
			t.Errorf("risk score: got %v, want %v", a.RiskScore, wantScore)
		}
		if a.RiskScore < 75 {
			t.Errorf("expected score at or above 75, got %v", a.RiskScore)
		}
		if a.RiskCategory != domain.RiskCritical {
			t.Errorf("category: got %s, want CRITICAL", a.RiskCategory)
		}
		if len(a.Predictions) != 3 {
			t.Errorf("expected 3 predictions, got %d", len(a.Predictions))
		}
		if !strings.Contains(a.Summary, "Critical risk") {
			t.Errorf("summary should name the verdict: %q", a.Summary)
		}
		if a.Snapshot.DebtRatio != 0.8 {
			t.Errorf("snapshot debt ratio: got %v, want 0.8", a.Snapshot.DebtRatio)
		}
		if len(repo.assessments) != 1 {
			t.Errorf("assessment should be persisted, found %d", len(repo.assessments))
		}
		if a.Reviewed {
			t.Error("new assessment must start unreviewed")
		}
	})

	t.Run("HealthyProfileIsLow", func(t *testing.T) {
		repo := newFakeRepo()
		e := NewEnsemble(repo, nil)

		a, err := e.Assess(ctx, healthyProfile())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantScore := (11.5 + 21.5 + 24.5) / 3.0
		if math.Abs(a.RiskScore-wantScore) > 1e-9 {
			t.Errorf("risk score: got %v, want %v", a.RiskScore, wantScore)
		}
		if a.RiskCategory != domain.RiskLow {
			t.Errorf("category: got %s, want LOW", a.RiskCategory)
		}
	})

	t.Run("SaveFailureAbortsAssessment", func(t *testing.T) {
		repo := newFakeRepo()
		repo.saveErr = errors.New("disk full")
		e := NewEnsemble(repo, nil)

		a, err := e.Assess(ctx, healthyProfile())
		if err == nil {
			t.Fatal("expected error from failing save")
		}
		if a != nil {
			t.Error("expected no assessment on save failure")
		}
	})

	t.Run("StrategyFailureAbortsEnsemble", func(t *testing.T) {
		repo := newFakeRepo()
		e := NewEnsemble(repo, nil)

		p := healthyProfile()
		p.TotalAssets = -1
		_, err := e.Assess(ctx, p)
		var infErr *InferenceError
		if !errors.As(err, &infErr) {
			t.Fatalf("expected InferenceError, got %v", err)
		}
		if len(repo.assessments) != 0 {
			t.Error("nothing should be persisted on strategy failure")
		}
	})
}

func TestCategoryBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.RiskCategory
	}{
		{0, domain.RiskLow},
		{24.999, domain.RiskLow},
		{25, domain.RiskMedium},
		{49.999, domain.RiskMedium},
		{50, domain.RiskHigh},
		{74.999, domain.RiskHigh},
		{75, domain.RiskCritical},
		{100, domain.RiskCritical},
	}
	for _, tc := range cases {
		if got := domain.CategoryFromScore(tc.score); got != tc.want {
			t.Errorf("CategoryFromScore(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
