package features

import (
	"math"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

func makeTx(amount float64, txType domain.TransactionType, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx-001",
		UserID:    "user-001",
		Type:      txType,
		Amount:    amount,
		Currency:  "USD",
		Timestamp: ts,
		CreatedAt: ts,
	}
}

func TestExtractDimensionality(t *testing.T) {
	tx := makeTx(1200, domain.TypePayment, time.Date(2025, 3, 12, 14, 30, 0, 0, time.UTC))

	raw := Extract(tx)
	if len(raw) != NumFeatures {
		t.Fatalf("expected %d features, got %d", NumFeatures, len(raw))
	}

	normalized := ExtractNormalized(tx)
	if len(normalized) != NumFeatures {
		t.Fatalf("expected %d normalized features, got %d", NumFeatures, len(normalized))
	}
}

func TestExtractDeterministic(t *testing.T) {
	tx := makeTx(15000, domain.TypeWithdrawal, time.Date(2025, 3, 12, 2, 0, 0, 0, time.UTC))

	first := ExtractNormalized(tx)
	for i := 0; i < 10; i++ {
		again := ExtractNormalized(tx)
		if first != again {
			t.Fatalf("extraction is not deterministic: run %d differs", i)
		}
	}
}

func TestRawFeatureValues(t *testing.T) {
	// Wednesday 02:00 UTC, high-value withdrawal.
	ts := time.Date(2025, 3, 12, 2, 0, 0, 0, time.UTC)
	tx := makeTx(15000, domain.TypeWithdrawal, ts)

	raw := Extract(tx)

	if raw[FeatAmount] != 15000 {
		t.Errorf("amount: got %v", raw[FeatAmount])
	}
	if got, want := raw[FeatAmountLog], math.Log1p(15000); math.Abs(got-want) > 1e-9 {
		t.Errorf("amount_log: got %v want %v", got, want)
	}
	if got, want := raw[FeatAmountSqrt], math.Sqrt(15000); math.Abs(got-want) > 1e-9 {
		t.Errorf("amount_sqrt: got %v want %v", got, want)
	}
	if raw[FeatHour] != 2 {
		t.Errorf("hour: got %v", raw[FeatHour])
	}
	if raw[FeatIsNight] != 1 {
		t.Errorf("is_night: got %v, want 1 for hour 2", raw[FeatIsNight])
	}
	if raw[FeatIsBusinessHours] != 0 {
		t.Errorf("is_business_hours: got %v, want 0 for hour 2", raw[FeatIsBusinessHours])
	}
	if raw[FeatTypeEncoded] != 0 {
		t.Errorf("type encoding for withdrawal: got %v, want 0", raw[FeatTypeEncoded])
	}
	if raw[FeatCountryEncoded] != 5 {
		t.Errorf("country placeholder: got %v, want 5", raw[FeatCountryEncoded])
	}

	// amount > 5000 => device risk 0.3; withdrawal + amount > 3000, weekday => ip risk 0.35
	if raw[FeatDeviceRisk] != 0.3 {
		t.Errorf("device risk: got %v, want 0.3", raw[FeatDeviceRisk])
	}
	if got := raw[FeatIPRisk]; math.Abs(got-0.35) > 1e-9 {
		t.Errorf("ip risk: got %v, want 0.35", got)
	}
	if got, want := raw[FeatRiskProduct], 0.3*0.35; math.Abs(got-want) > 1e-9 {
		t.Errorf("risk product: got %v want %v", got, want)
	}
	if got, want := raw[FeatRiskAvg], (0.3+0.35)/2; math.Abs(got-want) > 1e-9 {
		t.Errorf("risk avg: got %v want %v", got, want)
	}
	if got := raw[FeatRiskMax]; math.Abs(got-0.35) > 1e-9 {
		t.Errorf("risk max: got %v, want 0.35", got)
	}
}

func TestDeviceRiskOverriddenByStoredScore(t *testing.T) {
	ts := time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC)
	tx := makeTx(100, domain.TypePayment, ts)
	stored := 0.85
	tx.FraudScore = &stored

	raw := Extract(tx)
	if raw[FeatDeviceRisk] != 0.85 {
		t.Errorf("device risk should use stored fraud score: got %v", raw[FeatDeviceRisk])
	}
}

func TestSmallPaymentLowRisk(t *testing.T) {
	ts := time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC)
	tx := makeTx(100, domain.TypePayment, ts)

	raw := Extract(tx)
	if raw[FeatDeviceRisk] != 0.2 {
		t.Errorf("device risk for small amount: got %v, want 0.2", raw[FeatDeviceRisk])
	}
	if raw[FeatIPRisk] != 0 {
		t.Errorf("ip risk for weekday small payment: got %v, want 0", raw[FeatIPRisk])
	}
	if raw[FeatIsBusinessHours] != 1 {
		t.Errorf("is_business_hours at 14h: got %v, want 1", raw[FeatIsBusinessHours])
	}
}

func TestWeekendIPRisk(t *testing.T) {
	// Saturday.
	ts := time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)
	tx := makeTx(100, domain.TypePayment, ts)

	raw := Extract(tx)
	if got := raw[FeatIPRisk]; math.Abs(got-0.1) > 1e-9 {
		t.Errorf("ip risk on weekend: got %v, want 0.1", got)
	}
}

func TestNormalizationRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 12, 2, 0, 0, 0, time.UTC)
	tx := makeTx(15000, domain.TypeWithdrawal, ts)

	raw := Extract(tx)
	normalized := ExtractNormalized(tx)

	for i := 0; i < NumFeatures; i++ {
		back := Denormalize(i, normalized[i])
		if math.Abs(back-raw[i]) > 1e-6 {
			t.Errorf("feature %d: denormalized %v, raw %v", i, back, raw[i])
		}
	}
}

func TestHourCycleEncoding(t *testing.T) {
	cases := []struct {
		hour int
		sin  float64
		cos  float64
	}{
		{0, 0, 1},
		{6, 1, 0},
		{12, 0, -1},
		{18, -1, 0},
	}

	for _, tc := range cases {
		ts := time.Date(2025, 3, 12, tc.hour, 0, 0, 0, time.UTC)
		raw := Extract(makeTx(50, domain.TypePayment, ts))
		if math.Abs(raw[FeatHourSin]-tc.sin) > 1e-9 {
			t.Errorf("hour %d sin: got %v want %v", tc.hour, raw[FeatHourSin], tc.sin)
		}
		if math.Abs(raw[FeatHourCos]-tc.cos) > 1e-9 {
			t.Errorf("hour %d cos: got %v want %v", tc.hour, raw[FeatHourCos], tc.cos)
		}
	}
}
