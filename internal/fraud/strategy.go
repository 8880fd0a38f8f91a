// Package fraud implements the multi-strategy fraud scoring ensemble.
package fraud

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/features"
)

// StrategyID identifies one of the closed set of fraud scoring strategies.
type StrategyID string

const (
	// StrategyAmountTime weighs amount tiers and the night window.
	StrategyAmountTime StrategyID = "amount-time"

	// StrategyNightWeekend weighs wider amount tiers plus weekend and
	// dead-of-night signals, with a bounded noise term.
	StrategyNightWeekend StrategyID = "night-weekend"

	// StrategyBroadSweep applies the broadest heuristic: three amount
	// tiers, an early-morning band, and weekend, with a smaller noise term.
	StrategyBroadSweep StrategyID = "broad-sweep"
)

// AllStrategies lists the strategies in declaration order. The ensemble
// relies on this order to break confidence ties.
func AllStrategies() []StrategyID {
	return []StrategyID{StrategyAmountTime, StrategyNightWeekend, StrategyBroadSweep}
}

// InitError reports a strategy that failed its one-time setup.
type InitError struct {
	Strategy StrategyID
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("strategy %s: initialization failed: %v", e.Strategy, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// InferenceError reports a strategy whose scoring function failed.
// The ensemble does not catch it per-strategy: it aborts the whole call.
type InferenceError struct {
	Strategy StrategyID
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("strategy %s: inference failed: %v", e.Strategy, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// NoiseSource produces values in [0,1). Two strategies scale it into their
// documented noise bounds. Injectable so tests can pin exact outputs.
type NoiseSource func() float64

// defaultNoise is a seeded, lock-guarded source shared by default strategies.
func defaultNoise() NoiseSource {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64()
	}
}

// Strategy is one fraud scoring strategy instance. Construction is cheap;
// the first Evaluate runs a guarded one-time initialization, after which the
// strategy is stateless and safe for concurrent use.
type Strategy struct {
	id    StrategyID
	noise NoiseSource

	once    sync.Once
	initErr error
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithNoise injects a deterministic noise source.
func WithNoise(n NoiseSource) Option {
	return func(s *Strategy) { s.noise = n }
}

// NewStrategy creates a strategy for the given variant.
func NewStrategy(id StrategyID, opts ...Option) *Strategy {
	s := &Strategy{id: id}
	for _, opt := range opts {
		opt(s)
	}
	if s.noise == nil {
		s.noise = defaultNoise()
	}
	return s
}

// ID returns the strategy identifier.
func (s *Strategy) ID() StrategyID { return s.id }

// ensureInitialized runs the one-time setup exactly once, even under
// concurrent first use. A failure is sticky: every later call sees it.
func (s *Strategy) ensureInitialized() error {
	s.once.Do(func() {
		switch s.id {
		case StrategyAmountTime, StrategyNightWeekend, StrategyBroadSweep:
			// Rule tables are compiled in; nothing to load.
		default:
			s.initErr = fmt.Errorf("unknown strategy variant %q", s.id)
		}
	})
	if s.initErr != nil {
		return &InitError{Strategy: s.id, Err: s.initErr}
	}
	return nil
}

// Evaluate scores one transaction. Confidence is always within [0,1].
func (s *Strategy) Evaluate(tx *domain.Transaction) (domain.StrategyPrediction, error) {
	if err := s.ensureInitialized(); err != nil {
		return domain.StrategyPrediction{}, err
	}
	if tx == nil {
		return domain.StrategyPrediction{}, &InferenceError{Strategy: s.id, Err: fmt.Errorf("nil transaction")}
	}
	if tx.Amount <= 0 {
		return domain.StrategyPrediction{}, &InferenceError{Strategy: s.id, Err: fmt.Errorf("amount must be positive, got %v", tx.Amount)}
	}
	if tx.Timestamp.IsZero() {
		return domain.StrategyPrediction{}, &InferenceError{Strategy: s.id, Err: fmt.Errorf("timestamp is required")}
	}

	switch s.id {
	case StrategyAmountTime:
		return s.scoreAmountTime(tx), nil
	case StrategyNightWeekend:
		return s.scoreNightWeekend(tx), nil
	default:
		return s.scoreBroadSweep(tx), nil
	}
}

// scoreAmountTime: base 0.3, two amount tiers, night bump. No noise term.
// Flags fraud locally above 0.5.
func (s *Strategy) scoreAmountTime(tx *domain.Transaction) domain.StrategyPrediction {
	hour := features.Hour(tx)

	confidence := 0.3
	if tx.Amount > 10000 {
		confidence += 0.3
	} else if tx.Amount > 5000 {
		confidence += 0.15
	}
	if features.IsNight(hour) {
		confidence += 0.25
	}
	confidence = math.Min(confidence, 1.0)

	isFraud := confidence > 0.5

	reason := "Normal transaction pattern"
	if isFraud {
		switch {
		case tx.Amount > 10000:
			reason = "High transaction amount detected"
		case features.IsNight(hour):
			reason = "Late night transaction time"
		default:
			reason = "Suspicious activity pattern detected"
		}
	}

	return domain.StrategyPrediction{
		Strategy:   string(s.id),
		Confidence: confidence,
		IsFraud:    isFraud,
		Reason:     reason,
	}
}

// scoreNightWeekend: base 0.25, higher amount tiers, weekend and
// dead-of-night bumps, noise bounded by 0.15. Flags above 0.7.
// Consumes the normalized feature vector the way a model-backed scorer
// would; tier comparisons stay on raw values so boundaries are exact.
func (s *Strategy) scoreNightWeekend(tx *domain.Transaction) domain.StrategyPrediction {
	vec := features.ExtractNormalized(tx)
	amount := tx.Amount
	hour := features.Hour(tx)
	weekend := features.IsWeekend(features.Weekday(tx))

	confidence := 0.25
	if amount > 15000 {
		confidence += 0.35
	} else if amount > 10000 {
		confidence += 0.25
	}
	if weekend {
		confidence += 0.15
	}
	if hour < 5 || hour > 23 {
		confidence += 0.25
	}
	confidence += s.noise() * 0.15
	confidence = math.Min(confidence, 1.0)

	isFraud := confidence > 0.7

	reason := "Transaction within normal parameters"
	if isFraud {
		// Explain from the vector, as a model explainer reports its inputs.
		explainAmount := features.Denormalize(features.FeatAmount, vec[features.FeatAmount])
		explainHour := int(math.Round(features.Denormalize(features.FeatHour, vec[features.FeatHour])))
		switch {
		case amount > 15000:
			reason = fmt.Sprintf("Unusually high transaction amount (%.2f)", explainAmount)
		case hour < 5 || hour > 23:
			reason = fmt.Sprintf("Unusual transaction time (%dh)", explainHour)
		case weekend:
			reason = "Weekend transaction outside usual activity"
		default:
			reason = "Multiple fraud indicators detected"
		}
	}

	return domain.StrategyPrediction{
		Strategy:   string(s.id),
		Confidence: confidence,
		IsFraud:    isFraud,
		Reason:     reason,
	}
}

// scoreBroadSweep: base 0.2, three amount tiers, an early-morning band with
// a night fallback, weekend bump, noise bounded by 0.1. Flags above 0.7.
func (s *Strategy) scoreBroadSweep(tx *domain.Transaction) domain.StrategyPrediction {
	hour := features.Hour(tx)
	weekend := features.IsWeekend(features.Weekday(tx))

	confidence := 0.2
	switch {
	case tx.Amount > 20000:
		confidence += 0.4
	case tx.Amount > 10000:
		confidence += 0.25
	case tx.Amount > 5000:
		confidence += 0.15
	}
	if hour >= 2 && hour <= 5 {
		confidence += 0.3
	} else if features.IsNight(hour) {
		confidence += 0.2
	}
	if weekend {
		confidence += 0.1
	}
	confidence += s.noise() * 0.1
	confidence = math.Min(confidence, 1.0)

	isFraud := confidence > 0.7

	reason := "Transaction appears legitimate"
	if isFraud {
		switch {
		case tx.Amount > 20000:
			reason = "Extremely high transaction amount"
		case hour >= 2 && hour <= 5:
			reason = "Transaction during suspicious hours (2-5 AM)"
		case features.IsNight(hour):
			reason = "Late night/early morning transaction"
		default:
			reason = "Multiple fraud indicators detected"
		}
	}

	return domain.StrategyPrediction{
		Strategy:   string(s.id),
		Confidence: confidence,
		IsFraud:    isFraud,
		Reason:     reason,
	}
}
