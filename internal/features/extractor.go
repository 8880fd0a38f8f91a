// Package features derives the normalized feature vector the fraud
// strategies score against.
package features

import (
	"math"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// NumFeatures is the fixed dimensionality of the feature vector.
const NumFeatures = 16

// Feature indices into the raw and normalized vectors.
const (
	FeatAmount = iota
	FeatAmountLog
	FeatAmountSqrt
	FeatHour
	FeatHourSin
	FeatHourCos
	FeatIsNight
	FeatIsBusinessHours
	FeatTypeEncoded
	FeatCategoryEncoded
	FeatCountryEncoded
	FeatDeviceRisk
	FeatIPRisk
	FeatRiskProduct
	FeatRiskAvg
	FeatRiskMax
)

// Scaler parameters fitted on the training corpus. Constants on purpose:
// normalization must never divide by a live statistic.
var featureMeans = [NumFeatures]float64{
	176.11806945657798,   // amount
	4.485907065437638,    // amount_log
	10.756585071221405,   // amount_sqrt
	14.262125,            // hour
	-0.1642743416323041,  // hour_sin
	-0.22607262462447378, // hour_cos
	0.182375,             // is_night
	0.495625,             // is_business_hours
	1.50625,              // transaction_type_encoded
	1.996875,             // merchant_category_encoded
	2.60225,              // country_encoded
	0.18432503329052466,  // device_risk_score
	0.18491228265239915,  // ip_risk_score
	0.05761423580342194,  // risk_score_product
	0.18461865797146132,  // risk_score_avg
	0.23464857936364863,  // risk_score_max
}

var featureStds = [NumFeatures]float64{
	524.2408833882585,   // amount
	1.0401265049590158,  // amount_log
	7.772640932280045,   // amount_sqrt
	5.359166491570787,   // hour
	0.7080606742737414,  // hour_sin
	0.6485022672464053,  // hour_cos
	0.38615328481706496, // is_night
	0.49998085900862227, // is_business_hours
	1.1192457002374552,  // transaction_type_encoded
	1.411245986486785,   // merchant_category_encoded
	1.8521055416741465,  // country_encoded
	0.1765113706078477,  // device_risk_score
	0.1756771873258524,  // ip_risk_score
	0.1568866064081273,  // risk_score_product
	0.16513576565660096, // risk_score_avg
	0.16833055228504434, // risk_score_max
}

// referenceZone fixes the timezone all hour-of-day features are derived in,
// so the vector does not depend on server locale.
var referenceZone = time.UTC

// Hour returns the transaction's hour of day in the reference zone.
func Hour(tx *domain.Transaction) int {
	return tx.Timestamp.In(referenceZone).Hour()
}

// Weekday returns the ISO weekday (Monday=1 .. Sunday=7) in the reference zone.
func Weekday(tx *domain.Transaction) int {
	wd := int(tx.Timestamp.In(referenceZone).Weekday())
	if wd == 0 {
		return 7 // Sunday
	}
	return wd
}

// IsNight reports whether the hour falls in the night window.
func IsNight(hour int) bool {
	return hour <= 6 || hour >= 22
}

// IsBusinessHours reports whether the hour falls within 9-17.
func IsBusinessHours(hour int) bool {
	return hour >= 9 && hour <= 17
}

// IsWeekend reports whether the ISO weekday is Saturday or Sunday.
func IsWeekend(weekday int) bool {
	return weekday >= 6
}

// Extract derives the raw 16-dimensional feature vector from a transaction.
// Deterministic and pure: no I/O, no randomness.
func Extract(tx *domain.Transaction) [NumFeatures]float64 {
	var raw [NumFeatures]float64

	amount := tx.Amount
	raw[FeatAmount] = amount
	raw[FeatAmountLog] = math.Log1p(amount)
	raw[FeatAmountSqrt] = math.Sqrt(amount)

	hour := Hour(tx)
	raw[FeatHour] = float64(hour)
	raw[FeatHourSin] = math.Sin(2 * math.Pi * float64(hour) / 24)
	raw[FeatHourCos] = math.Cos(2 * math.Pi * float64(hour) / 24)
	if IsNight(hour) {
		raw[FeatIsNight] = 1
	}
	if IsBusinessHours(hour) {
		raw[FeatIsBusinessHours] = 1
	}

	raw[FeatTypeEncoded] = encodeType(tx.Type)
	raw[FeatCategoryEncoded] = encodeCategory(tx.Type)
	raw[FeatCountryEncoded] = 5.0 // no geo data; constant placeholder

	deviceRisk := deviceRiskScore(tx, amount)
	ipRisk := ipRiskScore(tx, amount)
	raw[FeatDeviceRisk] = deviceRisk
	raw[FeatIPRisk] = ipRisk
	raw[FeatRiskProduct] = deviceRisk * ipRisk
	raw[FeatRiskAvg] = (deviceRisk + ipRisk) / 2
	raw[FeatRiskMax] = math.Max(deviceRisk, ipRisk)

	return raw
}

// ExtractNormalized derives the feature vector and normalizes each entry
// against the fixed scaler table.
func ExtractNormalized(tx *domain.Transaction) [NumFeatures]float64 {
	raw := Extract(tx)
	var normalized [NumFeatures]float64
	for i := 0; i < NumFeatures; i++ {
		normalized[i] = (raw[i] - featureMeans[i]) / featureStds[i]
	}
	return normalized
}

// Denormalize maps a normalized feature value back to its raw scale.
// Used when building human-readable reasons from the vector.
func Denormalize(index int, value float64) float64 {
	return value*featureStds[index] + featureMeans[index]
}

func encodeType(t domain.TransactionType) float64 {
	switch t {
	case domain.TypeWithdrawal:
		return 0 // ATM
	case domain.TypePayment:
		return 1 // Online
	case domain.TypeTransfer:
		return 2 // POS
	case domain.TypeDeposit:
		return 3 // QR
	default:
		return 1
	}
}

func encodeCategory(t domain.TransactionType) float64 {
	switch t {
	case domain.TypePayment:
		return 2 // Food
	case domain.TypeTransfer:
		return 3 // Grocery
	case domain.TypeWithdrawal:
		return 4 // Travel
	case domain.TypeDeposit:
		return 3 // Grocery
	default:
		return 2
	}
}

func deviceRiskScore(tx *domain.Transaction, amount float64) float64 {
	// A score attached by a previous evaluation takes precedence.
	if tx.FraudScore != nil {
		return math.Min(*tx.FraudScore, 1.0)
	}
	if amount > 5000 {
		return 0.3
	}
	return 0.2
}

func ipRiskScore(tx *domain.Transaction, amount float64) float64 {
	score := 0.0
	if tx.Type == domain.TypeWithdrawal {
		score += 0.2
	}
	if amount > 3000 {
		score += 0.15
	}
	if IsWeekend(Weekday(tx)) {
		score += 0.1
	}
	return math.Min(score, 1.0)
}
