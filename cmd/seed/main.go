// Seed tool for populating a running Kestrel instance with demo data.
//
// Usage:
//
//	go run cmd/seed/main.go -url http://localhost:8080 -transactions 50
//
// This tool:
//  1. Creates a small set of screen rules and hot-reloads them
//  2. Sends a mix of benign and suspicious transactions for scoring
//  3. Submits SME financial profiles for credit risk assessment
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"
)

var (
	baseURL      = flag.String("url", "http://localhost:8080", "Kestrel base URL")
	transactions = flag.Int("transactions", 50, "number of transactions to submit")
	profiles     = flag.Int("profiles", 10, "number of SME profiles to assess")
	seed         = flag.Int64("seed", 42, "random seed")
)

type transactionRequest struct {
	UserID   string  `json:"userId"`
	Type     string  `json:"type"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type screenRule struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Action     string `json:"action"`
	Priority   int    `json:"priority"`
	Enabled    bool   `json:"enabled"`
}

type financialProfile struct {
	SMEUserID            string  `json:"smeUserId"`
	AnnualRevenue        float64 `json:"annualRevenue"`
	TotalAssets          float64 `json:"totalAssets"`
	TotalLiabilities     float64 `json:"totalLiabilities"`
	MonthlyCashFlow      float64 `json:"monthlyCashFlow"`
	OutstandingDebt      float64 `json:"outstandingDebt"`
	NumberOfEmployees    int     `json:"numberOfEmployees"`
	YearsInBusiness      int     `json:"yearsInBusiness"`
	IndustrySector       string  `json:"industrySector"`
	CreditHistoryScore   float64 `json:"creditHistoryScore"`
	NumberOfLatePayments int     `json:"numberOfLatePayments"`
}

var txTypes = []string{"payment", "transfer", "withdrawal", "deposit"}

var sectors = []string{
	"restaurant", "retail", "construction", "manufacturing",
	"technology", "healthcare", "consulting", "hospitality",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Printf("Seeding %s\n\n", *baseURL)

	if err := seedScreenRules(client); err != nil {
		fmt.Fprintf(os.Stderr, "screen rules: %v\n", err)
		os.Exit(1)
	}

	flagged := 0
	for i := 0; i < *transactions; i++ {
		req := randomTransaction(rng, i)
		isFraud, err := post(client, "/fraud/evaluate", req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "evaluate: %v\n", err)
			os.Exit(1)
		}
		if isFraud {
			flagged++
		}
	}
	fmt.Printf("Transactions: %d submitted, %d flagged as fraud\n", *transactions, flagged)

	critical := 0
	for i := 0; i < *profiles; i++ {
		p := randomProfile(rng, i)
		isCritical, err := postAssess(client, p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "assess: %v\n", err)
			os.Exit(1)
		}
		if isCritical {
			critical++
		}
	}
	fmt.Printf("Profiles:     %d assessed, %d critical\n", *profiles, critical)
	fmt.Println("\nDone. Inspect results via GET /patterns and GET /assessments.")
}

func seedScreenRules(client *http.Client) error {
	rules := []screenRule{
		{
			ID:         "seed-deny-huge",
			Name:       "Deny very large transfers",
			Expression: "amount > 100000.0",
			Action:     "deny",
			Priority:   100,
			Enabled:    true,
		},
		{
			ID:         "seed-allow-micro",
			Name:       "Allow micro payments",
			Expression: `amount < 5.0 && tx_type == "payment"`,
			Action:     "allow",
			Priority:   10,
			Enabled:    true,
		},
	}

	for _, rule := range rules {
		if _, err := post(client, "/screen-rules", rule); err != nil {
			return err
		}
	}

	resp, err := client.Post(*baseURL+"/screen-rules/reload", "application/json", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	fmt.Printf("Screen rules: %d created and reloaded\n", len(rules))
	return nil
}

func randomTransaction(rng *rand.Rand, i int) transactionRequest {
	amount := 10 + rng.Float64()*500
	// Every fifth transaction is a large one to exercise the high bands.
	if i%5 == 0 {
		amount = 8000 + rng.Float64()*20000
	}
	return transactionRequest{
		UserID:   fmt.Sprintf("user-%03d", rng.Intn(20)),
		Type:     txTypes[rng.Intn(len(txTypes))],
		Amount:   amount,
		Currency: "USD",
	}
}

func randomProfile(rng *rand.Rand, i int) financialProfile {
	revenue := 100000 + rng.Float64()*2000000
	assets := revenue * (0.3 + rng.Float64())
	p := financialProfile{
		SMEUserID:            fmt.Sprintf("sme-%03d", i),
		AnnualRevenue:        revenue,
		TotalAssets:          assets,
		TotalLiabilities:     assets * rng.Float64(),
		MonthlyCashFlow:      -5000 + rng.Float64()*40000,
		OutstandingDebt:      rng.Float64() * revenue * 0.5,
		NumberOfEmployees:    1 + rng.Intn(50),
		YearsInBusiness:      rng.Intn(20),
		IndustrySector:       sectors[rng.Intn(len(sectors))],
		CreditHistoryScore:   20 + rng.Float64()*80,
		NumberOfLatePayments: rng.Intn(8),
	}
	return p
}

// post submits a JSON body and reports whether the response flagged fraud.
func post(client *http.Client, path string, body interface{}) (bool, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return false, err
	}

	resp, err := client.Post(*baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}

	var out struct {
		IsFraud bool `json:"isFraud"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.IsFraud, nil
}

func postAssess(client *http.Client, p financialProfile) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, err
	}

	resp, err := client.Post(*baseURL+"/risk/assess", "application/json", bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("/risk/assess: status %d", resp.StatusCode)
	}

	var out struct {
		RiskCategory string `json:"riskCategory"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.RiskCategory == "CRITICAL", nil
}
