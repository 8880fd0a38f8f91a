// Package worker provides async transaction scoring from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/fraud"
)

// Worker scores ingested transactions asynchronously. It subscribes to the
// transaction topic, runs the fraud ensemble on each message, and persists
// the resulting score.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	ensemble *fraud.Ensemble

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	scoreTTL time.Duration
}

// Config holds worker configuration.
type Config struct {
	// ScoreTTL controls how long cached score snapshots live.
	ScoreTTL time.Duration
}

// NewWorker creates a new async scoring worker. Repo and cache may be nil;
// scoring still runs and results are published, just not persisted.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, ensemble *fraud.Ensemble) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		ensemble: ensemble,
		ctx:      ctx,
		cancel:   cancel,
		scoreTTL: time.Hour,
	}
}

// Start subscribes to the transaction ingestion topic.
func (w *Worker) Start(cfg Config) error {
	if cfg.ScoreTTL > 0 {
		w.scoreTTL = cfg.ScoreTTL
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", domain.TopicTransactionIngested, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicTransactionIngested,
	)

	return nil
}

// TransactionMessage is the message payload for async transaction scoring.
type TransactionMessage struct {
	TxID      string                 `json:"txId"`
	UserID    string                 `json:"userId"`
	Type      domain.TransactionType `json:"type"`
	Amount    float64                `json:"amount"`
	Currency  string                 `json:"currency"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// handleMessage scores one ingested transaction.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var txMsg TransactionMessage
	if err := json.Unmarshal(msg.Payload, &txMsg); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	txID := txMsg.TxID
	if txID == "" {
		txID = msg.ID
	}

	ts := txMsg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx := &domain.Transaction{
		ID:        txID,
		UserID:    txMsg.UserID,
		Type:      txMsg.Type,
		Amount:    txMsg.Amount,
		Currency:  txMsg.Currency,
		Timestamp: ts,
		CreatedAt: time.Now().UTC(),
		Metadata:  txMsg.Metadata,
	}

	if w.repo != nil {
		if err := w.repo.SaveTransaction(ctx, tx); err != nil {
			slog.Error("failed to save transaction",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	result, err := w.ensemble.Evaluate(ctx, tx)
	if err != nil {
		slog.Error("fraud evaluation failed",
			"tx_id", tx.ID,
			"error", err,
		)
		return err
	}

	if w.repo != nil {
		if err := w.repo.AttachFraudScore(ctx, tx.ID, result.FraudScore); err != nil {
			slog.Error("failed to attach fraud score",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	if w.cache != nil {
		snap := &domain.ScoreSnapshot{
			Confidence: result.Confidence,
			IsFraud:    result.IsFraud,
			ScoredAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if err := w.cache.SetScore(ctx, tx.ID, snap, w.scoreTTL); err != nil {
			slog.Warn("failed to cache score snapshot",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	slog.Info("transaction scored",
		"tx_id", tx.ID,
		"confidence", result.Confidence,
		"is_fraud", result.IsFraud,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
