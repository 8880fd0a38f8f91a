// Package screening provides the CEL-based transaction screening gate that
// runs before the fraud ensemble.
package screening

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/features"
)

// Decision is the outcome of screening one transaction. A nil matched rule
// means no rule fired and scoring proceeds normally.
type Decision struct {
	Matched *domain.ScreenRule `json:"matched,omitempty"`
	Action  string             `json:"action,omitempty"`
}

// Engine compiles and evaluates screen rules. Safe for concurrent use;
// rules can be hot-reloaded while evaluations are in flight.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*compiledRule
}

type compiledRule struct {
	rule    *domain.ScreenRule
	program cel.Program
}

// NewEngine creates a screening engine with the transaction variable set.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("user_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.ScreenRule) error {
	if rule == nil {
		return fmt.Errorf("screen rule is required")
	}
	if rule.Action != domain.ScreenActionAllow && rule.Action != domain.ScreenActionDeny {
		return fmt.Errorf("rule %s: action must be %q or %q", rule.ID, domain.ScreenActionAllow, domain.ScreenActionDeny)
	}
	_, err := e.compile(rule)
	return err
}

// ReloadRules replaces the loaded rule set. Disabled rules are skipped.
// The set is ordered by descending priority, id as tie-break, so
// evaluation order is stable.
func (e *Engine) ReloadRules(rules []*domain.ScreenRule) error {
	compiled := make([]*compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if err := e.ValidateRule(rule); err != nil {
			return err
		}
		cr, err := e.compile(rule)
		if err != nil {
			return err
		}
		compiled = append(compiled, cr)
	}

	sort.Slice(compiled, func(i, j int) bool {
		if compiled[i].rule.Priority != compiled[j].rule.Priority {
			return compiled[i].rule.Priority > compiled[j].rule.Priority
		}
		return compiled[i].rule.ID < compiled[j].rule.ID
	})

	e.mu.Lock()
	e.compiled = compiled
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Screen evaluates the loaded rules against a transaction in priority
// order. The first rule whose expression is true decides; rules whose
// evaluation errors are logged and skipped.
func (e *Engine) Screen(ctx context.Context, tx *domain.Transaction) (*Decision, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is required")
	}

	e.mu.RLock()
	rules := e.compiled
	e.mu.RUnlock()

	if len(rules) == 0 {
		return &Decision{}, nil
	}

	activation := map[string]any{
		"tx": map[string]any{
			"id":       tx.ID,
			"user_id":  tx.UserID,
			"type":     string(tx.Type),
			"amount":   tx.Amount,
			"currency": tx.Currency,
		},
		"amount":   tx.Amount,
		"currency": tx.Currency,
		"tx_type":  string(tx.Type),
		"hour":     int64(features.Hour(tx)),
		"user_id":  tx.UserID,
	}

	for _, cr := range rules {
		out, _, err := cr.program.Eval(activation)
		if err != nil {
			slog.Warn("screen rule evaluation failed, skipping",
				"rule_id", cr.rule.ID,
				"tx_id", tx.ID,
				"error", err,
			)
			continue
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			return &Decision{Matched: cr.rule, Action: cr.rule.Action}, nil
		}
	}

	return &Decision{}, nil
}

func (e *Engine) compile(rule *domain.ScreenRule) (*compiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}
	return &compiledRule{rule: rule, program: program}, nil
}
