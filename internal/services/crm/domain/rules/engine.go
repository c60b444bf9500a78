// Package rules provides the priority-ordered business rules engine.
//
// Rules are stateless validators consulted by application code before an
// aggregate method commits a state change. They report pass/fail/warn and
// never mutate aggregate state. The engine is an explicitly constructed
// value handed to the services that need it; there is no package-level
// registry.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CriticalPriority is the threshold at or below which a failing rule stops
// evaluation. Lower priority values are more critical.
const CriticalPriority = 10

// Rule validates one business invariant against a subject.
//
// Implementations are constructed once and reused across invocations with
// different subjects, so they must not retain per-call mutable state.
type Rule interface {
	// Name uniquely identifies the rule within its entity type.
	Name() string
	// Description explains what the rule enforces.
	Description() string
	// Priority orders execution; lower runs first and values at or below
	// CriticalPriority short-circuit evaluation on failure.
	Priority() int
	// Validate checks the subject and reports the outcome. It must be a
	// pure function of the subject.
	Validate(ctx context.Context, subject any) Result
}

// Result is the outcome of one rule evaluation.
type Result struct {
	// RuleName is the name of the rule that produced this result.
	RuleName string
	// Valid reports whether the invariant holds.
	Valid bool
	// Err carries the failure message when Valid is false.
	Err string
	// Warning carries an advisory message for rules that pass with caveats.
	Warning string
	// Metadata carries structured context for callers.
	Metadata map[string]string
}

// Pass returns a passing result.
func Pass(name string) Result {
	return Result{RuleName: name, Valid: true}
}

// Fail returns a failing result with a message.
func Fail(name, message string) Result {
	return Result{RuleName: name, Valid: false, Err: message}
}

// Warn returns a passing result carrying an advisory message.
func Warn(name, message string) Result {
	return Result{RuleName: name, Valid: true, Warning: message}
}

// Engine runs registered rules for an entity type in priority order.
type Engine struct {
	mu    sync.RWMutex
	rules map[string][]Rule
}

// NewEngine creates an empty rules engine.
func NewEngine() *Engine {
	return &Engine{rules: make(map[string][]Rule)}
}

// Register inserts a rule into the priority-sorted list for entityType.
// The sort is stable: rules of equal priority run in registration order.
func (e *Engine) Register(entityType string, rule Rule) error {
	if e == nil {
		return fmt.Errorf("rules engine is required")
	}
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return fmt.Errorf("entity type is required")
	}
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	if strings.TrimSpace(rule.Name()) == "" {
		return fmt.Errorf("rule name is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	registered := append(e.rules[entityType], rule)
	sort.SliceStable(registered, func(i, j int) bool {
		return registered[i].Priority() < registered[j].Priority()
	})
	e.rules[entityType] = registered
	return nil
}

// Rules returns the registered rules for an entity type in execution order.
func (e *Engine) Rules(entityType string) []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	registered := e.rules[strings.TrimSpace(entityType)]
	out := make([]Rule, len(registered))
	copy(out, registered)
	return out
}

// Validate runs the applicable rules for entityType against subject.
//
// When names are given, only rules with those names run (still in priority
// order). A failing rule at or below CriticalPriority stops the run; results
// collected so far are returned. A panicking rule converts into a failing
// result carrying the rule name — the engine never crashes its caller over
// one bad rule.
func (e *Engine) Validate(ctx context.Context, entityType string, subject any, names ...string) []Result {
	selected := map[string]bool{}
	for _, name := range names {
		selected[name] = true
	}

	var results []Result
	for _, rule := range e.Rules(entityType) {
		if len(selected) > 0 && !selected[rule.Name()] {
			continue
		}
		result := runRule(ctx, rule, subject)
		results = append(results, result)
		if !result.Valid && rule.Priority() <= CriticalPriority {
			break
		}
	}
	return results
}

// FirstFailure returns the first failing result, if any.
func FirstFailure(results []Result) (Result, bool) {
	for _, result := range results {
		if !result.Valid {
			return result, true
		}
	}
	return Result{}, false
}

// FailureNames returns the names of all failing rules in order.
func FailureNames(results []Result) []string {
	var names []string
	for _, result := range results {
		if !result.Valid {
			names = append(names, result.RuleName)
		}
	}
	return names
}

func runRule(ctx context.Context, rule Rule, subject any) (result Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Result{
				RuleName: rule.Name(),
				Valid:    false,
				Err:      fmt.Sprintf("rule panicked: %v", recovered),
			}
		}
	}()
	result = rule.Validate(ctx, subject)
	if result.RuleName == "" {
		result.RuleName = rule.Name()
	}
	return result
}
