// internal/billing/rules.go
package billing

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicsync/internal/localstore"
	"clinicsync/internal/logger"
	"clinicsync/internal/model"
)

// Rules is the locally persisted set of billing adjustments. Rules are edited
// on this machine and applied when quoting prices from the remote price list;
// they never sync to the backend, so they survive purely through the local
// store and are written synchronously on every change.
type Rules struct {
	store *localstore.Store

	mu    sync.Mutex
	rules []model.BillingRule
}

func NewRules(store *localstore.Store) (*Rules, error) {
	r := &Rules{store: store}

	found, err := store.LoadJSON(localstore.KeyBillingRules, &r.rules)
	if err != nil {
		return nil, fmt.Errorf("failed to load billing rules: %w", err)
	}
	if found {
		logger.LogInfo("Loaded %d billing rules", len(r.rules))
	}
	return r, nil
}

// Add validates and persists a new rule.
func (r *Rules) Add(name, category, kind string, percent float64) (model.BillingRule, error) {
	if strings.TrimSpace(name) == "" {
		return model.BillingRule{}, fmt.Errorf("billing rule name must not be empty")
	}
	if kind != model.RuleSurcharge && kind != model.RuleDiscount {
		return model.BillingRule{}, fmt.Errorf("unknown billing rule kind %q", kind)
	}
	if percent <= 0 || percent > 100 {
		return model.BillingRule{}, fmt.Errorf("billing rule percent must be in (0, 100], got %.2f", percent)
	}

	rule := model.BillingRule{
		ID:        uuid.NewString(),
		Name:      name,
		Category:  category,
		Kind:      kind,
		Percent:   percent,
		Active:    true,
		UpdatedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
	if err := r.persistLocked(); err != nil {
		r.rules = r.rules[:len(r.rules)-1]
		return model.BillingRule{}, err
	}
	return rule, nil
}

// SetActive toggles a rule on or off without deleting it.
func (r *Rules) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i].Active = active
			r.rules[i].UpdatedAt = time.Now()
			return r.persistLocked()
		}
	}
	return fmt.Errorf("billing rule %s not found", id)
}

// Delete removes a rule.
func (r *Rules) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return r.persistLocked()
		}
	}
	return fmt.Errorf("billing rule %s not found", id)
}

// Apply returns price with every active rule for the category folded in.
// Rules with an empty category apply to everything.
func (r *Rules) Apply(category string, price float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := price
	for _, rule := range r.rules {
		if !rule.Active {
			continue
		}
		if rule.Category != "" && rule.Category != category {
			continue
		}
		adjustment := out * rule.Percent / 100
		if rule.Kind == model.RuleDiscount {
			out -= adjustment
		} else {
			out += adjustment
		}
	}
	return out
}

// All returns a snapshot of every rule.
func (r *Rules) All() []model.BillingRule {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.BillingRule, len(r.rules))
	copy(out, r.rules)
	return out
}

func (r *Rules) persistLocked() error {
	if err := r.store.SaveJSON(localstore.KeyBillingRules, r.rules); err != nil {
		return fmt.Errorf("failed to persist billing rules: %w", err)
	}
	return nil
}
