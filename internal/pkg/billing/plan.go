package billing

import (
	"fmt"
	"strings"

	"github.com/tcdynamics/workflowai/app/models"
)

const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"

	// MetadataPlanName is the checkout metadata key the frontend sets.
	MetadataPlanName = "plan_name"
)

// KnownPlans lists the plan names in ascending tier order.
var KnownPlans = []string{PlanStarter, PlanProfessional, PlanEnterprise}

// PlanConfig maps plan names to Polar product ids.
type PlanConfig struct {
	ProductIDs   map[string]string
	FallbackPlan string
}

// Validate fails on unknown plan names, empty product ids and product ids
// shared between plans.
func (c PlanConfig) Validate() error {
	if !isKnownPlan(normalizePlan(c.FallbackPlan)) {
		return fmt.Errorf("billing: fallback plan %q is not one of %v", c.FallbackPlan, KnownPlans)
	}
	seen := make(map[string]string, len(c.ProductIDs))
	for plan, productID := range c.ProductIDs {
		p := normalizePlan(plan)
		if !isKnownPlan(p) {
			return fmt.Errorf("billing: product mapping targets unknown plan %q", plan)
		}
		id := strings.TrimSpace(productID)
		if id == "" {
			return fmt.Errorf("billing: plan %q has no product id", p)
		}
		if other, ok := seen[id]; ok {
			return fmt.Errorf("billing: product id %q mapped to both %q and %q", id, other, p)
		}
		seen[id] = p
	}
	return nil
}

// PlanResolver turns event data into a plan name.
type PlanResolver struct {
	byProduct map[string]string
	fallback  string
}

func NewPlanResolver(cfg PlanConfig) (*PlanResolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &PlanResolver{
		byProduct: make(map[string]string, len(cfg.ProductIDs)),
		fallback:  normalizePlan(cfg.FallbackPlan),
	}
	for plan, productID := range cfg.ProductIDs {
		r.byProduct[strings.TrimSpace(productID)] = normalizePlan(plan)
	}
	return r, nil
}

// Resolve applies the precedence metadata plan_name, then product mapping,
// then fallback. Metadata sets are checked in order; unknown plan names are
// ignored.
func (r *PlanResolver) Resolve(productID string, metadata ...map[string]any) string {
	for _, md := range metadata {
		raw, _ := md[MetadataPlanName].(string)
		if plan := normalizePlan(raw); isKnownPlan(plan) {
			return plan
		}
	}
	if plan, ok := r.byProduct[strings.TrimSpace(productID)]; ok {
		return plan
	}
	return r.fallback
}

func normalizePlan(plan string) string {
	return strings.ToLower(strings.TrimSpace(plan))
}

func isKnownPlan(plan string) bool {
	for _, p := range KnownPlans {
		if p == plan {
			return true
		}
	}
	return false
}

func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return models.SubscriptionStatusIncomplete
	}
	return s
}
