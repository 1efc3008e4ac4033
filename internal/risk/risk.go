// Package risk derives and checks the risk value of a scenario.
package risk

import (
	"context"
	"fmt"
	"strings"

	"pragrisk/internal/models"

	"github.com/shopspring/decimal"
)

// Policy decides what happens to a scenario's risk value on write.
type Policy string

const (
	// PolicyFill derives the value only when it is absent.
	PolicyFill Policy = "fill"
	// PolicyAlways recomputes whenever probability and consequence are set.
	PolicyAlways Policy = "always"
	// PolicyStrict is PolicyFill that rejects a supplied value off by more
	// than the tolerance.
	PolicyStrict Policy = "strict"
	// PolicyPassthrough stores what it is given.
	PolicyPassthrough Policy = "passthrough"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyFill, nil
	case PolicyFill, PolicyAlways, PolicyStrict, PolicyPassthrough:
		return p, nil
	}
	return "", fmt.Errorf("unknown risk policy %q", s)
}

// DeriveRiskValue is probability times consequence rounded half up to two
// fractional digits. Both inputs are non-negative, where decimal's half away
// from zero rounding is half up.
func DeriveRiskValue(probability, consequence decimal.Decimal) decimal.Decimal {
	return probability.Mul(consequence).Round(models.DecimalScale)
}

// Checker tells whether an entity of a kind exists.
type Checker interface {
	Exists(ctx context.Context, kind models.Kind, id string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, kind models.Kind, id string) (bool, error)

func (f CheckerFunc) Exists(ctx context.Context, kind models.Kind, id string) (bool, error) {
	return f(ctx, kind, id)
}

type Calculator struct {
	refs      Checker
	policy    Policy
	tolerance decimal.Decimal
}

func NewCalculator(refs Checker, policy Policy, tolerance decimal.Decimal) *Calculator {
	if policy == "" {
		policy = PolicyFill
	}
	return &Calculator{refs: refs, policy: policy, tolerance: tolerance.Abs()}
}

// ValidateReferences reports every missing reference of s in one error.
func (c *Calculator) ValidateReferences(ctx context.Context, s *models.Scenario) error {
	var missing []models.Reference
	for _, ref := range s.References() {
		ok, err := c.refs.Exists(ctx, ref.Kind, ref.ID)
		if err != nil {
			return fmt.Errorf("check %s: %w", ref.Field, err)
		}
		if !ok {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		return &models.MissingReferenceError{Missing: missing}
	}
	return nil
}

// Apply runs the policy against s, setting its risk value where the policy
// derives one. A risk value carried over by a patch of the inputs counts as
// absent, except under PolicyPassthrough.
func (c *Calculator) Apply(s *models.Scenario) error {
	if c.policy == PolicyPassthrough || s.Probability == nil || s.Consequence == nil {
		return nil
	}
	derived := DeriveRiskValue(*s.Probability, *s.Consequence)
	switch {
	case c.policy == PolicyAlways, s.RiskValue == nil, s.RiskValueCarried():
		s.RiskValue = &derived
	case c.policy == PolicyStrict:
		if s.RiskValue.Sub(derived).Abs().GreaterThan(c.tolerance) {
			return &models.ValidationError{
				Field:  "riskValue",
				Reason: fmt.Sprintf("%s does not match probability x consequence = %s", s.RiskValue.StringFixed(models.DecimalScale), derived.StringFixed(models.DecimalScale)),
			}
		}
	}
	return nil
}

// Assessment compares a stored risk value with the derived one.
type Assessment struct {
	Derived    *decimal.Decimal `json:"derived"`
	Stored     *decimal.Decimal `json:"stored"`
	Consistent bool             `json:"consistent"`
}

// Assess reports whether the stored value agrees with the derived one. A
// scenario that cannot be derived is consistent.
func (c *Calculator) Assess(s *models.Scenario) Assessment {
	a := Assessment{Stored: s.RiskValue, Consistent: true}
	if s.Probability == nil || s.Consequence == nil {
		return a
	}
	derived := DeriveRiskValue(*s.Probability, *s.Consequence)
	a.Derived = &derived
	if s.RiskValue != nil {
		a.Consistent = s.RiskValue.Sub(derived).Abs().LessThanOrEqual(c.tolerance)
	}
	return a
}
