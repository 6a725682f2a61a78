package filtering

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/roster"
)

const DefaultPriority = 1.0

// Check represents a single rule applied to a candidate pair.
type Check interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Evaluate(a, b *roster.Member) Outcome
}

// Outcome is the result of one check. A zero Priority leaves the pair priority unchanged.
type Outcome struct {
	Exclude  bool
	Priority float64
	Reason   string
}

// Verdict is the combined decision of all checks for one pair.
type Verdict struct {
	ShouldMatch bool
	Priority    float64
	Reason      string
	Notes       []string
}

// Pair is an unordered candidate pair ready for scoring.
type Pair struct {
	A        *roster.Member `json:"a"`
	B        *roster.Member `json:"b"`
	Priority float64        `json:"priority"`
	Notes    []string       `json:"notes,omitempty"`
}

// IDs returns the member ids of the pair.
func (p Pair) IDs() []string {
	return []string{p.A.ID, p.B.ID}
}

// Step describes the result of executing a check over all generated pairs.
type Step struct {
	Name          string
	Checked       int
	Excluded      int
	Deprioritized int
}

// Status represents runtime information about a check.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by checks that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Filter evaluates every pair of a roster against an ordered list of checks.
type Filter struct {
	checks []Check
	logger *zap.Logger
}

func New(logger *zap.Logger, checks ...Check) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(checks) == 0 {
		checks = DefaultChecks()
	}
	return &Filter{checks: checks, logger: logger}
}

// DefaultChecks returns the checks in evaluation order.
func DefaultChecks() []Check {
	return []Check{
		NewStatus(),
		NewGender(),
		NewCommitment(),
		NewMatchType(),
		NewCategories(),
	}
}

func (f *Filter) Checks() []Check {
	return f.checks
}

// Evaluate runs the enabled checks in order. The first exclusion stops the
// evaluation, priority reductions accumulate as the lowest value seen.
func (f *Filter) Evaluate(a, b *roster.Member) Verdict {
	verdict, _ := f.evaluate(a, b, nil)
	return verdict
}

func (f *Filter) evaluate(a, b *roster.Member, steps []Step) (Verdict, []Step) {
	v := Verdict{ShouldMatch: true, Priority: DefaultPriority}
	for i, check := range f.checks {
		if !check.IsEnabled() {
			continue
		}
		if steps != nil {
			steps[i].Checked++
		}

		out := check.Evaluate(a, b)
		if out.Exclude {
			if steps != nil {
				steps[i].Excluded++
			}
			return Verdict{ShouldMatch: false, Priority: 0, Reason: out.Reason}, steps
		}
		if out.Priority > 0 && out.Priority < DefaultPriority {
			if steps != nil {
				steps[i].Deprioritized++
			}
			v.Priority = min(v.Priority, out.Priority)
			v.Notes = append(v.Notes, out.Reason)
		}
	}
	return v, steps
}

// Candidates generates every unordered pair of members, drops excluded pairs
// and returns the rest sorted by priority, highest first. Pairs with equal
// priority keep their generation order.
func (f *Filter) Candidates(ctx context.Context, members []*roster.Member) ([]Pair, []Step, error) {
	steps := make([]Step, len(f.checks))
	for i, check := range f.checks {
		steps[i].Name = check.Name()
	}

	pairs := make([]Pair, 0)
	for i := 0; i < len(members); i++ {
		if err := ctx.Err(); err != nil {
			return nil, steps, err
		}
		for j := i + 1; j < len(members); j++ {
			a, b := members[i], members[j]
			if a == nil || b == nil || a.ID == b.ID {
				continue
			}

			var v Verdict
			v, steps = f.evaluate(a, b, steps)
			if !v.ShouldMatch {
				f.logger.Debug("pair excluded",
					zap.String("member_a", a.ID),
					zap.String("member_b", b.ID),
					zap.String("reason", v.Reason),
				)
				continue
			}
			pairs = append(pairs, Pair{A: a, B: b, Priority: v.Priority, Notes: v.Notes})
		}
	}

	slices.SortStableFunc(pairs, func(x, y Pair) int {
		switch {
		case x.Priority > y.Priority:
			return -1
		case x.Priority < y.Priority:
			return 1
		default:
			return 0
		}
	})

	for _, step := range steps {
		f.logger.Info("filter step",
			zap.String("name", step.Name),
			zap.Int("checked", step.Checked),
			zap.Int("excluded", step.Excluded),
			zap.Int("deprioritized", step.Deprioritized),
		)
	}

	return pairs, steps, nil
}

// DisableByName marks a check with the provided name as disabled while keeping it in the list.
func DisableByName(checks []Check, name, reason string) {
	for _, check := range checks {
		if check.Name() == name {
			check.Disable(reason)
		}
	}
}

// Describe returns status entries for the provided checks.
func Describe(checks []Check) []Status {
	statuses := make([]Status, 0, len(checks))
	for _, check := range checks {
		if reporter, ok := check.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    check.Name(),
			Enabled: check.IsEnabled(),
		})
	}
	return statuses
}
