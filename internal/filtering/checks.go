package filtering

import (
	"strconv"
	"strings"

	"github.com/spigell/bookclub-matcher/internal/roster"
)

const (
	ReasonUnapproved        = "unapproved member"
	ReasonGenderMismatch    = "gender preference mismatch"
	ReasonCommitmentGap     = "commitment gap too large"
	ReasonTypeDiffers       = "type preference differs"
	ReasonNoCategoryOverlap = "no category overlap"

	maxCommitmentGap    = 3
	typeDiffersPriority = 0.7
	noOverlapPriority   = 0.8
)

// toggle implements Disable/IsEnabled for the checks that may be switched off.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

type statusCheck struct{}

// NewStatus creates the check that requires both members to be approved.
// It cannot be disabled.
func NewStatus() Check {
	return &statusCheck{}
}

func (c *statusCheck) Name() string { return "status" }

func (c *statusCheck) Disable(string) {}

func (c *statusCheck) IsEnabled() bool { return true }

func (c *statusCheck) Evaluate(a, b *roster.Member) Outcome {
	if !a.IsApproved() || !b.IsApproved() {
		return Outcome{Exclude: true, Reason: ReasonUnapproved}
	}
	return Outcome{}
}

type genderCheck struct {
	toggle
}

// NewGender creates the mutual gender-preference check.
func NewGender() Check {
	return &genderCheck{}
}

func (c *genderCheck) Name() string { return "gender" }

func (c *genderCheck) Evaluate(a, b *roster.Member) Outcome {
	qa, qb := a.Questionnaire, b.Questionnaire
	if !roster.HasPreference(qa.GenderPreference) || !roster.HasPreference(qb.GenderPreference) {
		return Outcome{}
	}
	if strings.TrimSpace(qa.Gender) == "" || strings.TrimSpace(qb.Gender) == "" {
		return Outcome{}
	}

	if qa.GenderPreference == qb.Gender && qb.GenderPreference == qa.Gender {
		return Outcome{}
	}
	return Outcome{Exclude: true, Reason: ReasonGenderMismatch}
}

func (c *genderCheck) Status() Status {
	return Status{Name: c.Name(), Enabled: c.IsEnabled(), Reason: c.reason}
}

type commitmentCheck struct {
	toggle
}

// NewCommitment creates the check that excludes pairs whose reading paces are too far apart.
func NewCommitment() Check {
	return &commitmentCheck{}
}

func (c *commitmentCheck) Name() string { return "commitment" }

func (c *commitmentCheck) Evaluate(a, b *roster.Member) Outcome {
	la := a.Questionnaire.ReadingCommitment.Level()
	lb := b.Questionnaire.ReadingCommitment.Level()
	if la == 0 || lb == 0 {
		return Outcome{}
	}

	gap := la - lb
	if gap < 0 {
		gap = -gap
	}
	if gap >= maxCommitmentGap {
		return Outcome{Exclude: true, Reason: ReasonCommitmentGap}
	}
	return Outcome{}
}

func (c *commitmentCheck) Status() Status {
	return Status{
		Name:    c.Name(),
		Enabled: c.IsEnabled(),
		Reason:  c.reason,
		Details: map[string]string{"max_gap": strconv.Itoa(maxCommitmentGap - 1)},
	}
}

type matchTypeCheck struct {
	toggle
}

// NewMatchType creates the check that lowers the priority of pairs with
// different declared match types.
func NewMatchType() Check {
	return &matchTypeCheck{}
}

func (c *matchTypeCheck) Name() string { return "match_type" }

func (c *matchTypeCheck) Evaluate(a, b *roster.Member) Outcome {
	ta := string(a.Questionnaire.MatchTypePreference)
	tb := string(b.Questionnaire.MatchTypePreference)
	if !roster.HasPreference(ta) || !roster.HasPreference(tb) || ta == tb {
		return Outcome{}
	}
	return Outcome{Priority: typeDiffersPriority, Reason: ReasonTypeDiffers}
}

type categoriesCheck struct {
	toggle
}

// NewCategories creates the check that lowers the priority of pairs without a shared book category.
func NewCategories() Check {
	return &categoriesCheck{}
}

func (c *categoriesCheck) Name() string { return "categories" }

func (c *categoriesCheck) Evaluate(a, b *roster.Member) Outcome {
	ca, cb := a.Questionnaire.BookCategories, b.Questionnaire.BookCategories
	if len(ca) == 0 || len(cb) == 0 {
		return Outcome{}
	}
	if SharedCount(ca, cb) > 0 {
		return Outcome{}
	}
	return Outcome{Priority: noOverlapPriority, Reason: ReasonNoCategoryOverlap}
}

// SharedCount returns how many distinct values of a are also present in b.
func SharedCount(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}

	seen := make(map[string]struct{}, len(a))
	shared := 0
	for _, v := range a {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := set[v]; ok {
			shared++
		}
	}
	return shared
}
