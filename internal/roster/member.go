package roster

import (
	"strings"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

type MatchType string

const (
	MatchSimilar       MatchType = "similar"
	MatchComplementary MatchType = "complementary"
	MatchNoPreference  MatchType = "no_preference"
)

// Commitment is the declared reading pace of a member.
type Commitment string

const (
	CommitmentLight     Commitment = "light"
	CommitmentMedium    Commitment = "medium"
	CommitmentIntensive Commitment = "intensive"
	CommitmentEpic      Commitment = "epic"
)

var commitmentLevels = map[Commitment]int{
	CommitmentLight:     1,
	CommitmentMedium:    2,
	CommitmentIntensive: 3,
	CommitmentEpic:      4,
}

// Level maps the commitment to its ordinal 1-4. Unknown or empty values return 0.
func (c Commitment) Level() int {
	return commitmentLevels[Commitment(strings.ToLower(strings.TrimSpace(string(c))))]
}

type Questionnaire struct {
	Gender              string     `json:"gender,omitempty" mapstructure:"gender"`
	GenderPreference    string     `json:"gender_preference,omitempty" mapstructure:"gender_preference"`
	MatchTypePreference MatchType  `json:"match_type_preference,omitempty" mapstructure:"match_type_preference"`
	BookCategories      []string   `json:"book_categories,omitempty" mapstructure:"book_categories"`
	FavoriteBooks       []string   `json:"favorite_books,omitempty" mapstructure:"favorite_books"`
	Hobbies             []string   `json:"hobbies,omitempty" mapstructure:"hobbies"`
	ReadingCommitment   Commitment `json:"reading_commitment,omitempty" mapstructure:"reading_commitment"`
	ReadingHabits       string     `json:"reading_habits,omitempty" mapstructure:"reading_habits"`
	Expectations        string     `json:"expectations,omitempty" mapstructure:"expectations"`
}

type Member struct {
	ID            string        `json:"id" mapstructure:"id"`
	Name          string        `json:"name,omitempty" mapstructure:"name"`
	StudentID     string        `json:"student_id,omitempty" mapstructure:"student_id"`
	Status        Status        `json:"status" mapstructure:"status"`
	Questionnaire Questionnaire `json:"questionnaire" mapstructure:"questionnaire"`
}

func (m *Member) IsApproved() bool {
	return m != nil && m.Status == StatusApproved
}

// PreferenceText joins the free-text answers that are sent to the semantic analyzer.
func (m *Member) PreferenceText() string {
	if m == nil {
		return ""
	}

	parts := make([]string, 0, 2)
	for _, s := range []string{m.Questionnaire.ReadingHabits, m.Questionnaire.Expectations} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// HasPreference reports whether the value is a concrete preference and not unset or no_preference.
func HasPreference(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != string(MatchNoPreference)
}

type Members struct {
	Items []*Member `json:"members"`
}

func (m *Members) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Items)
}

// findByID returns the first member with id, or nil.
func (m *Members) findByID(id string) *Member {
	if m == nil {
		return nil
	}
	for _, member := range m.Items {
		if member.ID == id {
			return member
		}
	}
	return nil
}

// CountByStatus reports how many members are in each approval status.
func (m *Members) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	if m == nil {
		return counts
	}
	for _, member := range m.Items {
		counts[member.Status]++
	}
	return counts
}
