package cache

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/spigell/bookclub-matcher/internal/roster"
)

const (
	pairSeparator  = "|"
	groupSeparator = ","
)

type canonicalPreferences struct {
	Gender           string `json:"gender"`
	GenderPreference string `json:"gender_preference"`
	MatchType        string `json:"match_type"`
}

// canonicalMember fixes field order and sorts every list so equal content
// always serializes to the same string.
type canonicalMember struct {
	ID          string               `json:"id,omitempty"`
	Hobbies     []string             `json:"hobbies"`
	Categories  []string             `json:"categories"`
	Books       []string             `json:"books"`
	Commitment  string               `json:"commitment"`
	Preferences canonicalPreferences `json:"preferences"`
}

func canonical(m *roster.Member, withID bool) string {
	if m == nil {
		return ""
	}

	q := m.Questionnaire
	c := canonicalMember{
		Hobbies:    sortedCopy(q.Hobbies),
		Categories: sortedCopy(q.BookCategories),
		Books:      sortedCopy(q.FavoriteBooks),
		Commitment: string(q.ReadingCommitment),
		Preferences: canonicalPreferences{
			Gender:           q.Gender,
			GenderPreference: q.GenderPreference,
			MatchType:        string(q.MatchTypePreference),
		},
	}
	if withID {
		c.ID = m.ID
	}

	// Marshalling a struct of strings and string slices cannot fail.
	data, _ := json.Marshal(c)
	return string(data)
}

// AnalysisKey is the content-addressed key of a pair. It ignores member ids so
// two members with identical answers share analysis results.
func AnalysisKey(a, b *roster.Member) string {
	return pairKey(canonical(a, false), canonical(b, false))
}

// PairResultKey identifies the scored result of a pair of concrete members in a mode.
func PairResultKey(a, b *roster.Member, mode string) string {
	return pairKey(canonical(a, true), canonical(b, true), mode)
}

func pairKey(a, b string, extra ...string) string {
	parts := []string{a, b}
	slices.Sort(parts)
	parts = append(parts, extra...)
	return RollingHash(strings.Join(parts, pairSeparator))
}

// BatchKey hashes a list of member id groups independent of the order of the
// groups and of the ids inside each group.
func BatchKey(groups [][]string) string {
	joined := make([]string, 0, len(groups))
	for _, group := range groups {
		joined = append(joined, strings.Join(sortedCopy(group), groupSeparator))
	}
	slices.Sort(joined)
	return RollingHash(strings.Join(joined, pairSeparator))
}

// MemberFingerprint hashes the matching-relevant content of a single member.
func MemberFingerprint(m *roster.Member) string {
	return RollingHash(canonical(m, true) + string(m.Status))
}

// RollingHash is the 32-bit polynomial hash h = h*31 + c (mod 2^32) over the
// UTF-16 code units of s, rendered in base 36.
func RollingHash(s string) string {
	var h uint32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + uint32(c)
	}
	return strconv.FormatUint(uint64(h), 36)
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	slices.Sort(out)
	return out
}
