package matching

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spigell/bookclub-matcher/internal/metrics"
	"github.com/spigell/bookclub-matcher/internal/scoring"
)

// PartnerEntry is one suggested partner in the per-member report.
type PartnerEntry struct {
	Partner string  `json:"partner"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
	Scorer  string  `json:"scorer"`
}

// ByMember lists every member's suggested partners in the report's rank order.
func (r *Report) ByMember() map[string][]PartnerEntry {
	report := make(map[string][]PartnerEntry)
	for _, res := range r.Results {
		scorer := scorerOf(res)
		report[label(res.MemberA, res.NameA)] = append(report[label(res.MemberA, res.NameA)], PartnerEntry{
			Partner: label(res.MemberB, res.NameB),
			Score:   res.Score,
			Reason:  res.Reason,
			Scorer:  scorer,
		})
		report[label(res.MemberB, res.NameB)] = append(report[label(res.MemberB, res.NameB)], PartnerEntry{
			Partner: label(res.MemberA, res.NameA),
			Score:   res.Score,
			Reason:  res.Reason,
			Scorer:  scorer,
		})
	}
	return report
}

// DumpToTmpFile writes the report as indented JSON into a new temporary file
// and returns its name.
func (r *Report) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "matches_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ToFile writes the report as indented JSON to path, creating parent directories.
func (r *Report) ToFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %q: %w", path, err)
	}
	return nil
}

func label(id, name string) string {
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}

func scorerOf(res scoring.Result) string {
	switch {
	case res.Degraded:
		return metrics.ScorerFallback
	case res.TraditionalMode:
		return metrics.ScorerTraditional
	case res.Cached:
		return metrics.ScorerCached
	default:
		return metrics.ScorerRemote
	}
}
