// Package tuning loads the keyword tables that drive relevance scoring.
// The defaults are embedded; a YAML file with the same shape can replace them.
package tuning

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/progress-engine/internal/domain/relevance"
)

//go:embed keywords.yaml
var defaultKeywords []byte

// DefaultKeywordTables returns the embedded tables.
func DefaultKeywordTables() (*relevance.KeywordTables, error) {
	return ParseKeywordTables(defaultKeywords)
}

// LoadKeywordTables reads tables from path, or the embedded defaults when path is empty.
func LoadKeywordTables(path string) (*relevance.KeywordTables, error) {
	if path == "" {
		return DefaultKeywordTables()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword tables: %w", err)
	}
	return ParseKeywordTables(data)
}

// ParseKeywordTables decodes and validates YAML keyword tables.
func ParseKeywordTables(data []byte) (*relevance.KeywordTables, error) {
	var tables relevance.KeywordTables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("decode keyword tables: %w", err)
	}

	interests := make(map[string][]relevance.Category, len(tables.InterestCategories))
	for interest, cats := range tables.InterestCategories {
		for _, c := range cats {
			if !c.IsValid() {
				return nil, fmt.Errorf("interest %q: unknown category %q", interest, c)
			}
		}
		interests[strings.ToLower(strings.TrimSpace(interest))] = cats
	}
	tables.InterestCategories = interests

	for scope := range tables.ImpactSignals {
		if scope.Rank() == 0 {
			return nil, fmt.Errorf("unknown impact scope %q", scope)
		}
	}
	for signal := range tables.WorkStyleSignals {
		switch signal {
		case relevance.SignalSolo, relevance.SignalTeam, relevance.SignalOrganization:
		default:
			return nil, fmt.Errorf("unknown work style signal %q", signal)
		}
	}

	return &tables, nil
}
