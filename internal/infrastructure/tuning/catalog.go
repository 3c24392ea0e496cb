package tuning

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/relevance"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is curriculum structure and candidate projects for the in-memory driver.
type Catalog struct {
	Modules    []curriculum.Module
	Activities []curriculum.Activity
	Projects   []relevance.Project
}

type catalogFile struct {
	Modules []struct {
		ID          string `yaml:"id"`
		Title       string `yaml:"title"`
		Order       int    `yaml:"order"`
		Unpublished bool   `yaml:"unpublished"`
		Activities  []struct {
			ID       string `yaml:"id"`
			Title    string `yaml:"title"`
			Order    int    `yaml:"order"`
			Optional bool   `yaml:"optional"`
		} `yaml:"activities"`
	} `yaml:"modules"`
	Projects []struct {
		ID          string             `yaml:"id"`
		Title       string             `yaml:"title"`
		Description string             `yaml:"description"`
		Category    relevance.Category `yaml:"category"`
	} `yaml:"projects"`
}

// LoadCatalog reads a catalog from path, or the embedded demo catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog. Published modules
// must be numbered 1..N without gaps.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	catalog := &Catalog{}
	published := make(map[int]bool)
	seen := make(map[string]bool)

	for _, m := range file.Modules {
		module := curriculum.Module{
			ID:         curriculum.ModuleID(m.ID),
			Title:      m.Title,
			OrderIndex: m.Order,
			Status:     curriculum.PublicationPublished,
		}
		if m.Unpublished {
			module.Status = curriculum.PublicationUnpublished
		}
		if !module.ID.IsValid() || seen[m.ID] {
			return nil, fmt.Errorf("module %q: empty or duplicate id", m.ID)
		}
		seen[m.ID] = true
		if module.IsPublished() {
			if m.Order < 1 || published[m.Order] {
				return nil, fmt.Errorf("module %q: invalid or duplicate order %d", m.ID, m.Order)
			}
			published[m.Order] = true
		}
		catalog.Modules = append(catalog.Modules, module)

		for _, a := range m.Activities {
			if a.ID == "" || seen[a.ID] {
				return nil, fmt.Errorf("activity %q: empty or duplicate id", a.ID)
			}
			seen[a.ID] = true
			catalog.Activities = append(catalog.Activities, curriculum.Activity{
				ID:                    curriculum.ActivityID(a.ID),
				ModuleID:              module.ID,
				Title:                 a.Title,
				OrderIndex:            a.Order,
				RequiredForCompletion: !a.Optional,
			})
		}
	}
	for i := 1; i <= len(published); i++ {
		if !published[i] {
			return nil, fmt.Errorf("published modules must be numbered 1..%d, missing %d", len(published), i)
		}
	}

	for _, p := range file.Projects {
		if !p.Category.IsValid() {
			return nil, fmt.Errorf("project %q: unknown category %q", p.ID, p.Category)
		}
		catalog.Projects = append(catalog.Projects, relevance.Project{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Category:    p.Category,
		})
	}
	return catalog, nil
}
