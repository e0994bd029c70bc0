/*
resource.go - Pipeline registration and lookup

PURPOSE:
  Provides a registry for service packages to register their pricing
  pipelines. The engine, the API and the CLI enumerate categories
  through the registry without importing every family directly.

HOW IT WORKS:
  1. Service packages define a Pipeline per category
  2. They register them from init()
  3. Engine/API/CLI look categories up by name

USAGE:
  // In services/shore.go
  func init() {
      generic.RegisterPipeline(SaltPipeline())
  }

  // In the engine
  p, err := generic.LookupPipeline("salt")

WHY A REGISTRY:
  - Generic package stays service-agnostic
  - Categories are addressable by name from HTTP and the command line
  - Families own their pipelines

SEE ALSO:
  - pipeline.go: Pipeline definition
  - services/: Concrete pipelines
*/
package generic

import (
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// PIPELINE REGISTRY
// =============================================================================

var (
	pipelineRegistry = make(map[string]Pipeline)
	registryMu       sync.RWMutex
)

// RegisterPipeline adds a pipeline to the global registry.
// Call this from service package init() functions.
func RegisterPipeline(p Pipeline) {
	registryMu.Lock()
	defer registryMu.Unlock()
	pipelineRegistry[p.Category] = p
}

// LookupPipeline finds a registered pipeline by category.
func LookupPipeline(category string) (Pipeline, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := pipelineRegistry[category]
	if !ok {
		return Pipeline{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}
	return p, nil
}

// MustLookupPipeline finds a registered pipeline or panics.
// Use in tests or when you're certain the category exists.
func MustLookupPipeline(category string) Pipeline {
	p, err := LookupPipeline(category)
	if err != nil {
		panic(err)
	}
	return p
}

// ListPipelines returns all registered pipelines sorted by category.
func ListPipelines() []Pipeline {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Pipeline, 0, len(pipelineRegistry))
	for _, p := range pipelineRegistry {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Category < result[j].Category })
	return result
}

// SelectPipelines resolves categories; an empty list selects every pipeline.
func SelectPipelines(categories []string) ([]Pipeline, error) {
	if len(categories) == 0 {
		return ListPipelines(), nil
	}
	out := make([]Pipeline, 0, len(categories))
	for _, c := range categories {
		p, err := LookupPipeline(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// RequiredSources returns the union of source tables of pipelines, sorted.
func RequiredSources(pipelines []Pipeline) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range pipelines {
		for _, s := range p.Sources {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}
