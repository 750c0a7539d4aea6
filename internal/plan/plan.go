// Package plan expands a classification into an ordered set of document
// production steps. Ordering is topological over the per-type dependency
// tables: every planned document appears after everything it depends on.
package plan

import (
	"fmt"

	"github.com/imkarma/steward/internal/artifact"
	"github.com/imkarma/steward/internal/classify"
)

// Build returns the documents to produce for a classification, in
// dependency order. The shared common document is scheduled before any
// document that references it, and is included exactly once no matter
// how many planned documents depend on it.
func Build(c classify.Classification) ([]artifact.Spec, error) {
	selected := map[artifact.Type]bool{}
	for _, t := range c.RequiredArtifacts {
		if !artifact.Valid(t) {
			return nil, fmt.Errorf("unknown artifact type %q in classification", t)
		}
		selected[t] = true
	}
	if len(selected) == 0 {
		return nil, nil
	}

	// Pull in the shared common document when anything references it.
	for t := range selected {
		def, _ := artifact.Lookup(t)
		for _, dep := range def.DependsOn {
			if dep == artifact.TypeCommon {
				selected[artifact.TypeCommon] = true
			}
		}
	}

	// A planned document only depends on documents that are themselves
	// planned; table entries for absent types are ignored.
	specs := map[artifact.Type]artifact.Spec{}
	for t := range selected {
		def, _ := artifact.Lookup(t)
		var deps []artifact.Type
		for _, dep := range def.DependsOn {
			if selected[dep] {
				deps = append(deps, dep)
			}
		}
		specs[t] = artifact.Spec{Type: t, Mandatory: true, DependsOn: deps}
	}

	return sortSpecs(specs)
}

// sortSpecs is a stable topological sort (Kahn's algorithm) over the
// artifact table's fixed type order. The tables are static, but a cycle
// is still an error rather than a hang.
func sortSpecs(specs map[artifact.Type]artifact.Spec) ([]artifact.Spec, error) {
	indegree := map[artifact.Type]int{}
	for t, s := range specs {
		indegree[t] += 0
		for range s.DependsOn {
			indegree[t]++
		}
	}

	var out []artifact.Spec
	placed := map[artifact.Type]bool{}

	for len(out) < len(specs) {
		progressed := false
		for _, t := range artifact.Types() {
			s, ok := specs[t]
			if !ok || placed[t] {
				continue
			}
			ready := true
			for _, dep := range s.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				out = append(out, s)
				placed[t] = true
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("dependency cycle among planned artifacts")
		}
	}

	return out, nil
}

// ConsistencyScope decides whether a consistency check against existing
// documents is worth dispatching at all.
type ConsistencyScope struct {
	Targets []string
	Skipped bool
	Reason  string
}

// Consistency short-circuits when there is nothing to compare against:
// with zero targets no conflict is possible, so running full analysis
// would only waste a worker call and invite false positives.
func Consistency(targets []string) ConsistencyScope {
	if len(targets) == 0 {
		return ConsistencyScope{
			Skipped: true,
			Reason:  "no comparison targets exist; no conflicts possible",
		}
	}
	return ConsistencyScope{Targets: targets}
}
