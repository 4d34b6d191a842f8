package planner

import (
	"fmt"
	"sort"
	"strings"

	"stridecoach/internal/corpus"
)

// SelectTemplate picks the session template for a (philosophy, session_type,
// phase) triple: highest priority wins, ties break lexicographically on
// template id.
func SelectTemplate(store *corpus.Store, philosophyID, sessionType string, phase Phase) (*corpus.Template, error) {
	candidates := store.TemplatesFor(philosophyID, sessionType, string(phase))
	if len(candidates) == 0 {
		candidates = store.TemplatesFor(philosophyID, sessionType, "")
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no template for philosophy %s session type %s", philosophyID, sessionType)
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Metadata.Priority != candidates[b].Metadata.Priority {
			return candidates[a].Metadata.Priority > candidates[b].Metadata.Priority
		}
		return candidates[a].TemplateID < candidates[b].TemplateID
	})
	return &candidates[0], nil
}

// ResolveParams instantiates a template's bounded parameters against the
// allocated distance. Distance-like parameters (suffix _mi) start at the
// midpoint, then move toward the range bound closest to the allocation;
// everything else resolves to its midpoint.
func ResolveParams(tmpl *corpus.Template, allocatedMiles float64) map[string]float64 {
	resolved := make(map[string]float64, len(tmpl.Params))
	for name, r := range tmpl.Params {
		if strings.HasSuffix(name, "_mi") || strings.HasSuffix(name, "_mi_range") {
			resolved[name] = r.Clamp(allocatedMiles)
			continue
		}
		resolved[name] = r.Mid()
	}
	return resolved
}
