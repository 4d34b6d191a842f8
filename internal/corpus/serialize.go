package corpus

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarshalYAML emits a Range in its canonical list form [min, max].
func (r Range) MarshalYAML() (any, error) {
	return []float64{r.Min, r.Max}, nil
}

type serRules struct {
	HardDaysMax           int  `yaml:"hard_days_max"`
	NoConsecutiveHardDays bool `yaml:"no_consecutive_hard_days"`
	LongRun               struct {
		RequiredCount int `yaml:"required_count"`
	} `yaml:"long_run"`
	TaperDaysToRaceLE int `yaml:"taper_days_to_race_le,omitempty"`
}

// Serialize renders a document back to its canonical markdown form. Parsing
// the output yields a document equal to the input; field order and block
// names are normalized, so the text itself is canonical rather than a copy
// of whatever was parsed.
func Serialize(doc *Document) (string, error) {
	front, err := yaml.Marshal(&doc.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode front-matter: %w", err)
	}

	var lang string
	var spec any
	switch doc.Metadata.Domain {
	case DomainPhilosophy:
		if doc.Philosophy == nil {
			return "", fmt.Errorf("philosophy document %s has no philosophy payload", doc.Metadata.ID)
		}
		lang = "philosophy_spec"
		spec = rawPhilosophySpec{
			Intensity: doc.Philosophy.Intensity,
			HardDays:  doc.Philosophy.HardDays,
			Requires:  doc.Philosophy.Requires,
			Prohibits: doc.Philosophy.Prohibits,
			Summary:   doc.Philosophy.Summary,
			Embedding: doc.Philosophy.Embedding,
		}
	case DomainStructure:
		if doc.Structure == nil {
			return "", fmt.Errorf("structure document %s has no structure payload", doc.Metadata.ID)
		}
		lang = "structure_spec"
		rules := serRules{
			HardDaysMax:           doc.Structure.Rules.HardDaysMax,
			NoConsecutiveHardDays: doc.Structure.Rules.NoConsecutiveHardDays,
			TaperDaysToRaceLE:     doc.Structure.Rules.TaperDaysToRaceLE,
		}
		rules.LongRun.RequiredCount = doc.Structure.Rules.LongRunRequiredCount
		spec = struct {
			WeekPattern   map[string]string   `yaml:"week_pattern"`
			Rules         serRules            `yaml:"rules"`
			SessionGroups map[string][]string `yaml:"session_groups"`
		}{doc.Structure.WeekPattern, rules, doc.Structure.SessionGroups}
	case DomainTemplate:
		if len(doc.Templates) == 0 {
			return "", fmt.Errorf("template document %s has no templates", doc.Metadata.ID)
		}
		lang = "template_spec"
		raw := rawTemplateSpec{Templates: make([]rawTemplate, 0, len(doc.Templates))}
		for _, t := range doc.Templates {
			raw.Templates = append(raw.Templates, rawTemplate{
				ID:          t.TemplateID,
				SessionType: t.SessionType,
				Priority:    t.Metadata.Priority,
				Params:      t.Params,
				Description: t.Description,
			})
		}
		spec = raw
	default:
		return "", fmt.Errorf("unknown domain %q in %s", doc.Metadata.Domain, doc.Metadata.ID)
	}

	body, err := yaml.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", lang, err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(front)
	sb.WriteString("---\n\n```")
	sb.WriteString(lang)
	sb.WriteString("\n")
	sb.Write(body)
	sb.WriteString("```\n")
	return sb.String(), nil
}
