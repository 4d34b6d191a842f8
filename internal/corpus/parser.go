package corpus

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError is a corpus document parse failure with a stable code.
type ParseError struct {
	Code    string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func parseErrf(code, format string, args ...any) *ParseError {
	return &ParseError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	frontmatterRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)$`)
	specBlockRe   = regexp.MustCompile("(?s)```(philosophy_spec|structure_spec|template_spec|template_sets)\\s*\n(.*?)```")
)

// UnmarshalYAML accepts a Range either as a two-element list [min, max] or as
// a {min, max} mapping.
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var pair []float64
		if err := node.Decode(&pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("range list must have exactly 2 elements, got %d", len(pair))
		}
		r.Min, r.Max = pair[0], pair[1]
		return nil
	}
	var m struct {
		Min float64 `yaml:"min"`
		Max float64 `yaml:"max"`
	}
	if err := node.Decode(&m); err != nil {
		return err
	}
	r.Min, r.Max = m.Min, m.Max
	return nil
}

// rawRules mirrors the on-disk rules block, where the long-run requirement is
// nested.
type rawRules struct {
	HardDaysMax           int  `yaml:"hard_days_max"`
	NoConsecutiveHardDays bool `yaml:"no_consecutive_hard_days"`
	LongRun               struct {
		RequiredCount int `yaml:"required_count"`
	} `yaml:"long_run"`
	TaperDaysToRaceLE int `yaml:"taper_days_to_race_le"`
}

type rawStructureSpec struct {
	WeekPattern   map[string]string   `yaml:"week_pattern"`
	Rules         rawRules            `yaml:"rules"`
	SessionGroups map[string][]string `yaml:"session_groups"`
}

type rawPhilosophySpec struct {
	Intensity map[string]Range `yaml:"intensity_distribution"`
	HardDays  int              `yaml:"max_hard_days"`
	Requires  []string         `yaml:"requires"`
	Prohibits []string         `yaml:"prohibits"`
	Summary   string           `yaml:"summary"`
	Embedding []float32        `yaml:"embedding"`
}

type rawTemplate struct {
	ID          string           `yaml:"id"`
	SessionType string           `yaml:"session_type"`
	Priority    int              `yaml:"priority"`
	Params      map[string]Range `yaml:"params"`
	Constraints map[string]Range `yaml:"constraints"`
	Description string           `yaml:"description"`
}

type rawTemplateSpec struct {
	Templates []rawTemplate `yaml:"templates"`
}

// Parse parses one corpus document from its raw markdown content.
func Parse(content string) (*Document, error) {
	match := frontmatterRe.FindStringSubmatch(content)
	if match == nil {
		return nil, parseErrf("MISSING_FRONTMATTER", "missing or malformed YAML front-matter")
	}

	var meta Metadata
	if err := yaml.Unmarshal([]byte(match[1]), &meta); err != nil {
		return nil, parseErrf("INVALID_FRONTMATTER_YAML", "invalid front-matter YAML: %v", err)
	}
	if meta.ID == "" {
		return nil, parseErrf("MISSING_FRONTMATTER_FIELD", "front-matter missing required field 'id'")
	}
	body := match[2]

	blocks := specBlockRe.FindAllStringSubmatch(body, -1)
	if len(blocks) == 0 {
		return nil, parseErrf("MISSING_SPEC_BLOCK", "no spec block found in %s", meta.ID)
	}
	if len(blocks) > 1 {
		return nil, parseErrf("MULTIPLE_SPEC_BLOCKS", "found %d spec blocks in %s, expected exactly one", len(blocks), meta.ID)
	}
	lang := blocks[0][1]
	specText := strings.TrimSpace(blocks[0][2])

	doc := &Document{Metadata: meta}

	switch meta.Domain {
	case DomainPhilosophy:
		if lang != "philosophy_spec" {
			return nil, parseErrf("INVALID_DOC_TYPE", "philosophy document %s carries %s block", meta.ID, lang)
		}
		var raw rawPhilosophySpec
		if err := yaml.Unmarshal([]byte(specText), &raw); err != nil {
			return nil, parseErrf("INVALID_SPEC_YAML", "invalid YAML in philosophy_spec of %s: %v", meta.ID, err)
		}
		doc.Philosophy = &Philosophy{
			Metadata:  meta,
			Intensity: raw.Intensity,
			HardDays:  raw.HardDays,
			Requires:  raw.Requires,
			Prohibits: raw.Prohibits,
			Summary:   raw.Summary,
			Embedding: raw.Embedding,
		}

	case DomainStructure:
		if lang != "structure_spec" {
			return nil, parseErrf("INVALID_DOC_TYPE", "structure document %s carries %s block", meta.ID, lang)
		}
		var raw rawStructureSpec
		if err := yaml.Unmarshal([]byte(specText), &raw); err != nil {
			return nil, parseErrf("INVALID_SPEC_YAML", "invalid YAML in structure_spec of %s: %v", meta.ID, err)
		}
		if len(raw.WeekPattern) == 0 {
			return nil, parseErrf("MISSING_WEEK_PATTERN", "structure %s missing week_pattern", meta.ID)
		}
		if len(raw.SessionGroups) == 0 {
			return nil, parseErrf("MISSING_SESSION_GROUPS", "structure %s missing session_groups", meta.ID)
		}
		structure := &Structure{
			Metadata:    meta,
			WeekPattern: raw.WeekPattern,
			Rules: StructureRules{
				HardDaysMax:           raw.Rules.HardDaysMax,
				NoConsecutiveHardDays: raw.Rules.NoConsecutiveHardDays,
				LongRunRequiredCount:  raw.Rules.LongRun.RequiredCount,
				TaperDaysToRaceLE:     raw.Rules.TaperDaysToRaceLE,
			},
			SessionGroups: raw.SessionGroups,
		}
		if err := structure.Validate(); err != nil {
			return nil, parseErrf("INVALID_STRUCTURE", "%v", err)
		}
		doc.Structure = structure

	case DomainTemplate:
		// Both template_spec and the legacy template_sets block name are
		// accepted; the payload shape is identical.
		if lang != "template_spec" && lang != "template_sets" {
			return nil, parseErrf("INVALID_DOC_TYPE", "template document %s carries %s block", meta.ID, lang)
		}
		var raw rawTemplateSpec
		if err := yaml.Unmarshal([]byte(specText), &raw); err != nil {
			return nil, parseErrf("INVALID_SPEC_YAML", "invalid YAML in %s of %s: %v", lang, meta.ID, err)
		}
		if len(raw.Templates) == 0 {
			return nil, parseErrf("MISSING_TEMPLATES", "template document %s defines no templates", meta.ID)
		}
		for _, rt := range raw.Templates {
			if rt.ID == "" || rt.SessionType == "" {
				return nil, parseErrf("INVALID_TEMPLATE", "template in %s missing id or session_type", meta.ID)
			}
			params := rt.Params
			// Constraints are an older spelling of params; merge, params win.
			if len(rt.Constraints) > 0 {
				merged := make(map[string]Range, len(rt.Constraints)+len(params))
				for k, v := range rt.Constraints {
					merged[k] = v
				}
				for k, v := range params {
					merged[k] = v
				}
				params = merged
			}
			tmplMeta := meta
			if rt.Priority != 0 {
				tmplMeta.Priority = rt.Priority
			}
			doc.Templates = append(doc.Templates, Template{
				Metadata:    tmplMeta,
				TemplateID:  rt.ID,
				SessionType: rt.SessionType,
				Params:      params,
				Description: rt.Description,
			})
		}

	default:
		return nil, parseErrf("INVALID_DOC_TYPE", "unknown domain %q in %s", meta.Domain, meta.ID)
	}

	return doc, nil
}
