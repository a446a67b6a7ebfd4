// Package patterns implements the rule-based extraction pipeline:
// registered patterns are matched against raw text, candidate entities and
// relationships are scored, deduplicated against the graph, and persisted.
// Extraction is fully deterministic; identical input always yields
// identical candidates.
package patterns

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/atlasgraph/atlas/pkg/types"
)

// EntityRule describes one entity a pattern match produces. Name and
// attribute values may reference named capture groups as ${group}.
type EntityRule struct {
	EntityType string            `yaml:"entity_type"`
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// Implication declares that co-occurring entities of two types imply a
// relationship between them.
type Implication struct {
	SourceType string `yaml:"source_type"`
	TargetType string `yaml:"target_type"`
	RelType    string `yaml:"rel_type"`
	// Weight scales the inferred confidence, default 1.0.
	Weight float64 `yaml:"weight,omitempty"`
}

// Pattern is one matching rule. A match against text yields the declared
// entities with confidence BaseWeight scaled by how much of the
// surrounding clause the match covers.
type Pattern struct {
	Name       string        `yaml:"name"`
	Expr       string        `yaml:"expr"`
	BaseWeight float64       `yaml:"base_weight"`
	Entities   []EntityRule  `yaml:"entities"`
	Implies    []Implication `yaml:"implies,omitempty"`

	re *regexp.Regexp
}

func (p *Pattern) compile() error {
	if p.Name == "" {
		return types.NewValidationError("name", "pattern name cannot be empty")
	}
	if p.BaseWeight < 0 || p.BaseWeight > 1 {
		return types.NewValidationError("base_weight", fmt.Sprintf("pattern %s: must be in [0,1]", p.Name))
	}
	if len(p.Entities) == 0 {
		return types.NewValidationError("entities", fmt.Sprintf("pattern %s: must declare at least one entity", p.Name))
	}
	re, err := regexp.Compile(p.Expr)
	if err != nil {
		return fmt.Errorf("pattern %s: invalid expr: %w", p.Name, err)
	}
	p.re = re
	return nil
}

// Registry holds an ordered pattern set. It is passed explicitly to the
// engine, never kept as package state, so isolated instances can coexist
// in tests.
type Registry struct {
	patterns []*Pattern
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register compiles and appends patterns. Evaluation order is
// registration order.
func (r *Registry) Register(patterns ...*Pattern) error {
	for _, p := range patterns {
		if err := p.compile(); err != nil {
			return err
		}
		r.patterns = append(r.patterns, p)
	}
	return nil
}

// Patterns returns the registered patterns in evaluation order.
func (r *Registry) Patterns() []*Pattern {
	return r.patterns
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	return len(r.patterns)
}

type patternFile struct {
	Patterns []*Pattern `yaml:"patterns"`
}

// LoadYAML registers patterns from a YAML document of the form:
//
//	patterns:
//	  - name: ...
//	    expr: ...
//	    base_weight: 0.9
//	    entities: [...]
func (r *Registry) LoadYAML(reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read pattern file: %w", err)
	}
	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse pattern file: %w", err)
	}
	return r.Register(file.Patterns...)
}

// LoadFile registers patterns from a YAML file on disk.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open pattern file: %w", err)
	}
	defer f.Close()
	return r.LoadYAML(f)
}

// expandTemplate substitutes ${group} references with captured values.
func expandTemplate(template string, groups map[string]string) string {
	return os.Expand(template, func(name string) string {
		return groups[name]
	})
}

// DefaultRegistry returns the built-in cloud-security pattern set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Built-ins are vetted; a compile failure here is a programming error.
	if err := r.Register(defaultPatterns()...); err != nil {
		panic(err)
	}
	return r
}

func defaultPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:       "public-access",
			Expr:       `(?i)\b(?P<service>[A-Za-z0-9]+)\s+(?P<kind>bucket|database|snapshot|volume|instance)\s+(?P<resource>[A-Za-z0-9._\-]+)\s+(?:is|are)\s+(?:publicly|anonymously)\s+(?:accessible|readable|writable|exposed)`,
			BaseWeight: 0.9,
			Entities: []EntityRule{
				{
					EntityType: types.EntityTypeFinding,
					Name:       "public access to ${resource}",
					Attributes: map[string]string{
						"resource": "${resource}",
						"service":  "${service}",
						"category": "public_access",
					},
				},
				{
					EntityType: types.EntityTypeService,
					Name:       "${service}",
				},
			},
			Implies: []Implication{
				{SourceType: types.EntityTypeFinding, TargetType: types.EntityTypeService, RelType: types.RelTypeAffects},
			},
		},
		{
			Name:       "unencrypted-storage",
			Expr:       `(?i)\b(?P<resource>[A-Za-z0-9._\-]+)\s+(?:is|are)\s+(?:unencrypted|not\s+encrypted|stored\s+without\s+encryption)`,
			BaseWeight: 0.85,
			Entities: []EntityRule{
				{
					EntityType: types.EntityTypeFinding,
					Name:       "unencrypted storage on ${resource}",
					Attributes: map[string]string{
						"resource": "${resource}",
						"category": "encryption",
					},
				},
			},
		},
		{
			Name:       "open-security-group",
			Expr:       `(?i)\bsecurity\s+group\s+(?P<resource>[A-Za-z0-9._\-]+)\s+allows\s+(?:ingress|inbound|access)\s+from\s+(?P<cidr>[0-9./]+|anywhere|the\s+internet)`,
			BaseWeight: 0.9,
			Entities: []EntityRule{
				{
					EntityType: types.EntityTypeFinding,
					Name:       "open security group ${resource}",
					Attributes: map[string]string{
						"resource": "${resource}",
						"cidr":     "${cidr}",
						"category": "network_exposure",
					},
				},
				{
					EntityType: types.EntityTypeResource,
					Name:       "${resource}",
				},
			},
			Implies: []Implication{
				{SourceType: types.EntityTypeFinding, TargetType: types.EntityTypeResource, RelType: types.RelTypeAffects},
			},
		},
		{
			Name:       "missing-mfa",
			Expr:       `(?i)\b(?:user|account|role)\s+(?P<principal>[A-Za-z0-9._\-@]+)\s+(?:has\s+no|lacks|is\s+missing|without)\s+mfa`,
			BaseWeight: 0.8,
			Entities: []EntityRule{
				{
					EntityType: types.EntityTypeFinding,
					Name:       "missing mfa for ${principal}",
					Attributes: map[string]string{
						"principal": "${principal}",
						"category":  "identity",
					},
				},
			},
		},
		{
			Name:       "mitigation",
			Expr:       `(?i)\b(?P<control>[A-Za-z0-9][A-Za-z0-9 _\-]*?)\s+mitigates\s+(?P<target>[A-Za-z0-9][A-Za-z0-9 _\-]*)`,
			BaseWeight: 0.8,
			Entities: []EntityRule{
				{
					EntityType: types.EntityTypeControl,
					Name:       "${control}",
					Attributes: map[string]string{
						"mitigates": "${target}",
					},
				},
				// The mitigated finding is a candidate too, so the
				// implication below fires even when no other pattern
				// matches in the same document. Dedup merges it into
				// the stored finding when one already exists.
				{
					EntityType: types.EntityTypeFinding,
					Name:       "${target}",
				},
			},
			Implies: []Implication{
				{SourceType: types.EntityTypeControl, TargetType: types.EntityTypeFinding, RelType: types.RelTypeMitigates},
			},
		},
	}
}

// groupValues extracts named capture values for one match.
func groupValues(re *regexp.Regexp, match []string) map[string]string {
	groups := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name == "" || i >= len(match) {
			continue
		}
		groups[name] = strings.TrimSpace(match[i])
	}
	return groups
}
