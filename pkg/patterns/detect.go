package patterns

import (
	"sort"
	"strings"

	"github.com/atlasgraph/atlas/pkg/utils"
)

// CandidateEntity is an extracted entity before dedup and persistence.
type CandidateEntity struct {
	EntityType string
	Name       string
	Attributes map[string]string
	Confidence float64
	// Pattern is the name of the rule that produced the candidate.
	Pattern string
	// Start/End delimit the match span in the input text.
	Start int
	End   int
	// Excerpt is the matched text, kept as evidence.
	Excerpt string
}

// CandidateRelationship is an inferred relationship between two candidate
// entities from the same document.
type CandidateRelationship struct {
	SourceName string
	SourceType string
	TargetName string
	TargetType string
	RelType    string
	Confidence float64
	Pattern    string
	Excerpt    string
}

// Detection is the result of matching one document against a registry.
type Detection struct {
	Entities      []CandidateEntity
	Relationships []CandidateRelationship
}

// clauseBounds returns the span of the clause containing [start, end),
// delimited by sentence punctuation or newlines.
func clauseBounds(text string, start, end int) (int, int) {
	isDelim := func(b byte) bool {
		return b == '.' || b == '!' || b == '?' || b == ';' || b == '\n'
	}
	cs := start
	for cs > 0 && !isDelim(text[cs-1]) {
		cs--
	}
	ce := end
	for ce < len(text) && !isDelim(text[ce]) {
		ce++
	}
	return cs, ce
}

// matchQuality scores how much of its clause a match covers, normalized
// into [0.5, 1.0] so even a short match inside a long clause keeps half
// the pattern's base weight.
func matchQuality(text string, start, end int) float64 {
	cs, ce := clauseBounds(text, start, end)
	clause := strings.TrimSpace(text[cs:ce])
	if len(clause) == 0 {
		return 1.0
	}
	coverage := float64(end-start) / float64(len(clause))
	if coverage > 1 {
		coverage = 1
	}
	return 0.5 + 0.5*coverage
}

// Detect matches every registered pattern against the text. Patterns are
// evaluated in registration order and candidates are reported in
// (pattern, offset) order, so output is deterministic.
func (r *Registry) Detect(text string) *Detection {
	det := &Detection{}

	for _, p := range r.patterns {
		matches := p.re.FindAllStringSubmatchIndex(text, -1)
		for _, loc := range matches {
			start, end := loc[0], loc[1]
			match := make([]string, len(loc)/2)
			for i := 0; i < len(loc)/2; i++ {
				if loc[2*i] >= 0 {
					match[i] = text[loc[2*i]:loc[2*i+1]]
				}
			}
			groups := groupValues(p.re, match)
			confidence := utils.ClampScore(p.BaseWeight * matchQuality(text, start, end))
			excerpt := text[start:end]

			for _, rule := range p.Entities {
				name := strings.TrimSpace(expandTemplate(rule.Name, groups))
				if name == "" {
					continue
				}
				attrs := make(map[string]string, len(rule.Attributes))
				for k, v := range rule.Attributes {
					if val := strings.TrimSpace(expandTemplate(v, groups)); val != "" {
						attrs[k] = val
					}
				}
				det.Entities = append(det.Entities, CandidateEntity{
					EntityType: rule.EntityType,
					Name:       name,
					Attributes: attrs,
					Confidence: confidence,
					Pattern:    p.Name,
					Start:      start,
					End:        end,
					Excerpt:    excerpt,
				})
			}
		}
	}

	// Duplicate candidates within one document collapse to the highest
	// confidence mention.
	det.Entities = collapseCandidates(det.Entities)

	byType := make(map[string][]int)
	for i, c := range det.Entities {
		byType[c.EntityType] = append(byType[c.EntityType], i)
	}

	// Relationship inference over co-occurring entity types.
	seen := make(map[string]bool)
	for _, p := range r.patterns {
		for _, impl := range p.Implies {
			weight := impl.Weight
			if weight == 0 {
				weight = 1.0
			}
			for _, si := range byType[impl.SourceType] {
				for _, ti := range byType[impl.TargetType] {
					src, tgt := det.Entities[si], det.Entities[ti]
					if src.Name == tgt.Name && src.EntityType == tgt.EntityType {
						continue
					}
					key := src.EntityType + "|" + src.Name + "|" + impl.RelType + "|" + tgt.EntityType + "|" + tgt.Name
					if seen[key] {
						continue
					}
					seen[key] = true

					confidence := src.Confidence
					if tgt.Confidence < confidence {
						confidence = tgt.Confidence
					}
					det.Relationships = append(det.Relationships, CandidateRelationship{
						SourceName: src.Name,
						SourceType: src.EntityType,
						TargetName: tgt.Name,
						TargetType: tgt.EntityType,
						RelType:    impl.RelType,
						Confidence: utils.ClampScore(confidence * weight),
						Pattern:    p.Name,
						Excerpt:    src.Excerpt,
					})
				}
			}
		}
	}

	return det
}

// collapseCandidates merges same-(type,name) mentions, keeping the
// highest confidence and the union of attributes, and preserves first
// occurrence order.
func collapseCandidates(candidates []CandidateEntity) []CandidateEntity {
	type key struct{ entityType, name string }
	index := make(map[key]int)
	var out []CandidateEntity

	for _, c := range candidates {
		k := key{c.EntityType, utils.NormalizeName(c.Name)}
		if i, ok := index[k]; ok {
			if c.Confidence > out[i].Confidence {
				out[i].Confidence = c.Confidence
				out[i].Excerpt = c.Excerpt
			}
			for ak, av := range c.Attributes {
				if _, exists := out[i].Attributes[ak]; !exists {
					out[i].Attributes[ak] = av
				}
			}
			continue
		}
		index[k] = len(out)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Name < out[j].Name
	})
	return out
}
