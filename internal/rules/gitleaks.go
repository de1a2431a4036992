package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// GitleaksPrefix namespaces rule ids imported from the gitleaks pack.
const GitleaksPrefix = "gitleaks:"

// gitleaksConfidence is the fixed score of imported rules. They are
// vendor-specific formats, but broader than the built-in table.
const gitleaksConfidence = 90

// gitleaksExcluded lists pack rules that overlap the heuristic rules.
var gitleaksExcluded = map[string]bool{
	"generic-api-key": true,
}

// gitleaksPatterns converts the gitleaks default rule pack into pattern
// rules, ordered by id so the table is deterministic.
func gitleaksPatterns() ([]*Rule, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks default config: %w", err)
	}

	ids := make([]string, 0, len(detector.Config.Rules))
	for id, r := range detector.Config.Rules {
		if r.Regex == nil || gitleaksExcluded[id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Rule, 0, len(ids))
	for _, id := range ids {
		gr := detector.Config.Rules[id]

		// Recompile through the standard library so the table does not
		// depend on which regexp engine gitleaks was built with.
		re, err := regexp.Compile(gr.Regex.String())
		if err != nil {
			continue
		}

		group := gr.SecretGroup
		if group < 0 || group > re.NumSubexp() {
			group = 0
		}

		keywords := make([]string, 0, len(gr.Keywords))
		for _, kw := range gr.Keywords {
			keywords = append(keywords, strings.ToLower(kw))
		}

		reason := gr.Description
		if reason == "" {
			reason = id
		}

		out = append(out, &Rule{
			ID:             GitleaksPrefix + id,
			Kind:           KindPattern,
			Description:    gr.Description,
			ConfidenceBase: gitleaksConfidence,
			Reason:         reason,
			Pattern:        re,
			SecretGroup:    group,
			Keywords:       keywords,
			MinEntropy:     gr.Entropy,
		})
	}
	return out, nil
}
