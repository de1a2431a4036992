package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/sieve/internal/entropy"
)

// Heuristic rule ids.
const (
	KeywordAssignmentID  = "keyword-assignment"
	EntropyNearKeywordID = "entropy-near-keyword"
)

// triggerWords is the alternation of secret-like names.
const triggerWords = `secret|token|passwd|password|pwd|api[_-]?key|apikey|access[_-]?key|private[_-]?key|signing[_-]?key|encryption[_-]?key|client[_-]?secret|auth|credential`

var (
	// triggerRe finds a secret-like word anywhere in a line.
	triggerRe = regexp.MustCompile(`(?i)(?:` + triggerWords + `)`)

	// assignmentRe matches `name = "value"`, `name: 'value'`, `NAME=value`.
	// Groups: 1 name, 2 double-quoted, 3 single-quoted, 4 backquoted, 5 bare.
	assignmentRe = regexp.MustCompile(
		`(?i)([a-z0-9_.\-]*(?:` + triggerWords + `)[a-z0-9_.\-]*)["']?\s*(?::=|=>|[:=])\s*` +
			"(?:\"([^\"]*)\"|'([^']*)'|`([^`]*)`|([^\\s\"'`,;(){}\\[\\]<>=][^\\s\"'`,;(){}\\[\\]<>]*))")

	// candidateRe finds token-shaped runs for the proximity heuristic.
	candidateRe = regexp.MustCompile(`[A-Za-z0-9+/=_\-.~]{16,}`)

	// apiKeyShapeRe matches values shaped like provider API keys.
	apiKeyShapeRe = regexp.MustCompile(`^sk-[A-Za-z0-9_\-]{20,}$`)
)

// Score adjustments for the keyword-assignment heuristic.
const (
	scoreKeyword         = 40
	scoreHighEntropy     = 30
	scoreModerateEntropy = 20
	scoreKeyShape        = 30
	penaltyShortValue    = 20
	penaltyBareValue     = 10
	penaltyProseOrPath   = 30

	moderateEntropy   = 0.45
	moderateMinLength = 20
	shortValueLength  = 8

	proximityBase  = 30
	proximityScale = 30
)

func builtinHeuristics(scorer entropy.Scorer) []*Rule {
	return []*Rule{
		{
			ID:          KeywordAssignmentID,
			Kind:        KindHeuristic,
			Description: "Secret-like variable assigned a literal value",
			Heuristic:   keywordAssignment(scorer),
		},
		{
			ID:          EntropyNearKeywordID,
			Kind:        KindHeuristic,
			Description: "High-entropy token near a secret-like keyword",
			Heuristic:   entropyNearKeyword(scorer),
		},
	}
}

// keywordAssignment scores assignments whose left-hand side names a secret.
func keywordAssignment(scorer entropy.Scorer) HeuristicFunc {
	return func(line string) []Match {
		var out []Match
		for _, loc := range assignmentRe.FindAllStringSubmatchIndex(line, -1) {
			name := line[loc[2]:loc[3]]

			start, end, quoted := -1, -1, false
			for g := 2; g <= 5; g++ {
				if loc[2*g] >= 0 {
					start, end = loc[2*g], loc[2*g+1]
					quoted = g < 5
					break
				}
			}
			if start < 0 || start == end {
				continue
			}

			m, ok := scoreAssignment(scorer, name, line[start:end], quoted)
			if !ok {
				continue
			}
			m.Start, m.End = start, end
			out = append(out, m)
		}
		return out
	}
}

// scoreAssignment is the pure scoring step of keywordAssignment.
func scoreAssignment(scorer entropy.Scorer, name, value string, quoted bool) (Match, bool) {
	score := scoreKeyword
	reasons := []string{fmt.Sprintf("variable %q implies a secret", name)}

	prose := looksLikeProseOrPath(value)

	switch {
	case prose:
	case scorer.IsHigh(value, true):
		score += scoreHighEntropy
		reasons = append(reasons, "value has high entropy")
	case len(value) > moderateMinLength && entropy.Normalized(value) > moderateEntropy:
		score += scoreModerateEntropy
		reasons = append(reasons, "value has moderate entropy and length")
	}

	if len(value) < shortValueLength {
		score -= penaltyShortValue
		reasons = append(reasons, "value is short")
	}
	if apiKeyShapeRe.MatchString(value) {
		score += scoreKeyShape
		reasons = append(reasons, "value looks like an API key")
	}
	if !quoted {
		score -= penaltyBareValue
	}
	if prose {
		score -= penaltyProseOrPath
		reasons = append(reasons, "value looks like prose or a path")
	}

	if score <= 0 {
		return Match{}, false
	}
	return Match{Score: clamp(score), Reason: strings.Join(reasons, "; ")}, true
}

// entropyNearKeyword scores random-looking tokens on lines that mention a
// secret-like word without necessarily assigning to it.
func entropyNearKeyword(scorer entropy.Scorer) HeuristicFunc {
	return func(line string) []Match {
		if !triggerRe.MatchString(line) {
			return nil
		}

		var out []Match
		for _, loc := range candidateRe.FindAllStringIndex(line, -1) {
			tok := line[loc[0]:loc[1]]
			if triggerRe.MatchString(tok) || looksLikeProseOrPath(tok) {
				continue
			}
			// Keyword proximity corroborates hex and digit runs but not
			// plain words.
			corroborated := !lettersOnly(tok)
			if !scorer.IsHigh(tok, corroborated) {
				continue
			}
			v := scorer.Score(tok, corroborated)
			out = append(out, Match{
				Start:  loc[0],
				End:    loc[1],
				Score:  clamp(proximityBase + int(proximityScale*v)),
				Reason: "high-entropy token near a secret-like keyword",
			})
		}
		return out
	}
}

func looksLikeProseOrPath(v string) bool {
	if strings.ContainsAny(v, " \t") {
		return true
	}
	if strings.Contains(v, "://") {
		return true
	}
	return strings.HasPrefix(v, "/") || strings.HasPrefix(v, "./") || strings.HasPrefix(v, "../")
}

func lettersOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && c != '_' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
