package report

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sieve/internal/scan"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	toolName     = "sieve"
)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID string `json:"id"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"` // error, warning, note
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints"`
	BaselineState       string            `json:"baselineState,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndColumn   int `json:"endColumn"`
}

func toSARIF(r *scan.Report, version string) sarifLog {
	results := make([]sarifResult, 0, len(r.Findings))
	seen := map[string]bool{}
	var ruleIDs []sarifRule

	for _, f := range r.Findings {
		if !seen[f.RuleID] {
			seen[f.RuleID] = true
			ruleIDs = append(ruleIDs, sarifRule{ID: f.RuleID})
		}

		uri := strings.TrimSpace(f.FilePath)
		if uri == "" {
			uri = "UNKNOWN"
		}
		res := sarifResult{
			RuleID:  f.RuleID,
			Level:   sevToLevel(f.Severity),
			Message: sarifMessage{Text: fmt.Sprintf("%s: %s (score %d)", f.RuleID, f.Preview, f.Score)},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: uri},
					Region: sarifRegion{
						StartLine:   max(f.Line, 1),
						StartColumn: f.Span.Start + 1,
						EndColumn:   f.Span.End + 1,
					},
				},
			}},
			PartialFingerprints: map[string]string{"sieve/v1": f.Fingerprint.String()},
		}
		if f.Baselined {
			res.BaselineState = "unchanged"
		}
		results = append(results, res)
	}

	return sarifLog{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: toolName, Version: version, Rules: ruleIDs}},
			Results: results,
		}},
	}
}

func sevToLevel(s scan.Severity) string {
	switch s {
	case scan.SeverityHigh:
		return "error"
	case scan.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
