package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sieve/internal/repair"
	"github.com/fyrsmithlabs/sieve/internal/scan"
)

const secret = "AKIA1234567890EXAMPLE"

func sampleReport(t *testing.T) *scan.Report {
	t.Helper()
	r, err := scan.New(nil, nil).ScanText(context.Background(), "config/app.py",
		"x = 1\naws_secret = \""+secret+"\"\n")
	require.NoError(t, err)
	require.Len(t, r.Findings, 1)
	r.Errors = append(r.Errors, scan.FileError{Path: "locked.txt", Err: errors.New("permission denied")})
	return r
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"human", "JSON", "sarif"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleReport(t), Options{}))
	assert.NotContains(t, buf.String(), secret)

	var out struct {
		Findings []map[string]any `json:"findings"`
		Errors   []map[string]any `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.Findings, 1)

	f := out.Findings[0]
	assert.Equal(t, float64(1), f["index"])
	assert.Equal(t, "aws-access-key", f["rule_id"])
	assert.Equal(t, "config/app.py", f["file_path"])
	assert.Equal(t, float64(2), f["line"])
	assert.Equal(t, float64(15), f["column_start"])
	assert.Equal(t, float64(35), f["column_end"])
	assert.Equal(t, "high", f["severity"])
	assert.Equal(t, "AKI*****PLE", f["preview"])
	assert.Len(t, f["fingerprint"], 64)
	assert.Equal(t, false, f["baselined"])

	require.Len(t, out.Errors, 1)
	assert.Equal(t, "locked.txt", out.Errors[0]["path"])
	assert.Equal(t, "permission denied", out.Errors[0]["error"])
}

func TestWrite_Human(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatHuman, sampleReport(t), Options{Verbose: true}))
	out := buf.String()

	assert.NotContains(t, out, secret)
	assert.Contains(t, out, "[1]")
	assert.Contains(t, out, "HIGH")
	assert.Contains(t, out, "config/app.py:2:15")
	assert.Contains(t, out, "AKI*****PLE")
	assert.Contains(t, out, "error: locked.txt: permission denied")
	assert.Contains(t, out, "1 findings (1 high, 0 medium, 0 low) in 1 files")
	assert.Contains(t, out, "1 errors")
}

func TestWrite_HumanEmpty(t *testing.T) {
	r, err := scan.New(nil, nil).ScanText(context.Background(), "a.txt", "hello\n")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatHuman, r, Options{}))
	assert.Contains(t, buf.String(), "no secrets found in 1 files")
}

func TestWrite_SARIF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatSARIF, sampleReport(t), Options{ToolVersion: "1.2.3"}))
	assert.NotContains(t, buf.String(), secret)

	var log sarifLog
	require.NoError(t, json.Unmarshal(buf.Bytes(), &log))
	assert.Equal(t, "2.1.0", log.Version)
	require.Len(t, log.Runs, 1)

	run := log.Runs[0]
	assert.Equal(t, "sieve", run.Tool.Driver.Name)
	assert.Equal(t, "1.2.3", run.Tool.Driver.Version)
	assert.Equal(t, []sarifRule{{ID: "aws-access-key"}}, run.Tool.Driver.Rules)

	require.Len(t, run.Results, 1)
	res := run.Results[0]
	assert.Equal(t, "error", res.Level)
	loc := res.Locations[0].PhysicalLocation
	assert.Equal(t, "config/app.py", loc.ArtifactLocation.URI)
	assert.Equal(t, sarifRegion{StartLine: 2, StartColumn: 15, EndColumn: 35}, loc.Region)
	assert.Len(t, res.PartialFingerprints["sieve/v1"], 64)
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.ErrorIs(t, Write(&bytes.Buffer{}, Format("xml"), &scan.Report{}, Options{}), ErrUnknownFormat)
}

func TestSevToLevel(t *testing.T) {
	assert.Equal(t, "error", sevToLevel(scan.SeverityHigh))
	assert.Equal(t, "warning", sevToLevel(scan.SeverityMedium))
	assert.Equal(t, "note", sevToLevel(scan.SeverityLow))
}

func TestWriteRepair(t *testing.T) {
	results := []repair.Result{
		{FilePath: "a.env", Repaired: 2, Written: true},
		{FilePath: "b.env", Skipped: []repair.Skip{{Fingerprint: "0123456789abcdef", Line: 3, Reason: repair.SkipStale}}},
		{FilePath: "c.env", Err: errors.New("rename refused")},
	}

	t.Run("human", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteRepair(&buf, FormatHuman, results))
		out := buf.String()
		assert.Contains(t, out, "repaired a.env (2)")
		assert.Contains(t, out, "skipped  b.env:3 0123456789ab (stale)")
		assert.Contains(t, out, "FAILED   c.env: rename refused")
		assert.Contains(t, out, "2 repaired, 1 skipped, 1 failed in 3 files")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteRepair(&buf, FormatJSON, results))
		var out struct {
			Summary repair.Summary `json:"summary"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		assert.Equal(t, repair.Summary{Files: 3, Written: 1, Repaired: 2, Skipped: 1, Failed: 1}, out.Summary)
	})
}
