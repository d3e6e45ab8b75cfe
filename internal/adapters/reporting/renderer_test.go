package reporting

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
	"github.com/lcalzada-xor/vmtrack/internal/core/services/policy"
	"github.com/lcalzada-xor/vmtrack/internal/core/services/stats"
)

// buildDataset assembles a small two-window dataset through the real
// builder so the rendered statistics are internally consistent.
func buildDataset(t *testing.T) *domain.Dataset {
	t.Helper()

	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	cur := domain.NewSnapshot(end)
	cur.Assets[1] = []domain.Finding{
		{AssetExternalID: 1, Address: "10.0.0.1", Hostname: "h1",
			VulnExternalID: 100, Title: "openssl heartbleed", CVSS: 9.8, AgeDays: 45},
		{AssetExternalID: 1, Address: "10.0.0.1", Hostname: "h1",
			VulnExternalID: 200, Title: "weak ciphers", CVSS: 5.0, AgeDays: 10},
	}
	prev := domain.NewSnapshot(end.AddDate(0, 0, -30))
	prev.Assets[1] = []domain.Finding{
		{AssetExternalID: 1, Address: "10.0.0.1", Hostname: "h1",
			VulnExternalID: 100, Title: "openssl heartbleed", CVSS: 9.8, AgeDays: 15},
		{AssetExternalID: 1, Address: "10.0.0.1", Hostname: "h1",
			VulnExternalID: 300, Title: "old apache", CVSS: 7.0, AgeDays: 20},
	}

	eval := policy.NewEvaluator(domain.DefaultPolicy())
	ds := &domain.Dataset{
		GroupID:     1,
		WindowStart: end.AddDate(0, 0, -30),
		WindowEnd:   end,
		Current:     cur,
		Previous:    []domain.Snapshot{prev},
	}
	summarizeForTest(eval, ds)
	return ds
}

// summarizeForTest mirrors what the builder computes per snapshot without
// requiring a scan source.
func summarizeForTest(eval *policy.Evaluator, ds *domain.Dataset) {
	snapStats := func(s domain.Snapshot) domain.SnapshotStats {
		return domain.SnapshotStats{
			AgeAverage: stats.AgeAverage(s),
			NodeImpact: stats.NodeImpactCount(s),
			HostImpact: stats.HostImpact(s),
			VulnImpact: stats.VulnImpact(s),
		}
	}

	ds.CurrentStats = snapStats(ds.Current)
	ds.CurrentCompliance = eval.EvaluateSnapshot(ds.Current)
	ds.CurrentCompStats = domain.ComplianceStats{
		PassFail:      policy.PassFailCounts(ds.CurrentCompliance),
		ImpactSummary: policy.ImpactSummary(ds.CurrentCompliance),
	}
	for _, snap := range ds.Previous {
		set := eval.EvaluateSnapshot(snap)
		ds.PreviousStats = append(ds.PreviousStats, snapStats(snap))
		ds.PreviousCompliance = append(ds.PreviousCompliance, set)
		ds.PreviousCompStats = append(ds.PreviousCompStats, domain.ComplianceStats{
			PassFail:      policy.PassFailCounts(set),
			ImpactSummary: policy.ImpactSummary(set),
		})
	}
	if len(ds.Previous) > 0 {
		ds.Resolved = stats.ResolvedSince(ds.Previous[0], ds.Current)
	}
}

func TestRender_Text(t *testing.T) {
	ds := buildDataset(t)

	var buf bytes.Buffer
	r := NewRenderer(&buf, ModeText)
	require.NoError(t, r.Render(ds))
	out := buf.String()

	for _, section := range []string{
		"Compliance Summary",
		"## Vulnerability Compliance Status",
		"## Compliance Trends",
		"Current State Summary",
		"## Issues Resolved",
		"Trending",
		"## Top Hosts by Impact",
		"## Top Issues by Impact",
	} {
		assert.Contains(t, out, section)
	}

	// only one previous window fetched, the older columns render as NA
	assert.Contains(t, out, "NA")

	// the failing maximum finding shows up in the window breach list
	assert.Contains(t, out, "openssl heartbleed")

	// history disabled, resolution-time section omitted entirely
	assert.NotContains(t, out, "## Average Resolution Time")
}

func TestRender_TextWithResolutionTimes(t *testing.T) {
	ds := buildDataset(t)
	ds.AvgResolutionDays = map[domain.Bucket]float64{
		domain.BucketHigh: 12.5,
	}

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, ModeText).Render(ds))
	out := buf.String()

	assert.Contains(t, out, "## Average Resolution Time")
	assert.Contains(t, out, "12.50")
}

func TestRender_CSV(t *testing.T) {
	ds := buildDataset(t)

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, ModeCSV).Render(ds))

	reader := csv.NewReader(&buf)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.NotEmpty(t, records)

	// CSV mode carries no section headings
	for _, rec := range records {
		assert.NotContains(t, rec[0], "##")
	}
}

func TestRender_EmptyDataset(t *testing.T) {
	eval := policy.NewEvaluator(domain.DefaultPolicy())
	ds := &domain.Dataset{
		Current: domain.NewSnapshot(time.Now()),
	}
	summarizeForTest(eval, ds)

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, ModeText).Render(ds))
	assert.Contains(t, buf.String(), "NA", "empty snapshot ages render as NA")
}
