package scansource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFindingRows_SkipsBadInput(t *testing.T) {
	records := [][]string{
		{"asset_id", "ip", "hostname", "mac", "detected_at", "vuln_id", "title", "cvss", "cvss_vector", "first_seen"},
		{},
		{"42", "10.0.0.5", "h1", "", "2025-06-30 00:00:00", "100", "v1", "9.8", "", "2025-06-01 00:00:00"},
		{"42", "10.0.0.5", "h1"}, // short row
		{"not-a-number", "10.0.0.5", "h1", "", "2025-06-30 00:00:00", "100", "v1", "9.8", "", "2025-06-01 00:00:00"},
		{"42", "10.0.0.5", "h1", "", "garbage", "100", "v1", "9.8", "", "2025-06-01 00:00:00"},
		{"42", "10.0.0.5", "h1", "", "2025-06-30 00:00:00", "100", "v1", "not-a-float", "", "2025-06-01 00:00:00"},
	}

	findings := parseFindingRows(records)
	require.Len(t, findings, 1)
	assert.Equal(t, int64(42), findings[0].AssetExternalID)
	assert.InDelta(t, 29.0, findings[0].AgeDays, 0.001)
}

func TestParseHistoryRows_SkipsBadInput(t *testing.T) {
	records := [][]string{
		{"asset_id", "ip", "hostname", "vuln_id", "title", "cvss", "first_seen", "last_seen"},
		{"42", "10.0.0.5", "h1", "100", "v1", "5.0", "2025-03-01 00:00:00", "2025-04-01 00:00:00"},
		{"42", "10.0.0.5", "h1", "100", "v1", "5.0", "2025-03-01 00:00:00"}, // short
		{"42", "10.0.0.5", "h1", "100", "v1", "5.0", "bad", "2025-04-01 00:00:00"},
	}

	out := parseHistoryRows(records)
	require.Len(t, out, 1)
	assert.Equal(t, int64(100), out[0].VulnExternalID)
}

func TestParseMembership(t *testing.T) {
	records := [][]string{
		{"asset_id"},
		{"42"},
		{"xx"},
		{"43"},
		{"42"},
	}
	assert.Equal(t, []int64{42, 43}, parseMembership(records))
}
