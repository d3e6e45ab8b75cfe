package scansource

import (
	"log/slog"
	"strconv"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
	"github.com/lcalzada-xor/vmtrack/internal/telemetry"
)

// Row field positions follow the fetch contract; every report carries a
// header row (first field "asset_id") that is recognized and discarded.
// Malformed or empty rows are skipped and counted, never fatal.

func isHeaderOrEmpty(record []string) bool {
	if len(record) == 0 {
		return true
	}
	return record[0] == "asset_id"
}

func parseMembership(records [][]string) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, rec := range records {
		if isHeaderOrEmpty(rec) {
			continue
		}
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			telemetry.RowsSkipped.WithLabelValues(reportGroupMembership, "malformed").Inc()
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	telemetry.RowsParsed.WithLabelValues(reportGroupMembership).Add(float64(len(ids)))
	return ids
}

// parseFindingRows decodes findings_as_of rows:
// asset_id, ip, hostname, mac, detected_at, vuln_id, title, cvss,
// cvss_vector, first_seen. Age is derived from detected_at - first_seen.
func parseFindingRows(records [][]string) []domain.Finding {
	var findings []domain.Finding
	for _, rec := range records {
		if isHeaderOrEmpty(rec) {
			continue
		}
		if len(rec) < 10 {
			telemetry.RowsSkipped.WithLabelValues(reportFindingsAsOf, "short").Inc()
			continue
		}

		assetID, err1 := strconv.ParseInt(rec[0], 10, 64)
		vulnID, err2 := strconv.ParseInt(rec[5], 10, 64)
		cvss, err3 := strconv.ParseFloat(rec[7], 64)
		detected, err4 := parseTimestamp(rec[4])
		firstSeen, err5 := parseTimestamp(rec[9])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			telemetry.RowsSkipped.WithLabelValues(reportFindingsAsOf, "malformed").Inc()
			slog.Debug("skipping malformed finding row", "row", rec)
			continue
		}

		findings = append(findings, domain.Finding{
			AssetExternalID: assetID,
			Address:         rec[1],
			Hostname:        rec[2],
			MAC:             rec[3],
			Detected:        detected,
			VulnExternalID:  vulnID,
			Title:           rec[6],
			CVSS:            cvss,
			CVSSVector:      rec[8],
			FirstSeen:       firstSeen,
			AgeDays:         detected.Sub(firstSeen).Hours() / 24,
		})
	}
	telemetry.RowsParsed.WithLabelValues(reportFindingsAsOf).Add(float64(len(findings)))
	return findings
}

// parseHistoryRows decodes findings_over_interval rows:
// asset_id, ip, hostname, vuln_id, title, cvss, first_seen, last_seen.
func parseHistoryRows(records [][]string) []domain.HistoricalFinding {
	var out []domain.HistoricalFinding
	for _, rec := range records {
		if isHeaderOrEmpty(rec) {
			continue
		}
		if len(rec) < 8 {
			telemetry.RowsSkipped.WithLabelValues(reportFindingsHistory, "short").Inc()
			continue
		}

		assetID, err1 := strconv.ParseInt(rec[0], 10, 64)
		vulnID, err2 := strconv.ParseInt(rec[3], 10, 64)
		cvss, err3 := strconv.ParseFloat(rec[5], 64)
		firstSeen, err4 := parseTimestamp(rec[6])
		lastSeen, err5 := parseTimestamp(rec[7])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			telemetry.RowsSkipped.WithLabelValues(reportFindingsHistory, "malformed").Inc()
			slog.Debug("skipping malformed history row", "row", rec)
			continue
		}

		out = append(out, domain.HistoricalFinding{
			AssetExternalID: assetID,
			Address:         rec[1],
			Hostname:        rec[2],
			VulnExternalID:  vulnID,
			Title:           rec[4],
			CVSS:            cvss,
			FirstSeen:       firstSeen,
			LastSeen:        lastSeen,
		})
	}
	telemetry.RowsParsed.WithLabelValues(reportFindingsHistory).Add(float64(len(out)))
	return out
}
