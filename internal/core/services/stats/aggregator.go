// Package stats computes descriptive statistics over point-in-time finding
// snapshots. All functions are pure.
package stats

import (
	"sort"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
)

// AgeAverage returns the mean finding age in days per severity bucket.
// Returns nil when the snapshot holds no findings, so callers can render
// an explicit "no data" instead of dividing by zero.
func AgeAverage(s domain.Snapshot) map[domain.Bucket]float64 {
	sums := map[domain.Bucket]float64{}
	counts := map[domain.Bucket]int{}
	for _, findings := range s.Assets {
		for _, f := range findings {
			bucket := domain.BucketForCVSS(f.CVSS)
			sums[bucket] += f.AgeDays
			counts[bucket]++
		}
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil
	}
	out := make(map[domain.Bucket]float64, len(counts))
	for bucket, n := range counts {
		out[bucket] = sums[bucket] / float64(n)
	}
	return out
}

// NodeImpactCount counts distinct assets per severity bucket, bucketed by
// each asset's highest finding CVSS. Assets without findings count nowhere.
func NodeImpactCount(s domain.Snapshot) map[domain.Bucket]int {
	out := map[domain.Bucket]int{
		domain.BucketMaximum:   0,
		domain.BucketHigh:      0,
		domain.BucketMediumLow: 0,
	}
	for _, findings := range s.Assets {
		if len(findings) == 0 {
			continue
		}
		max := 0.0
		for _, f := range findings {
			if f.CVSS > max {
				max = f.CVSS
			}
		}
		if max > 0 {
			out[domain.BucketForCVSS(max)]++
		}
	}
	return out
}

// HostImpact sums CVSS per asset and sorts descending by the summed score.
// Ties are unordered.
func HostImpact(s domain.Snapshot) []domain.HostImpact {
	out := make([]domain.HostImpact, 0, len(s.Assets))
	for assetID, findings := range s.Assets {
		if len(findings) == 0 {
			continue
		}
		hi := domain.HostImpact{
			AssetExternalID: assetID,
			Hostname:        findings[0].Hostname,
			Address:         findings[0].Address,
		}
		for _, f := range findings {
			hi.Score += f.CVSS
			hi.Count++
		}
		out = append(out, hi)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// VulnImpact aggregates instance count, summed CVSS and mean age per
// vulnerability across all assets, sorted descending by summed score.
func VulnImpact(s domain.Snapshot) []domain.VulnImpact {
	type acc struct {
		impact domain.VulnImpact
		ageSum float64
	}
	buf := map[int64]*acc{}
	for _, findings := range s.Assets {
		for _, f := range findings {
			a, ok := buf[f.VulnExternalID]
			if !ok {
				a = &acc{impact: domain.VulnImpact{
					VulnExternalID: f.VulnExternalID,
					Title:          f.Title,
				}}
				buf[f.VulnExternalID] = a
			}
			a.impact.Count++
			a.impact.Score += f.CVSS
			a.ageSum += f.AgeDays
		}
	}
	out := make([]domain.VulnImpact, 0, len(buf))
	for _, a := range buf {
		a.impact.AgeAvg = a.ageSum / float64(a.impact.Count)
		out = append(out, a.impact)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// ResolvedSince compares two snapshots: for every vulnerability present in
// prev, instances absent from cur for the same asset (asset gone entirely,
// or present without that vulnerability) count as resolved; instances still
// present count as remaining.
func ResolvedSince(prev, cur domain.Snapshot) []domain.ResolvedVuln {
	buf := map[int64]*domain.ResolvedVuln{}
	for assetID, findings := range prev.Assets {
		curFindings, assetPresent := cur.Assets[assetID]
		for _, f := range findings {
			rv, ok := buf[f.VulnExternalID]
			if !ok {
				rv = &domain.ResolvedVuln{VulnExternalID: f.VulnExternalID}
				buf[f.VulnExternalID] = rv
			}
			rv.Title = f.Title
			rv.CVSS = f.CVSS
			if !assetPresent || findVuln(f.VulnExternalID, curFindings) == nil {
				rv.Resolved++
				continue
			}
			rv.Remains++
		}
	}
	out := make([]domain.ResolvedVuln, 0, len(buf))
	for _, rv := range buf {
		out = append(out, *rv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Resolved > out[j].Resolved
	})
	return out
}

// AvgResolution computes the mean time-to-resolution in days per severity
// bucket, over historical findings that are absent from the current
// snapshot. Buckets with no resolved candidates are omitted.
func AvgResolution(hist domain.History, cur domain.Snapshot) map[domain.Bucket]float64 {
	sums := map[domain.Bucket]float64{}
	counts := map[domain.Bucket]int{}
	for assetID, vulns := range hist {
		curFindings, assetPresent := cur.Assets[assetID]
		for vulnID, h := range vulns {
			if assetPresent && findVuln(vulnID, curFindings) != nil {
				continue
			}
			bucket := domain.BucketForCVSS(h.CVSS)
			sums[bucket] += h.LastSeen.Sub(h.FirstSeen).Hours() / 24
			counts[bucket]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	out := make(map[domain.Bucket]float64, len(counts))
	for bucket, n := range counts {
		out[bucket] = sums[bucket] / float64(n)
	}
	return out
}

func findVuln(vulnID int64, findings []domain.Finding) *domain.Finding {
	for i := range findings {
		if findings[i].VulnExternalID == vulnID {
			return &findings[i]
		}
	}
	return nil
}
