// Package policy implements the tiered CVSS/age compliance evaluator. It is
// pure computation: no I/O, no clock.
package policy

import (
	"sort"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
)

// Evaluator applies a severity-tiered SLA policy to findings.
type Evaluator struct {
	policy domain.Policy
}

// NewEvaluator creates an evaluator for the given policy. Tiers must be
// ordered most severe first.
func NewEvaluator(p domain.Policy) *Evaluator {
	return &Evaluator{policy: p}
}

// Evaluate walks the ordered tiers and marks the finding failed on the
// first tier whose CVSS floor it meets and whose age threshold it exceeds.
// Evaluation stops at the first match, so a finding is attributed to at
// most one tier: the most severe one.
func (e *Evaluator) Evaluate(f domain.Finding) domain.ComplianceElement {
	ce := domain.ComplianceElement{Finding: f}
	for _, tier := range e.policy.Tiers {
		if f.CVSS >= tier.Floor && f.AgeDays > tier.MaxAgeDays {
			ce.Failed = true
			ce.Tier = tier.Name
			break
		}
	}
	return ce
}

// EvaluateSnapshot evaluates every finding in the snapshot.
func (e *Evaluator) EvaluateSnapshot(s domain.Snapshot) []domain.ComplianceElement {
	var out []domain.ComplianceElement
	for _, findings := range s.Assets {
		for _, f := range findings {
			out = append(out, e.Evaluate(f))
		}
	}
	return out
}

// FirstFailing applies the tier walk to stored compliance values and
// returns whether any finding fails plus the id of the first failing one.
func (e *Evaluator) FirstFailing(values []domain.ComplianceValue) (bool, int64) {
	for _, v := range values {
		for _, tier := range e.policy.Tiers {
			if v.CVSS >= tier.Floor && v.AgeDays > tier.MaxAgeDays {
				return true, v.FindingID
			}
		}
	}
	return false, 0
}

// PassFailCounts tallies pass vs fail per severity bucket. Bucket
// classification is independent of the tier walk and always covers all
// three buckets.
func PassFailCounts(set []domain.ComplianceElement) map[domain.Bucket]domain.PassFail {
	counts := map[domain.Bucket]domain.PassFail{
		domain.BucketMaximum:   {},
		domain.BucketHigh:      {},
		domain.BucketMediumLow: {},
	}
	for _, ce := range set {
		bucket := domain.BucketForCVSS(ce.Finding.CVSS)
		pf := counts[bucket]
		if ce.Failed {
			pf.Fail++
		} else {
			pf.Pass++
		}
		counts[bucket] = pf
	}
	return counts
}

// ImpactSummary ranks, for the maximum and high buckets, the distinct
// failing vulnerability titles by instance count descending.
func ImpactSummary(set []domain.ComplianceElement) map[domain.Bucket][]domain.ImpactEntry {
	byBucket := map[domain.Bucket]map[int64]*domain.ImpactEntry{
		domain.BucketMaximum: {},
		domain.BucketHigh:    {},
	}
	for _, ce := range set {
		if !ce.Failed || ce.Finding.CVSS < 7 {
			continue
		}
		bucket := domain.BucketForCVSS(ce.Finding.CVSS)
		entries := byBucket[bucket]
		ent, ok := entries[ce.Finding.VulnExternalID]
		if !ok {
			ent = &domain.ImpactEntry{
				VulnExternalID: ce.Finding.VulnExternalID,
				Title:          ce.Finding.Title,
			}
			entries[ce.Finding.VulnExternalID] = ent
		}
		ent.Count++
	}

	out := make(map[domain.Bucket][]domain.ImpactEntry, len(byBucket))
	for bucket, entries := range byBucket {
		list := make([]domain.ImpactEntry, 0, len(entries))
		for _, ent := range entries {
			list = append(list, *ent)
		}
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Count > list[j].Count
		})
		out[bucket] = list
	}
	return out
}
