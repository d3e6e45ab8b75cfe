package domain

import (
	"time"

	"github.com/google/uuid"
)

// PassFail holds per-bucket in/out of compliance counts.
type PassFail struct {
	Pass int
	Fail int
}

// ImpactEntry is one distinct failing vulnerability title with the number
// of instances outside the compliance window.
type ImpactEntry struct {
	VulnExternalID int64
	Title          string
	Count          int
}

// HostImpact is the cumulative CVSS exposure of one asset.
type HostImpact struct {
	AssetExternalID int64
	Hostname        string
	Address         string
	Score           float64
	Count           int
}

// VulnImpact is the fleet-wide aggregate for one vulnerability.
type VulnImpact struct {
	VulnExternalID int64
	Title          string
	Count          int
	Score          float64
	AgeAvg         float64
}

// ResolvedVuln counts, for one vulnerability seen in the previous snapshot,
// how many instances disappeared versus how many remain.
type ResolvedVuln struct {
	VulnExternalID int64
	Title          string
	CVSS           float64
	Resolved       int
	Remains        int
}

// SnapshotStats holds the descriptive statistics computed over one
// snapshot. AgeAverage is nil when the snapshot was empty ("no data").
type SnapshotStats struct {
	AgeAverage map[Bucket]float64
	NodeImpact map[Bucket]int
	HostImpact []HostImpact
	VulnImpact []VulnImpact
}

// ComplianceStats holds policy-derived statistics for one snapshot.
type ComplianceStats struct {
	PassFail      map[Bucket]PassFail
	ImpactSummary map[Bucket][]ImpactEntry
}

// Dataset is the comparative report dataset for one asset group: the
// current snapshot, three equal-width back-dated snapshots, and the derived
// statistics for each. Read-only once built.
type Dataset struct {
	RunID       uuid.UUID
	GeneratedAt time.Time
	GroupID     int64
	WindowStart time.Time
	WindowEnd   time.Time

	Current  Snapshot
	Previous []Snapshot

	CurrentStats  SnapshotStats
	PreviousStats []SnapshotStats

	CurrentCompliance  []ComplianceElement
	PreviousCompliance [][]ComplianceElement

	CurrentCompStats  ComplianceStats
	PreviousCompStats []ComplianceStats

	// Resolved compares the current snapshot against the most recent
	// previous window.
	Resolved []ResolvedVuln

	// AvgResolutionDays is only populated when the trailing-history fetch
	// is enabled; nil means the statistic was omitted, not zero.
	AvgResolutionDays map[Bucket]float64
}
