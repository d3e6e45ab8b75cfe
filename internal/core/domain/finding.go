package domain

import "time"

// Bucket is a fixed severity classification band used for statistics.
// Buckets are independent of the compliance tier walk: they partition the
// CVSS range exhaustively and disjointly.
type Bucket string

const (
	BucketMaximum   Bucket = "maximum"   // CVSS >= 9
	BucketHigh      Bucket = "high"      // 7 <= CVSS < 9
	BucketMediumLow Bucket = "mediumlow" // CVSS < 7
)

// BucketOrder is the canonical rendering order, most severe first.
var BucketOrder = []Bucket{BucketMaximum, BucketHigh, BucketMediumLow}

// BucketForCVSS classifies a CVSS score into its severity bucket.
func BucketForCVSS(cvss float64) Bucket {
	switch {
	case cvss >= 9:
		return BucketMaximum
	case cvss >= 7:
		return BucketHigh
	default:
		return BucketMediumLow
	}
}

// Finding is one observed instance of a vulnerability on one asset, as
// reported by the scan source for a single snapshot.
type Finding struct {
	AssetExternalID int64
	Address         string
	Hostname        string
	MAC             string

	VulnExternalID int64
	Title          string
	Description    string
	CVSS           float64
	CVSSVector     string
	KnownExploits  bool
	KnownMalware   bool
	CVEs           []string
	Advisories     []string

	Detected  time.Time
	FirstSeen time.Time
	AgeDays   float64
	Proof     string
}

// Definition extracts the vulnerability catalog entry carried by this
// finding, for insertion into the store's vulnerability master.
func (f Finding) Definition() VulnDefinition {
	return VulnDefinition{
		ExternalID:    f.VulnExternalID,
		Title:         f.Title,
		CVSS:          f.CVSS,
		KnownExploits: f.KnownExploits,
		KnownMalware:  f.KnownMalware,
		Description:   f.Description,
		CVSSVector:    f.CVSSVector,
		CVEs:          f.CVEs,
		Advisories:    f.Advisories,
	}
}

// HistoricalFinding is a first-seen/last-seen aggregate over an extended
// trailing window, used for time-to-resolution statistics.
type HistoricalFinding struct {
	AssetExternalID int64
	Address         string
	Hostname        string
	VulnExternalID  int64
	Title           string
	CVSS            float64
	FirstSeen       time.Time
	LastSeen        time.Time
}

// Snapshot is the complete set of findings as observed at one instant,
// keyed by the scanner's asset id. Snapshots are in-memory only and are
// read-only once built.
type Snapshot struct {
	AsOf   time.Time
	Assets map[int64][]Finding
}

// NewSnapshot returns an empty snapshot for the given instant.
func NewSnapshot(asOf time.Time) Snapshot {
	return Snapshot{AsOf: asOf, Assets: make(map[int64][]Finding)}
}

// FindingCount returns the total number of findings across all assets.
func (s Snapshot) FindingCount() int {
	n := 0
	for _, fs := range s.Assets {
		n += len(fs)
	}
	return n
}

// History maps asset external id -> vuln external id -> aggregate, for the
// trailing-window resolution query.
type History map[int64]map[int64]HistoricalFinding

// Asset is a tracked physical/logical host as persisted by the store. The
// internal ID is stable across identity churn; UID is the scanner-reported
// composite identity string ("scanner|sub-id|address-or-name").
type Asset struct {
	ID         int64
	UID        string
	ExternalID int64
	IP         string
	Hostname   string
	MAC        string
}

// AssetObservation is the identity portion of a scan report for one asset,
// fed to the store during ingestion.
type AssetObservation struct {
	UID        string
	ExternalID int64
	IP         string
	Hostname   string
	MAC        string
}

// VulnDefinition is a catalog entry for one scanner vulnerability signature.
// Only the CVSS score may be revised after creation; signatures are
// occasionally rescored after publication.
type VulnDefinition struct {
	ID            int64
	ExternalID    int64
	Title         string
	CVSS          float64
	KnownExploits bool
	KnownMalware  bool
	Description   string
	CVSSVector    string
	CVEs          []string
	Advisories    []string
}
