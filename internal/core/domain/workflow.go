package domain

import "time"

// WorkflowStatus is the remediation lifecycle state of a single finding.
// Values are stored as opaque numeric codes; ACKNOWLEDGED and CLOSED are
// only ever set by a human operator, never by ingestion.
type WorkflowStatus int

const (
	StatusNew          WorkflowStatus = 0
	StatusAcknowledged WorkflowStatus = 1
	StatusResolved     WorkflowStatus = 2
	StatusClosed       WorkflowStatus = 3
)

// String returns the label used in API responses and reports.
func (s WorkflowStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusResolved:
		return "resolved"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WorkflowEntry is the full remediation view of one finding on one asset,
// as returned by the store for the workflow/ticketing surface.
type WorkflowEntry struct {
	WorkflowID  int64          `json:"workflow_id"`
	Status      WorkflowStatus `json:"status"`
	StatusLabel string         `json:"status_label"`
	LastHandled time.Time      `json:"last_handled"`
	Contact     string         `json:"contact"`

	AssetID         int64  `json:"asset_id"`
	AssetExternalID int64  `json:"asset_external_id"`
	IP              string `json:"ip"`
	Hostname        string `json:"hostname"`
	MAC             string `json:"mac"`

	VulnExternalID int64    `json:"vuln_external_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	CVSS           float64  `json:"cvss"`
	CVSSVector     string   `json:"cvss_vector"`
	KnownExploits  bool     `json:"known_exploits"`
	KnownMalware   bool     `json:"known_malware"`
	CVEs           []string `json:"cves,omitempty"`

	Detected  time.Time `json:"detected"`
	AgeDays   float64   `json:"age_days"`
	Autogroup string    `json:"autogroup"`
	Proof     string    `json:"proof,omitempty"`
}

// ComplianceStatus is the current SLA standing of one asset, including the
// finding responsible for a failure when there is one.
type ComplianceStatus struct {
	ComplianceID int64     `json:"compliance_id"`
	AssetID      int64     `json:"asset_id"`
	Failed       bool      `json:"failed"`
	LastUpdated  time.Time `json:"last_updated"`

	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	MAC      string `json:"mac"`

	FailingVulnID int64   `json:"failing_vuln_id,omitempty"`
	FailingTitle  string  `json:"failing_title,omitempty"`
	FailingCVSS   float64 `json:"failing_cvss,omitempty"`
	FailingAge    float64 `json:"failing_age_days,omitempty"`
	Autogroup     string  `json:"autogroup,omitempty"`
}

// ComplianceValue is the minimal per-finding tuple the store hands to the
// policy evaluator when recomputing an asset's compliance record.
type ComplianceValue struct {
	FindingID int64
	CVSS      float64
	AgeDays   float64
}
