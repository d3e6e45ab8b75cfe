package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
)

// Store is the durable relational store for assets, vulnerability
// definitions, per-asset findings, workflow status and compliance status.
// One writer process at a time; each call commits as its own transaction.
type Store interface {
	// ReconcileIdentity updates a tracked asset in place when the same
	// MAC+hostname reappears under a different scanner identity, preserving
	// the internal id and all finding/workflow/compliance history.
	ReconcileIdentity(ctx context.Context, obs domain.AssetObservation) error

	// AddAsset returns the internal id for the observed identity, inserting
	// the asset and its compliance record when unseen. Identities that
	// wildcard-match an existing tracked asset return
	// domain.ErrDuplicateAsset.
	AddAsset(ctx context.Context, obs domain.AssetObservation) (int64, error)

	// UpsertFinding records one observed finding on an asset, creating the
	// vulnerability definition and workflow record as needed, refreshing
	// detection data on re-observation, and resetting RESOLVED/CLOSED
	// workflow state back to NEW.
	UpsertFinding(ctx context.Context, assetID int64, f domain.Finding, autogroup string) error

	// ResolveMissingFindings transitions workflow records to RESOLVED for
	// every finding of the asset whose vulnerability external id is absent
	// from seen. Returns the number of transitions applied.
	ResolveMissingFindings(ctx context.Context, assetID int64, seen []int64) (int, error)

	// ResolveExpiredAssets resolves all workflow records of assets whose
	// UID was not observed in the current cycle.
	ResolveExpiredAssets(ctx context.Context, seenUIDs map[string]struct{}) (int, error)

	// ComplianceValues returns the (finding id, cvss, age) tuples for the
	// asset's current findings, for policy evaluation.
	ComplianceValues(ctx context.Context, uid string) ([]domain.ComplianceValue, error)

	// UpdateCompliance stamps the asset's compliance record.
	UpdateCompliance(ctx context.Context, uid string, failed bool, failingFindingID int64, at time.Time) error

	// Assets lists all tracked assets.
	Assets(ctx context.Context) ([]domain.Asset, error)

	// WorkflowForAsset returns the full remediation view for one asset;
	// empty when the asset has no findings.
	WorkflowForAsset(ctx context.Context, assetID int64) ([]domain.WorkflowEntry, error)

	// ComplianceForAsset returns the asset's compliance standing, or nil
	// when the asset has no compliance linkage yet.
	ComplianceForAsset(ctx context.Context, assetID int64) (*domain.ComplianceStatus, error)

	// SetWorkflowStatus applies a human-set workflow transition
	// (acknowledge, close, reassign).
	SetWorkflowStatus(ctx context.Context, workflowID int64, status domain.WorkflowStatus, contact string) error

	// Close closes the storage connection.
	Close() error
}
