// Package ingest drives a durable ingestion cycle: reconciling reported
// asset identities against the store, upserting findings with their
// workflow records, and sweeping resolved/expired state.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
	"github.com/lcalzada-xor/vmtrack/internal/core/ports"
	"github.com/lcalzada-xor/vmtrack/internal/core/services/policy"
	"github.com/lcalzada-xor/vmtrack/internal/telemetry"
)

// Summary reports what one ingestion cycle did.
type Summary struct {
	AssetsSeen           int
	DuplicatesSuppressed int
	FindingsIngested     int
	FindingsResolved     int
	ExpiredResolved      int
	ComplianceFailed     int
}

// Ingestor applies one snapshot to the persistent store. Processing is
// sequential; each store call commits its own transaction, so a failed
// cycle leaves previously committed units durable and a re-run is
// idempotent.
type Ingestor struct {
	store     ports.Store
	eval      *policy.Evaluator
	groups    *domain.AutogroupMatcher
	scannerID string
}

// NewIngestor creates an ingestor. scannerID is the first element of the
// composite asset identity string this scanner reports under.
func NewIngestor(store ports.Store, eval *policy.Evaluator, groups *domain.AutogroupMatcher, scannerID string) *Ingestor {
	return &Ingestor{store: store, eval: eval, groups: groups, scannerID: scannerID}
}

// UID builds the composite identity string for a reported asset:
// "scanner-id|sub-identifier|address-or-name".
func (in *Ingestor) UID(externalID int64, address string) string {
	return fmt.Sprintf("%s|%d|%s", in.scannerID, externalID, address)
}

// IngestSnapshot applies the snapshot: per asset, identity reconciliation
// and finding upserts, then the per-asset resolution sweep; afterwards the
// stale-asset sweep and a compliance re-evaluation for every tracked asset.
func (in *Ingestor) IngestSnapshot(ctx context.Context, snap domain.Snapshot) (Summary, error) {
	var sum Summary
	seenUIDs := make(map[string]struct{})

	// Assets are processed in ascending scanner id order so that when two
	// identities wildcard-collide, the same one wins on every run.
	extIDs := make([]int64, 0, len(snap.Assets))
	for assetExtID := range snap.Assets {
		extIDs = append(extIDs, assetExtID)
	}
	sort.Slice(extIDs, func(i, j int) bool { return extIDs[i] < extIDs[j] })

	for _, assetExtID := range extIDs {
		findings := snap.Assets[assetExtID]
		if len(findings) == 0 {
			continue
		}
		obs := domain.AssetObservation{
			UID:        in.UID(assetExtID, findings[0].Address),
			ExternalID: assetExtID,
			IP:         findings[0].Address,
			Hostname:   findings[0].Hostname,
			MAC:        findings[0].MAC,
		}

		// Identity continuity first, so the UID lookup below hits the
		// updated row instead of creating a second asset.
		if err := in.store.ReconcileIdentity(ctx, obs); err != nil {
			return sum, fmt.Errorf("reconcile identity for %s: %w", obs.UID, err)
		}

		assetID, err := in.store.AddAsset(ctx, obs)
		if errors.Is(err, domain.ErrDuplicateAsset) {
			slog.Info("suppressing duplicate asset identity", "uid", obs.UID)
			telemetry.DuplicatesSuppressed.WithLabelValues("uid").Inc()
			sum.DuplicatesSuppressed++
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("add asset %s: %w", obs.UID, err)
		}
		seenUIDs[obs.UID] = struct{}{}
		sum.AssetsSeen++

		autogroup := in.groups.Classify(obs.IP, obs.MAC, obs.Hostname)
		seenVulns := make([]int64, 0, len(findings))
		for _, f := range findings {
			if err := in.store.UpsertFinding(ctx, assetID, f, autogroup); err != nil {
				return sum, fmt.Errorf("upsert finding %d on asset %s: %w", f.VulnExternalID, obs.UID, err)
			}
			seenVulns = append(seenVulns, f.VulnExternalID)
			sum.FindingsIngested++
		}

		resolved, err := in.store.ResolveMissingFindings(ctx, assetID, seenVulns)
		if err != nil {
			return sum, fmt.Errorf("resolve missing findings for %s: %w", obs.UID, err)
		}
		sum.FindingsResolved += resolved
	}

	expired, err := in.store.ResolveExpiredAssets(ctx, seenUIDs)
	if err != nil {
		return sum, fmt.Errorf("resolve expired assets: %w", err)
	}
	sum.ExpiredResolved = expired

	failed, err := in.updateCompliance(ctx)
	if err != nil {
		return sum, err
	}
	sum.ComplianceFailed = failed

	slog.Info("ingestion cycle complete",
		"assets", sum.AssetsSeen,
		"findings", sum.FindingsIngested,
		"resolved", sum.FindingsResolved,
		"expired_resolved", sum.ExpiredResolved,
		"duplicates", sum.DuplicatesSuppressed,
		"out_of_compliance", sum.ComplianceFailed)
	return sum, nil
}

// updateCompliance re-evaluates every tracked asset against the policy and
// stamps its compliance record, independent of which assets appeared in the
// snapshot.
func (in *Ingestor) updateCompliance(ctx context.Context) (int, error) {
	assets, err := in.store.Assets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list assets: %w", err)
	}
	now := time.Now().UTC()
	failedCount := 0
	for _, a := range assets {
		values, err := in.store.ComplianceValues(ctx, a.UID)
		if err != nil {
			return failedCount, fmt.Errorf("compliance values for %s: %w", a.UID, err)
		}
		failed, failingID := in.eval.FirstFailing(values)
		if err := in.store.UpdateCompliance(ctx, a.UID, failed, failingID, now); err != nil {
			return failedCount, fmt.Errorf("update compliance for %s: %w", a.UID, err)
		}
		if failed {
			failedCount++
		}
	}
	return failedCount, nil
}
