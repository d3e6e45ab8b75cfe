// Package dataset builds the comparative report dataset: the current
// snapshot, three equal-width back-dated snapshots, and the statistics
// derived from each.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
	"github.com/lcalzada-xor/vmtrack/internal/core/ports"
	"github.com/lcalzada-xor/vmtrack/internal/core/services/policy"
	"github.com/lcalzada-xor/vmtrack/internal/core/services/stats"
	"github.com/lcalzada-xor/vmtrack/internal/telemetry"
)

// PreviousWindows is the number of back-dated comparison snapshots fetched
// per run.
const PreviousWindows = 3

// Config controls optional builder behavior. All state is explicit; there
// are no process-wide filter or mode globals.
type Config struct {
	// FilterDuplicateIP drops all but the first-encountered asset when two
	// assets in the same snapshot report the same IP address.
	FilterDuplicateIP bool

	// IncludeHistory enables the expensive trailing-history fetch that
	// feeds the average-resolution statistic. When off the statistic is
	// omitted from the dataset, never zero-filled.
	IncludeHistory bool
}

// Builder orchestrates snapshot fetching and statistics computation.
type Builder struct {
	source ports.ScanSource
	eval   *policy.Evaluator
	cfg    Config
}

// NewBuilder creates a dataset builder over the given scan source.
func NewBuilder(source ports.ScanSource, eval *policy.Evaluator, cfg Config) *Builder {
	return &Builder{source: source, eval: eval, cfg: cfg}
}

// Build fetches the current snapshot as of windowEnd plus PreviousWindows
// back-dated snapshots at windowEnd - k*(windowEnd-windowStart), evaluates
// compliance for each, and computes the full statistics set.
func (b *Builder) Build(ctx context.Context, groupID int64, windowStart, windowEnd time.Time) (*domain.Dataset, error) {
	ds := &domain.Dataset{
		RunID:       uuid.New(),
		GeneratedAt: time.Now().UTC(),
		GroupID:     groupID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}

	deviceIDs, err := b.source.FetchGroupMembership(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fetch group membership: %w", err)
	}
	slog.Debug("device filter populated", "group", groupID, "devices", len(deviceIDs))

	ds.Current, err = b.fetchSnapshot(ctx, groupID, windowEnd, deviceIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch current snapshot: %w", err)
	}

	windowSize := windowEnd.Sub(windowStart)
	for k := 1; k <= PreviousWindows; k++ {
		asOf := windowEnd.Add(-time.Duration(k) * windowSize)
		snap, err := b.fetchSnapshot(ctx, groupID, asOf, deviceIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch previous snapshot %d: %w", k, err)
		}
		ds.Previous = append(ds.Previous, snap)
	}

	b.summarize(ds)

	if b.cfg.IncludeHistory {
		if err := b.attachHistory(ctx, ds); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

func (b *Builder) fetchSnapshot(ctx context.Context, groupID int64, asOf time.Time, deviceIDs []int64) (domain.Snapshot, error) {
	rows, err := b.source.FetchFindingsAsOf(ctx, ports.FindingsAsOfQuery{
		GroupID:   groupID,
		AsOf:      asOf,
		DeviceIDs: deviceIDs,
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	telemetry.SnapshotsFetched.WithLabelValues("as_of").Inc()

	snap := domain.NewSnapshot(asOf)
	dropped := 0
	for _, f := range rows {
		if b.cfg.FilterDuplicateIP && duplicateIP(snap, f.AssetExternalID, f.Address) {
			dropped++
			continue
		}
		snap.Assets[f.AssetExternalID] = append(snap.Assets[f.AssetExternalID], f)
	}
	if dropped > 0 {
		telemetry.DuplicatesSuppressed.WithLabelValues("ip").Add(float64(dropped))
		slog.Debug("duplicate-ip findings suppressed", "as_of", asOf, "dropped", dropped)
	}
	slog.Debug("snapshot fetched", "as_of", asOf, "assets", len(snap.Assets), "findings", snap.FindingCount())
	return snap, nil
}

// duplicateIP reports whether another asset already in the snapshot claims
// the same address. The first-encountered asset, by fetch order, wins.
func duplicateIP(snap domain.Snapshot, assetID int64, addr string) bool {
	for id, findings := range snap.Assets {
		if id == assetID || len(findings) == 0 {
			continue
		}
		if findings[0].Address == addr {
			return true
		}
	}
	return false
}

func (b *Builder) summarize(ds *domain.Dataset) {
	ds.CurrentStats = snapshotStats(ds.Current)
	ds.CurrentCompliance = b.eval.EvaluateSnapshot(ds.Current)
	ds.CurrentCompStats = complianceStats(ds.CurrentCompliance)

	for _, snap := range ds.Previous {
		ds.PreviousStats = append(ds.PreviousStats, snapshotStats(snap))
		set := b.eval.EvaluateSnapshot(snap)
		ds.PreviousCompliance = append(ds.PreviousCompliance, set)
		ds.PreviousCompStats = append(ds.PreviousCompStats, complianceStats(set))
	}

	if len(ds.Previous) > 0 {
		ds.Resolved = stats.ResolvedSince(ds.Previous[0], ds.Current)
	}
}

// attachHistory runs the extended trailing-window query (3x the window size
// before windowStart) and computes mean time-to-resolution per bucket.
func (b *Builder) attachHistory(ctx context.Context, ds *domain.Dataset) error {
	trendStart := ds.WindowStart.Add(-3 * ds.WindowEnd.Sub(ds.WindowStart))
	rows, err := b.source.FetchFindingsOverInterval(ctx, ports.FindingsIntervalQuery{
		GroupID: ds.GroupID,
		Start:   trendStart,
		End:     ds.WindowEnd,
	})
	if err != nil {
		return fmt.Errorf("fetch finding history: %w", err)
	}
	telemetry.SnapshotsFetched.WithLabelValues("interval").Inc()

	hist := domain.History{}
	for _, h := range rows {
		byVuln, ok := hist[h.AssetExternalID]
		if !ok {
			byVuln = map[int64]domain.HistoricalFinding{}
			hist[h.AssetExternalID] = byVuln
		}
		byVuln[h.VulnExternalID] = h
	}
	ds.AvgResolutionDays = stats.AvgResolution(hist, ds.Current)
	slog.Debug("history attached", "from", trendStart, "to", ds.WindowEnd, "assets", len(hist))
	return nil
}

func snapshotStats(s domain.Snapshot) domain.SnapshotStats {
	return domain.SnapshotStats{
		AgeAverage: stats.AgeAverage(s),
		NodeImpact: stats.NodeImpactCount(s),
		HostImpact: stats.HostImpact(s),
		VulnImpact: stats.VulnImpact(s),
	}
}

func complianceStats(set []domain.ComplianceElement) domain.ComplianceStats {
	return domain.ComplianceStats{
		PassFail:      policy.PassFailCounts(set),
		ImpactSummary: policy.ImpactSummary(set),
	}
}
