package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/vmtrack/internal/adapters/storage"
	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
	"github.com/lcalzada-xor/vmtrack/internal/core/ports"
	"github.com/lcalzada-xor/vmtrack/internal/core/services/policy"
)

func newTestIngestor(t *testing.T) (*Ingestor, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eval := policy.NewEvaluator(domain.DefaultPolicy())
	in := NewIngestor(store, eval, domain.NewAutogroupMatcher(nil), "SCANNER1")
	return in, store
}

func obsFinding(assetID int64, addr, hostname, mac string, vulnID int64, cvss, ageDays float64) domain.Finding {
	return domain.Finding{
		AssetExternalID: assetID,
		Address:         addr,
		Hostname:        hostname,
		MAC:             mac,
		VulnExternalID:  vulnID,
		Title:           "test-vuln",
		CVSS:            cvss,
		AgeDays:         ageDays,
		Detected:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestIngestSnapshot(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	snap := domain.NewSnapshot(time.Now())
	snap.Assets[42] = []domain.Finding{
		obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 100, 9.0, 10),
		obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 200, 7.0, 80),
	}
	snap.Assets[43] = []domain.Finding{
		obsFinding(43, "10.0.0.6", "h2", "aa:bb:cc:00:00:02", 100, 9.0, 5),
	}

	sum, err := in.IngestSnapshot(ctx, snap)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.AssetsSeen)
	assert.Equal(t, 3, sum.FindingsIngested)
	assert.Zero(t, sum.FindingsResolved)
	assert.Zero(t, sum.DuplicatesSuppressed)

	// asset 42 carries a high finding past its 60 day window
	assert.Equal(t, 1, sum.ComplianceFailed)

	assets, err := store.Assets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 2)

	byUID := map[string]domain.Asset{}
	for _, a := range assets {
		byUID[a.UID] = a
	}
	require.Contains(t, byUID, "SCANNER1|42|10.0.0.5")
	require.Contains(t, byUID, "SCANNER1|43|10.0.0.6")

	cs, err := store.ComplianceForAsset(ctx, byUID["SCANNER1|42|10.0.0.5"].ID)
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.True(t, cs.Failed)
	assert.Equal(t, int64(200), cs.FailingVulnID)

	cs, err = store.ComplianceForAsset(ctx, byUID["SCANNER1|43|10.0.0.6"].ID)
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.False(t, cs.Failed)

	t.Run("re-ingest is idempotent", func(t *testing.T) {
		again, err := in.IngestSnapshot(ctx, snap)
		require.NoError(t, err)
		assert.Equal(t, sum.AssetsSeen, again.AssetsSeen)
		assert.Equal(t, sum.FindingsIngested, again.FindingsIngested)

		assets, err := store.Assets(ctx)
		require.NoError(t, err)
		assert.Len(t, assets, 2)
	})
}

// Two scanner assets reporting the same address under the same scanner id
// are one host with conflicting identities; the second one is skipped.
func TestIngestSnapshot_DuplicateIdentity(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	snap := domain.NewSnapshot(time.Now())
	snap.Assets[42] = []domain.Finding{
		obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 100, 9.0, 10),
	}
	snap.Assets[99] = []domain.Finding{
		obsFinding(99, "10.0.0.5", "h1-alias", "", 100, 9.0, 10),
	}

	sum, err := in.IngestSnapshot(ctx, snap)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.AssetsSeen)
	assert.Equal(t, 1, sum.DuplicatesSuppressed)

	assets, err := store.Assets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	// Lowest scanner id wins the collision, on every run.
	assert.Equal(t, "SCANNER1|42|10.0.0.5", assets[0].UID)
}

func TestIngestSnapshot_ResolutionSweeps(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	first := domain.NewSnapshot(time.Now())
	first.Assets[42] = []domain.Finding{
		obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 100, 9.0, 10),
		obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 200, 7.0, 10),
	}
	first.Assets[43] = []domain.Finding{
		obsFinding(43, "10.0.0.6", "h2", "aa:bb:cc:00:00:02", 100, 9.0, 5),
	}
	_, err := in.IngestSnapshot(ctx, first)
	require.NoError(t, err)

	// next cycle: vuln 200 fixed on asset 42, asset 43 decommissioned
	second := domain.NewSnapshot(time.Now())
	second.Assets[42] = []domain.Finding{
		obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 100, 9.0, 11),
	}

	sum, err := in.IngestSnapshot(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FindingsResolved, "missing finding swept")
	assert.Equal(t, 1, sum.ExpiredResolved, "expired asset swept")

	assets, err := store.Assets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 2)

	byUID := map[string]domain.Asset{}
	for _, a := range assets {
		byUID[a.UID] = a
	}
	liveID := byUID["SCANNER1|42|10.0.0.5"].ID
	goneID := byUID["SCANNER1|43|10.0.0.6"].ID

	entries, err := store.WorkflowForAsset(ctx, liveID)
	require.NoError(t, err)
	byVuln := map[int64]domain.WorkflowStatus{}
	for _, e := range entries {
		byVuln[e.VulnExternalID] = e.Status
	}
	assert.Equal(t, domain.StatusNew, byVuln[100])
	assert.Equal(t, domain.StatusResolved, byVuln[200])

	entries, err = store.WorkflowForAsset(ctx, goneID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StatusResolved, entries[0].Status)

	t.Run("fixed vuln reappearing reopens as new", func(t *testing.T) {
		third := domain.NewSnapshot(time.Now())
		third.Assets[42] = []domain.Finding{
			obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 100, 9.0, 12),
			obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 200, 7.0, 1),
		}
		_, err := in.IngestSnapshot(ctx, third)
		require.NoError(t, err)

		entries, err := store.WorkflowForAsset(ctx, liveID)
		require.NoError(t, err)
		for _, e := range entries {
			assert.Equal(t, domain.StatusNew, e.Status, "vuln %d", e.VulnExternalID)
		}
	})
}

// A host rescanned under a new scanner identity keeps its tracked history
// when MAC and hostname still match.
func TestIngestSnapshot_IdentityContinuity(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	first := domain.NewSnapshot(time.Now())
	first.Assets[42] = []domain.Finding{
		obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 100, 9.0, 10),
	}
	_, err := in.IngestSnapshot(ctx, first)
	require.NoError(t, err)

	assets, err := store.Assets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	internalID := assets[0].ID

	second := domain.NewSnapshot(time.Now())
	second.Assets[77] = []domain.Finding{
		obsFinding(77, "10.0.0.9", "h1", "aa:bb:cc:00:00:01", 100, 9.0, 40),
	}
	_, err = in.IngestSnapshot(ctx, second)
	require.NoError(t, err)

	assets, err = store.Assets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1, "still one tracked asset")
	assert.Equal(t, internalID, assets[0].ID)
	assert.Equal(t, "SCANNER1|77|10.0.0.9", assets[0].UID)
}

func TestUID(t *testing.T) {
	in, _ := newTestIngestor(t)
	assert.Equal(t, "SCANNER1|42|10.0.0.5", in.UID(42, "10.0.0.5"))
}

// invariantStore simulates a store whose vulnerability master reports a
// successful insert but cannot find the row afterwards.
type invariantStore struct {
	ports.Store
}

func (s invariantStore) UpsertFinding(ctx context.Context, assetID int64, f domain.Finding, autogroup string) error {
	return fmt.Errorf("vulnerability %d present on insert but absent on lookup: %w",
		f.VulnExternalID, domain.ErrInvariant)
}

func TestIngestSnapshot_InvariantViolationAborts(t *testing.T) {
	_, store := newTestIngestor(t)
	ctx := context.Background()

	eval := policy.NewEvaluator(domain.DefaultPolicy())
	in := NewIngestor(invariantStore{Store: store}, eval, domain.NewAutogroupMatcher(nil), "SCANNER1")

	snap := domain.NewSnapshot(time.Now())
	snap.Assets[42] = []domain.Finding{
		obsFinding(42, "10.0.0.5", "h1", "aa:bb:cc:00:00:01", 100, 9.0, 10),
	}

	sum, err := in.IngestSnapshot(ctx, snap)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvariant)
	assert.Zero(t, sum.FindingsIngested, "cycle aborts before counting the finding")

	entries, err := store.WorkflowForAsset(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries, "no workflow record survives the aborted upsert")
}
