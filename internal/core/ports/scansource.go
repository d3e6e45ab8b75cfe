package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
)

// FindingsAsOfQuery requests the state of an asset group as observed at one
// instant. DeviceIDs, when non-empty, restricts the result to the listed
// scanner asset ids (the precomputed group membership filter).
type FindingsAsOfQuery struct {
	GroupID   int64
	AsOf      time.Time
	DeviceIDs []int64
}

// FindingsIntervalQuery requests the full finding history of an asset group
// over a time interval.
type FindingsIntervalQuery struct {
	GroupID int64
	Start   time.Time
	End     time.Time
}

// ScanSource is the external system producing raw finding rows. Each fetch
// is a single blocking call; callers wrap their own timeout/retry policy
// around the context.
type ScanSource interface {
	// FetchGroupMembership returns the scanner asset ids belonging to the
	// group, fetched once per run and used as a device filter.
	FetchGroupMembership(ctx context.Context, groupID int64) ([]int64, error)

	// FetchFindingsAsOf returns the findings observed at the query instant,
	// in scanner fetch order.
	FetchFindingsAsOf(ctx context.Context, q FindingsAsOfQuery) ([]domain.Finding, error)

	// FetchFindingsOverInterval returns first/last observation aggregates
	// for every finding seen during the interval. This query is expensive.
	FetchFindingsOverInterval(ctx context.Context, q FindingsIntervalQuery) ([]domain.HistoricalFinding, error)
}
