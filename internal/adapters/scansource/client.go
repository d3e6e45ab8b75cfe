// Package scansource is the client adapter for the external scan system.
// It submits typed report requests and decodes the tabular CSV responses
// into findings; the analytic query logic (grouping, window bounds) is
// owned by the scan system, only its result contract matters here.
package scansource

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
	"github.com/lcalzada-xor/vmtrack/internal/core/ports"
)

// timestampLayout is how the scan source renders timestamps, always UTC.
// An optional fractional-second component may follow and is discarded.
const timestampLayout = "2006-01-02 15:04:05"

const (
	reportGroupMembership = "group_membership"
	reportFindingsAsOf    = "findings_as_of"
	reportFindingsHistory = "findings_over_interval"
)

// Client talks to the scan source's ad-hoc report endpoint.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a scan-source client. Each fetch is a single blocking
// call bounded by the given timeout; retries are the caller's concern.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// reportRequest is the typed request body for one ad-hoc report.
type reportRequest struct {
	Report    string  `json:"report"`
	GroupID   int64   `json:"group_id"`
	AsOf      string  `json:"as_of,omitempty"`
	Start     string  `json:"start,omitempty"`
	End       string  `json:"end,omitempty"`
	DeviceIDs []int64 `json:"device_ids,omitempty"`
}

// FetchGroupMembership returns the scanner asset ids in the group.
func (c *Client) FetchGroupMembership(ctx context.Context, groupID int64) ([]int64, error) {
	records, err := c.fetch(ctx, reportRequest{Report: reportGroupMembership, GroupID: groupID})
	if err != nil {
		return nil, err
	}
	return parseMembership(records), nil
}

// FetchFindingsAsOf returns the findings observed at the query instant, in
// scanner fetch order.
func (c *Client) FetchFindingsAsOf(ctx context.Context, q ports.FindingsAsOfQuery) ([]domain.Finding, error) {
	records, err := c.fetch(ctx, reportRequest{
		Report:    reportFindingsAsOf,
		GroupID:   q.GroupID,
		AsOf:      q.AsOf.UTC().Format(timestampLayout),
		DeviceIDs: q.DeviceIDs,
	})
	if err != nil {
		return nil, err
	}
	return parseFindingRows(records), nil
}

// FetchFindingsOverInterval returns first/last observation aggregates for
// every finding seen during the interval.
func (c *Client) FetchFindingsOverInterval(ctx context.Context, q ports.FindingsIntervalQuery) ([]domain.HistoricalFinding, error) {
	records, err := c.fetch(ctx, reportRequest{
		Report:  reportFindingsHistory,
		GroupID: q.GroupID,
		Start:   q.Start.UTC().Format(timestampLayout),
		End:     q.End.UTC().Format(timestampLayout),
	})
	if err != nil {
		return nil, err
	}
	return parseHistoryRows(records), nil
}

// fetch submits the report request and reads the whole CSV response.
func (c *Client) fetch(ctx context.Context, reqBody reportRequest) ([][]string, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode report request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reports/adhoc", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scan source request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("scan source returned %s: %s", resp.Status, snippet)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read report response: %w", err)
	}
	return records, nil
}

// parseTimestamp parses a scan-source timestamp, tolerating an optional
// sub-second fractional component, and interprets it as UTC.
func parseTimestamp(s string) (time.Time, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			s = s[:i]
			break
		}
	}
	return time.ParseInLocation(timestampLayout, s, time.UTC)
}

// Ensure interface compliance
var _ ports.ScanSource = (*Client)(nil)
