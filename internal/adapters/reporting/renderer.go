// Package reporting renders a comparative dataset as a plain-text or CSV
// report for the compliance mailing.
package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
)

// Mode selects the report output format.
type Mode string

const (
	ModeText Mode = "text"
	ModeCSV  Mode = "csv"
)

// topListLimit caps the host and vulnerability detail tables.
const topListLimit = 20

// Renderer writes dataset sections to a single output writer. The mode is
// explicit configuration; there is no process-wide output state.
type Renderer struct {
	w    io.Writer
	mode Mode
}

// NewRenderer creates a renderer in the given mode.
func NewRenderer(w io.Writer, mode Mode) *Renderer {
	return &Renderer{w: w, mode: mode}
}

// Render writes the full report.
func (r *Renderer) Render(ds *domain.Dataset) error {
	sections := []func(*domain.Dataset) error{
		r.complianceSummary,
		r.currentStateSummary,
		r.trending,
		r.hostDetails,
		r.vulnDetails,
	}
	for _, section := range sections {
		if err := section(ds); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) complianceSummary(ds *domain.Dataset) error {
	r.heading("Compliance Summary")

	t := r.newTable()
	t.addRow("Impact", "In Compliance", "Out of Compliance")
	for _, b := range domain.BucketOrder {
		pf := ds.CurrentCompStats.PassFail[b]
		t.addRow(string(b), itoa(pf.Pass), itoa(pf.Fail))
	}
	if err := t.flush("## Vulnerability Compliance Status"); err != nil {
		return err
	}

	t = r.newTable()
	t.addRow("Impact", "Current - 2 (In/Out)", "Current - 1 (In/Out)", "Current")
	for _, b := range domain.BucketOrder {
		t.addRow(string(b),
			passFailCell(ds.PreviousCompStats, 1, b),
			passFailCell(ds.PreviousCompStats, 0, b),
			func() string {
				pf := ds.CurrentCompStats.PassFail[b]
				return fmt.Sprintf("%d/%d", pf.Pass, pf.Fail)
			}())
	}
	if err := t.flush("## Compliance Trends"); err != nil {
		return err
	}

	if ds.AvgResolutionDays != nil {
		t = r.newTable()
		t.addRow("Impact", "Average (Days)")
		for _, b := range domain.BucketOrder {
			if avg, ok := ds.AvgResolutionDays[b]; ok {
				t.addRow(string(b), ftoa(avg))
			} else {
				t.addRow(string(b), "NA")
			}
		}
		if err := t.flush("## Average Resolution Time"); err != nil {
			return err
		}
	}

	for _, b := range []domain.Bucket{domain.BucketMaximum, domain.BucketHigh} {
		t = r.newTable()
		t.addRow("Title", "Instances")
		for _, ent := range ds.CurrentCompStats.ImpactSummary[b] {
			t.addRow(ent.Title, itoa(ent.Count))
		}
		if err := t.flush(fmt.Sprintf("## Outside Compliance Window (%s)", b)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) currentStateSummary(ds *domain.Dataset) error {
	r.heading("Current State Summary")

	t := r.newTable()
	t.addRow("Impact", "Count")
	for _, b := range domain.BucketOrder {
		pf := ds.CurrentCompStats.PassFail[b]
		t.addRow(string(b), itoa(pf.Pass+pf.Fail))
	}
	if err := t.flush("## Vulnerabilities by Impact"); err != nil {
		return err
	}

	t = r.newTable()
	t.addRow("Impact", "Average Age (days)")
	for _, b := range domain.BucketOrder {
		t.addRow(string(b), ageCell(ds.CurrentStats.AgeAverage, b))
	}
	if err := t.flush("## Age by Impact"); err != nil {
		return err
	}

	t = r.newTable()
	t.addRow("Impact", "Number of Nodes")
	for _, b := range domain.BucketOrder {
		t.addRow(string(b), itoa(ds.CurrentStats.NodeImpact[b]))
	}
	if err := t.flush("## Nodes by Impact"); err != nil {
		return err
	}

	resolved := make([]domain.ResolvedVuln, len(ds.Resolved))
	copy(resolved, ds.Resolved)
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Resolved > resolved[j].Resolved
	})
	t = r.newTable()
	t.addRow("Title", "Resolved On", "Remains On", "Impact")
	for _, rv := range resolved {
		if rv.Resolved == 0 {
			continue
		}
		t.addRow(rv.Title, itoa(rv.Resolved), itoa(rv.Remains), string(domain.BucketForCVSS(rv.CVSS)))
	}
	return t.flush("## Issues Resolved")
}

func (r *Renderer) trending(ds *domain.Dataset) error {
	r.heading("Trending")

	t := r.newTable()
	t.addRow("Impact", "Current - 2", "Current - 1", "Current")
	for _, b := range domain.BucketOrder {
		cur := ds.CurrentCompStats.PassFail[b]
		t.addRow(string(b),
			totalCell(ds.PreviousCompStats, 1, b),
			totalCell(ds.PreviousCompStats, 0, b),
			itoa(cur.Pass+cur.Fail))
	}
	if err := t.flush("## Vulnerabilities by Impact over Time"); err != nil {
		return err
	}

	t = r.newTable()
	t.addRow("Impact", "Current - 2 (days)", "Current - 1 (days)", "Current")
	for _, b := range domain.BucketOrder {
		t.addRow(string(b),
			prevAgeCell(ds.PreviousStats, 1, b),
			prevAgeCell(ds.PreviousStats, 0, b),
			ageCell(ds.CurrentStats.AgeAverage, b))
	}
	return t.flush("## Average Age by Impact over Time")
}

func (r *Renderer) hostDetails(ds *domain.Dataset) error {
	r.heading("Host Details")

	t := r.newTable()
	t.addRow("Hostname", "Address", "Vulnerabilities", "Cumulative Impact")
	for i, hi := range ds.CurrentStats.HostImpact {
		if i >= topListLimit {
			break
		}
		t.addRow(hi.Hostname, hi.Address, itoa(hi.Count), ftoa(hi.Score))
	}
	return t.flush("## Top Hosts by Impact")
}

func (r *Renderer) vulnDetails(ds *domain.Dataset) error {
	r.heading("Vulnerability Details")

	t := r.newTable()
	t.addRow("Title", "Instances", "Cumulative Impact")
	for i, vi := range ds.CurrentStats.VulnImpact {
		if i >= topListLimit {
			break
		}
		t.addRow(vi.Title, itoa(vi.Count), ftoa(vi.Score))
	}
	return t.flush("## Top Issues by Impact")
}

func (r *Renderer) heading(title string) {
	if r.mode != ModeText {
		return
	}
	fmt.Fprintf(r.w, "%s\n", title)
	for range title {
		fmt.Fprint(r.w, "-")
	}
	fmt.Fprint(r.w, "\n\n")
}

// Cell helpers: back-dated windows beyond what was fetched render as NA,
// as does the age average of an empty snapshot.

func passFailCell(prev []domain.ComplianceStats, idx int, b domain.Bucket) string {
	if idx >= len(prev) {
		return "NA"
	}
	pf := prev[idx].PassFail[b]
	return fmt.Sprintf("%d/%d", pf.Pass, pf.Fail)
}

func totalCell(prev []domain.ComplianceStats, idx int, b domain.Bucket) string {
	if idx >= len(prev) {
		return "NA"
	}
	pf := prev[idx].PassFail[b]
	return itoa(pf.Pass + pf.Fail)
}

func prevAgeCell(prev []domain.SnapshotStats, idx int, b domain.Bucket) string {
	if idx >= len(prev) {
		return "NA"
	}
	return ageCell(prev[idx].AgeAverage, b)
}

func ageCell(avg map[domain.Bucket]float64, b domain.Bucket) string {
	if avg == nil {
		return "NA"
	}
	v, ok := avg[b]
	if !ok {
		return "NA"
	}
	return ftoa(v)
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

func ftoa(f float64) string { return fmt.Sprintf("%.2f", f) }

// dataTable buffers rows and emits them as an aligned text table or CSV
// records depending on the renderer mode.
type dataTable struct {
	r    *Renderer
	rows [][]string
}

func (r *Renderer) newTable() *dataTable {
	return &dataTable{r: r}
}

func (t *dataTable) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *dataTable) flush(title string) error {
	switch t.r.mode {
	case ModeCSV:
		w := csv.NewWriter(t.r.w)
		for _, row := range t.rows {
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	default:
		fmt.Fprintf(t.r.w, "%s\n", title)
		tw := tabwriter.NewWriter(t.r.w, 0, 4, 2, ' ', 0)
		for _, row := range t.rows {
			for i, cell := range row {
				if i > 0 {
					fmt.Fprint(tw, "\t")
				}
				fmt.Fprint(tw, cell)
			}
			fmt.Fprint(tw, "\n")
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprint(t.r.w, "\n")
		return nil
	}
}
