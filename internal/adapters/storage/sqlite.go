// Package storage implements the persistent compliance store on SQLite.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
	"github.com/lcalzada-xor/vmtrack/internal/core/ports"
	"github.com/lcalzada-xor/vmtrack/internal/telemetry"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is recorded in the single-row schema_version marker.
const schemaVersion = 1

// SQLiteStore implements ports.Store over database/sql and SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the compliance database at
// path, initializes the schema and stamps the schema version.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&current); err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if !current.Valid {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return nil, fmt.Errorf("failed to stamp schema version: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// ReconcileIdentity looks for a tracked asset with the same MAC and
// hostname under a different UID and updates the stored identity in place,
// keeping the internal id and all attached history.
func (s *SQLiteStore) ReconcileIdentity(ctx context.Context, obs domain.AssetObservation) error {
	if obs.MAC == "" {
		return nil
	}

	var id int64
	var storedUID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, uid FROM assets WHERE mac = ? AND hostname = ?",
		obs.MAC, obs.Hostname).Scan(&id, &storedUID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("identity lookup failed: %w", err)
	}
	if storedUID == obs.UID {
		return nil
	}

	slog.Info("updating asset identity in place", "was", storedUID, "now", obs.UID)
	_, err = s.db.ExecContext(ctx,
		"UPDATE assets SET uid = ?, ip = ?, hostname = ?, external_id = ? WHERE id = ?",
		obs.UID, obs.IP, obs.Hostname, obs.ExternalID, id)
	if err != nil {
		return fmt.Errorf("identity update failed: %w", err)
	}
	return nil
}

// AddAsset returns the internal id for the observed UID, inserting the
// asset together with its compliance record when the identity is new.
// Identities whose scanner-id and address match an existing asset under any
// sub-identifier are rejected as duplicates.
func (s *SQLiteStore) AddAsset(ctx context.Context, obs domain.AssetObservation) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM assets WHERE uid = ?", obs.UID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("asset lookup failed: %w", err)
	}

	dup, err := s.hasDuplicateIdentity(ctx, obs.UID)
	if err != nil {
		return 0, err
	}
	if dup {
		return 0, fmt.Errorf("uid %s: %w", obs.UID, domain.ErrDuplicateAsset)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin asset insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO assets (uid, external_id, ip, hostname, mac) VALUES (?, ?, ?, ?, ?)",
		obs.UID, obs.ExternalID, obs.IP, obs.Hostname, obs.MAC)
	if err != nil {
		return 0, fmt.Errorf("asset insert failed: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	// Every asset carries exactly one compliance tracking row.
	_, err = tx.ExecContext(ctx,
		"INSERT INTO compliance (asset_id, failed, link, last_updated, failing_finding_id) VALUES (?, 0, NULL, 0, 0)",
		id)
	if err != nil {
		return 0, fmt.Errorf("compliance insert failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit asset insert: %w", err)
	}
	return id, nil
}

// hasDuplicateIdentity wildcard-matches the UID's middle sub-identifier:
// "scanner|42|10.0.0.5" duplicates any stored "scanner|<anything>|10.0.0.5".
func (s *SQLiteStore) hasDuplicateIdentity(ctx context.Context, uid string) (bool, error) {
	parts := strings.Split(uid, "|")
	if len(parts) != 3 {
		return false, nil
	}
	pattern := parts[0] + "|%|" + parts[2]
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM assets WHERE uid LIKE ?", pattern).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("duplicate search failed: %w", err)
	}
	return n > 0, nil
}

// upsertVulnDefinition inserts the vulnerability catalog entry, falling
// back to a CVSS-only revision when the external id already exists.
func (s *SQLiteStore) upsertVulnDefinition(ctx context.Context, def domain.VulnDefinition) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO vulnerabilities (external_id, title, cvss, known_exploits, known_malware, description, cvss_vector)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		def.ExternalID, def.Title, def.CVSS, boolToInt(def.KnownExploits), boolToInt(def.KnownMalware),
		def.Description, def.CVSSVector)
	if err != nil {
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("vulnerability insert failed: %w", err)
		}
		var id int64
		lookupErr := s.db.QueryRowContext(ctx,
			"SELECT id FROM vulnerabilities WHERE external_id = ?", def.ExternalID).Scan(&id)
		if lookupErr == sql.ErrNoRows {
			return 0, fmt.Errorf("vulnerability %d present on insert but absent on lookup: %w",
				def.ExternalID, domain.ErrInvariant)
		}
		if lookupErr != nil {
			return 0, fmt.Errorf("vulnerability lookup failed: %w", lookupErr)
		}
		// Source signatures can be rescored after publication; the CVSS
		// score is the only field revised post-creation.
		if _, err := s.db.ExecContext(ctx,
			"UPDATE vulnerabilities SET cvss = ? WHERE id = ?", def.CVSS, id); err != nil {
			return 0, fmt.Errorf("cvss revision failed: %w", err)
		}
		return id, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := s.addReferences(ctx, id, def); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) addReferences(ctx context.Context, vulnID int64, def domain.VulnDefinition) error {
	for _, cve := range def.CVEs {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO cve_refs (finding_vuln_id, cve) VALUES (?, ?)", vulnID, cve); err != nil {
			return fmt.Errorf("cve reference insert failed: %w", err)
		}
	}
	for _, adv := range def.Advisories {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO advisory_refs (finding_vuln_id, advisory_id) VALUES (?, ?)", vulnID, adv); err != nil {
			return fmt.Errorf("advisory reference insert failed: %w", err)
		}
	}
	return nil
}

// UpsertFinding records one observed finding. A first observation creates
// the finding row and its workflow record (status NEW) atomically; a
// re-observation refreshes detection data and resets RESOLVED/CLOSED
// workflow state back to NEW, leaving other statuses untouched.
func (s *SQLiteStore) UpsertFinding(ctx context.Context, assetID int64, f domain.Finding, autogroup string) error {
	vulnID, err := s.upsertVulnDefinition(ctx, f.Definition())
	if err != nil {
		return err
	}

	var findingID int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM findings WHERE asset_id = ? AND vuln_id = ?", assetID, vulnID).Scan(&findingID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("finding lookup failed: %w", err)
	}

	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return fmt.Errorf("begin finding upsert: %w", txErr)
	}
	defer tx.Rollback()

	if err == sql.ErrNoRows {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO findings (asset_id, vuln_id, detected_at, age_days, autogroup, proof)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			assetID, vulnID, f.Detected.Unix(), f.AgeDays, autogroup, f.Proof)
		if err != nil {
			return fmt.Errorf("finding insert failed: %w", err)
		}
		findingID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO workflow (finding_id, last_handled_at, contact, status) VALUES (?, 0, '', ?)",
			findingID, domain.StatusNew); err != nil {
			return fmt.Errorf("workflow insert failed: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit finding insert: %w", err)
		}
		telemetry.FindingsIngested.WithLabelValues("created").Inc()
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE findings SET detected_at = ?, age_days = ?, proof = ?, autogroup = ? WHERE id = ?",
		f.Detected.Unix(), f.AgeDays, f.Proof, autogroup, findingID); err != nil {
		return fmt.Errorf("finding update failed: %w", err)
	}
	if err := resetWorkflowIfFinished(ctx, tx, findingID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finding update: %w", err)
	}
	telemetry.FindingsIngested.WithLabelValues("updated").Inc()
	return nil
}

// resetWorkflowIfFinished handles a vulnerability reappearing on an asset
// after it was resolved or closed: the workflow record goes back to NEW.
func resetWorkflowIfFinished(ctx context.Context, tx *sql.Tx, findingID int64) error {
	var status domain.WorkflowStatus
	err := tx.QueryRowContext(ctx,
		"SELECT status FROM workflow WHERE finding_id = ?", findingID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("workflow status lookup failed: %w", err)
	}
	if status != domain.StatusResolved && status != domain.StatusClosed {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE workflow SET status = ? WHERE finding_id = ?",
		domain.StatusNew, findingID); err != nil {
		return fmt.Errorf("workflow reset failed: %w", err)
	}
	telemetry.WorkflowTransitions.WithLabelValues("reobserved_reset").Inc()
	slog.Debug("workflow reset to new on re-observation", "finding_id", findingID)
	return nil
}

// ResolveMissingFindings marks as RESOLVED every finding of the asset whose
// vulnerability external id is absent from seen.
func (s *SQLiteStore) ResolveMissingFindings(ctx context.Context, assetID int64, seen []int64) (int, error) {
	seenSet := make(map[int64]struct{}, len(seen))
	for _, v := range seen {
		seenSet[v] = struct{}{}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT vulnerabilities.external_id, findings.id FROM findings
		 JOIN vulnerabilities ON findings.vuln_id = vulnerabilities.id
		 WHERE findings.asset_id = ?`, assetID)
	if err != nil {
		return 0, fmt.Errorf("finding scan failed: %w", err)
	}
	defer rows.Close()

	var missing []int64
	for rows.Next() {
		var extID, findingID int64
		if err := rows.Scan(&extID, &findingID); err != nil {
			return 0, err
		}
		if _, ok := seenSet[extID]; !ok {
			missing = append(missing, findingID)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	resolved := 0
	for _, findingID := range missing {
		res, err := s.db.ExecContext(ctx,
			"UPDATE workflow SET status = ? WHERE finding_id = ? AND status <> ?",
			domain.StatusResolved, findingID, domain.StatusResolved)
		if err != nil {
			return resolved, fmt.Errorf("workflow resolve failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			resolved += int(n)
			telemetry.WorkflowTransitions.WithLabelValues("resolved").Add(float64(n))
			slog.Debug("marking finding resolved", "finding_id", findingID)
		}
	}
	return resolved, nil
}

// ResolveExpiredAssets resolves all workflow records of assets whose UID
// was absent from the current report (retired/decommissioned hosts).
func (s *SQLiteStore) ResolveExpiredAssets(ctx context.Context, seenUIDs map[string]struct{}) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, uid FROM assets")
	if err != nil {
		return 0, fmt.Errorf("asset scan failed: %w", err)
	}
	defer rows.Close()

	var expired []int64
	for rows.Next() {
		var id int64
		var uid string
		if err := rows.Scan(&id, &uid); err != nil {
			return 0, err
		}
		if _, ok := seenUIDs[uid]; !ok {
			expired = append(expired, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	resolved := 0
	for _, assetID := range expired {
		res, err := s.db.ExecContext(ctx,
			`UPDATE workflow SET status = ?
			 WHERE status <> ? AND finding_id IN (SELECT id FROM findings WHERE asset_id = ?)`,
			domain.StatusResolved, domain.StatusResolved, assetID)
		if err != nil {
			return resolved, fmt.Errorf("expired asset resolve failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			resolved += int(n)
			telemetry.WorkflowTransitions.WithLabelValues("expired_resolved").Add(float64(n))
			slog.Debug("resolving all open issues for expired asset", "asset_id", assetID, "count", n)
		}
	}
	return resolved, nil
}

// ComplianceValues returns the (finding id, cvss, age) tuples for the
// asset's current findings, ordered by finding id so the first-failing
// attribution is deterministic.
func (s *SQLiteStore) ComplianceValues(ctx context.Context, uid string) ([]domain.ComplianceValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT findings.id, vulnerabilities.cvss, findings.age_days FROM findings
		 JOIN vulnerabilities ON findings.vuln_id = vulnerabilities.id
		 JOIN assets ON findings.asset_id = assets.id
		 WHERE assets.uid = ?
		 ORDER BY findings.id`, uid)
	if err != nil {
		return nil, fmt.Errorf("compliance values query failed: %w", err)
	}
	defer rows.Close()

	var values []domain.ComplianceValue
	for rows.Next() {
		var v domain.ComplianceValue
		if err := rows.Scan(&v.FindingID, &v.CVSS, &v.AgeDays); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// UpdateCompliance stamps the asset's compliance record with the outcome of
// a policy evaluation.
func (s *SQLiteStore) UpdateCompliance(ctx context.Context, uid string, failed bool, failingFindingID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE compliance SET failed = ?, last_updated = ?, failing_finding_id = ?
		 WHERE asset_id IN (SELECT id FROM assets WHERE uid = ?)`,
		boolToInt(failed), at.Unix(), failingFindingID, uid)
	if err != nil {
		return fmt.Errorf("compliance update failed: %w", err)
	}
	return nil
}

// Assets lists all tracked assets.
func (s *SQLiteStore) Assets(ctx context.Context) ([]domain.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, uid, external_id, ip, hostname, mac FROM assets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("asset list query failed: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		if err := rows.Scan(&a.ID, &a.UID, &a.ExternalID, &a.IP, &a.Hostname, &a.MAC); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// WorkflowForAsset returns the full remediation view for one asset. An
// asset with no findings yields an empty slice, not an error.
func (s *SQLiteStore) WorkflowForAsset(ctx context.Context, assetID int64) ([]domain.WorkflowEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow.id, workflow.status, workflow.last_handled_at, workflow.contact,
		        assets.id, assets.external_id, assets.ip, assets.hostname, assets.mac,
		        vulnerabilities.id, vulnerabilities.external_id, vulnerabilities.title,
		        vulnerabilities.description, vulnerabilities.cvss, vulnerabilities.cvss_vector,
		        vulnerabilities.known_exploits, vulnerabilities.known_malware,
		        findings.detected_at, findings.age_days, findings.autogroup, findings.proof
		 FROM findings
		 JOIN assets ON assets.id = findings.asset_id
		 JOIN vulnerabilities ON vulnerabilities.id = findings.vuln_id
		 JOIN workflow ON workflow.finding_id = findings.id
		 WHERE assets.id = ?
		 ORDER BY workflow.id`, assetID)
	if err != nil {
		return nil, fmt.Errorf("workflow query failed: %w", err)
	}
	defer rows.Close()

	var entries []domain.WorkflowEntry
	var vulnIDs []int64
	for rows.Next() {
		var e domain.WorkflowEntry
		var vulnID, lastHandled, detected int64
		var exploits, malware int
		if err := rows.Scan(&e.WorkflowID, &e.Status, &lastHandled, &e.Contact,
			&e.AssetID, &e.AssetExternalID, &e.IP, &e.Hostname, &e.MAC,
			&vulnID, &e.VulnExternalID, &e.Title, &e.Description, &e.CVSS, &e.CVSSVector,
			&exploits, &malware,
			&detected, &e.AgeDays, &e.Autogroup, &e.Proof); err != nil {
			return nil, err
		}
		e.StatusLabel = e.Status.String()
		e.LastHandled = time.Unix(lastHandled, 0).UTC()
		e.Detected = time.Unix(detected, 0).UTC()
		e.KnownExploits = exploits != 0
		e.KnownMalware = malware != 0
		entries = append(entries, e)
		vulnIDs = append(vulnIDs, vulnID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, vulnID := range vulnIDs {
		cves, err := s.cvesForVuln(ctx, vulnID)
		if err != nil {
			return nil, err
		}
		entries[i].CVEs = cves
	}
	return entries, nil
}

func (s *SQLiteStore) cvesForVuln(ctx context.Context, vulnID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT cve FROM cve_refs WHERE finding_vuln_id = ? ORDER BY cve", vulnID)
	if err != nil {
		return nil, fmt.Errorf("cve reference query failed: %w", err)
	}
	defer rows.Close()

	var cves []string
	for rows.Next() {
		var cve string
		if err := rows.Scan(&cve); err != nil {
			return nil, err
		}
		cves = append(cves, cve)
	}
	return cves, rows.Err()
}

// ComplianceForAsset returns the asset's current compliance standing, or
// nil when the asset is untracked.
func (s *SQLiteStore) ComplianceForAsset(ctx context.Context, assetID int64) (*domain.ComplianceStatus, error) {
	var cs domain.ComplianceStatus
	var failed int
	var lastUpdated, failingID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT compliance.id, assets.id, compliance.failed, compliance.last_updated,
		        compliance.failing_finding_id, assets.ip, assets.hostname, assets.mac
		 FROM compliance
		 JOIN assets ON assets.id = compliance.asset_id
		 WHERE assets.id = ?`, assetID).Scan(
		&cs.ComplianceID, &cs.AssetID, &failed, &lastUpdated, &failingID,
		&cs.IP, &cs.Hostname, &cs.MAC)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compliance query failed: %w", err)
	}
	cs.Failed = failed != 0
	cs.LastUpdated = time.Unix(lastUpdated, 0).UTC()

	if failingID != 0 {
		err := s.db.QueryRowContext(ctx,
			`SELECT vulnerabilities.external_id, vulnerabilities.title, vulnerabilities.cvss,
			        findings.age_days, findings.autogroup
			 FROM findings
			 JOIN vulnerabilities ON vulnerabilities.id = findings.vuln_id
			 WHERE findings.id = ?`, failingID).Scan(
			&cs.FailingVulnID, &cs.FailingTitle, &cs.FailingCVSS, &cs.FailingAge, &cs.Autogroup)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("failing finding query failed: %w", err)
		}
	}
	return &cs, nil
}

// SetWorkflowStatus applies a human-set workflow transition, stamping the
// handled time. An empty contact leaves the current assignment untouched.
func (s *SQLiteStore) SetWorkflowStatus(ctx context.Context, workflowID int64, status domain.WorkflowStatus, contact string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflow SET status = ?, last_handled_at = ?,
		        contact = COALESCE(NULLIF(?, ''), contact)
		 WHERE id = ?`,
		status, time.Now().UTC().Unix(), contact, workflowID)
	if err != nil {
		return fmt.Errorf("workflow status update failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure interface compliance
var _ ports.Store = (*SQLiteStore)(nil)
