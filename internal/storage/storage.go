// Package storage provides a SQLite-backed journal of monitoring runs, bands and alerts.
// The journal is write-mostly audit data; a run never restores state from it.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/bandwatch/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// RunRecord is one monitoring run as stored in the journal.
type RunRecord struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Status    string
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/bandwatch/journal.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "bandwatch", "journal.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			ended_at    INTEGER,
			status      TEXT NOT NULL DEFAULT 'running'
		)`,
		`CREATE TABLE IF NOT EXISTS bands (
			run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			instrument    TEXT NOT NULL,
			symbol        TEXT NOT NULL,
			mean          REAL NOT NULL,
			std_dev       REAL NOT NULL,
			k             REAL NOT NULL,
			shape         TEXT NOT NULL,
			observations  INTEGER NOT NULL,
			PRIMARY KEY (run_id, instrument)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT PRIMARY KEY,
			run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			instrument      TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			side            TEXT NOT NULL,
			previous_close  REAL NOT NULL,
			current_price   REAL NOT NULL,
			deviation       REAL NOT NULL,
			threshold       REAL NOT NULL,
			threshold_price REAL NOT NULL,
			detected_at     INTEGER NOT NULL,
			notified        INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_run ON alerts(run_id, detected_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartRun records the beginning of a run.
func (s *Storage) StartRun(runID string, startedAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, runID, startedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the terminal status of a run.
func (s *Storage) FinishRun(runID string, endedAt time.Time, status string) error {
	res, err := s.db.Exec(`UPDATE runs SET ended_at = ?, status = ? WHERE id = ?`,
		endedAt.UnixNano(), status, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun loads one run.
func (s *Storage) GetRun(runID string) (*RunRecord, error) {
	var r RunRecord
	var startedNano int64
	var endedNano sql.NullInt64
	err := s.db.QueryRow(`SELECT id, started_at, ended_at, status FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &startedNano, &endedNano, &r.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	r.StartedAt = time.Unix(0, startedNano)
	if endedNano.Valid {
		r.EndedAt = time.Unix(0, endedNano.Int64)
	}
	return &r, nil
}

// SaveBand records the band computed for an instrument in a run.
func (s *Storage) SaveBand(runID string, inst models.Instrument, b models.Band) error {
	_, err := s.db.Exec(`
		INSERT INTO bands (run_id, instrument, symbol, mean, std_dev, k, shape, observations)
		VALUES (?,?,?,?,?,?,?,?)`,
		runID, inst.Name, inst.Symbol, b.Mean, b.StdDev, b.K, string(b.Shape), b.Observations,
	)
	if err != nil {
		return fmt.Errorf("failed to insert band: %w", err)
	}
	return nil
}

// GetBands returns the bands of a run keyed by instrument name.
func (s *Storage) GetBands(runID string) (map[string]models.Band, error) {
	rows, err := s.db.Query(`
		SELECT instrument, mean, std_dev, k, shape, observations
		FROM bands WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bands: %w", err)
	}
	defer rows.Close()

	bands := make(map[string]models.Band)
	for rows.Next() {
		var name, shape string
		var b models.Band
		if err := rows.Scan(&name, &b.Mean, &b.StdDev, &b.K, &shape, &b.Observations); err != nil {
			return nil, fmt.Errorf("failed to scan band: %w", err)
		}
		b.Shape = models.Shape(shape)
		bands[name] = b
	}
	return bands, rows.Err()
}

// AddAlert records a fired alert.
func (s *Storage) AddAlert(alert *models.Alert) error {
	_, err := s.db.Exec(`
		INSERT INTO alerts
			(id, run_id, instrument, symbol, side, previous_close, current_price,
			 deviation, threshold, threshold_price, detected_at, notified)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		alert.ID, alert.RunID, alert.Instrument.Name, alert.Instrument.Symbol, alert.Side.String(),
		alert.PreviousClose, alert.CurrentPrice, alert.Deviation, alert.Threshold, alert.ThresholdPrice,
		alert.DetectedAt.UnixNano(), boolToInt(alert.Notified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlerts returns a run's alerts in detection order.
func (s *Storage) GetAlerts(runID string) ([]models.Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, instrument, symbol, side, previous_close, current_price,
		       deviation, threshold, threshold_price, detected_at, notified
		FROM alerts WHERE run_id = ? ORDER BY detected_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var side string
		var detectedAtNano int64
		var notified int

		err := rows.Scan(
			&a.ID, &a.RunID, &a.Instrument.Name, &a.Instrument.Symbol, &side,
			&a.PreviousClose, &a.CurrentPrice, &a.Deviation, &a.Threshold, &a.ThresholdPrice,
			&detectedAtNano, &notified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		a.Side = parseSide(side)
		a.DetectedAt = time.Unix(0, detectedAtNano)
		a.Notified = notified != 0
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

func parseSide(s string) models.Side {
	switch s {
	case "buy":
		return models.SideBuy
	case "sell":
		return models.SideSell
	default:
		return models.SideNone
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
