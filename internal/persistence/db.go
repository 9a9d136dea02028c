// Package persistence provides SQLite-based session storage. Park effects are
// baked into per-cell state, so a saved session must round-trip the modified
// heat index exactly to survive a restart.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/avoin/heatplan/internal/grid"
	"github.com/avoin/heatplan/internal/mitigation"
)

// ErrNoSession is returned when no saved session exists.
var ErrNoSession = errors.New("no saved session")

// DB wraps a SQLite connection for session persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		optimised INTEGER NOT NULL,
		cooling_area REAL NOT NULL,
		heat_reduction REAL NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cells (
		session_id TEXT NOT NULL,
		id TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		baseline REAL NOT NULL,
		modified REAL NOT NULL,
		PRIMARY KEY (session_id, id)
	);

	CREATE TABLE IF NOT EXISTS cooling_centers (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		grid_id TEXT NOT NULL,
		capacity REAL NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS park_conversions (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		source_cell_id TEXT NOT NULL,
		area_m2 REAL NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS affected_cells (
		session_id TEXT NOT NULL,
		cell_id TEXT NOT NULL,
		PRIMARY KEY (session_id, cell_id)
	);

	CREATE INDEX IF NOT EXISTS idx_cells_session ON cells(session_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveSession writes the complete session state (full replace).
func (db *DB) SaveSession(s *mitigation.Session) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", s.ID); err != nil {
		return err
	}
	for _, table := range []string{"cells", "cooling_centers", "park_conversions", "affected_cells"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE session_id = ?", s.ID); err != nil {
			return err
		}
	}

	stats := s.Stats()
	optimised := 0
	if stats.Optimised {
		optimised = 1
	}
	_, err = tx.Exec(
		"INSERT INTO sessions (id, optimised, cooling_area, heat_reduction, saved_at) VALUES (?, ?, ?, ?, ?)",
		s.ID, optimised, stats.CumulativeCoolingArea, stats.CumulativeHeatReduction,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	reg := s.Registry()
	stmt, err := tx.Preparex("INSERT INTO cells (session_id, id, x, y, baseline, modified) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range reg.Cells() {
		modified, _ := reg.Modified(c.ID)
		if _, err := stmt.Exec(s.ID, c.ID, c.X, c.Y, c.Baseline, modified); err != nil {
			return fmt.Errorf("insert cell %s: %w", c.ID, err)
		}
	}

	for seq, c := range s.CoolingCenters() {
		_, err := tx.Exec(
			"INSERT INTO cooling_centers (session_id, seq, x, y, grid_id, capacity) VALUES (?, ?, ?, ?, ?, ?)",
			s.ID, seq, c.X, c.Y, c.GridID, c.Capacity,
		)
		if err != nil {
			return fmt.Errorf("insert cooling center %d: %w", seq, err)
		}
	}

	for seq, p := range s.ParkConversions() {
		_, err := tx.Exec(
			"INSERT INTO park_conversions (session_id, seq, source_cell_id, area_m2) VALUES (?, ?, ?, ?)",
			s.ID, seq, p.SourceCellID, p.AreaConvertedM2,
		)
		if err != nil {
			return fmt.Errorf("insert park conversion %d: %w", seq, err)
		}
	}

	for _, c := range reg.Cells() {
		if !s.Affected(c.ID) {
			continue
		}
		if _, err := tx.Exec("INSERT INTO affected_cells (session_id, cell_id) VALUES (?, ?)", s.ID, c.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("session saved",
		"session", s.ID,
		"cells", reg.Count(),
		"cooling_centers", stats.CoolingCenters,
		"park_conversions", stats.ParkConversions,
	)
	return nil
}

// LatestSessionID returns the most recently saved session id.
func (db *DB) LatestSessionID() (string, error) {
	var id string
	err := db.conn.Get(&id, "SELECT id FROM sessions ORDER BY saved_at DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSession
	}
	return id, err
}

type cellRow struct {
	ID       string  `db:"id"`
	X        float64 `db:"x"`
	Y        float64 `db:"y"`
	Baseline float64 `db:"baseline"`
	Modified float64 `db:"modified"`
}

type centerRow struct {
	X        float64 `db:"x"`
	Y        float64 `db:"y"`
	GridID   string  `db:"grid_id"`
	Capacity float64 `db:"capacity"`
}

type conversionRow struct {
	SourceCellID    string  `db:"source_cell_id"`
	AreaConvertedM2 float64 `db:"area_m2"`
}

// LoadSession rebuilds a saved session: registry with baseline indices, the
// persisted modified indices re-applied, then interventions and totals.
func (db *DB) LoadSession(id string, cfg mitigation.Config) (*mitigation.Session, error) {
	var exists int
	if err := db.conn.Get(&exists, "SELECT COUNT(*) FROM sessions WHERE id = ?", id); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNoSession
	}

	var rows []cellRow
	if err := db.conn.Select(&rows, "SELECT id, x, y, baseline, modified FROM cells WHERE session_id = ? ORDER BY rowid", id); err != nil {
		return nil, fmt.Errorf("load cells: %w", err)
	}

	features := make([]grid.Feature, len(rows))
	for i, r := range rows {
		baseline := r.Baseline
		features[i] = grid.Feature{ID: r.ID, X: r.X, Y: r.Y, HeatIndex: &baseline}
	}
	reg := grid.BuildRegistry(features)
	for _, r := range rows {
		reg.SetModified(r.ID, r.Modified)
	}

	var centerRows []centerRow
	err := db.conn.Select(&centerRows,
		"SELECT x, y, grid_id, capacity FROM cooling_centers WHERE session_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("load cooling centers: %w", err)
	}
	centers := make([]mitigation.CoolingCenter, len(centerRows))
	for i, r := range centerRows {
		centers[i] = mitigation.CoolingCenter{X: r.X, Y: r.Y, GridID: r.GridID, Capacity: r.Capacity}
	}

	var conversionRows []conversionRow
	err = db.conn.Select(&conversionRows,
		"SELECT source_cell_id, area_m2 FROM park_conversions WHERE session_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("load park conversions: %w", err)
	}
	conversions := make([]mitigation.ParkConversion, len(conversionRows))
	for i, r := range conversionRows {
		conversions[i] = mitigation.ParkConversion{SourceCellID: r.SourceCellID, AreaConvertedM2: r.AreaConvertedM2}
	}

	var affected []string
	if err := db.conn.Select(&affected, "SELECT cell_id FROM affected_cells WHERE session_id = ?", id); err != nil {
		return nil, fmt.Errorf("load affected cells: %w", err)
	}

	var meta struct {
		Optimised     int     `db:"optimised"`
		CoolingArea   float64 `db:"cooling_area"`
		HeatReduction float64 `db:"heat_reduction"`
	}
	if err := db.conn.Get(&meta, "SELECT optimised, cooling_area, heat_reduction FROM sessions WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("load session meta: %w", err)
	}

	s := mitigation.RestoreSession(reg, cfg, mitigation.RestoreState{
		ID:                      id,
		Centers:                 centers,
		Conversions:             conversions,
		Affected:                affected,
		CumulativeCoolingArea:   meta.CoolingArea,
		CumulativeHeatReduction: meta.HeatReduction,
		Optimised:               meta.Optimised == 1,
	})

	slog.Info("session restored",
		"session", id,
		"cells", reg.Count(),
		"cooling_centers", len(centers),
		"park_conversions", len(conversions),
	)
	return s, nil
}
