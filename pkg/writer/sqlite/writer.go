// Package sqlite provides SQLite database writing for annotation results
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/vkmz/pkg/model"
	"github.com/ChrisMcGann/vkmz/pkg/writer/metadata"
)

// Writer handles writing a relational model to a SQLite database file
type Writer struct {
	db         *sql.DB
	outputPath string
	closed     bool
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS Sample (
		Id INTEGER PRIMARY KEY,
		Name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS Feature (
		Id INTEGER PRIMARY KEY,
		Name TEXT,
		Polarity TEXT,
		Mz REAL,
		Rt REAL,
		Charge INTEGER
	);

	CREATE TABLE IF NOT EXISTS Prediction (
		Id INTEGER PRIMARY KEY AUTOINCREMENT,
		Rank INTEGER,
		Formula TEXT,
		Mass REAL,
		Delta REAL,
		ElementCount TEXT,
		Hc REAL,
		Oc REAL,
		Nc REAL,
		FeatureId INTEGER REFERENCES Feature(Id)
	);

	CREATE TABLE IF NOT EXISTS SampleFeatureIntensity (
		Id INTEGER PRIMARY KEY AUTOINCREMENT,
		Intensity REAL,
		SampleId INTEGER REFERENCES Sample(Id),
		FeatureId INTEGER REFERENCES Feature(Id),
		UNIQUE (SampleId, FeatureId)
	);

	CREATE TABLE IF NOT EXISTS Metadata (
		Name TEXT PRIMARY KEY,
		Value TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// WriteModel writes every sample, feature, prediction and sample/feature
// intensity in a single transaction. Ids are the model's creation-order ids.
func (w *Writer) WriteModel(m *model.Model) (err error) {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	sampleStmt, err := tx.Prepare(`INSERT INTO Sample (Id, Name) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample statement: %w", err)
	}
	defer sampleStmt.Close()

	featureStmt, err := tx.Prepare(`
		INSERT INTO Feature (Id, Name, Polarity, Mz, Rt, Charge)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare feature statement: %w", err)
	}
	defer featureStmt.Close()

	predictionStmt, err := tx.Prepare(`
		INSERT INTO Prediction (Rank, Formula, Mass, Delta, ElementCount, Hc, Oc, Nc, FeatureId)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare prediction statement: %w", err)
	}
	defer predictionStmt.Close()

	sfiStmt, err := tx.Prepare(`
		INSERT INTO SampleFeatureIntensity (Intensity, SampleId, FeatureId)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare intensity statement: %w", err)
	}
	defer sfiStmt.Close()

	for _, s := range m.Samples() {
		if _, err = sampleStmt.Exec(s.ID(), s.Name()); err != nil {
			return fmt.Errorf("failed to insert sample %s: %w", s.Name(), err)
		}
	}

	for _, f := range m.Features() {
		if _, err = featureStmt.Exec(f.ID(), f.Name(), string(f.Polarity()), f.MZ(), f.RT(), f.Charge()); err != nil {
			return fmt.Errorf("failed to insert feature %s: %w", f.Key(), err)
		}
		for rank, p := range f.Predictions() {
			_, err = predictionStmt.Exec(
				rank,                // Rank (0 = primary)
				p.Formula,           // Formula
				p.Mass,              // Mass
				p.Delta,             // Delta
				p.Elements.String(), // ElementCount
				p.HC,                // Hc
				p.OC,                // Oc
				p.NC,                // Nc
				f.ID(),              // FeatureId
			)
			if err != nil {
				return fmt.Errorf("failed to insert prediction %s for %s: %w", p.Formula, f.Key(), err)
			}
		}
	}

	for _, s := range m.Samples() {
		for _, sfi := range s.SFIs() {
			if _, err = sfiStmt.Exec(sfi.Intensity(), s.ID(), sfi.Feature().ID()); err != nil {
				return fmt.Errorf("failed to insert intensity for %s in %s: %w", sfi.Feature().Key(), s.Name(), err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// WriteMetadata stores the run parameters as name/value rows.
func (w *Writer) WriteMetadata(r metadata.Run) error {
	for _, kv := range r.Fields() {
		if _, err := w.db.Exec(`INSERT OR REPLACE INTO Metadata (Name, Value) VALUES (?, ?)`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to insert metadata %s: %w", kv[0], err)
		}
	}
	return nil
}

// Close closes the database connection
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
