// Package sqlitedoc is the live document store: outfits per user, trained
// checkpoints with the extents they were trained on, calibration thresholds
// and a log of served predictions.
package sqlitedoc

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"outfitcast/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite database used as a document store.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases shared across calls
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS outfits (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  user_id TEXT NOT NULL,
	  type_ids TEXT NOT NULL,
	  tag_id_lists TEXT NOT NULL,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_outfits_user ON outfits(user_id);
	CREATE TABLE IF NOT EXISTS models (
	  name TEXT NOT NULL,
	  version INTEGER NOT NULL,
	  created_at INTEGER NOT NULL,
	  items INTEGER NOT NULL,
	  tags INTEGER NOT NULL,
	  features INTEGER NOT NULL,
	  checkpoint BLOB NOT NULL,
	  PRIMARY KEY (name, version)
	);
	CREATE TABLE IF NOT EXISTS calibration (
	  name TEXT PRIMARY KEY,
	  threshold REAL
	);
	CREATE TABLE IF NOT EXISTS predictions (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  outfit_id INTEGER NOT NULL,
	  location TEXT NOT NULL,
	  features INTEGER NOT NULL,
	  weather BLOB NOT NULL,
	  probability REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_ts ON predictions(ts);
	`)
	return err
}

// PutOutfit stores an outfit's ids for a user and returns its row id.
// Weather and label are not stored; both come from the request.
func (d *DB) PutOutfit(ctx context.Context, userID string, o model.Outfit) (int64, error) {
	tb, err := json.Marshal(nonNil(o.TypeIDs))
	if err != nil {
		return 0, err
	}
	gb, err := json.Marshal(nonNilLists(o.TagIDLists))
	if err != nil {
		return 0, err
	}
	res, err := d.sql.ExecContext(ctx, `INSERT INTO outfits(user_id, type_ids, tag_id_lists, created_at) VALUES(?,?,?,?)`,
		userID, string(tb), string(gb), time.Now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// StoredOutfit is an outfit row. Outfit.Source is "outfit:<id>".
type StoredOutfit struct {
	ID     int64
	Outfit model.Outfit
}

// OutfitsForUser returns a user's outfits in insertion order.
func (d *DB) OutfitsForUser(ctx context.Context, userID string) ([]StoredOutfit, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, type_ids, tag_id_lists FROM outfits WHERE user_id=? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredOutfit
	for rows.Next() {
		var id int64
		var tb, gb string
		if err := rows.Scan(&id, &tb, &gb); err != nil {
			return nil, err
		}
		o := model.Outfit{Source: fmt.Sprintf("outfit:%d", id)}
		if err := json.Unmarshal([]byte(tb), &o.TypeIDs); err != nil {
			return nil, fmt.Errorf("outfit %d type_ids: %w", id, err)
		}
		if err := json.Unmarshal([]byte(gb), &o.TagIDLists); err != nil {
			return nil, fmt.Errorf("outfit %d tag_id_lists: %w", id, err)
		}
		out = append(out, StoredOutfit{ID: id, Outfit: o})
	}
	return out, rows.Err()
}

// ModelRecord is a registered checkpoint. Extents and Features are copied out
// of the checkpoint so they can be listed without decoding it.
type ModelRecord struct {
	Name       string
	Version    int
	CreatedAt  time.Time
	Extents    model.Extents
	Features   int
	Checkpoint []byte
}

// SaveModel registers a checkpoint under the next version for its name.
func (d *DB) SaveModel(ctx context.Context, m ModelRecord) (int, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	var version int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM models WHERE name=?`, m.Name).Scan(&version); err != nil {
		return 0, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO models(name, version, created_at, items, tags, features, checkpoint) VALUES(?,?,?,?,?,?,?)`,
		m.Name, version, time.Now().UTC().Unix(), m.Extents.Items, m.Extents.Tags, m.Features, m.Checkpoint)
	if err != nil {
		return 0, err
	}
	return version, tx.Commit()
}

// LoadModel returns the latest version registered under name.
func (d *DB) LoadModel(ctx context.Context, name string) (*ModelRecord, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT version, created_at, items, tags, features, checkpoint FROM models WHERE name=? ORDER BY version DESC LIMIT 1`, name)
	m := ModelRecord{Name: name}
	var created int64
	err := row.Scan(&m.Version, &created, &m.Extents.Items, &m.Extents.Tags, &m.Features, &m.Checkpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	m.CreatedAt = time.Unix(created, 0).UTC()
	return &m, nil
}

// SaveThreshold stores the decision threshold calibrated for a model.
func (d *DB) SaveThreshold(ctx context.Context, name string, thr float64) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO calibration(name, threshold) VALUES(?, ?) ON CONFLICT(name) DO UPDATE SET threshold=excluded.threshold`, name, thr)
	return err
}

func (d *DB) LoadThreshold(ctx context.Context, name string) (float64, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT threshold FROM calibration WHERE name=?`, name)
	var thr sql.NullFloat64
	if err := row.Scan(&thr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("threshold for %q: %w", name, ErrNotFound)
		}
		return 0, err
	}
	if !thr.Valid {
		return 0, fmt.Errorf("threshold for %q: %w", name, ErrNotFound)
	}
	return thr.Float64, nil
}

// Prediction is one served score with the hour-major weather it was computed on.
type Prediction struct {
	TS          time.Time
	OutfitID    int64
	Location    string
	Weather     [][]float32
	Probability float64
}

// PutPredictions logs one request's scores in a single transaction. Either
// every row is stored or none is.
func (d *DB) PutPredictions(ctx context.Context, ps []Prediction) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for i, p := range ps {
		features, flat, err := flattenWeather(p.Weather)
		if err != nil {
			return fmt.Errorf("prediction %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO predictions(ts, outfit_id, location, features, weather, probability) VALUES(?,?,?,?,?,?)`,
			p.TS.Unix(), p.OutfitID, p.Location, features, encodeF32(flat), p.Probability)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func flattenWeather(w [][]float32) (int, []float32, error) {
	features := 0
	if len(w) > 0 {
		features = len(w[0])
	}
	flat := make([]float32, 0, len(w)*features)
	for _, row := range w {
		if len(row) != features {
			return 0, nil, errors.New("weather is not rectangular")
		}
		flat = append(flat, row...)
	}
	return features, flat, nil
}

// PredictionsRange returns predictions served in [start, end).
func (d *DB) PredictionsRange(ctx context.Context, start, end time.Time) ([]Prediction, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT ts, outfit_id, location, features, weather, probability FROM predictions WHERE ts>=? AND ts<? ORDER BY ts, id`, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Prediction
	for rows.Next() {
		var ts int64
		var features int
		var wb []byte
		var p Prediction
		if err := rows.Scan(&ts, &p.OutfitID, &p.Location, &features, &wb, &p.Probability); err != nil {
			return nil, err
		}
		p.TS = time.Unix(ts, 0).UTC()
		flat := decodeF32(wb)
		if features > 0 {
			for i := 0; i+features <= len(flat); i += features {
				p.Weather = append(p.Weather, flat[i:i+features])
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nonNil(v []int32) []int32 {
	if v == nil {
		return []int32{}
	}
	return v
}

func nonNilLists(v [][]int32) [][]int32 {
	out := make([][]int32, len(v))
	for i, l := range v {
		out[i] = nonNil(l)
	}
	return out
}

func encodeF32(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v[i]))
	}
	return b
}

func decodeF32(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
