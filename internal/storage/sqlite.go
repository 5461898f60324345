package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"luxctl/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:luxctl.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			sensor_id TEXT NOT NULL,
			value REAL NOT NULL,
			unit TEXT,
			ok INTEGER NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			actuator_id TEXT NOT NULL,
			state INTEGER NOT NULL,
			reason TEXT NOT NULL,
			avg_lux REAL,
			min_lux REAL NOT NULL,
			max_lux REAL NOT NULL,
			window_label TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveReading(ctx context.Context, r model.Reading) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (ts, sensor_id, value, unit, ok, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.SensorID,
		r.Value,
		r.Unit,
		boolInt(r.OK),
		r.Error,
	)
	return err
}

func (s *sqliteStore) SaveAction(ctx context.Context, a model.ActionEvent) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (ts, actuator_id, state, reason, avg_lux, min_lux, max_lux, window_label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Timestamp.UTC().Format(time.RFC3339Nano),
		a.ActuatorID,
		boolInt(a.On),
		a.Reason,
		a.AvgLux,
		a.MinLux,
		a.MaxLux,
		a.WindowLabel,
	)
	return err
}

func (s *sqliteStore) Readings(ctx context.Context, since time.Time, limit int) ([]model.Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, sensor_id, value, unit, ok, error
		FROM readings
		WHERE ts >= ?
		ORDER BY ts DESC
		LIMIT ?`,
		since.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reading, 0)
	for rows.Next() {
		var ts string
		var r model.Reading
		var ok int
		var errStr sql.NullString
		if err := rows.Scan(&ts, &r.SensorID, &r.Value, &r.Unit, &ok, &errStr); err != nil {
			return nil, err
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.OK = ok != 0
		r.Error = errStr.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseReadings(out)
	return out, nil
}

func (s *sqliteStore) Actions(ctx context.Context, since time.Time, limit int) ([]model.ActionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, actuator_id, state, reason, avg_lux, min_lux, max_lux, window_label
		FROM actions
		WHERE ts >= ?
		ORDER BY ts DESC
		LIMIT ?`,
		since.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ActionEvent, 0)
	for rows.Next() {
		var ts string
		var a model.ActionEvent
		var state int
		var avg sql.NullFloat64
		var label sql.NullString
		if err := rows.Scan(&ts, &a.ActuatorID, &state, &a.Reason, &avg, &a.MinLux, &a.MaxLux, &label); err != nil {
			return nil, err
		}
		a.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		a.On = state != 0
		if avg.Valid {
			v := avg.Float64
			a.AvgLux = &v
		}
		a.WindowLabel = label.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseActions(out)
	return out, nil
}

func reverseReadings(in []model.Reading) {
	for i, j := 0, len(in)-1; i < j; i, j = i+1, j-1 {
		in[i], in[j] = in[j], in[i]
	}
}

func reverseActions(in []model.ActionEvent) {
	for i, j := 0, len(in)-1; i < j; i, j = i+1, j-1 {
		in[i], in[j] = in[j], in[i]
	}
}
