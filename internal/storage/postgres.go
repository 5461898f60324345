package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"luxctl/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/luxctl?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			sensor_id TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			unit TEXT,
			ok BOOLEAN NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			actuator_id TEXT NOT NULL,
			state BOOLEAN NOT NULL,
			reason TEXT NOT NULL,
			avg_lux DOUBLE PRECISION,
			min_lux DOUBLE PRECISION NOT NULL,
			max_lux DOUBLE PRECISION NOT NULL,
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

func (s *postgresStore) SaveReading(ctx context.Context, r model.Reading) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (ts, sensor_id, value, unit, ok, error)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.Timestamp.UTC(),
		r.SensorID,
		r.Value,
		r.Unit,
		r.OK,
		r.Error,
	)
	return err
}

func (s *postgresStore) SaveAction(ctx context.Context, a model.ActionEvent) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (ts, actuator_id, state, reason, avg_lux, min_lux, max_lux, window_label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.Timestamp.UTC(),
		a.ActuatorID,
		a.On,
		a.Reason,
		a.AvgLux,
		a.MinLux,
		a.MaxLux,
		a.WindowLabel,
	)
	return err
}

func (s *postgresStore) Readings(ctx context.Context, since time.Time, limit int) ([]model.Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, sensor_id, value, unit, ok, error
		FROM readings
		WHERE ts >= $1
		ORDER BY ts DESC
		LIMIT $2`,
		since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reading, 0)
	for rows.Next() {
		var r model.Reading
		var errStr sql.NullString
		if err := rows.Scan(&r.Timestamp, &r.SensorID, &r.Value, &r.Unit, &r.OK, &errStr); err != nil {
			return nil, err
		}
		r.Error = errStr.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseReadings(out)
	return out, nil
}

func (s *postgresStore) Actions(ctx context.Context, since time.Time, limit int) ([]model.ActionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, actuator_id, state, reason, avg_lux, min_lux, max_lux, window_label
		FROM actions
		WHERE ts >= $1
		ORDER BY ts DESC
		LIMIT $2`,
		since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ActionEvent, 0)
	for rows.Next() {
		var a model.ActionEvent
		var avg sql.NullFloat64
		var label sql.NullString
		if err := rows.Scan(&a.Timestamp, &a.ActuatorID, &a.On, &a.Reason, &avg, &a.MinLux, &a.MaxLux, &label); err != nil {
			return nil, err
		}
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
