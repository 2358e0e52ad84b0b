// Package store persists readings and daily activity to SQLite. It attaches
// to the event bus as a subscriber, so everything published is written
// without the producers knowing about persistence.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/srg/vitalink/aggregate"
	"github.com/srg/vitalink/events"
	"github.com/srg/vitalink/internal/device"
)

// Reading is one persisted reading row.
type Reading struct {
	ID      string
	Address device.Address
	Kind    string
	Payload string
	At      time.Time
}

// Store wraps the SQLite database.
type Store struct {
	logger *logrus.Logger
	db     *sql.DB
}

// New opens (or creates) the database at path and runs the schema
// migration.
func New(logger *logrus.Logger, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{logger: logger, db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			id      TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			kind    TEXT NOT NULL,
			payload TEXT NOT NULL,
			at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS readings_address_at ON readings (address, at);
		CREATE TABLE IF NOT EXISTS daily_activity (
			user_id        TEXT NOT NULL,
			date           TEXT NOT NULL,
			steps          INTEGER NOT NULL,
			active_minutes INTEGER NOT NULL,
			calories_kcal  INTEGER NOT NULL,
			floors_climbed INTEGER NOT NULL,
			distance_miles REAL NOT NULL,
			device_count   INTEGER NOT NULL,
			updated_at     TEXT NOT NULL,
			PRIMARY KEY (user_id, date)
		)
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Attach subscribes the store to the bus. Readings and activity updates
// published after this call are persisted.
func (s *Store) Attach(bus *events.Bus) {
	bus.Subscribe("store", s.handle)
}

func (s *Store) handle(ev events.Event) {
	var err error
	switch e := ev.(type) {
	case events.BloodPressure:
		err = s.saveReading(e.Address, "blood_pressure", e.Reading, e.At)
	case events.SensorUpdate:
		if e.Environmental != nil {
			err = s.saveReading(e.Address, "environmental", e.Environmental, e.At)
		}
		if err == nil && e.Imu != nil {
			err = s.saveReading(e.Address, "imu", e.Imu, e.At)
		}
	case events.ButtonPress:
		err = s.saveReading(e.Address, "button", map[string]bool{"pressed": e.Pressed}, e.At)
	case events.ActivityUpdated:
		err = s.SaveActivity(e.Activity, e.At)
	default:
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("topic", ev.Topic()).Error("Persist failed")
	}
}

func (s *Store) saveReading(addr device.Address, kind string, payload any, at time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s reading: %w", kind, err)
	}
	_, err = s.db.Exec(
		"INSERT INTO readings (id, address, kind, payload, at) VALUES (?, ?, ?, ?, ?)",
		newID(at), string(addr), kind, string(body), at.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// SaveActivity upserts the daily activity row for (user, date).
func (s *Store) SaveActivity(a aggregate.DailyActivity, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_activity
			(user_id, date, steps, active_minutes, calories_kcal, floors_climbed, distance_miles, device_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			steps          = excluded.steps,
			active_minutes = excluded.active_minutes,
			calories_kcal  = excluded.calories_kcal,
			floors_climbed = excluded.floors_climbed,
			distance_miles = excluded.distance_miles,
			device_count   = excluded.device_count,
			updated_at     = excluded.updated_at`,
		a.UserID, string(a.Date), a.Steps, a.ActiveMinutes, a.CaloriesBurned,
		a.FloorsClimbed, a.DistanceMiles, a.ContributingDeviceCount,
		at.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Activity returns the persisted daily activity for (user, date).
func (s *Store) Activity(userID string, date aggregate.Date) (aggregate.DailyActivity, error) {
	row := s.db.QueryRow(`
		SELECT steps, active_minutes, calories_kcal, floors_climbed, distance_miles, device_count
		FROM daily_activity WHERE user_id = ? AND date = ?`, userID, string(date))
	a := aggregate.DailyActivity{UserID: userID, Date: date}
	err := row.Scan(&a.Steps, &a.ActiveMinutes, &a.CaloriesBurned,
		&a.FloorsClimbed, &a.DistanceMiles, &a.ContributingDeviceCount)
	if err != nil {
		return aggregate.DailyActivity{}, err
	}
	return a, nil
}

// RecentReadings returns up to limit readings for an address, newest first.
func (s *Store) RecentReadings(addr device.Address, limit int) ([]Reading, error) {
	rows, err := s.db.Query(`
		SELECT id, address, kind, payload, at FROM readings
		WHERE address = ? ORDER BY at DESC LIMIT ?`, string(addr), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reading
	for rows.Next() {
		var r Reading
		var addr, at string
		if err := rows.Scan(&r.ID, &addr, &r.Kind, &r.Payload, &at); err != nil {
			return nil, err
		}
		r.Address = device.Address(addr)
		if r.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse reading timestamp: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func newID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
