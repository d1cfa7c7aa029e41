// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metadb holds types to describe the recordings metadata
// database: which device recorded what, when, and for which patient.
package metadb // import "github.com/wearlog/shim/metadb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to store and retrieve recording
// metadata and device-to-patient mappings.
type DB struct {
	db   *sql.DB
	name string // name of the metadata database
}

// Open opens a connection to the metadata database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("metadb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("metadb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("metadb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// Recording is the metadata row of one decoded recording.
type Recording struct {
	ID      string  // uuid
	Device  string  // device MAC address
	Patient string  // patient identifier, may be empty
	Samples int64   // number of decoded samples
	Start   float64 // absolute time of the first sample
	End     float64 // absolute time of the last sample
}

// AddRecording inserts the metadata of one decoded recording and
// returns its identifier. A fresh uuid is generated when rec.ID is
// empty.
func (db *DB) AddRecording(ctx context.Context, rec Recording) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO recordings (identifier, device, patient, samples, tbeg, tend) VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Device, rec.Patient, rec.Samples, rec.Start, rec.End,
	)
	if err != nil {
		return "", fmt.Errorf("metadb: could not insert recording %q: %w", rec.ID, err)
	}

	return rec.ID, nil
}

// Recordings returns the metadata of all recordings of the given
// device, most recent first.
func (db *DB) Recordings(ctx context.Context, device string) ([]Recording, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var recs []Recording
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier, device, patient, samples, tbeg, tend FROM recordings WHERE device=? ORDER BY tbeg DESC",
		device,
	)
	if err != nil {
		return nil, fmt.Errorf("metadb: could not query recordings for %q: %w", device, err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var rec Recording
		err = rows.Scan(&rec.ID, &rec.Device, &rec.Patient, &rec.Samples, &rec.Start, &rec.End)
		if err != nil {
			return nil, fmt.Errorf("metadb: could not scan recording row %d: %w", i, err)
		}
		i++
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadb: could not scan db for recordings: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("metadb: context error while retrieving recordings: %w", err)
	}

	return recs, nil
}

// PatientForDevice returns the patient currently mapped to the device
// with the given MAC address, or the empty string when the device is
// unmapped.
func (db *DB) PatientForDevice(ctx context.Context, mac string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	patient := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT patient FROM devices WHERE mac=? ORDER BY datetime DESC LIMIT 1",
		mac,
	)
	if err != nil {
		return patient, fmt.Errorf("metadb: could not query patient for %q: %w", mac, err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&patient)
		if err != nil {
			return patient, fmt.Errorf("metadb: could not get patient value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return patient, fmt.Errorf("metadb: could not scan db for patient: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return patient, fmt.Errorf("metadb: context error while retrieving patient: %w", err)
	}

	return patient, nil
}

// SetPatientForDevice maps the device with the given MAC address to a
// patient.
func (db *DB) SetPatientForDevice(ctx context.Context, mac, patient string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"REPLACE INTO devices (mac, patient, datetime) VALUES (?, ?, NOW())",
		mac, patient,
	)
	if err != nil {
		return fmt.Errorf("metadb: could not map device %q to patient %q: %w", mac, patient, err)
	}

	return nil
}
