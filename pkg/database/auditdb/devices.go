// DriveAudit Core
// Copyright (c) 2025 The DriveAudit Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of DriveAudit Core.
//
// DriveAudit Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// DriveAudit Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with DriveAudit Core.  If not, see <http://www.gnu.org/licenses/>.

package auditdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
)

const deviceColumns = `identity_key, vendor_id, product_id, name, manufacturer,
	total_capacity, synthetic, first_seen, last_seen`

func scanDevice(row interface{ Scan(...any) error }) (*database.Device, error) {
	var device database.Device
	var firstSeen, lastSeen int64
	var synthetic int
	err := row.Scan(
		&device.IdentityKey,
		&device.VendorID,
		&device.ProductID,
		&device.Name,
		&device.Manufacturer,
		&device.TotalCapacity,
		&synthetic,
		&firstSeen,
		&lastSeen,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers add context
	}
	device.Synthetic = synthetic != 0
	device.FirstSeen = time.Unix(firstSeen, 0)
	device.LastSeen = time.Unix(lastSeen, 0)
	return &device, nil
}

func (db *AuditDB) GetDevice(identityKey string) (*database.Device, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}

	row := db.sql.QueryRowContext(db.ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE identity_key = ?
	`, identityKey)

	device, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}
	return device, nil
}

func (db *AuditDB) GetAllDevices() ([]database.Device, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}

	rows, err := db.sql.QueryContext(db.ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	devices := make([]database.Device, 0)
	for rows.Next() {
		device, scanErr := scanDevice(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", scanErr)
		}
		devices = append(devices, *device)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading device rows: %w", err)
	}

	return devices, nil
}

// HasDeviceActivity reports whether any ledger rows exist for the identity.
// Used to detect when a device first seen under a synthetic identity starts
// reporting a precise one.
func (db *AuditDB) HasDeviceActivity(identityKey string) (bool, error) {
	if db.sql == nil {
		return false, ErrNullSQL
	}

	var count int64
	err := db.sql.QueryRowContext(db.ctx,
		`SELECT COUNT(*) FROM activity_log WHERE device_id = ?`,
		identityKey,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count device activity: %w", err)
	}
	return count > 0, nil
}

// lastEventTx reads the most recent ledger row for a device within tx.
// Returns nil when the device has no history.
func lastEventTx(tx *sql.Tx, identityKey string) (*database.ActivityRecord, error) {
	var record database.ActivityRecord
	var ts int64
	err := tx.QueryRow(`
		SELECT id, device_id, event_type, timestamp
		FROM activity_log
		WHERE device_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, identityKey).Scan(&record.DBID, &record.DeviceKey, &record.EventType, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no history is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last event: %w", err)
	}
	record.Timestamp = time.Unix(ts, 0)
	return &record, nil
}

// RecordConnect atomically upserts the device registry row and appends a
// CONNECT record to the ledger. Either both writes are visible or neither.
func (db *AuditDB) RecordConnect(device *database.Device, ts time.Time) (int64, error) {
	if db.sql == nil {
		return 0, ErrNullSQL
	}

	tx, err := db.sql.BeginTx(db.ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	last, err := lastEventTx(tx, device.IdentityKey)
	if err != nil {
		return 0, err
	}
	if last != nil {
		if last.EventType == database.EventConnect {
			return 0, fmt.Errorf("%w: CONNECT for %s while already connected",
				database.ErrActivityOrder, device.IdentityKey)
		}
		if ts.Unix() < last.Timestamp.Unix() {
			return 0, fmt.Errorf("%w: timestamp regressed for %s",
				database.ErrActivityOrder, device.IdentityKey)
		}
	}

	synthetic := 0
	if device.Synthetic {
		synthetic = 1
	}
	_, err = tx.Exec(`
		INSERT INTO devices (identity_key, vendor_id, product_id, name,
			manufacturer, total_capacity, synthetic, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity_key) DO UPDATE SET
			vendor_id = excluded.vendor_id,
			product_id = excluded.product_id,
			name = excluded.name,
			manufacturer = excluded.manufacturer,
			total_capacity = excluded.total_capacity,
			synthetic = excluded.synthetic,
			last_seen = excluded.last_seen
	`,
		device.IdentityKey,
		device.VendorID,
		device.ProductID,
		device.Name,
		device.Manufacturer,
		device.TotalCapacity,
		synthetic,
		ts.Unix(),
		ts.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert device: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO activity_log (device_id, event_type, timestamp)
		VALUES (?, ?, ?)
	`, device.IdentityKey, database.EventConnect, ts.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert CONNECT record: %w", err)
	}

	activityID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get activity id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit CONNECT transaction: %w", err)
	}
	return activityID, nil
}

// RecordDisconnect appends a DISCONNECT record to the ledger. The device must
// currently be connected according to the ledger.
func (db *AuditDB) RecordDisconnect(deviceKey string, ts time.Time) (int64, error) {
	if db.sql == nil {
		return 0, ErrNullSQL
	}

	tx, err := db.sql.BeginTx(db.ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	last, err := lastEventTx(tx, deviceKey)
	if err != nil {
		return 0, err
	}
	if last == nil || last.EventType != database.EventConnect {
		return 0, fmt.Errorf("%w: DISCONNECT for %s without preceding CONNECT",
			database.ErrActivityOrder, deviceKey)
	}
	if ts.Unix() < last.Timestamp.Unix() {
		return 0, fmt.Errorf("%w: timestamp regressed for %s",
			database.ErrActivityOrder, deviceKey)
	}

	result, err := tx.Exec(`
		INSERT INTO activity_log (device_id, event_type, timestamp)
		VALUES (?, ?, ?)
	`, deviceKey, database.EventDisconnect, ts.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert DISCONNECT record: %w", err)
	}

	activityID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get activity id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit DISCONNECT transaction: %w", err)
	}
	return activityID, nil
}
