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
	"github.com/rs/zerolog/log"
)

const defaultHistoryLimit = 25

func scanActivityRows(rows *sql.Rows) ([]database.ActivityRecord, error) {
	records := make([]database.ActivityRecord, 0, defaultHistoryLimit)
	for rows.Next() {
		var record database.ActivityRecord
		var ts int64
		err := rows.Scan(&record.DBID, &record.DeviceKey, &record.EventType, &ts)
		if err != nil {
			return records, fmt.Errorf("failed to scan activity row: %w", err)
		}
		record.Timestamp = time.Unix(ts, 0)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return records, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return records, nil
}

// GetActivityHistory returns the most recent ledger rows across all devices,
// newest first.
func (db *AuditDB) GetActivityHistory(limit int) ([]database.ActivityRecord, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	q, err := db.sql.PrepareContext(db.ctx, `
		SELECT id, device_id, event_type, timestamp
		FROM activity_log
		ORDER BY id DESC
		LIMIT ?
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare history query: %w", err)
	}
	defer func() {
		if closeErr := q.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql statement")
		}
	}()

	rows, err := q.QueryContext(db.ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql rows")
		}
	}()

	return scanActivityRows(rows)
}

// GetDeviceActivity returns the most recent ledger rows for one device,
// newest first.
func (db *AuditDB) GetDeviceActivity(identityKey string, limit int) ([]database.ActivityRecord, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := db.sql.QueryContext(db.ctx, `
		SELECT id, device_id, event_type, timestamp
		FROM activity_log
		WHERE device_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, identityKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query device activity: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql rows")
		}
	}()

	return scanActivityRows(rows)
}

// LastDeviceEvent returns the most recent ledger row for a device, or nil
// when the device has no history.
func (db *AuditDB) LastDeviceEvent(identityKey string) (*database.ActivityRecord, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}

	var record database.ActivityRecord
	var ts int64
	err := db.sql.QueryRowContext(db.ctx, `
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
		return nil, fmt.Errorf("failed to query last device event: %w", err)
	}
	record.Timestamp = time.Unix(ts, 0)
	return &record, nil
}
