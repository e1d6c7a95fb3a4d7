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

// InsertSnapshotBatch writes a batch of snapshot entries in one transaction.
// Batches are all-or-nothing; a scan commits multiple batches over its
// lifetime, so readers must treat an active scan's entry set as append-only.
func (db *AuditDB) InsertSnapshotBatch(entries []database.FileSnapshotEntry) error {
	if db.sql == nil {
		return ErrNullSQL
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.sql.BeginTx(db.ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO file_snapshots (activity_log_id, file_path, file_name,
			file_extension, file_size, is_folder, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql statement")
		}
	}()

	for i := range entries {
		entry := &entries[i]
		isFolder := 0
		if entry.IsFolder {
			isFolder = 1
		}
		_, err = stmt.Exec(
			entry.ActivityID,
			entry.Path,
			entry.Name,
			entry.Extension,
			entry.Size,
			isFolder,
			entry.ScannedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot batch: %w", err)
	}
	return nil
}

// InsertSnapshotEntry writes a single snapshot row, used by the copy-activity
// watcher for files observed after the initial scan.
func (db *AuditDB) InsertSnapshotEntry(entry *database.FileSnapshotEntry) error {
	if db.sql == nil {
		return ErrNullSQL
	}

	isFolder := 0
	if entry.IsFolder {
		isFolder = 1
	}
	_, err := db.sql.ExecContext(db.ctx, `
		INSERT INTO file_snapshots (activity_log_id, file_path, file_name,
			file_extension, file_size, is_folder, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ActivityID,
		entry.Path,
		entry.Name,
		entry.Extension,
		entry.Size,
		isFolder,
		entry.ScannedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot entry: %w", err)
	}
	return nil
}

// GetSnapshotEntries returns all entries recorded under one activity id,
// ordered by path.
func (db *AuditDB) GetSnapshotEntries(activityID int64) ([]database.FileSnapshotEntry, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}

	rows, err := db.sql.QueryContext(db.ctx, `
		SELECT id, activity_log_id, file_path, file_name, file_extension,
			file_size, is_folder, scanned_at
		FROM file_snapshots
		WHERE activity_log_id = ?
		ORDER BY file_path
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql rows")
		}
	}()

	entries := make([]database.FileSnapshotEntry, 0)
	for rows.Next() {
		var entry database.FileSnapshotEntry
		var isFolder int
		var scannedAt int64
		scanErr := rows.Scan(
			&entry.DBID,
			&entry.ActivityID,
			&entry.Path,
			&entry.Name,
			&entry.Extension,
			&entry.Size,
			&isFolder,
			&scannedAt,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", scanErr)
		}
		entry.IsFolder = isFolder != 0
		entry.ScannedAt = time.Unix(scannedAt, 0)
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	return entries, nil
}

// GetScanStats returns file/folder counts and total bytes for one activity id.
func (db *AuditDB) GetScanStats(activityID int64) (database.ScanStats, error) {
	var stats database.ScanStats
	if db.sql == nil {
		return stats, ErrNullSQL
	}

	err := db.sql.QueryRowContext(db.ctx, `
		SELECT
			COUNT(CASE WHEN is_folder = 0 THEN 1 END),
			COUNT(CASE WHEN is_folder = 1 THEN 1 END),
			COALESCE(SUM(CASE WHEN is_folder = 0 THEN file_size ELSE 0 END), 0)
		FROM file_snapshots
		WHERE activity_log_id = ?
	`, activityID).Scan(&stats.Files, &stats.Folders, &stats.TotalBytes)
	if err != nil {
		return stats, fmt.Errorf("failed to query scan stats: %w", err)
	}
	return stats, nil
}

// LatestConnectActivity returns the id of the most recent CONNECT record for
// a device, or 0 when the device has never connected.
func (db *AuditDB) LatestConnectActivity(identityKey string) (int64, error) {
	if db.sql == nil {
		return 0, ErrNullSQL
	}

	var activityID int64
	err := db.sql.QueryRowContext(db.ctx, `
		SELECT id FROM activity_log
		WHERE device_id = ? AND event_type = ?
		ORDER BY id DESC
		LIMIT 1
	`, identityKey, database.EventConnect).Scan(&activityID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query latest connect: %w", err)
	}
	return activityID, nil
}

// GetDeviceScans returns per-session summaries for every CONNECT of a device,
// newest first.
func (db *AuditDB) GetDeviceScans(identityKey string) ([]database.ScanSummary, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}

	rows, err := db.sql.QueryContext(db.ctx, `
		SELECT al.id, al.timestamp,
			COUNT(CASE WHEN fs.is_folder = 0 THEN 1 END),
			COUNT(CASE WHEN fs.is_folder = 1 THEN 1 END),
			COALESCE(SUM(CASE WHEN fs.is_folder = 0 THEN fs.file_size ELSE 0 END), 0)
		FROM activity_log al
		LEFT JOIN file_snapshots fs ON fs.activity_log_id = al.id
		WHERE al.device_id = ? AND al.event_type = ?
		GROUP BY al.id
		ORDER BY al.id DESC
	`, identityKey, database.EventConnect)
	if err != nil {
		return nil, fmt.Errorf("failed to query device scans: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql rows")
		}
	}()

	scans := make([]database.ScanSummary, 0)
	for rows.Next() {
		var summary database.ScanSummary
		var ts int64
		scanErr := rows.Scan(
			&summary.ActivityID,
			&ts,
			&summary.FileCount,
			&summary.FolderCount,
			&summary.TotalBytes,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", scanErr)
		}
		summary.Timestamp = time.Unix(ts, 0)
		scans = append(scans, summary)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	return scans, nil
}
