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

package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/charlievieth/fastwalk"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ScanResult summarizes one traversal. Committed counts rows actually
// written; when a scan is cancelled it can be lower than Files+Folders
// because the in-memory partial batch is discarded.
type ScanResult struct {
	Files      int64
	Folders    int64
	TotalBytes int64
	Warnings   int
	Committed  int
	Completed  bool
}

// Scanner records point-in-time structural snapshots of a mounted volume.
// Metadata only, file contents are never read.
type Scanner struct {
	db        *database.Database
	clock     clockwork.Clock
	batchSize int
}

func NewScanner(db *database.Database, batchSize int, clock clockwork.Clock) *Scanner {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Scanner{db: db, clock: clock, batchSize: batchSize}
}

func entryFor(root, path string, d fs.DirEntry, activityID int64, now time.Time) (database.FileSnapshotEntry, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return database.FileSnapshotEntry{}, fmt.Errorf("failed to relativize path: %w", err)
	}
	rel = filepath.ToSlash(rel)

	entry := database.FileSnapshotEntry{
		ActivityID: activityID,
		Path:       rel,
		Name:       d.Name(),
		IsFolder:   d.IsDir(),
		ScannedAt:  now,
	}
	if !entry.IsFolder {
		entry.Extension = strings.TrimPrefix(filepath.Ext(d.Name()), ".")
		info, infoErr := d.Info()
		if infoErr != nil {
			return database.FileSnapshotEntry{}, fmt.Errorf("failed to stat entry: %w", infoErr)
		}
		entry.Size = info.Size()
	}
	return entry, nil
}

// Scan walks root depth-first and records every file and folder under the
// given activity id. Per-node errors are skipped and counted as warnings.
// Cancellation is cooperative: batches already committed stay, the batch
// being built is discarded and the result reports incomplete.
func (s *Scanner) Scan(ctx context.Context, root string, activityID int64) (*ScanResult, error) {
	result := &ScanResult{}
	now := s.clock.Now()
	batch := make([]database.FileSnapshotEntry, 0, s.batchSize)

	flush := func() error {
		if err := s.db.AuditDB.InsertSnapshotBatch(batch); err != nil {
			return err
		}
		result.Committed += len(batch)
		batch = batch[:0]
		return nil
	}

	conf := fastwalk.Config{
		NumWorkers: 1,
		Sort:       fastwalk.SortLexical,
	}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return filepath.SkipAll
		}
		if walkErr != nil {
			result.Warnings++
			log.Debug().Err(walkErr).Msgf("skipping unreadable entry: %s", path)
			return nil
		}
		if path == root {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		entry, entryErr := entryFor(root, path, d, activityID, now)
		if entryErr != nil {
			result.Warnings++
			return nil
		}
		if entry.IsFolder {
			result.Folders++
		} else {
			result.Files++
			result.TotalBytes += entry.Size
		}

		batch = append(batch, entry)
		if len(batch) >= s.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return result, fmt.Errorf("snapshot traversal failed: %w", err)
	}

	if ctx.Err() != nil {
		// discard the partial batch, keep what already committed
		return result, nil
	}

	if err := flush(); err != nil {
		return result, err
	}
	result.Completed = true
	return result, nil
}
