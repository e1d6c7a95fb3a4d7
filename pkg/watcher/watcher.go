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

// Package watcher records copy activity on a connected volume while its
// session is open. Best-effort: watch failures never affect detection or
// scanning.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// CopyHandler runs after a copy event is recorded. Runs on the watch
// goroutine.
type CopyHandler func(identityKey string, entry *database.FileSnapshotEntry)

type Watcher struct {
	db       *database.Database
	clock    clockwork.Clock
	onCopy   CopyHandler
	debounce time.Duration
}

func New(db *database.Database, clock clockwork.Clock, debounce time.Duration) *Watcher {
	return &Watcher{db: db, clock: clock, debounce: debounce}
}

func (w *Watcher) SetCopyHandler(handler CopyHandler) {
	w.onCopy = handler
}

// ignoredName filters hidden and editor temp files, which show up during
// copies but are not user data.
func ignoredName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~")
}

// addTree registers root and every directory under it with the notifier.
func addTree(notifier *fsnotify.Watcher, root string) {
	conf := fastwalk.Config{NumWorkers: 1}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable subtree is skipped
		}
		if d.IsDir() && !ignoredName(d.Name()) {
			if addErr := notifier.Add(path); addErr != nil {
				log.Debug().Err(addErr).Msgf("failed to watch directory: %s", path)
			}
		}
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Msgf("failed to walk watch tree: %s", root)
	}
}

// Watch observes root until the context is cancelled, recording each file
// created or modified there as an extra snapshot row under the session's
// activity id. Events for the same path are debounced.
func (w *Watcher) Watch(ctx context.Context, identityKey, root string, activityID int64) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer func() {
		if closeErr := notifier.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close filesystem watcher")
		}
	}()

	addTree(notifier, root)
	log.Info().Msgf("copy watcher started: %s (%s)", identityKey, root)

	lastRecorded := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msgf("copy watcher stopped: %s", identityKey)
			return nil
		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			w.handleEvent(notifier, &event, identityKey, root, activityID, lastRecorded)
		case watchErr, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			log.Debug().Err(watchErr).Msgf("watch error: %s", identityKey)
		}
	}
}

func (w *Watcher) handleEvent(
	notifier *fsnotify.Watcher,
	event *fsnotify.Event,
	identityKey, root string,
	activityID int64,
	lastRecorded map[string]time.Time,
) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	name := filepath.Base(event.Name)
	if ignoredName(name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		// new directories join the watch set
		if event.Has(fsnotify.Create) {
			if addErr := notifier.Add(event.Name); addErr != nil {
				log.Debug().Err(addErr).Msgf("failed to watch new directory: %s", event.Name)
			}
		}
		return
	}

	now := w.clock.Now()
	if last, seen := lastRecorded[event.Name]; seen && now.Sub(last) < w.debounce {
		return
	}
	lastRecorded[event.Name] = now

	rel, err := filepath.Rel(root, event.Name)
	if err != nil {
		return
	}
	entry := &database.FileSnapshotEntry{
		ActivityID: activityID,
		Path:       filepath.ToSlash(rel),
		Name:       name,
		Extension:  strings.TrimPrefix(filepath.Ext(name), "."),
		Size:       info.Size(),
		ScannedAt:  now,
	}
	if err := w.db.AuditDB.InsertSnapshotEntry(entry); err != nil {
		log.Warn().Err(err).Msgf("failed to record copy event: %s", event.Name)
		return
	}

	log.Info().Msgf("copy detected: %s on %s", entry.Path, identityKey)
	if w.onCopy != nil {
		w.onCopy(identityKey, entry)
	}
}
