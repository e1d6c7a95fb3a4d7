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

package watcher

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/DriveAuditProject/driveaudit-core/pkg/database/auditdb"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *database.Database {
	t.Helper()

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	adb := &auditdb.AuditDB{}
	require.NoError(t, adb.SetSQLForTesting(context.Background(), sqlDB))
	return &database.Database{AuditDB: adb}
}

type watchFixture struct {
	db     *database.Database
	root   string
	events chan *database.FileSnapshotEntry
	cancel context.CancelFunc
	done   chan struct{}
}

func startWatch(t *testing.T, debounce time.Duration) *watchFixture {
	t.Helper()

	db := newTestStore(t)
	activityID, err := db.AuditDB.RecordConnect(&database.Device{
		IdentityKey: "SN1", Name: "TEST", TotalCapacity: 1000,
	}, time.Now())
	require.NoError(t, err)

	fx := &watchFixture{
		db:     db,
		root:   t.TempDir(),
		events: make(chan *database.FileSnapshotEntry, 16),
		done:   make(chan struct{}),
	}

	w := New(db, clockwork.NewRealClock(), debounce)
	w.SetCopyHandler(func(_ string, entry *database.FileSnapshotEntry) {
		fx.events <- entry
	})

	ctx, cancel := context.WithCancel(context.Background())
	fx.cancel = cancel
	go func() {
		defer close(fx.done)
		_ = w.Watch(ctx, "SN1", fx.root, activityID)
	}()
	t.Cleanup(func() {
		cancel()
		<-fx.done
	})

	// give the notifier a moment to register the root
	time.Sleep(100 * time.Millisecond)
	return fx
}

func (fx *watchFixture) waitEvent(t *testing.T) *database.FileSnapshotEntry {
	t.Helper()
	select {
	case entry := <-fx.events:
		return entry
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for copy event")
		return nil
	}
}

func TestWatch_RecordsCopiedFile(t *testing.T) {
	t.Parallel()
	fx := startWatch(t, 50*time.Millisecond)

	require.NoError(t, os.WriteFile(
		filepath.Join(fx.root, "report.pdf"), make([]byte, 256), 0o600))

	entry := fx.waitEvent(t)
	assert.Equal(t, "report.pdf", entry.Path)
	assert.Equal(t, "pdf", entry.Extension)
	assert.False(t, entry.IsFolder)

	entries, err := fx.db.AuditDB.GetSnapshotEntries(entry.ActivityID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "report.pdf", entries[0].Path)
}

func TestWatch_IgnoresHiddenAndTempFiles(t *testing.T) {
	t.Parallel()
	fx := startWatch(t, 50*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(fx.root, ".DS_Store"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(fx.root, "~lock.tmp"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(fx.root, "real.txt"), []byte("x"), 0o600))

	entry := fx.waitEvent(t)
	assert.Equal(t, "real.txt", entry.Path)

	select {
	case extra := <-fx.events:
		t.Fatalf("unexpected event for %s", extra.Path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_DebouncesRepeatedWrites(t *testing.T) {
	t.Parallel()
	fx := startWatch(t, 2*time.Second)

	path := filepath.Join(fx.root, "big.iso")
	require.NoError(t, os.WriteFile(path, []byte("chunk1"), 0o600))
	entry := fx.waitEvent(t)
	require.Equal(t, "big.iso", entry.Path)

	// rapid follow-up writes collapse into the first record
	for range 5 {
		require.NoError(t, os.WriteFile(path, []byte("more"), 0o600))
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case extra := <-fx.events:
		t.Fatalf("debounce failed, extra event for %s", extra.Path)
	case <-time.After(500 * time.Millisecond):
	}

	entries, err := fx.db.AuditDB.GetSnapshotEntries(entry.ActivityID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWatch_NewDirectoryJoinsWatchSet(t *testing.T) {
	t.Parallel()
	fx := startWatch(t, 50*time.Millisecond)

	sub := filepath.Join(fx.root, "incoming")
	require.NoError(t, os.Mkdir(sub, 0o750))
	// allow the create event to register the new directory
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "nested.txt"), []byte("x"), 0o600))

	entry := fx.waitEvent(t)
	assert.Equal(t, "incoming/nested.txt", entry.Path)
}
