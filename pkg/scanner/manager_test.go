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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanEvent struct {
	result      *ScanResult
	identityKey string
	activityID  int64
}

// slowStore delays every batch commit so tests can interleave cancellation
// with a running scan.
type slowStore struct {
	database.AuditDBI
	delay time.Duration
}

func (s *slowStore) InsertSnapshotBatch(entries []database.FileSnapshotEntry) error {
	time.Sleep(s.delay)
	return s.AuditDBI.InsertSnapshotBatch(entries)
}

func populate(t *testing.T, root string, count int) {
	t.Helper()
	for i := range count {
		name := fmt.Sprintf("file_%03d.dat", i)
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o600))
	}
}

func waitEvent(t *testing.T, events <-chan scanEvent) scanEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for scan completion")
		return scanEvent{}
	}
}

func TestManager_ScanCompletes(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	activityID := openSession(t, db, "SN1")

	root := t.TempDir()
	populate(t, root, 10)

	m := NewManager(NewScanner(db, 5, clockwork.NewFakeClock()))
	events := make(chan scanEvent, 1)
	m.SetCompleteHandler(func(key string, id int64, result *ScanResult) {
		events <- scanEvent{identityKey: key, activityID: id, result: result}
	})

	m.Begin(context.Background(), "SN1", root, activityID)

	ev := waitEvent(t, events)
	assert.Equal(t, "SN1", ev.identityKey)
	assert.Equal(t, activityID, ev.activityID)
	assert.True(t, ev.result.Completed)
	assert.Equal(t, int64(10), ev.result.Files)
}

func TestManager_CancelStopsScan(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	activityID := openSession(t, db, "SN1")

	root := t.TempDir()
	populate(t, root, 200)

	slow := &slowStore{AuditDBI: db.AuditDB, delay: 20 * time.Millisecond}
	m := NewManager(NewScanner(&database.Database{AuditDB: slow}, 5, clockwork.NewFakeClock()))
	events := make(chan scanEvent, 1)
	m.SetCompleteHandler(func(key string, id int64, result *ScanResult) {
		events <- scanEvent{identityKey: key, activityID: id, result: result}
	})

	m.Begin(context.Background(), "SN1", root, activityID)
	time.Sleep(50 * time.Millisecond)
	m.Cancel("SN1")

	ev := waitEvent(t, events)
	assert.False(t, ev.result.Completed)

	// committed rows stay; nothing beyond them was written
	entries, err := db.AuditDB.GetSnapshotEntries(activityID)
	require.NoError(t, err)
	assert.Len(t, entries, ev.result.Committed)
	assert.Less(t, ev.result.Committed, 200)
}

func TestManager_NewScanSupersedesRunning(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	firstID := openSession(t, db, "SN1")

	root := t.TempDir()
	populate(t, root, 200)

	slow := &slowStore{AuditDBI: db.AuditDB, delay: 20 * time.Millisecond}
	m := NewManager(NewScanner(&database.Database{AuditDB: slow}, 5, clockwork.NewFakeClock()))
	events := make(chan scanEvent, 2)
	m.SetCompleteHandler(func(key string, id int64, result *ScanResult) {
		events <- scanEvent{identityKey: key, activityID: id, result: result}
	})

	m.Begin(context.Background(), "SN1", root, firstID)
	time.Sleep(50 * time.Millisecond)

	// reconnect opens a new session; its scan replaces the first
	_, err := db.AuditDB.RecordDisconnect("SN1", time.Now())
	require.NoError(t, err)
	secondID, err := db.AuditDB.RecordConnect(&database.Device{
		IdentityKey: "SN1", Name: "TEST", TotalCapacity: 1000,
	}, time.Now())
	require.NoError(t, err)

	m.Begin(context.Background(), "SN1", root, secondID)

	first := waitEvent(t, events)
	assert.Equal(t, firstID, first.activityID)
	assert.False(t, first.result.Completed)

	second := waitEvent(t, events)
	assert.Equal(t, secondID, second.activityID)
	assert.True(t, second.result.Completed)
}

func TestManager_CancelAll(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	firstID := openSession(t, db, "SN1")
	secondID := openSession(t, db, "SN2")

	rootA := t.TempDir()
	rootB := t.TempDir()
	populate(t, rootA, 200)
	populate(t, rootB, 200)

	slow := &slowStore{AuditDBI: db.AuditDB, delay: 20 * time.Millisecond}
	m := NewManager(NewScanner(&database.Database{AuditDB: slow}, 5, clockwork.NewFakeClock()))
	events := make(chan scanEvent, 2)
	m.SetCompleteHandler(func(key string, id int64, result *ScanResult) {
		events <- scanEvent{identityKey: key, activityID: id, result: result}
	})

	m.Begin(context.Background(), "SN1", rootA, firstID)
	m.Begin(context.Background(), "SN2", rootB, secondID)
	time.Sleep(50 * time.Millisecond)
	m.CancelAll()

	for range 2 {
		ev := waitEvent(t, events)
		assert.False(t, ev.result.Completed)
	}
}
