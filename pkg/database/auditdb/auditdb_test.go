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
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *AuditDB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// in-memory sqlite is per-connection; keep a single one
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := &AuditDB{}
	require.NoError(t, db.SetSQLForTesting(context.Background(), sqlDB))
	return db
}

func testDevice(key string) *database.Device {
	return &database.Device{
		IdentityKey:   key,
		VendorID:      0x1234,
		ProductID:     0x5678,
		Name:          "Test Stick",
		Manufacturer:  "TestCorp",
		TotalCapacity: 16_000_000_000,
	}
}

func TestRecordConnect(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	now := time.Now()
	activityID, err := db.RecordConnect(testDevice("SN123"), now)
	require.NoError(t, err)
	assert.Positive(t, activityID)

	device, err := db.GetDevice("SN123")
	require.NoError(t, err)
	assert.Equal(t, "Test Stick", device.Name)
	assert.Equal(t, uint16(0x1234), device.VendorID)
	assert.Equal(t, int64(16_000_000_000), device.TotalCapacity)

	last, err := db.LastDeviceEvent("SN123")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, database.EventConnect, last.EventType)
}

func TestRecordConnect_DuplicateRejected(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	now := time.Now()
	_, err := db.RecordConnect(testDevice("SN123"), now)
	require.NoError(t, err)

	// a second CONNECT without an intervening DISCONNECT must be rejected
	_, err = db.RecordConnect(testDevice("SN123"), now.Add(time.Second))
	require.ErrorIs(t, err, database.ErrActivityOrder)

	// and must not have left a partial write behind
	history, err := db.GetDeviceActivity("SN123", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRecordDisconnect_RequiresConnect(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	_, err := db.RecordDisconnect("SN404", time.Now())
	require.ErrorIs(t, err, database.ErrActivityOrder)
}

func TestConnectDisconnectAlternate(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	now := time.Now()
	_, err := db.RecordConnect(testDevice("SN123"), now)
	require.NoError(t, err)
	_, err = db.RecordDisconnect("SN123", now.Add(time.Second))
	require.NoError(t, err)
	_, err = db.RecordConnect(testDevice("SN123"), now.Add(2*time.Second))
	require.NoError(t, err)

	history, err := db.GetDeviceActivity("SN123", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// newest first, strictly alternating, timestamps non-decreasing
	assert.Equal(t, database.EventConnect, history[0].EventType)
	assert.Equal(t, database.EventDisconnect, history[1].EventType)
	assert.Equal(t, database.EventConnect, history[2].EventType)
	assert.False(t, history[0].Timestamp.Before(history[1].Timestamp))
	assert.False(t, history[1].Timestamp.Before(history[2].Timestamp))
}

func TestRecordDisconnect_TimestampRegression(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	now := time.Now()
	_, err := db.RecordConnect(testDevice("SN123"), now)
	require.NoError(t, err)

	_, err = db.RecordDisconnect("SN123", now.Add(-time.Minute))
	require.ErrorIs(t, err, database.ErrActivityOrder)
}

func TestUpsertPreservesFirstSeen(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	first := time.Now().Add(-time.Hour)
	_, err := db.RecordConnect(testDevice("SN123"), first)
	require.NoError(t, err)
	_, err = db.RecordDisconnect("SN123", first.Add(time.Minute))
	require.NoError(t, err)

	updated := testDevice("SN123")
	updated.Name = "Renamed Stick"
	later := time.Now()
	_, err = db.RecordConnect(updated, later)
	require.NoError(t, err)

	device, err := db.GetDevice("SN123")
	require.NoError(t, err)
	assert.Equal(t, "Renamed Stick", device.Name)
	assert.Equal(t, first.Unix(), device.FirstSeen.Unix())
	assert.Equal(t, later.Unix(), device.LastSeen.Unix())
}

func TestGetActivityHistory_NewestFirst(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	now := time.Now()
	_, err := db.RecordConnect(testDevice("A"), now)
	require.NoError(t, err)
	_, err = db.RecordConnect(testDevice("B"), now.Add(time.Second))
	require.NoError(t, err)
	_, err = db.RecordDisconnect("A", now.Add(2*time.Second))
	require.NoError(t, err)

	history, err := db.GetActivityHistory(2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "A", history[0].DeviceKey)
	assert.Equal(t, database.EventDisconnect, history[0].EventType)
	assert.Equal(t, "B", history[1].DeviceKey)
}

func TestGetAllDevices(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	now := time.Now()
	_, err := db.RecordConnect(testDevice("A"), now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = db.RecordConnect(testDevice("B"), now)
	require.NoError(t, err)

	devices, err := db.GetAllDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	// ordered by last seen, most recent first
	assert.Equal(t, "B", devices[0].IdentityKey)
}

func TestHasDeviceActivity(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	seen, err := db.HasDeviceActivity("SN123")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = db.RecordConnect(testDevice("SN123"), time.Now())
	require.NoError(t, err)

	seen, err = db.HasDeviceActivity("SN123")
	require.NoError(t, err)
	assert.True(t, seen)
}
