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

package detect

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DriveAuditProject/driveaudit-core/pkg/config"
	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/DriveAuditProject/driveaudit-core/pkg/database/auditdb"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVolumes struct {
	vols []Volume
	err  error
}

func (f *fakeVolumes) Removable() ([]Volume, error) {
	return f.vols, f.err
}

type fakeDescriptors struct {
	descs map[string]*Descriptor
}

func (f *fakeDescriptors) Describe(vol *Volume) (*Descriptor, error) {
	if d, ok := f.descs[vol.MountPoint]; ok {
		return d, nil
	}
	return nil, ErrNoDescriptor
}

type monitorFixture struct {
	monitor     *Monitor
	db          *database.Database
	clock       *clockwork.FakeClock
	vols        *fakeVolumes
	descs       *fakeDescriptors
	connects    []Presence
	disconnects []Presence
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	adb := &auditdb.AuditDB{}
	require.NoError(t, adb.SetSQLForTesting(context.Background(), sqlDB))

	cfg, err := config.NewConfig(t.TempDir(), config.BaseDefaults)
	require.NoError(t, err)

	fx := &monitorFixture{
		db:    &database.Database{AuditDB: adb},
		clock: clockwork.NewFakeClock(),
		vols:  &fakeVolumes{},
		descs: &fakeDescriptors{descs: map[string]*Descriptor{}},
	}
	fx.monitor = NewMonitor(cfg, fx.db, fx.clock, fx.vols, fx.descs)
	fx.monitor.SetHandlers(Handlers{
		Connected:    func(p Presence) { fx.connects = append(fx.connects, p) },
		Disconnected: func(p Presence) { fx.disconnects = append(fx.disconnects, p) },
	})
	return fx
}

func TestMonitor_ConnectDisconnectCycle(t *testing.T) {
	t.Parallel()
	fx := newMonitorFixture(t)

	fx.vols.vols = []Volume{{
		MountPoint: "/media/usb0", Device: "/dev/sdb1",
		Label: "EVIDENCE", TotalCapacity: 16_000_000_000,
	}}
	fx.descs.descs["/media/usb0"] = &Descriptor{
		Serial: "SN123", VendorID: 0x1234, ProductID: 0x5678,
	}

	fx.monitor.poll()
	require.Len(t, fx.connects, 1)
	assert.Equal(t, "SN123", fx.connects[0].Device.IdentityKey)
	assert.Positive(t, fx.connects[0].ActivityID)

	// steady state, no new events
	fx.clock.Advance(2 * time.Second)
	fx.monitor.poll()
	assert.Len(t, fx.connects, 1)
	assert.Empty(t, fx.disconnects)

	// unplug
	fx.vols.vols = nil
	fx.clock.Advance(2 * time.Second)
	fx.monitor.poll()
	require.Len(t, fx.disconnects, 1)
	assert.Equal(t, "SN123", fx.disconnects[0].Device.IdentityKey)

	history, err := fx.db.AuditDB.GetDeviceActivity("SN123", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, database.EventDisconnect, history[0].EventType)
	assert.Equal(t, database.EventConnect, history[1].EventType)
}

func TestMonitor_SyntheticIdentityReused(t *testing.T) {
	t.Parallel()
	fx := newMonitorFixture(t)

	vol := Volume{MountPoint: "E:", Label: "USB DRIVE", TotalCapacity: 16_000_000_000}
	fx.vols.vols = []Volume{vol}

	fx.monitor.poll()
	require.Len(t, fx.connects, 1)
	key := fx.connects[0].Device.IdentityKey
	assert.True(t, fx.connects[0].Device.Synthetic)

	// unplug, then replug with slightly different reported capacity
	fx.vols.vols = nil
	fx.monitor.poll()
	vol.TotalCapacity = 15_800_000_000
	fx.vols.vols = []Volume{vol}
	fx.monitor.poll()

	require.Len(t, fx.connects, 2)
	assert.Equal(t, key, fx.connects[1].Device.IdentityKey)

	devices, err := fx.db.AuditDB.GetAllDevices()
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestMonitor_StaleSessionClosedOnStartup(t *testing.T) {
	t.Parallel()
	fx := newMonitorFixture(t)

	// a previous run recorded a CONNECT and never closed it
	_, err := fx.db.AuditDB.RecordConnect(&database.Device{
		IdentityKey: "SN123", Name: "EVIDENCE", TotalCapacity: 16_000_000_000,
	}, fx.clock.Now().Add(-time.Hour))
	require.NoError(t, err)

	fx.vols.vols = []Volume{{
		MountPoint: "/media/usb0", Device: "/dev/sdb1",
		Label: "EVIDENCE", TotalCapacity: 16_000_000_000,
	}}
	fx.descs.descs["/media/usb0"] = &Descriptor{Serial: "SN123"}

	fx.monitor.poll()
	require.Len(t, fx.connects, 1)

	// ledger stays alternating: old CONNECT, closing DISCONNECT, new CONNECT
	history, err := fx.db.AuditDB.GetDeviceActivity("SN123", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, database.EventConnect, history[0].EventType)
	assert.Equal(t, database.EventDisconnect, history[1].EventType)
	assert.Equal(t, database.EventConnect, history[2].EventType)
}

func TestMonitor_EnumerationErrorSkipsCycle(t *testing.T) {
	t.Parallel()
	fx := newMonitorFixture(t)

	fx.vols.vols = []Volume{{MountPoint: "/media/usb0", TotalCapacity: 1000}}
	fx.monitor.poll()
	require.Len(t, fx.connects, 1)

	// a failed enumeration must not be read as every device vanishing
	fx.vols.err = assert.AnError
	fx.monitor.poll()
	assert.Empty(t, fx.disconnects)
}

// flakyStore fails ledger writes a set number of times before delegating,
// simulating transient sqlite busy errors.
type flakyStore struct {
	database.AuditDBI
	failConnects    int
	failDisconnects int
}

func (f *flakyStore) RecordConnect(device *database.Device, ts time.Time) (int64, error) {
	if f.failConnects > 0 {
		f.failConnects--
		return 0, errors.New("database is locked")
	}
	return f.AuditDBI.RecordConnect(device, ts)
}

func (f *flakyStore) RecordDisconnect(deviceKey string, ts time.Time) (int64, error) {
	if f.failDisconnects > 0 {
		f.failDisconnects--
		return 0, errors.New("database is locked")
	}
	return f.AuditDBI.RecordDisconnect(deviceKey, ts)
}

func TestMonitor_ConnectRetriedAfterStoreFailure(t *testing.T) {
	t.Parallel()
	fx := newMonitorFixture(t)
	fx.db.AuditDB = &flakyStore{AuditDBI: fx.db.AuditDB, failConnects: 1}

	fx.vols.vols = []Volume{{
		MountPoint: "/media/usb0", Device: "/dev/sdb1",
		Label: "EVIDENCE", TotalCapacity: 16_000_000_000,
	}}
	fx.descs.descs["/media/usb0"] = &Descriptor{Serial: "SN123"}

	// first pass hits the transient write failure; the device must not be
	// treated as connected
	fx.monitor.poll()
	assert.Empty(t, fx.connects)
	history, err := fx.db.AuditDB.GetDeviceActivity("SN123", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	// device still present on the next tick; the CONNECT is retried
	fx.clock.Advance(2 * time.Second)
	fx.monitor.poll()
	require.Len(t, fx.connects, 1)
	assert.Equal(t, "SN123", fx.connects[0].Device.IdentityKey)
	assert.Positive(t, fx.connects[0].ActivityID)

	history, err = fx.db.AuditDB.GetDeviceActivity("SN123", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, database.EventConnect, history[0].EventType)
}

func TestMonitor_DisconnectHandlerRunsOnStoreFailure(t *testing.T) {
	t.Parallel()
	fx := newMonitorFixture(t)
	flaky := &flakyStore{AuditDBI: fx.db.AuditDB}
	fx.db.AuditDB = flaky

	fx.vols.vols = []Volume{{
		MountPoint: "/media/usb0", Device: "/dev/sdb1",
		Label: "EVIDENCE", TotalCapacity: 16_000_000_000,
	}}
	fx.descs.descs["/media/usb0"] = &Descriptor{Serial: "SN123"}
	fx.monitor.poll()
	require.Len(t, fx.connects, 1)

	// unplug while the ledger write fails: the session teardown (scan
	// cancellation, watch stop) must still run
	flaky.failDisconnects = 1
	fx.vols.vols = nil
	fx.clock.Advance(2 * time.Second)
	fx.monitor.poll()
	require.Len(t, fx.disconnects, 1)
	assert.Equal(t, "SN123", fx.disconnects[0].Device.IdentityKey)

	history, err := fx.db.AuditDB.GetDeviceActivity("SN123", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, database.EventConnect, history[0].EventType)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	fx := newMonitorFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fx.monitor.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop on context cancellation")
	}
}
