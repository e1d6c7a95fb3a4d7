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

package database

import (
	"database/sql"
	"errors"
	"time"
)

// Event kinds recorded in the activity ledger.
const (
	EventConnect    = "CONNECT"
	EventDisconnect = "DISCONNECT"
)

// ErrActivityOrder is returned when a write would violate the ledger's
// ordering invariants: a CONNECT directly following a CONNECT for the same
// device, a DISCONNECT without a preceding CONNECT, or a timestamp earlier
// than the device's last recorded event.
var ErrActivityOrder = errors.New("activity record violates event ordering")

// Database is a portable container for the service's store bindings.
type Database struct {
	AuditDB AuditDBI
}

/*
 * Structs for SQL records
 */

// Device is the canonical registry row for one physical storage device.
// IdentityKey is either a hardware serial number, a vendor/product/capacity
// composite, or a synthetic value derived from mount point and capacity.
// Rows are never deleted.
type Device struct {
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
	IdentityKey   string    `json:"identityKey"`
	Name          string    `json:"name"`
	Manufacturer  string    `json:"manufacturer"`
	TotalCapacity int64     `json:"totalCapacity"`
	VendorID      uint16    `json:"vendorId"`
	ProductID     uint16    `json:"productId"`
	Synthetic     bool      `json:"synthetic"`
}

// ActivityRecord is one append-only ledger row for a CONNECT or DISCONNECT.
type ActivityRecord struct {
	Timestamp time.Time `json:"timestamp"`
	DeviceKey string    `json:"deviceKey"`
	EventType string    `json:"eventType"`
	DBID      int64     `json:"id"`
}

// FileSnapshotEntry is one filesystem node observed during one scan session.
// Path is relative to the volume's mount root.
type FileSnapshotEntry struct {
	ScannedAt  time.Time `json:"scannedAt"`
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Extension  string    `json:"extension,omitempty"`
	DBID       int64     `json:"id"`
	ActivityID int64     `json:"activityId"`
	Size       int64     `json:"size"`
	IsFolder   bool      `json:"isFolder"`
}

// ScanStats summarises the snapshot entries recorded under one activity id.
type ScanStats struct {
	Files      int64 `json:"files"`
	Folders    int64 `json:"folders"`
	TotalBytes int64 `json:"totalBytes"`
}

// ScanSummary describes one scan session of a device.
type ScanSummary struct {
	Timestamp   time.Time `json:"timestamp"`
	ActivityID  int64     `json:"activityId"`
	FileCount   int64     `json:"fileCount"`
	FolderCount int64     `json:"folderCount"`
	TotalBytes  int64     `json:"totalBytes"`
}

/*
 * Interfaces for external deps
 */

type GenericDBI interface {
	Open() error
	UnsafeGetSQLDb() *sql.DB
	Truncate() error
	Allocate() error
	MigrateUp() error
	Vacuum() error
	Close() error
	GetDBPath() string
}

type AuditDBI interface {
	GenericDBI

	// RecordConnect atomically upserts the device row and appends a CONNECT
	// activity record, returning the new activity id.
	RecordConnect(device *Device, ts time.Time) (int64, error)
	// RecordDisconnect appends a DISCONNECT activity record.
	RecordDisconnect(deviceKey string, ts time.Time) (int64, error)

	GetDevice(identityKey string) (*Device, error)
	GetAllDevices() ([]Device, error)
	HasDeviceActivity(identityKey string) (bool, error)

	GetActivityHistory(limit int) ([]ActivityRecord, error)
	GetDeviceActivity(identityKey string, limit int) ([]ActivityRecord, error)
	LastDeviceEvent(identityKey string) (*ActivityRecord, error)

	InsertSnapshotBatch(entries []FileSnapshotEntry) error
	InsertSnapshotEntry(entry *FileSnapshotEntry) error
	GetSnapshotEntries(activityID int64) ([]FileSnapshotEntry, error)
	GetScanStats(activityID int64) (ScanStats, error)
	LatestConnectActivity(identityKey string) (int64, error)
	GetDeviceScans(identityKey string) ([]ScanSummary, error)
}
