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

package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationDeviceConnected    = "device.connected"
	NotificationDeviceDisconnected = "device.disconnected"
	NotificationScanComplete       = "scan.complete"
	NotificationCopyDetected       = "copy.detected"
)

const (
	MethodDevices           = "devices"
	MethodDevicesRegistered = "devices.registered"
	MethodDevicesHistory    = "devices.history"
	MethodDevicesScans      = "devices.scans"
	MethodDevicesFiles      = "devices.files"
	MethodVersion           = "version"
)

type Notification struct {
	Params any
	Method string
}

type RequestObject struct {
	ID      *uuid.UUID `json:"id,omitempty"`
	Params  any        `json:"params,omitempty"`
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
}

type ErrorObject struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type ResponseObject struct {
	Result  any          `json:"result"`
	Error   *ErrorObject `json:"error,omitempty"`
	JSONRPC string       `json:"jsonrpc"`
	ID      uuid.UUID    `json:"id"`
}

type DeviceResponse struct {
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Manufacturer  string    `json:"manufacturer,omitempty"`
	MountPoint    string    `json:"mountPoint,omitempty"`
	TotalCapacity int64     `json:"totalCapacity"`
	ActivityID    int64     `json:"activityId,omitempty"`
	VendorID      uint16    `json:"vendorId"`
	ProductID     uint16    `json:"productId"`
	Synthetic     bool      `json:"synthetic"`
	Connected     bool      `json:"connected"`
}

type DevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Success bool             `json:"success"`
}

type ActivityResponseEntry struct {
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"deviceId"`
	EventType string    `json:"eventType"`
	ID        int64     `json:"id"`
}

type HistoryResponse struct {
	History []ActivityResponseEntry `json:"history"`
	Success bool                    `json:"success"`
}

type ScanResponseEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	ActivityID  int64     `json:"activityId"`
	FileCount   int64     `json:"fileCount"`
	FolderCount int64     `json:"folderCount"`
	TotalBytes  int64     `json:"totalBytes"`
}

type ScansResponse struct {
	DeviceID string              `json:"deviceId"`
	Scans    []ScanResponseEntry `json:"scans"`
	Success  bool                `json:"success"`
}

type SnapshotResponseEntry struct {
	ScannedAt time.Time `json:"scannedAt"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Extension string    `json:"extension,omitempty"`
	Size      int64     `json:"size"`
	IsFolder  bool      `json:"isFolder"`
}

type ScanStatsResponse struct {
	Files      int64 `json:"files"`
	Folders    int64 `json:"folders"`
	TotalBytes int64 `json:"totalBytes"`
}

type FilesResponse struct {
	DeviceID   string                  `json:"deviceId"`
	Snapshots  []SnapshotResponseEntry `json:"snapshots"`
	Stats      ScanStatsResponse       `json:"stats"`
	ActivityID int64                   `json:"activityId"`
	Success    bool                    `json:"success"`
}

type VersionResponse struct {
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

type ScanCompleteParams struct {
	DeviceID   string `json:"deviceId"`
	ActivityID int64  `json:"activityId"`
	Files      int64  `json:"files"`
	Folders    int64  `json:"folders"`
	TotalBytes int64  `json:"totalBytes"`
	Warnings   int    `json:"warnings"`
	Completed  bool   `json:"completed"`
}

type CopyDetectedParams struct {
	DeviceID   string `json:"deviceId"`
	Path       string `json:"path"`
	ActivityID int64  `json:"activityId"`
	Size       int64  `json:"size"`
}
