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

package methods

import (
	"encoding/json"
	"errors"

	"github.com/DriveAuditProject/driveaudit-core/pkg/api/models"
	"github.com/DriveAuditProject/driveaudit-core/pkg/api/models/requests"
	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/rs/zerolog/log"
)

var ErrMissingParams = errors.New("missing params")

func deviceResponse(device *database.Device) models.DeviceResponse {
	return models.DeviceResponse{
		ID:            device.IdentityKey,
		Name:          device.Name,
		Manufacturer:  device.Manufacturer,
		VendorID:      device.VendorID,
		ProductID:     device.ProductID,
		TotalCapacity: device.TotalCapacity,
		Synthetic:     device.Synthetic,
		FirstSeen:     device.FirstSeen,
		LastSeen:      device.LastSeen,
	}
}

// HandleDevices returns the devices currently connected according to the
// presence tracker.
func HandleDevices(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Info().Msg("received devices request")

	connected := env.Tracker.List()
	resp := models.DevicesResponse{
		Success: true,
		Devices: make([]models.DeviceResponse, 0, len(connected)),
	}
	for _, p := range connected {
		device := deviceResponse(p.Device)
		device.Connected = true
		device.MountPoint = p.MountPoint
		device.ActivityID = p.ActivityID
		resp.Devices = append(resp.Devices, device)
	}

	return resp, nil
}

// HandleRegisteredDevices returns every device the registry has ever seen.
func HandleRegisteredDevices(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Info().Msg("received registered devices request")

	devices, err := env.Database.AuditDB.GetAllDevices()
	if err != nil {
		log.Error().Err(err).Msg("error getting registered devices")
		return nil, errors.New("error getting registered devices")
	}

	resp := models.DevicesResponse{
		Success: true,
		Devices: make([]models.DeviceResponse, 0, len(devices)),
	}
	for i := range devices {
		device := deviceResponse(&devices[i])
		if p, ok := env.Tracker.Get(device.ID); ok {
			device.Connected = true
			device.MountPoint = p.MountPoint
			device.ActivityID = p.ActivityID
		}
		resp.Devices = append(resp.Devices, device)
	}

	return resp, nil
}

// HandleHistory returns ledger rows, newest first. With a deviceId param it
// is scoped to that device, otherwise it covers all devices.
func HandleHistory(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Info().Msg("received history request")

	limit := 0
	deviceID := ""
	if len(env.Params) > 0 {
		var params struct {
			models.DeviceParams
			models.HistoryParams
		}
		if err := json.Unmarshal(env.Params, &params); err != nil {
			return nil, ErrMissingParams
		}
		deviceID = params.DeviceID
		if params.Limit != nil {
			limit = *params.Limit
		}
	}

	var records []database.ActivityRecord
	var err error
	if deviceID != "" {
		records, err = env.Database.AuditDB.GetDeviceActivity(deviceID, limit)
	} else {
		records, err = env.Database.AuditDB.GetActivityHistory(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("error getting history")
		return nil, errors.New("error getting history")
	}

	resp := models.HistoryResponse{
		Success: true,
		History: make([]models.ActivityResponseEntry, len(records)),
	}
	for i, record := range records {
		resp.History[i] = models.ActivityResponseEntry{
			ID:        record.DBID,
			DeviceID:  record.DeviceKey,
			EventType: record.EventType,
			Timestamp: record.Timestamp,
		}
	}

	return resp, nil
}

// HandleDeviceScans returns per-session scan summaries for one device,
// newest session first.
func HandleDeviceScans(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Info().Msg("received device scans request")

	var params models.DeviceParams
	if len(env.Params) == 0 {
		return nil, ErrMissingParams
	}
	if err := json.Unmarshal(env.Params, &params); err != nil || params.DeviceID == "" {
		return nil, ErrMissingParams
	}

	scans, err := env.Database.AuditDB.GetDeviceScans(params.DeviceID)
	if err != nil {
		log.Error().Err(err).Msg("error getting device scans")
		return nil, errors.New("error getting device scans")
	}

	resp := models.ScansResponse{
		Success:  true,
		DeviceID: params.DeviceID,
		Scans:    make([]models.ScanResponseEntry, len(scans)),
	}
	for i, scan := range scans {
		resp.Scans[i] = models.ScanResponseEntry{
			ActivityID:  scan.ActivityID,
			Timestamp:   scan.Timestamp,
			FileCount:   scan.FileCount,
			FolderCount: scan.FolderCount,
			TotalBytes:  scan.TotalBytes,
		}
	}

	return resp, nil
}

// HandleDeviceFiles returns the snapshot entries for one session of a
// device. Without an activityId param it uses the latest session.
func HandleDeviceFiles(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Info().Msg("received device files request")

	var params models.FilesParams
	if len(env.Params) == 0 {
		return nil, ErrMissingParams
	}
	if err := json.Unmarshal(env.Params, &params); err != nil || params.DeviceID == "" {
		return nil, ErrMissingParams
	}

	var activityID int64
	if params.ActivityID != nil {
		activityID = *params.ActivityID
	} else {
		latest, err := env.Database.AuditDB.LatestConnectActivity(params.DeviceID)
		if err != nil {
			log.Error().Err(err).Msg("error getting latest session")
			return nil, errors.New("error getting latest session")
		}
		activityID = latest
	}

	resp := models.FilesResponse{
		Success:    true,
		DeviceID:   params.DeviceID,
		ActivityID: activityID,
		Snapshots:  make([]models.SnapshotResponseEntry, 0),
	}
	if activityID == 0 {
		// device has never connected; an empty snapshot set is a valid answer
		return resp, nil
	}

	entries, err := env.Database.AuditDB.GetSnapshotEntries(activityID)
	if err != nil {
		log.Error().Err(err).Msg("error getting snapshot entries")
		return nil, errors.New("error getting snapshot entries")
	}
	for i := range entries {
		entry := &entries[i]
		resp.Snapshots = append(resp.Snapshots, models.SnapshotResponseEntry{
			Path:      entry.Path,
			Name:      entry.Name,
			Extension: entry.Extension,
			Size:      entry.Size,
			IsFolder:  entry.IsFolder,
			ScannedAt: entry.ScannedAt,
		})
	}

	stats, err := env.Database.AuditDB.GetScanStats(activityID)
	if err != nil {
		log.Error().Err(err).Msg("error getting scan stats")
		return nil, errors.New("error getting scan stats")
	}
	resp.Stats = models.ScanStatsResponse{
		Files:      stats.Files,
		Folders:    stats.Folders,
		TotalBytes: stats.TotalBytes,
	}

	return resp, nil
}
