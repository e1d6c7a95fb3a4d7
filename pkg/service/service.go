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

package service

import (
	"context"
	"fmt"

	"github.com/DriveAuditProject/driveaudit-core/pkg/api"
	"github.com/DriveAuditProject/driveaudit-core/pkg/api/models"
	"github.com/DriveAuditProject/driveaudit-core/pkg/api/notifications"
	"github.com/DriveAuditProject/driveaudit-core/pkg/config"
	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/DriveAuditProject/driveaudit-core/pkg/database/auditdb"
	"github.com/DriveAuditProject/driveaudit-core/pkg/detect"
	"github.com/DriveAuditProject/driveaudit-core/pkg/scanner"
	"github.com/DriveAuditProject/driveaudit-core/pkg/service/broker"
	"github.com/DriveAuditProject/driveaudit-core/pkg/service/state"
	"github.com/DriveAuditProject/driveaudit-core/pkg/watcher"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

func makeDatabase(ctx context.Context) (*database.Database, error) {
	auditDB, err := auditdb.OpenAuditDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("error opening audit database: %w", err)
	}
	if err := auditDB.MigrateUp(); err != nil {
		return nil, fmt.Errorf("error migrating audit database: %w", err)
	}
	return &database.Database{AuditDB: auditDB}, nil
}

func devicePayload(p *detect.Presence) models.DeviceResponse {
	return models.DeviceResponse{
		ID:            p.Device.IdentityKey,
		Name:          p.Device.Name,
		Manufacturer:  p.Device.Manufacturer,
		VendorID:      p.Device.VendorID,
		ProductID:     p.Device.ProductID,
		TotalCapacity: p.Device.TotalCapacity,
		Synthetic:     p.Device.Synthetic,
		MountPoint:    p.MountPoint,
		ActivityID:    p.ActivityID,
		Connected:     true,
	}
}

// Start brings up the audit service: the persistent store, the detection
// monitor, the scan and watch managers and the API server. Returns a stop
// function for a clean shutdown. A device still connected at shutdown keeps
// its session open in the ledger; the next startup reconciles it.
func Start(cfg *config.Instance) (stop func() error, err error) {
	log.Info().Msgf("version: %s", config.AppVersion)

	bootUUID := uuid.New().String()
	log.Info().Msgf("boot session UUID: %s", bootUUID)

	st, ns := state.NewState(bootUUID)

	notifBroker := broker.New()
	go notifBroker.Run(st.GetContext(), ns)

	log.Info().Msg("opening audit database")
	db, err := makeDatabase(st.GetContext())
	if err != nil {
		log.Error().Err(err).Msg("error opening audit database")
		return nil, err
	}

	clock := clockwork.NewRealClock()

	scanManager := scanner.NewManager(scanner.NewScanner(db, cfg.ScanBatchSize(), clock))
	scanManager.SetCompleteHandler(func(identityKey string, activityID int64, result *scanner.ScanResult) {
		if !result.Completed {
			return
		}
		notifications.ScanComplete(st.Notifications, models.ScanCompleteParams{
			DeviceID:   identityKey,
			ActivityID: activityID,
			Files:      result.Files,
			Folders:    result.Folders,
			TotalBytes: result.TotalBytes,
			Warnings:   result.Warnings,
			Completed:  true,
		})
	})

	copyWatcher := watcher.New(db, clock, cfg.WatcherDebounce())
	copyWatcher.SetCopyHandler(func(identityKey string, entry *database.FileSnapshotEntry) {
		notifications.CopyDetected(st.Notifications, models.CopyDetectedParams{
			DeviceID:   identityKey,
			ActivityID: entry.ActivityID,
			Path:       entry.Path,
			Size:       entry.Size,
		})
	})
	watchManager := watcher.NewManager(copyWatcher)

	monitor := detect.NewMonitor(cfg, db, clock,
		detect.NewVolumeEnumerator(), detect.NewDescriptorSource())
	monitor.SetHandlers(detect.Handlers{
		Connected: func(p detect.Presence) {
			notifications.DeviceConnected(st.Notifications, devicePayload(&p))
			scanManager.Begin(st.GetContext(), p.Device.IdentityKey, p.MountPoint, p.ActivityID)
			if cfg.WatcherEnabled() {
				watchManager.Begin(st.GetContext(), p.Device.IdentityKey, p.MountPoint, p.ActivityID)
			}
		},
		Disconnected: func(p detect.Presence) {
			scanManager.Cancel(p.Device.IdentityKey)
			watchManager.Stop(p.Device.IdentityKey)
			notifications.DeviceDisconnected(st.Notifications, devicePayload(&p))
		},
	})

	log.Info().Msg("starting device monitor")
	monitor.Start(st.GetContext())

	log.Info().Msg("starting API service")
	apiNotifications, _ := notifBroker.Subscribe()
	go api.Start(cfg, st, db, monitor.Tracker(), apiNotifications)

	return func() error {
		st.StopService()
		scanManager.CancelAll()
		watchManager.StopAll()
		if closeErr := db.AuditDB.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing audit database")
		}
		return nil
	}, nil
}
