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
	"errors"

	"github.com/DriveAuditProject/driveaudit-core/pkg/config"
	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Handlers receive presence transitions after they are committed to the
// ledger. Both run on the monitor goroutine and must not block.
type Handlers struct {
	Connected    func(p Presence)
	Disconnected func(p Presence)
}

// Monitor is the detection cycle: each tick it enumerates removable
// volumes, resolves identities, diffs against the presence tracker, and
// commits transitions to the ledger.
type Monitor struct {
	cfg         *config.Instance
	db          *database.Database
	clock       clockwork.Clock
	volumes     VolumeEnumerator
	descriptors DescriptorSource
	tracker     *Tracker
	handlers    Handlers
}

func NewMonitor(
	cfg *config.Instance,
	db *database.Database,
	clock clockwork.Clock,
	volumes VolumeEnumerator,
	descriptors DescriptorSource,
) *Monitor {
	return &Monitor{
		cfg:         cfg,
		db:          db,
		clock:       clock,
		volumes:     volumes,
		descriptors: descriptors,
		tracker:     NewTracker(),
	}
}

func (m *Monitor) SetHandlers(h Handlers) {
	m.handlers = h
}

func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// Run polls until the context is cancelled. The first pass happens
// immediately so devices present at startup are registered without waiting
// a full interval.
func (m *Monitor) Run(ctx context.Context) {
	log.Info().Msgf("device monitor started, interval=%s", m.cfg.PollInterval())
	ticker := m.clock.NewTicker(m.cfg.PollInterval())
	defer ticker.Stop()

	m.poll()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("device monitor shutting down via context cancellation")
			return
		case <-ticker.Chan():
			m.poll()
		}
	}
}

// Start runs the monitor on its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	go m.Run(ctx)
}

func (m *Monitor) poll() {
	vols, err := m.volumes.Removable()
	if err != nil {
		log.Warn().Err(err).Msg("failed to enumerate removable volumes")
		return
	}

	var known []database.Device
	if len(vols) > 0 {
		known, err = m.db.AuditDB.GetAllDevices()
		if err != nil {
			log.Warn().Err(err).Msg("failed to load device registry")
		}
	}

	current := make(map[string]Presence, len(vols))
	for i := range vols {
		vol := &vols[i]
		desc, descErr := m.descriptors.Describe(vol)
		if descErr != nil && !errors.Is(descErr, ErrNoDescriptor) {
			log.Warn().Err(descErr).Msgf("descriptor query failed: %s", vol.MountPoint)
		}

		device := Reconcile(vol, desc, known, m.cfg.CapacityTolerance())
		current[device.IdentityKey] = Presence{
			Device:     device,
			MountPoint: vol.MountPoint,
		}
	}

	connects, disconnects := m.tracker.Diff(current)
	now := m.clock.Now()

	for _, p := range disconnects {
		key := p.Device.IdentityKey
		if _, recErr := m.db.AuditDB.RecordDisconnect(key, now); recErr != nil {
			log.Warn().Err(recErr).Msgf("failed to record DISCONNECT: %s", key)
		} else {
			log.Info().Msgf("device disconnected: %s", key)
		}
		// the device is gone either way; scans and watches must stop
		if m.handlers.Disconnected != nil {
			m.handlers.Disconnected(p)
		}
	}

	for _, p := range connects {
		key := p.Device.IdentityKey
		m.noteIdentityUpgrade(p, known)

		activityID, recErr := m.db.AuditDB.RecordConnect(p.Device, now)
		if errors.Is(recErr, database.ErrActivityOrder) {
			// stale session left open by an earlier run; close it first
			log.Warn().Msgf("closing stale session for %s", key)
			if _, dErr := m.db.AuditDB.RecordDisconnect(key, now); dErr == nil {
				activityID, recErr = m.db.AuditDB.RecordConnect(p.Device, now)
			}
		}
		if recErr != nil {
			log.Warn().Err(recErr).Msgf("failed to record CONNECT: %s", key)
			// revert to untracked so the next tick retries the ledger write
			m.tracker.Drop(key)
			continue
		}

		m.tracker.SetActivity(key, activityID)
		p.ActivityID = activityID
		log.Info().Msgf("device connected: %s at %s", key, p.MountPoint)
		if m.handlers.Connected != nil {
			m.handlers.Connected(p)
		}
	}
}

// noteIdentityUpgrade logs when a device previously known only by a
// synthetic identity starts reporting a precise one. History stays under
// the synthetic key; the ledger is never rewritten.
func (m *Monitor) noteIdentityUpgrade(p Presence, known []database.Device) {
	if p.Device.Synthetic {
		return
	}
	if _, err := m.db.AuditDB.GetDevice(p.Device.IdentityKey); err == nil {
		return
	}
	vol := Volume{
		MountPoint:    p.MountPoint,
		Label:         p.Device.Name,
		TotalCapacity: p.Device.TotalCapacity,
	}
	if syntheticKey := MatchSynthetic(known, &vol, m.cfg.CapacityTolerance()); syntheticKey != "" {
		log.Warn().Msgf(
			"device %s previously tracked under synthetic identity %s, prior history stays there",
			p.Device.IdentityKey, syntheticKey)
	}
}
