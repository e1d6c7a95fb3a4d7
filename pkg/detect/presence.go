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
	"sort"

	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/DriveAuditProject/driveaudit-core/pkg/helpers/syncutil"
)

// Presence is one currently connected device as tracked by the state
// machine: the resolved registry row, where it is mounted, and the ledger
// row opened for this session.
type Presence struct {
	Device     *database.Device
	MountPoint string
	ActivityID int64
}

// Tracker owns the per-identity connection state. Identities start Unknown,
// become Connected on first observation, and flip between Connected and
// Disconnected afterwards. All readers go through this type; nothing else
// holds connection state.
type Tracker struct {
	connected map[string]Presence
	mu        syncutil.RWMutex
}

func NewTracker() *Tracker {
	return &Tracker{
		connected: make(map[string]Presence),
	}
}

// Diff commits one observation pass and returns the transitions it caused.
// Identities present in current but not tracked produce connects; tracked
// identities absent from current produce disconnects. An identity present
// in both is a no-op, whatever its mount point now is.
func (t *Tracker) Diff(current map[string]Presence) (connects, disconnects []Presence) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, p := range current {
		if _, ok := t.connected[key]; !ok {
			connects = append(connects, p)
		}
	}
	for key, p := range t.connected {
		if _, ok := current[key]; !ok {
			disconnects = append(disconnects, p)
			delete(t.connected, key)
		}
	}
	for _, p := range connects {
		t.connected[p.Device.IdentityKey] = p
	}

	sort.Slice(connects, func(i, j int) bool {
		return connects[i].Device.IdentityKey < connects[j].Device.IdentityKey
	})
	sort.Slice(disconnects, func(i, j int) bool {
		return disconnects[i].Device.IdentityKey < disconnects[j].Device.IdentityKey
	})
	return connects, disconnects
}

// Drop removes an identity from the tracked set without a disconnect
// transition. Used when the ledger write for a connect fails: the identity
// reverts to untracked so the next observation retries the CONNECT.
func (t *Tracker) Drop(identityKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.connected, identityKey)
}

// SetActivity stores the ledger row id opened for a connected identity.
func (t *Tracker) SetActivity(identityKey string, activityID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.connected[identityKey]; ok {
		p.ActivityID = activityID
		t.connected[identityKey] = p
	}
}

// Get returns the presence entry for an identity, if connected.
func (t *Tracker) Get(identityKey string) (Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.connected[identityKey]
	return p, ok
}

// List returns all connected identities, ordered by key.
func (t *Tracker) List() []Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]Presence, 0, len(t.connected))
	for _, p := range t.connected {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Device.IdentityKey < list[j].Device.IdentityKey
	})
	return list
}
