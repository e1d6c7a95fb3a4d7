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

	"github.com/DriveAuditProject/driveaudit-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs one watch per connected device identity, started on CONNECT
// and stopped on DISCONNECT.
type Manager struct {
	watcher  *Watcher
	sessions map[string]*session
	mu       syncutil.Mutex
}

func NewManager(w *Watcher) *Manager {
	return &Manager{
		watcher:  w,
		sessions: make(map[string]*session),
	}
}

// Begin starts watching root under the session's activity id. Any watch
// already running for the identity is stopped first.
func (m *Manager) Begin(ctx context.Context, identityKey, root string, activityID int64) {
	m.Stop(identityKey)

	watchCtx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.sessions[identityKey] = s
	m.mu.Unlock()

	go func() {
		defer close(s.done)
		defer cancel()

		if err := m.watcher.Watch(watchCtx, identityKey, root, activityID); err != nil {
			log.Warn().Err(err).Msgf("copy watcher failed: %s", identityKey)
		}

		m.mu.Lock()
		if m.sessions[identityKey] == s {
			delete(m.sessions, identityKey)
		}
		m.mu.Unlock()
	}()
}

// Stop ends the watch for an identity, if one is running.
func (m *Manager) Stop(identityKey string) {
	m.mu.Lock()
	s, ok := m.sessions[identityKey]
	if ok {
		delete(m.sessions, identityKey)
	}
	m.mu.Unlock()

	if ok {
		s.cancel()
		<-s.done
	}
}

// StopAll ends every running watch. Called on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for key, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
		<-s.done
	}
}
