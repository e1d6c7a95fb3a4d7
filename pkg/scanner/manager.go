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

	"github.com/DriveAuditProject/driveaudit-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// CompleteHandler runs after a scan finishes, whether completed or cut
// short. Runs on the scan goroutine.
type CompleteHandler func(identityKey string, activityID int64, result *ScanResult)

// Manager runs at most one scan task per device identity. A new scan for
// an identity supersedes the running one: it is cancelled and waited for
// before the replacement starts.
type Manager struct {
	scanner    *Scanner
	tasks      map[string]*task
	onComplete CompleteHandler
	mu         syncutil.Mutex
}

func NewManager(s *Scanner) *Manager {
	return &Manager{
		scanner: s,
		tasks:   make(map[string]*task),
	}
}

func (m *Manager) SetCompleteHandler(handler CompleteHandler) {
	m.onComplete = handler
}

// Begin starts a scan of root for the identity's current session. Any scan
// still running for the same identity is cancelled first.
func (m *Manager) Begin(ctx context.Context, identityKey, root string, activityID int64) {
	m.Cancel(identityKey)

	scanCtx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.tasks[identityKey] = t
	m.mu.Unlock()

	go func() {
		defer close(t.done)
		defer cancel()

		log.Info().Msgf("snapshot scan started: %s (%s)", identityKey, root)
		result, err := m.scanner.Scan(scanCtx, root, activityID)
		if err != nil {
			log.Warn().Err(err).Msgf("snapshot scan failed: %s", identityKey)
		}

		m.mu.Lock()
		if m.tasks[identityKey] == t {
			delete(m.tasks, identityKey)
		}
		m.mu.Unlock()

		if result.Completed {
			log.Info().Msgf(
				"snapshot scan complete: %s files=%d folders=%d bytes=%d warnings=%d",
				identityKey, result.Files, result.Folders, result.TotalBytes, result.Warnings)
		} else {
			log.Info().Msgf("snapshot scan cut short: %s committed=%d", identityKey, result.Committed)
		}
		if m.onComplete != nil {
			m.onComplete(identityKey, activityID, result)
		}
	}()
}

// Cancel stops the scan for an identity, if one is running, and waits for
// it to wind down.
func (m *Manager) Cancel(identityKey string) {
	m.mu.Lock()
	t, ok := m.tasks[identityKey]
	if ok {
		delete(m.tasks, identityKey)
	}
	m.mu.Unlock()

	if ok {
		t.cancel()
		<-t.done
	}
}

// CancelAll stops every running scan. Called on shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	tasks := make([]*task, 0, len(m.tasks))
	for key, t := range m.tasks {
		tasks = append(tasks, t)
		delete(m.tasks, key)
	}
	m.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
		<-t.done
	}
}
