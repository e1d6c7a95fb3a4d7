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

// Package broker fans service notifications out to subscribers. Sends never
// block: a subscriber that stops draining loses events rather than stalling
// the detection loop.
package broker

import (
	"context"

	"github.com/DriveAuditProject/driveaudit-core/pkg/api/models"
	"github.com/DriveAuditProject/driveaudit-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

const defaultBuffer = 100

type Broker struct {
	subs   map[int]chan models.Notification
	nextID int
	mu     syncutil.Mutex
}

func New() *Broker {
	return &Broker{
		subs: make(map[int]chan models.Notification),
	}
}

// Subscribe registers a consumer. The returned cancel function must be
// called when the consumer is done; it closes the channel.
func (b *Broker) Subscribe() (<-chan models.Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan models.Notification, defaultBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers a notification to every subscriber without blocking.
func (b *Broker) Publish(notif models.Notification) { //nolint:gocritic // notification copied per subscriber
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		select {
		case sub <- notif:
		default:
			log.Warn().Msgf("subscriber %d full, dropping notification: %s", id, notif.Method)
		}
	}
}

// Run pumps notifications from in to the subscribers until the context is
// cancelled.
func (b *Broker) Run(ctx context.Context, in <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("closing notification broker via context cancellation")
			return
		case notif := <-in:
			b.Publish(notif)
		}
	}
}
