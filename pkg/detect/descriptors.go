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

import "errors"

// ErrNoDescriptor is returned when the bus does not expose hardware
// descriptors for a volume. This is an expected condition, e.g. when a
// security driver blocks descriptor queries, and callers fall back to a
// synthetic identity.
var ErrNoDescriptor = errors.New("no hardware descriptor available")

// Descriptor is the hardware identity of a storage device as reported by
// the bus.
type Descriptor struct {
	Serial       string
	Product      string
	Manufacturer string
	Address      int
	VendorID     uint16
	ProductID    uint16
}

// DescriptorSource resolves a mounted volume to its hardware descriptor.
type DescriptorSource interface {
	Describe(vol *Volume) (*Descriptor, error)
}
