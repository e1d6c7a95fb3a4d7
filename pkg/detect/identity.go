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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
)

const syntheticPrefix = "MP-"

// PreciseIdentity derives the identity key from a hardware descriptor.
// The serial number wins when present; otherwise the VID/PID/address
// composite keeps identities distinct per physical port.
func PreciseIdentity(desc *Descriptor) string {
	if desc.Serial != "" {
		return desc.Serial
	}
	return fmt.Sprintf("VID%04X_PID%04X_ADDR%d",
		desc.VendorID, desc.ProductID, desc.Address)
}

// SyntheticIdentity derives a stable fallback key from the volume's mount
// point and reported capacity. The same volume remounted at the same point
// always yields the same key.
func SyntheticIdentity(vol *Volume) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d", vol.MountPoint, vol.TotalCapacity))
	return syntheticPrefix + hex.EncodeToString(sum[:])[:16]
}

// CapacityWithin reports whether two capacity readings agree within the
// given relative tolerance. Readings can jitter between polls when the OS
// reports usable rather than raw capacity.
func CapacityWithin(a, b, tolerance float64) bool {
	if a == 0 || b == 0 {
		return a == b
	}
	return math.Abs(a-b) <= tolerance*math.Max(a, b)
}

// MatchSynthetic finds a previously registered synthetic identity for a
// volume by label and capacity tolerance, so a device whose reported
// capacity drifts slightly between sessions keeps one identity.
func MatchSynthetic(known []database.Device, vol *Volume, tolerance float64) string {
	for i := range known {
		device := &known[i]
		if !device.Synthetic {
			continue
		}
		if device.Name != vol.Label {
			continue
		}
		if CapacityWithin(float64(device.TotalCapacity), float64(vol.TotalCapacity), tolerance) {
			return device.IdentityKey
		}
	}
	return ""
}

// Reconcile resolves one volume and its optional hardware descriptor into a
// registry row. Pure: the same inputs always produce the same identity, and
// a visible volume always resolves to something.
func Reconcile(vol *Volume, desc *Descriptor, known []database.Device, tolerance float64) *database.Device {
	device := &database.Device{
		Name:          vol.Label,
		TotalCapacity: vol.TotalCapacity,
	}

	if desc != nil {
		device.IdentityKey = PreciseIdentity(desc)
		device.VendorID = desc.VendorID
		device.ProductID = desc.ProductID
		device.Manufacturer = desc.Manufacturer
		if device.Name == "" {
			device.Name = desc.Product
		}
		return device
	}

	device.Synthetic = true
	if key := MatchSynthetic(known, vol, tolerance); key != "" {
		device.IdentityKey = key
	} else {
		device.IdentityKey = SyntheticIdentity(vol)
	}
	return device
}
