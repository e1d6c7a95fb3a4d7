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

//go:build linux

package detect

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// isRemovableMount checks the kernel's removable flag for the mount's
// backing block device. USB mass storage always reports removable here.
func isRemovableMount(part *disk.PartitionStat) bool {
	if !strings.HasPrefix(part.Device, "/dev/") {
		return false
	}

	name := blockDeviceName(part.Device)
	flag, err := os.ReadFile(filepath.Join("/sys/block", name, "removable"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(flag)) == "1"
}

// volumeLabel resolves the filesystem label via /dev/disk/by-label, falling
// back to the mount point's base name.
func volumeLabel(part *disk.PartitionStat) string {
	entries, err := os.ReadDir("/dev/disk/by-label")
	if err == nil {
		for _, entry := range entries {
			target, linkErr := filepath.EvalSymlinks(
				filepath.Join("/dev/disk/by-label", entry.Name()))
			if linkErr == nil && target == part.Device {
				// labels are escaped by the kernel, e.g. \x20 for space
				return unescapeLabel(entry.Name())
			}
		}
	}
	return filepath.Base(part.Mountpoint)
}

func unescapeLabel(label string) string {
	var sb strings.Builder
	for i := 0; i < len(label); i++ {
		if label[i] == '\\' && i+3 < len(label) && label[i+1] == 'x' {
			var b byte
			ok := true
			for _, c := range []byte{label[i+2], label[i+3]} {
				b <<= 4
				switch {
				case c >= '0' && c <= '9':
					b |= c - '0'
				case c >= 'a' && c <= 'f':
					b |= c - 'a' + 10
				case c >= 'A' && c <= 'F':
					b |= c - 'A' + 10
				default:
					ok = false
				}
			}
			if ok {
				sb.WriteByte(b)
				i += 3
				continue
			}
		}
		sb.WriteByte(label[i])
	}
	return sb.String()
}
