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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/disk"
)

// Volume is one mounted removable filesystem as seen by the host.
type Volume struct {
	MountPoint    string
	Device        string
	Label         string
	FSType        string
	TotalCapacity int64
}

// VolumeEnumerator lists the removable volumes currently mounted.
type VolumeEnumerator interface {
	Removable() ([]Volume, error)
}

// ignoreFSTypes are virtual or network filesystems that can never back a
// removable device.
var ignoreFSTypes = []string{
	"proc", "sysfs", "devtmpfs", "devpts", "tmpfs", "cgroup", "cgroup2",
	"overlay", "squashfs", "autofs", "fusectl", "securityfs", "debugfs",
	"tracefs", "pstore", "bpf", "configfs", "ramfs", "nfs", "nfs4", "cifs",
	"smbfs", "fuse.sshfs",
}

func isIgnoredFS(fstype string) bool {
	fstype = strings.ToLower(fstype)
	for _, ignored := range ignoreFSTypes {
		if fstype == ignored {
			return true
		}
	}
	return false
}

// blockDeviceName returns the base block device name for a partition device
// path, e.g. /dev/sdb1 -> sdb, /dev/mmcblk0p1 -> mmcblk0.
func blockDeviceName(devicePath string) string {
	name := filepath.Base(devicePath)
	if i := strings.LastIndex(name, "p"); i > 0 {
		prefix := name[:i]
		suffix := name[i+1:]
		if suffix != "" && isDigits(suffix) && isDigits(prefix[len(prefix)-1:]) {
			// nvme0n1p1 / mmcblk0p1 style partition suffix
			return prefix
		}
	}
	return strings.TrimRight(name, "0123456789")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

type systemEnumerator struct{}

// NewVolumeEnumerator returns an enumerator backed by the host's mount table.
func NewVolumeEnumerator() VolumeEnumerator {
	return &systemEnumerator{}
}

func (*systemEnumerator) Removable() ([]Volume, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	volumes := make([]Volume, 0, len(parts))
	for i := range parts {
		part := &parts[i]
		if isIgnoredFS(part.Fstype) {
			continue
		}
		if !isRemovableMount(part) {
			continue
		}

		usage, usageErr := disk.Usage(part.Mountpoint)
		if usageErr != nil {
			log.Warn().Err(usageErr).Msgf("failed to stat mount: %s", part.Mountpoint)
			continue
		}

		volumes = append(volumes, Volume{
			MountPoint:    part.Mountpoint,
			Device:        part.Device,
			Label:         volumeLabel(part),
			FSType:        part.Fstype,
			TotalCapacity: int64(usage.Total), //nolint:gosec // capacity fits int64
		})
	}

	return volumes, nil
}
