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
	"strconv"
	"strings"
)

type sysfsSource struct{}

// NewDescriptorSource returns a source backed by the kernel's sysfs USB
// device tree.
func NewDescriptorSource() DescriptorSource {
	return &sysfsSource{}
}

func readSysfsAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// usbDeviceDir walks up from a block device's sysfs node to the USB device
// directory, identified by the presence of an idVendor attribute.
func usbDeviceDir(blockName string) (string, error) {
	start, err := filepath.EvalSymlinks(filepath.Join("/sys/block", blockName))
	if err != nil {
		return "", ErrNoDescriptor
	}

	dir := start
	for range 10 {
		if _, statErr := os.Stat(filepath.Join(dir, "idVendor")); statErr == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir || parent == "/sys" {
			break
		}
		dir = parent
	}
	return "", ErrNoDescriptor
}

func (*sysfsSource) Describe(vol *Volume) (*Descriptor, error) {
	if !strings.HasPrefix(vol.Device, "/dev/") {
		return nil, ErrNoDescriptor
	}

	dir, err := usbDeviceDir(blockDeviceName(vol.Device))
	if err != nil {
		return nil, err
	}

	vid, vidErr := strconv.ParseUint(readSysfsAttr(dir, "idVendor"), 16, 16)
	pid, pidErr := strconv.ParseUint(readSysfsAttr(dir, "idProduct"), 16, 16)
	if vidErr != nil || pidErr != nil {
		return nil, ErrNoDescriptor
	}

	desc := &Descriptor{
		VendorID:     uint16(vid),
		ProductID:    uint16(pid),
		Serial:       readSysfsAttr(dir, "serial"),
		Product:      readSysfsAttr(dir, "product"),
		Manufacturer: readSysfsAttr(dir, "manufacturer"),
	}
	if devnum, numErr := strconv.Atoi(readSysfsAttr(dir, "devnum")); numErr == nil {
		desc.Address = devnum
	}
	if desc.Serial == "" {
		desc.Serial = recoverPortSerial(desc.VendorID, desc.ProductID)
	}

	return desc, nil
}
