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

package helpers

import (
	"os"
	"path/filepath"

	"github.com/DriveAuditProject/driveaudit-core/pkg/config"
	"github.com/adrg/xdg"
)

// HasUserDir checks for a "user" directory next to the executable, which
// overrides the system data locations for portable installs.
func HasUserDir() (string, bool) {
	exePath, err := os.Executable()
	if err != nil {
		return "", false
	}

	userDir := filepath.Join(filepath.Dir(exePath), "user")
	info, err := os.Stat(userDir)
	if err != nil || !info.IsDir() {
		return "", false
	}

	return userDir, true
}

// DataDir returns the per-user application data directory where the audit
// database lives. Created on demand by the caller.
func DataDir() string {
	if userDir, ok := HasUserDir(); ok {
		return userDir
	}
	return filepath.Join(xdg.DataHome, config.AppName)
}

// ConfigDir returns the per-user directory holding config.toml.
func ConfigDir() string {
	if userDir, ok := HasUserDir(); ok {
		return userDir
	}
	return filepath.Join(xdg.ConfigHome, config.AppName)
}

// LogDir returns the directory for rotated service logs.
func LogDir() string {
	if userDir, ok := HasUserDir(); ok {
		return userDir
	}
	return filepath.Join(xdg.StateHome, config.AppName)
}
