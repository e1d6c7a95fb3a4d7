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
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial/enumerator"
)

// recoverPortSerial looks up a serial number for a VID/PID pair from the
// host's USB serial port table. Composite devices (card readers with a CDC
// interface) sometimes report a serial there that the storage interface
// omits.
func recoverPortSerial(vendorID, productID uint16) string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		log.Debug().Err(err).Msg("failed to enumerate serial ports")
		return ""
	}

	for _, port := range ports {
		if !port.IsUSB || port.SerialNumber == "" {
			continue
		}
		vid, vidErr := strconv.ParseUint(strings.TrimSpace(port.VID), 16, 16)
		pid, pidErr := strconv.ParseUint(strings.TrimSpace(port.PID), 16, 16)
		if vidErr != nil || pidErr != nil {
			continue
		}
		if uint16(vid) == vendorID && uint16(pid) == productID {
			return port.SerialNumber
		}
	}
	return ""
}
