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

package methods

import (
	"runtime"

	"github.com/DriveAuditProject/driveaudit-core/pkg/api/models"
	"github.com/DriveAuditProject/driveaudit-core/pkg/api/models/requests"
	"github.com/DriveAuditProject/driveaudit-core/pkg/config"
)

func HandleVersion(_ requests.RequestEnv) (any, error) {
	return models.VersionResponse{
		Version:  config.AppVersion,
		Platform: runtime.GOOS,
	}, nil
}
