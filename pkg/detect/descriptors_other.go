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

//go:build !linux

package detect

type stubSource struct{}

// NewDescriptorSource returns a source that never resolves descriptors.
// Platforms without a sysfs equivalent rely on synthetic identities.
func NewDescriptorSource() DescriptorSource {
	return &stubSource{}
}

func (*stubSource) Describe(_ *Volume) (*Descriptor, error) {
	return nil, ErrNoDescriptor
}
