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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfigIn(t *testing.T, dir string) *Instance {
	t.Helper()
	t.Setenv(CfgEnv, "")
	t.Setenv(AppEnv, "")
	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)
	return cfg
}

func TestNewConfigWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfigIn(t, dir)

	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.InDelta(t, 0.1, cfg.CapacityTolerance(), 0.0001)
	assert.Equal(t, 500, cfg.ScanBatchSize())
	assert.True(t, cfg.WatcherEnabled())
	assert.Equal(t, 3*time.Second, cfg.WatcherDebounce())
	assert.Equal(t, 7497, cfg.APIPort())
	assert.False(t, cfg.DebugLogging())

	_, err := os.Stat(filepath.Join(dir, CfgFile))
	require.NoError(t, err)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	data := `
config_schema = 1

[detection]
poll_interval = 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(data), 0o600))

	cfg := newConfigIn(t, dir)

	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	// fields absent from the file keep their defaults
	assert.Equal(t, 500, cfg.ScanBatchSize())
	assert.InDelta(t, 0.1, cfg.CapacityTolerance(), 0.0001)
}

func TestLoadRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	data := "config_schema = 99\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(data), 0o600))

	t.Setenv(CfgEnv, "")
	t.Setenv(AppEnv, "")
	_, err := NewConfig(dir, BaseDefaults)
	require.Error(t, err)
}

func TestAccessorsFallBackOnInvalidValues(t *testing.T) {
	dir := t.TempDir()
	data := `
config_schema = 1

[detection]
poll_interval = -1
capacity_tolerance = 0.0

[scanner]
batch_size = 0

[service]
api_port = 0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(data), 0o600))

	cfg := newConfigIn(t, dir)

	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.InDelta(t, 0.1, cfg.CapacityTolerance(), 0.0001)
	assert.Equal(t, 500, cfg.ScanBatchSize())
	assert.Equal(t, 7497, cfg.APIPort())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfigIn(t, dir)

	cfg.SetDebugLogging(true)
	require.NoError(t, cfg.Save())

	reloaded := newConfigIn(t, dir)
	assert.True(t, reloaded.DebugLogging())
}

func TestEnvOverridesConfigPath(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.toml")
	t.Setenv(CfgEnv, cfgPath)
	t.Setenv(AppEnv, "")

	_, err := NewConfig(t.TempDir(), BaseDefaults)
	require.NoError(t, err)

	_, err = os.Stat(cfgPath)
	require.NoError(t, err)
}
