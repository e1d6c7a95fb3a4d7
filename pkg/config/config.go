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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/DriveAuditProject/driveaudit-core/pkg/helpers/syncutil"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	CfgEnv        = "DRIVEAUDIT_CFG"
	AppEnv        = "DRIVEAUDIT_APP"
)

type Values struct {
	Detection    Detection `toml:"detection,omitempty"`
	Scanner      Scanner   `toml:"scanner,omitempty"`
	Watcher      Watcher   `toml:"watcher,omitempty"`
	Service      Service   `toml:"service,omitempty"`
	ConfigSchema int       `toml:"config_schema"`
	DebugLogging bool      `toml:"debug_logging"`
}

type Detection struct {
	// PollIntervalSeconds is how often the mount table and device bus are
	// re-read for the reconciliation pass.
	PollIntervalSeconds int `toml:"poll_interval"`
	// CapacityTolerance is the maximum relative difference between a
	// volume's reported capacity and a hardware descriptor's capacity for
	// the two to be considered the same physical device.
	CapacityTolerance float64 `toml:"capacity_tolerance"`
}

type Scanner struct {
	// BatchSize is the number of snapshot rows committed per transaction.
	BatchSize int `toml:"batch_size"`
}

type Watcher struct {
	DebounceSeconds int  `toml:"debounce_seconds"`
	Enabled         bool `toml:"enabled"`
}

type Service struct {
	DeviceID       string   `toml:"device_id,omitempty"`
	AllowedOrigins []string `toml:"allowed_origins,omitempty,multiline"`
	APIPort        int      `toml:"api_port"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Detection: Detection{
		PollIntervalSeconds: 2,
		CapacityTolerance:   0.1,
	},
	Scanner: Scanner{
		BatchSize: 500,
	},
	Watcher: Watcher{
		Enabled:         true,
		DebounceSeconds: 3,
	},
	Service: Service{
		APIPort: 7497,
	},
}

type Instance struct {
	appPath  string
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		mu:       syncutil.RWMutex{},
		appPath:  os.Getenv(AppEnv),
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	if _, err := os.Stat(c.cfgPath); err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top.
	// This ensures fields not present in the file retain their default values.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	c.vals = newVals

	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	// set current schema version
	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Instance) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	secs := c.vals.Detection.PollIntervalSeconds
	if secs <= 0 {
		secs = BaseDefaults.Detection.PollIntervalSeconds
	}
	return time.Duration(secs) * time.Second
}

func (c *Instance) CapacityTolerance() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tol := c.vals.Detection.CapacityTolerance
	if tol <= 0 {
		tol = BaseDefaults.Detection.CapacityTolerance
	}
	return tol
}

func (c *Instance) ScanBatchSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	size := c.vals.Scanner.BatchSize
	if size <= 0 {
		size = BaseDefaults.Scanner.BatchSize
	}
	return size
}

func (c *Instance) WatcherEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Watcher.Enabled
}

func (c *Instance) WatcherDebounce() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	secs := c.vals.Watcher.DebounceSeconds
	if secs <= 0 {
		secs = BaseDefaults.Watcher.DebounceSeconds
	}
	return time.Duration(secs) * time.Second
}

func (c *Instance) APIPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	port := c.vals.Service.APIPort
	if port <= 0 {
		port = BaseDefaults.Service.APIPort
	}
	return port
}

func (c *Instance) AllowedOrigins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	origins := make([]string, len(c.vals.Service.AllowedOrigins))
	copy(origins, c.vals.Service.AllowedOrigins)
	return origins
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}
