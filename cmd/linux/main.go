//go:build linux

/*
DriveAudit Core
Copyright (c) 2025 The DriveAudit Project Contributors.

This file is part of DriveAudit Core.

DriveAudit Core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

DriveAudit Core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with DriveAudit Core.  If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/DriveAuditProject/driveaudit-core/pkg/config"
	"github.com/DriveAuditProject/driveaudit-core/pkg/helpers"
	"github.com/DriveAuditProject/driveaudit-core/pkg/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	daemonMode := flag.Bool(
		"daemon",
		false,
		"run service in foreground, logging to stderr",
	)
	showVersion := flag.Bool(
		"version",
		false,
		"print version and exit",
	)
	debugLogging := flag.Bool(
		"debug",
		false,
		"enable debug logging",
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("driveaudit v%s\n", config.AppVersion) //nolint:forbidigo // version output
		return nil
	}

	var logWriters []io.Writer
	if *daemonMode {
		logWriters = []io.Writer{os.Stderr}
	}
	if err := helpers.InitLogging(logWriters); err != nil {
		return fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(helpers.ConfigDir(), config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if *debugLogging {
		cfg.SetDebugLogging(true)
	}
	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", r)
			log.Fatal().Msgf("panic: %v", r)
		}
	}()

	stopSvc, err := service.Start(cfg)
	if err != nil {
		log.Error().Msgf("error starting service: %s", err)
		return fmt.Errorf("error starting service: %w", err)
	}
	defer func() {
		if stopErr := stopSvc(); stopErr != nil {
			log.Error().Msgf("error stopping service: %s", stopErr)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("audit service running")
	<-sigs
	log.Info().Msg("shutting down")

	return nil
}
