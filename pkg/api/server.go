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

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/DriveAuditProject/driveaudit-core/pkg/api/methods"
	"github.com/DriveAuditProject/driveaudit-core/pkg/api/models"
	"github.com/DriveAuditProject/driveaudit-core/pkg/api/models/requests"
	"github.com/DriveAuditProject/driveaudit-core/pkg/config"
	"github.com/DriveAuditProject/driveaudit-core/pkg/database"
	"github.com/DriveAuditProject/driveaudit-core/pkg/detect"
	"github.com/DriveAuditProject/driveaudit-core/pkg/service/state"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

var (
	JSONRPCErrorParseError = models.ErrorObject{
		Code:    -32700,
		Message: "Parse error",
	}
	JSONRPCErrorInvalidRequest = models.ErrorObject{
		Code:    -32600,
		Message: "Invalid Request",
	}
	JSONRPCErrorServerError = models.ErrorObject{
		Code:    -32000,
		Message: "Server error",
	}
)

func maybeUUID(req *models.RequestObject) uuid.UUID {
	if req.ID == nil {
		return uuid.Nil
	}
	return *req.ID
}

var methodMap = map[string]func(requests.RequestEnv) (any, error){
	models.MethodDevices:           methods.HandleDevices,
	models.MethodDevicesRegistered: methods.HandleRegisteredDevices,
	models.MethodDevicesHistory:    methods.HandleHistory,
	models.MethodDevicesScans:      methods.HandleDeviceScans,
	models.MethodDevicesFiles:      methods.HandleDeviceFiles,
	models.MethodVersion:           methods.HandleVersion,
}

func handleRequest(env requests.RequestEnv, req *models.RequestObject) (any, error) { //nolint:gocritic // env copied per request
	log.Debug().Interface("request", req).Msg("received request")

	fn, ok := methodMap[strings.ToLower(req.Method)]
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}

	if req.ID == nil {
		return nil, fmt.Errorf("missing ID for request: %s", req.Method)
	}

	var params []byte
	if req.Params != nil {
		var err error
		// double marshal so handlers can decode params into their own types
		params, err = json.Marshal(req.Params)
		if err != nil {
			return nil, fmt.Errorf("error parsing params: %w", err)
		}
	}

	env.ID = *req.ID
	env.Params = params

	return fn(env)
}

func sendResponse(session *melody.Session, id uuid.UUID, result any) error {
	log.Debug().Interface("result", result).Msg("sending response")

	resp := models.ResponseObject{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("error marshalling response: %w", err)
	}

	if err := session.Write(data); err != nil {
		return fmt.Errorf("error writing response: %w", err)
	}
	return nil
}

func sendError(session *melody.Session, id uuid.UUID, errObj models.ErrorObject) error { //nolint:gocritic // error object copied per send
	log.Debug().Int("code", errObj.Code).Str("message", errObj.Message).Msg("sending error")

	resp := models.ResponseObject{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &errObj,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("error marshalling error response: %w", err)
	}

	if err := session.Write(data); err != nil {
		return fmt.Errorf("error writing error response: %w", err)
	}
	return nil
}

func broadcastNotifications(
	st *state.State,
	session *melody.Melody,
	notifications <-chan models.Notification,
) {
	for {
		select {
		case <-st.GetContext().Done():
			log.Debug().Msg("closing API notification broadcast via context cancellation")
			return
		case notif := <-notifications:
			req := models.RequestObject{
				JSONRPC: "2.0",
				Method:  notif.Method,
				Params:  notif.Params,
			}

			data, err := json.Marshal(req)
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification request")
				continue
			}

			if err := session.Broadcast(data); err != nil {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

func handleWSMessage(
	cfg *config.Instance,
	st *state.State,
	db *database.Database,
	tracker *detect.Tracker,
) func(session *melody.Session, msg []byte) {
	return func(session *melody.Session, msg []byte) {
		// ping command for heartbeat operation
		if bytes.Equal(msg, []byte("ping")) {
			if err := session.Write([]byte("pong")); err != nil {
				log.Error().Err(err).Msg("sending pong")
			}
			return
		}

		if !json.Valid(msg) {
			log.Error().Msg("data not valid json")
			if err := sendError(session, uuid.Nil, JSONRPCErrorParseError); err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}

		var req models.RequestObject
		err := json.Unmarshal(msg, &req)
		if err != nil || req.Method == "" {
			log.Error().Err(err).Msg("message does not match known types")
			if sendErr := sendError(session, uuid.Nil, JSONRPCErrorInvalidRequest); sendErr != nil {
				log.Error().Err(sendErr).Msg("error sending error response")
			}
			return
		}

		if req.JSONRPC != "2.0" {
			log.Error().Str("jsonrpc", req.JSONRPC).Msg("unsupported payload version")
			if sendErr := sendError(session, maybeUUID(&req), JSONRPCErrorInvalidRequest); sendErr != nil {
				log.Error().Err(sendErr).Msg("error sending error response")
			}
			return
		}

		if req.ID == nil {
			// request is a notification
			log.Info().Interface("req", req).Msg("received notification, ignoring")
			return
		}

		rawIP := strings.SplitN(session.Request.RemoteAddr, ":", 2)
		clientIP := net.ParseIP(rawIP[0])

		resp, err := handleRequest(requests.RequestEnv{
			Config:   cfg,
			State:    st,
			Database: db,
			Tracker:  tracker,
			IsLocal:  clientIP != nil && clientIP.IsLoopback(),
		}, &req)
		if err != nil {
			if sendErr := sendError(session, *req.ID, JSONRPCErrorServerError); sendErr != nil {
				log.Error().Err(sendErr).Msg("error sending error response")
			}
			return
		}

		if err := sendResponse(session, *req.ID, resp); err != nil {
			log.Error().Err(err).Msg("error sending response")
		}
	}
}

// Start runs the JSON-RPC API server. Blocks until the listener fails or
// the process exits.
func Start(
	cfg *config.Instance,
	st *state.State,
	db *database.Database,
	tracker *detect.Tracker,
	notifications <-chan models.Notification,
) {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middleware.Timeout(config.APIRequestTimeout))

	allowedOrigins := cfg.AllowedOrigins()
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
	}))

	session := melody.New()
	session.Upgrader.CheckOrigin = func(_ *http.Request) bool { return true }
	go broadcastNotifications(st, session, notifications)

	r.Get("/api", func(w http.ResponseWriter, r *http.Request) {
		if err := session.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request: latest")
		}
	})

	r.Get("/api/v1", func(w http.ResponseWriter, r *http.Request) {
		if err := session.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request: v1")
		}
	})

	session.HandleMessage(handleWSMessage(cfg, st, db, tracker))

	err := http.ListenAndServe(":"+strconv.Itoa(cfg.APIPort()), r) //nolint:gosec // local service API
	if err != nil {
		log.Error().Err(err).Msg("error starting http server")
	}
}
