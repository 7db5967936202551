package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-dispatch/internal/appliance"
	"github.com/nerrad567/gray-logic-dispatch/internal/device"
	"github.com/nerrad567/gray-logic-dispatch/internal/dispatch"
	"github.com/nerrad567/gray-logic-dispatch/internal/program"
)

// commandWaitTimeout bounds how long a command request waits for its device.
const commandWaitTimeout = 30 * time.Second

// maxLatencyMS caps the simulated latency accepted when creating a device.
const maxLatencyMS = 60_000

// deviceView is the JSON shape of one registered device.
type deviceView struct {
	ID           device.ID `json:"id"`
	Name         string    `json:"name,omitempty"`
	Kind         string    `json:"kind"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (s *Server) viewOf(e device.Entry) deviceView {
	return deviceView{
		ID:           e.ID,
		Name:         s.directory.NameOf(e.ID),
		Kind:         e.Kind,
		RegisteredAt: e.RegisteredAt,
	}
}

// handleListDevices returns all registered devices.
//
// Query parameters:
//   - kind: only devices of this kind (hue_light, smart_speaker, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")

	entries := s.service.Registry().Entries()
	devices := make([]deviceView, 0, len(entries))
	for _, e := range entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		devices = append(devices, s.viewOf(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := device.ID(chi.URLParam(r, "id"))

	for _, e := range s.service.Registry().Entries() {
		if e.ID == id {
			writeJSON(w, http.StatusOK, s.viewOf(e))
			return
		}
	}
	writeNotFound(w, "device not found")
}

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	LatencyMS int    `json:"latency_ms"`
}

// handleCreateDevice builds a simulated appliance, registers it and binds it
// under the requested name so programs can address it.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := program.ValidateDeviceName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if req.LatencyMS < 0 || req.LatencyMS > maxLatencyMS {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "latency_ms must be between 0 and 60000")
		return
	}
	if _, err := s.directory.Resolve(req.Name); err == nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device name already bound")
		return
	}

	dev, err := appliance.New(req.Kind, time.Duration(req.LatencyMS)*time.Millisecond)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	id, err := s.service.RegisterDevice(dev)
	if err != nil {
		writeInternalError(w, "failed to register device")
		return
	}
	if err := s.directory.Bind(req.Name, id); err != nil {
		// Lost a race with a concurrent create of the same name. The device
		// stays registered but unnamed.
		if errors.Is(err, program.ErrDeviceNameTaken) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device name already bound")
			return
		}
		writeInternalError(w, "failed to bind device name")
		return
	}

	view := deviceView{ID: id, Name: req.Name, Kind: s.service.Registry().KindOf(id), RegisteredAt: time.Now().UTC()}
	for _, e := range s.service.Registry().Entries() {
		if e.ID == id {
			view = s.viewOf(e)
			break
		}
	}

	s.logger.Info("device registered", "device_id", id, "name", req.Name, "kind", view.Kind)
	s.broadcast(EventDeviceRegistered, view)

	writeJSON(w, http.StatusCreated, view)
}

// commandRequest is the body of POST /devices/{id}/commands.
type commandRequest struct {
	Command string  `json:"command"`
	Payload *string `json:"payload,omitempty"`
}

// commandResponse reports the settled outcome of one command.
type commandResponse struct {
	DeviceID  device.ID          `json:"device_id"`
	Command   device.CommandKind `json:"command"`
	Value     string             `json:"value"`
	ElapsedMS int64              `json:"elapsed_ms"`
}

// handleSendCommand dispatches one command and waits for the device to
// settle it. Unlike a program run this is synchronous: the response carries
// the device's result or its failure.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	id := device.ID(chi.URLParam(r, "id"))

	if _, err := s.service.Registry().Lookup(id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command field is required")
		return
	}

	kind, err := device.ParseCommandKind(req.Command)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var msg device.Message
	if req.Payload != nil {
		msg, err = device.NewMessage(id, kind, *req.Payload)
	} else {
		msg, err = device.NewMessage(id, kind)
	}
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandWaitTimeout)
	defer cancel()

	start := time.Now()
	pending, err := s.service.SendMsg(ctx, msg)
	if err != nil {
		if errors.Is(err, dispatch.ErrUnknownDevice) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to dispatch command")
		return
	}

	result, err := pending.Await(ctx)
	if err != nil {
		s.writeCommandError(w, msg, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		DeviceID:  id,
		Command:   kind,
		Value:     result.Value,
		ElapsedMS: time.Since(start).Milliseconds(),
	})
}

// writeCommandError maps a settled command failure onto an HTTP status.
func (s *Server) writeCommandError(w http.ResponseWriter, msg device.Message, err error) {
	s.logger.Debug("device command failed", "message", msg.String(), "error", err)

	var devErr *dispatch.DeviceError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not respond in time")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "request cancelled")
	case errors.As(err, &devErr):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceFailure, devErr.Err.Error())
	default:
		writeInternalError(w, "command failed")
	}
}

// broadcast publishes to WebSocket clients once the hub exists.
func (s *Server) broadcast(channel string, payload any) {
	if s.hub != nil {
		s.hub.Broadcast(channel, payload)
	}
}
