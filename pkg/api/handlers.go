package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/scootergw/gateway/pkg/protocol"
	"github.com/scootergw/gateway/pkg/session"
)

// commandRequest is the shared JSON body for the four command
// endpoints. Gear and State are only meaningful for their respective
// endpoints and are validated per-handler.
type commandRequest struct {
	IMEI  string `json:"imei"`
	Gear  *int   `json:"gear,omitempty"`
	State *bool  `json:"state,omitempty"`
}

// commandResponse is the shared JSON body for all four endpoints.
type commandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	IMEI    string `json:"imei"`
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCommand(w, r)
	if !ok {
		return
	}
	err := s.orch.Unlock(req.IMEI, s.userID)
	s.respond(w, req.IMEI, "unlock", "scooter unlocked", err)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCommand(w, r)
	if !ok {
		return
	}
	cyclingTime, err := s.orch.Lock(req.IMEI, s.userID)
	message := fmt.Sprintf("scooter locked, cycling time %d", cyclingTime)
	s.respond(w, req.IMEI, "lock", message, err)
}

func (s *Server) handleChangeGear(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCommand(w, r)
	if !ok {
		return
	}
	if req.Gear == nil || *req.Gear < 0 || *req.Gear > 3 {
		s.sendError(w, http.StatusBadRequest, "gear must be between 0 and 3")
		return
	}
	err := s.orch.ChangeGear(req.IMEI, protocol.SpeedMode(*req.Gear))
	s.respond(w, req.IMEI, "change_gear", "gear changed", err)
}

func (s *Server) handleToggleHeadlight(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCommand(w, r)
	if !ok {
		return
	}
	if req.State == nil {
		s.sendError(w, http.StatusBadRequest, "state is required")
		return
	}
	err := s.orch.ToggleHeadlight(req.IMEI, *req.State)
	s.respond(w, req.IMEI, "toggle_headlight", "headlight toggled", err)
}

// decodeCommand parses and validates the shared request body. It
// writes a 405 response for a non-POST method and a 400 response for a
// malformed body or IMEI, returning ok=false in both cases, so
// malformed requests never reach an orchestrator workflow.
func (s *Server) decodeCommand(w http.ResponseWriter, r *http.Request) (commandRequest, bool) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return commandRequest{}, false
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return commandRequest{}, false
	}
	if len(req.IMEI) != 15 {
		s.sendError(w, http.StatusBadRequest, "imei must be 15 digits")
		return commandRequest{}, false
	}
	return req, true
}

// respond maps a workflow outcome to the command endpoints' shared
// response contract and status codes, and best-effort records the
// outcome to the audit log.
func (s *Server) respond(w http.ResponseWriter, imei, action, successMessage string, err error) {
	if s.audit != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.audit.Record(ctx, imei, s.userID, action, err == nil, errMessage(err))
	}

	if err == nil {
		s.sendJSON(w, http.StatusOK, commandResponse{Success: true, Message: successMessage, IMEI: imei})
		return
	}

	if errors.Is(err, session.ErrNotFound) {
		s.sendJSON(w, http.StatusNotFound, commandResponse{Success: false, Message: "device not registered", IMEI: imei})
		return
	}

	s.logger.Error().Err(err).Str("imei", imei).Str("action", action).Msg("workflow failed")
	s.sendJSON(w, http.StatusInternalServerError, commandResponse{Success: false, Message: err.Error(), IMEI: imei})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
