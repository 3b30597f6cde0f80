package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentcore-ai/agentcore/internal/sessionmgr"
)

// PushMessageRequest is the body for POST /session/{sessionID}/push: the
// session-input union, discriminated by "type" (snake_case). An omitted
// type means "user_message".
type PushMessageRequest struct {
	Type    string            `json:"type,omitempty"`
	Text    string            `json:"text,omitempty"`
	Files   []string          `json:"files,omitempty"`
	ID      string            `json:"id,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Answers map[string]string `json:"answers,omitempty"`
	Active  bool              `json:"active,omitempty"`
}

// pushSessionMessage handles POST /session/{sessionID}/push. Unlike
// sendMessage, it enqueues the turn on sessionMgr and returns immediately;
// the assistant's reply streams out as event.SessionMgrOutput events on the
// SSE connection rather than in the HTTP response body. Approval decisions
// (approve_tool/reject_tool/answer_question) and cancel inputs resolve the
// pending gate request immediately rather than queueing behind the turn
// that raised it.
func (s *Server) pushSessionMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req PushMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	kind := sessionmgr.InputKind(req.Type)
	if kind == "" || kind == sessionmgr.InputUserMessage {
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
			return
		}
	}

	input := sessionmgr.SessionInput{
		Kind:    kind,
		Text:    req.Text,
		Files:   req.Files,
		ID:      req.ID,
		Reason:  req.Reason,
		Answers: req.Answers,
		Active:  req.Active,
	}
	if err := s.sessionMgr.PushMessage(r.Context(), sessionID, input); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"queued": true, "sessionID": sessionID})
}

// stopSessionMgr handles POST /session/{sessionID}/stop. It stops the
// sessionMgr-managed run loop for sessionID, if one is active; it does not
// affect a synchronous /message request in flight.
func (s *Server) stopSessionMgr(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.sessionMgr.StopSession(sessionID)
	writeSuccess(w)
}

// stopAllSessionMgr handles POST /session/stop-all.
func (s *Server) stopAllSessionMgr(w http.ResponseWriter, r *http.Request) {
	s.sessionMgr.StopAll()
	writeSuccess(w)
}
