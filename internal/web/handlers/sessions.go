package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"
)

// SessionsHandler manages recognition sessions and the live camera stream.
type SessionsHandler struct {
	engine   *attendance.Engine
	sessions *attendance.Sessions
	log      logrus.FieldLogger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(engine *attendance.Engine, sessions *attendance.Sessions, log logrus.FieldLogger) *SessionsHandler {
	return &SessionsHandler{
		engine:   engine,
		sessions: sessions,
		log:      log.WithField("component", "sessions"),
	}
}

// SessionResponse describes a session.
type SessionResponse struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
	Names   []string  `json:"names"`
}

func toSessionResponse(s *attendance.Session) SessionResponse {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return SessionResponse{ID: s.ID, Started: s.Started, Names: names}
}

// Start opens a new session.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Start()
	h.log.WithField("session", s.ID).Info("Session started")
	respondJSON(w, http.StatusCreated, toSessionResponse(s))
}

// End closes a session and returns the names recorded in it.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := h.sessions.End(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	h.log.WithField("session", s.ID).Info("Session ended")
	respondJSON(w, http.StatusOK, toSessionResponse(s))
}

// FrameMessage is sent to the camera client after every frame.
type FrameMessage struct {
	Frame      int                    `json:"frame"`
	SessionID  string                 `json:"session_id"`
	Name       string                 `json:"name"`
	Matched    bool                   `json:"matched"`
	Decisions  []facematch.Decision   `json:"decisions"`
	Recordings []attendance.Recording `json:"recordings,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func toFrameMessage(sessionID string, res attendance.FrameResult) FrameMessage {
	msg := FrameMessage{
		Frame:     res.Frame,
		SessionID: sessionID,
		Name:      facematch.Unknown,
		Decisions: []facematch.Decision{},
	}
	if res.Outcome != nil {
		msg.Name = res.Outcome.Name
		msg.Matched = res.Outcome.Matched
		if res.Outcome.Decisions != nil {
			msg.Decisions = res.Outcome.Decisions
		}
		msg.Recordings = res.Outcome.Recordings
	}
	if res.Err != nil {
		msg.Error = res.Err.Error()
	}
	return msg
}

// websocketFrames reads binary camera frames from a websocket.
type websocketFrames struct {
	ws  *websocket.Conn
	log logrus.FieldLogger
}

// Next returns the next frame, io.EOF once the client closes the stream.
func (f websocketFrames) Next(ctx context.Context) ([]byte, error) {
	for {
		var frame []byte
		err := websocket.Message.Receive(f.ws, &frame)
		if errors.Is(err, websocket.ErrFrameTooLarge) {
			f.log.Warn("Dropping oversized camera frame")
			continue
		}
		if err != nil {
			return nil, err
		}
		return frame, nil
	}
}

// Camera upgrades to a websocket, identifies every received frame within the
// session and answers each with a FrameMessage.
func (h *SessionsHandler) Camera(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.sessions.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	websocket.Handler(func(ws *websocket.Conn) {
		h.stream(ws, session)
	}).ServeHTTP(w, r)
}

func (h *SessionsHandler) stream(ws *websocket.Conn, session *attendance.Session) {
	defer ws.Close()
	ws.MaxPayloadBytes = constants.MaxFrameSize
	// The hijacked connection keeps the HTTP server deadlines.
	if err := ws.SetDeadline(time.Time{}); err != nil {
		h.log.WithError(err).Debug("Failed to clear websocket deadline")
	}

	log := h.log.WithField("session", session.ID)
	log.Info("Camera connected")

	source := websocketFrames{ws: ws, log: log}
	err := h.engine.RunLive(ws.Request().Context(), source, session, func(res attendance.FrameResult) error {
		return websocket.JSON.Send(ws, toFrameMessage(session.ID, res))
	})
	if err != nil {
		log.WithError(err).Warn("Camera stream ended with error")
		return
	}
	log.Info("Camera disconnected")
}
