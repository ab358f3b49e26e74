package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// AttendanceHandler identifies uploaded images and serves the ledger.
type AttendanceHandler struct {
	engine   *attendance.Engine
	sessions *attendance.Sessions
	log      logrus.FieldLogger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(engine *attendance.Engine, sessions *attendance.Sessions, log logrus.FieldLogger) *AttendanceHandler {
	return &AttendanceHandler{
		engine:   engine,
		sessions: sessions,
		log:      log.WithField("component", "attendance"),
	}
}

// IdentifyResponse is the outcome of one uploaded image.
type IdentifyResponse struct {
	SessionID string `json:"session_id"`
	*attendance.Outcome
}

// Identify decides who is in an uploaded image and, unless record=false,
// records attendance. Without session_id the upload is its own session.
func (h *AttendanceHandler) Identify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidForm)
		return
	}

	record, err := formBool(r, "record", true)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	image, err := readFormImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var session *attendance.Session
	if id := r.FormValue("session_id"); id != "" {
		s, ok := h.sessions.Get(id)
		if !ok {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		session = s
	} else {
		session = attendance.NewSession(time.Now())
	}

	var outcome *attendance.Outcome
	if record {
		outcome, err = h.engine.Process(r.Context(), session, image)
	} else {
		outcome, err = h.engine.Identify(r.Context(), image)
	}
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, IdentifyResponse{SessionID: session.ID, Outcome: outcome})
}

// Verify checks an uploaded image against one named identity by perceptual hash.
func (h *AttendanceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidForm)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	image, err := readFormImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.engine.Verify(r.Context(), name, image)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// LedgerResponse lists attendance records newest first.
type LedgerResponse struct {
	Records []database.AttendanceRecord `json:"records"`
	Count   int                         `json:"count"`
}

// Ledger returns the attendance records newest first.
func (h *AttendanceHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultLedgerLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.engine.Ledger(r.Context(), limit)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}
	if records == nil {
		records = []database.AttendanceRecord{}
	}
	respondJSON(w, http.StatusOK, LedgerResponse{Records: records, Count: len(records)})
}
