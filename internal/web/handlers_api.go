package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"meshdash/internal/dashboard"
	"meshdash/internal/device"
	"meshdash/internal/journal"
)

type collectionResponse struct {
	Devices  []device.Entry `json:"devices"`
	LoadedAt *time.Time     `json:"loaded_at,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.collection())
}

func (s *Server) handleAPIReload(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if err := s.dash.Load(r.Context()); err != nil {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, s.collection())
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dev, ok := s.dash.Device(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleAPINotifications(w http.ResponseWriter, r *http.Request) {
	notes := s.dash.Notifications().Active()
	if notes == nil {
		notes = []dashboard.Notification{}
	}
	s.writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleAPIActivity(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	limit := activityLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1..1000"})
			return
		}
		limit = n
	}
	recs, err := s.journal.Recent(limit)
	if err != nil {
		s.logger.Error("read journal", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if recs == nil {
		recs = []journal.Record{}
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) collection() collectionResponse {
	resp := collectionResponse{Devices: s.dash.Entries()}
	if resp.Devices == nil {
		resp.Devices = []device.Entry{}
	}
	if at := s.dash.LoadedAt(); !at.IsZero() {
		resp.LoadedAt = &at
	}
	if err := s.dash.LoadError(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
