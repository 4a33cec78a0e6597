package web

import (
	"context"
	"errors"
	"net/http"

	"meshdash/internal/action"
	"meshdash/internal/dashboard"
	"meshdash/internal/journal"
)

// activityLimit is how many journal records the activity view shows.
const activityLimit = 50

type listData struct {
	Views     []dashboard.ItemView
	LoadError error
}

type activityData struct {
	Enabled bool
	Records []journal.Record
	Err     error
}

type indexData struct {
	Title         string
	Version       string
	List          listData
	Notifications []dashboard.Notification
	Activity      activityData
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Opening the page starts from a fresh collection; a failure is shown
	// in place of the list.
	_ = s.dash.Load(r.Context())

	s.renderTemplate(w, "index.html", indexData{
		Title:         s.title,
		Version:       s.version,
		List:          s.listData(),
		Notifications: s.dash.Notifications().Active(),
		Activity:      s.activityData(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.Load(r.Context()); err != nil {
		w.Header().Set("X-Notification", "true")
	}
	s.renderTemplate(w, "device_list", s.listData())
}

func (s *Server) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	s.renderTemplate(w, "device_list", s.listData())
}

func (s *Server) handleDeviceItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	it, ok := s.dash.Item(id)
	if !ok {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}
	view, ok := it.View()
	if !ok {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}
	s.renderTemplate(w, "device_item", view)
}

func (s *Server) handlePanelInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	panel := r.PathValue("panel")
	it, ok := s.dash.Item(id)
	if !ok {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	if err := it.Edit(panel, r.FormValue("field"), r.FormValue("value")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, ok := it.View()
	if !ok {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}
	s.renderTemplate(w, panel+"_panel", view)
}

// handleAction runs a device action and answers with the refreshed item
// fragment. Failures are rendered in the item's status lines, so the
// response is 200 either way. A removed device answers with an empty body.
func (s *Server) handleAction(op string, fn func(*dashboard.Item, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		it, ok := s.dash.Item(id)
		if !ok {
			http.Error(w, "Device not found", http.StatusNotFound)
			return
		}

		err := fn(it, r.Context())
		switch {
		case err == nil:
			if changesCollection(op) {
				w.Header().Set("X-Collection-Changed", "true")
			}
		case errors.Is(err, action.ErrBusy), errors.Is(err, action.ErrDisabled), errors.Is(err, dashboard.ErrNoMainAddress):
			s.logger.Debug("action rejected", "id", id, "op", op, "err", err)
		default:
			if op == dashboard.OpDelete {
				w.Header().Set("X-Notification", "true")
			}
		}

		view, ok := it.View()
		if !ok {
			w.Header().Set("X-Collection-Changed", "true")
			w.WriteHeader(http.StatusOK)
			return
		}
		s.renderTemplate(w, "device_item", view)
	}
}

// changesCollection reports whether op can alter the list order or
// membership. Push and refresh only touch their own item.
func changesCollection(op string) bool {
	switch op {
	case dashboard.OpSaveDefaults, dashboard.OpSaveConfig, dashboard.OpSaveAddresses, dashboard.OpDelete:
		return true
	}
	return false
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s.renderTemplate(w, "notifications", s.dash.Notifications().Active())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.dash.Notifications().Dismiss(r.PathValue("nid"))
	s.renderTemplate(w, "notifications", s.dash.Notifications().Active())
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.renderTemplate(w, "activity", s.activityData())
}

func (s *Server) listData() listData {
	return listData{Views: s.dash.Views(), LoadError: s.dash.LoadError()}
}

func (s *Server) activityData() activityData {
	if s.journal == nil {
		return activityData{}
	}
	recs, err := s.journal.Recent(activityLimit)
	if err != nil {
		s.logger.Error("read journal", "err", err)
	}
	return activityData{Enabled: true, Records: recs, Err: err}
}
