package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"meshdash/internal/dashboard"
	"meshdash/internal/device"
	"meshdash/internal/journal"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAllowedOrigins sets allowed origin patterns for mutating requests and WebSocket.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithJournal enables the activity view backed by j.
func WithJournal(j *journal.Journal) ServerOption {
	return func(s *Server) {
		s.journal = j
	}
}

// WithVersion sets the application version string shown in the UI.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// WithTitle sets the title bar text.
func WithTitle(title string) ServerOption {
	return func(s *Server) {
		s.title = title
	}
}

// Server is the HTTP server for the dashboard.
type Server struct {
	dash           *dashboard.Dashboard
	templates      *template.Template
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	allowedOrigins []string
	journal        *journal.Journal
	version        string
	title          string
	wg             sync.WaitGroup
	unsubEvents    func()
}

var templateFuncs = template.FuncMap{
	"pathEscape":      url.PathEscape,
	"intp":            formatIntPtr,
	"eqInt":           eqIntPtr,
	"fieldValue":      fieldValue,
	"txPowers":        func() []int { return device.TxPowers },
	"pollSuggestions": func() []int { return device.PollPeriodSuggestions },
	"pollIntervals":   func() []int { return device.StatePollingIntervals },
	"displayTypes":    func() []device.Option { return device.DisplayTypes },
	"hwVersions":      func() []device.Option { return device.HwVersions },
	"optionLabel":     optionLabel,
	"interval":        intervalLabel,
	"clock":           func(t time.Time) string { return t.Local().Format("15:04:05") },
}

// NewServer creates a new web server.
func NewServer(dash *dashboard.Dashboard, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		dash:      dash,
		templates: tmpl,
		logger:    logger.With("component", "web"),
		mux:       http.NewServeMux(),
		title:     "Mesh devices",
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	// Every dashboard event is pushed to live browsers.
	s.unsubEvents = dash.Events().OnAll(func(event dashboard.Event) {
		s.wsHub.Broadcast(event)
	})

	s.routes()
	return s, nil
}

// Stop gracefully shuts down the WebSocket hub and waits for goroutines.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	// Static files
	s.mux.Handle("GET /static/", http.FileServer(http.FS(staticFS)))

	// Pages and fragments
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /ui/reload", s.handleReload)
	s.mux.HandleFunc("GET /ui/devices", s.handleDeviceList)
	s.mux.HandleFunc("GET /ui/devices/{id}", s.handleDeviceItem)
	s.mux.HandleFunc("POST /ui/devices/{id}/{panel}/input", s.handlePanelInput)
	s.mux.HandleFunc("POST /ui/devices/{id}/defaults/save", s.handleAction(dashboard.OpSaveDefaults, (*dashboard.Item).SaveDefaults))
	s.mux.HandleFunc("POST /ui/devices/{id}/defaults/push", s.handleAction(dashboard.OpPushDefaults, (*dashboard.Item).PushDefaults))
	s.mux.HandleFunc("POST /ui/devices/{id}/config/save", s.handleAction(dashboard.OpSaveConfig, (*dashboard.Item).SaveConfig))
	s.mux.HandleFunc("POST /ui/devices/{id}/addresses/save", s.handleAction(dashboard.OpSaveAddresses, (*dashboard.Item).SaveAddresses))
	s.mux.HandleFunc("POST /ui/devices/{id}/state/refresh", s.handleAction(dashboard.OpRefreshState, (*dashboard.Item).RefreshState))
	s.mux.HandleFunc("POST /ui/devices/{id}/delete", s.handleAction(dashboard.OpDelete, (*dashboard.Item).Remove))
	s.mux.HandleFunc("GET /ui/notifications", s.handleNotifications)
	s.mux.HandleFunc("POST /ui/notifications/{nid}/dismiss", s.handleDismiss)
	s.mux.HandleFunc("GET /ui/activity", s.handleActivity)

	// REST API
	s.mux.HandleFunc("GET /api/devices", s.handleAPIListDevices)
	s.mux.HandleFunc("POST /api/reload", s.handleAPIReload)
	s.mux.HandleFunc("GET /api/devices/{id}", s.handleAPIGetDevice)
	s.mux.HandleFunc("GET /api/notifications", s.handleAPINotifications)
	s.mux.HandleFunc("GET /api/activity", s.handleAPIActivity)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	// WebSocket
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying the CORS origin check.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS: check Origin on mutating requests to prevent CSRF.
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				// Preflight request.
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}

	s.mux.ServeHTTP(w, r)
}

// isOriginAllowed checks if the origin matches any allowed origin pattern.
func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// renderTemplate renders to a buffer first, so partial write failures don't corrupt the response.
func (s *Server) renderTemplate(w http.ResponseWriter, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template", "name", name, "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("write template response", "name", name, "err", err)
	}
}

func formatIntPtr(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func eqIntPtr(p *int, v int) bool {
	return p != nil && *p == v
}

// fieldValue shows the rejected input of a flagged field so the user can
// correct it, and the draft value otherwise.
func fieldValue(invalid map[string]string, field, value string) string {
	if raw, ok := invalid[field]; ok {
		return raw
	}
	return value
}

func intervalLabel(sec int) string {
	if sec >= 3600 && sec%3600 == 0 {
		return fmt.Sprintf("%d h", sec/3600)
	}
	if sec%60 == 0 {
		return fmt.Sprintf("%d min", sec/60)
	}
	return fmt.Sprintf("%d s", sec)
}

func optionLabel(opts []device.Option, value string) string {
	for _, o := range opts {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}
