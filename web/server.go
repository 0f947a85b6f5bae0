// Package web serves the dashboard, the JSON API and the websocket push
// channel.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pifanctrl/curve"
	"pifanctrl/log"
	"pifanctrl/service"
	"pifanctrl/status"
)

//go:embed templates/*.tmpl.html
var templatesFS embed.FS

const maxBody = 64 << 10

type Server struct {
	svc       *service.Service
	hub       *Hub
	templates *template.Template
	srv       *http.Server
}

func New(addr string, svc *service.Service, hub *Hub) (*Server, error) {
	templates, err := template.ParseFS(templatesFS, "templates/*.tmpl.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{svc: svc, hub: hub, templates: templates}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.dashboard)
	mux.HandleFunc("GET /info", s.info)
	mux.HandleFunc("GET /readings", s.readings)
	mux.HandleFunc("GET /settings", s.getSettings)
	mux.HandleFunc("PUT /settings", s.putSettings)
	mux.HandleFunc("POST /settings/reset", s.reset)
	mux.HandleFunc("POST /settings/points", s.addPoint)
	mux.HandleFunc("DELETE /settings/points/{id}", s.removePoint)
	mux.HandleFunc("POST /settings/points/{id}/active", s.setPointActive)
	mux.HandleFunc("POST /simulate", s.simulate)
	mux.HandleFunc("POST /fanspeed", s.fanSpeed)
	mux.HandleFunc("POST /override", s.override)
	mux.HandleFunc("DELETE /override", s.release)
	mux.Handle("GET /ws", s.hub)
	return mux
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	log.Infof("web: listening on %s", l.Addr())
	if err := s.srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(l)
}

// Shutdown closes the websocket clients first; hijacked connections are
// not tracked by http.Server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("web: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, curve.ErrPointNotFound):
		code = http.StatusNotFound
	case service.Invalid(err):
		code = http.StatusBadRequest
	default:
		log.Errorf("web: %v", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", service.ErrInvalidInput, err)
	}
	return nil
}

func pointID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: point id: %v", service.ErrInvalidInput, err)
	}
	return id, nil
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Info     status.SystemInfo
		Settings curve.Settings
	}{s.svc.Summary(), s.svc.Settings()}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.tmpl.html", data); err != nil {
		log.Errorf("web: render dashboard: %v", err)
	}
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Summary())
}

func (s *Server) readings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.Filter{
		Source:      q.Get("source"),
		Measurement: q.Get("measurement"),
		Latest:      q.Get("latest") == "true",
	}
	rs, err := s.svc.Readings(f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Settings())
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var next curve.Settings
	if err := decode(w, r, &next); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.svc.UpdateSettings(next)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Reset())
}

func (s *Server) addPoint(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Temperature   *float64 `json:"temperature"`
		FanPercentage *float64 `json:"fanPercentage"`
	}
	if err := decode(w, r, &p); err != nil {
		writeError(w, err)
		return
	}
	if p.Temperature == nil || p.FanPercentage == nil {
		writeError(w, fmt.Errorf("%w: temperature and fanPercentage are required", service.ErrInvalidInput))
		return
	}
	out, err := s.svc.AddPoint(*p.Temperature, *p.FanPercentage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) removePoint(w http.ResponseWriter, r *http.Request) {
	id, err := pointID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.svc.RemovePoint(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) setPointActive(w http.ResponseWriter, r *http.Request) {
	id, err := pointID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Active == nil {
		writeError(w, fmt.Errorf("%w: active is required", service.ErrInvalidInput))
		return
	}
	out, err := s.svc.SetPointActive(id, *body.Active)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// value decodes {"value": <number>}.
func value(w http.ResponseWriter, r *http.Request) (float64, error) {
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := decode(w, r, &body); err != nil {
		return 0, err
	}
	if body.Value == nil {
		return 0, fmt.Errorf("%w: value is required", service.ErrInvalidInput)
	}
	return *body.Value, nil
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	v, err := value(w, r)
	if err == nil {
		err = s.svc.Simulate(v)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fanSpeed(w http.ResponseWriter, r *http.Request) {
	v, err := value(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.svc.SetFanSpeed(v)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) override(w http.ResponseWriter, r *http.Request) {
	v, err := value(w, r)
	if err == nil {
		err = s.svc.Override(r.Context(), v)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) release(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Release(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
