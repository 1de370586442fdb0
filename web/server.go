// Package web serves the authorization flow and the dashboard snapshot over
// HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	weather "github.com/eivy/smartthings-weather"
	"github.com/eivy/smartthings-weather/metrics"
	"github.com/eivy/smartthings-weather/oauth"
)

// Authorizer runs the OAuth flow. *oauth.Manager satisfies it.
type Authorizer interface {
	BeginAuthorization(ctx context.Context) (*oauth.AuthorizationRequest, error)
	ValidateState(ctx context.Context, state string) error
	CompleteAuthorization(ctx context.Context, code string) (*oauth.Credential, error)
	IsAuthorized(ctx context.Context) bool
}

// Presenter is the dashboard. *weather.Dashboard satisfies it.
type Presenter interface {
	Snapshot() *weather.Snapshot
	Refresh(ctx context.Context) (*weather.Snapshot, error)
	Logout(ctx context.Context) error
}

// Broker reports the MQTT connection state. *mqtt.Client satisfies it.
type Broker interface {
	IsConnected() bool
}

// Server holds the handlers' dependencies. Auth may be nil when a personal
// access token is used, in which case the authorization routes are absent.
type Server struct {
	Auth      Authorizer
	Dashboard Presenter
	// Broker, when set, is checked by /healthz.
	Broker    Broker
	Collector *metrics.Collector
	Registry  *prometheus.Registry
	// MetricsPath defaults to metrics.DefaultPath.
	MetricsPath string
	// AccessLog receives one line per request in combined log format.
	AccessLog io.Writer
	Log       logrus.FieldLogger
}

// Handler returns the router wrapped with request IDs, access logging and
// panic recovery.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router()
	h = requestID(h)
	if s.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(s.AccessLog, h)
	}
	return handlers.RecoveryHandler(handlers.RecoveryLogger(s.logger()))(h)
}

// Router registers every route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	s.handle(r, "/healthz", "healthz", s.health).Methods("GET")
	s.handle(r, "/dashboard", "dashboard", s.dashboard).Methods("GET")
	s.handle(r, "/refresh", "refresh", s.refresh).Methods("POST")
	if s.Auth != nil {
		s.handle(r, "/authorize", "authorize", s.authorize).Methods("GET")
		s.handle(r, "/callback", "callback", s.callback).Methods("GET")
		s.handle(r, "/code", "code", s.code).Methods("POST")
		s.handle(r, "/logout", "logout", s.logout).Methods("POST")
	}
	if s.Registry != nil {
		path := s.MetricsPath
		if path == "" {
			path = metrics.DefaultPath
		}
		r.Handle(path, promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}
	return r
}

func (s *Server) handle(r *mux.Router, path, name string, f http.HandlerFunc) *mux.Route {
	var h http.Handler = f
	if s.Collector != nil {
		h = metrics.HTTPMetricsMiddleware(s.Collector, name)(h)
	}
	return r.Handle(path, h).Name(name)
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if s.Broker != nil && !s.Broker.IsConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "MQTT disconnected\n")
		return
	}
	io.WriteString(w, "OK\n")
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	snap := s.Dashboard.Snapshot()
	if snap == nil {
		resp := map[string]interface{}{"error": "no data yet"}
		if s.Auth != nil {
			resp["authorized"] = s.Auth.IsAuthorized(r.Context())
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Dashboard.Refresh(r.Context())
	if err != nil {
		s.refreshFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) refreshFailed(w http.ResponseWriter, r *http.Request, err error) {
	log := s.logger().WithField("request_id", r.Header.Get("X-Request-ID"))
	switch {
	case errors.Is(err, oauth.ErrNotAuthorized):
		writeError(w, http.StatusUnauthorized, "not authorized")
	case errors.Is(err, weather.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.WithError(err).Error("refresh failed")
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	req, err := s.Auth.BeginAuthorization(r.Context())
	if err != nil {
		s.logger().WithError(err).Error("failed to start authorization")
		writeError(w, http.StatusInternalServerError, "failed to start authorization")
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, req)
		return
	}
	http.Redirect(w, r, req.URL, http.StatusFound)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "authorization denied: "+e)
		return
	}
	if err := s.Auth.ValidateState(r.Context(), q.Get("state")); err != nil {
		if errors.Is(err, oauth.ErrStateMismatch) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger().WithError(err).Error("failed to validate state")
		writeError(w, http.StatusInternalServerError, "failed to validate state")
		return
	}
	s.exchange(w, r, q.Get("code"))
}

// code accepts a manually entered authorization code, for devices that
// cannot receive the redirect. A form post has to carry the state issued
// by /authorize. JSON bodies need none.
func (s *Server) code(w http.ResponseWriter, r *http.Request) {
	var code string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		code = body.Code
	} else {
		code = r.FormValue("code")
		if err := s.Auth.ValidateState(r.Context(), r.FormValue("state")); err != nil {
			if errors.Is(err, oauth.ErrStateMismatch) {
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			s.logger().WithError(err).Error("failed to validate state")
			writeError(w, http.StatusInternalServerError, "failed to validate state")
			return
		}
	}
	s.exchange(w, r, code)
}

func (s *Server) exchange(w http.ResponseWriter, r *http.Request, code string) {
	cred, err := s.Auth.CompleteAuthorization(r.Context(), code)
	if err != nil {
		var exErr *oauth.AuthExchangeError
		status := http.StatusBadGateway
		if errors.As(err, &exErr) && exErr.StatusCode == 0 && !oauth.IsNetworkError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	resp := map[string]interface{}{
		"authorized": true,
		"expiresAt":  cred.ExpiresAt(),
	}
	if _, err := s.Dashboard.Refresh(r.Context()); err != nil {
		s.logger().WithError(err).Warn("first refresh after authorization failed")
		resp["refreshError"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.Dashboard.Logout(r.Context()); err != nil {
		s.logger().WithError(err).Error("logout failed")
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
