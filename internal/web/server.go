// Package web serves the stringline viewer: HTML pages, a JSON API and a
// websocket that streams live chart datasets.
package web

import (
	"bufio"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"stringline-viewer/internal/metrics"
	"stringline-viewer/internal/refresh"
	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
)

type Options struct {
	Source               transit.Source
	Calculator           *servicedate.Calculator
	Policies             refresh.Policies
	DefaultConfiguration int
	// DisplayLocation reads zone-less date-picker values.
	DisplayLocation *time.Location
	Metrics         *metrics.Collector
	// ServeMetrics mounts /metrics on the router.
	ServeMetrics bool
	Logger       zerolog.Logger
}

type Server struct {
	src          transit.Source
	calc         *servicedate.Calculator
	policies     refresh.Policies
	defaultCfg   int
	displayLoc   *time.Location
	metrics      *metrics.Collector
	serveMetrics bool
	log          zerolog.Logger
	pages        map[string]*template.Template
	upgrader     websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*liveConn
	wg    sync.WaitGroup
}

func NewServer(o Options) *Server {
	loc := o.DisplayLocation
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		src:          o.Source,
		calc:         o.Calculator,
		policies:     o.Policies,
		defaultCfg:   o.DefaultConfiguration,
		displayLoc:   loc,
		metrics:      o.Metrics,
		serveMetrics: o.ServeMetrics,
		log:          o.Logger,
		pages:        parseTemplates(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		conns: make(map[string]*liveConn),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.serveMetrics && s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.Handle("/", http.RedirectHandler("/stringline", http.StatusFound)).Methods(http.MethodGet)
	r.HandleFunc("/faq", s.handleFAQ).Methods(http.MethodGet)
	r.HandleFunc("/stringline", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/stringline/select", s.handleSelect).Methods(http.MethodGet)
	r.HandleFunc("/stringline/{configuration:[0-9]+}/today", s.handleToday).Methods(http.MethodGet)
	r.HandleFunc("/stringline/{configuration:[0-9]+}/{serviceDate}", s.handleStringline).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stringline/live", s.handleLive).Methods(http.MethodGet)
	api.HandleFunc("/stringline/{configuration:[0-9]+}/{serviceDate}", s.handleAPIStringline).Methods(http.MethodGet)

	r.NotFoundHandler = s.logRequests(http.HandlerFunc(s.handleNotFound))
	return r
}

// Shutdown closes every live connection and waits for their sessions to end.
func (s *Server) Shutdown() {
	s.mu.Lock()
	for _, c := range s.conns {
		c.ws.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// LiveConnections reports the number of open websocket sessions.
func (s *Server) LiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func configurationVar(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["configuration"])
	if err != nil {
		return 0, errors.New("configuration out of range")
	}
	return id, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		ev := s.log.Debug()
		if rec.status >= 500 {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
