package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/view"
)

const (
	msgBadDate          = "Enter a date in YYYY-MM-DD format."
	msgBadConfiguration = "Select a configuration."
)

type pageData struct {
	Title string
	Nav   string

	Configurations []transit.Configuration
	Selected       int
	ServiceDate    string
	MinDate        string
	MaxDate        string
	FieldMessage   string

	Identity transit.Identity
	Spec     map[string]any
	Datasets map[string]any

	Message string

	DayStart        string
	LiveInterval    string
	NowMarkInterval string
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages[page].ExecuteTemplate(w, "base", data); err != nil {
		s.log.Error().Err(err).Str("page", page).Msg("template error")
	}
}

func (s *Server) renderNotFound(w http.ResponseWriter, msg string) {
	s.render(w, http.StatusNotFound, pageNotFound, pageData{Title: "Not found", Nav: "stringline", Message: msg})
}

func (s *Server) renderError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("page load failed")
	s.render(w, http.StatusBadGateway, pageError, pageData{
		Title:   "Error",
		Nav:     "stringline",
		Message: "Error loading stringline data. The backend request failed.",
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.renderNotFound(w, "The page you requested does not exist.")
}

func (s *Server) handleFAQ(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, pageFAQ, pageData{
		Title:           "FAQ",
		Nav:             "faq",
		DayStart:        clockTime(s.calc.DayStart()),
		LiveInterval:    s.policies.LiveInterval.String(),
		NowMarkInterval: s.policies.NowMarkInterval.String(),
	})
}

// clockTime renders a time of day as HH:MM.
func clockTime(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, fmt.Sprintf("/stringline/%d/today", s.defaultCfg), http.StatusFound)
}

// handleToday resolves "today" to the current service date.
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	id, err := configurationVar(r)
	if err != nil {
		s.renderNotFound(w, err.Error())
		return
	}
	http.Redirect(w, r, stringlinePath(id, s.calc.CurrentServiceDate()), http.StatusFound)
}

func stringlinePath(configurationID int, d servicedate.Date) string {
	return fmt.Sprintf("/stringline/%d/%s", configurationID, d)
}

// selectors loads what the configuration and date inputs need.
func (s *Server) selectors(ctx context.Context, data *pageData) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfgs, err := s.src.Configurations(gctx)
		if err != nil {
			return fmt.Errorf("load configurations: %w", err)
		}
		data.Configurations = cfgs
		return nil
	})
	g.Go(func() error {
		rng, err := s.src.ServiceDateRange(gctx)
		if err != nil {
			return fmt.Errorf("load valid service dates: %w", err)
		}
		data.MinDate, data.MaxDate = rng.Min.String(), rng.Max.String()
		return nil
	})
	return g.Wait()
}

func (s *Server) renderSelect(w http.ResponseWriter, r *http.Request, status, configurationID int, serviceDate, msg string) {
	data := pageData{
		Title:        "Stringlines",
		Nav:          "stringline",
		Selected:     configurationID,
		ServiceDate:  serviceDate,
		FieldMessage: msg,
	}
	if err := s.selectors(r.Context(), &data); err != nil {
		s.renderError(w, err)
		return
	}
	s.render(w, status, pageSelect, data)
}

func (s *Server) handleStringline(w http.ResponseWriter, r *http.Request) {
	cfgID, err := configurationVar(r)
	if err != nil {
		s.renderNotFound(w, err.Error())
		return
	}
	raw := mux.Vars(r)["serviceDate"]
	d, err := servicedate.Parse(raw)
	if err != nil {
		s.renderSelect(w, r, http.StatusBadRequest, cfgID, "", msgBadDate)
		return
	}
	id := transit.Identity{ConfigurationID: cfgID, ServiceDate: d}

	data := pageData{Nav: "stringline", Selected: cfgID, ServiceDate: d.String(), Identity: id}
	var snap view.Snapshot
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return s.selectors(gctx, &data) })
	g.Go(func() error {
		var err error
		snap, err = view.Load(gctx, s.src, s.calc, s.policies, id)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, transit.ErrNotFound) {
			s.renderNotFound(w, fmt.Sprintf("Configuration %d does not exist.", cfgID))
			return
		}
		s.renderError(w, err)
		return
	}

	data.Title = snap.Title
	data.Spec = ChartSpec(snap.Chart())
	data.Datasets = make(map[string]any)
	for _, ds := range snap.Datasets() {
		data.Datasets[ds.Name] = ds.Rows
	}
	s.render(w, http.StatusOK, pageStringline, data)
}

// handleSelect validates date-picker input, first its syntax and then the
// servable range, before navigating to the chart.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawDate := q.Get("serviceDate")
	cfgID, err := transit.ParseConfigurationID(q.Get("configuration"))
	if err != nil {
		s.renderSelect(w, r, http.StatusBadRequest, s.defaultCfg, rawDate, msgBadConfiguration)
		return
	}
	d, err := servicedate.ParsePicked(rawDate, s.displayLoc)
	if err != nil {
		s.renderSelect(w, r, http.StatusBadRequest, cfgID, rawDate, msgBadDate)
		return
	}
	rng, err := s.src.ServiceDateRange(r.Context())
	if err != nil {
		s.renderError(w, err)
		return
	}
	if msg := servicedate.CheckRange(d, rng.Min, rng.Max); msg != "" {
		s.renderSelect(w, r, http.StatusBadRequest, cfgID, d.String(), msg)
		return
	}
	http.Redirect(w, r, stringlinePath(cfgID, d), http.StatusSeeOther)
}
