package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/view"
)

type apiError struct {
	Error    string `json:"error"`
	NotFound bool   `json:"notFound,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleAPIStringline returns the full chart snapshot for one identity.
func (s *Server) handleAPIStringline(w http.ResponseWriter, r *http.Request) {
	cfgID, err := configurationVar(r)
	if err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error(), NotFound: true})
		return
	}
	d, err := servicedate.Parse(mux.Vars(r)["serviceDate"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	snap, err := view.Load(r.Context(), s.src, s.calc, s.policies, transit.Identity{ConfigurationID: cfgID, ServiceDate: d})
	if err != nil {
		if errors.Is(err, transit.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, apiError{Error: err.Error(), NotFound: true})
			return
		}
		s.log.Error().Err(err).Msg("api load failed")
		writeJSON(w, http.StatusBadGateway, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
