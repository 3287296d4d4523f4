package rest

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/api/wire"
	"github.com/osa030/openfm/internal/app/playback"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/infra/content"
)

type scanRequest struct {
	RootPath string `json:"rootPath"`
}

type scanResponse struct {
	Success bool            `json:"success"`
	Moods   library.Library `json:"moods"`
}

type settingsResponse struct {
	Success  bool           `json:"success"`
	Settings state.Settings `json:"settings"`
}

type tokensResponse struct {
	Tokens   state.Tokens `json:"tokens"`
	Rendered *string      `json:"rendered,omitempty"`
}

type obsActiveResponse struct {
	Active bool `json:"active"`
}

type healthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
	Tracks int    `json:"tracks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Mode:   string(s.store.State().Mode),
		Tracks: s.store.Library().TrackCount(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.State())
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Settings())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch state.SettingsPatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	if err := s.ctl.Dispatch(r.Context(), playback.UpdateSettings{Patch: patch}); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Success: true, Settings: s.store.Settings()})
}

func (s *Server) handleLibrary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Library())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	if req.RootPath == "" {
		writeError(w, http.StatusBadRequest, "rootPath is required")
		return
	}
	if err := s.ctl.Dispatch(r.Context(), playback.ReloadLibrary{Root: req.RootPath}); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Success: true, Moods: s.store.Library()})
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	resp := tokensResponse{Tokens: state.BuildTokens(s.store.State())}
	if tmpl := r.URL.Query().Get("template"); tmpl != "" {
		rendered := resp.Tokens.Render(tmpl)
		resp.Rendered = &rendered
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ExportPreferences())
}

func (s *Server) handleApplyPreferences(w http.ResponseWriter, r *http.Request) {
	prefs := s.store.ExportPreferences()
	if err := decodeBody(w, r, &prefs); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	if err := s.ctl.Dispatch(r.Context(), playback.ApplyPreferences{Preferences: prefs}); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleObsActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, obsActiveResponse{Active: s.store.State().ObsActive})
}

// handleSetObsActive accepts {"active": bool}. A missing flag means inactive.
func (s *Server) handleSetObsActive(w http.ResponseWriter, r *http.Request) {
	var req obsActiveResponse
	if err := decodeBody(w, r, &req); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	if err := s.ctl.Dispatch(r.Context(), playback.SetObsActive{Active: req.Active}); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	writeSuccess(w)
}

// handlePlayback maps /api/playback/{action} onto the inbound message set.
// The body carries the message fields, e.g. {"mood":"epic"}.
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	typ, ok := wire.TypeForAction(action)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action: "+action)
		return
	}

	var in wire.Inbound
	if err := decodeBody(w, r, &in); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	in.Type = typ

	cmd, err := in.Command()
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}
	if err := s.ctl.Dispatch(r.Context(), cmd); err != nil {
		writeDispatchError(w, r, err)
		return
	}
	writeSuccess(w)
}

// handleAudio streams the content behind a library track. Range requests
// are served by http.ServeContent.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.content == nil {
		writeError(w, http.StatusNotFound, "audio content is not served")
		return
	}

	id := chi.URLParam(r, "trackID")
	t, ok := s.store.Library().Track(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown track: "+id)
		return
	}

	c, err := s.content.Open(r.Context(), t.Locator)
	if err != nil {
		status := contentStatus(err)
		if status >= http.StatusInternalServerError {
			zlog.Error().Msgf("rest: open content failed: track=%s err=%v", id, err)
		} else {
			zlog.Warn().Msgf("rest: content unavailable: track=%s err=%v", id, err)
		}
		writeError(w, status, http.StatusText(status))
		return
	}
	defer c.Close()

	if c.ContentType != "" {
		w.Header().Set("Content-Type", c.ContentType)
	}
	http.ServeContent(w, r, c.Name, c.ModTime, c)
}

func contentStatus(err error) int {
	switch {
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, content.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, content.ErrUnsupported):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
