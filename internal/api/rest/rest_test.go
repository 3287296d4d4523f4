package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/openfm/internal/app/playback"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
	"github.com/osa030/openfm/internal/infra/clock"
	"github.com/osa030/openfm/internal/infra/content"
)

var (
	epicA = track.Track{ID: "epic-a.mp3", Title: "a", Mood: mood.Epic, Duration: 120, Locator: "epic/a.mp3"}
	epicB = track.Track{ID: "epic-b.mp3", Title: "b", Mood: mood.Epic, Duration: 90, Locator: "epic/b.mp3"}
	sadA  = track.Track{ID: "sad-rain.mp3", Title: "rain", Mood: mood.Sad, Duration: 200, Locator: "../outside.mp3"}
)

func testLibrary() library.Library {
	return library.Library{
		{ID: mood.Epic, Name: "Epic", Tracks: []track.Track{epicA, epicB}, Enabled: true},
		{ID: mood.Sad, Name: "Sad", Tracks: []track.Track{sadA}, Enabled: true},
		{ID: mood.Scary, Name: "Scary", Tracks: []track.Track{}},
	}
}

type fakeSource struct {
	mu    sync.Mutex
	roots []string
}

func (f *fakeSource) Load(_ context.Context, _ state.Mode, root string) (library.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roots = append(f.roots, root)
	return testLibrary(), nil
}

type fixture struct {
	router http.Handler
	ctl    *playback.Controller
	store  *state.Store
	source *fakeSource
	root   string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "epic"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "epic", "a.mp3"), []byte("0123456789"), 0o644))

	store := state.New()
	store.SetLibrary(testLibrary(), root)
	source := &fakeSource{}
	ctl := playback.NewController(store, playback.Config{LoadTimeout: time.Minute},
		playback.WithClock(clock.NewFake(time.Unix(1_700_000_000, 0))),
		playback.WithLibrarySource(source),
	)
	t.Cleanup(ctl.Close)

	opts = append([]Option{WithContent(&content.FileResolver{Root: root})}, opts...)
	srv := New(ctl, opts...)
	r := chi.NewRouter()
	srv.Routes(r)

	return &fixture{router: r, ctl: ctl, store: store, source: source, root: root}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_ReadEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "local", health.Mode)
	assert.Equal(t, 3, health.Tracks)

	rec = f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	st := decode[state.State](t, rec)
	assert.Equal(t, state.ModeLocal, st.Mode)
	assert.False(t, st.IsPlaying)

	rec = f.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, state.DefaultSettings(), decode[state.Settings](t, rec))

	rec = f.do(t, http.MethodGet, "/api/library", "")
	require.Equal(t, http.StatusOK, rec.Code)
	lib := decode[library.Library](t, rec)
	require.Len(t, lib, 3)
	assert.Equal(t, mood.Epic, lib[0].ID)

	rec = f.do(t, http.MethodGet, "/api/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	prefs := decode[state.Preferences](t, rec)
	assert.Equal(t, f.root, prefs.LibraryRoot)
}

func TestServer_Tokens(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.Dispatch(context.Background(), playback.SelectMood{Mood: mood.Sad}))

	rec := f.do(t, http.MethodGet, "/api/tokens?template=%7Bopenfm.mood%7D%20-%20%7Bopenfm.song%7D", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[tokensResponse](t, rec)
	assert.Equal(t, "Sad", resp.Tokens.Mood)
	assert.Equal(t, "rain", resp.Tokens.Song)
	assert.Equal(t, state.StatusPaused, resp.Tokens.Status)
	require.NotNil(t, resp.Rendered)
	assert.Equal(t, "Sad - rain", *resp.Rendered)

	rec = f.do(t, http.MethodGet, "/api/tokens", "")
	assert.Nil(t, decode[tokensResponse](t, rec).Rendered)
}

func TestServer_Playback(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		body     string
		expected int
		check    func(t *testing.T, st state.State)
	}{
		{
			name: "select mood", action: "mood", body: `{"mood":"epic"}`, expected: http.StatusOK,
			check: func(t *testing.T, st state.State) {
				assert.Equal(t, mood.Epic, st.CurrentMood)
				require.NotNil(t, st.CurrentTrack)
				assert.True(t, st.IsLoading)
			},
		},
		{name: "unknown mood", action: "mood", body: `{"mood":"jazzy"}`, expected: http.StatusBadRequest},
		{name: "missing mood", action: "mood", expected: http.StatusBadRequest},
		{
			name: "mood without tracks", action: "mood", body: `{"mood":"scary"}`, expected: http.StatusNotFound,
			check: func(t *testing.T, st state.State) {
				assert.False(t, st.IsPlaying)
				assert.False(t, st.IsLoading)
			},
		},
		{
			name: "volume clamps", action: "volume", body: `{"volume":1.4}`, expected: http.StatusOK,
			check: func(t *testing.T, st state.State) { assert.Equal(t, 1.0, st.Volume) },
		},
		{name: "volume not a number", action: "volume", body: `{"volume":"loud"}`, expected: http.StatusBadRequest},
		{name: "malformed body", action: "volume", body: `{`, expected: http.StatusBadRequest},
		{
			name: "mute toggles", action: "mute", expected: http.StatusOK,
			check: func(t *testing.T, st state.State) { assert.True(t, st.IsMuted) },
		},
		{name: "unknown mode", action: "mode", body: `{"mode":"radio"}`, expected: http.StatusBadRequest},
		{
			name: "stale progress is accepted", action: "progress", body: `{"trackId":"epic-zzz","elapsed":42}`, expected: http.StatusOK,
			check: func(t *testing.T, st state.State) { assert.Zero(t, st.Elapsed) },
		},
		{name: "unknown action", action: "eject", expected: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/playback/"+tt.action, tt.body)
			assert.Equal(t, tt.expected, rec.Code, rec.Body.String())
			if tt.expected == http.StatusOK {
				assert.JSONEq(t, `{"success":true}`, rec.Body.String())
			} else {
				assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
			}
			if tt.check != nil {
				tt.check(t, f.store.State())
			}
		})
	}
}

func TestServer_PlaybackToggleTwice(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/playback/mood", `{"mood":"epic"}`).Code)
	before := f.store.State().IsPlaying

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/playback/toggle", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/playback/toggle", "").Code)
	assert.Equal(t, before, f.store.State().IsPlaying)
}

func TestServer_Settings(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/settings", `{"crossfadeDuration":500,"loop":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[settingsResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 500, resp.Settings.CrossfadeDuration)
	assert.False(t, resp.Settings.Loop)
	assert.Equal(t, state.DefaultSettings().DuckLevel, resp.Settings.DuckLevel, "unpatched fields are kept")

	rec = f.do(t, http.MethodPost, "/api/settings", `{"playbackMode":"sequential"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 500, f.store.Settings().CrossfadeDuration)
}

func TestServer_Scan(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/library/scan", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.source.roots)

	rec = f.do(t, http.MethodPost, "/api/library/scan", `{"rootPath":"/srv/music"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[scanResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Len(t, resp.Moods, 3)
	assert.Equal(t, []string{"/srv/music"}, f.source.roots)
	assert.Equal(t, "/srv/music", f.store.LibraryRoot())
}

func TestServer_ApplyPreferences(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/preferences", `{"volume":0.25,"lastMood":"sad","libraryRoot":"/srv/other"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	st := f.store.State()
	assert.Equal(t, 0.25, st.Volume)
	assert.Equal(t, mood.Sad, st.CurrentMood)
	assert.Equal(t, "/srv/other", f.store.LibraryRoot())
	assert.Equal(t, []string{"/srv/other"}, f.source.roots)
	assert.Equal(t, state.DefaultSettings(), f.store.Settings(), "omitted fields keep their current values")
}

func TestServer_ControlToken(t *testing.T) {
	f := newFixture(t, WithControlToken("s3cret"))

	rec := f.do(t, http.MethodPost, "/api/playback/mute", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, f.store.State().IsMuted)

	rec = f.do(t, http.MethodPost, "/api/playback/mute", "", ControlTokenHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/playback/mute", "", ControlTokenHeader, "s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.store.State().IsMuted)

	rec = f.do(t, http.MethodGet, "/api/state", "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads need no token")
}

func TestServer_CORS(t *testing.T) {
	tests := []struct {
		name     string
		origins  []string
		method   string
		path     string
		headers  []string
		code     int
		expected map[string]string
	}{
		{
			name:    "preflight from allowed origin",
			origins: []string{"http://overlay.local"},
			method:  http.MethodOptions,
			path:    "/api/playback/next",
			headers: []string{
				"Origin", "http://overlay.local",
				"Access-Control-Request-Method", "POST",
				"Access-Control-Request-Headers", "Content-Type, X-Control-Token",
			},
			code: http.StatusOK,
			expected: map[string]string{
				"Access-Control-Allow-Origin":  "http://overlay.local",
				"Access-Control-Allow-Methods": "POST",
				"Access-Control-Allow-Headers": "Content-Type, X-Control-Token",
				"Access-Control-Max-Age":       "600",
			},
		},
		{
			name:    "preflight with unlisted header",
			origins: []string{"http://overlay.local"},
			method:  http.MethodOptions,
			path:    "/api/playback/next",
			headers: []string{
				"Origin", "http://overlay.local",
				"Access-Control-Request-Method", "POST",
				"Access-Control-Request-Headers", "X-Forwarded-Secret",
			},
			code:     http.StatusOK,
			expected: map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name:    "read from allowed origin exposes range headers",
			origins: []string{"http://overlay.local"},
			method:  http.MethodGet,
			path:    "/api/state",
			headers: []string{"Origin", "http://overlay.local"},
			code:    http.StatusOK,
			expected: map[string]string{
				"Access-Control-Allow-Origin":   "http://overlay.local",
				"Access-Control-Expose-Headers": "Content-Length, Content-Range",
			},
		},
		{
			name:     "other origin",
			origins:  []string{"http://overlay.local"},
			method:   http.MethodGet,
			path:     "/api/state",
			headers:  []string{"Origin", "http://evil.example"},
			code:     http.StatusOK,
			expected: map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name:     "wildcard",
			origins:  []string{"*"},
			method:   http.MethodGet,
			path:     "/api/state",
			headers:  []string{"Origin", "http://anywhere.example"},
			code:     http.StatusOK,
			expected: map[string]string{"Access-Control-Allow-Origin": "*"},
		},
		{
			name:     "no origins configured",
			method:   http.MethodGet,
			path:     "/api/state",
			headers:  []string{"Origin", "http://overlay.local"},
			code:     http.StatusOK,
			expected: map[string]string{"Access-Control-Allow-Origin": "", "Vary": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithAllowedOrigins(tt.origins))
			rec := f.do(t, tt.method, tt.path, "", tt.headers...)
			assert.Equal(t, tt.code, rec.Code)
			for k, v := range tt.expected {
				assert.Equal(t, v, rec.Header().Get(k), k)
			}
		})
	}
}

func TestServer_Audio(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/audio/epic-a.mp3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "0123456789", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/audio/epic-a.mp3", "", "Range", "bytes=2-4")
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "234", rec.Body.String())

	tests := []struct {
		name     string
		id       string
		expected int
	}{
		{name: "unknown track", id: "epic-zzz.mp3", expected: http.StatusNotFound},
		{name: "missing file", id: "epic-b.mp3", expected: http.StatusNotFound},
		{name: "outside root", id: "sad-rain.mp3", expected: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.do(t, http.MethodGet, "/api/audio/"+tt.id, "").Code)
		})
	}
}

func TestServer_AudioDisabled(t *testing.T) {
	f := newFixture(t, WithContent(nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/audio/epic-a.mp3", "").Code)
}

func TestServer_Closed(t *testing.T) {
	f := newFixture(t)
	f.ctl.Close()
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/playback/next", "").Code)
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		origin   string
		expected bool
	}{
		{name: "no origin header", expected: true},
		{name: "same origin", origin: "http://example.com", expected: true},
		{name: "listed origin", allowed: []string{"http://overlay.local"}, origin: "http://OVERLAY.local", expected: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://anything", expected: true},
		{name: "foreign origin", allowed: []string{"http://overlay.local"}, origin: "http://evil.example", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.expected, OriginAllowed(tt.allowed, req))
		})
	}
}

func TestRequestLogger(t *testing.T) {
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestServer_ObsActive(t *testing.T) {
	f := newFixture(t, WithControlToken("s3cret"))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/playback/mood", `{"mood":"epic"}`, ControlTokenHeader, "s3cret").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/playback/play", "", ControlTokenHeader, "s3cret").Code)

	rec := f.do(t, http.MethodGet, "/api/obs/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[map[string]bool](t, rec)["active"])

	rec = f.do(t, http.MethodPost, "/api/obs/active", `{"active":true}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/obs/active", `{"active":true}`, ControlTokenHeader, "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	st := f.store.State()
	assert.True(t, st.ObsActive)
	assert.False(t, st.IsPlaying)

	rec = f.do(t, http.MethodGet, "/api/obs/active", "")
	assert.True(t, decode[map[string]bool](t, rec)["active"])

	rec = f.do(t, http.MethodPost, "/api/obs/active", "", ControlTokenHeader, "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.store.State().ObsActive)
}
