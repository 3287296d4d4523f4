package playback

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/openfm/internal/app/queue"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
	"github.com/osa030/openfm/internal/infra/clock"
)

var (
	epicA = track.Track{ID: "epic-a", Title: "A", Mood: mood.Epic, Duration: 120}
	epicB = track.Track{ID: "epic-b", Title: "B", Mood: mood.Epic, Duration: 90}
	epicC = track.Track{ID: "epic-c", Title: "C", Mood: mood.Epic, Duration: 60}
	sadA  = track.Track{ID: "sad-a", Title: "Rain", Mood: mood.Sad, Duration: 200}
	spotA = track.Track{ID: "spotify-1", Title: "Remote", Mood: mood.Epic, Duration: 210}
)

func localLibrary() library.Library {
	return library.Library{
		{ID: mood.Epic, Name: "Epic", Tracks: []track.Track{epicA, epicB, epicC}, Enabled: true},
		{ID: mood.Sad, Name: "Sad", Tracks: []track.Track{sadA}, Enabled: true},
		{ID: mood.Scary, Name: "Scary", Enabled: true},
	}
}

type fakeSource struct {
	mu    sync.Mutex
	libs  map[state.Mode]library.Library
	err   error
	calls []state.Mode
}

func (f *fakeSource) Load(_ context.Context, mode state.Mode, _ string) (library.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, mode)
	if f.err != nil {
		return nil, f.err
	}
	return f.libs[mode], nil
}

type recordingObserver struct {
	nopObserver
	mu     sync.Mutex
	stale  []string
	armed  int
	fades  int
	failed int
}

func (o *recordingObserver) CommandHandled(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed++
	}
}

func (o *recordingObserver) StaleReport(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale = append(o.stale, name)
}

func (o *recordingObserver) TrackArmed(mood.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.armed++
}

func (o *recordingObserver) CrossfadeStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fades++
}

type fixture struct {
	ctl    *Controller
	store  *state.Store
	clock  *clock.Fake
	source *fakeSource
	obs    *recordingObserver
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()

	store := state.New()
	store.SetLibrary(localLibrary(), "/music")

	f := &fixture{
		store: store,
		clock: clock.NewFake(time.Unix(1_700_000_000, 0)),
		source: &fakeSource{libs: map[state.Mode]library.Library{
			state.ModeLocal: localLibrary(),
			state.ModeSpotify: {
				{ID: mood.Epic, Name: "Epic", Tracks: []track.Track{spotA}, Enabled: true},
			},
		}},
		obs: &recordingObserver{},
	}
	if config.LoadTimeout == 0 {
		config.LoadTimeout = 5 * time.Second
	}
	f.ctl = NewController(store, config,
		WithClock(f.clock),
		WithRand(rand.New(rand.NewPCG(7, 11))),
		WithObserver(f.obs),
		WithLibrarySource(f.source),
	)
	t.Cleanup(f.ctl.Close)
	return f
}

func (f *fixture) dispatch(t *testing.T, cmd Command) {
	t.Helper()
	require.NoError(t, f.ctl.Dispatch(context.Background(), cmd))
}

// ready reports the armed track as loaded.
func (f *fixture) ready(t *testing.T) {
	t.Helper()
	st := f.store.State()
	require.NotNil(t, st.CurrentTrack)
	f.dispatch(t, ReportProgress{
		TrackID:      st.CurrentTrack.ID,
		Seq:          st.TrackSeq,
		Elapsed:      lo.ToPtr(0.0),
		Duration:     lo.ToPtr(st.CurrentTrack.Duration),
		ClearLoading: true,
	})
}

func TestController_SelectMoodDrainsQueue(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, UpdateSettings{Patch: state.SettingsPatch{Loop: lo.ToPtr(false)}})

	f.dispatch(t, SelectMood{Mood: mood.Epic})
	st := f.store.State()
	require.NotNil(t, st.CurrentTrack)
	assert.True(t, st.IsLoading)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, mood.Epic, st.CurrentMood)
	assert.Len(t, st.Queue, 2)

	played := []string{st.CurrentTrack.ID}
	for range 2 {
		f.dispatch(t, Next{})
		played = append(played, f.store.State().CurrentTrack.ID)
	}
	assert.ElementsMatch(t, []string{"epic-a", "epic-b", "epic-c"}, played)
	assert.Empty(t, f.store.State().Queue)

	err := f.ctl.Dispatch(context.Background(), Next{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	st = f.store.State()
	assert.Nil(t, st.CurrentTrack)
	assert.False(t, st.IsPlaying)
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.Queue)
}

func TestController_SelectMoodValidation(t *testing.T) {
	tests := []struct {
		name      string
		mood      mood.ID
		expectErr error
	}{
		{name: "unknown mood", mood: "jazzy", expectErr: ErrValidation},
		{name: "mood without tracks", mood: mood.Scary, expectErr: ErrNotFound},
		{name: "mood missing from library", mood: mood.Funny, expectErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			err := f.ctl.Dispatch(context.Background(), SelectMood{Mood: tt.mood})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expectErr))

			st := f.store.State()
			assert.False(t, st.IsLoading)
			assert.False(t, st.IsPlaying)
			assert.Nil(t, st.CurrentTrack)
		})
	}
}

func TestController_PlayWaitsForReady(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})

	st := f.store.State()
	assert.True(t, st.IsLoading)
	assert.False(t, st.IsPlaying, "never playing while loading")

	f.ready(t)
	st = f.store.State()
	assert.False(t, st.IsLoading)
	assert.True(t, st.IsPlaying)
}

func TestController_ReadyWithoutIntentStaysPaused(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.ready(t)

	st := f.store.State()
	assert.False(t, st.IsLoading)
	assert.False(t, st.IsPlaying)
}

func TestController_PlayWithNothingArmedLoadsMood(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, Play{})

	st := f.store.State()
	require.NotNil(t, st.CurrentTrack)
	assert.Equal(t, mood.Epic, st.CurrentTrack.Mood)
	assert.True(t, st.IsLoading)

	f.ready(t)
	assert.True(t, f.store.State().IsPlaying)
}

func TestController_DoubleToggle(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.ready(t)

	f.dispatch(t, Toggle{})
	assert.True(t, f.store.State().IsPlaying)
	f.dispatch(t, Toggle{})
	assert.False(t, f.store.State().IsPlaying)
}

func TestController_ToggleWhileLoading(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})

	f.dispatch(t, Toggle{})
	f.dispatch(t, Toggle{})
	f.ready(t)

	st := f.store.State()
	assert.False(t, st.IsPlaying, "second toggle cancels the pending play")
	assert.False(t, st.IsLoading)
}

func TestController_StaleReportsDropped(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	first := f.store.State()

	f.dispatch(t, Next{})
	armed := f.store.State()
	require.NotEqual(t, first.CurrentTrack.ID, armed.CurrentTrack.ID)

	f.dispatch(t, ReportProgress{
		TrackID:      first.CurrentTrack.ID,
		Seq:          first.TrackSeq,
		Elapsed:      lo.ToPtr(42.0),
		ClearLoading: true,
	})
	f.dispatch(t, ReportEnded{TrackID: first.CurrentTrack.ID})
	f.dispatch(t, ReportProgress{TrackID: armed.CurrentTrack.ID, Seq: first.TrackSeq, Elapsed: lo.ToPtr(5.0)})

	st := f.store.State()
	assert.Equal(t, armed.CurrentTrack.ID, st.CurrentTrack.ID)
	assert.Equal(t, armed.TrackSeq, st.TrackSeq)
	assert.True(t, st.IsLoading)
	assert.Zero(t, st.Elapsed)
	assert.Equal(t, []string{"report_progress", "report_ended", "report_progress"}, f.obs.stale)
}

func TestController_ReportRequiresTrackID(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})

	for _, cmd := range []Command{
		ReportProgress{Elapsed: lo.ToPtr(1.0)},
		ReportEnded{},
		ReportFailure{Reason: "decode"},
	} {
		err := f.ctl.Dispatch(context.Background(), cmd)
		assert.True(t, errors.Is(err, ErrValidation), cmd.Name())
	}
}

func TestController_ProgressUpdatesState(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.ready(t)

	st := f.store.State()
	f.dispatch(t, ReportProgress{TrackID: st.CurrentTrack.ID, Elapsed: lo.ToPtr(30.0), Duration: lo.ToPtr(120.0)})

	st = f.store.State()
	assert.Equal(t, 30.0, st.Elapsed)
	assert.Equal(t, 120.0, st.Duration)
	assert.InDelta(t, 0.25, st.Progress, 1e-9)
}

func TestController_EndedAdvances(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})
	f.ready(t)
	first := f.store.State()

	f.dispatch(t, ReportEnded{TrackID: first.CurrentTrack.ID, Seq: first.TrackSeq})

	st := f.store.State()
	assert.NotEqual(t, first.CurrentTrack.ID, st.CurrentTrack.ID)
	assert.True(t, st.IsLoading)
	assert.False(t, st.IsPlaying)

	f.ready(t)
	assert.True(t, f.store.State().IsPlaying, "play intent carries over to the next track")
}

func TestController_FailurePauses(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})

	st := f.store.State()
	f.dispatch(t, ReportFailure{TrackID: st.CurrentTrack.ID, Reason: "autoplay blocked"})

	st = f.store.State()
	assert.False(t, st.IsPlaying)
	assert.False(t, st.IsLoading)
	assert.NotNil(t, st.CurrentTrack)

	// A late ready report no longer starts playback.
	f.dispatch(t, ReportProgress{TrackID: st.CurrentTrack.ID, ClearLoading: true})
	assert.False(t, f.store.State().IsPlaying)
}

func TestController_LoadTimeout(t *testing.T) {
	f := newFixture(t, Config{LoadTimeout: 2 * time.Second})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})

	f.clock.Advance(1999 * time.Millisecond)
	assert.True(t, f.store.State().IsLoading)

	f.clock.Advance(time.Millisecond)
	st := f.store.State()
	assert.False(t, st.IsLoading)
	assert.False(t, st.IsPlaying)
}

func TestController_LoadTimeoutCancelledByReady(t *testing.T) {
	f := newFixture(t, Config{LoadTimeout: 2 * time.Second})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})
	f.ready(t)

	f.clock.Advance(5 * time.Second)
	assert.True(t, f.store.State().IsPlaying)
}

func TestController_Previous(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.ready(t)
	first := f.store.State().CurrentTrack.ID

	f.dispatch(t, Next{})
	f.ready(t)
	second := f.store.State()

	// Early in the track: go back.
	f.dispatch(t, Previous{})
	st := f.store.State()
	assert.Equal(t, first, st.CurrentTrack.ID)
	assert.True(t, st.IsLoading)

	// No history left: restart the current track.
	f.ready(t)
	before := f.store.State()
	f.dispatch(t, Previous{})
	st = f.store.State()
	assert.Equal(t, first, st.CurrentTrack.ID)
	assert.Equal(t, before.TrackSeq+1, st.TrackSeq)
	assert.Greater(t, st.TrackSeq, second.TrackSeq)
}

func TestController_PreviousRestartsAfterThreshold(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.ready(t)
	f.dispatch(t, Next{})
	f.ready(t)

	st := f.store.State()
	f.dispatch(t, ReportProgress{TrackID: st.CurrentTrack.ID, Elapsed: lo.ToPtr(10.0)})
	f.dispatch(t, Previous{})

	next := f.store.State()
	assert.Equal(t, st.CurrentTrack.ID, next.CurrentTrack.ID)
	assert.Zero(t, next.Elapsed)
}

func TestController_PreviousWithoutTrack(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.ctl.Dispatch(context.Background(), Previous{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestController_CrossfadeStartsOnReady(t *testing.T) {
	f := newFixture(t, Config{CrossfadeTick: 15 * time.Millisecond})
	f.dispatch(t, UpdateSettings{Patch: state.SettingsPatch{CrossfadeDuration: lo.ToPtr(300)}})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})
	f.ready(t)
	outgoing := f.store.State().CurrentTrack.ID

	var mu sync.Mutex
	var fades []state.Crossfade
	cancel := f.store.On(state.KindCrossfade, func(e state.Event) {
		mu.Lock()
		defer mu.Unlock()
		fades = append(fades, e.(state.CrossfadeChanged).Crossfade)
	})
	defer cancel()

	f.dispatch(t, Next{})
	incoming := f.store.State().CurrentTrack.ID
	f.clock.Advance(time.Second)
	assert.Empty(t, fades, "no fade before the incoming track is ready")

	f.ready(t)
	require.NotEmpty(t, fades)
	assert.Equal(t, state.Crossfade{FromTrackID: outgoing, ToTrackID: incoming, FadeOut: 1, FadeIn: 0, Step: 0, Steps: 20}, fades[0])

	f.clock.Advance(150 * time.Millisecond)
	mid := fades[len(fades)-1]
	assert.Equal(t, 10, mid.Step)
	assert.InDelta(t, 0.75, mid.FadeOut, 1e-9)
	assert.InDelta(t, 0.25, mid.FadeIn, 1e-9)

	f.clock.Advance(150 * time.Millisecond)
	last := fades[len(fades)-1]
	assert.True(t, last.Done)
	assert.Equal(t, 1.0, last.FadeIn)
	assert.Equal(t, 1, f.obs.fades)
}

func TestController_NoCrossfadeWhenPausedOrDisabled(t *testing.T) {
	tests := []struct {
		name      string
		crossfade int
		play      bool
	}{
		{name: "paused", crossfade: 250, play: false},
		{name: "crossfade disabled", crossfade: 0, play: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.dispatch(t, UpdateSettings{Patch: state.SettingsPatch{CrossfadeDuration: lo.ToPtr(tt.crossfade)}})
			f.dispatch(t, SelectMood{Mood: mood.Epic})
			if tt.play {
				f.dispatch(t, Play{})
			}
			f.ready(t)

			f.dispatch(t, Next{})
			f.ready(t)
			assert.Zero(t, f.obs.fades)
		})
	}
}

func TestController_ProgressTickFallback(t *testing.T) {
	f := newFixture(t, Config{ProgressTick: time.Second})
	f.dispatch(t, SelectMood{Mood: mood.Sad})
	f.dispatch(t, Play{})
	f.ready(t)

	st := f.store.State()
	f.dispatch(t, ReportProgress{TrackID: st.CurrentTrack.ID, Elapsed: lo.ToPtr(197.5)})

	f.clock.Advance(time.Second)
	assert.Equal(t, 198.5, f.store.State().Elapsed)

	// The one-track sad pack loops, so the end re-arms the same track.
	f.clock.Advance(2 * time.Second)
	next := f.store.State()
	assert.Equal(t, "sad-a", next.CurrentTrack.ID)
	assert.Greater(t, next.TrackSeq, st.TrackSeq)
	assert.True(t, next.IsLoading)
}

func TestController_SetMode(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})
	f.ready(t)

	var modes []state.ModeChanged
	cancel := f.store.On(state.KindMode, func(e state.Event) { modes = append(modes, e.(state.ModeChanged)) })
	defer cancel()

	f.dispatch(t, SetMode{Mode: state.ModeSpotify})
	st := f.store.State()
	assert.Equal(t, state.ModeSpotify, st.Mode)
	assert.Equal(t, "spotify-1", st.CurrentTrack.ID)
	assert.True(t, st.IsLoading)
	assert.Equal(t, []state.Mode{state.ModeSpotify}, f.source.calls)
	assert.Equal(t, []state.ModeChanged{{Previous: state.ModeLocal, Current: state.ModeSpotify}}, modes)

	f.ready(t)
	assert.True(t, f.store.State().IsPlaying)
}

func TestController_SetModeErrors(t *testing.T) {
	t.Run("unknown mode", func(t *testing.T) {
		f := newFixture(t, Config{})
		err := f.ctl.Dispatch(context.Background(), SetMode{Mode: "vinyl"})
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Empty(t, f.source.calls)
	})

	t.Run("source failure", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.dispatch(t, SelectMood{Mood: mood.Epic})
		f.source.err = errors.New("spotify unavailable")

		err := f.ctl.Dispatch(context.Background(), SetMode{Mode: state.ModeSpotify})
		require.Error(t, err)

		st := f.store.State()
		assert.Equal(t, state.ModeSpotify, st.Mode)
		assert.False(t, st.IsLoading)
		assert.False(t, st.IsPlaying)
		assert.Nil(t, st.CurrentTrack)
	})
}

func TestController_ReloadLibraryKeepsDataOnError(t *testing.T) {
	f := newFixture(t, Config{})
	f.source.err = errors.New("disk gone")

	err := f.ctl.Dispatch(context.Background(), ReloadLibrary{Root: "/elsewhere"})
	require.Error(t, err)
	assert.Equal(t, "/music", f.store.LibraryRoot())
	assert.Equal(t, 4, f.store.Library().TrackCount())
}

func TestController_SetLibraryRefreshesQueue(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})

	epicD := track.Track{ID: "epic-d", Title: "D", Mood: mood.Epic, Duration: 30}
	lib := library.Library{{ID: mood.Epic, Tracks: []track.Track{epicD}, Enabled: true}}
	f.dispatch(t, SetLibrary{Library: lib})

	st := f.store.State()
	assert.Equal(t, "/music", f.store.LibraryRoot())
	require.NotEmpty(t, st.Queue)
	assert.Equal(t, "epic-d", st.Queue[0].ID)

	f.dispatch(t, Next{})
	assert.Equal(t, "epic-d", f.store.State().CurrentTrack.ID)
}

func TestController_UpdateSettings(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})

	f.dispatch(t, UpdateSettings{Patch: state.SettingsPatch{PlaybackMode: lo.ToPtr(queue.StrategyRandom)}})
	assert.Equal(t, queue.StrategyRandom, f.ctl.engine.Strategy())
	assert.Len(t, f.store.State().Queue, state.DefaultQueuePreview)

	err := f.ctl.Dispatch(context.Background(), UpdateSettings{Patch: state.SettingsPatch{CrossfadeDuration: lo.ToPtr(-5)}})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 250, f.store.Settings().CrossfadeDuration)
}

func TestController_VolumeAndMute(t *testing.T) {
	f := newFixture(t, Config{})

	f.dispatch(t, SetVolume{Volume: 1.5})
	assert.Equal(t, 1.0, f.store.State().Volume)

	f.dispatch(t, ToggleMute{})
	assert.True(t, f.store.State().IsMuted)
	f.dispatch(t, Unmute{})
	assert.False(t, f.store.State().IsMuted)
	f.dispatch(t, Mute{})
	assert.True(t, f.store.State().IsMuted)
}

func TestController_Closed(t *testing.T) {
	f := newFixture(t, Config{LoadTimeout: time.Second})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.ctl.Close()

	err := f.ctl.Dispatch(context.Background(), Play{})
	assert.True(t, errors.Is(err, ErrClosed))

	f.clock.Advance(2 * time.Second)
	assert.True(t, f.store.State().IsLoading, "timers stop with the controller")
}

func TestController_ConcurrentDispatch(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				switch i % 4 {
				case 0:
					_ = f.ctl.Dispatch(context.Background(), Next{})
				case 1:
					_ = f.ctl.Dispatch(context.Background(), Toggle{})
				case 2:
					_ = f.ctl.Dispatch(context.Background(), SetVolume{Volume: 0.5})
				default:
					st := f.store.State()
					_ = f.ctl.Dispatch(context.Background(), ReportProgress{TrackID: st.CurrentTrackID(), ClearLoading: true})
				}
			}
		}()
	}
	wg.Wait()

	st := f.store.State()
	assert.False(t, st.IsPlaying && st.IsLoading)
	if st.CurrentTrack != nil {
		assert.Equal(t, st.CurrentMood, st.CurrentTrack.Mood)
	}
}

func TestController_ApplyPreferences(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})
	f.ready(t)

	settings := state.DefaultSettings()
	settings.CrossfadeDuration = 600
	f.dispatch(t, ApplyPreferences{Preferences: state.Preferences{
		LibraryRoot: "/other",
		Settings:    settings,
		Volume:      0.2,
		Mode:        state.ModeSpotify,
		LastMood:    mood.Sad,
	}})

	st := f.store.State()
	assert.Nil(t, st.CurrentTrack)
	assert.False(t, st.IsPlaying)
	assert.False(t, st.IsLoading)
	assert.Equal(t, mood.Sad, st.CurrentMood)
	assert.Equal(t, state.ModeSpotify, st.Mode)
	assert.Equal(t, 0.2, st.Volume)
	assert.Equal(t, 600, st.CrossfadeDuration)
	assert.Equal(t, "/other", f.store.LibraryRoot())
	assert.Equal(t, state.ModeSpotify, f.source.calls[len(f.source.calls)-1])

	f.source.err = errors.New("disk gone")
	err := f.ctl.Dispatch(context.Background(), ApplyPreferences{Preferences: state.Preferences{Settings: settings}})
	assert.Error(t, err)
}

// gatedSource blocks every scan until release is closed.
type gatedSource struct {
	libs    map[state.Mode]library.Library
	started chan string
	release chan struct{}
}

func newGatedSource(libs map[state.Mode]library.Library) *gatedSource {
	return &gatedSource{libs: libs, started: make(chan string, 8), release: make(chan struct{})}
}

func (g *gatedSource) Load(ctx context.Context, mode state.Mode, root string) (library.Library, error) {
	g.started <- root
	select {
	case <-g.release:
		return g.libs[mode], nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestController_LibraryScanDoesNotBlockCommands(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})
	f.ready(t)
	armed := f.store.State().CurrentTrackID()

	src := newGatedSource(f.source.libs)
	f.ctl.source = src

	reloaded := make(chan error, 1)
	go func() { reloaded <- f.ctl.Dispatch(context.Background(), ReloadLibrary{}) }()
	<-src.started

	paused := make(chan error, 1)
	go func() { paused <- f.ctl.Dispatch(context.Background(), Pause{}) }()
	select {
	case err := <-paused:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("pause waited for the library scan")
	}
	assert.False(t, f.store.State().IsPlaying)

	close(src.release)
	require.NoError(t, <-reloaded)
	assert.Equal(t, armed, f.store.State().CurrentTrackID(), "rescan keeps the armed track")
}

func TestController_SupersededScanIsDropped(t *testing.T) {
	f := newFixture(t, Config{})
	src := newGatedSource(f.source.libs)
	f.ctl.source = src

	reloaded := make(chan error, 1)
	go func() { reloaded <- f.ctl.Dispatch(context.Background(), ReloadLibrary{Root: "/old"}) }()
	require.Equal(t, "/old", <-src.started)

	epicD := track.Track{ID: "epic-d", Title: "D", Mood: mood.Epic, Duration: 30}
	f.dispatch(t, SetLibrary{Library: library.Library{{ID: mood.Epic, Tracks: []track.Track{epicD}, Enabled: true}}, Root: "/new"})

	close(src.release)
	require.NoError(t, <-reloaded)
	assert.Equal(t, "/new", f.store.LibraryRoot())
	assert.Equal(t, 1, f.store.Library().TrackCount())
}

func TestController_SetModeWaitsForScan(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	old := f.store.State()

	src := newGatedSource(f.source.libs)
	f.ctl.source = src

	switched := make(chan error, 1)
	go func() { switched <- f.ctl.Dispatch(context.Background(), SetMode{Mode: state.ModeSpotify}) }()
	<-src.started

	st := f.store.State()
	assert.Equal(t, state.ModeSpotify, st.Mode)
	assert.Nil(t, st.CurrentTrack)
	assert.True(t, st.IsLoading)

	// Commands during the scan neither arm tracks from the old library nor
	// accept reports for the old track.
	f.dispatch(t, Next{})
	f.dispatch(t, ReportProgress{TrackID: old.CurrentTrack.ID, ClearLoading: true})
	f.dispatch(t, Play{})
	assert.Nil(t, f.store.State().CurrentTrack)

	close(src.release)
	require.NoError(t, <-switched)

	st = f.store.State()
	require.NotNil(t, st.CurrentTrack)
	assert.Equal(t, "spotify-1", st.CurrentTrack.ID)
	f.ready(t)
	assert.True(t, f.store.State().IsPlaying, "play during the scan is kept")
}

func TestController_ProgressTickFromReplacedTickerIgnored(t *testing.T) {
	f := newFixture(t, Config{ProgressTick: time.Second})
	f.dispatch(t, SelectMood{Mood: mood.Sad})
	f.dispatch(t, Play{})
	f.ready(t)

	st := f.store.State()
	f.ctl.mu.Lock()
	late := progressTick{seq: st.TrackSeq, gen: f.ctl.progressGen}
	f.ctl.mu.Unlock()

	f.dispatch(t, Pause{})
	f.dispatch(t, Play{})

	// A tick of the first ticker that was already queued when it stopped.
	f.dispatch(t, late)
	assert.Zero(t, f.store.State().Elapsed)

	f.clock.Advance(time.Second)
	assert.Equal(t, 1.0, f.store.State().Elapsed)
}

func TestController_SetObsActive(t *testing.T) {
	tests := []struct {
		name    string
		playing bool
	}{
		{name: "while playing", playing: true},
		{name: "while paused", playing: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.dispatch(t, SelectMood{Mood: mood.Epic})
			if tt.playing {
				f.dispatch(t, Play{})
			}
			f.ready(t)
			armed := f.store.State().CurrentTrackID()

			f.dispatch(t, SetObsActive{Active: true})
			st := f.store.State()
			assert.True(t, st.ObsActive)
			assert.False(t, st.IsPlaying)
			assert.Equal(t, armed, st.CurrentTrackID())

			f.dispatch(t, SetObsActive{Active: false})
			st = f.store.State()
			assert.False(t, st.ObsActive)
			assert.False(t, st.IsPlaying, "handing back does not resume")
		})
	}
}

func TestController_SetObsActiveCancelsPendingPlay(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(t, SelectMood{Mood: mood.Epic})
	f.dispatch(t, Play{})
	require.True(t, f.store.State().IsLoading)

	f.dispatch(t, SetObsActive{Active: true})
	f.ready(t)
	assert.False(t, f.store.State().IsPlaying)
}
