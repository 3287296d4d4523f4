// Package playback provides the command processor that drives the playback
// state store, the track queue and the crossfade scheduler.
package playback

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/openfm/internal/app/crossfade"
	"github.com/osa030/openfm/internal/app/queue"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
	"github.com/osa030/openfm/internal/infra/clock"
)

// Defaults applied by NewController for zero config values.
const (
	DefaultPreviousRestart = 3 * time.Second
	DefaultLoadTimeout     = 3 * time.Second
)

// Config holds controller configuration.
type Config struct {
	QueuePreview    int           // Upcoming tracks published in the state
	LoadTimeout     time.Duration // Time the renderer has to confirm an armed track (negative disables)
	ProgressTick    time.Duration // Fallback progress clock when no renderer reports (0 disables)
	CrossfadeTick   time.Duration // Crossfade ramp resolution
	PreviousRestart time.Duration // Previous restarts the current track once it has played this long
}

// LibrarySource loads the library for a source mode.
type LibrarySource interface {
	Load(ctx context.Context, mode state.Mode, root string) (library.Library, error)
}

// Observer receives controller telemetry.
type Observer interface {
	CommandHandled(name string, err error)
	StaleReport(name string)
	TrackArmed(m mood.ID)
	CrossfadeStarted()
}

type nopObserver struct{}

func (nopObserver) CommandHandled(string, error) {}
func (nopObserver) StaleReport(string)           {}
func (nopObserver) TrackArmed(mood.ID)           {}
func (nopObserver) CrossfadeStarted()            {}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source for timers and the crossfade tick.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithRand sets the random source used to build queues.
func WithRand(r *rand.Rand) Option {
	return func(ctl *Controller) { ctl.rng = r }
}

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) Option {
	return func(ctl *Controller) { ctl.obs = o }
}

// WithLibrarySource sets the library loader used by SetMode and ReloadLibrary.
func WithLibrarySource(s LibrarySource) Option {
	return func(ctl *Controller) { ctl.source = s }
}

type fadePlan struct {
	from track.Track
	to   track.Track
}

// libraryLoad is a scan prepared under the lock and run outside it. With arm
// set the current mood is armed once the library is installed.
type libraryLoad struct {
	gen  uint64
	mode state.Mode
	root string
	arm  bool
}

// Controller applies commands to the state store one at a time, in arrival
// order. It owns the queue engine for the current mood and the crossfade
// scheduler, and it enforces that a newly armed track stays loading until
// the renderer confirms it.
type Controller struct {
	mu sync.Mutex

	store  *state.Store
	clock  clock.Clock
	fader  *crossfade.Scheduler
	source LibrarySource
	obs    Observer
	rng    *rand.Rand
	config Config

	// Queue for engineMood; rebuilt on mood, mode or strategy change.
	engine     queue.Engine
	engineMood mood.ID
	previous   *track.Track

	// autoplay is the play intent carried across Loading: it becomes
	// isPlaying once the renderer confirms the armed track.
	autoplay    bool
	pendingFade *fadePlan

	// libGen is bumped by every library scan or install; a finished scan
	// whose generation is behind is dropped. awaitingLibrary is set while a
	// mode switch waits for its scan.
	libGen          uint64
	awaitingLibrary bool

	loadTimer     clock.Timer
	progressTimer clock.Timer
	progressGen   uint64

	closed bool
}

// NewController creates a controller over store.
func NewController(store *state.Store, config Config, opts ...Option) *Controller {
	if config.QueuePreview <= 0 {
		config.QueuePreview = state.DefaultQueuePreview
	}
	if config.LoadTimeout == 0 {
		config.LoadTimeout = DefaultLoadTimeout
	}
	if config.PreviousRestart <= 0 {
		config.PreviousRestart = DefaultPreviousRestart
	}

	c := &Controller{
		store:  store,
		config: config,
		clock:  clock.New(),
		obs:    nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c.fader = crossfade.NewScheduler(c.clock, config.CrossfadeTick)
	return c
}

// Store returns the state store the controller drives.
func (c *Controller) Store() *state.Store {
	return c.store
}

// Start loads the library for the current mode and root.
func (c *Controller) Start(ctx context.Context) error {
	return c.Dispatch(ctx, ReloadLibrary{})
}

// Dispatch applies one command. Commands are serialized; the returned error
// is classified by ErrValidation and ErrNotFound. A renderer report for a
// track that is no longer current is dropped and returns nil.
//
// SetMode, ReloadLibrary and ApplyPreferences scan the library without
// holding the command lock: Dispatch returns once the scan is installed, but
// other commands keep being applied meanwhile. A scan overtaken by a newer
// one is discarded.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) error {
	err := c.dispatch(ctx, cmd)
	if errors.Is(err, ErrClosed) {
		return err
	}
	c.obs.CommandHandled(cmd.Name(), err)
	if err != nil {
		zlog.Debug().Msgf("playback: command failed: command=%s err=%v", cmd.Name(), err)
	}
	return err
}

func (c *Controller) dispatch(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	var (
		load *libraryLoad
		err  error
	)
	switch cmd := cmd.(type) {
	case SetMode:
		load, err = c.setModeLocked(cmd.Mode)
	case ReloadLibrary:
		load, err = c.reloadLibraryLocked(cmd.Root)
	case ApplyPreferences:
		load, err = c.applyPreferencesLocked(cmd.Preferences)
	default:
		err = c.handleLocked(cmd)
	}
	c.mu.Unlock()

	if err != nil || load == nil {
		return err
	}
	return c.finishLoad(ctx, load)
}

func (c *Controller) handleLocked(cmd Command) error {
	switch cmd := cmd.(type) {
	case SelectMood:
		return c.selectMoodLocked(cmd.Mood)
	case Play:
		return c.playLocked()
	case Pause:
		c.pauseLocked()
		return nil
	case Toggle:
		if c.playingIntentLocked(c.store.State()) {
			c.pauseLocked()
			return nil
		}
		return c.playLocked()
	case Next:
		return c.nextLocked()
	case Previous:
		return c.previousLocked()
	case ToggleMute:
		c.store.ToggleMute()
		return nil
	case Mute:
		c.store.Mute()
		return nil
	case Unmute:
		c.store.Unmute()
		return nil
	case SetVolume:
		c.store.SetVolume(cmd.Volume)
		return nil
	case ReportProgress:
		return c.reportProgressLocked(cmd)
	case ReportEnded:
		return c.reportEndedLocked(cmd)
	case ReportFailure:
		return c.reportFailureLocked(cmd)
	case SetLibrary:
		return c.setLibraryLocked(cmd.Library, lo.Ternary(cmd.Root != "", cmd.Root, c.store.LibraryRoot()))
	case UpdateSettings:
		return c.updateSettingsLocked(cmd.Patch)
	case SetObsActive:
		c.setObsActiveLocked(cmd.Active)
		return nil
	case loadTimeout:
		c.loadTimeoutLocked(cmd.seq)
		return nil
	case progressTick:
		return c.progressTickLocked(cmd)
	default:
		return validationf("unsupported command %T", cmd)
	}
}

// Close stops all timers and the crossfade. Later commands return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.haltLocked()
}

func (c *Controller) playingIntentLocked(st state.State) bool {
	return st.IsPlaying || (st.IsLoading && c.autoplay)
}

func (c *Controller) selectMoodLocked(m mood.ID) error {
	if !m.Valid() {
		return validationf("unknown mood %q", m)
	}

	autoplay := c.playingIntentLocked(c.store.State())
	c.haltLocked()
	c.store.SetMood(m)
	zlog.Info().Msgf("playback: mood selected: mood=%s autoplay=%v", m, autoplay)

	if c.awaitingLibrary {
		// Armed from the new library once its scan lands.
		c.autoplay = autoplay
		return nil
	}
	return c.loadMoodLocked(m, autoplay)
}

// loadMoodLocked builds a fresh queue for m and arms its first track.
func (c *Controller) loadMoodLocked(m mood.ID, autoplay bool) error {
	c.previous = nil
	tracks := c.store.Library().Tracks(m)
	if len(tracks) == 0 {
		c.engine = nil
		c.engineMood = ""
		c.idleLocked()
		zlog.Warn().Msgf("playback: mood has no tracks: mood=%s", m)
		return notFoundf("mood %s has no tracks", m)
	}

	settings := c.store.Settings()
	c.engine = queue.New(settings.PlaybackMode, tracks, settings.Loop, c.rng)
	c.engineMood = m
	zlog.Debug().Msgf("playback: queue built: mood=%s strategy=%s tracks=%d loop=%v",
		m, settings.PlaybackMode, len(tracks), settings.Loop)

	t, ok := c.engine.Next()
	if !ok {
		c.idleLocked()
		return notFoundf("queue for mood %s is empty", m)
	}
	return c.armLocked(t, autoplay, nil)
}

// armLocked commits Loading first, then the new track. The play intent and
// any crossfade wait for the renderer's ready report.
func (c *Controller) armLocked(t track.Track, autoplay bool, fadeFrom *track.Track) error {
	c.fader.Stop()
	c.stopTimersLocked()

	preview := []track.Track{}
	if c.engine != nil {
		preview = c.engine.Peek(c.config.QueuePreview)
	}
	c.store.Mutate(state.Patch{
		IsLoading: lo.ToPtr(true),
		IsPlaying: lo.ToPtr(false),
		Queue:     &preview,
	})

	st, err := c.store.SetTrack(t)
	if err != nil {
		c.idleLocked()
		return errors.Wrap(err, "failed to arm track")
	}

	c.autoplay = autoplay
	c.pendingFade = nil
	if fadeFrom != nil && autoplay && st.CrossfadeDuration > 0 {
		c.pendingFade = &fadePlan{from: *fadeFrom, to: t}
	}
	c.obs.TrackArmed(t.Mood)
	zlog.Info().Msgf("playback: track armed: track=%s mood=%s seq=%d autoplay=%v crossfade=%v",
		t.ID, t.Mood, st.TrackSeq, autoplay, c.pendingFade != nil)

	if c.config.LoadTimeout > 0 {
		seq := st.TrackSeq
		c.loadTimer = c.clock.AfterFunc(c.config.LoadTimeout, func() {
			c.dispatchInternal(loadTimeout{seq: seq})
		})
	}
	return nil
}

func (c *Controller) nextLocked() error {
	if c.awaitingLibrary {
		return nil
	}
	st := c.store.State()
	autoplay := c.playingIntentLocked(st)
	if c.engine == nil || c.engineMood != st.CurrentMood {
		c.haltLocked()
		return c.loadMoodLocked(st.CurrentMood, autoplay)
	}
	return c.advanceLocked(st, autoplay, true)
}

// advanceLocked arms the next queued track. With fade set and the outgoing
// track audible, a crossfade starts once the new track is ready.
func (c *Controller) advanceLocked(st state.State, autoplay, fade bool) error {
	t, ok := c.engine.Next()
	if !ok {
		c.idleLocked()
		zlog.Warn().Msgf("playback: queue exhausted: mood=%s", st.CurrentMood)
		return notFoundf("queue exhausted for mood %s", st.CurrentMood)
	}

	var from *track.Track
	if st.CurrentTrack != nil {
		prev := *st.CurrentTrack
		c.previous = &prev
		if fade && st.IsPlaying {
			from = &prev
		}
	}
	return c.armLocked(t, autoplay, from)
}

func (c *Controller) previousLocked() error {
	st := c.store.State()
	if st.CurrentTrack == nil {
		return notFoundf("no current track")
	}

	target := *st.CurrentTrack
	if c.previous != nil && st.Elapsed <= c.config.PreviousRestart.Seconds() {
		target = *c.previous
		c.previous = nil
	}
	return c.armLocked(target, c.playingIntentLocked(st), nil)
}

func (c *Controller) playLocked() error {
	st := c.store.State()
	switch {
	case c.awaitingLibrary:
		c.autoplay = true
		c.store.Mutate(state.Patch{})
		return nil
	case st.CurrentTrack == nil:
		c.haltLocked()
		return c.loadMoodLocked(st.CurrentMood, true)
	case st.IsLoading:
		// Stay in Loading; play once the renderer confirms.
		c.autoplay = true
		c.store.Mutate(state.Patch{})
		return nil
	default:
		c.store.Play()
		c.startProgressLocked(st.TrackSeq)
		return nil
	}
}

func (c *Controller) pauseLocked() {
	c.autoplay = false
	c.pendingFade = nil
	c.fader.Stop()
	c.stopProgressLocked()
	c.store.Pause()
}

// setObsActiveLocked hands the audio to OBS and back. Handing it back does
// not resume; the user presses play.
func (c *Controller) setObsActiveLocked(active bool) {
	if active && c.playingIntentLocked(c.store.State()) {
		c.pauseLocked()
	}
	c.store.Mutate(state.Patch{ObsActive: &active})
	zlog.Info().Msgf("playback: obs control: active=%v", active)
}

// setModeLocked drops the old source's track right away, so renderer reports
// for it go stale, and stays Loading until the new library is scanned.
func (c *Controller) setModeLocked(m state.Mode) (*libraryLoad, error) {
	if _, err := state.ParseMode(string(m)); err != nil {
		return nil, errors.Mark(err, ErrValidation)
	}

	autoplay := c.playingIntentLocked(c.store.State())
	c.haltLocked()
	c.engine = nil
	c.engineMood = ""
	c.previous = nil
	c.store.Mutate(state.Patch{
		Mode:       &m,
		ClearTrack: true,
		IsLoading:  lo.ToPtr(true),
		IsPlaying:  lo.ToPtr(false),
		Queue:      lo.ToPtr([]track.Track{}),
	})
	c.autoplay = autoplay
	zlog.Info().Msgf("playback: mode switched: mode=%s autoplay=%v", m, autoplay)

	load, err := c.prepareLoadLocked(m, c.store.LibraryRoot(), true)
	if err != nil {
		c.idleLocked()
		return nil, err
	}
	return load, nil
}

func (c *Controller) applyPreferencesLocked(p state.Preferences) (*libraryLoad, error) {
	c.idleLocked()
	c.engine = nil
	c.engineMood = ""
	c.store.LoadPreferences(p)

	st := c.store.State()
	zlog.Info().Msgf("playback: preferences applied: mode=%s mood=%s root=%s", st.Mode, st.CurrentMood, c.store.LibraryRoot())
	return c.prepareLoadLocked(st.Mode, c.store.LibraryRoot(), false)
}

func (c *Controller) reportProgressLocked(r ReportProgress) error {
	if r.TrackID == "" {
		return validationf("trackId is required")
	}
	st := c.store.State()
	if !c.pinnedLocked(st, r.TrackID, r.Seq, r.Name()) {
		return nil
	}

	patch := state.Patch{Elapsed: r.Elapsed, Duration: r.Duration}
	ready := r.ClearLoading && st.IsLoading
	autoplay := c.autoplay
	if ready {
		c.stopLoadTimerLocked()
		patch.IsLoading = lo.ToPtr(false)
		if autoplay {
			patch.IsPlaying = lo.ToPtr(true)
		}
	}
	next := c.store.Mutate(patch)

	if ready {
		c.autoplay = false
		zlog.Debug().Msgf("playback: track ready: track=%s seq=%d playing=%v", r.TrackID, next.TrackSeq, next.IsPlaying)
		if autoplay {
			c.startFadeLocked()
			c.startProgressLocked(next.TrackSeq)
		} else {
			c.pendingFade = nil
		}
	}
	return nil
}

func (c *Controller) reportEndedLocked(r ReportEnded) error {
	if r.TrackID == "" {
		return validationf("trackId is required")
	}
	st := c.store.State()
	if !c.pinnedLocked(st, r.TrackID, r.Seq, r.Name()) {
		return nil
	}

	zlog.Debug().Msgf("playback: track ended: track=%s", r.TrackID)
	c.stopProgressLocked()
	autoplay := c.playingIntentLocked(st)
	if c.engine == nil || c.engineMood != st.CurrentMood {
		c.haltLocked()
		return c.loadMoodLocked(st.CurrentMood, autoplay)
	}
	return c.advanceLocked(st, autoplay, false)
}

func (c *Controller) reportFailureLocked(r ReportFailure) error {
	if r.TrackID == "" {
		return validationf("trackId is required")
	}
	st := c.store.State()
	if !c.pinnedLocked(st, r.TrackID, r.Seq, r.Name()) {
		return nil
	}
	c.failLocked(r.TrackID, r.Reason)
	return nil
}

func (c *Controller) loadTimeoutLocked(seq uint64) {
	st := c.store.State()
	if !st.IsLoading || st.TrackSeq != seq {
		return
	}
	c.failLocked(st.CurrentTrackID(), "renderer did not confirm the track in time")
}

// failLocked pauses without retrying. Clients learn about it from the state.
func (c *Controller) failLocked(trackID, reason string) {
	zlog.Warn().Msgf("playback: renderer failure: track=%s reason=%s", trackID, reason)
	c.haltLocked()
	c.store.Mutate(state.Patch{IsPlaying: lo.ToPtr(false), IsLoading: lo.ToPtr(false)})
}

func (c *Controller) progressTickLocked(tick progressTick) error {
	if tick.gen != c.progressGen {
		return nil
	}
	seq := tick.seq
	st := c.store.State()
	if st.TrackSeq != seq || !st.IsPlaying || st.IsLoading || st.CurrentTrack == nil {
		return nil
	}

	elapsed := st.Elapsed + c.config.ProgressTick.Seconds()
	if st.Duration > 0 && elapsed >= st.Duration {
		return c.reportEndedLocked(ReportEnded{TrackID: st.CurrentTrack.ID, Seq: seq})
	}
	c.store.UpdateProgress(&elapsed, nil)
	return nil
}

// reloadLibraryLocked rescans the current mode. A rescan started while a mode
// switch is waiting takes over arming the mood.
func (c *Controller) reloadLibraryLocked(root string) (*libraryLoad, error) {
	if root == "" {
		root = c.store.LibraryRoot()
	}
	return c.prepareLoadLocked(c.store.State().Mode, root, c.awaitingLibrary)
}

func (c *Controller) prepareLoadLocked(mode state.Mode, root string, arm bool) (*libraryLoad, error) {
	if c.source == nil {
		return nil, errors.New("no library source configured")
	}
	c.libGen++
	c.awaitingLibrary = arm
	return &libraryLoad{gen: c.libGen, mode: mode, root: root, arm: arm}, nil
}

// finishLoad runs the scan without the command lock and installs the result
// unless a newer scan or install superseded it.
func (c *Controller) finishLoad(ctx context.Context, l *libraryLoad) error {
	lib, err := c.source.Load(ctx, l.mode, l.root)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if l.gen != c.libGen {
		zlog.Debug().Msgf("playback: superseded library scan dropped: mode=%s root=%s", l.mode, l.root)
		return nil
	}
	c.awaitingLibrary = false

	if err != nil {
		zlog.Error().Msgf("playback: library load failed: mode=%s root=%s err=%v", l.mode, l.root, err)
		if l.arm {
			c.engine = nil
			c.engineMood = ""
			c.idleLocked()
		}
		return errors.Wrapf(err, "failed to load %s library", l.mode)
	}

	c.store.SetLibrary(lib, l.root)
	zlog.Info().Msgf("playback: library loaded: mode=%s root=%s moods=%d tracks=%d", l.mode, l.root, len(lib), lib.TrackCount())
	if l.arm {
		return c.loadMoodLocked(c.store.State().CurrentMood, c.autoplay)
	}
	c.refreshEngineLocked()
	return nil
}

// setLibraryLocked installs a library scanned elsewhere. It supersedes any
// scan still in flight.
func (c *Controller) setLibraryLocked(lib library.Library, root string) error {
	c.libGen++
	c.store.SetLibrary(lib, root)
	if c.awaitingLibrary {
		c.awaitingLibrary = false
		return c.loadMoodLocked(c.store.State().CurrentMood, c.autoplay)
	}
	c.refreshEngineLocked()
	return nil
}

// refreshEngineLocked hot-swaps the current queue's source after a library change.
func (c *Controller) refreshEngineLocked() {
	st := c.store.State()
	if c.engine == nil || c.engineMood != st.CurrentMood {
		return
	}
	c.engine.UpdateTracks(c.store.Library().Tracks(st.CurrentMood))
	c.store.SetQueue(c.engine.Peek(c.config.QueuePreview))
}

func (c *Controller) updateSettingsLocked(patch state.SettingsPatch) error {
	before := c.store.Settings()
	after, err := c.store.UpdateSettings(patch)
	if err != nil {
		return errors.Mark(err, ErrValidation)
	}
	if c.engine == nil {
		return nil
	}

	switch {
	case after.PlaybackMode != before.PlaybackMode:
		c.engine = queue.New(after.PlaybackMode, c.store.Library().Tracks(c.engineMood), after.Loop, c.rng)
		zlog.Info().Msgf("playback: queue strategy changed: strategy=%s", after.PlaybackMode)
	case after.Loop != before.Loop:
		c.engine.SetLoop(after.Loop)
	default:
		return nil
	}
	c.store.SetQueue(c.engine.Peek(c.config.QueuePreview))
	return nil
}

// pinnedLocked reports whether a renderer report refers to the armed track.
func (c *Controller) pinnedLocked(st state.State, trackID string, seq uint64, kind string) bool {
	if st.CurrentTrack != nil && st.CurrentTrack.ID == trackID && (seq == 0 || seq == st.TrackSeq) {
		return true
	}
	c.obs.StaleReport(kind)
	zlog.Debug().Msgf("playback: stale report dropped: kind=%s track=%s seq=%d current=%s current_seq=%d",
		kind, trackID, seq, st.CurrentTrackID(), st.TrackSeq)
	return false
}

func (c *Controller) startFadeLocked() {
	plan := c.pendingFade
	c.pendingFade = nil
	if plan == nil {
		return
	}
	d := time.Duration(c.store.Settings().CrossfadeDuration) * time.Millisecond
	if d <= 0 {
		return
	}

	from, to := plan.from.ID, plan.to.ID
	c.obs.CrossfadeStarted()
	c.fader.Start(d, func(f crossfade.Frame) {
		c.store.PublishCrossfade(state.Crossfade{
			FromTrackID: from, ToTrackID: to,
			FadeOut: f.Out, FadeIn: f.In,
			Step: f.Step, Steps: f.Steps,
		})
	}, func(f crossfade.Frame) {
		c.store.PublishCrossfade(state.Crossfade{
			FromTrackID: from, ToTrackID: to,
			FadeOut: f.Out, FadeIn: f.In,
			Step: f.Step, Steps: f.Steps, Done: true,
		})
		zlog.Debug().Msgf("playback: crossfade complete: from=%s to=%s", from, to)
	})
}

func (c *Controller) startProgressLocked(seq uint64) {
	c.stopProgressLocked()
	if c.config.ProgressTick <= 0 {
		return
	}
	tick := progressTick{seq: seq, gen: c.progressGen}
	c.progressTimer = c.clock.Every(c.config.ProgressTick, func() {
		c.dispatchInternal(tick)
	})
}

// idleLocked leaves a safe paused state: nothing armed, nothing loading.
func (c *Controller) idleLocked() {
	c.haltLocked()
	c.store.Mutate(state.Patch{
		ClearTrack: true,
		IsPlaying:  lo.ToPtr(false),
		IsLoading:  lo.ToPtr(false),
		Queue:      lo.ToPtr([]track.Track{}),
	})
}

// haltLocked cancels the crossfade, timers and any pending play intent.
func (c *Controller) haltLocked() {
	c.fader.Stop()
	c.stopTimersLocked()
	c.pendingFade = nil
	c.autoplay = false
}

func (c *Controller) stopTimersLocked() {
	c.stopLoadTimerLocked()
	c.stopProgressLocked()
}

func (c *Controller) stopLoadTimerLocked() {
	if c.loadTimer != nil {
		c.loadTimer.Stop()
		c.loadTimer = nil
	}
}

// stopProgressLocked also retires ticks already queued behind the lock.
func (c *Controller) stopProgressLocked() {
	c.progressGen++
	if c.progressTimer != nil {
		c.progressTimer.Stop()
		c.progressTimer = nil
	}
}

// dispatchInternal feeds a timer-driven command back through Dispatch.
func (c *Controller) dispatchInternal(cmd Command) {
	if err := c.Dispatch(context.Background(), cmd); err != nil && !errors.Is(err, ErrClosed) {
		zlog.Warn().Msgf("playback: %s failed: %v", cmd.Name(), err)
	}
}
