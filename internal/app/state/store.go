package state

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
)

// Errors
var (
	ErrMoodMismatch    = errors.New("track mood does not match current mood")
	ErrInvalidSettings = errors.New("invalid settings")
)

type subscriber struct {
	id   uint64
	kind Kind
	all  bool
	fn   Handler
}

// Store holds the playback state, settings and library. All playback state
// changes go through Mutate or one of its wrappers; every change emits
// StateChanged with a snapshot.
type Store struct {
	// notifyMu serializes commit+notify so subscribers observe changes in
	// commit order.
	notifyMu sync.Mutex

	mu          sync.RWMutex
	state       State
	settings    Settings
	library     library.Library
	libraryRoot string

	subsMu  sync.RWMutex
	subs    []subscriber
	nextSub uint64

	validate *validator.Validate
}

// New creates a store with safe defaults.
func New() *Store {
	return &Store{
		state:    Initial(),
		settings: DefaultSettings(),
		validate: validator.New(),
	}
}

// State returns a snapshot of the playback state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Library returns a copy of the library.
func (s *Store) Library() library.Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.library.Clone()
}

// LibraryRoot returns the root the library was scanned from.
func (s *Store) LibraryRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.libraryRoot
}

// On registers a handler for one kind of event and returns its cancel func.
func (s *Store) On(kind Kind, h Handler) func() {
	return s.addSubscriber(subscriber{kind: kind, fn: h})
}

// Subscribe registers a handler for every event.
func (s *Store) Subscribe(h Handler) func() {
	return s.addSubscriber(subscriber{all: true, fn: h})
}

func (s *Store) addSubscriber(sub subscriber) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.nextSub++
	sub.id = s.nextSub
	s.subs = append(s.subs, sub)

	id := sub.id
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		s.subs = lo.Reject(s.subs, func(x subscriber, _ int) bool { return x.id == id })
	}
}

func (s *Store) emit(e Event) {
	s.subsMu.RLock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.RUnlock()

	for _, sub := range subs {
		if sub.all || sub.kind == e.Kind() {
			sub.fn(e)
		}
	}
}

// update applies fn under the lock, normalizes, then emits StateChanged
// followed by any extra events fn returned. If fn returns an error the state
// is left untouched and nothing is emitted.
func (s *Store) update(fn func(st *State) ([]Event, error)) (State, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	extra, err := fn(&s.state)
	if err != nil {
		snap := s.state.Clone()
		s.mu.Unlock()
		return snap, err
	}
	normalize(&s.state)
	snap := s.state.Clone()
	s.mu.Unlock()

	s.emit(StateChanged{State: snap})
	for _, e := range extra {
		s.emit(e)
	}
	return snap, nil
}

// Mutate merges a patch into the state and returns the normalized snapshot.
func (s *Store) Mutate(p Patch) State {
	snap, _ := s.update(func(st *State) ([]Event, error) {
		var extra []Event
		if p.Mode != nil && *p.Mode != st.Mode {
			extra = append(extra, ModeChanged{Previous: st.Mode, Current: *p.Mode})
			st.Mode = *p.Mode
		}
		if p.CurrentMood != nil && *p.CurrentMood != st.CurrentMood {
			extra = append(extra, MoodChanged{Previous: st.CurrentMood, Current: *p.CurrentMood})
			st.CurrentMood = *p.CurrentMood
		}
		if p.ClearTrack {
			clearTrack(st)
		}
		if p.Track != nil {
			arm(st, *p.Track)
		}
		if p.IsPlaying != nil {
			st.IsPlaying = *p.IsPlaying
		}
		if p.IsLoading != nil {
			st.IsLoading = *p.IsLoading
		}
		if p.IsMuted != nil {
			st.IsMuted = *p.IsMuted
		}
		if p.Elapsed != nil {
			st.Elapsed = *p.Elapsed
		}
		if p.Duration != nil {
			st.Duration = *p.Duration
		}
		if p.Volume != nil && !math.IsNaN(*p.Volume) {
			st.Volume = *p.Volume
		}
		if p.CrossfadeDuration != nil {
			st.CrossfadeDuration = *p.CrossfadeDuration
		}
		if p.Queue != nil {
			st.Queue = append([]track.Track(nil), (*p.Queue)...)
		}
		if p.ObsActive != nil {
			st.ObsActive = *p.ObsActive
		}
		return extra, nil
	})
	return snap
}

// SetMood switches the mood: loading starts, and the track, queue and
// progress are cleared.
func (s *Store) SetMood(m mood.ID) State {
	snap, _ := s.update(func(st *State) ([]Event, error) {
		var extra []Event
		if m != st.CurrentMood {
			extra = append(extra, MoodChanged{Previous: st.CurrentMood, Current: m})
		}
		st.CurrentMood = m
		st.IsLoading = true
		clearTrack(st)
		st.Queue = []track.Track{}
		return extra, nil
	})
	return snap
}

// SetTrack arms t as the current track. The caller owns IsLoading.
func (s *Store) SetTrack(t track.Track) (State, error) {
	return s.update(func(st *State) ([]Event, error) {
		if t.Mood != st.CurrentMood {
			return nil, errors.Wrapf(ErrMoodMismatch, "track %s is %s, current mood is %s", t.ID, t.Mood, st.CurrentMood)
		}
		arm(st, t)
		return nil, nil
	})
}

// SetQueue replaces the queue preview.
func (s *Store) SetQueue(q []track.Track) State {
	return s.Mutate(Patch{Queue: &q})
}

// Play sets isPlaying. It always emits, even when already playing.
func (s *Store) Play() State {
	return s.Mutate(Patch{IsPlaying: lo.ToPtr(true)})
}

// Pause clears isPlaying. It always emits.
func (s *Store) Pause() State {
	return s.Mutate(Patch{IsPlaying: lo.ToPtr(false)})
}

// TogglePlay flips isPlaying.
func (s *Store) TogglePlay() State {
	snap, _ := s.update(func(st *State) ([]Event, error) {
		st.IsPlaying = !st.IsPlaying
		return nil, nil
	})
	return snap
}

// Mute sets isMuted.
func (s *Store) Mute() State {
	return s.Mutate(Patch{IsMuted: lo.ToPtr(true)})
}

// Unmute clears isMuted.
func (s *Store) Unmute() State {
	return s.Mutate(Patch{IsMuted: lo.ToPtr(false)})
}

// ToggleMute flips isMuted.
func (s *Store) ToggleMute() State {
	snap, _ := s.update(func(st *State) ([]Event, error) {
		st.IsMuted = !st.IsMuted
		return nil, nil
	})
	return snap
}

// SetVolume sets the volume, clamped to [0, 1]. NaN is ignored.
func (s *Store) SetVolume(v float64) State {
	return s.Mutate(Patch{Volume: &v})
}

// UpdateProgress records playback position. Nil values are left unchanged.
func (s *Store) UpdateProgress(elapsed, duration *float64) State {
	return s.Mutate(Patch{Elapsed: elapsed, Duration: duration})
}

// SetMode switches the source mode and starts loading.
func (s *Store) SetMode(m Mode) State {
	return s.Mutate(Patch{Mode: &m, IsLoading: lo.ToPtr(true)})
}

// UpdateSettings merges a settings patch. The state's crossfade duration
// follows the settings.
func (s *Store) UpdateSettings(p SettingsPatch) (Settings, error) {
	s.mu.RLock()
	next := p.Apply(s.settings)
	s.mu.RUnlock()

	if err := s.validate.Struct(next); err != nil {
		return Settings{}, errors.Mark(errors.Wrap(err, "settings validation failed"), ErrInvalidSettings)
	}
	s.replaceSettings(next, nil)
	return next, nil
}

func (s *Store) replaceSettings(next Settings, apply func(st *State)) {
	_, _ = s.update(func(st *State) ([]Event, error) {
		s.settings = next
		st.CrossfadeDuration = next.CrossfadeDuration
		if apply != nil {
			apply(st)
		}
		return []Event{SettingsChanged{Settings: next}}, nil
	})
}

// SetLibrary replaces the library.
func (s *Store) SetLibrary(lib library.Library, root string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.library = lib.Clone()
	s.libraryRoot = root
	snap := s.library.Clone()
	s.mu.Unlock()

	s.emit(LibraryChanged{Library: snap, Root: root})
}

// PublishCrossfade emits a crossfade gain update. It does not change state.
func (s *Store) PublishCrossfade(c Crossfade) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.emit(CrossfadeChanged{Crossfade: c})
}

// LoadPreferences applies persisted preferences. Invalid settings fall back
// to defaults; an unknown mode or mood is ignored.
func (s *Store) LoadPreferences(p Preferences) {
	settings := p.Settings
	if err := s.validate.Struct(settings); err != nil {
		settings = DefaultSettings()
	}

	s.mu.Lock()
	if p.LibraryRoot != "" {
		s.libraryRoot = p.LibraryRoot
	}
	s.mu.Unlock()

	s.replaceSettings(settings, func(st *State) {
		if !math.IsNaN(p.Volume) {
			st.Volume = p.Volume
		}
		if _, err := ParseMode(string(p.Mode)); err == nil {
			st.Mode = p.Mode
		}
		if p.LastMood.Valid() && p.LastMood != st.CurrentMood {
			st.CurrentMood = p.LastMood
			clearTrack(st)
		}
	})
}

// ExportPreferences returns the persistable subset of the current state.
func (s *Store) ExportPreferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Preferences{
		LibraryRoot: s.libraryRoot,
		Settings:    s.settings,
		Volume:      s.state.Volume,
		Mode:        s.state.Mode,
		LastMood:    s.state.CurrentMood,
	}
}

func arm(st *State, t track.Track) {
	st.CurrentTrack = &t
	st.Elapsed = 0
	st.Duration = t.Duration
	st.TrackSeq++
}

func clearTrack(st *State) {
	st.CurrentTrack = nil
	st.Elapsed = 0
	st.Duration = 0
	st.Progress = 0
}

// normalize restores the state invariants after a merge.
func normalize(st *State) {
	st.Volume = clamp(st.Volume, 0, 1)
	if math.IsNaN(st.Elapsed) || st.Elapsed < 0 {
		st.Elapsed = 0
	}
	if math.IsNaN(st.Duration) || st.Duration < 0 {
		st.Duration = 0
	}
	if st.Duration > 0 {
		st.Progress = clamp(st.Elapsed/st.Duration, 0, 1)
	} else {
		st.Progress = 0
	}
	if st.CurrentTrack != nil && st.CurrentTrack.Mood != st.CurrentMood {
		clearTrack(st)
	}
	if st.CrossfadeDuration < 0 {
		st.CrossfadeDuration = 0
	}
	if st.Queue == nil {
		st.Queue = []track.Track{}
	}
}

func clamp(v, low, high float64) float64 {
	if math.IsNaN(v) {
		return low
	}
	return math.Max(low, math.Min(high, v))
}
