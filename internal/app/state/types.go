// Package state provides the authoritative playback state store.
package state

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"

	"github.com/osa030/openfm/internal/app/queue"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
)

// Mode selects the source of tracks.
type Mode string

const (
	ModeLocal   Mode = "local"   // mood packs from the library root
	ModeSpotify Mode = "spotify" // alternate source backed by Spotify playlists
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown mode")

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLocal, ModeSpotify:
		return m, nil
	default:
		return "", errors.Wrapf(ErrUnknownMode, "%q", s)
	}
}

// Defaults for a fresh store.
const (
	DefaultVolume            = 0.7
	DefaultCrossfadeDuration = 250 // ms
	DefaultQueuePreview      = 10
)

// State is the single authoritative playback state.
type State struct {
	Mode              Mode          `json:"mode"`
	CurrentMood       mood.ID       `json:"currentMood"`
	CurrentTrack      *track.Track  `json:"currentTrack"`
	IsPlaying         bool          `json:"isPlaying"`
	IsLoading         bool          `json:"isLoading"`
	IsMuted           bool          `json:"isMuted"`
	Elapsed           float64       `json:"elapsed"`  // seconds
	Duration          float64       `json:"duration"` // seconds
	Progress          float64       `json:"progress"` // elapsed / duration, 0..1
	Volume            float64       `json:"volume"`   // 0..1
	CrossfadeDuration int           `json:"crossfadeDuration"`
	Queue             []track.Track `json:"queue"`
	// ObsActive is set while OBS owns the program audio; playback is
	// paused when it takes over.
	ObsActive bool `json:"obsActive"`
	// TrackSeq increments every time a track is armed, so a renderer can tell
	// a restart of the same track from the track still being loaded.
	TrackSeq uint64 `json:"trackSeq"`
}

// Initial returns the state of a fresh store: local mode, default mood,
// nothing loaded.
func Initial() State {
	return State{
		Mode:              ModeLocal,
		CurrentMood:       mood.Default,
		Volume:            DefaultVolume,
		CrossfadeDuration: DefaultCrossfadeDuration,
		Queue:             []track.Track{},
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		s.CurrentTrack = &t
	}
	s.Queue = append(make([]track.Track, 0, len(s.Queue)), s.Queue...)
	return s
}

// CurrentTrackID returns the ID of the armed track, or "".
func (s State) CurrentTrackID() string {
	if s.CurrentTrack == nil {
		return ""
	}
	return s.CurrentTrack.ID
}

// Settings are user-tunable player settings. Ducking values are carried for
// clients; the engine does not apply them.
type Settings struct {
	CrossfadeDuration int            `json:"crossfadeDuration" yaml:"crossfade_duration" mapstructure:"crossfade_duration" default:"250" validate:"gte=0,lte=10000"`
	TargetVolume      float64        `json:"targetVolume" yaml:"target_volume" mapstructure:"target_volume" default:"-10" validate:"lte=0"`
	DuckLevel         float64        `json:"duckLevel" yaml:"duck_level" mapstructure:"duck_level" default:"-20" validate:"lte=0"`
	DuckAttack        int            `json:"duckAttack" yaml:"duck_attack" mapstructure:"duck_attack" default:"10" validate:"gte=0"`
	DuckRelease       int            `json:"duckRelease" yaml:"duck_release" mapstructure:"duck_release" default:"250" validate:"gte=0"`
	AutoRescan        bool           `json:"autoRescan" yaml:"auto_rescan" mapstructure:"auto_rescan"`
	ShowOverlay       bool           `json:"showOverlay" yaml:"show_overlay" mapstructure:"show_overlay"`
	PlaybackMode      queue.Strategy `json:"playbackMode" yaml:"playback_mode" mapstructure:"playback_mode" default:"shuffle" validate:"oneof=shuffle random"`
	Loop              bool           `json:"loop" yaml:"loop" mapstructure:"loop"`
}

// DefaultSettings returns the factory settings.
func DefaultSettings() Settings {
	s := Settings{AutoRescan: true, ShowOverlay: true, Loop: true}
	_ = defaults.Set(&s)
	return s
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	CrossfadeDuration *int            `json:"crossfadeDuration,omitempty"`
	TargetVolume      *float64        `json:"targetVolume,omitempty"`
	DuckLevel         *float64        `json:"duckLevel,omitempty"`
	DuckAttack        *int            `json:"duckAttack,omitempty"`
	DuckRelease       *int            `json:"duckRelease,omitempty"`
	AutoRescan        *bool           `json:"autoRescan,omitempty"`
	ShowOverlay       *bool           `json:"showOverlay,omitempty"`
	PlaybackMode      *queue.Strategy `json:"playbackMode,omitempty"`
	Loop              *bool           `json:"loop,omitempty"`
}

// Apply returns s with the patch merged in.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.CrossfadeDuration != nil {
		s.CrossfadeDuration = *p.CrossfadeDuration
	}
	if p.TargetVolume != nil {
		s.TargetVolume = *p.TargetVolume
	}
	if p.DuckLevel != nil {
		s.DuckLevel = *p.DuckLevel
	}
	if p.DuckAttack != nil {
		s.DuckAttack = *p.DuckAttack
	}
	if p.DuckRelease != nil {
		s.DuckRelease = *p.DuckRelease
	}
	if p.AutoRescan != nil {
		s.AutoRescan = *p.AutoRescan
	}
	if p.ShowOverlay != nil {
		s.ShowOverlay = *p.ShowOverlay
	}
	if p.PlaybackMode != nil {
		s.PlaybackMode = *p.PlaybackMode
	}
	if p.Loop != nil {
		s.Loop = *p.Loop
	}
	return s
}

// Preferences is the persisted subset of settings and state.
type Preferences struct {
	LibraryRoot string   `json:"libraryRoot" yaml:"library_root"`
	Settings    Settings `json:"settings" yaml:"settings"`
	Volume      float64  `json:"volume" yaml:"volume"`
	Mode        Mode     `json:"mode" yaml:"mode"`
	LastMood    mood.ID  `json:"lastMood" yaml:"last_mood"`
}

// Patch is a partial state update for Store.Mutate; nil fields are left
// unchanged.
type Patch struct {
	Mode              *Mode
	CurrentMood       *mood.ID
	Track             *track.Track // arms a track: resets progress and bumps TrackSeq
	ClearTrack        bool
	IsPlaying         *bool
	IsLoading         *bool
	IsMuted           *bool
	Elapsed           *float64
	Duration          *float64
	Volume            *float64
	CrossfadeDuration *int
	Queue             *[]track.Track
	ObsActive         *bool
}
