package state

import (
	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
)

// Kind identifies an event variant.
type Kind int

const (
	KindState Kind = iota
	KindSettings
	KindLibrary
	KindMood
	KindMode
	KindCrossfade
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindSettings:
		return "settings"
	case KindLibrary:
		return "library"
	case KindMood:
		return "mood"
	case KindMode:
		return "mode"
	case KindCrossfade:
		return "crossfade"
	default:
		return "unknown"
	}
}

// Event is emitted by the store after a change. The set of variants is
// closed: StateChanged, SettingsChanged, LibraryChanged, MoodChanged,
// ModeChanged and CrossfadeChanged.
type Event interface {
	Kind() Kind
	sealed()
}

// StateChanged carries a snapshot taken right after the mutation.
type StateChanged struct {
	State State
}

// SettingsChanged carries the full settings after an update.
type SettingsChanged struct {
	Settings Settings
}

// LibraryChanged carries the new library.
type LibraryChanged struct {
	Library library.Library
	Root    string
}

// MoodChanged is emitted after StateChanged when the current mood changes.
type MoodChanged struct {
	Previous mood.ID
	Current  mood.ID
}

// ModeChanged is emitted after StateChanged when the source mode changes.
type ModeChanged struct {
	Previous Mode
	Current  Mode
}

// CrossfadeChanged carries one crossfade gain update for renderers.
type CrossfadeChanged struct {
	Crossfade Crossfade
}

// Crossfade describes the gains of an in-progress fade.
type Crossfade struct {
	FromTrackID string  `json:"fromTrackId"`
	ToTrackID   string  `json:"toTrackId"`
	FadeOut     float64 `json:"fadeOut"`
	FadeIn      float64 `json:"fadeIn"`
	Step        int     `json:"step"`
	Steps       int     `json:"steps"`
	Done        bool    `json:"done"`
}

func (StateChanged) Kind() Kind     { return KindState }
func (SettingsChanged) Kind() Kind  { return KindSettings }
func (LibraryChanged) Kind() Kind   { return KindLibrary }
func (MoodChanged) Kind() Kind      { return KindMood }
func (ModeChanged) Kind() Kind      { return KindMode }
func (CrossfadeChanged) Kind() Kind { return KindCrossfade }

func (StateChanged) sealed()     {}
func (SettingsChanged) sealed()  {}
func (LibraryChanged) sealed()   {}
func (MoodChanged) sealed()      {}
func (ModeChanged) sealed()      {}
func (CrossfadeChanged) sealed() {}

// Handler receives store events. Handlers run synchronously in registration
// order and must not mutate the store.
type Handler func(Event)
