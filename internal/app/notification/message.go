// Package notification provides the hub that pushes playback state to
// connected clients.
package notification

import (
	"time"

	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/library"
)

// Message types pushed to clients.
const (
	TypeState     = "state"
	TypeSettings  = "settings"
	TypeLibrary   = "library"
	TypeCrossfade = "crossfade"
	TypePong      = "pong"
	TypeError     = "error"
)

// Message is one push message. Only the fields for Type are set.
type Message struct {
	Type      string           `json:"type"`
	Seq       uint64           `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	State     *state.State     `json:"state,omitempty"`
	Settings  *state.Settings  `json:"settings,omitempty"`
	Tokens    *state.Tokens    `json:"tokens,omitempty"`
	Library   library.Library  `json:"library,omitempty"`
	Root      string           `json:"root,omitempty"`
	Crossfade *state.Crossfade `json:"crossfade,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// StateMessage builds a state push. settings is optional.
func StateMessage(st state.State, settings *state.Settings) Message {
	tokens := state.BuildTokens(st)
	return Message{Type: TypeState, State: &st, Settings: settings, Tokens: &tokens}
}

// Snapshot builds the full state message sent to a new subscriber.
func Snapshot(store *state.Store) Message {
	settings := store.Settings()
	return StateMessage(store.State(), &settings)
}

// ErrorMessage builds an error reply for a rejected inbound command.
func ErrorMessage(err error) Message {
	return Message{Type: TypeError, Error: err.Error()}
}

// FromEvent converts a store event into a push message. Mood and mode
// changes are already covered by the preceding state message.
func FromEvent(e state.Event) (Message, bool) {
	switch e := e.(type) {
	case state.StateChanged:
		return StateMessage(e.State, nil), true
	case state.SettingsChanged:
		return Message{Type: TypeSettings, Settings: &e.Settings}, true
	case state.LibraryChanged:
		return Message{Type: TypeLibrary, Library: e.Library, Root: e.Root}, true
	case state.CrossfadeChanged:
		return Message{Type: TypeCrossfade, Crossfade: &e.Crossfade}, true
	case state.MoodChanged, state.ModeChanged:
		return Message{}, false
	default:
		return Message{}, false
	}
}
