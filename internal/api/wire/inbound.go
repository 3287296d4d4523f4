// Package wire decodes the inbound command messages shared by the REST,
// WebSocket and Connect surfaces.
package wire

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/openfm/internal/app/playback"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/mood"
)

// Inbound message types.
const (
	TypePing       = "ping"
	TypeSetMood    = "setMood"
	TypePlay       = "play"
	TypePause      = "pause"
	TypeTogglePlay = "togglePlay"
	TypeNext       = "next"
	TypePrevious   = "previous"
	TypeToggleMute = "toggleMute"
	TypeMute       = "mute"
	TypeUnmute     = "unmute"
	TypeSetVolume  = "setVolume"
	TypeSetMode    = "setMode"
	TypeProgress   = "progress"
	TypeEnded      = "ended"
	TypeFailure    = "failure"
	TypeObsActive  = "setObsActive"
)

// Inbound is one command message from a client. Only the fields used by
// Type need to be set.
type Inbound struct {
	Type         string   `json:"type"`
	Mood         string   `json:"mood,omitempty"`
	Volume       *float64 `json:"volume,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	TrackID      string   `json:"trackId,omitempty"`
	Seq          uint64   `json:"seq,omitempty"`
	Elapsed      *float64 `json:"elapsed,omitempty"`
	Duration     *float64 `json:"duration,omitempty"`
	ClearLoading bool     `json:"clearLoading,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Active       *bool    `json:"active,omitempty"`
}

// Command converts the message into a controller command. Malformed
// messages return an error marked playback.ErrValidation.
func (in Inbound) Command() (playback.Command, error) {
	switch in.Type {
	case TypeSetMood:
		if in.Mood == "" {
			return nil, invalid("mood required")
		}
		m, err := mood.Parse(in.Mood)
		if err != nil {
			return nil, errors.Mark(err, playback.ErrValidation)
		}
		return playback.SelectMood{Mood: m}, nil
	case TypePlay:
		return playback.Play{}, nil
	case TypePause:
		return playback.Pause{}, nil
	case TypeTogglePlay:
		return playback.Toggle{}, nil
	case TypeNext:
		return playback.Next{}, nil
	case TypePrevious:
		return playback.Previous{}, nil
	case TypeToggleMute:
		return playback.ToggleMute{}, nil
	case TypeMute:
		return playback.Mute{}, nil
	case TypeUnmute:
		return playback.Unmute{}, nil
	case TypeSetVolume:
		if in.Volume == nil {
			return nil, invalid("volume required")
		}
		return playback.SetVolume{Volume: *in.Volume}, nil
	case TypeSetMode:
		m, err := state.ParseMode(in.Mode)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "valid mode required"), playback.ErrValidation)
		}
		return playback.SetMode{Mode: m}, nil
	case TypeProgress:
		return playback.ReportProgress{
			TrackID:      in.TrackID,
			Seq:          in.Seq,
			Elapsed:      in.Elapsed,
			Duration:     in.Duration,
			ClearLoading: in.ClearLoading,
		}, nil
	case TypeEnded:
		return playback.ReportEnded{TrackID: in.TrackID, Seq: in.Seq}, nil
	case TypeFailure:
		return playback.ReportFailure{TrackID: in.TrackID, Seq: in.Seq, Reason: in.Reason}, nil
	case TypeObsActive:
		if in.Active == nil {
			return nil, invalid("active required")
		}
		return playback.SetObsActive{Active: *in.Active}, nil
	case "":
		return nil, invalid("type required")
	default:
		return nil, invalid("unknown message type: " + in.Type)
	}
}

func invalid(msg string) error {
	return errors.Mark(errors.New(msg), playback.ErrValidation)
}

// restActions maps /api/playback/{action} to inbound message types.
var restActions = map[string]string{
	"mood":     TypeSetMood,
	"play":     TypePlay,
	"pause":    TypePause,
	"toggle":   TypeTogglePlay,
	"next":     TypeNext,
	"previous": TypePrevious,
	"mute":     TypeToggleMute,
	"volume":   TypeSetVolume,
	"mode":     TypeSetMode,
	"progress": TypeProgress,
	"ended":    TypeEnded,
	"failure":  TypeFailure,
}

// TypeForAction returns the message type for a REST playback action.
func TypeForAction(action string) (string, bool) {
	t, ok := restActions[action]
	return t, ok
}

// Transport actions accepted by the RPC surface.
var transportTypes = map[string]string{
	"play":     TypePlay,
	"pause":    TypePause,
	"toggle":   TypeTogglePlay,
	"next":     TypeNext,
	"previous": TypePrevious,
	"mute":     TypeToggleMute,
	"unmute":   TypeUnmute,
}

// TransportCommand returns the command for an RPC transport action.
func TransportCommand(action string) (playback.Command, error) {
	t, ok := transportTypes[action]
	if !ok {
		return nil, invalid("unknown transport action: " + action)
	}
	return Inbound{Type: t}.Command()
}
