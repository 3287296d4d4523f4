package wire

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/openfm/internal/app/playback"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/mood"
)

func TestInbound_Command(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected playback.Command
	}{
		{name: "set mood", input: `{"type":"setMood","mood":"Sad"}`, expected: playback.SelectMood{Mood: mood.Sad}},
		{name: "play", input: `{"type":"play"}`, expected: playback.Play{}},
		{name: "pause", input: `{"type":"pause"}`, expected: playback.Pause{}},
		{name: "toggle", input: `{"type":"togglePlay"}`, expected: playback.Toggle{}},
		{name: "next", input: `{"type":"next"}`, expected: playback.Next{}},
		{name: "previous", input: `{"type":"previous"}`, expected: playback.Previous{}},
		{name: "toggle mute", input: `{"type":"toggleMute"}`, expected: playback.ToggleMute{}},
		{name: "mute", input: `{"type":"mute"}`, expected: playback.Mute{}},
		{name: "unmute", input: `{"type":"unmute"}`, expected: playback.Unmute{}},
		{name: "volume above range is passed on for clamping", input: `{"type":"setVolume","volume":1.4}`, expected: playback.SetVolume{Volume: 1.4}},
		{name: "zero volume", input: `{"type":"setVolume","volume":0}`, expected: playback.SetVolume{Volume: 0}},
		{name: "mode", input: `{"type":"setMode","mode":"spotify"}`, expected: playback.SetMode{Mode: state.ModeSpotify}},
		{
			name:  "progress",
			input: `{"type":"progress","trackId":"epic-a","seq":3,"elapsed":12.5,"duration":180,"clearLoading":true}`,
			expected: playback.ReportProgress{
				TrackID: "epic-a", Seq: 3, Elapsed: lo.ToPtr(12.5), Duration: lo.ToPtr(180.0), ClearLoading: true,
			},
		},
		{name: "ended", input: `{"type":"ended","trackId":"epic-a"}`, expected: playback.ReportEnded{TrackID: "epic-a"}},
		{
			name:     "failure",
			input:    `{"type":"failure","trackId":"epic-a","reason":"NotAllowedError"}`,
			expected: playback.ReportFailure{TrackID: "epic-a", Reason: "NotAllowedError"},
		},
		{name: "obs takes over", input: `{"type":"setObsActive","active":true}`, expected: playback.SetObsActive{Active: true}},
		{name: "obs hands back", input: `{"type":"setObsActive","active":false}`, expected: playback.SetObsActive{Active: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in Inbound
			require.NoError(t, json.Unmarshal([]byte(tt.input), &in))
			cmd, err := in.Command()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cmd)
		})
	}
}

func TestInbound_CommandInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input Inbound
	}{
		{name: "missing type", input: Inbound{}},
		{name: "unknown type", input: Inbound{Type: "rewind"}},
		{name: "missing mood", input: Inbound{Type: TypeSetMood}},
		{name: "unknown mood", input: Inbound{Type: TypeSetMood, Mood: "jazzy"}},
		{name: "missing volume", input: Inbound{Type: TypeSetVolume}},
		{name: "unknown mode", input: Inbound{Type: TypeSetMode, Mode: "suno"}},
		{name: "missing obs flag", input: Inbound{Type: TypeObsActive}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.input.Command()
			require.Error(t, err)
			assert.True(t, errors.Is(err, playback.ErrValidation))
		})
	}
}

func TestTypeForAction(t *testing.T) {
	typ, ok := TypeForAction("mute")
	assert.True(t, ok)
	assert.Equal(t, TypeToggleMute, typ)

	_, ok = TypeForAction("eject")
	assert.False(t, ok)
}

func TestTransportCommand(t *testing.T) {
	cmd, err := TransportCommand("unmute")
	require.NoError(t, err)
	assert.Equal(t, playback.Unmute{}, cmd)

	_, err = TransportCommand("setMood")
	assert.True(t, errors.Is(err, playback.ErrValidation))
}
