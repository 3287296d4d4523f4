package playback

import (
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
)

// Command is an input to the controller. The set of variants is closed and
// Dispatch handles each one explicitly.
type Command interface {
	// Name is a stable identifier used for logs and metrics.
	Name() string
	command()
}

// SelectMood switches to a mood and loads its first track.
type SelectMood struct {
	Mood mood.ID
}

// Play resumes playback, loading the current mood if nothing is armed.
type Play struct{}

// Pause pauses playback.
type Pause struct{}

// Toggle flips between Play and Pause.
type Toggle struct{}

// Next advances to the next track in the queue.
type Next struct{}

// Previous restarts the current track, or goes back one track when the
// current one has only just started.
type Previous struct{}

// ToggleMute flips the mute flag.
type ToggleMute struct{}

// Mute sets the mute flag.
type Mute struct{}

// Unmute clears the mute flag.
type Unmute struct{}

// SetVolume sets the output volume (clamped to [0, 1]).
type SetVolume struct {
	Volume float64
}

// SetMode switches the track source and reloads the library for it.
type SetMode struct {
	Mode state.Mode
}

// ReportProgress is a renderer fact about the pinned track. TrackID is
// required; Seq, when non-zero, must match the state's TrackSeq.
// ClearLoading confirms the track is ready to play.
type ReportProgress struct {
	TrackID      string
	Seq          uint64
	Elapsed      *float64
	Duration     *float64
	ClearLoading bool
}

// ReportEnded is a renderer fact: the pinned track finished playing.
type ReportEnded struct {
	TrackID string
	Seq     uint64
}

// ReportFailure is a renderer fact: the pinned track could not be played
// (autoplay blocked, decode error).
type ReportFailure struct {
	TrackID string
	Seq     uint64
	Reason  string
}

// ReloadLibrary rescans the library for the current mode. An empty Root
// keeps the current root.
type ReloadLibrary struct {
	Root string
}

// SetLibrary installs an already scanned library.
type SetLibrary struct {
	Library library.Library
	Root    string
}

// UpdateSettings merges a settings patch.
type UpdateSettings struct {
	Patch state.SettingsPatch
}

// ApplyPreferences replaces settings, volume, mode, mood and library root
// with a saved set and rescans the library. Playback stops.
type ApplyPreferences struct {
	Preferences state.Preferences
}

// SetObsActive records whether OBS has taken over the program audio.
// Activation pauses playback.
type SetObsActive struct {
	Active bool
}

// loadTimeout fires when the renderer never confirmed the armed track.
type loadTimeout struct {
	seq uint64
}

// progressTick advances elapsed time when no renderer reports progress.
type progressTick struct {
	seq uint64
	gen uint64 // ticker generation; a restarted ticker retires the old one's ticks
}

func (SelectMood) Name() string       { return "select_mood" }
func (Play) Name() string             { return "play" }
func (Pause) Name() string            { return "pause" }
func (Toggle) Name() string           { return "toggle" }
func (Next) Name() string             { return "next" }
func (Previous) Name() string         { return "previous" }
func (ToggleMute) Name() string       { return "toggle_mute" }
func (Mute) Name() string             { return "mute" }
func (Unmute) Name() string           { return "unmute" }
func (SetVolume) Name() string        { return "set_volume" }
func (SetMode) Name() string          { return "set_mode" }
func (ReportProgress) Name() string   { return "report_progress" }
func (ReportEnded) Name() string      { return "report_ended" }
func (ReportFailure) Name() string    { return "report_failure" }
func (ReloadLibrary) Name() string    { return "reload_library" }
func (SetLibrary) Name() string       { return "set_library" }
func (UpdateSettings) Name() string   { return "update_settings" }
func (ApplyPreferences) Name() string { return "apply_preferences" }
func (SetObsActive) Name() string     { return "set_obs_active" }
func (loadTimeout) Name() string      { return "load_timeout" }
func (progressTick) Name() string     { return "progress_tick" }

func (SelectMood) command()       {}
func (Play) command()             {}
func (Pause) command()            {}
func (Toggle) command()           {}
func (Next) command()             {}
func (Previous) command()         {}
func (ToggleMute) command()       {}
func (Mute) command()             {}
func (Unmute) command()           {}
func (SetVolume) command()        {}
func (SetMode) command()          {}
func (ReportProgress) command()   {}
func (ReportEnded) command()      {}
func (ReportFailure) command()    {}
func (ReloadLibrary) command()    {}
func (SetLibrary) command()       {}
func (UpdateSettings) command()   {}
func (ApplyPreferences) command() {}
func (SetObsActive) command()     {}
func (loadTimeout) command()      {}
func (progressTick) command()     {}
