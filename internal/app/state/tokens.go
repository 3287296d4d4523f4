package state

import (
	"fmt"
	"strings"
)

// Token status values.
const (
	StatusPlaying = "playing"
	StatusMuted   = "muted"
	StatusPaused  = "paused"
)

// Tokens are the overlay text values derived from the state.
type Tokens struct {
	Mode      string `json:"mode"`
	Mood      string `json:"mood"`
	Song      string `json:"song"`
	Status    string `json:"status"`
	Crossfade string `json:"crossfade"`
}

// BuildTokens derives overlay tokens. Muted takes precedence over playing.
func BuildTokens(st State) Tokens {
	status := StatusPaused
	switch {
	case st.IsMuted:
		status = StatusMuted
	case st.IsPlaying:
		status = StatusPlaying
	}

	var song string
	if st.CurrentTrack != nil {
		song = st.CurrentTrack.Title
	}

	var moodLabel string
	if st.CurrentMood != "" {
		moodLabel = st.CurrentMood.Label()
	}

	return Tokens{
		Mode:      string(st.Mode),
		Mood:      moodLabel,
		Song:      song,
		Status:    status,
		Crossfade: fmt.Sprintf("%dms", st.CrossfadeDuration),
	}
}

// Render replaces {openfm.<token>} placeholders in tmpl.
func (t Tokens) Render(tmpl string) string {
	return strings.NewReplacer(
		"{openfm.mode}", t.Mode,
		"{openfm.mood}", t.Mood,
		"{openfm.song}", t.Song,
		"{openfm.status}", t.Status,
		"{openfm.crossfade}", t.Crossfade,
	).Replace(tmpl)
}
