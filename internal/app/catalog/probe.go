package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned by BeepProber for formats it cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// BeepProber decodes MP3 and WAV headers to find a track's length. Other
// formats report ErrUnsupportedFormat.
type BeepProber struct{}

// Probe implements Prober.
func (BeepProber) Probe(path string) (time.Duration, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".mp3" && ext != ".wav" {
		return 0, errors.Wrapf(ErrUnsupportedFormat, "ext=%s", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %s", path)
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		streamer, format, err = wav.Decode(f)
	}
	if err != nil {
		_ = f.Close()
		return 0, errors.Wrapf(err, "failed to decode %s", path)
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()), nil
}
