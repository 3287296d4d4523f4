// Package queue provides track selection strategies for a mood's track list.
package queue

import (
	"math/rand/v2"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/openfm/internal/domain/track"
)

// Strategy names a selection algorithm.
type Strategy string

const (
	StrategyShuffle Strategy = "shuffle" // bag shuffle, no repeats within a pass
	StrategyRandom  Strategy = "random"  // independent draw with replacement
)

// ErrUnknownStrategy is returned by ParseStrategy.
var ErrUnknownStrategy = errors.New("unknown playback strategy")

// ParseStrategy converts a setting value to a Strategy. Shuffle deals every
// track once per pass. Random draws with replacement; without loop it ends
// after len(tracks) draws, so a track may repeat and another never play.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyShuffle:
		return StrategyShuffle, nil
	case StrategyRandom:
		return StrategyRandom, nil
	default:
		return "", errors.Wrapf(ErrUnknownStrategy, "%q", s)
	}
}

// Engine selects tracks from a source list. Implementations are safe for
// concurrent use. An empty source list never panics: Next reports false
// and Peek returns an empty slice.
type Engine interface {
	// Next consumes and returns the next track. It returns false at the end
	// of a non-looping queue.
	Next() (track.Track, bool)
	// Peek returns up to n upcoming tracks without consuming them. The
	// tracks returned are exactly what subsequent Next calls yield until
	// the source list or loop flag changes.
	Peek(n int) []track.Track
	// UpdateTracks hot-swaps the source list and re-derives internal state.
	UpdateTracks(tracks []track.Track)
	// SetLoop toggles end-of-queue behavior, keeping current progress.
	SetLoop(loop bool)
	// Remaining returns how many tracks are left before the queue needs a
	// refill (shuffle). For random without loop it is the draws left of the
	// len(tracks) draws that make up the pass; with loop it is len(tracks).
	Remaining() int
	Strategy() Strategy
}

// New creates an Engine. A nil rng uses a randomly seeded generator.
func New(strategy Strategy, tracks []track.Track, loop bool, rng *rand.Rand) Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	switch strategy {
	case StrategyRandom:
		return NewRandom(tracks, loop, rng)
	default:
		return NewBagShuffle(tracks, loop, rng)
	}
}

// shuffled returns a Fisher-Yates permutation of tracks: for i from the last
// index down to 1, swap with a uniformly chosen j <= i.
func shuffled(tracks []track.Track, rng *rand.Rand) []track.Track {
	out := append([]track.Track(nil), tracks...)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
