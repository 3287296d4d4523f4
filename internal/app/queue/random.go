package queue

import (
	"math/rand/v2"
	"sync"

	"github.com/osa030/openfm/internal/domain/track"
)

// Random draws a uniformly random track on every call. Repeats are allowed.
// Without loop, one pass is len(tracks) draws, after which Next reports the
// end of the queue.
type Random struct {
	mu     sync.Mutex
	rng    *rand.Rand
	tracks []track.Track
	loop   bool

	drawn    int   // draws consumed in the current pass
	upcoming []int // indices drawn by Peek, consumed by Next
}

// NewRandom creates a random-with-replacement engine.
func NewRandom(tracks []track.Track, loop bool, rng *rand.Rand) *Random {
	return &Random{
		rng:    rng,
		tracks: append([]track.Track(nil), tracks...),
		loop:   loop,
	}
}

// Next returns a random track.
func (q *Random) Next() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 || (!q.loop && q.drawn >= len(q.tracks)) {
		return track.Track{}, false
	}

	var idx int
	if len(q.upcoming) > 0 {
		idx = q.upcoming[0]
		q.upcoming = q.upcoming[1:]
	} else {
		idx = q.rng.IntN(len(q.tracks))
	}
	q.drawn++
	return q.tracks[idx], true
}

// Peek pre-draws up to n indices and returns their tracks.
func (q *Random) Peek(n int) []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]track.Track, 0, max(n, 0))
	if n <= 0 || len(q.tracks) == 0 {
		return result
	}

	limit := n
	if !q.loop {
		limit = min(n, len(q.tracks)-q.drawn)
	}
	for len(q.upcoming) < limit {
		q.upcoming = append(q.upcoming, q.rng.IntN(len(q.tracks)))
	}
	for _, idx := range q.upcoming[:max(limit, 0)] {
		result = append(result, q.tracks[idx])
	}
	return result
}

// UpdateTracks replaces the source list and starts a new pass.
func (q *Random) UpdateTracks(tracks []track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tracks = append([]track.Track(nil), tracks...)
	q.drawn = 0
	q.upcoming = nil
}

// SetLoop toggles looping. Re-enabling loop starts a new pass.
func (q *Random) SetLoop(loop bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if loop && !q.loop {
		q.drawn = 0
	}
	q.loop = loop
}

// Remaining returns the draws left in a non-looping pass, which ends after
// len(tracks) draws whatever was drawn, or the catalog size when looping.
func (q *Random) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loop {
		return len(q.tracks)
	}
	return max(len(q.tracks)-q.drawn, 0)
}

func (q *Random) Strategy() Strategy {
	return StrategyRandom
}
