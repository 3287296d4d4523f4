package queue

import (
	"math/rand/v2"
	"sync"

	"github.com/osa030/openfm/internal/domain/track"
)

// BagShuffle plays every track once, in random order, before reshuffling.
type BagShuffle struct {
	mu     sync.Mutex
	rng    *rand.Rand
	tracks []track.Track
	loop   bool

	bag []track.Track
	// future holds refills already drawn by Peek, consumed in order by Next.
	future [][]track.Track
}

// NewBagShuffle creates a bag-shuffle engine with a freshly permuted bag.
func NewBagShuffle(tracks []track.Track, loop bool, rng *rand.Rand) *BagShuffle {
	q := &BagShuffle{rng: rng, loop: loop}
	q.reset(tracks)
	return q
}

func (q *BagShuffle) reset(tracks []track.Track) {
	q.tracks = append([]track.Track(nil), tracks...)
	q.bag = shuffled(q.tracks, q.rng)
	q.future = nil
}

// Next pops the head of the bag, refilling it first when looping.
func (q *BagShuffle) Next() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.bag) == 0 {
		if !q.loop || len(q.tracks) == 0 {
			return track.Track{}, false
		}
		q.bag = q.refillLocked()
	}

	t := q.bag[0]
	q.bag = q.bag[1:]
	return t, true
}

// refillLocked returns the next bag, preferring one Peek already drew.
func (q *BagShuffle) refillLocked() []track.Track {
	if len(q.future) > 0 {
		next := q.future[0]
		q.future = q.future[1:]
		return next
	}
	return shuffled(q.tracks, q.rng)
}

// Peek lists the next n tracks. Refills needed to look past the current bag
// are drawn once and kept so Next returns the same sequence.
func (q *BagShuffle) Peek(n int) []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]track.Track, 0, max(n, 0))
	if n <= 0 || len(q.tracks) == 0 {
		return result
	}

	result = append(result, q.bag[:min(n, len(q.bag))]...)
	for i := 0; len(result) < n && q.loop; i++ {
		if i == len(q.future) {
			q.future = append(q.future, shuffled(q.tracks, q.rng))
		}
		bag := q.future[i]
		result = append(result, bag[:min(n-len(result), len(bag))]...)
	}
	return result
}

// UpdateTracks replaces the source list and reshuffles.
func (q *BagShuffle) UpdateTracks(tracks []track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reset(tracks)
}

// SetLoop keeps the current bag. Disabling loop discards pre-drawn refills.
func (q *BagShuffle) SetLoop(loop bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.loop = loop
	if !loop {
		q.future = nil
	}
}

// Remaining returns the number of tracks left in the current bag.
func (q *BagShuffle) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.bag)
}

func (q *BagShuffle) Strategy() Strategy {
	return StrategyShuffle
}
