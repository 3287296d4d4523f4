package prefs

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/infra/clock"
)

// DefaultSaveDelay is how long changes accumulate before a save.
const DefaultSaveDelay = 2 * time.Second

// Persister saves the store's preferences whenever they change. Saves are
// throttled: the first change arms a timer and later changes ride along.
type Persister struct {
	store   *state.Store
	backend Store
	clock   clock.Clock
	delay   time.Duration

	mu     sync.Mutex
	timer  clock.Timer
	last   state.Preferences
	cancel func()
}

// NewPersister creates a persister. Call Start to begin watching.
func NewPersister(store *state.Store, backend Store, c clock.Clock, delay time.Duration) *Persister {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &Persister{store: store, backend: backend, clock: c, delay: delay}
}

// Restore loads saved preferences into the store. A missing or unreadable
// record leaves the store's defaults in place.
func (p *Persister) Restore(ctx context.Context) bool {
	saved, ok, err := p.backend.Load(ctx)
	if err != nil {
		zlog.Warn().Msgf("prefs: failed to load preferences, using defaults: %v", err)
		return false
	}
	if !ok {
		return false
	}
	p.store.LoadPreferences(saved)
	zlog.Info().Msgf("prefs: restored: mode=%s mood=%s root=%s", saved.Mode, saved.LastMood, saved.LibraryRoot)
	return true
}

// Start subscribes to store changes.
func (p *Persister) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = p.store.ExportPreferences()
	p.cancel = p.store.Subscribe(func(e state.Event) {
		if e.Kind() == state.KindCrossfade {
			return
		}
		p.schedule()
	})
}

func (p *Persister) schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil || p.cancel == nil {
		return
	}
	p.timer = p.clock.AfterFunc(p.delay, func() {
		p.mu.Lock()
		p.timer = nil
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Flush(ctx); err != nil {
			zlog.Error().Msgf("prefs: save failed: %v", err)
		}
	})
}

// Flush saves now if anything changed since the last save.
func (p *Persister) Flush(ctx context.Context) error {
	current := p.store.ExportPreferences()

	p.mu.Lock()
	defer p.mu.Unlock()
	if current == p.last {
		return nil
	}
	if err := p.backend.Save(ctx, current); err != nil {
		return err
	}
	p.last = current
	zlog.Debug().Msgf("prefs: saved: %+v", current)
	return nil
}

// Close stops watching and saves pending changes.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
	return p.Flush(ctx)
}
