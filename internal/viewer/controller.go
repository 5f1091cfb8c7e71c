package viewer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrNoURL is returned by Load when no document URL is given.
	ErrNoURL = errors.New("viewer: document url is empty")
	// ErrDestroyed is returned by operations on a destroyed shell.
	ErrDestroyed = errors.New("viewer: shell destroyed")
)

// defaultLoadError replaces an engine error with no text.
const defaultLoadError = "load failed"

// LoadRequest describes one document load.
type LoadRequest struct {
	URL           string
	Fonts         []string
	WorkerFactory WorkerFactory
}

// Controller owns LoadState and drives one logical load at a time.
//
// Every load takes a generation from a monotonic counter. A state commit is
// applied only when its generation is still the latest, so a superseded or
// cleared load can settle at any time without touching observable state.
type Controller struct {
	engine Engine

	gen   atomic.Uint64
	state atomic.Pointer[LoadState]

	// mu orders the generation check with the snapshot swap.
	mu sync.Mutex

	// OnChange is called with the new state after every applied commit.
	OnChange func(LoadState)
	// OnLoaded is called with the camera bounds after a successful load
	// that is still current. It runs while the commit is held and must not
	// call back into the controller.
	OnLoaded func(CameraBounds)
}

// NewController returns an idle controller for e.
func NewController(e Engine) *Controller {
	c := &Controller{engine: e}
	c.state.Store(&LoadState{})
	return c
}

// State returns the current snapshot.
func (c *Controller) State() LoadState {
	return *c.state.Load()
}

// Generation returns the generation of the most recent Load or Clear.
func (c *Controller) Generation() uint64 {
	return c.gen.Load()
}

// Load runs a load to completion. Engine failures are recorded in
// LoadState.Error and never returned; the only error is ErrNoURL.
func (c *Controller) Load(ctx context.Context, req LoadRequest) error {
	if req.URL == "" {
		return ErrNoURL
	}

	gen := c.gen.Add(1)
	log := Logger().With(slog.Uint64("generation", gen), slog.String("url", req.URL))
	log.Info("load started")

	c.commit(gen, func(LoadState) LoadState {
		return LoadState{IsLoading: true}
	})

	err := c.engine.Load(ctx, LoadParams{
		URL:   req.URL,
		Fonts: req.Fonts,
		Progress: func(ev ProgressEvent) {
			c.commit(gen, func(s LoadState) LoadState {
				return Aggregate(s, ev)
			})
		},
		WorkerFactory: req.WorkerFactory,
	})

	if err != nil {
		log.Info("load failed", slog.Any("err", err))
		msg := err.Error()
		if msg == "" {
			msg = defaultLoadError
		}
		c.commit(gen, func(s LoadState) LoadState {
			s.Error = msg
			return s.settled()
		})
		return nil
	}

	bounds, haveCamera := c.engine.Camera()
	if c.commit(gen, func(s LoadState) LoadState {
		if haveCamera && c.OnLoaded != nil {
			c.OnLoaded(bounds)
		}
		return s.settled()
	}) {
		log.Info("load settled")
	}
	return nil
}

// Clear resets LoadState to its defaults and clears the engine scene.
// In-flight loads keep running in the engine but can no longer commit.
func (c *Controller) Clear() error {
	c.invalidate()
	return c.engine.Clear()
}

// invalidate bumps the generation and resets state without touching the
// engine.
func (c *Controller) invalidate() {
	c.mu.Lock()
	c.gen.Add(1)
	prev := c.state.Load()
	changed := !prev.Equal(LoadState{})
	if changed {
		c.state.Store(&LoadState{})
	}
	c.mu.Unlock()

	if changed && c.OnChange != nil {
		c.OnChange(LoadState{})
	}
}

func (c *Controller) current(gen uint64) bool {
	return c.gen.Load() == gen
}

// commit applies fn to the current snapshot if gen is still current.
func (c *Controller) commit(gen uint64, fn func(LoadState) LoadState) bool {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		Logger().Debug("stale commit discarded",
			slog.Uint64("generation", gen),
			slog.Uint64("current", c.gen.Load()))
		return false
	}
	next := fn(*c.state.Load())
	c.state.Store(&next)
	c.mu.Unlock()

	if c.OnChange != nil {
		c.OnChange(next)
	}
	return true
}
