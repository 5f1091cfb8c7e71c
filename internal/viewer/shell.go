package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrNoEngine is returned by Mount when the factory yields no engine.
var ErrNoEngine = errors.New("viewer: engine factory returned nil engine")

// Options configure a Shell.
type Options struct {
	Engine EngineOptions
	// EventPrefix namespaces relayed events. Empty means DefaultEventPrefix.
	EventPrefix   string
	Fonts         []string
	WorkerFactory WorkerFactory
	// Publisher receives relayed engine events and coordinate updates.
	Publisher Publisher
	// OnChange is called whenever the load state or document changes so
	// the host can redraw. Pointer moves are reported through Publisher.
	OnChange func(Presentation)
}

// Shell embeds one engine instance and exposes the reactive control surface
// over it. It owns the engine from Mount until Destroy.
type Shell struct {
	engine        Engine
	ctrl          *Controller
	relay         *Relay
	pub           Publisher
	onChange      func(Presentation)
	workerFactory WorkerFactory
	unsubs        []func()
	destroyed     atomic.Bool

	mu         sync.Mutex
	url        string
	fonts      []string
	bounds     CameraBounds
	haveBounds bool
	coordinate *WorldPoint
}

// Mount constructs the engine through factory and wires the relay.
func Mount(factory EngineFactory, container any, opts Options) (*Shell, error) {
	engine, err := factory(container, opts.Engine)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	if engine == nil {
		return nil, ErrNoEngine
	}

	pub := opts.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	prefix := opts.EventPrefix
	if prefix == "" {
		prefix = DefaultEventPrefix
	}

	s := &Shell{
		engine:        engine,
		ctrl:          NewController(engine),
		pub:           pub,
		onChange:      opts.OnChange,
		workerFactory: opts.WorkerFactory,
		fonts:         append([]string(nil), opts.Fonts...),
	}
	s.ctrl.OnChange = func(LoadState) { s.notify() }
	s.ctrl.OnLoaded = s.seed
	s.relay = NewRelay(engine, prefix, pub)

	// Pan and zoom move the orthographic bounds just like a resize does.
	for _, name := range []EventName{EventResized, EventViewChanged} {
		s.unsubs = append(s.unsubs, engine.Subscribe(name, func(any) { s.refreshBounds() }))
	}

	Logger().Info("shell mounted", slog.String("prefix", prefix))
	return s, nil
}

// Engine returns the engine owned by the shell.
func (s *Shell) Engine() Engine { return s.engine }

// SetFonts replaces the font list used by subsequent loads.
func (s *Shell) SetFonts(fonts []string) {
	s.mu.Lock()
	s.fonts = append([]string(nil), fonts...)
	s.mu.Unlock()
}

// SetDocument switches the displayed document. An empty url clears the
// scene; anything else blocks until that load settles or is superseded.
func (s *Shell) SetDocument(ctx context.Context, url string) error {
	if s.destroyed.Load() {
		return ErrDestroyed
	}

	s.mu.Lock()
	s.url = url
	fonts := s.fonts
	s.mu.Unlock()

	if url == "" {
		return s.ctrl.Clear()
	}
	return s.ctrl.Load(ctx, LoadRequest{
		URL:           url,
		Fonts:         fonts,
		WorkerFactory: s.workerFactory,
	})
}

// Clear unsets the document and clears the engine scene.
func (s *Shell) Clear() error {
	return s.SetDocument(context.Background(), "")
}

// PointerMove maps a device point against the canvas and current camera
// bounds. It returns false, and changes nothing, when there is no camera yet
// or the canvas has no area.
//
// A new coordinate is announced through CoordinateUpdateEvent only; it does
// not trigger OnChange, which would otherwise fire at pointer rate.
func (s *Shell) PointerMove(p DevicePoint) (WorldPoint, bool) {
	if s.destroyed.Load() {
		return WorldPoint{}, false
	}

	s.mu.Lock()
	bounds, ok := s.bounds, s.haveBounds
	s.mu.Unlock()
	if !ok {
		return WorldPoint{}, false
	}

	canvas := s.engine.Canvas()
	if canvas == nil {
		return WorldPoint{}, false
	}
	world, ok := MapPointer(p, canvas.Rect(), bounds)
	if !ok {
		return WorldPoint{}, false
	}

	s.mu.Lock()
	s.coordinate = &world
	s.mu.Unlock()

	s.pub.Publish(Event{Name: CoordinateUpdateEvent, Payload: world})
	return world, true
}

// State returns the current presentation snapshot.
func (s *Shell) State() Presentation {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Presentation{Load: s.ctrl.State(), URL: s.url}
	if s.coordinate != nil {
		c := *s.coordinate
		p.Coordinate = &c
	}
	return p
}

// Destroy tears down the relay and releases the engine. Events arriving
// afterwards are not observed. The engine's Destroy error is returned as
// is. Destroy is idempotent.
func (s *Shell) Destroy() error {
	if s.destroyed.Swap(true) {
		return nil
	}
	s.ctrl.invalidate()
	s.relay.Close()
	for _, unsub := range s.unsubs {
		if unsub != nil {
			unsub()
		}
	}
	Logger().Info("shell destroyed")
	return s.engine.Destroy()
}

// seed records the camera of a freshly loaded document and centres the
// coordinate readout on it.
func (s *Shell) seed(bounds CameraBounds) {
	center := bounds.Center()
	s.mu.Lock()
	s.bounds, s.haveBounds = bounds, true
	s.coordinate = &center
	s.mu.Unlock()
}

func (s *Shell) refreshBounds() {
	if s.destroyed.Load() {
		return
	}
	bounds, ok := s.engine.Camera()
	if !ok {
		return
	}
	s.mu.Lock()
	s.bounds, s.haveBounds = bounds, true
	s.mu.Unlock()
}

func (s *Shell) notify() {
	if s.onChange == nil || s.destroyed.Load() {
		return
	}
	s.onChange(s.State())
}
