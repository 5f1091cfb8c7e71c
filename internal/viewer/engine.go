package viewer

import "context"

// EventName identifies one of the engine events the shell relays.
type EventName string

const (
	EventLoaded      EventName = "loaded"
	EventCleared     EventName = "cleared"
	EventDestroyed   EventName = "destroyed"
	EventResized     EventName = "resized"
	EventPointerDown EventName = "pointerdown"
	EventPointerUp   EventName = "pointerup"
	EventViewChanged EventName = "viewChanged"
	EventMessage     EventName = "message"
)

// EventHandler receives the engine payload for a subscribed event.
type EventHandler func(payload any)

// ProgressFunc receives load progress in emission order for a single load.
type ProgressFunc func(ProgressEvent)

// WorkerFactory supplies the parsing worker the engine spawns for a load.
// The engine decides what the returned value means; the remote engine uses
// it as the worker script URL handed to the page.
type WorkerFactory func() string

// LoadParams is everything the engine needs to load one document.
type LoadParams struct {
	URL           string
	Fonts         []string
	Progress      ProgressFunc
	WorkerFactory WorkerFactory
}

// CameraBounds are the orthographic camera frustum edges in world units.
type CameraBounds struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Center returns the world point in the middle of the bounds.
func (b CameraBounds) Center() WorldPoint {
	return WorldPoint{X: (b.Left + b.Right) / 2, Y: (b.Top + b.Bottom) / 2}
}

// Canvas is the drawing surface the engine renders into.
type Canvas interface {
	// Rect returns the current viewport rectangle in device pixels.
	Rect() ViewportRect
}

// SceneOptions are forwarded to the engine's scene construction.
type SceneOptions struct {
	Wireframe bool `json:"wireframe"`
}

// EngineOptions configure engine construction.
type EngineOptions struct {
	BackgroundColor string         `json:"clearColor"`
	AutoResize      bool           `json:"autoResize"`
	ColorCorrection bool           `json:"colorCorrection"`
	Scene           SceneOptions   `json:"sceneOptions"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Engine is the external DXF rendering engine.
type Engine interface {
	// Load blocks until the document is loaded or loading failed.
	Load(ctx context.Context, params LoadParams) error
	// Clear drops the current scene.
	Clear() error
	// Destroy releases the engine. The engine is unusable afterwards.
	Destroy() error
	Canvas() Canvas
	// Camera returns the current camera bounds; ok is false before the
	// engine has a camera.
	Camera() (bounds CameraBounds, ok bool)
	// Subscribe registers h for name and returns a function removing it.
	Subscribe(name EventName, h EventHandler) (unsubscribe func())
}

// EngineFactory constructs an engine bound to a container handle.
type EngineFactory func(container any, opts EngineOptions) (Engine, error)
