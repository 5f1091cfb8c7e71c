package contracts

import "encoding/json"

// Messages sent from the plugin to the page.
const (
	// MessageTypeInit constructs the engine in the page.
	MessageTypeInit = "init"
	// MessageTypeLoad asks the page engine to load a document.
	MessageTypeLoad = "load"
	// MessageTypeClear drops the page engine scene.
	MessageTypeClear = "clear"
	// MessageTypeDestroy releases the page engine.
	MessageTypeDestroy = "destroy"
	// MessageTypeStatus replaces the rendered status panel.
	MessageTypeStatus = "status"
)

// Messages sent from the page to the plugin.
const (
	// MessageTypeProgress reports load progress for a load id.
	MessageTypeProgress = "progress"
	// MessageTypeLoadResult settles a load id.
	MessageTypeLoadResult = "load_result"
	// MessageTypeEvent carries an engine event and its payload.
	MessageTypeEvent = "event"
	// MessageTypeViewport reports the canvas rectangle and camera.
	MessageTypeViewport = "viewport"
	// MessageTypePointerMove reports a pointer position over the canvas.
	MessageTypePointerMove = "pointer_move"
)

// IncomingMessage is the minimal envelope used to route page messages.
type IncomingMessage struct {
	Type string `json:"type"`
}

// Camera mirrors the orthographic camera bounds of the page engine.
type Camera struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Rect is a canvas rectangle in CSS pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// InitMessage carries engine construction options.
type InitMessage struct {
	Type    string          `json:"type"`
	Options json.RawMessage `json:"options"`
}

// LoadMessage starts a load identified by ID.
type LoadMessage struct {
	Type      string   `json:"type"`
	ID        uint64   `json:"id"`
	URL       string   `json:"url"`
	Fonts     []string `json:"fonts"`
	WorkerURL string   `json:"workerUrl,omitempty"`
}

// CommandMessage is a command without arguments (clear, destroy).
type CommandMessage struct {
	Type string `json:"type"`
}

// StatusMessage carries the rendered status panel and revision metadata.
type StatusMessage struct {
	Type string `json:"type"`
	HTML string `json:"html"`
	Rev  uint64 `json:"rev"`
}

// ProgressMessage is one engine progress callback. TotalSize is null when
// the engine cannot tell the size of the phase.
type ProgressMessage struct {
	Type      string `json:"type"`
	ID        uint64 `json:"id"`
	Phase     string `json:"phase"`
	Size      int64  `json:"size"`
	TotalSize *int64 `json:"totalSize"`
}

// LoadResultMessage settles a load. A non-empty Error means failure.
type LoadResultMessage struct {
	Type   string  `json:"type"`
	ID     uint64  `json:"id"`
	Error  string  `json:"error,omitempty"`
	Camera *Camera `json:"camera,omitempty"`
}

// EventMessage relays an engine event. Camera is attached when the event
// may have moved it.
type EventMessage struct {
	Type    string          `json:"type"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Camera  *Camera         `json:"camera,omitempty"`
}

// ViewportMessage reports the canvas rectangle, sent on connect and resize.
type ViewportMessage struct {
	Type   string  `json:"type"`
	Rect   Rect    `json:"rect"`
	Camera *Camera `json:"camera,omitempty"`
}

// PointerMoveMessage reports a pointer position relative to the page.
type PointerMoveMessage struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Rect *Rect   `json:"rect,omitempty"`
}
