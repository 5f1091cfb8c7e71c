package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go-dxf-viewer/internal/contracts"
	"go-dxf-viewer/internal/viewer"
)

var (
	// ErrClosed is returned by a destroyed engine.
	ErrClosed = errors.New("httpserver: engine destroyed")
	// ErrContainer is returned when the container is not a *PreviewServer.
	ErrContainer = errors.New("httpserver: container must be a *PreviewServer")
)

// LoadError is a load failure reported by the page engine.
type LoadError struct {
	URL     string
	Message string
}

func (e *LoadError) Error() string { return e.Message }

type pendingLoad struct {
	url      string
	progress viewer.ProgressFunc
	done     chan error
}

// RemoteEngine implements viewer.Engine by driving the engine that runs in
// the page connected to a PreviewServer.
type RemoteEngine struct {
	server *PreviewServer
	ids    atomic.Uint64

	mu         sync.Mutex
	destroyed  bool
	pending    map[uint64]*pendingLoad
	handlers   map[viewer.EventName]map[uint64]viewer.EventHandler
	nextSub    uint64
	camera     viewer.CameraBounds
	haveCamera bool
	rect       viewer.ViewportRect
}

var _ viewer.Engine = (*RemoteEngine)(nil)

// NewRemoteEngine is a viewer.EngineFactory. container must be the
// *PreviewServer whose page hosts the engine.
func NewRemoteEngine(container any, opts viewer.EngineOptions) (viewer.Engine, error) {
	server, ok := container.(*PreviewServer)
	if !ok || server == nil {
		return nil, ErrContainer
	}

	raw, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encode engine options: %w", err)
	}

	e := &RemoteEngine{
		server:   server,
		pending:  make(map[uint64]*pendingLoad),
		handlers: make(map[viewer.EventName]map[uint64]viewer.EventHandler),
	}
	server.attach(e)
	if err := server.send(contracts.InitMessage{Type: contracts.MessageTypeInit, Options: raw}); err != nil {
		server.detach(e)
		return nil, err
	}
	return e, nil
}

// Load sends the document to the page and waits for its result. A page that
// is not connected yet receives the load when it connects. Cancelling ctx
// stops the wait; the page keeps loading.
func (e *RemoteEngine) Load(ctx context.Context, params viewer.LoadParams) error {
	id := e.ids.Add(1)
	p := &pendingLoad{url: params.URL, progress: params.Progress, done: make(chan error, 1)}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.pending[id] = p
	e.mu.Unlock()

	msg := contracts.LoadMessage{
		Type:  contracts.MessageTypeLoad,
		ID:    id,
		URL:   params.URL,
		Fonts: params.Fonts,
	}
	if msg.Fonts == nil {
		msg.Fonts = []string{}
	}
	if params.WorkerFactory != nil {
		msg.WorkerURL = params.WorkerFactory()
	}
	if err := e.server.send(msg); err != nil {
		e.drop(id)
		return err
	}

	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		e.drop(id)
		return ctx.Err()
	}
}

// Clear drops the page scene.
func (e *RemoteEngine) Clear() error {
	e.mu.Lock()
	destroyed := e.destroyed
	e.mu.Unlock()
	if destroyed {
		return ErrClosed
	}
	return e.server.send(contracts.CommandMessage{Type: contracts.MessageTypeClear})
}

// Destroy fails pending loads with ErrClosed, detaches from the server and
// tells the page to release its engine.
func (e *RemoteEngine) Destroy() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.destroyed = true
	pending := e.pending
	e.pending = make(map[uint64]*pendingLoad)
	e.handlers = make(map[viewer.EventName]map[uint64]viewer.EventHandler)
	e.mu.Unlock()

	for _, p := range pending {
		p.done <- ErrClosed
	}
	e.server.detach(e)
	return e.server.send(contracts.CommandMessage{Type: contracts.MessageTypeDestroy})
}

// Canvas returns the page canvas handle.
func (e *RemoteEngine) Canvas() viewer.Canvas { return remoteCanvas{e: e} }

// Camera returns the last camera bounds reported by the page.
func (e *RemoteEngine) Camera() (viewer.CameraBounds, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera, e.haveCamera
}

// Subscribe registers h for engine events called name.
func (e *RemoteEngine) Subscribe(name viewer.EventName, h viewer.EventHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers[name] == nil {
		e.handlers[name] = make(map[uint64]viewer.EventHandler)
	}
	id := e.nextSub
	e.nextSub++
	e.handlers[name][id] = h

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[name], id)
	}
}

func (e *RemoteEngine) drop(id uint64) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *RemoteEngine) setRect(r contracts.Rect) {
	e.mu.Lock()
	e.rect = viewer.ViewportRect{Left: r.Left, Top: r.Top, Width: r.Width, Height: r.Height}
	e.mu.Unlock()
}

func (e *RemoteEngine) setCamera(c *contracts.Camera) {
	if c == nil {
		return
	}
	e.mu.Lock()
	e.camera = viewer.CameraBounds{Left: c.Left, Right: c.Right, Top: c.Top, Bottom: c.Bottom}
	e.haveCamera = true
	e.mu.Unlock()
}

// handleMessage applies one page message. Handlers and progress callbacks
// run on the socket reader goroutine, so they see messages in page order.
func (e *RemoteEngine) handleMessage(kind string, raw []byte) {
	log := viewer.Logger()

	switch kind {
	case contracts.MessageTypeProgress:
		var msg contracts.ProgressMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn("malformed progress message", slog.Any("err", err))
			return
		}
		e.mu.Lock()
		p := e.pending[msg.ID]
		e.mu.Unlock()
		if p == nil || p.progress == nil {
			return
		}
		log.Debug("load progress", slog.Uint64("id", msg.ID), slog.String("phase", msg.Phase), slog.Int64("size", msg.Size))
		p.progress(viewer.ProgressEvent{
			Phase:     viewer.Phase(msg.Phase),
			Size:      msg.Size,
			TotalSize: msg.TotalSize,
		})

	case contracts.MessageTypeLoadResult:
		var msg contracts.LoadResultMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn("malformed load result", slog.Any("err", err))
			return
		}
		e.setCamera(msg.Camera)

		e.mu.Lock()
		p := e.pending[msg.ID]
		delete(e.pending, msg.ID)
		e.mu.Unlock()
		if p == nil {
			return
		}
		if msg.Error != "" {
			p.done <- &LoadError{URL: p.url, Message: msg.Error}
			return
		}
		p.done <- nil

	case contracts.MessageTypeEvent:
		var msg contracts.EventMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn("malformed event message", slog.Any("err", err))
			return
		}
		e.setCamera(msg.Camera)
		e.emit(viewer.EventName(msg.Name), msg.Payload)

	case contracts.MessageTypeViewport:
		var msg contracts.ViewportMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn("malformed viewport message", slog.Any("err", err))
			return
		}
		e.setRect(msg.Rect)
		e.setCamera(msg.Camera)

	default:
		log.Warn("unknown page message", slog.String("type", kind))
	}
}

func (e *RemoteEngine) emit(name viewer.EventName, payload json.RawMessage) {
	e.mu.Lock()
	hs := make([]viewer.EventHandler, 0, len(e.handlers[name]))
	for _, h := range e.handlers[name] {
		hs = append(hs, h)
	}
	e.mu.Unlock()

	for _, h := range hs {
		h(payload)
	}
}

type remoteCanvas struct{ e *RemoteEngine }

func (c remoteCanvas) Rect() viewer.ViewportRect {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	return c.e.rect
}
