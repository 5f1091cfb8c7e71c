package viewer

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeLoad is one pending engine load settled by the test.
type fakeLoad struct {
	params LoadParams
	done   chan error
}

func (l *fakeLoad) progress(phase Phase, size int64, total *int64) {
	l.params.Progress(ProgressEvent{Phase: phase, Size: size, TotalSize: total})
}

func (l *fakeLoad) settle(err error) { l.done <- err }

type fakeCanvas struct{ rect ViewportRect }

func (c fakeCanvas) Rect() ViewportRect { return c.rect }

type fakeEngine struct {
	started chan *fakeLoad

	mu         sync.Mutex
	handlers   map[EventName]map[int]EventHandler
	nextID     int
	camera     CameraBounds
	haveCamera bool
	rect       ViewportRect
	clears     int
	destroys   int
	destroyErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		started:  make(chan *fakeLoad, 8),
		handlers: make(map[EventName]map[int]EventHandler),
		rect:     ViewportRect{Width: 200, Height: 200},
	}
}

func (e *fakeEngine) Load(ctx context.Context, p LoadParams) error {
	l := &fakeLoad{params: p, done: make(chan error, 1)}
	e.started <- l
	select {
	case err := <-l.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *fakeEngine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clears++
	return nil
}

func (e *fakeEngine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroys++
	return e.destroyErr
}

func (e *fakeEngine) Canvas() Canvas {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fakeCanvas{rect: e.rect}
}

func (e *fakeEngine) Camera() (CameraBounds, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera, e.haveCamera
}

func (e *fakeEngine) setCamera(b CameraBounds) {
	e.mu.Lock()
	e.camera, e.haveCamera = b, true
	e.mu.Unlock()
}

func (e *fakeEngine) Subscribe(name EventName, h EventHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers[name] == nil {
		e.handlers[name] = make(map[int]EventHandler)
	}
	id := e.nextID
	e.nextID++
	e.handlers[name][id] = h
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[name], id)
	}
}

func (e *fakeEngine) emit(name EventName, payload any) {
	e.mu.Lock()
	hs := make([]EventHandler, 0, len(e.handlers[name]))
	for _, h := range e.handlers[name] {
		hs = append(hs, h)
	}
	e.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (e *fakeEngine) subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, hs := range e.handlers {
		n += len(hs)
	}
	return n
}

// startLoad runs load in a goroutine and returns the engine-side handle
// plus a wait function that blocks until load returns.
func startLoad(t *testing.T, e *fakeEngine, load func() error) (*fakeLoad, func()) {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- load() }()

	var l *fakeLoad
	select {
	case l = <-e.started:
	case <-time.After(2 * time.Second):
		t.Fatal("engine load was not started")
	}

	return l, func() {
		t.Helper()
		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("Load() = %v, want nil", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Load() did not return")
		}
	}
}

func int64p(v int64) *int64 { return &v }
