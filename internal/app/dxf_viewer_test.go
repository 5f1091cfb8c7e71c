package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-dxf-viewer/internal/config"
	"go-dxf-viewer/internal/contracts"
	"go-dxf-viewer/internal/viewer"

	"github.com/gorilla/websocket"
)

type events struct {
	mu  sync.Mutex
	got []viewer.Event
}

func (e *events) Publish(ev viewer.Event) {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
}

func (e *events) waitFor(t *testing.T, name string) viewer.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		for _, ev := range e.got {
			if ev.Name == name {
				e.mu.Unlock()
				return ev
			}
		}
		e.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %q not published", name)
	return viewer.Event{}
}

// page is the test side of the websocket the browser would hold.
type page struct {
	t    *testing.T
	conn *websocket.Conn
}

// next reads messages until one of type kind arrives and decodes it into v.
func (p *page) next(kind string, v any) {
	p.t.Helper()
	for {
		_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			p.t.Fatalf("waiting for %s: %v", kind, err)
		}
		var envelope contracts.IncomingMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			p.t.Fatal(err)
		}
		if envelope.Type != kind {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(raw, v); err != nil {
				p.t.Fatal(err)
			}
		}
		return
	}
}

func (p *page) send(v any) {
	p.t.Helper()
	if err := p.conn.WriteJSON(v); err != nil {
		p.t.Fatal(err)
	}
}

func newTestViewer(t *testing.T, pub viewer.Publisher) (*DxfViewer, *page) {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"

	d, err := NewDxfViewer(cfg, pub, nil)
	if err != nil {
		t.Fatalf("NewDxfViewer() = %v", err)
	}
	ts := httptest.NewServer(d.server.Handler())

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		_ = d.Close()
		ts.Close()
	})

	p := &page{t: t, conn: conn}
	p.next(contracts.MessageTypeInit, nil)
	return d, p
}

func TestDxfViewerLoadAndPointer(t *testing.T) {
	var pub events
	d, p := newTestViewer(t, &pub)

	errc := make(chan error, 1)
	go func() { errc <- d.Open(context.Background(), "https://example.com/plan.dxf") }()

	var load contracts.LoadMessage
	p.next(contracts.MessageTypeLoad, &load)
	if load.URL != "https://example.com/plan.dxf" || load.WorkerURL != "/static/dxf-viewer-worker.js" {
		t.Errorf("load = %+v", load)
	}

	total := int64(10)
	p.send(contracts.ProgressMessage{Type: contracts.MessageTypeProgress, ID: load.ID, Phase: "fetch", Size: 5, TotalSize: &total})

	var status contracts.StatusMessage
	for !strings.Contains(status.HTML, "Fetching file...") {
		p.next(contracts.MessageTypeStatus, &status)
	}
	if !strings.Contains(status.HTML, "50%") {
		t.Errorf("status during fetch = %s", status.HTML)
	}

	p.send(contracts.LoadResultMessage{
		Type:   contracts.MessageTypeLoadResult,
		ID:     load.ID,
		Camera: &contracts.Camera{Left: -10, Right: 10, Top: 10, Bottom: -10},
	})
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Open() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open() did not return")
	}

	st := d.State()
	if st.Load.IsLoading || st.Load.Progress != nil || st.Load.Error != "" {
		t.Errorf("state after load = %+v", st.Load)
	}
	if st.Coordinate == nil || *st.Coordinate != (viewer.WorldPoint{}) {
		t.Errorf("coordinate = %v, want centre", st.Coordinate)
	}

	p.send(contracts.PointerMoveMessage{
		Type: contracts.MessageTypePointerMove,
		X:    0, Y: 0,
		Rect: &contracts.Rect{Width: 200, Height: 200},
	})
	ev := pub.waitFor(t, viewer.CoordinateUpdateEvent)
	if ev.Payload != (viewer.WorldPoint{X: -10, Y: 10}) {
		t.Errorf("coordinate-update payload = %+v", ev.Payload)
	}
	for !strings.Contains(status.HTML, "-10.000, 10.000, 0.000") {
		p.next(contracts.MessageTypeStatus, &status)
	}

	p.send(contracts.EventMessage{Type: contracts.MessageTypeEvent, Name: "loaded", Payload: json.RawMessage(`{"ok":true}`)})
	ev = pub.waitFor(t, "dxf-loaded")
	if raw, ok := ev.Payload.(json.RawMessage); !ok || string(raw) != `{"ok":true}` {
		t.Errorf("dxf-loaded payload = %#v", ev.Payload)
	}
}

func TestDxfViewerLoadFailureAndClear(t *testing.T) {
	d, p := newTestViewer(t, nil)

	errc := make(chan error, 1)
	go func() { errc <- d.Open(context.Background(), "https://example.com/broken.dxf") }()

	var load contracts.LoadMessage
	p.next(contracts.MessageTypeLoad, &load)
	p.send(contracts.LoadResultMessage{Type: contracts.MessageTypeLoadResult, ID: load.ID, Error: "Unexpected end of file"})
	if err := <-errc; err != nil {
		t.Fatalf("Open() = %v, want nil for engine failure", err)
	}

	if got := d.State().Load; got.Error != "Unexpected end of file" || got.IsLoading {
		t.Errorf("state = %+v", got)
	}

	if err := d.Clear(); err != nil {
		t.Fatalf("Clear() = %v", err)
	}
	p.next(contracts.MessageTypeClear, nil)
	if got := d.State(); !got.Load.Equal(viewer.LoadState{}) || got.URL != "" {
		t.Errorf("state after Clear = %+v", got)
	}
}

func TestResolve(t *testing.T) {
	d, _ := newTestViewer(t, nil)

	abs, err := filepath.Abs("plan.dxf")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct{ in, want string }{
		{"", ""},
		{"https://example.com/a.dxf", "https://example.com/a.dxf"},
		{"HTTP://EXAMPLE.COM/A.DXF", "HTTP://EXAMPLE.COM/A.DXF"},
		{"/static/font.ttf", "/static/font.ttf"},
		{"plan.dxf", d.server.LocalURL(abs)},
		{"file:///tmp/plan.dxf", d.server.LocalURL("/tmp/plan.dxf")},
	}
	for _, tt := range tests {
		if got := d.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := d.resolveAll([]string{"", "https://f/a.ttf"}); len(got) != 1 {
		t.Errorf("resolveAll() = %v", got)
	}
}

func TestDxfViewerCloseDuringLoadLeavesNoError(t *testing.T) {
	d, p := newTestViewer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- d.Open(ctx, "https://example.com/slow.dxf") }()
	p.next(contracts.MessageTypeLoad, nil)

	if err := d.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	cancel()

	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("Open() did not return after Close")
	}
	if got := d.State().Load; got.Error != "" || got.IsLoading {
		t.Errorf("state after Close = %+v, want no load failure", got)
	}
}
