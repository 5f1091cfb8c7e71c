// Package httpserver serves the viewer page and carries all message traffic
// between the plugin and the engine running in the browser.
package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go-dxf-viewer/internal/contracts"
	"go-dxf-viewer/internal/viewer"

	"github.com/gorilla/websocket"
)

// ErrStopped is returned when sending through a stopped server.
var ErrStopped = errors.New("httpserver: preview server stopped")

// assetPrefix is the route local drawings and fonts are served under.
const assetPrefix = "/@dxffs/"

// PreviewServer coordinates HTTP serving and WebSocket traffic for a single
// page. Writes to the socket and replay state live on one goroutine.
type PreviewServer struct {
	addr   string
	shell  string
	assets map[string][]byte

	mu      sync.Mutex
	started bool
	server  *http.Server
	engine  *RemoteEngine

	// onPointerMove is invoked for pointer moves over the canvas.
	onPointerMove func(viewer.DevicePoint)

	outbound   chan any
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopLoop   chan struct{}
	stopOnce   sync.Once

	upgrader websocket.Upgrader
}

// NewPreviewServer creates a preview server bound to addr. shell is the
// page served at "/" and assets are served under /static/.
func NewPreviewServer(addr string, shell string, assets map[string][]byte) *PreviewServer {
	m := &PreviewServer{
		addr:   addr,
		shell:  shell,
		assets: assets,

		outbound:   make(chan any, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopLoop:   make(chan struct{}),
	}
	m.upgrader = websocket.Upgrader{CheckOrigin: m.checkOrigin}
	go m.runLoop()
	return m
}

// URL returns the browser URL for the preview server.
func (m *PreviewServer) URL() string {
	return "http://" + m.addr
}

// checkOrigin accepts page connections from the preview server itself.
// Requests without an Origin header come from non-browser clients.
func (m *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host) || strings.EqualFold(u.Host, m.addr)
}

// Handler returns the HTTP routes of the preview server.
func (m *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleIndex)
	mux.HandleFunc("/ws", m.handleWS)
	mux.HandleFunc("/static/", m.handleStatic)
	mux.HandleFunc(assetPrefix, m.handleAsset)
	return mux
}

// Start begins listening on the configured address. Calling Start on a
// running server is a no-op.
func (m *PreviewServer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	l, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}
	m.server = &http.Server{Addr: m.addr, Handler: m.Handler()}
	m.started = true

	go func() {
		if err := m.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			viewer.Logger().Warn("preview server stopped", slog.Any("err", err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server and the run loop.
func (m *PreviewServer) Stop() error {
	var err error
	m.mu.Lock()
	if m.started && m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = m.server.Shutdown(ctx)
		cancel()
	}
	m.started = false
	m.server = nil
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopLoop) })
	return err
}

// SetPointerMoveHandler registers the callback for canvas pointer moves.
func (m *PreviewServer) SetPointerMoveHandler(fn func(viewer.DevicePoint)) {
	m.mu.Lock()
	m.onPointerMove = fn
	m.mu.Unlock()
}

// PublishStatus replaces the status panel shown by the page.
func (m *PreviewServer) PublishStatus(html string) error {
	return m.send(contracts.StatusMessage{Type: contracts.MessageTypeStatus, HTML: html})
}

// LocalURL maps an absolute local path to the URL the page fetches it from.
func (m *PreviewServer) LocalURL(path string) string {
	return assetPrefix + base64.RawURLEncoding.EncodeToString([]byte(filepath.Clean(path)))
}

// attach routes page messages to e. Only one engine is attached at a time.
func (m *PreviewServer) attach(e *RemoteEngine) {
	m.mu.Lock()
	m.engine = e
	m.mu.Unlock()
}

func (m *PreviewServer) detach(e *RemoteEngine) {
	m.mu.Lock()
	if m.engine == e {
		m.engine = nil
	}
	m.mu.Unlock()
}

// send queues a message for the page.
func (m *PreviewServer) send(msg any) error {
	select {
	case <-m.stopLoop:
		return ErrStopped
	default:
	}
	select {
	case m.outbound <- msg:
		return nil
	case <-m.stopLoop:
		return ErrStopped
	}
}

// handleIndex serves the page shell.
func (m *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(m.shell))
}

// handleStatic serves embedded page assets such as the parser worker.
func (m *PreviewServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/static/")
	body, ok := m.assets[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if strings.HasSuffix(name, ".js") {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	}
	_, _ = w.Write(body)
}

// handleWS upgrades the connection and dispatches page messages in the
// order they arrive.
func (m *PreviewServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case m.register <- conn:
	case <-m.stopLoop:
		_ = conn.Close()
		return
	}
	defer func() {
		select {
		case m.unregister <- conn:
		case <-m.stopLoop:
		}
	}()

	// Block here until the connection closes / errors out
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m.dispatch(msg)
	}
}

// handleAsset serves local drawings and fonts via encoded absolute paths.
func (m *PreviewServer) handleAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, assetPrefix)
	if id == "" {
		http.NotFound(w, r)
		return
	}

	decoded, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	assetPath := filepath.Clean(string(decoded))
	if assetPath == "." || !filepath.IsAbs(assetPath) {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(assetPath)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, assetPath)
}

// dispatch routes one page message.
func (m *PreviewServer) dispatch(raw []byte) {
	var envelope contracts.IncomingMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		viewer.Logger().Warn("malformed page message", slog.Any("err", err))
		return
	}

	m.mu.Lock()
	engine := m.engine
	onPointerMove := m.onPointerMove
	m.mu.Unlock()

	if envelope.Type == contracts.MessageTypePointerMove {
		var msg contracts.PointerMoveMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		if engine != nil && msg.Rect != nil {
			engine.setRect(*msg.Rect)
		}
		if onPointerMove != nil {
			onPointerMove(viewer.DevicePoint{X: msg.X, Y: msg.Y})
		}
		return
	}

	if engine == nil {
		viewer.Logger().Debug("page message without engine", slog.String("type", envelope.Type))
		return
	}
	engine.handleMessage(envelope.Type, raw)
}

// runLoop serializes replay state and websocket writes on a single
// goroutine. A reconnecting page receives the engine options, the current
// document and the latest status panel.
func (m *PreviewServer) runLoop() {
	var conn *websocket.Conn

	var (
		lastInit   *contracts.InitMessage
		lastLoad   *contracts.LoadMessage
		lastStatus = contracts.StatusMessage{Type: contracts.MessageTypeStatus}
	)

	replay := func() bool {
		if lastInit != nil && !writeJSON(conn, lastInit) {
			return false
		}
		if lastLoad != nil && !writeJSON(conn, lastLoad) {
			return false
		}
		if lastStatus.Rev > 0 && !writeJSON(conn, lastStatus) {
			return false
		}
		return true
	}

	for {
		select {
		case msg := <-m.outbound:
			switch typed := msg.(type) {
			case contracts.InitMessage:
				lastInit = &typed
				lastLoad = nil
			case contracts.LoadMessage:
				lastLoad = &typed
			case contracts.CommandMessage:
				lastLoad = nil
				if typed.Type == contracts.MessageTypeDestroy {
					lastInit = nil
				}
			case contracts.StatusMessage:
				lastStatus.Rev++
				lastStatus.HTML = typed.HTML
				msg = lastStatus
			}

			if conn == nil {
				continue
			}
			if !writeJSON(conn, msg) {
				conn = nil
			}

		case c := <-m.register:
			if conn != nil {
				_ = conn.Close()
			}
			conn = c

			if !replay() {
				conn = nil
			}

		case c := <-m.unregister:
			if conn == c {
				_ = conn.Close()
				conn = nil
			}

		case <-m.stopLoop:
			if conn != nil {
				_ = conn.Close()
				conn = nil
			}
			return
		}
	}
}

// writeJSON writes a JSON message and reports whether the connection is usable.
func writeJSON(conn *websocket.Conn, v any) bool {
	if err := conn.WriteJSON(v); err != nil {
		_ = conn.Close()
		return false
	}
	return true
}
