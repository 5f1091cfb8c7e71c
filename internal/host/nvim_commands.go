package host

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go-dxf-viewer/internal/app"
	"go-dxf-viewer/internal/config"
	"go-dxf-viewer/internal/viewer"

	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"
)

const (
	configVar     = "dxf_viewer"
	stateVar      = "dxf_viewer_state"
	coordinateVar = "dxf_viewer_coordinate"
	eventVar      = "dxf_viewer_event"
)

// Commands is a state container for Neovim command handlers. It owns the
// viewer from the first :DxfViewerOpen until :DxfViewerStop.
type Commands struct {
	mu     sync.Mutex
	viewer *app.DxfViewer
	nv     *nvim.Nvim
	fonts  []string

	ctx    context.Context
	cancel context.CancelFunc

	cursor     *app.Coalescer
	lastCursor viewer.Event
}

// coordinateInterval bounds how often pointer moves reach Neovim.
const coordinateInterval = 50 * time.Millisecond

func NewCommands() *Commands {
	c := &Commands{}
	c.cursor = app.NewCoalescer(coordinateInterval, c.flushCoordinate)
	return c
}

// Register registers Neovim command/function handlers.
func Register(p *plugin.Plugin) error {
	commands := NewCommands()

	p.Handle("poll", func() (string, error) {
		return "ok", nil
	})

	p.HandleCommand(&plugin.CommandOptions{
		Name:     "DxfViewerOpen",
		NArgs:    "1",
		Complete: "file",
	}, commands.DxfViewerOpen)

	p.HandleCommand(&plugin.CommandOptions{
		Name: "DxfViewerClear",
	}, commands.DxfViewerClear)

	p.HandleCommand(&plugin.CommandOptions{
		Name:     "DxfViewerFonts",
		NArgs:    "*",
		Complete: "file",
	}, commands.DxfViewerFonts)

	p.HandleCommand(&plugin.CommandOptions{
		Name: "DxfViewerStop",
	}, commands.DxfViewerStop)

	p.HandleFunction(&plugin.FunctionOptions{
		Name: "DxfViewerStatus",
	}, commands.DxfViewerStatus)

	return nil
}

// DxfViewerOpen starts the viewer if needed and loads args[0]. The load
// runs in the background; failures are echoed once it settles.
func (c *Commands) DxfViewerOpen(v *nvim.Nvim, args []string) error {
	d, ctx, started, err := c.ensureViewer(v)
	if err != nil {
		return err
	}
	if started {
		if err := v.Command(fmt.Sprintf(`echom "[dxf-viewer] viewer: %s"`, d.URL())); err != nil {
			return err
		}
	}

	document := args[0]
	go func() {
		if err := d.Open(ctx, document); err != nil {
			c.echoError(v, err.Error())
			return
		}
		if st := d.State(); st.URL == d.Resolve(document) && st.Load.Failed() {
			c.echoError(v, st.Load.Error)
		}
	}()
	return nil
}

// DxfViewerClear unsets the document.
func (c *Commands) DxfViewerClear(v *nvim.Nvim) error {
	c.mu.Lock()
	d := c.viewer
	c.mu.Unlock()
	if d == nil {
		return nil
	}
	return d.Clear()
}

// DxfViewerFonts replaces the font list used by the next load.
func (c *Commands) DxfViewerFonts(v *nvim.Nvim, args []string) error {
	c.mu.Lock()
	c.fonts = append([]string(nil), args...)
	d := c.viewer
	c.mu.Unlock()

	if d != nil {
		d.SetFonts(args)
	}
	return nil
}

// DxfViewerStop destroys the viewer and stops serving the page.
func (c *Commands) DxfViewerStop(v *nvim.Nvim) error {
	c.mu.Lock()
	d := c.viewer
	cancel := c.cancel
	c.viewer, c.cancel = nil, nil
	c.mu.Unlock()

	if d == nil {
		return nil
	}
	return stopViewer(d, cancel)
}

// stopViewer closes d before cancelling its loads, so a load still in
// flight settles after teardown and is discarded instead of recorded as a
// failure.
func stopViewer(d io.Closer, cancel context.CancelFunc) error {
	err := d.Close()
	cancel()
	return err
}

// DxfViewerStatus returns the presentation snapshot as a dictionary.
func (c *Commands) DxfViewerStatus(v *nvim.Nvim) (map[string]any, error) {
	c.mu.Lock()
	d := c.viewer
	c.mu.Unlock()
	if d == nil {
		return presentationDict(viewer.Presentation{}), nil
	}
	return presentationDict(d.State()), nil
}

// ensureViewer lazily creates and starts the viewer from g:dxf_viewer.
func (c *Commands) ensureViewer(v *nvim.Nvim) (*app.DxfViewer, context.Context, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nv = v
	if c.viewer != nil {
		return c.viewer, c.ctx, false, nil
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return nil, nil, false, err
	}
	if c.fonts != nil {
		cfg.Fonts = c.fonts
	}

	d, err := app.NewDxfViewer(cfg, viewer.PublisherFunc(c.publish), c.handleChange)
	if err != nil {
		return nil, nil, false, err
	}
	if err := d.Start(); err != nil {
		_ = d.Close()
		return nil, nil, false, fmt.Errorf("start viewer on %s: %w", cfg.Addr, err)
	}

	c.viewer = d
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return d, c.ctx, true, nil
}

func loadConfig(v *nvim.Nvim) (config.Config, error) {
	cfg := config.Default()

	var exists int
	if err := v.Eval(fmt.Sprintf("exists('g:%s')", configVar), &exists); err != nil {
		return cfg, err
	}
	if exists == 0 {
		return cfg, nil
	}

	var user config.Config
	if err := v.Var(configVar, &user); err != nil {
		return cfg, fmt.Errorf("read g:%s: %w", configVar, err)
	}
	return cfg.Merge(user), nil
}

func (c *Commands) client() *nvim.Nvim {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nv
}

// publish delivers an outward event as a User autocommand, with the payload
// in g:dxf_viewer_event.
// Coordinate updates are coalesced so only the latest position of a burst
// is delivered.
func (c *Commands) publish(ev viewer.Event) {
	if ev.Name == viewer.CoordinateUpdateEvent {
		c.mu.Lock()
		c.lastCursor = ev
		c.mu.Unlock()
		c.cursor.Trigger()
		return
	}
	c.deliver(ev)
}

func (c *Commands) flushCoordinate() {
	c.mu.Lock()
	ev := c.lastCursor
	c.mu.Unlock()
	c.deliver(ev)
}

func (c *Commands) deliver(ev viewer.Event) {
	v := c.client()
	if v == nil {
		return
	}

	b := v.NewBatch()
	b.SetVar(eventVar, map[string]any{"name": ev.Name, "payload": eventPayload(ev.Payload)})
	if p, ok := ev.Payload.(viewer.WorldPoint); ok {
		b.SetVar(coordinateVar, []float64{p.X, p.Y, p.Z})
	}
	b.Command(userAutocmd(ev.Name))
	_ = b.Execute()
}

// handleChange mirrors the presentation into g:dxf_viewer_state and asks
// Neovim to redraw statuslines.
func (c *Commands) handleChange(p viewer.Presentation) {
	v := c.client()
	if v == nil {
		return
	}

	b := v.NewBatch()
	b.SetVar(stateVar, presentationDict(p))
	b.Command("redrawstatus!")
	_ = b.Execute()
}

func (c *Commands) echoError(v *nvim.Nvim, msg string) {
	_ = v.Command(fmt.Sprintf(`echohl ErrorMsg | echom "[dxf-viewer] %s" | echohl None`, escapeVimString(msg)))
}
