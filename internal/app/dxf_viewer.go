package app

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go-dxf-viewer/internal/config"
	"go-dxf-viewer/internal/render"
	httptransport "go-dxf-viewer/internal/transport/http"
	"go-dxf-viewer/internal/viewer"
)

// DxfViewer is a coordinator between the embedded engine shell, the status
// panel and HTTP delivery.
type DxfViewer struct {
	shell    *viewer.Shell
	server   *httptransport.PreviewServer
	status   *render.StatusRenderer
	onChange func(viewer.Presentation)

	// cursorStatus refreshes the panel's cursor row at most once per
	// StatusCursorInterval while the pointer moves.
	cursorStatus *Coalescer
}

// StatusCursorInterval bounds how often pointer moves re-render the status
// panel.
const StatusCursorInterval = 100 * time.Millisecond

// NewDxfViewer mounts a shell over a page-hosted engine. pub receives the
// relayed engine events and coordinate updates; onChange, when set, is
// called after the status panel has been refreshed.
func NewDxfViewer(cfg config.Config, pub viewer.Publisher, onChange func(viewer.Presentation)) (*DxfViewer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engineOpts := cfg.EngineOptions()
	status, err := render.NewStatusRenderer(engineOpts)
	if err != nil {
		return nil, err
	}
	page, err := status.RenderShell(viewer.Presentation{})
	if err != nil {
		return nil, err
	}

	d := &DxfViewer{
		server:   httptransport.NewPreviewServer(cfg.Addr, page, render.Assets()),
		status:   status,
		onChange: onChange,
	}
	d.cursorStatus = NewCoalescer(StatusCursorInterval, func() {
		d.publishStatus(d.shell.State())
	})

	shell, err := viewer.Mount(httptransport.NewRemoteEngine, d.server, viewer.Options{
		Engine:        engineOpts,
		EventPrefix:   cfg.EventPrefix,
		Fonts:         d.resolveAll(cfg.Fonts),
		WorkerFactory: cfg.WorkerFactory(),
		Publisher:     d.publisher(pub),
		OnChange:      d.handleChange,
	})
	if err != nil {
		_ = d.server.Stop()
		return nil, err
	}
	d.shell = shell

	d.server.SetPointerMoveHandler(func(p viewer.DevicePoint) {
		shell.PointerMove(p)
	})
	return d, nil
}

// Start begins serving the page.
func (d *DxfViewer) Start() error {
	return d.server.Start()
}

// URL returns the browser URL of the page.
func (d *DxfViewer) URL() string {
	return d.server.URL()
}

// Open loads a document and blocks until that load settles or is
// superseded. Local paths are served by the preview server. An empty
// document clears the scene.
func (d *DxfViewer) Open(ctx context.Context, document string) error {
	return d.shell.SetDocument(ctx, d.Resolve(document))
}

// Clear unsets the document.
func (d *DxfViewer) Clear() error {
	return d.shell.Clear()
}

// SetFonts replaces the fonts used by subsequent loads.
func (d *DxfViewer) SetFonts(fonts []string) {
	d.shell.SetFonts(d.resolveAll(fonts))
}

// State returns the presentation snapshot.
func (d *DxfViewer) State() viewer.Presentation {
	return d.shell.State()
}

// Close destroys the shell and stops the server. Both errors are returned.
func (d *DxfViewer) Close() error {
	d.cursorStatus.Stop()
	return errors.Join(d.shell.Destroy(), d.server.Stop())
}

// publisher forwards outward events to pub and schedules a coalesced
// status refresh for coordinate updates.
func (d *DxfViewer) publisher(pub viewer.Publisher) viewer.Publisher {
	return viewer.PublisherFunc(func(ev viewer.Event) {
		if ev.Name == viewer.CoordinateUpdateEvent {
			d.cursorStatus.Trigger()
		}
		if pub != nil {
			pub.Publish(ev)
		}
	})
}

func (d *DxfViewer) handleChange(p viewer.Presentation) {
	d.publishStatus(p)

	if d.onChange != nil {
		d.onChange(p)
	}
}

// Resolve rewrites local paths to preview server URLs and leaves remote
// URLs untouched.
func (d *DxfViewer) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "file://") {
		ref = ref[len("file://"):]
	} else if strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "blob:") ||
		strings.HasPrefix(lower, "//") ||
		strings.HasPrefix(lower, "/static/") ||
		strings.HasPrefix(lower, "/@dxffs/") {
		return ref
	}

	abs, err := filepath.Abs(ref)
	if err != nil {
		return ref
	}
	return d.server.LocalURL(abs)
}

func (d *DxfViewer) resolveAll(refs []string) []string {
	if refs == nil {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if r := d.Resolve(ref); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (d *DxfViewer) publishStatus(p viewer.Presentation) {
	html, err := d.status.RenderStatus(p)
	if err != nil {
		viewer.Logger().Warn("render status", slog.Any("err", err))
		return
	}
	if err := d.server.PublishStatus(html); err != nil {
		viewer.Logger().Debug("publish status", slog.Any("err", err))
	}
}
