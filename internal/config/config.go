// Package config holds the plugin settings users put in g:dxf_viewer.
package config

import (
	"errors"
	"fmt"
	"regexp"

	"go-dxf-viewer/internal/viewer"
)

// Config is decoded from the g:dxf_viewer dictionary. Zero values in the
// dictionary leave the defaults in place, see Merge.
type Config struct {
	Addr            string         `msgpack:"addr" json:"addr"`
	Background      string         `msgpack:"background" json:"background"`
	AutoResize      *bool          `msgpack:"auto_resize" json:"auto_resize"`
	ColorCorrection *bool          `msgpack:"color_correction" json:"color_correction"`
	Wireframe       *bool          `msgpack:"wireframe" json:"wireframe"`
	Fonts           []string       `msgpack:"fonts" json:"fonts"`
	EventPrefix     string         `msgpack:"event_prefix" json:"event_prefix"`
	WorkerURL       string         `msgpack:"worker_url" json:"worker_url"`
	Extra           map[string]any `msgpack:"extra" json:"extra"`
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func boolp(v bool) *bool { return &v }

// Default returns the settings used when g:dxf_viewer is not set.
func Default() Config {
	return Config{
		Addr:            "127.0.0.1:7778",
		Background:      "#212830",
		AutoResize:      boolp(true),
		ColorCorrection: boolp(true),
		Wireframe:       boolp(false),
		EventPrefix:     viewer.DefaultEventPrefix,
		WorkerURL:       "/static/dxf-viewer-worker.js",
	}
}

// Merge overlays the non-zero fields of o on c.
func (c Config) Merge(o Config) Config {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.Background != "" {
		c.Background = o.Background
	}
	if o.AutoResize != nil {
		c.AutoResize = o.AutoResize
	}
	if o.ColorCorrection != nil {
		c.ColorCorrection = o.ColorCorrection
	}
	if o.Wireframe != nil {
		c.Wireframe = o.Wireframe
	}
	if o.Fonts != nil {
		c.Fonts = append([]string(nil), o.Fonts...)
	}
	if o.EventPrefix != "" {
		c.EventPrefix = o.EventPrefix
	}
	if o.WorkerURL != "" {
		c.WorkerURL = o.WorkerURL
	}
	if o.Extra != nil {
		c.Extra = o.Extra
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is empty")
	}
	if !colorPattern.MatchString(c.Background) {
		return fmt.Errorf("config: background %q is not a #rrggbb colour", c.Background)
	}
	return nil
}

// EngineOptions derives the engine construction options.
func (c Config) EngineOptions() viewer.EngineOptions {
	return viewer.EngineOptions{
		BackgroundColor: c.Background,
		AutoResize:      c.AutoResize != nil && *c.AutoResize,
		ColorCorrection: c.ColorCorrection != nil && *c.ColorCorrection,
		Scene:           viewer.SceneOptions{Wireframe: c.Wireframe != nil && *c.Wireframe},
		Extra:           c.Extra,
	}
}

// WorkerFactory returns the worker script URL handed to each load, or nil
// when no worker is configured and the engine should parse inline.
func (c Config) WorkerFactory() viewer.WorkerFactory {
	if c.WorkerURL == "" {
		return nil
	}
	url := c.WorkerURL
	return func() string { return url }
}
