package main

import (
	"log"
	"log/slog"
	"os"

	"go-dxf-viewer/internal/host"
	"go-dxf-viewer/internal/viewer"

	"github.com/neovim/go-client/nvim/plugin"
)

// Set up the connection to Neovim, register the viewer commands and keep
// serving requests. Stdout carries RPC, so all logging goes to stderr.
func main() {
	level := slog.LevelInfo
	if os.Getenv("DXF_VIEWER_DEBUG") != "" {
		level = slog.LevelDebug
	}
	viewer.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	plugin.Main(func(p *plugin.Plugin) error {
		log.Println("[dxf-viewer] registering handlers")
		return host.Register(p)
	})
}
