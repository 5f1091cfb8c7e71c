package host

import (
	"encoding/json"
	"strings"

	"go-dxf-viewer/internal/viewer"
)

// presentationDict converts a snapshot into plain values Neovim can store.
// Unset fields become nil (v:null).
func presentationDict(p viewer.Presentation) map[string]any {
	s := p.Load
	d := map[string]any{
		"loading":       s.IsLoading,
		"error":         nil,
		"progress":      nil,
		"indeterminate": s.Indeterminate(),
		"phase":         nil,
		"label":         nil,
		"url":           nil,
		"coordinate":    nil,
	}
	if s.Error != "" {
		d["error"] = s.Error
	}
	if s.Progress != nil {
		d["progress"] = *s.Progress
	}
	if s.ProgressPhase != viewer.PhaseNone {
		d["phase"] = string(s.ProgressPhase)
	}
	if s.ProgressLabel != "" {
		d["label"] = s.ProgressLabel
	}
	if p.URL != "" {
		d["url"] = p.URL
	}
	if c := p.Coordinate; c != nil {
		d["coordinate"] = []float64{c.X, c.Y, c.Z}
	}
	return d
}

// eventPayload decodes relayed JSON so Neovim receives a dictionary rather
// than a blob.
func eventPayload(payload any) any {
	switch typed := payload.(type) {
	case json.RawMessage:
		if len(typed) == 0 {
			return nil
		}
		var v any
		if err := json.Unmarshal(typed, &v); err != nil {
			return string(typed)
		}
		return v
	case viewer.WorldPoint:
		return map[string]any{"x": typed.X, "y": typed.Y, "z": typed.Z}
	default:
		return payload
	}
}

// userAutocmd fires the User autocommand for name only when one is defined,
// so events nobody listens to stay silent.
func userAutocmd(name string) string {
	return "if exists('#User#" + name + "') | doautocmd <nomodeline> User " + name + " | endif"
}

func escapeVimString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", " ")
}
