package viewer

// DevicePoint is a pointer position in device pixels, in the same space as
// ViewportRect.
type DevicePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ViewportRect is the canvas rectangle in device pixels.
type ViewportRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Degenerate reports whether the rectangle has no area to map against.
func (r ViewportRect) Degenerate() bool {
	return !(r.Width > 0) || !(r.Height > 0)
}

// MapPointer converts a device point into world coordinates under an
// orthographic camera aligned with the viewport. Device Y grows downward
// and world Y grows upward. It reports false for a degenerate viewport.
func MapPointer(p DevicePoint, vp ViewportRect, cam CameraBounds) (WorldPoint, bool) {
	if vp.Degenerate() {
		return WorldPoint{}, false
	}

	ndcX := ((p.X-vp.Left)/vp.Width)*2 - 1
	ndcY := -((p.Y-vp.Top)/vp.Height)*2 + 1

	return WorldPoint{
		X: cam.Left + (ndcX+1)*(cam.Right-cam.Left)/2,
		Y: cam.Bottom + (ndcY+1)*(cam.Top-cam.Bottom)/2,
	}, true
}
