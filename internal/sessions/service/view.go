package service

import (
	"sync"

	"addressor_backend/internal/addressor"
)

// MarkerView is the marker as a browser should draw it.
type MarkerView struct {
	Position  addressor.Coordinate `json:"position"`
	Draggable bool                 `json:"draggable"`
	Visible   bool                 `json:"visible"`
	Icon      addressor.MarkerIcon `json:"icon"`
}

// InfoView is the info bubble attached to the marker.
type InfoView struct {
	Content string `json:"content"`
	Open    bool   `json:"open"`
}

// ViewState is everything a browser needs to redraw the map widget.
type ViewState struct {
	Center  addressor.Coordinate `json:"center"`
	Zoom    int                  `json:"zoom"`
	Bounds  *addressor.Bounds    `json:"bounds,omitempty"`
	Marker  MarkerView           `json:"marker"`
	Info    InfoView             `json:"info"`
	Notice  string               `json:"notice,omitempty"`
	Version uint64               `json:"version"`
}

// viewRecorder stands in for the browser's map widget. It keeps the last
// requested view and reports every change.
type viewRecorder struct {
	mu       sync.Mutex
	state    ViewState
	onChange func(ViewState)
}

func newViewRecorder(opts addressor.Options, onChange func(ViewState)) *viewRecorder {
	return &viewRecorder{
		state: ViewState{
			Center: *opts.DefaultCenter,
			Zoom:   opts.DefaultZoom,
			Marker: MarkerView{Position: *opts.DefaultCenter, Icon: *opts.MarkerIcon},
		},
		onChange: onChange,
	}
}

func (v *viewRecorder) update(fn func(s *ViewState)) {
	v.mu.Lock()
	fn(&v.state)
	v.state.Version++
	snapshot := v.state
	v.mu.Unlock()

	if v.onChange != nil {
		v.onChange(snapshot)
	}
}

func (v *viewRecorder) Snapshot() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *viewRecorder) Center(c addressor.Coordinate) {
	v.update(func(s *ViewState) {
		s.Center = c
		s.Bounds = nil
	})
}

func (v *viewRecorder) Pan(c addressor.Coordinate) {
	v.update(func(s *ViewState) {
		s.Center = c
		s.Bounds = nil
	})
}

func (v *viewRecorder) SetZoom(zoom int) {
	v.update(func(s *ViewState) { s.Zoom = zoom })
}

// FitBounds leaves the zoom to the browser, which knows the viewport size.
func (v *viewRecorder) FitBounds(b addressor.Bounds) {
	v.update(func(s *ViewState) {
		s.Center = b.Center()
		s.Bounds = &b
	})
}

func (v *viewRecorder) SetMarker(c addressor.Coordinate, draggable, visible bool) {
	v.update(func(s *ViewState) {
		s.Marker.Position = c
		s.Marker.Draggable = draggable
		s.Marker.Visible = visible
	})
}

func (v *viewRecorder) OpenInfo(content string) {
	v.update(func(s *ViewState) { s.Info = InfoView{Content: content, Open: true} })
}

func (v *viewRecorder) CloseInfo() {
	v.update(func(s *ViewState) { s.Info.Open = false })
}

// Notify records the notice shown to the user.
func (v *viewRecorder) Notify(message string) {
	v.update(func(s *ViewState) { s.Notice = message })
}

// clearNotice drops the previous notice before a new event is processed.
func (v *viewRecorder) clearNotice() {
	v.mu.Lock()
	v.state.Notice = ""
	v.mu.Unlock()
}

var (
	_ addressor.MapView  = (*viewRecorder)(nil)
	_ addressor.Notifier = (*viewRecorder)(nil)
)
