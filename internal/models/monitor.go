package models

// Monitor is a compositor output that can be mirrored
type Monitor struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Focused     bool    `json:"focused"`
	Scale       float64 `json:"scale"`
}

// CursorPosition is a point in the compositor's global layout
type CursorPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ContainsCursor reports whether pos lies on the monitor
func (m *Monitor) ContainsCursor(pos CursorPosition) bool {
	return pos.X >= m.X &&
		pos.X < m.X+m.Width &&
		pos.Y >= m.Y &&
		pos.Y < m.Y+m.Height
}

// Portrait reports whether the monitor is taller than wide, which maps onto
// the recorder's 1080x1920 frame without letterboxing
func (m *Monitor) Portrait() bool {
	return m.Height > m.Width
}
